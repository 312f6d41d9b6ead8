package cloudinary

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/rs/zerolog"
)

const (
	defaultTransformation = "f_auto,q_auto"
	placeholderBase       = "https://i.pravatar.cc/400"
)

// Config contains the Cloudinary account used to serve profile pictures.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Resolver turns stored profile picture references into public URLs.
// Absolute URLs pass through, Cloudinary public ids are delivered with
// automatic format and quality, and users without a picture get a placeholder.
type Resolver struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary backed resolver.
func New(cfg Config, logger zerolog.Logger) (*Resolver, error) {
	if cfg.CloudName == "" {
		return nil, fmt.Errorf("cloudinary cloud name must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Resolver{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Placeholder returns a resolver that never talks to Cloudinary.
func Placeholder(logger zerolog.Logger) *Resolver {
	return &Resolver{logger: logger.With().Str("component", "cloudinary").Logger()}
}

// ProfileImageURL resolves picture for userID.
func (r *Resolver) ProfileImageURL(userID, picture string) string {
	picture = strings.TrimSpace(picture)
	switch {
	case picture == "":
		return placeholderURL(userID)
	case strings.HasPrefix(picture, "http://"), strings.HasPrefix(picture, "https://"):
		return picture
	case r.client == nil:
		return placeholderURL(userID)
	}

	img, err := r.client.Image(r.publicID(picture))
	if err != nil {
		r.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to build cloudinary asset")
		return placeholderURL(userID)
	}
	img.Transformation = defaultTransformation

	resolved, err := img.String()
	if err != nil || resolved == "" {
		r.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to build cloudinary url")
		return placeholderURL(userID)
	}
	return resolved
}

func (r *Resolver) publicID(picture string) string {
	picture = strings.Trim(picture, "/")
	if r.folder == "" || strings.HasPrefix(picture, r.folder+"/") {
		return picture
	}
	return r.folder + "/" + picture
}

func placeholderURL(userID string) string {
	return placeholderBase + "?u=" + url.QueryEscape(userID)
}
