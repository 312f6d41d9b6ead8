package dto

import "github.com/noah-isme/spark-chat-api/internal/models"

// UserProfile is the cached projection of a user document.
type UserProfile struct {
	ID               string   `json:"id"`
	Mobile           string   `json:"mobile,omitempty"`
	Name             string   `json:"name"`
	Age              int      `json:"age"`
	Bio              string   `json:"bio"`
	Image            string   `json:"image"`
	ProfilePicture   string   `json:"profilePicture,omitempty"`
	Tags             []string `json:"tags"`
	Liked            []string `json:"liked"`
	Superliked       []string `json:"superliked"`
	Rejected         []string `json:"rejected"`
	Matches          []string `json:"matches"`
	Blocked          []string `json:"blocked"`
	MatchesCounter   int      `json:"matchesCounter"`
	LikesCounter     int      `json:"likesCounter"`
	LikesSentCounter int      `json:"likesSentCounter"`
}

// ProfileSummary is the public card shown in feeds, friend lists and match results.
type ProfileSummary struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Age   int      `json:"age,omitempty"`
	Bio   string   `json:"bio,omitempty"`
	Image string   `json:"image"`
	Tags  []string `json:"tags,omitempty"`
}

// FriendSummary is a matched user with presence attached.
type FriendSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Image    string `json:"image"`
	ChatID   string `json:"chatId"`
	Online   bool   `json:"online"`
	LastSeen *int64 `json:"lastSeen"`
	Unread   int64  `json:"unread"`
}

// PresenceStatus is the presence snapshot of one user.
type PresenceStatus struct {
	UserID   string `json:"userId"`
	Online   bool   `json:"online"`
	LastSeen *int64 `json:"lastSeen"`
}

// ProfileUpdateRequest carries the editable profile fields. Nil fields are left untouched.
type ProfileUpdateRequest struct {
	Name           *string  `json:"name" validate:"omitempty,min=1,max=80"`
	Age            *int     `json:"age" validate:"omitempty,min=18,max=120"`
	Bio            *string  `json:"bio" validate:"omitempty,max=500"`
	ProfilePicture *string  `json:"profilePicture" validate:"omitempty,max=255"`
	Tags           []string `json:"tags" validate:"omitempty,max=10,dive,min=1,max=32"`
}

// NewUserProfile converts a durable user into its cached projection.
func NewUserProfile(user models.User, image string) UserProfile {
	return UserProfile{
		ID:               user.ID,
		Mobile:           user.Mobile,
		Name:             user.Name,
		Age:              user.Age,
		Bio:              user.Bio,
		Image:            image,
		ProfilePicture:   user.ProfilePicture,
		Tags:             copyList(user.Tags),
		Liked:            copyList(user.Liked),
		Superliked:       copyList(user.Superliked),
		Rejected:         copyList(user.Rejected),
		Matches:          copyList(user.Matches),
		Blocked:          copyList(user.Blocked),
		MatchesCounter:   user.MatchesCounter,
		LikesCounter:     user.LikesCounter,
		LikesSentCounter: user.LikesSentCounter,
	}
}

// Summary returns the public card for the profile.
func (p UserProfile) Summary() ProfileSummary {
	return ProfileSummary{
		ID:    p.ID,
		Name:  p.Name,
		Age:   p.Age,
		Bio:   p.Bio,
		Image: p.Image,
		Tags:  p.Tags,
	}
}

func copyList(list []string) []string {
	out := make([]string, len(list))
	copy(out, list)
	return out
}
