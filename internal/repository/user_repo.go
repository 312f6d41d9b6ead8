package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/spark-chat-api/internal/models"
)

var (
	// ErrUserNotFound is returned when a referenced user document does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidSwipeAction is returned for actions other than like, superlike and reject.
	ErrInvalidSwipeAction = errors.New("invalid swipe action")
	// ErrInvalidListType is returned when resetting an unknown interaction list.
	ErrInvalidListType = errors.New("invalid interaction list")
)

// SwipeOutcome is the committed result of a swipe transaction.
type SwipeOutcome struct {
	Matched bool
	Viewer  models.User
	Target  models.User
}

// UserRepository owns user documents and their interaction lists.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
	ListCandidates(ctx context.Context, exclude []string, limit int) ([]models.User, error)
	UpdateProfile(ctx context.Context, id string, updates map[string]interface{}) (models.User, error)
	ApplySwipe(ctx context.Context, viewerID, targetID, action string) (SwipeOutcome, error)
	ResetList(ctx context.Context, userID, list string) ([]string, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository constructs a user repository backed by GORM.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

// FindByIDs loads the users that exist among ids in a single query. Missing ids are skipped.
func (r *userRepository) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}

	var users []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// ListCandidates returns up to limit users whose ids are not in exclude.
func (r *userRepository) ListCandidates(ctx context.Context, exclude []string, limit int) ([]models.User, error) {
	query := r.db.WithContext(ctx).Model(&models.User{})
	if len(exclude) > 0 {
		query = query.Where("id NOT IN ?", exclude)
	}

	var users []models.User
	if err := query.Order("id ASC").Limit(limit).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id string, updates map[string]interface{}) (models.User, error) {
	var updated models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users, err := lockUsers(tx, id)
		if err != nil {
			return err
		}
		user, ok := users[id]
		if !ok {
			return ErrUserNotFound
		}
		if len(updates) > 0 {
			if err := tx.Model(&user).Updates(updates).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", id).First(&updated).Error
	})
	if err != nil {
		return models.User{}, err
	}
	return updated, nil
}

// ApplySwipe records the viewer's action against target and detects a mutual
// match in one transaction. Both rows are locked so concurrent reciprocal
// likes produce exactly one match.
func (r *userRepository) ApplySwipe(ctx context.Context, viewerID, targetID, action string) (SwipeOutcome, error) {
	var outcome SwipeOutcome

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users, err := lockUsers(tx, viewerID, targetID)
		if err != nil {
			return err
		}
		viewer, ok := users[viewerID]
		if !ok {
			return fmt.Errorf("viewer %s: %w", viewerID, ErrUserNotFound)
		}
		target, ok := users[targetID]
		if !ok {
			return fmt.Errorf("target %s: %w", targetID, ErrUserNotFound)
		}

		switch action {
		case models.SwipeReject:
			viewer.Rejected = models.AddUnique(viewer.Rejected, target.ID)
			if err := tx.Save(&viewer).Error; err != nil {
				return err
			}
			outcome = SwipeOutcome{Viewer: viewer, Target: target}
			return nil
		case models.SwipeLike, models.SwipeSuperlike:
		default:
			return ErrInvalidSwipeAction
		}

		if action == models.SwipeLike {
			viewer.Liked = models.AddUnique(viewer.Liked, target.ID)
		} else {
			viewer.Superliked = models.AddUnique(viewer.Superliked, target.ID)
		}
		// Counters track every like sent, repeats included.
		viewer.LikesSentCounter++
		target.LikesCounter++

		reciprocal := models.Contains(target.Liked, viewer.ID) || models.Contains(target.Superliked, viewer.ID)
		if reciprocal && !models.Contains(viewer.Matches, target.ID) {
			viewer.Matches = models.AddUnique(viewer.Matches, target.ID)
			viewer.MatchesCounter++
			if !models.Contains(target.Matches, viewer.ID) {
				target.Matches = models.AddUnique(target.Matches, viewer.ID)
				target.MatchesCounter++
			}
			outcome.Matched = true
		}

		if err := tx.Save(&viewer).Error; err != nil {
			return err
		}
		if err := tx.Save(&target).Error; err != nil {
			return err
		}

		outcome.Viewer = viewer
		outcome.Target = target
		return nil
	})
	if err != nil {
		return SwipeOutcome{}, err
	}
	return outcome, nil
}

// ResetList clears one of the user's interaction lists and returns the ids it
// held. Resetting matches also removes the user from every former match.
func (r *userRepository) ResetList(ctx context.Context, userID, list string) ([]string, error) {
	var cleared []string

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users, err := lockUsers(tx, userID)
		if err != nil {
			return err
		}
		user, ok := users[userID]
		if !ok {
			return ErrUserNotFound
		}

		switch list {
		case models.ListLiked:
			cleared = append(cleared, user.Liked...)
			user.Liked = datatypes.JSONSlice[string]{}
			user.LikesSentCounter = 0
		case models.ListSuperliked:
			cleared = append(cleared, user.Superliked...)
			user.Superliked = datatypes.JSONSlice[string]{}
			user.LikesSentCounter = 0
		case models.ListRejected:
			cleared = append(cleared, user.Rejected...)
			user.Rejected = datatypes.JSONSlice[string]{}
		case models.ListMatches:
			cleared = append(cleared, user.Matches...)
			user.Matches = datatypes.JSONSlice[string]{}
			user.MatchesCounter = 0
			if err := removeReciprocalMatches(tx, userID, cleared); err != nil {
				return err
			}
		default:
			return ErrInvalidListType
		}

		return tx.Save(&user).Error
	})
	if err != nil {
		return nil, err
	}
	return cleared, nil
}

func removeReciprocalMatches(tx *gorm.DB, userID string, friendIDs []string) error {
	if len(friendIDs) == 0 {
		return nil
	}
	friends, err := lockUsers(tx, friendIDs...)
	if err != nil {
		return err
	}
	for _, id := range friendIDs {
		friend, ok := friends[id]
		if !ok || !models.Contains(friend.Matches, userID) {
			continue
		}
		friend.Matches = models.Remove(friend.Matches, userID)
		if friend.MatchesCounter > 0 {
			friend.MatchesCounter--
		}
		if err := tx.Save(&friend).Error; err != nil {
			return err
		}
	}
	return nil
}

// lockUsers loads the given users inside tx. On PostgreSQL rows are locked
// FOR UPDATE in id order; SQLite serialises writers on its own.
func lockUsers(tx *gorm.DB, ids ...string) (map[string]models.User, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	query := tx.Where("id IN ?", sorted).Order("id ASC")
	if tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, err
	}

	out := make(map[string]models.User, len(users))
	for _, user := range users {
		out[user.ID] = user
	}
	return out, nil
}
