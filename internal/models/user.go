package models

import (
	"time"

	"gorm.io/datatypes"
)

// Swipe actions accepted by the swipe transaction.
const (
	SwipeLike      = "like"
	SwipeSuperlike = "superlike"
	SwipeReject    = "reject"
)

// Interaction lists that can be reset by the owner.
const (
	ListLiked      = "liked"
	ListSuperliked = "superliked"
	ListRejected   = "rejected"
	ListMatches    = "matches"
)

// User is the durable user document including its interaction lists.
type User struct {
	ID               string                      `gorm:"primaryKey;size:64" json:"id"`
	Mobile           string                      `gorm:"size:32;index" json:"mobile"`
	Name             string                      `gorm:"size:120" json:"name"`
	Age              int                         `json:"age"`
	Bio              string                      `gorm:"type:text" json:"bio"`
	ProfilePicture   string                      `gorm:"size:255" json:"profile_picture"`
	Tags             datatypes.JSONSlice[string] `json:"tags"`
	Liked            datatypes.JSONSlice[string] `json:"liked"`
	Superliked       datatypes.JSONSlice[string] `json:"superliked"`
	Rejected         datatypes.JSONSlice[string] `json:"rejected"`
	Matches          datatypes.JSONSlice[string] `json:"matches"`
	Blocked          datatypes.JSONSlice[string] `json:"blocked"`
	MatchesCounter   int                         `gorm:"not null;default:0" json:"matches_counter"`
	LikesCounter     int                         `gorm:"not null;default:0" json:"likes_counter"`
	LikesSentCounter int                         `gorm:"not null;default:0" json:"likes_sent_counter"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
}

// Contains reports whether id appears in list.
func Contains(list []string, id string) bool {
	for _, item := range list {
		if item == id {
			return true
		}
	}
	return false
}

// AddUnique appends id to list unless it is already present.
func AddUnique(list datatypes.JSONSlice[string], id string) datatypes.JSONSlice[string] {
	if Contains(list, id) {
		return list
	}
	return append(list, id)
}

// Remove drops every occurrence of id from list.
func Remove(list datatypes.JSONSlice[string], id string) datatypes.JSONSlice[string] {
	out := make(datatypes.JSONSlice[string], 0, len(list))
	for _, item := range list {
		if item != id {
			out = append(out, item)
		}
	}
	return out
}

// ExcludedFromFeed returns every id the user must never see as a swipe candidate, including the user.
func (u User) ExcludedFromFeed() []string {
	seen := map[string]struct{}{u.ID: {}}
	out := []string{u.ID}
	for _, list := range [][]string{u.Liked, u.Superliked, u.Rejected, u.Matches, u.Blocked} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
