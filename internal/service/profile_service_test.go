package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/noah-isme/spark-chat-api/internal/dto"
	"github.com/noah-isme/spark-chat-api/internal/models"
	"github.com/noah-isme/spark-chat-api/internal/repository"
)

func strPtr(s string) *string { return &s }

func TestProfileUpdateSanitisesAndInvalidates(t *testing.T) {
	mr, client := newTestRedis(t)
	users := repository.NewUserRepository(newTestDB(t))
	seedUsers(t, users,
		models.User{ID: "alice", Name: "Alice", Matches: datatypes.JSONSlice[string]{"bob"}},
		models.User{ID: "bob", Name: "Bob", Matches: datatypes.JSONSlice[string]{"alice"}},
	)
	cache := NewProfileCache(users, client, nil, testProfileCacheConfig(), zerolog.Nop())
	profiles := NewProfileService(users, cache, validator.New(), zerolog.Nop())
	ctx := context.Background()

	me, err := profiles.Me(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", me.Name)
	require.NoError(t, mr.Set(friendsKey("bob"), "[]"))

	age := 29
	updated, err := profiles.Update(ctx, "alice", dto.ProfileUpdateRequest{
		Name: strPtr("  <b>Ally</b> "),
		Age:  &age,
		Bio:  strPtr("likes <script>alert(1)</script>tea"),
		Tags: []string{" coffee ", "<i></i>"},
	})
	require.NoError(t, err)
	require.Equal(t, "Ally", updated.Name)
	require.Equal(t, 29, updated.Age)
	require.Equal(t, "likes tea", updated.Bio)
	require.Equal(t, []string{"coffee"}, updated.Tags)

	require.False(t, mr.Exists(friendsKey("bob")))

	me, err = profiles.Me(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "Ally", me.Name)
}

func TestProfileUpdateRejectsInvalidRequests(t *testing.T) {
	_, client := newTestRedis(t)
	users := repository.NewUserRepository(newTestDB(t))
	seedUsers(t, users, models.User{ID: "alice", Name: "Alice"})
	profiles := NewProfileService(users, NewProfileCache(users, client, nil, testProfileCacheConfig(), zerolog.Nop()), validator.New(), zerolog.Nop())
	ctx := context.Background()

	_, err := profiles.Update(ctx, "alice", dto.ProfileUpdateRequest{})
	require.ErrorIs(t, err, ErrInvalidInput)

	young := 12
	_, err = profiles.Update(ctx, "alice", dto.ProfileUpdateRequest{Age: &young})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = profiles.Update(ctx, "alice", dto.ProfileUpdateRequest{Name: strPtr("<br>")})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = profiles.Update(ctx, "ghost", dto.ProfileUpdateRequest{Name: strPtr("Ghost")})
	require.ErrorIs(t, err, ErrUserNotFound)
}
