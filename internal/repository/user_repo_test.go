package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/noah-isme/spark-chat-api/internal/models"
)

func seedUsers(t *testing.T, repo UserRepository, users ...models.User) {
	t.Helper()
	for i := range users {
		require.NoError(t, repo.Create(context.Background(), &users[i]))
	}
}

func TestApplySwipeLikeWithoutReciprocityIsNotAMatch(t *testing.T) {
	db := setupTestDB(t, &models.User{})
	repo := NewUserRepository(db)
	seedUsers(t, repo, models.User{ID: "u1", Name: "One"}, models.User{ID: "u2", Name: "Two"})

	outcome, err := repo.ApplySwipe(context.Background(), "u1", "u2", models.SwipeLike)
	require.NoError(t, err)
	require.False(t, outcome.Matched)

	viewer, err := repo.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"u2"}, []string(viewer.Liked))
	require.Equal(t, 1, viewer.LikesSentCounter)
	require.Empty(t, viewer.Matches)

	target, err := repo.FindByID(context.Background(), "u2")
	require.NoError(t, err)
	require.Equal(t, 1, target.LikesCounter)
}

func TestApplySwipeReciprocalLikeCreatesSingleMatch(t *testing.T) {
	db := setupTestDB(t, &models.User{})
	repo := NewUserRepository(db)
	seedUsers(t, repo,
		models.User{ID: "u1", Name: "One"},
		models.User{ID: "u2", Name: "Two", Superliked: datatypes.JSONSlice[string]{"u1"}},
	)

	outcome, err := repo.ApplySwipe(context.Background(), "u1", "u2", models.SwipeLike)
	require.NoError(t, err)
	require.True(t, outcome.Matched)
	require.Equal(t, "Two", outcome.Target.Name)

	again, err := repo.ApplySwipe(context.Background(), "u1", "u2", models.SwipeLike)
	require.NoError(t, err)
	require.False(t, again.Matched)

	viewer, err := repo.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	target, err := repo.FindByID(context.Background(), "u2")
	require.NoError(t, err)

	require.Equal(t, []string{"u2"}, []string(viewer.Matches))
	require.Equal(t, []string{"u1"}, []string(target.Matches))
	require.Equal(t, 1, viewer.MatchesCounter)
	require.Equal(t, 1, target.MatchesCounter)
	require.Equal(t, 2, viewer.LikesSentCounter)
	require.Equal(t, 2, target.LikesCounter)
}

func TestApplySwipeRejectOnlyTouchesViewer(t *testing.T) {
	db := setupTestDB(t, &models.User{})
	repo := NewUserRepository(db)
	seedUsers(t, repo, models.User{ID: "u1"}, models.User{ID: "u2", Liked: datatypes.JSONSlice[string]{"u1"}})

	outcome, err := repo.ApplySwipe(context.Background(), "u1", "u2", models.SwipeReject)
	require.NoError(t, err)
	require.False(t, outcome.Matched)

	viewer, err := repo.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"u2"}, []string(viewer.Rejected))
	require.Empty(t, viewer.Matches)
}

func TestApplySwipeUnknownTargetFails(t *testing.T) {
	db := setupTestDB(t, &models.User{})
	repo := NewUserRepository(db)
	seedUsers(t, repo, models.User{ID: "u1"})

	_, err := repo.ApplySwipe(context.Background(), "u1", "ghost", models.SwipeLike)
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = repo.ApplySwipe(context.Background(), "u1", "u1", "poke")
	require.ErrorIs(t, err, ErrInvalidSwipeAction)
}

func TestListCandidatesExcludesIDs(t *testing.T) {
	db := setupTestDB(t, &models.User{})
	repo := NewUserRepository(db)
	seedUsers(t, repo,
		models.User{ID: "u1"}, models.User{ID: "u2"}, models.User{ID: "u3"},
		models.User{ID: "u4"}, models.User{ID: "u5"},
	)

	candidates, err := repo.ListCandidates(context.Background(), []string{"u1", "u2", "u3"}, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, "u4", candidates[0].ID)
	require.Equal(t, "u5", candidates[1].ID)
}

func TestFindByIDsSkipsMissing(t *testing.T) {
	db := setupTestDB(t, &models.User{})
	repo := NewUserRepository(db)
	seedUsers(t, repo, models.User{ID: "u1"}, models.User{ID: "u2"})

	users, err := repo.FindByIDs(context.Background(), []string{"u2", "ghost", "u1"})
	require.NoError(t, err)
	require.Len(t, users, 2)
}

func TestResetMatchesRemovesReciprocalEntries(t *testing.T) {
	db := setupTestDB(t, &models.User{})
	repo := NewUserRepository(db)
	seedUsers(t, repo,
		models.User{ID: "u1", Matches: datatypes.JSONSlice[string]{"u2", "u3"}, MatchesCounter: 2},
		models.User{ID: "u2", Matches: datatypes.JSONSlice[string]{"u1"}, MatchesCounter: 1},
		models.User{ID: "u3", Matches: datatypes.JSONSlice[string]{"u1", "u4"}, MatchesCounter: 2},
	)

	cleared, err := repo.ResetList(context.Background(), "u1", models.ListMatches)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"u2", "u3"}, cleared)

	u1, err := repo.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	require.Empty(t, u1.Matches)
	require.Zero(t, u1.MatchesCounter)

	u3, err := repo.FindByID(context.Background(), "u3")
	require.NoError(t, err)
	require.Equal(t, []string{"u4"}, []string(u3.Matches))
	require.Equal(t, 1, u3.MatchesCounter)
}

func TestResetListRejectsUnknownType(t *testing.T) {
	db := setupTestDB(t, &models.User{})
	repo := NewUserRepository(db)
	seedUsers(t, repo, models.User{ID: "u1"})

	_, err := repo.ResetList(context.Background(), "u1", "friends")
	require.ErrorIs(t, err, ErrInvalidListType)
}

func TestUpdateProfileAppliesFields(t *testing.T) {
	db := setupTestDB(t, &models.User{})
	repo := NewUserRepository(db)
	seedUsers(t, repo, models.User{ID: "u1", Name: "Old"})

	updated, err := repo.UpdateProfile(context.Background(), "u1", map[string]interface{}{"name": "New", "bio": "hi"})
	require.NoError(t, err)
	require.Equal(t, "New", updated.Name)
	require.Equal(t, "hi", updated.Bio)

	_, err = repo.UpdateProfile(context.Background(), "ghost", map[string]interface{}{"name": "x"})
	require.ErrorIs(t, err, ErrUserNotFound)
}
