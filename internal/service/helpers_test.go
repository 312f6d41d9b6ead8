package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/spark-chat-api/internal/database"
	"github.com/noah-isme/spark-chat-api/internal/models"
	"github.com/noah-isme/spark-chat-api/internal/repository"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func seedUsers(t *testing.T, repo repository.UserRepository, users ...models.User) {
	t.Helper()
	for _, user := range users {
		user := user
		require.NoError(t, repo.Create(context.Background(), &user))
	}
}

func testProfileCacheConfig() ProfileCacheConfig {
	return ProfileCacheConfig{
		ProfileTTL:      time.Minute,
		FeedTTL:         time.Minute,
		BatchSize:       2,
		FetchMultiplier: 5,
		FetchMin:        50,
	}
}

type stubFriendDirectory map[string][]string

func (s stubFriendDirectory) FriendIDs(_ context.Context, userID string) []string {
	return s[userID]
}
