package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/spark-chat-api/internal/models"
)

// PresenceRepository mirrors presence into the durable store for consumers
// that cannot reach the fast store.
type PresenceRepository interface {
	Upsert(ctx context.Context, record models.PresenceRecord) error
	Find(ctx context.Context, userID string) (models.PresenceRecord, error)
}

type presenceRepository struct {
	db *gorm.DB
}

// NewPresenceRepository constructs a presence repository backed by GORM.
func NewPresenceRepository(db *gorm.DB) PresenceRepository {
	return &presenceRepository{db: db}
}

// Upsert keeps the newest transition; a record older than the stored one is ignored.
func (r *presenceRepository) Upsert(ctx context.Context, record models.PresenceRecord) error {
	newer := clause.Where{Exprs: []clause.Expression{
		clause.Expr{SQL: "presence_records.changed_at <= excluded.changed_at"},
	}}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "last_seen", "changed_at", "updated_at"}),
		Where:     newer,
	}).Create(&record).Error
}

func (r *presenceRepository) Find(ctx context.Context, userID string) (models.PresenceRecord, error) {
	var record models.PresenceRecord
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.PresenceRecord{}, ErrUserNotFound
	}
	return record, err
}
