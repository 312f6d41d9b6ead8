package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/spark-chat-api/internal/models"
)

// MessageRepository is the durable log of chat messages.
type MessageRepository interface {
	Save(ctx context.Context, message *models.ChatMessage) error
	ListRecent(ctx context.Context, chatID string, limit int) ([]models.ChatMessage, error)
	ListBefore(ctx context.Context, chatID, cursorID string, limit int) ([]models.ChatMessage, error)
	ListAfter(ctx context.Context, chatID, cursorID string, limit int) ([]models.ChatMessage, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Save stores the message once; replays of the same (chat, id) pair are ignored.
func (r *messageRepository) Save(ctx context.Context, message *models.ChatMessage) error {
	if message == nil {
		return fmt.Errorf("message is required")
	}
	if message.StreamMs == 0 && message.StreamSeq == 0 {
		ms, seq, err := ParseStreamID(message.ID)
		if err != nil {
			return err
		}
		message.StreamMs = int64(ms)
		message.StreamSeq = int64(seq)
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(message).Error
}

// ListRecent returns the newest messages of the chat, newest first.
func (r *messageRepository) ListRecent(ctx context.Context, chatID string, limit int) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("stream_ms DESC").Order("stream_seq DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// ListBefore returns messages strictly older than cursorID, newest first.
func (r *messageRepository) ListBefore(ctx context.Context, chatID, cursorID string, limit int) ([]models.ChatMessage, error) {
	ms, seq, err := ParseStreamID(cursorID)
	if err != nil {
		return nil, err
	}

	var messages []models.ChatMessage
	err = r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Where("stream_ms < ? OR (stream_ms = ? AND stream_seq < ?)", ms, ms, seq).
		Order("stream_ms DESC").Order("stream_seq DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// ListAfter returns messages strictly newer than cursorID, oldest first. An
// empty cursor starts at the beginning of the chat.
func (r *messageRepository) ListAfter(ctx context.Context, chatID, cursorID string, limit int) ([]models.ChatMessage, error) {
	query := r.db.WithContext(ctx).Where("chat_id = ?", chatID)
	if cursorID != "" {
		ms, seq, err := ParseStreamID(cursorID)
		if err != nil {
			return nil, err
		}
		query = query.Where("stream_ms > ? OR (stream_ms = ? AND stream_seq > ?)", ms, ms, seq)
	}

	var messages []models.ChatMessage
	err := query.
		Order("stream_ms ASC").Order("stream_seq ASC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}
