package models

import "time"

// ChatMessage is the durable copy of a chat entry. ID is the fast-log entry id
// ("<ms>-<seq>") so both stores agree on identity and ordering.
type ChatMessage struct {
	ChatID    string    `gorm:"primaryKey;size:64;index:idx_chat_messages_order,priority:1" json:"chat_id"`
	ID        string    `gorm:"primaryKey;size:48" json:"id"`
	SentBy    string    `gorm:"size:64;index;not null" json:"sent_by"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	Seen      bool      `gorm:"not null;default:false" json:"seen"`
	SentAt    int64     `gorm:"not null" json:"sent_at"`
	StreamMs  int64     `gorm:"not null;index:idx_chat_messages_order,priority:2" json:"-"`
	StreamSeq int64     `gorm:"not null;index:idx_chat_messages_order,priority:3" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName pins the table name used by migrations and raw queries.
func (ChatMessage) TableName() string {
	return "chat_messages"
}
