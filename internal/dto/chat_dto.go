package dto

import "github.com/noah-isme/spark-chat-api/internal/models"

// Pagination directions and sentinel cursors.
const (
	DirectionOlder = "older"
	DirectionNewer = "newer"

	CursorStart = "-"
	CursorEnd   = "+"
)

// Page sources reported to clients. The durable source keeps its historical
// wire value so existing clients keep working.
const (
	SourceStream  = "stream"
	SourceDurable = "firestore"
)

// ChatMessage is the wire representation shared by history pages and realtime events.
type ChatMessage struct {
	ID         string `json:"id"`
	ChatRoomID string `json:"chatRoomId"`
	SentBy     string `json:"sentBy"`
	Message    string `json:"message"`
	Seen       bool   `json:"seen"`
	Timestamp  int64  `json:"timestamp"`
	TempID     string `json:"tempId,omitempty"`
}

// NewChatMessageFromModel converts a durable record into its wire form.
func NewChatMessageFromModel(message models.ChatMessage) ChatMessage {
	return ChatMessage{
		ID:         message.ID,
		ChatRoomID: message.ChatID,
		SentBy:     message.SentBy,
		Message:    message.Body,
		Seen:       message.Seen,
		Timestamp:  message.SentAt,
	}
}

// ChatPageQuery describes a history request issued by ViewerID for the chat shared with OtherID.
type ChatPageQuery struct {
	ViewerID  string `validate:"required,max=128"`
	OtherID   string `validate:"required,max=128,nefield=ViewerID"`
	Limit     int    `query:"limit" validate:"omitempty,min=0"`
	Cursor    string `query:"cursor" validate:"omitempty,max=64"`
	Direction string `query:"direction" validate:"omitempty,oneof=older newer"`
}

// ChatPage is one page of history. NextCursor is the id of the last message in
// Messages or nil when the page is empty.
type ChatPage struct {
	ChatID     string        `json:"chatId"`
	Messages   []ChatMessage `json:"messages"`
	NextCursor *string       `json:"nextCursor"`
	HasMore    bool          `json:"hasMore"`
	Source     string        `json:"source"`
}

// ChatMetadata is the per-chat summary kept next to the fast log.
type ChatMetadata struct {
	LastMessage int64  `json:"lastMessage"`
	LastSender  string `json:"lastSender"`
	Unread      int64  `json:"unread"`
}

// UnreadCountResponse reports the unread total across the viewer's chats.
type UnreadCountResponse struct {
	TotalUnread int64 `json:"totalUnread"`
}
