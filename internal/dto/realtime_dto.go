package dto

import "encoding/json"

// Inbound realtime events.
const (
	EventAuthenticate = "authenticate"
	EventJoinChat     = "join_chat"
	EventLeaveChat    = "leave_chat"
	EventSendMessage  = "send_message"
	EventMessagesSeen = "messages_seen"
	EventTyping       = "typing"
	EventStopTyping   = "stop_typing"
	EventHeartbeat    = "heartbeat"
)

// Outbound realtime events.
const (
	EventAuthenticated       = "authenticated"
	EventAuthError           = "auth_error"
	EventChatJoined          = "chat_joined"
	EventChatLeft            = "chat_left"
	EventNewMessage          = "new_message"
	EventMessageNotification = "message_notification"
	EventUserTyping          = "user_typing"
	EventUserStoppedTyping   = "user_stopped_typing"
	EventPresenceUpdate      = "presence_update"
	EventForceDisconnect     = "force_disconnect"
	EventChatError           = "chat_error"
	EventMessageError        = "message_error"
	EventError               = "error"
)

// RealtimeInbound is a frame received from a client.
type RealtimeInbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RealtimeEvent is a frame pushed to clients and carried across instances.
type RealtimeEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// AuthenticatePayload carries a token when the handshake had none.
type AuthenticatePayload struct {
	Token string `json:"token" validate:"required"`
}

// FriendPayload addresses the chat shared with FriendID.
type FriendPayload struct {
	FriendID string `json:"friendId" validate:"required,max=128"`
}

// SendMessagePayload is the body of send_message.
type SendMessagePayload struct {
	FriendID string `json:"friendId" validate:"required,max=128"`
	Message  string `json:"message" validate:"required,max=2000"`
	TempID   string `json:"tempId" validate:"omitempty,max=64"`
}

// AuthenticatedEvent confirms the session.
type AuthenticatedEvent struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// ChatRoomEvent is emitted for chat_joined and chat_left.
type ChatRoomEvent struct {
	ChatRoomID string `json:"chatRoomId"`
	FriendID   string `json:"friendId"`
}

// MessageNotification is the preview pushed to the recipient's personal channel.
type MessageNotification struct {
	SenderID   string `json:"senderId"`
	ChatRoomID string `json:"chatRoomId"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp"`
}

// SeenReceipt tells the counterpart that SeenBy read the chat.
type SeenReceipt struct {
	SeenBy     string `json:"seenBy"`
	ChatRoomID string `json:"chatRoomId"`
}

// TypingEvent is emitted for user_typing and user_stopped_typing.
type TypingEvent struct {
	UserID string `json:"userId"`
	ChatID string `json:"chatId"`
}

// PresenceUpdate announces a status change to friends.
type PresenceUpdate struct {
	UserID   string `json:"userId"`
	Status   string `json:"status"`
	LastSeen *int64 `json:"lastSeen"`
}

// ForceDisconnect is the last frame sent to a displaced session.
type ForceDisconnect struct {
	Reason string `json:"reason"`
}

// ErrorEvent reports a rejected inbound event.
type ErrorEvent struct {
	Error  string `json:"error"`
	Event  string `json:"event,omitempty"`
	TempID string `json:"tempId,omitempty"`
}
