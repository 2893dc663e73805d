package chat

import (
	"context"
	"encoding/json"
	"time"
)

// Session is one end-user conversation thread as shown in the directory.
type Session struct {
	ID                   string        `json:"id"`
	ExternalConnectionID string        `json:"externalConnectionId"`
	OwnerUserID          *string       `json:"ownerUserId,omitempty"`
	GuestProfile         *GuestProfile `json:"guestProfile,omitempty"`
	IsOnline             bool          `json:"isOnline"`
	LastActivity         time.Time     `json:"lastActivityTimestamp"`
	Escalated            bool          `json:"escalated"`
	UnreadCount          int           `json:"unreadCount"`
	LastMessagePreview   string        `json:"lastMessagePreview,omitempty"`
}

type GuestProfile struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Message is a single entry of a session timeline.
// IsDeleted is a tombstone: once set it is never cleared.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Sender    Sender    `json:"sender"`
	Body      string    `json:"body"`
	IsRead    bool      `json:"isRead"`
	IsDeleted bool      `json:"isDeleted"`
	CreatedAt time.Time `json:"createdAt"`
}

// Inbound channel events.
const (
	EventConnected   = "connected"
	EventNewMessage  = "admin_new_message"
	EventRoomMessage = "message"
	EventMessageSent = "admin_message_sent"
	EventDeleted     = "message_deleted"
)

// Outbound channel events.
const (
	EventJoinSession   = "admin_join_session"
	EventReply         = "admin_reply"
	EventDeleteMessage = "delete_message"
)

// NewMessageEvent is the payload of admin_new_message.
// Session is only present when the session is new to the server.
type NewMessageEvent struct {
	SessionID string   `json:"sessionId"`
	Message   Message  `json:"message"`
	Session   *Session `json:"session,omitempty"`
}

type DeletedEvent struct {
	MessageID string `json:"messageId"`
}

type ReplyIntent struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type DeleteMessageIntent struct {
	MessageID string `json:"messageId"`
	SessionID string `json:"sessionId"`
}

// API is the admin REST backend.
type API interface {
	ListSessions(ctx context.Context) ([]Session, error)
	History(ctx context.Context, sessionID string) ([]Message, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Handler receives the raw data of one inbound channel event.
type Handler func(data json.RawMessage)

// Channel is the realtime connection as seen by the engine.
type Channel interface {
	On(event string, h Handler) (off func())
	Emit(event string, payload any) error
	JoinSession(sessionID string) error
}
