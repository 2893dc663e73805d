package notify

import (
	"context"
	"time"
)

// Permission mirrors the desktop notification permission states.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

func ParsePermission(v string) Permission {
	switch Permission(v) {
	case PermissionGranted, PermissionDenied:
		return Permission(v)
	default:
		return PermissionDefault
	}
}

// Requester asks the platform for notification permission.
type Requester interface {
	RequestPermission(ctx context.Context) (Permission, error)
}

// StaticPermission answers with a preconfigured decision.
type StaticPermission Permission

func (p StaticPermission) RequestPermission(context.Context) (Permission, error) {
	return ParsePermission(string(p)), nil
}

// Player plays raw PCM (signed 16-bit little endian, mono).
type Player interface {
	Play(pcm []byte) error
}

// Desktop raises an OS-level notification.
type Desktop interface {
	Notify(title, body string) error
}

// Mirror publishes per-session unread counters outside the process.
type Mirror interface {
	SetUnread(ctx context.Context, sessionID string, n int) error
}

// Alert is one raised new-message notification.
type Alert struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	MessageID string    `json:"messageId"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	At        time.Time `json:"at"`
}

// Sink receives every alert (journal, broker fan-out).
type Sink interface {
	Alert(ctx context.Context, a Alert) error
}

// State is a snapshot of the notification counters.
type State struct {
	PerSessionUnread  map[string]int `json:"perSessionUnread"`
	TotalUnread       int            `json:"totalUnread"`
	AudioUnlocked     bool           `json:"audioUnlocked"`
	BrowserPermission Permission     `json:"browserPermission"`
}
