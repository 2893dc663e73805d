package console

import (
	"context"
	"errors"
	"time"

	"github.com/Vovarama1992/chatra-operator-console/internal/notify"
)

var (
	ErrStopped        = errors.New("console: engine stopped")
	ErrNoSession      = errors.New("console: session id is required")
	ErrEmptyReply     = errors.New("console: reply body is empty")
	ErrNotSelected    = errors.New("console: session is not selected")
	ErrDraftsDisabled = errors.New("console: reply drafts are disabled")
)

// Notice is a transient, operator-visible error.
type Notice struct {
	Op        string    `json:"op"`
	SessionID string    `json:"sessionId,omitempty"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// AlertReader lists journaled alerts, newest first.
type AlertReader interface {
	Recent(ctx context.Context, limit int) ([]notify.Alert, error)
}
