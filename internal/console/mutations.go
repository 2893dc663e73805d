package console

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Vovarama1992/chatra-operator-console/internal/ai"
	"github.com/Vovarama1992/chatra-operator-console/internal/chat"
)

// SendReply emits the operator's reply. The timeline only gains the message
// when the server confirms it with admin_message_sent.
func (e *Engine) SendReply(ctx context.Context, sessionID, body string) error {
	if sessionID == "" {
		return ErrNoSession
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return ErrEmptyReply
	}

	var err error
	if derr := e.do(ctx, func() {
		err = e.ch.Emit(chat.EventReply, chat.ReplyIntent{SessionID: sessionID, Message: body})
	}); derr != nil {
		return derr
	}
	return err
}

// DeleteMessage emits the delete intent and returns. It is not optimistic:
// the timeline is tombstoned only when message_deleted arrives.
func (e *Engine) DeleteMessage(ctx context.Context, messageID, sessionID string) error {
	if sessionID == "" {
		return ErrNoSession
	}

	var err error
	if derr := e.do(ctx, func() {
		err = e.ch.Emit(chat.EventDeleteMessage, chat.DeleteMessageIntent{MessageID: messageID, SessionID: sessionID})
	}); derr != nil {
		return derr
	}
	return err
}

// DeleteSession removes the session locally right away, closes it if it was
// open, then deletes it on the backend. On failure the whole directory is
// reloaded from the backend.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrNoSession
	}

	if err := e.do(ctx, func() {
		e.dir.Remove(sessionID)
		if e.sel.Is(sessionID) {
			e.sel.Clear()
			e.tl.Clear()
		}
		e.notifier.Clear(e.ctx, sessionID)
	}); err != nil {
		return err
	}

	err := e.api.DeleteSession(ctx, sessionID)
	if err == nil {
		e.log.Info("session deleted", slog.String("session_id", sessionID))
		return nil
	}

	if derr := e.do(ctx, func() { e.notice("delete_session", sessionID, err) }); derr != nil {
		return derr
	}
	if rerr := e.LoadAll(ctx); rerr != nil {
		e.log.Warn("resync after failed delete failed", slog.Any("error", rerr))
	}
	return err
}

// Unlock records an operator gesture; audio may play from now on.
func (e *Engine) Unlock() {
	e.notifier.Unlock()
}

// Draft asks the drafter for a suggested reply to the open session. The
// draft is returned to the operator and never sent.
func (e *Engine) Draft(ctx context.Context, sessionID string) (string, error) {
	if e.drafter == nil {
		return "", ErrDraftsDisabled
	}
	if !e.sel.Is(sessionID) || e.tl.SessionID() != sessionID {
		return "", ErrNotSelected
	}
	return e.drafter.DraftReply(ctx, draftHistory(e.tl.Messages()))
}

func draftHistory(msgs []chat.Message) []ai.Message {
	out := make([]ai.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsDeleted {
			continue
		}
		var role string
		switch m.Sender {
		case chat.SenderUser:
			role = "user"
		case chat.SenderBot, chat.SenderOperator:
			role = "assistant"
		default:
			continue
		}
		out = append(out, ai.Message{Role: role, Text: m.Body})
	}
	return out
}
