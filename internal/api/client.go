// Package api is the REST client for the admin chat backend.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Vovarama1992/chatra-operator-console/internal/chat"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("admin api error: %d %s body=%s", e.Code, http.StatusText(e.Code), e.Body)
}

type Client struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
	log     *slog.Logger
}

func NewClient(baseURL string, tokens TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     logger.With("component", "api"),
	}
}

var _ chat.API = (*Client)(nil)

func (c *Client) ListSessions(ctx context.Context) ([]chat.Session, error) {
	var out []chat.Session
	if err := c.do(ctx, http.MethodGet, "/chat/sessions", &out); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// History returns the session's messages in server order. Entries that do
// not decode into a valid message are logged and skipped.
func (c *Client) History(ctx context.Context, sessionID string) ([]chat.Message, error) {
	var raw []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/chat/history/"+url.PathEscape(sessionID), &raw); err != nil {
		return nil, fmt.Errorf("history %s: %w", sessionID, err)
	}

	out := make([]chat.Message, 0, len(raw))
	for i, r := range raw {
		m, err := chat.DecodeMessage(r)
		if err != nil {
			c.log.Warn("history entry skipped",
				slog.String("session_id", sessionID),
				slog.Int("index", i),
				slog.String("message_id", m.ID),
				slog.Any("error", err),
			)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if err := c.do(ctx, http.MethodDelete, "/chat/sessions/"+url.PathEscape(sessionID), nil); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	token, err := c.tokens.Token()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		c.log.Warn("request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
