package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sender is a closed set: user, bot or operator. The zero value is invalid.
type Sender uint8

const (
	SenderUser Sender = iota + 1
	SenderBot
	SenderOperator
)

func (s Sender) String() string {
	switch s {
	case SenderUser:
		return "user"
	case SenderBot:
		return "bot"
	case SenderOperator:
		return "operator"
	default:
		return fmt.Sprintf("Sender(%d)", uint8(s))
	}
}

func ParseSender(v string) (Sender, error) {
	switch v {
	case "user":
		return SenderUser, nil
	case "bot":
		return SenderBot, nil
	case "operator", "admin":
		return SenderOperator, nil
	default:
		return 0, fmt.Errorf("chat: unknown sender %q", v)
	}
}

func (s Sender) MarshalText() ([]byte, error) {
	switch s {
	case SenderUser, SenderBot, SenderOperator:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("chat: invalid sender %d", uint8(s))
	}
}

func (s *Sender) UnmarshalText(b []byte) error {
	v, err := ParseSender(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ErrNoSender marks a message that arrived without a sender.
var ErrNoSender = errors.New("chat: message without sender")

// Validate reports whether m can be shown and re-encoded.
func (m Message) Validate() error {
	if m.Sender == 0 {
		return ErrNoSender
	}
	_, err := m.Sender.MarshalText()
	return err
}

// DecodeMessage decodes one message. When only the sender is bad, the
// returned message still carries the other fields (with a zero Sender)
// alongside the error, so callers can keep counting the activity.
func DecodeMessage(data []byte) (Message, error) {
	var raw struct {
		ID        string    `json:"id"`
		SessionID string    `json:"sessionId"`
		Sender    string    `json:"sender"`
		Body      string    `json:"body"`
		IsRead    bool      `json:"isRead"`
		IsDeleted bool      `json:"isDeleted"`
		CreatedAt time.Time `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Message{}, err
	}
	m := Message{
		ID:        raw.ID,
		SessionID: raw.SessionID,
		Body:      raw.Body,
		IsRead:    raw.IsRead,
		IsDeleted: raw.IsDeleted,
		CreatedAt: raw.CreatedAt,
	}
	if raw.Sender == "" {
		return m, ErrNoSender
	}
	s, err := ParseSender(raw.Sender)
	if err != nil {
		return m, err
	}
	m.Sender = s
	return m, nil
}
