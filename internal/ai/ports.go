package ai

import "context"

// Drafter suggests an operator reply for a conversation. It knows nothing
// about the console or the backend.
type Drafter interface {
	DraftReply(ctx context.Context, history []Message) (string, error)
}

// Message is the provider-neutral dialog turn.
type Message struct {
	Role string // "user" | "assistant" | "system"
	Text string
}
