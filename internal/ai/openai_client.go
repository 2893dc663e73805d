package ai

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var (
	ErrNoAPIKey      = errors.New("ai: OPENAI_API_KEY not set")
	ErrEmptyHistory  = errors.New("ai: nothing to reply to")
	ErrEmptyResponse = errors.New("ai: empty choices")
)

// maxTurns bounds the dialog sent to the model; older turns are dropped.
const maxTurns = 30

// completer is the subset of the openai client the drafter uses.
type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type OpenAIClient struct {
	client completer
	model  string
	log    *slog.Logger
}

func NewOpenAIClient(apiKey, model string, logger *slog.Logger) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
		log:    logger.With("component", "ai"),
	}, nil
}

func (c *OpenAIClient) DraftReply(ctx context.Context, history []Message) (string, error) {
	if len(history) == 0 {
		return "", ErrEmptyHistory
	}
	if len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: DraftReplyPrompt,
	})
	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Text,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
	})
	if err != nil {
		c.log.Warn("openai error", slog.Any("error", err))
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	draft := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.log.Debug("draft ready", slog.Int("turns", len(history)), slog.Int("chars", len(draft)))
	return draft, nil
}
