package ai

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single turn in a model conversation.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatOptions tunes a single chat completion call.
type ChatOptions struct {
	MaxTokens   int
	Temperature float32
}

// LLMService generates chat completions. The model gateway wraps it with
// retries, rate limiting and history truncation; callers outside the gateway
// should not use it directly.
type LLMService interface {
	// Chat generates a completion for the given conversation.
	Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (string, error)

	// ChatStream streams a completion, invoking onDelta for each chunk.
	ChatStream(ctx context.Context, messages []ChatMessage, opts ChatOptions, onDelta func(string)) (string, error)

	// Model returns the configured model identifier.
	Model() string
}

type openAIChat struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

var _ LLMService = (*openAIChat)(nil)

// NewOpenAIChat creates an LLM service backed by the OpenAI chat API.
func NewOpenAIChat(cfg LLMConfig) (LLMService, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &openAIChat{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: slog.Default().With("component", "llm"),
	}, nil
}

func (c *openAIChat) Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(messages, opts, false))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *openAIChat) ChatStream(ctx context.Context, messages []ChatMessage, opts ChatOptions, onDelta func(string)) (string, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(messages, opts, true))
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var full string
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return full, err
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full += delta
		if onDelta != nil {
			onDelta(delta)
		}
	}
	return full, nil
}

func (c *openAIChat) Model() string {
	return c.model
}

func (c *openAIChat) buildRequest(messages []ChatMessage, opts ChatOptions, stream bool) openai.ChatCompletionRequest {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		converted = append(converted, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    converted,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      stream,
	}
}
