// Package gateway is the single retry-budgeted path to the generation model.
// It enforces the conversation-history token budget, retries transient
// failures with the shared backoff policy and surfaces terminal failures as
// typed errors.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/strideai/coach/plugin/ai/retry"
	"github.com/strideai/coach/plugin/ai/timeout"
	"github.com/strideai/coach/plugin/ai/token"
)

// Terminal gateway errors.
var (
	// ErrRateLimited means the upstream kept rejecting for rate; callers
	// back off and retry at a higher level.
	ErrRateLimited = errors.New("model rate limited")

	// ErrModelUnavailable is fatal for the turn; callers fall back to a
	// canned response.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrContextTooLarge survives one automatic re-truncation attempt.
	ErrContextTooLarge = errors.New("context too large")
)

// Message is one turn in the conversation handed upstream.
type Message struct {
	Role    string
	Content string
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatClient is the upstream model surface the gateway drives.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message, maxTokens int, temperature float32) (string, error)

	// ChatStream streams the completion, invoking onDelta per chunk and
	// returning the full concatenated content.
	ChatStream(ctx context.Context, messages []Message, maxTokens int, temperature float32, onDelta func(string)) (string, error)

	Model() string
}

// Config tunes the gateway.
type Config struct {
	// MaxContextTokens bounds system context + history + user message.
	MaxContextTokens int

	// MaxHistoryTokens bounds the conversation history alone; oldest turns
	// are dropped first when exceeded.
	MaxHistoryTokens int

	// MaxOutputTokens is passed upstream as the completion cap.
	MaxOutputTokens int

	Temperature float32

	// RequestsPerMinute throttles upstream calls. Zero disables the
	// limiter.
	RequestsPerMinute int
}

// DefaultConfig returns gateway defaults.
func DefaultConfig() Config {
	return Config{
		MaxContextTokens:  4096,
		MaxHistoryTokens:  1024,
		MaxOutputTokens:   1024,
		Temperature:       0.7,
		RequestsPerMinute: 60,
	}
}

// Request is one generation call.
type Request struct {
	// SystemContext is the assembled context bundle text.
	SystemContext string

	// History is the prior conversation, oldest first.
	History []Message

	UserMessage string
}

// GenerationResult is the gateway's answer.
type GenerationResult struct {
	Content      string
	Model        string
	PromptTokens int
	Truncated    bool
	Attempts     int
	Latency      time.Duration
}

// Gateway wraps a ChatClient with budgets, throttling and retries.
type Gateway struct {
	client  ChatClient
	config  Config
	policy  retry.Policy
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a gateway around the given client.
func New(client ChatClient, config Config) *Gateway {
	if config.MaxContextTokens <= 0 {
		config.MaxContextTokens = DefaultConfig().MaxContextTokens
	}
	if config.MaxHistoryTokens <= 0 {
		config.MaxHistoryTokens = DefaultConfig().MaxHistoryTokens
	}

	var limiter *rate.Limiter
	if config.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(config.RequestsPerMinute)/60), config.RequestsPerMinute)
	}

	return &Gateway{
		client:  client,
		config:  config,
		policy:  retry.DefaultPolicy(),
		limiter: limiter,
		logger:  slog.Default().With("component", "gateway"),
	}
}

// Generate runs one generation call. The history budget is enforced by
// dropping oldest turns first; on a context-too-large rejection the prompt is
// re-truncated once more aggressively before the error is surfaced.
func (g *Gateway) Generate(ctx context.Context, req *Request) (*GenerationResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout.GenerationTimeout)
	defer cancel()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, errors.Join(ErrRateLimited, err)
		}
	}

	history, truncated := g.truncateHistory(req.History, g.config.MaxHistoryTokens)
	messages := g.buildMessages(req, history)

	result := &GenerationResult{
		Model:     g.client.Model(),
		Truncated: truncated,
	}

	content, attempts, err := g.call(ctx, messages)
	if errors.Is(err, ErrContextTooLarge) {
		g.logger.Warn("context rejected as too large, re-truncating", "history_turns", len(history))
		messages = g.retruncate(req)
		result.Truncated = true

		var retryAttempts int
		content, retryAttempts, err = g.call(ctx, messages)
		attempts += retryAttempts
	}
	result.Attempts = attempts
	result.Latency = time.Since(start)
	if err != nil {
		return nil, err
	}

	result.Content = content
	result.PromptTokens = estimateMessages(messages)
	return result, nil
}

// GenerateStream runs one generation call in streaming mode, forwarding
// deltas to onDelta as they arrive. Budgets and throttling match Generate.
// There is no backoff retry once streaming starts; a context-too-large
// rejection is re-truncated once, but only while nothing has reached the
// caller yet.
func (g *Gateway) GenerateStream(ctx context.Context, req *Request, onDelta func(string)) (*GenerationResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout.GenerationTimeout)
	defer cancel()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, errors.Join(ErrRateLimited, err)
		}
	}

	history, truncated := g.truncateHistory(req.History, g.config.MaxHistoryTokens)
	messages := g.buildMessages(req, history)

	result := &GenerationResult{
		Model:     g.client.Model(),
		Truncated: truncated,
		Attempts:  1,
	}

	emitted := false
	forward := func(delta string) {
		emitted = true
		onDelta(delta)
	}
	content, err := g.client.ChatStream(ctx, messages, g.config.MaxOutputTokens, g.config.Temperature, forward)
	if err != nil && !emitted && errors.Is(terminalFor(err), ErrContextTooLarge) {
		g.logger.Warn("context rejected as too large, re-truncating", "history_turns", len(history))
		messages = g.retruncate(req)
		result.Truncated = true
		result.Attempts++
		content, err = g.client.ChatStream(ctx, messages, g.config.MaxOutputTokens, g.config.Temperature, forward)
	}
	result.Latency = time.Since(start)
	if err != nil {
		return nil, errors.Join(terminalFor(err), err)
	}

	result.Content = content
	result.PromptTokens = estimateMessages(messages)
	return result, nil
}

// retruncate rebuilds the prompt for the one automatic retry after a
// context-too-large rejection: half the history budget and a system context
// trimmed to half its estimated size, so the retry prompt shrinks even when
// the history is already empty.
func (g *Gateway) retruncate(req *Request) []Message {
	trimmed := &Request{
		SystemContext: trimToTokens(req.SystemContext, token.Estimate(req.SystemContext)/2),
		UserMessage:   req.UserMessage,
	}
	history, _ := g.truncateHistory(req.History, g.config.MaxHistoryTokens/2)
	return g.buildMessages(trimmed, history)
}

// trimToTokens drops trailing lines until the text fits the budget. The first
// line always survives so the opening instruction is kept.
func trimToTokens(text string, budget int) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	for len(lines) > 1 && token.EstimateAll(lines...) > budget {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// call invokes the upstream with the shared backoff policy and maps the
// exhausted error onto the typed taxonomy.
func (g *Gateway) call(ctx context.Context, messages []Message) (string, int, error) {
	var content string
	attempts := 0
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		attempts++
		var callErr error
		content, callErr = g.client.Chat(ctx, messages, g.config.MaxOutputTokens, g.config.Temperature)
		return callErr
	}, isRetryable)
	if err != nil {
		return "", attempts, errors.Join(terminalFor(err), err)
	}
	return content, attempts, nil
}

// buildMessages assembles the upstream message list: system context, history,
// then the user message, trimmed to the overall context budget by dropping
// history oldest-first.
func (g *Gateway) buildMessages(req *Request, history []Message) []Message {
	fixed := token.EstimateAll(req.SystemContext, req.UserMessage)
	historyBudget := g.config.MaxContextTokens - fixed - g.config.MaxOutputTokens
	if historyBudget < 0 {
		historyBudget = 0
	}
	history, _ = g.truncateHistory(history, historyBudget)

	messages := make([]Message, 0, len(history)+2)
	if req.SystemContext != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.SystemContext})
	}
	messages = append(messages, history...)
	messages = append(messages, Message{Role: RoleUser, Content: req.UserMessage})
	return messages
}

// truncateHistory drops the oldest turns until the history fits the budget.
func (g *Gateway) truncateHistory(history []Message, budget int) ([]Message, bool) {
	if len(history) == 0 || budget <= 0 {
		return nil, len(history) > 0
	}
	total := 0
	for _, m := range history {
		total += token.Estimate(m.Content)
	}

	dropped := false
	for len(history) > 0 && total > budget {
		total -= token.Estimate(history[0].Content)
		history = history[1:]
		dropped = true
	}
	return history, dropped
}

func estimateMessages(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += token.Estimate(m.Content)
	}
	return total
}

// isRetryable reports whether another attempt could help. Rate limits and
// server errors retry; context overflows and client errors do not.
func isRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrContextTooLarge), errors.Is(err, ErrModelUnavailable):
		return false
	case errors.Is(err, ErrRateLimited):
		return true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429, apiErr.HTTPStatusCode >= 500:
			return true
		default:
			return false
		}
	}
	// Unknown network-level errors are worth retrying.
	return true
}

// terminalFor maps the last error after exhausted retries onto the typed
// taxonomy surfaced to callers.
func terminalFor(err error) error {
	switch {
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrContextTooLarge), errors.Is(err, ErrModelUnavailable):
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return ErrRateLimited
		case apiErr.HTTPStatusCode == 400 && strings.Contains(apiErr.Message, "context_length"),
			apiErr.HTTPStatusCode == 413:
			return ErrContextTooLarge
		}
	}
	return ErrModelUnavailable
}
