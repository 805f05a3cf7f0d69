package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/strideai/coach/plugin/ai/retry"
	"github.com/strideai/coach/plugin/ai/timeout"
)

// ErrEmbeddingUnavailable reports that the embedding provider could not be
// reached after retries. Callers degrade to non-semantic retrieval paths.
var ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

// EmbeddingService converts text into dense vectors.
//
// Embeddings from different model versions are not comparable; ModelVersion
// tags every stored vector so searches only compare like with like.
type EmbeddingService interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one request,
	// preserving input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector dimensionality.
	Dimensions() int

	// ModelVersion identifies the provider and model producing the vectors.
	ModelVersion() string
}

// openAIEmbedder implements EmbeddingService on the OpenAI embeddings API.
type openAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	policy     retry.Policy
	logger     *slog.Logger
}

var _ EmbeddingService = (*openAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedding service backed by OpenAI.
func NewOpenAIEmbedder(cfg EmbeddingConfig) (EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &openAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		policy:     retry.DefaultPolicy(),
		logger:     slog.Default().With("component", "embedding"),
	}, nil
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *openAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts to embed")
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("text at index %d is empty", i)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout.EmbeddingTimeout)
	defer cancel()

	var resp openai.EmbeddingResponse
	err := e.policy.Do(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      texts,
			Model:      openai.EmbeddingModel(e.model),
			Dimensions: e.dimensions,
		})
		return callErr
	}, isRetryableProviderError)
	if err != nil {
		e.logger.Warn("embedding request failed", "model", e.model, "texts", len(texts), "error", err)
		return nil, errors.Join(ErrEmbeddingUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response size mismatch: got %d, want %d", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding response index out of range: %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (e *openAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *openAIEmbedder) ModelVersion() string {
	return "openai/" + e.model
}

// isRetryableProviderError reports whether a provider error is transient.
// Rate limits and server errors retry; auth and bad-request errors do not.
func isRetryableProviderError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return true
		default:
			return false
		}
	}
	// Network level errors are retried.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
