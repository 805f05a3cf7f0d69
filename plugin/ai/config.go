// Package ai provides the context-assembly and personalization backbone of
// the coach: embeddings, vector retrieval, RAG, typed memory, personalization,
// insights and the model gateway.
package ai

import (
	"errors"

	"github.com/strideai/coach/internal/profile"
)

// EmbeddingConfig holds configuration for the embedding provider.
type EmbeddingConfig struct {
	Provider   string
	Model      string
	Dimensions int
	APIKey     string
	BaseURL    string
}

// LLMConfig holds configuration for the chat model provider.
type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float32
}

// Config aggregates all AI subsystem configuration.
type Config struct {
	Enabled   bool
	Embedding EmbeddingConfig
	LLM       LLMConfig

	// MaxContextTokens is the total token budget for one assembled turn.
	MaxContextTokens int

	// MemoryCapacity caps stored memory items per user.
	MemoryCapacity int
}

// NewConfigFromProfile builds the AI config from the runtime profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	return &Config{
		Enabled: p.IsAIEnabled(),
		Embedding: EmbeddingConfig{
			Provider:   p.AIEmbeddingProvider,
			Model:      p.AIEmbeddingModel,
			Dimensions: p.AIEmbeddingDims,
			APIKey:     p.AIOpenAIAPIKey,
			BaseURL:    p.AIOpenAIBaseURL,
		},
		LLM: LLMConfig{
			Provider:    p.AILLMProvider,
			Model:       p.AILLMModel,
			APIKey:      p.AIOpenAIAPIKey,
			BaseURL:     p.AIOpenAIBaseURL,
			MaxTokens:   1024,
			Temperature: p.AITemperature,
		},
		MaxContextTokens: p.AIMaxContextTokens,
		MemoryCapacity:   500,
	}
}

// Validate checks that an enabled config is complete enough to start.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		return errors.New("embedding api key is required")
	}
	if c.Embedding.Model == "" {
		return errors.New("embedding model is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return errors.New("embedding dimensions must be positive")
	}
	if c.LLM.Provider == "openai" && c.LLM.APIKey == "" {
		return errors.New("llm api key is required")
	}
	if c.MaxContextTokens <= 0 {
		return errors.New("max context tokens must be positive")
	}
	return nil
}
