package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedderDeterminism(t *testing.T) {
	embedder := NewMockEmbedder(64)
	ctx := context.Background()

	a1, err := embedder.Embed(ctx, "bench press 3 sets of 8")
	require.NoError(t, err)
	a2, err := embedder.Embed(ctx, "bench press 3 sets of 8")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Len(t, a1, 64)
}

func TestMockEmbedderSimilarity(t *testing.T) {
	embedder := NewMockEmbedder(64)
	ctx := context.Background()

	squat, err := embedder.Embed(ctx, "barbell squat depth form")
	require.NoError(t, err)
	squatVariant, err := embedder.Embed(ctx, "barbell squat warmup form")
	require.NoError(t, err)
	unrelated, err := embedder.Embed(ctx, "quinoa protein lunch recipe")
	require.NoError(t, err)

	related := dot(squat, squatVariant)
	distant := dot(squat, unrelated)
	assert.Greater(t, related, distant, "overlapping texts should be closer than unrelated texts")
}

func TestMockEmbedderBatchOrder(t *testing.T) {
	embedder := NewMockEmbedder(32)
	texts := []string{"first text", "second text", "third text"}

	batch, err := embedder.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, text := range texts {
		single, err := embedder.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("DisabledSkipsChecks", func(t *testing.T) {
		cfg := &Config{Enabled: false}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("MissingAPIKey", func(t *testing.T) {
		cfg := &Config{
			Enabled:          true,
			Embedding:        EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-small", Dimensions: 1536},
			LLM:              LLMConfig{Provider: "openai"},
			MaxContextTokens: 4096,
		}
		assert.Error(t, cfg.Validate())
	})

	t.Run("Complete", func(t *testing.T) {
		cfg := &Config{
			Enabled: true,
			Embedding: EmbeddingConfig{
				Provider: "openai", Model: "text-embedding-3-small", Dimensions: 1536, APIKey: "sk-test",
			},
			LLM:              LLMConfig{Provider: "openai", Model: "gpt-4o-mini", APIKey: "sk-test"},
			MaxContextTokens: 4096,
		}
		assert.NoError(t, cfg.Validate())
	})
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
