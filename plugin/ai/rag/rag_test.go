package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideai/coach/plugin/ai/token"
	"github.com/strideai/coach/plugin/ai/vector"
)

type fixedEmbedder struct {
	vector []float32
	err    error
}

func (f *fixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	return f.vector, f.err
}

func (f *fixedEmbedder) ModelVersion() string {
	return "test/model-v1"
}

func source(ns, key, content string, similarity, confidence float32) vector.Source {
	return vector.Source{
		Namespace:  ns,
		Key:        key,
		Content:    content,
		Similarity: similarity,
		Metadata:   vector.Metadata{Type: vector.SourceTypeCurated, Confidence: confidence},
	}
}

func TestAssembleMergesNamespaces(t *testing.T) {
	store := &vector.MockStore{
		Results: map[string][]vector.Source{
			vector.NamespaceExercise: {
				source(vector.NamespaceExercise, "squat", "squat cue", 0.9, 0.9),
			},
			vector.NamespaceNutrition: {
				source(vector.NamespaceNutrition, "protein", "protein intake", 0.8, 0.8),
			},
		},
	}
	a := NewAssembler(&fixedEmbedder{vector: []float32{1, 0}}, store, DefaultConfig())

	result, err := a.Assemble(context.Background(), "leg day plan", []string{vector.NamespaceExercise, vector.NamespaceNutrition})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Metadata.TotalSources)
	assert.ElementsMatch(t, []string{vector.NamespaceExercise, vector.NamespaceNutrition}, result.Metadata.Namespaces)
	assert.Contains(t, result.Context, "squat cue")
	assert.Contains(t, result.Context, "protein intake")
	assert.Equal(t, "squat", result.Sources[0].Key, "higher similarity ranks first")
}

func TestAssembleNamespaceFailureDegrades(t *testing.T) {
	store := &vector.MockStore{
		Results: map[string][]vector.Source{
			vector.NamespaceExercise: {
				source(vector.NamespaceExercise, "squat", "squat cue", 0.9, 0.9),
			},
		},
		Errs: map[string]error{
			vector.NamespaceResearch: vector.ErrNamespaceTimeout,
		},
	}
	a := NewAssembler(&fixedEmbedder{vector: []float32{1, 0}}, store, DefaultConfig())

	result, err := a.Assemble(context.Background(), "plateau advice", []string{vector.NamespaceExercise, vector.NamespaceResearch})
	require.NoError(t, err, "a failed namespace must not fail the call")
	assert.NotContains(t, result.Metadata.Namespaces, vector.NamespaceResearch)
	assert.Contains(t, result.Metadata.Degraded, vector.NamespaceResearch)
	assert.Equal(t, 1, result.Metadata.TotalSources)
	assert.InDelta(t, 0.9, float64(result.Metadata.Confidence), 1e-6)
}

func TestAssembleEmbeddingFailureReturnsEmptyContext(t *testing.T) {
	store := &vector.MockStore{}
	a := NewAssembler(&fixedEmbedder{err: errors.New("provider down")}, store, DefaultConfig())

	result, err := a.Assemble(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.Empty(t, result.Context)
	assert.Contains(t, result.Metadata.Degraded, "embedding")
	assert.Empty(t, store.Queried, "no namespace queries without a query vector")
}

func TestAssembleTokenBudgetNeverExceeded(t *testing.T) {
	long := strings.Repeat("progressive overload principles explained in depth ", 20)
	sources := make([]vector.Source, 0, 12)
	for i := 0; i < 12; i++ {
		sources = append(sources, source(vector.NamespaceGeneral, fmt.Sprintf("doc-%d", i), long, 0.9, float32(i)*0.05+0.3))
	}
	store := &vector.MockStore{
		Results: map[string][]vector.Source{vector.NamespaceGeneral: sources},
	}

	cfg := DefaultConfig()
	cfg.TokenBudget = 300
	cfg.TopKPerNamespace = 12
	a := NewAssembler(&fixedEmbedder{vector: []float32{1, 0}}, store, cfg)

	result, err := a.Assemble(context.Background(), "overload", []string{vector.NamespaceGeneral})
	require.NoError(t, err)
	assert.LessOrEqual(t, token.Estimate(result.Context), cfg.TokenBudget)
	assert.Less(t, result.Metadata.TotalSources, 12, "some sources must be dropped")

	// The survivors are the higher-confidence sources.
	for _, s := range result.Sources {
		assert.GreaterOrEqual(t, s.Metadata.Confidence, float32(0.3))
	}
}

func TestRankAppliesSourceTypeWeights(t *testing.T) {
	generated := source(vector.NamespaceGeneral, "generated", "generated text", 0.95, 0.9)
	generated.Metadata.Type = vector.SourceTypeGenerated
	curated := source(vector.NamespaceGeneral, "curated", "curated text", 0.85, 0.9)

	store := &vector.MockStore{
		Results: map[string][]vector.Source{
			vector.NamespaceGeneral: {generated, curated},
		},
	}
	a := NewAssembler(&fixedEmbedder{vector: []float32{1, 0}}, store, DefaultConfig())

	result, err := a.Assemble(context.Background(), "q", []string{vector.NamespaceGeneral})
	require.NoError(t, err)
	require.Len(t, result.Sources, 2)
	// 0.85 * 1.0 beats 0.95 * 0.7.
	assert.Equal(t, "curated", result.Sources[0].Key)
}

func TestWeightedConfidence(t *testing.T) {
	sources := []vector.Source{
		source(vector.NamespaceGeneral, "a", "", 1.0, 1.0),
		source(vector.NamespaceGeneral, "b", "", 0.5, 0.4),
	}
	got := weightedConfidence(sources)
	// (1.0*1.0 + 0.5*0.4) / 1.5 = 0.8
	assert.InDelta(t, 0.8, float64(got), 1e-6)

	assert.Zero(t, weightedConfidence(nil))
}
