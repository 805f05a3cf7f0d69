package vector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideai/coach/internal/profile"
	"github.com/strideai/coach/store"
)

func newTestStore() Store {
	return NewMemoryStore("test/model-v1", 3)
}

func TestUpsertValidation(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	err := s.Upsert(ctx, Record{Namespace: "bogus", Key: "k", Vector: []float32{1, 0, 0}})
	assert.ErrorIs(t, err, ErrUnknownNamespace)

	err = s.Upsert(ctx, Record{Namespace: NamespaceExercise, Key: "k", Vector: []float32{1, 0}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSelfQueryReturnsTopOne(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	v := []float32{0.6, 0.8, 0}
	require.NoError(t, s.Upsert(ctx, Record{
		Namespace: NamespaceExercise,
		Key:       "squat-form",
		Vector:    v,
		Content:   "keep the bar over midfoot",
		Metadata:  Metadata{Type: SourceTypeCurated, Confidence: 0.9},
	}))
	require.NoError(t, s.Upsert(ctx, Record{
		Namespace: NamespaceExercise,
		Key:       "bench-form",
		Vector:    []float32{0, 0.2, 0.98},
		Content:   "retract the shoulder blades",
		Metadata:  Metadata{Type: SourceTypeCurated, Confidence: 0.9},
	}))

	sources, err := s.Query(ctx, NamespaceExercise, v, QueryOptions{TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, sources)
	assert.Equal(t, "squat-form", sources[0].Key)
	assert.InDelta(t, 1.0, float64(sources[0].Similarity), 1e-5)
}

func TestNamespaceIsolation(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	v := []float32{1, 0, 0}
	require.NoError(t, s.Upsert(ctx, Record{
		Namespace: NamespaceResearch,
		Key:       "study-1",
		Vector:    v,
		Content:   "protein timing meta-analysis",
		Metadata:  Metadata{Type: SourceTypeCurated, Confidence: 1},
	}))

	sources, err := s.Query(ctx, NamespaceNutrition, v, QueryOptions{TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, sources, "nutrition query must never surface research content")
}

func TestQueryFilters(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	v := []float32{1, 0, 0}

	require.NoError(t, s.Upsert(ctx, Record{
		Namespace: NamespaceGeneral, Key: "low-conf", Vector: v,
		Metadata: Metadata{Type: SourceTypeGenerated, Confidence: 0.2},
	}))
	require.NoError(t, s.Upsert(ctx, Record{
		Namespace: NamespaceGeneral, Key: "curated", Vector: v,
		Metadata: Metadata{Type: SourceTypeCurated, Confidence: 0.9},
	}))
	require.NoError(t, s.Upsert(ctx, Record{
		Namespace: NamespaceGeneral, Key: "user", Vector: v,
		Metadata: Metadata{Type: SourceTypeUser, Confidence: 0.8},
	}))

	t.Run("MinConfidence", func(t *testing.T) {
		sources, err := s.Query(ctx, NamespaceGeneral, v, QueryOptions{TopK: 5, MinConfidence: 0.5})
		require.NoError(t, err)
		for _, src := range sources {
			assert.GreaterOrEqual(t, src.Metadata.Confidence, float32(0.5))
		}
		assert.Len(t, sources, 2)
	})

	t.Run("SourceType", func(t *testing.T) {
		sources, err := s.Query(ctx, NamespaceGeneral, v, QueryOptions{TopK: 5, SourceType: SourceTypeUser})
		require.NoError(t, err)
		require.Len(t, sources, 1)
		assert.Equal(t, "user", sources[0].Key)
	})
}

func TestTieBreaks(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	v := []float32{1, 0, 0}
	now := time.Now().Unix()

	t.Run("NewerWinsAtEqualSimilarity", func(t *testing.T) {
		require.NoError(t, s.Upsert(ctx, Record{
			Namespace: NamespaceWorkout, Key: "old", Vector: v,
			Metadata: Metadata{Type: SourceTypeCurated, Confidence: 1, LastUpdated: now - 3600},
		}))
		require.NoError(t, s.Upsert(ctx, Record{
			Namespace: NamespaceWorkout, Key: "new", Vector: v,
			Metadata: Metadata{Type: SourceTypeCurated, Confidence: 1, LastUpdated: now},
		}))

		sources, err := s.Query(ctx, NamespaceWorkout, v, QueryOptions{TopK: 2})
		require.NoError(t, err)
		require.Len(t, sources, 2)
		assert.Equal(t, "new", sources[0].Key)
	})

	t.Run("TypePriorityBreaksRemainingTie", func(t *testing.T) {
		require.NoError(t, s.Upsert(ctx, Record{
			Namespace: NamespaceNutrition, Key: "generated", Vector: v,
			Metadata: Metadata{Type: SourceTypeGenerated, Confidence: 1, LastUpdated: now},
		}))
		require.NoError(t, s.Upsert(ctx, Record{
			Namespace: NamespaceNutrition, Key: "curated", Vector: v,
			Metadata: Metadata{Type: SourceTypeCurated, Confidence: 1, LastUpdated: now},
		}))

		sources, err := s.Query(ctx, NamespaceNutrition, v, QueryOptions{TopK: 2})
		require.NoError(t, err)
		require.Len(t, sources, 2)
		assert.Equal(t, "curated", sources[0].Key)
	})
}

func TestTopKLimit(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Upsert(ctx, Record{
			Namespace: NamespaceExercise,
			Key:       fmt.Sprintf("doc-%d", i),
			Vector:    []float32{1, float32(i) * 0.01, 0},
			Metadata:  Metadata{Type: SourceTypeCurated, Confidence: 1},
		}))
	}

	sources, err := s.Query(ctx, NamespaceExercise, []float32{1, 0, 0}, QueryOptions{TopK: 3})
	require.NoError(t, err)
	assert.Len(t, sources, 3)
}

func TestQueryCancelledContext(t *testing.T) {
	s := newTestStore()
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := s.Query(ctx, NamespaceExercise, []float32{1, 0, 0}, QueryOptions{TopK: 1})
	assert.ErrorIs(t, err, ErrNamespaceTimeout)
}

func TestReindexNamespace(t *testing.T) {
	s := NewMemoryStore("test/model-v1", 3)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, Record{
		Namespace: NamespaceGeneral, Key: "doc", Vector: []float32{1, 0, 0},
		Content:  "hydration guidance",
		Metadata: Metadata{Type: SourceTypeCurated, Confidence: 1},
	}))

	embedder := &stubEmbedder{version: "test/model-v2", vector: []float32{0, 1, 0}}
	migrated, err := s.ReindexNamespace(ctx, NamespaceGeneral, embedder)
	require.NoError(t, err)
	assert.Equal(t, 1, migrated)

	// Queries now compare against the re-embedded vectors.
	sources, err := s.Query(ctx, NamespaceGeneral, []float32{0, 1, 0}, QueryOptions{TopK: 1})
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.InDelta(t, 1.0, float64(sources[0].Similarity), 1e-5)
}

func TestDBStoreReindexIsIdempotent(t *testing.T) {
	st := store.New(store.NewMockDriver(), &profile.Profile{Mode: "dev", Version: "test"})
	s := NewDBStore(st, "test/model-v1", 3)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, Record{
		Namespace: NamespaceGeneral, Key: "doc", Vector: []float32{1, 0, 0},
		Content:  "hydration guidance",
		Metadata: Metadata{Type: SourceTypeCurated, Confidence: 1},
	}))

	embedder := &stubEmbedder{version: "test/model-v2", vector: []float32{0, 1, 0}}
	migrated, err := s.ReindexNamespace(ctx, NamespaceGeneral, embedder)
	require.NoError(t, err)
	assert.Equal(t, 1, migrated)

	// The old-version row is gone, so a second pass has nothing to migrate
	// and never calls the embedder again.
	migrated, err = s.ReindexNamespace(ctx, NamespaceGeneral, embedder)
	require.NoError(t, err)
	assert.Zero(t, migrated)
	assert.Equal(t, 1, embedder.calls)

	namespace := NamespaceGeneral
	rows, err := st.ListKnowledgeEmbeddings(ctx, &store.FindKnowledgeEmbedding{Namespace: &namespace})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "test/model-v2", rows[0].ModelVersion)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, float64(CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3})), 1e-6)
	assert.InDelta(t, 0.0, float64(CosineSimilarity([]float32{1, 0}, []float32{0, 1})), 1e-6)
	assert.InDelta(t, -1.0, float64(CosineSimilarity([]float32{1, 0}, []float32{-1, 0})), 1e-6)
	assert.Zero(t, CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}

type stubEmbedder struct {
	version string
	vector  []float32
	calls   int
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	s.calls++
	return s.vector, nil
}

func (s *stubEmbedder) ModelVersion() string {
	return s.version
}
