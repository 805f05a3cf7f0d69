package memory

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

func newTestStore(t *testing.T, capacity int) (*Store, *store.Store) {
	t.Helper()
	st := store.New(store.NewMockDriver(), &profile.Profile{Mode: "dev", Driver: "sqlite"})
	t.Cleanup(func() { _ = st.Close() })
	return New(st, Config{Capacity: capacity}), st
}

func TestStoreItemValidation(t *testing.T) {
	s, _ := newTestStore(t, 10)
	ctx := context.Background()

	_, err := s.StoreItem(ctx, 1, store.MemoryTypeGoal, "", 0, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidItem)

	_, err = s.StoreItem(ctx, 1, store.MemoryItemType("daydream"), "content", 0, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestStoreThenRetrieveRoundTrip(t *testing.T) {
	s, _ := newTestStore(t, 10)
	ctx := context.Background()

	item, err := s.StoreItem(ctx, 1, store.MemoryTypeGoal, "run a sub-50 10k", 0, []string{"running"}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, item.ID)

	items, err := s.Retrieve(ctx, 1, "", 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, item.ID, items[0].ID)
	assert.Equal(t, "run a sub-50 10k", items[0].Content)
}

func TestRetrieveRanksAchievementAboveFeedback(t *testing.T) {
	s, st := newTestStore(t, 10)
	ctx := context.Background()
	now := time.Now().Unix()

	// Identical last-accessed timestamps; type weight decides the order.
	for _, tc := range []struct {
		id       string
		itemType store.MemoryItemType
	}{
		{"feedback-item", store.MemoryTypeFeedback},
		{"achievement-item", store.MemoryTypeAchievement},
	} {
		_, err := st.CreateMemoryItem(ctx, &store.MemoryItem{
			ID:             tc.id,
			UserID:         1,
			Type:           tc.itemType,
			Content:        string(tc.itemType) + " content",
			Importance:     typeWeights[tc.itemType],
			CreatedTs:      now,
			LastAccessedTs: now,
		})
		require.NoError(t, err)
	}

	items, err := s.Retrieve(ctx, 1, "", 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "achievement-item", items[0].ID)
	assert.Equal(t, "feedback-item", items[1].ID)
}

func TestCapacityEviction(t *testing.T) {
	const capacity = 5
	s, _ := newTestStore(t, capacity)
	ctx := context.Background()

	// A low-importance item that should be the eviction victim.
	victim, err := s.StoreItem(ctx, 1, store.MemoryTypeFeedback, "session felt okay", -1, nil, nil)
	require.NoError(t, err)

	for i := 0; i < capacity+3; i++ {
		_, err := s.StoreItem(ctx, 1, store.MemoryTypeGoal, fmt.Sprintf("goal %d", i), 0, nil, nil)
		require.NoError(t, err)
	}

	count, err := s.store.CountMemoryItems(ctx, 1)
	require.NoError(t, err)
	assert.LessOrEqual(t, count, capacity)

	items, err := s.Retrieve(ctx, 1, "", capacity+5)
	require.NoError(t, err)
	for _, item := range items {
		assert.NotEqual(t, victim.ID, item.ID, "lowest-score item must be evicted first")
	}
}

func TestEvictionIsPerUser(t *testing.T) {
	s, _ := newTestStore(t, 2)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := s.StoreItem(ctx, 1, store.MemoryTypeGoal, fmt.Sprintf("u1 goal %d", i), 0, nil, nil)
		require.NoError(t, err)
	}
	_, err := s.StoreItem(ctx, 2, store.MemoryTypeGoal, "u2 goal", 0, nil, nil)
	require.NoError(t, err)

	items, err := s.Retrieve(ctx, 2, "", 10)
	require.NoError(t, err)
	assert.Len(t, items, 1, "another user's eviction must not touch this user")
}

func TestRetrieveUpdatesLastAccessed(t *testing.T) {
	s, st := newTestStore(t, 10)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour).Unix()

	_, err := st.CreateMemoryItem(ctx, &store.MemoryItem{
		ID:             "stale",
		UserID:         1,
		Type:           store.MemoryTypeGoal,
		Content:        "deadlift 150kg",
		Importance:     0.8,
		CreatedTs:      old,
		LastAccessedTs: old,
	})
	require.NoError(t, err)

	_, err = s.Retrieve(ctx, 1, "", 5)
	require.NoError(t, err)

	listed, err := st.ListMemoryItems(ctx, &store.FindMemoryItem{UserID: int32Ptr(1)})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Greater(t, listed[0].LastAccessedTs, old)
}

func TestSimilarityRerank(t *testing.T) {
	st := store.New(store.NewMockDriver(), &profile.Profile{Mode: "dev", Driver: "sqlite"})
	t.Cleanup(func() { _ = st.Close() })
	s := New(st, Config{Capacity: 10, Embedder: &axisEmbedder{}})
	ctx := context.Background()
	now := time.Now().Unix()

	for _, item := range []*store.MemoryItem{
		{ID: "running", UserID: 1, Type: store.MemoryTypeGoal, Content: "running", Importance: 0.8, CreatedTs: now, LastAccessedTs: now},
		{ID: "lifting", UserID: 1, Type: store.MemoryTypeGoal, Content: "lifting", Importance: 0.8, CreatedTs: now, LastAccessedTs: now},
	} {
		_, err := st.CreateMemoryItem(ctx, item)
		require.NoError(t, err)
	}

	items, err := s.Retrieve(ctx, 1, "running", 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "running", items[0].ID, "query-similar memory ranks first")
}

func TestRecencyFactor(t *testing.T) {
	now := time.Now()
	fresh := recencyFactor(now, now.Unix())
	monthOld := recencyFactor(now, now.Add(-recencyHalfLife).Unix())
	ancient := recencyFactor(now, now.Add(-4*recencyHalfLife).Unix())

	assert.InDelta(t, 1.0, float64(fresh), 1e-6)
	assert.InDelta(t, 0.5, float64(monthOld), 0.01)
	assert.Greater(t, monthOld, ancient)
	assert.Greater(t, ancient, float32(0))
}

// axisEmbedder maps known words onto orthogonal axes.
type axisEmbedder struct{}

func (axisEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	switch text {
	case "running":
		return []float32{1, 0}, nil
	case "lifting":
		return []float32{0, 1}, nil
	default:
		return []float32{0.7, 0.7}, nil
	}
}

func int32Ptr(v int32) *int32 { return &v }
