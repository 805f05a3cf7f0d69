// Package memory implements the typed, decaying per-user memory store.
// Items carry a type-weighted importance and are ranked at retrieval time by
// importance scaled with recency; each user has a capacity cap enforced by
// lowest-score eviction.
package memory

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strideai/coach/plugin/ai/vector"
	"github.com/strideai/coach/store"
)

// typeWeights assigns base importance by memory type. Injuries and
// achievements outrank transient feedback.
var typeWeights = map[store.MemoryItemType]float32{
	store.MemoryTypeInjury:      0.95,
	store.MemoryTypeAchievement: 0.85,
	store.MemoryTypeGoal:        0.80,
	store.MemoryTypeMilestone:   0.75,
	store.MemoryTypePreference:  0.65,
	store.MemoryTypeLearning:    0.55,
	store.MemoryTypePattern:     0.50,
	store.MemoryTypeFeedback:    0.35,
}

// recencyHalfLife is the age at which the recency factor halves.
const recencyHalfLife = 30 * 24 * time.Hour

// ErrInvalidItem reports a store call with a missing type or content.
var ErrInvalidItem = errors.New("invalid memory item")

// Embedder is the optional similarity re-ranker dependency.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config tunes the memory store.
type Config struct {
	// Capacity caps items per user; inserting beyond it evicts the lowest
	// importance x recency item first.
	Capacity int

	// Embedder, when set, re-ranks retrieval results by similarity to the
	// query. Retrieval degrades to importance x recency when it fails.
	Embedder Embedder
}

// Store is the per-user coaching memory.
type Store struct {
	store  *store.Store
	config Config
	logger *slog.Logger

	// userLocks serializes writes per user to avoid lost updates from
	// concurrent turns. Reads do not take these locks.
	mu        sync.Mutex
	userLocks map[int32]*sync.Mutex

	now func() time.Time
}

// New creates a memory store backed by the durable store.
func New(st *store.Store, config Config) *Store {
	if config.Capacity <= 0 {
		config.Capacity = 500
	}
	return &Store{
		store:     st,
		config:    config,
		logger:    slog.Default().With("component", "memory"),
		userLocks: make(map[int32]*sync.Mutex),
		now:       time.Now,
	}
}

// Item is a stored memory with its current retrieval score.
type Item struct {
	*store.MemoryItem
	Score float32
}

// StoreItem persists a new memory for the user. Importance defaults to the
// type weight, optionally adjusted by signal in [-1, 1].
func (s *Store) StoreItem(ctx context.Context, userID int32, itemType store.MemoryItemType, content string, signal float32, tags []string, metadata map[string]string) (*store.MemoryItem, error) {
	if content == "" {
		return nil, ErrInvalidItem
	}
	weight, ok := typeWeights[itemType]
	if !ok {
		return nil, ErrInvalidItem
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	now := s.now().Unix()
	item := &store.MemoryItem{
		ID:             uuid.NewString(),
		UserID:         userID,
		Type:           itemType,
		Content:        content,
		Importance:     clamp01(weight + signal*0.2),
		Tags:           tags,
		Metadata:       metadata,
		CreatedTs:      now,
		LastAccessedTs: now,
	}

	if err := s.evictIfFull(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.CreateMemoryItem(ctx, item)
}

// Retrieve returns the user's top-N memories ranked by importance scaled with
// recency. When a query and an embedder are available, results are re-ranked
// by blending in similarity to the query. Returned items have their
// last-accessed timestamp refreshed.
func (s *Store) Retrieve(ctx context.Context, userID int32, query string, topN int) ([]*Item, error) {
	if topN <= 0 {
		topN = 10
	}

	items, err := s.store.ListMemoryItems(ctx, &store.FindMemoryItem{UserID: &userID})
	if err != nil {
		return nil, err
	}

	now := s.now()
	scored := make([]*Item, 0, len(items))
	for _, item := range items {
		scored = append(scored, &Item{
			MemoryItem: item,
			Score:      item.Importance * recencyFactor(now, item.LastAccessedTs),
		})
	}

	if query != "" && s.config.Embedder != nil {
		s.rerankBySimilarity(ctx, query, scored)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topN {
		scored = scored[:topN]
	}

	s.touch(ctx, userID, scored)
	return scored, nil
}

// rerankBySimilarity blends embedding similarity into the scores. Failures
// leave the importance x recency ordering intact.
func (s *Store) rerankBySimilarity(ctx context.Context, query string, items []*Item) {
	queryVec, err := s.config.Embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("similarity rerank skipped", "error", err)
		return
	}
	for _, item := range items {
		vec, err := s.config.Embedder.Embed(ctx, item.Content)
		if err != nil {
			continue
		}
		similarity := vector.CosineSimilarity(queryVec, vec)
		if similarity < 0 {
			similarity = 0
		}
		item.Score = item.Score * (0.5 + 0.5*similarity)
	}
}

// touch refreshes last-accessed on retrieved items.
func (s *Store) touch(ctx context.Context, userID int32, items []*Item) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	now := s.now().Unix()
	for _, item := range items {
		ts := now
		if err := s.store.UpdateMemoryItem(ctx, &store.UpdateMemoryItem{
			ID:             item.ID,
			UserID:         userID,
			LastAccessedTs: &ts,
		}); err != nil {
			s.logger.Warn("failed to refresh memory access time", "user_id", userID, "id", item.ID, "error", err)
			continue
		}
		item.LastAccessedTs = now
	}
}

// evictIfFull removes the lowest importance x recency items until one slot is
// free. Caller holds the user lock.
func (s *Store) evictIfFull(ctx context.Context, userID int32) error {
	count, err := s.store.CountMemoryItems(ctx, userID)
	if err != nil {
		return err
	}
	if count < s.config.Capacity {
		return nil
	}

	items, err := s.store.ListMemoryItems(ctx, &store.FindMemoryItem{UserID: &userID})
	if err != nil {
		return err
	}

	now := s.now()
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Importance*recencyFactor(now, items[i].LastAccessedTs) <
			items[j].Importance*recencyFactor(now, items[j].LastAccessedTs)
	})

	toEvict := count - s.config.Capacity + 1
	for i := 0; i < toEvict && i < len(items); i++ {
		if err := s.store.DeleteMemoryItem(ctx, &store.DeleteMemoryItem{ID: &items[i].ID, UserID: &userID}); err != nil {
			return err
		}
		s.logger.Debug("evicted memory item", "user_id", userID, "id", items[i].ID, "type", items[i].Type)
	}
	return nil
}

// Delete removes one memory item.
func (s *Store) Delete(ctx context.Context, userID int32, id string) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return s.store.DeleteMemoryItem(ctx, &store.DeleteMemoryItem{ID: &id, UserID: &userID})
}

func (s *Store) userLock(userID int32) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}

// recencyFactor decays monotonically with age since last access, halving
// every recencyHalfLife.
func recencyFactor(now time.Time, lastAccessedTs int64) float32 {
	age := now.Sub(time.Unix(lastAccessedTs, 0))
	if age <= 0 {
		return 1
	}
	return float32(math.Pow(0.5, age.Hours()/recencyHalfLife.Hours()))
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
