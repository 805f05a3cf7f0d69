package store

import (
	"context"
	"fmt"
	"time"

	"github.com/strideai/coach/internal/profile"
	"github.com/strideai/coach/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// Caches
	profileCache *cache.Cache // cache for coach profiles
	reviewCache  *cache.Cache // cache for weekly reviews
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
	}

	return &Store{
		driver:       driver,
		profile:      profile,
		profileCache: cache.New(cacheConfig),
		reviewCache:  cache.New(cacheConfig),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	s.profileCache.Close()
	s.reviewCache.Close()
	return s.driver.Close()
}

// ========== Knowledge embeddings ==========

func (s *Store) UpsertKnowledgeEmbedding(ctx context.Context, upsert *KnowledgeEmbedding) (*KnowledgeEmbedding, error) {
	return s.driver.UpsertKnowledgeEmbedding(ctx, upsert)
}

func (s *Store) ListKnowledgeEmbeddings(ctx context.Context, find *FindKnowledgeEmbedding) ([]*KnowledgeEmbedding, error) {
	return s.driver.ListKnowledgeEmbeddings(ctx, find)
}

func (s *Store) DeleteKnowledgeEmbedding(ctx context.Context, delete *DeleteKnowledgeEmbedding) error {
	return s.driver.DeleteKnowledgeEmbedding(ctx, delete)
}

func (s *Store) SearchKnowledgeEmbeddings(ctx context.Context, opts *VectorSearchOptions) ([]*KnowledgeMatch, error) {
	return s.driver.SearchKnowledgeEmbeddings(ctx, opts)
}

// ========== Memory items ==========

func (s *Store) CreateMemoryItem(ctx context.Context, create *MemoryItem) (*MemoryItem, error) {
	return s.driver.CreateMemoryItem(ctx, create)
}

func (s *Store) ListMemoryItems(ctx context.Context, find *FindMemoryItem) ([]*MemoryItem, error) {
	return s.driver.ListMemoryItems(ctx, find)
}

func (s *Store) UpdateMemoryItem(ctx context.Context, update *UpdateMemoryItem) error {
	return s.driver.UpdateMemoryItem(ctx, update)
}

func (s *Store) DeleteMemoryItem(ctx context.Context, delete *DeleteMemoryItem) error {
	return s.driver.DeleteMemoryItem(ctx, delete)
}

func (s *Store) CountMemoryItems(ctx context.Context, userID int32) (int, error) {
	return s.driver.CountMemoryItems(ctx, userID)
}

// ========== Coach profiles ==========

func (s *Store) GetCoachProfile(ctx context.Context, find *FindCoachProfile) (*CoachProfile, error) {
	if find.UserID != nil {
		if v, ok := s.profileCache.Get(profileCacheKey(*find.UserID)); ok {
			if p, ok := v.(*CoachProfile); ok {
				return p, nil
			}
		}
	}

	p, err := s.driver.GetCoachProfile(ctx, find)
	if err != nil {
		return nil, err
	}
	if p != nil {
		s.profileCache.Set(profileCacheKey(p.UserID), p)
	}
	return p, nil
}

func (s *Store) UpsertCoachProfile(ctx context.Context, upsert *CoachProfile) (*CoachProfile, error) {
	p, err := s.driver.UpsertCoachProfile(ctx, upsert)
	if err != nil {
		return nil, err
	}
	s.profileCache.Set(profileCacheKey(p.UserID), p)
	return p, nil
}

// ========== Insights ==========

func (s *Store) CreateInsight(ctx context.Context, create *Insight) (*Insight, error) {
	return s.driver.CreateInsight(ctx, create)
}

func (s *Store) ListInsights(ctx context.Context, find *FindInsight) ([]*Insight, error) {
	return s.driver.ListInsights(ctx, find)
}

func (s *Store) DeleteInsight(ctx context.Context, delete *DeleteInsight) error {
	return s.driver.DeleteInsight(ctx, delete)
}

// ========== Weekly reviews ==========

func (s *Store) GetWeeklyReview(ctx context.Context, find *FindWeeklyReview) (*WeeklyReview, error) {
	if find.UserID != nil && find.WeekStartTs != nil {
		if v, ok := s.reviewCache.Get(reviewCacheKey(*find.UserID, *find.WeekStartTs)); ok {
			if r, ok := v.(*WeeklyReview); ok {
				return r, nil
			}
		}
	}

	r, err := s.driver.GetWeeklyReview(ctx, find)
	if err != nil {
		return nil, err
	}
	if r != nil {
		s.reviewCache.Set(reviewCacheKey(r.UserID, r.WeekStartTs), r)
	}
	return r, nil
}

func (s *Store) UpsertWeeklyReview(ctx context.Context, upsert *WeeklyReview) (*WeeklyReview, error) {
	r, err := s.driver.UpsertWeeklyReview(ctx, upsert)
	if err != nil {
		return nil, err
	}
	s.reviewCache.Set(reviewCacheKey(r.UserID, r.WeekStartTs), r)
	return r, nil
}

func profileCacheKey(userID int32) string {
	return fmt.Sprintf("coach_profile:%d", userID)
}

func reviewCacheKey(userID int32, weekStartTs int64) string {
	return fmt.Sprintf("weekly_review:%d:%d", userID, weekStartTs)
}
