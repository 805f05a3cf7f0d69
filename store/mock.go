package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"sort"
	"strconv"
	"sync"
)

// MockDriver is an in-memory Driver for tests.
type MockDriver struct {
	mu sync.RWMutex

	embeddings map[string]*KnowledgeEmbedding // namespace/key/modelVersion
	memories   map[string]*MemoryItem
	profiles   map[int32]*CoachProfile
	insights   map[string]*Insight
	reviews    map[string]*WeeklyReview
}

var _ Driver = (*MockDriver)(nil)

// NewMockDriver creates an empty in-memory driver.
func NewMockDriver() *MockDriver {
	return &MockDriver{
		embeddings: make(map[string]*KnowledgeEmbedding),
		memories:   make(map[string]*MemoryItem),
		profiles:   make(map[int32]*CoachProfile),
		insights:   make(map[string]*Insight),
		reviews:    make(map[string]*WeeklyReview),
	}
}

func (d *MockDriver) GetDB() *sql.DB { return nil }

func (d *MockDriver) Close() error { return nil }

func (d *MockDriver) Migrate(context.Context) error { return nil }

func embeddingKey(namespace, key, modelVersion string) string {
	return namespace + "/" + key + "/" + modelVersion
}

func (d *MockDriver) UpsertKnowledgeEmbedding(_ context.Context, upsert *KnowledgeEmbedding) (*KnowledgeEmbedding, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clone := *upsert
	if clone.ID == 0 {
		clone.ID = int64(len(d.embeddings) + 1)
	}
	d.embeddings[embeddingKey(clone.Namespace, clone.Key, clone.ModelVersion)] = &clone
	return &clone, nil
}

func (d *MockDriver) ListKnowledgeEmbeddings(_ context.Context, find *FindKnowledgeEmbedding) ([]*KnowledgeEmbedding, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var list []*KnowledgeEmbedding
	for _, e := range d.embeddings {
		if find.Namespace != nil && e.Namespace != *find.Namespace {
			continue
		}
		if find.Key != nil && e.Key != *find.Key {
			continue
		}
		if find.ModelVersion != nil && e.ModelVersion != *find.ModelVersion {
			continue
		}
		if find.SourceType != nil && e.SourceType != *find.SourceType {
			continue
		}
		clone := *e
		list = append(list, &clone)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}

func (d *MockDriver) DeleteKnowledgeEmbedding(_ context.Context, del *DeleteKnowledgeEmbedding) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, e := range d.embeddings {
		if e.Namespace != del.Namespace || e.Key != del.Key {
			continue
		}
		if del.ModelVersion != nil && e.ModelVersion != *del.ModelVersion {
			continue
		}
		delete(d.embeddings, k)
	}
	return nil
}

func (d *MockDriver) SearchKnowledgeEmbeddings(_ context.Context, opts *VectorSearchOptions) ([]*KnowledgeMatch, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var matches []*KnowledgeMatch
	for _, e := range d.embeddings {
		if e.Namespace != opts.Namespace || e.ModelVersion != opts.ModelVersion {
			continue
		}
		if e.Confidence < opts.MinConfidence {
			continue
		}
		if opts.SourceType != nil && e.SourceType != *opts.SourceType {
			continue
		}
		clone := *e
		matches = append(matches, &KnowledgeMatch{
			Embedding:  &clone,
			Similarity: mockCosine(opts.Embedding, e.Embedding),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Embedding.UpdatedTs > matches[j].Embedding.UpdatedTs
	})
	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return matches, nil
}

func (d *MockDriver) CreateMemoryItem(_ context.Context, create *MemoryItem) (*MemoryItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if create.ID == "" {
		create.ID = "mem-" + strconv.Itoa(len(d.memories)+1)
	}
	clone := *create
	d.memories[clone.ID] = &clone
	return create, nil
}

func (d *MockDriver) ListMemoryItems(_ context.Context, find *FindMemoryItem) ([]*MemoryItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var list []*MemoryItem
	for _, m := range d.memories {
		if find.ID != nil && m.ID != *find.ID {
			continue
		}
		if find.UserID != nil && m.UserID != *find.UserID {
			continue
		}
		if find.Type != nil && m.Type != *find.Type {
			continue
		}
		clone := *m
		list = append(list, &clone)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}

func (d *MockDriver) UpdateMemoryItem(_ context.Context, update *UpdateMemoryItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.memories[update.ID]
	if !ok || m.UserID != update.UserID {
		return errors.New("memory item not found")
	}
	if update.LastAccessedTs != nil {
		m.LastAccessedTs = *update.LastAccessedTs
	}
	if update.Importance != nil {
		m.Importance = *update.Importance
	}
	return nil
}

func (d *MockDriver) DeleteMemoryItem(_ context.Context, del *DeleteMemoryItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, m := range d.memories {
		if del.ID != nil && id != *del.ID {
			continue
		}
		if del.UserID != nil && m.UserID != *del.UserID {
			continue
		}
		delete(d.memories, id)
	}
	return nil
}

func (d *MockDriver) CountMemoryItems(_ context.Context, userID int32) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	count := 0
	for _, m := range d.memories {
		if m.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (d *MockDriver) GetCoachProfile(_ context.Context, find *FindCoachProfile) (*CoachProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if find.UserID == nil {
		return nil, errors.New("user id is required")
	}
	p, ok := d.profiles[*find.UserID]
	if !ok {
		return nil, nil
	}
	clone := *p
	return &clone, nil
}

func (d *MockDriver) UpsertCoachProfile(_ context.Context, upsert *CoachProfile) (*CoachProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clone := *upsert
	d.profiles[clone.UserID] = &clone
	return upsert, nil
}

func (d *MockDriver) CreateInsight(_ context.Context, create *Insight) (*Insight, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if create.ID == "" {
		create.ID = "insight-" + strconv.Itoa(len(d.insights)+1)
	}
	clone := *create
	d.insights[clone.ID] = &clone
	return create, nil
}

func (d *MockDriver) ListInsights(_ context.Context, find *FindInsight) ([]*Insight, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var list []*Insight
	for _, in := range d.insights {
		if find.ID != nil && in.ID != *find.ID {
			continue
		}
		if find.UserID != nil && in.UserID != *find.UserID {
			continue
		}
		if find.Type != nil && in.Type != *find.Type {
			continue
		}
		if find.UnexpiredAt != nil && in.ExpiresTs != 0 && in.ExpiresTs <= *find.UnexpiredAt {
			continue
		}
		clone := *in
		list = append(list, &clone)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedTs > list[j].CreatedTs })
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[:find.Limit]
	}
	return list, nil
}

func (d *MockDriver) DeleteInsight(_ context.Context, del *DeleteInsight) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, in := range d.insights {
		if del.ID != nil && id != *del.ID {
			continue
		}
		if del.UserID != nil && in.UserID != *del.UserID {
			continue
		}
		if del.Type != nil && in.Type != *del.Type {
			continue
		}
		if del.ExpiredBefore != nil && (in.ExpiresTs == 0 || in.ExpiresTs >= *del.ExpiredBefore) {
			continue
		}
		delete(d.insights, id)
	}
	return nil
}

func reviewKey(userID int32, weekStartTs int64) string {
	return strconv.Itoa(int(userID)) + "/" + strconv.FormatInt(weekStartTs, 10)
}

func (d *MockDriver) GetWeeklyReview(_ context.Context, find *FindWeeklyReview) (*WeeklyReview, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if find.UserID == nil || find.WeekStartTs == nil {
		return nil, errors.New("user id and week start are required")
	}
	r, ok := d.reviews[reviewKey(*find.UserID, *find.WeekStartTs)]
	if !ok {
		return nil, nil
	}
	clone := *r
	return &clone, nil
}

func (d *MockDriver) UpsertWeeklyReview(_ context.Context, upsert *WeeklyReview) (*WeeklyReview, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clone := *upsert
	d.reviews[reviewKey(clone.UserID, clone.WeekStartTs)] = &clone
	return upsert, nil
}

func mockCosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
