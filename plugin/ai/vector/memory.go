package vector

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/strideai/coach/plugin/ai/timeout"
)

// memoryStore is an in-process Store used in demo mode and tests.
type memoryStore struct {
	mu           sync.RWMutex
	namespaces   map[string]map[string]Record
	modelVersion string
	dimensions   int
	typePriority map[string]int
}

var _ Store = (*memoryStore)(nil)

// MemoryStoreOption configures an in-memory store.
type MemoryStoreOption func(*memoryStore)

// WithTypePriority overrides the source-type tie-break ordering.
func WithTypePriority(priority map[string]int) MemoryStoreOption {
	return func(s *memoryStore) {
		s.typePriority = priority
	}
}

// NewMemoryStore creates an in-memory vector store bound to one active model
// version and dimension.
func NewMemoryStore(modelVersion string, dimensions int, opts ...MemoryStoreOption) Store {
	s := &memoryStore{
		namespaces:   make(map[string]map[string]Record),
		modelVersion: modelVersion,
		dimensions:   dimensions,
		typePriority: DefaultTypePriority(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *memoryStore) Upsert(_ context.Context, record Record) error {
	if !IsValidNamespace(record.Namespace) {
		return ErrUnknownNamespace
	}
	if len(record.Vector) != s.dimensions {
		return ErrDimensionMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.namespaces[record.Namespace]
	if !ok {
		ns = make(map[string]Record)
		s.namespaces[record.Namespace] = ns
	}
	if record.Metadata.LastUpdated == 0 {
		record.Metadata.LastUpdated = time.Now().Unix()
	}
	ns[record.Key] = record
	return nil
}

func (s *memoryStore) Query(ctx context.Context, namespace string, queryVector []float32, opts QueryOptions) ([]Source, error) {
	if !IsValidNamespace(namespace) {
		return nil, ErrUnknownNamespace
	}
	if len(queryVector) != s.dimensions {
		return nil, ErrDimensionMismatch
	}
	if err := ctx.Err(); err != nil {
		return nil, namespaceQueryErr(err)
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]Source, 0, len(s.namespaces[namespace]))
	for _, record := range s.namespaces[namespace] {
		if record.Metadata.Confidence < opts.MinConfidence {
			continue
		}
		if opts.SourceType != "" && record.Metadata.Type != opts.SourceType {
			continue
		}
		matches = append(matches, Source{
			Namespace:  record.Namespace,
			Key:        record.Key,
			Content:    record.Content,
			Metadata:   record.Metadata,
			Similarity: CosineSimilarity(queryVector, record.Vector),
		})
	}

	sortSources(matches, s.typePriority)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *memoryStore) Delete(_ context.Context, namespace, key string) error {
	if !IsValidNamespace(namespace) {
		return ErrUnknownNamespace
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces[namespace], key)
	return nil
}

// ReindexNamespace re-embeds records that carry a stale model version. For the
// in-memory store this also retags the active version when the embedder's
// version differs.
func (s *memoryStore) ReindexNamespace(ctx context.Context, namespace string, embedder Embedder) (int, error) {
	if !IsValidNamespace(namespace) {
		return 0, ErrUnknownNamespace
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := embedder.ModelVersion()
	migrated := 0
	for key, record := range s.namespaces[namespace] {
		if s.modelVersion == target && len(record.Vector) == s.dimensions {
			continue
		}
		vec, err := embedder.Embed(ctx, record.Content)
		if err != nil {
			return migrated, err
		}
		record.Vector = vec
		record.Metadata.LastUpdated = time.Now().Unix()
		s.namespaces[namespace][key] = record
		migrated++
	}
	if migrated > 0 {
		s.modelVersion = target
		if key := firstKey(s.namespaces[namespace]); key != "" {
			s.dimensions = len(s.namespaces[namespace][key].Vector)
		}
	}
	return migrated, nil
}

func firstKey(m map[string]Record) string {
	for k := range m {
		return k
	}
	return ""
}

// sortSources orders by similarity descending, then newest first, then by
// source-type priority. Similarities within a small epsilon count as ties.
func sortSources(sources []Source, typePriority map[string]int) {
	const epsilon = 1e-6
	sort.SliceStable(sources, func(i, j int) bool {
		di := float64(sources[i].Similarity) - float64(sources[j].Similarity)
		if di > epsilon {
			return true
		}
		if di < -epsilon {
			return false
		}
		if sources[i].Metadata.LastUpdated != sources[j].Metadata.LastUpdated {
			return sources[i].Metadata.LastUpdated > sources[j].Metadata.LastUpdated
		}
		return typePriority[sources[i].Metadata.Type] > typePriority[sources[j].Metadata.Type]
	})
}

// namespaceQueryErr maps deadline errors onto ErrNamespaceTimeout so callers
// can distinguish a slow namespace from a broken one.
func namespaceQueryErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrNamespaceTimeout
	}
	return err
}

// QueryWithTimeout runs one namespace query under the per-namespace deadline.
func QueryWithTimeout(ctx context.Context, s Store, namespace string, queryVector []float32, opts QueryOptions) ([]Source, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout.NamespaceQueryTimeout)
	defer cancel()

	sources, err := s.Query(ctx, namespace, queryVector, opts)
	if err != nil {
		return nil, namespaceQueryErr(err)
	}
	return sources, nil
}
