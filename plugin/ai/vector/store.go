package vector

import (
	"context"
	"log/slog"
	"time"

	"github.com/strideai/coach/store"
)

// dbStore is a Store backed by the durable knowledge_embedding table. The
// postgres driver ranks with pgvector; sqlite scans in Go.
type dbStore struct {
	store        *store.Store
	modelVersion string
	dimensions   int
	typePriority map[string]int
	logger       *slog.Logger
}

var _ Store = (*dbStore)(nil)

// NewDBStore creates a durable vector store bound to the active model version.
func NewDBStore(st *store.Store, modelVersion string, dimensions int) Store {
	return &dbStore{
		store:        st,
		modelVersion: modelVersion,
		dimensions:   dimensions,
		typePriority: DefaultTypePriority(),
		logger:       slog.Default().With("component", "vector"),
	}
}

func (s *dbStore) Upsert(ctx context.Context, record Record) error {
	if !IsValidNamespace(record.Namespace) {
		return ErrUnknownNamespace
	}
	if len(record.Vector) != s.dimensions {
		return ErrDimensionMismatch
	}

	updatedTs := record.Metadata.LastUpdated
	if updatedTs == 0 {
		updatedTs = time.Now().Unix()
	}
	_, err := s.store.UpsertKnowledgeEmbedding(ctx, &store.KnowledgeEmbedding{
		Namespace:    record.Namespace,
		Key:          record.Key,
		Embedding:    record.Vector,
		ModelVersion: s.modelVersion,
		SourceType:   record.Metadata.Type,
		Source:       record.Metadata.Source,
		Content:      record.Content,
		Confidence:   record.Metadata.Confidence,
		UpdatedTs:    updatedTs,
	})
	return err
}

func (s *dbStore) Query(ctx context.Context, namespace string, queryVector []float32, opts QueryOptions) ([]Source, error) {
	if !IsValidNamespace(namespace) {
		return nil, ErrUnknownNamespace
	}
	if len(queryVector) != s.dimensions {
		return nil, ErrDimensionMismatch
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}

	searchOpts := &store.VectorSearchOptions{
		Namespace:     namespace,
		ModelVersion:  s.modelVersion,
		Embedding:     queryVector,
		Limit:         topK,
		MinConfidence: opts.MinConfidence,
	}
	if opts.SourceType != "" {
		searchOpts.SourceType = &opts.SourceType
	}

	matches, err := s.store.SearchKnowledgeEmbeddings(ctx, searchOpts)
	if err != nil {
		return nil, namespaceQueryErr(err)
	}

	sources := make([]Source, 0, len(matches))
	for _, m := range matches {
		sources = append(sources, Source{
			Namespace: m.Embedding.Namespace,
			Key:       m.Embedding.Key,
			Content:   m.Embedding.Content,
			Metadata: Metadata{
				Type:        m.Embedding.SourceType,
				Source:      m.Embedding.Source,
				Confidence:  m.Embedding.Confidence,
				LastUpdated: m.Embedding.UpdatedTs,
			},
			Similarity: m.Similarity,
		})
	}
	// The drivers already rank by similarity and recency; re-sort to apply
	// the source-type tie break consistently with the in-memory store.
	sortSources(sources, s.typePriority)
	return sources, nil
}

func (s *dbStore) Delete(ctx context.Context, namespace, key string) error {
	if !IsValidNamespace(namespace) {
		return ErrUnknownNamespace
	}
	return s.store.DeleteKnowledgeEmbedding(ctx, &store.DeleteKnowledgeEmbedding{
		Namespace: namespace,
		Key:       key,
	})
}

// ReindexNamespace re-embeds every stored record in the namespace whose model
// version differs from the embedder's. This is the batch half of migration;
// the lazy half happens on Upsert, which always tags the active version.
func (s *dbStore) ReindexNamespace(ctx context.Context, namespace string, embedder Embedder) (int, error) {
	if !IsValidNamespace(namespace) {
		return 0, ErrUnknownNamespace
	}

	records, err := s.store.ListKnowledgeEmbeddings(ctx, &store.FindKnowledgeEmbedding{Namespace: &namespace})
	if err != nil {
		return 0, err
	}

	target := embedder.ModelVersion()
	migrated := 0
	for _, record := range records {
		if record.ModelVersion == target {
			continue
		}
		vec, err := embedder.Embed(ctx, record.Content)
		if err != nil {
			s.logger.Warn("reindex aborted", "namespace", namespace, "migrated", migrated, "error", err)
			return migrated, err
		}
		oldVersion := record.ModelVersion
		record.Embedding = vec
		record.ModelVersion = target
		record.UpdatedTs = time.Now().Unix()
		if _, err := s.store.UpsertKnowledgeEmbedding(ctx, record); err != nil {
			return migrated, err
		}
		// Remove the stale row so a later pass does not migrate it again.
		if err := s.store.DeleteKnowledgeEmbedding(ctx, &store.DeleteKnowledgeEmbedding{
			Namespace:    record.Namespace,
			Key:          record.Key,
			ModelVersion: &oldVersion,
		}); err != nil {
			return migrated, err
		}
		s.dimensions = len(vec)
		migrated++
	}
	if migrated > 0 {
		s.modelVersion = target
		s.logger.Info("namespace reindexed", "namespace", namespace, "migrated", migrated, "model_version", target)
	}
	return migrated, nil
}
