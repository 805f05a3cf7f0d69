package sqlite

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/strideai/coach/store"
)

// UpsertKnowledgeEmbedding inserts or updates a knowledge embedding.
func (d *DB) UpsertKnowledgeEmbedding(ctx context.Context, upsert *store.KnowledgeEmbedding) (*store.KnowledgeEmbedding, error) {
	stmt := `
		INSERT INTO knowledge_embedding (namespace, key, embedding, model_version, source_type, source, content, confidence, updated_ts)
		VALUES (` + placeholders(9) + `)
		ON CONFLICT (namespace, key, model_version)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			source_type = EXCLUDED.source_type,
			source = EXCLUDED.source,
			content = EXCLUDED.content,
			confidence = EXCLUDED.confidence,
			updated_ts = EXCLUDED.updated_ts
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		upsert.Namespace,
		upsert.Key,
		marshalVector(upsert.Embedding),
		upsert.ModelVersion,
		upsert.SourceType,
		upsert.Source,
		upsert.Content,
		upsert.Confidence,
		upsert.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert knowledge embedding")
	}
	return upsert, nil
}

// ListKnowledgeEmbeddings lists knowledge embeddings.
func (d *DB) ListKnowledgeEmbeddings(ctx context.Context, find *store.FindKnowledgeEmbedding) ([]*store.KnowledgeEmbedding, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.Namespace != nil {
		where, args = append(where, "namespace = ?"), append(args, *find.Namespace)
	}
	if find.Key != nil {
		where, args = append(where, "key = ?"), append(args, *find.Key)
	}
	if find.ModelVersion != nil {
		where, args = append(where, "model_version = ?"), append(args, *find.ModelVersion)
	}
	if find.SourceType != nil {
		where, args = append(where, "source_type = ?"), append(args, *find.SourceType)
	}

	query := `
		SELECT id, namespace, key, embedding, model_version, source_type, source, content, confidence, updated_ts
		FROM knowledge_embedding
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY updated_ts DESC
	`
	if find.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list knowledge embeddings")
	}
	defer rows.Close()

	list := []*store.KnowledgeEmbedding{}
	for rows.Next() {
		var embedding store.KnowledgeEmbedding
		var vector string
		if err := rows.Scan(
			&embedding.ID,
			&embedding.Namespace,
			&embedding.Key,
			&vector,
			&embedding.ModelVersion,
			&embedding.SourceType,
			&embedding.Source,
			&embedding.Content,
			&embedding.Confidence,
			&embedding.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan knowledge embedding")
		}
		embedding.Embedding = unmarshalVector(vector)
		list = append(list, &embedding)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// DeleteKnowledgeEmbedding deletes knowledge embeddings by namespace and key,
// optionally restricted to a single model version.
func (d *DB) DeleteKnowledgeEmbedding(ctx context.Context, delete *store.DeleteKnowledgeEmbedding) error {
	where, args := []string{"namespace = ?", "key = ?"}, []any{delete.Namespace, delete.Key}
	if delete.ModelVersion != nil {
		where, args = append(where, "model_version = ?"), append(args, *delete.ModelVersion)
	}

	stmt := `DELETE FROM knowledge_embedding WHERE ` + strings.Join(where, " AND ")
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to delete knowledge embedding")
	}
	return nil
}

// SearchKnowledgeEmbeddings performs similarity search by scanning the
// (namespace, model version) slice and scoring cosine similarity in Go.
func (d *DB) SearchKnowledgeEmbeddings(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.KnowledgeMatch, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	find := &store.FindKnowledgeEmbedding{
		Namespace:    &opts.Namespace,
		ModelVersion: &opts.ModelVersion,
		SourceType:   opts.SourceType,
	}
	candidates, err := d.ListKnowledgeEmbeddings(ctx, find)
	if err != nil {
		return nil, err
	}

	matches := []*store.KnowledgeMatch{}
	for _, candidate := range candidates {
		if opts.MinConfidence > 0 && candidate.Confidence < opts.MinConfidence {
			continue
		}
		similarity := cosineSimilarity(opts.Embedding, candidate.Embedding)
		matches = append(matches, &store.KnowledgeMatch{Embedding: candidate, Similarity: similarity})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Embedding.UpdatedTs > matches[j].Embedding.UpdatedTs
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)))
}
