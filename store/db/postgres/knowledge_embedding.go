package postgres

import (
	"context"
	"strings"

	"github.com/pgvector/pgvector-go"
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
		RETURNING id
	`

	vector := pgvector.NewVector(upsert.Embedding)
	err := d.db.QueryRowContext(ctx, stmt,
		upsert.Namespace,
		upsert.Key,
		vector,
		upsert.ModelVersion,
		upsert.SourceType,
		upsert.Source,
		upsert.Content,
		upsert.Confidence,
		upsert.UpdatedTs,
	).Scan(&upsert.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert knowledge embedding")
	}

	return upsert, nil
}

// ListKnowledgeEmbeddings lists knowledge embeddings.
func (d *DB) ListKnowledgeEmbeddings(ctx context.Context, find *store.FindKnowledgeEmbedding) ([]*store.KnowledgeEmbedding, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.Namespace != nil {
		where, args = append(where, "namespace = "+placeholder(len(args)+1)), append(args, *find.Namespace)
	}
	if find.Key != nil {
		where, args = append(where, "key = "+placeholder(len(args)+1)), append(args, *find.Key)
	}
	if find.ModelVersion != nil {
		where, args = append(where, "model_version = "+placeholder(len(args)+1)), append(args, *find.ModelVersion)
	}
	if find.SourceType != nil {
		where, args = append(where, "source_type = "+placeholder(len(args)+1)), append(args, *find.SourceType)
	}

	query := `
		SELECT id, namespace, key, embedding, model_version, source_type, source, content, confidence, updated_ts
		FROM knowledge_embedding
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY updated_ts DESC
	`
	if find.Limit > 0 {
		query += " LIMIT " + placeholder(len(args)+1)
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
		var vector pgvector.Vector
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
		embedding.Embedding = vector.Slice()
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
	where, args := []string{"namespace = $1", "key = $2"}, []any{delete.Namespace, delete.Key}
	if delete.ModelVersion != nil {
		where, args = append(where, "model_version = "+placeholder(len(args)+1)), append(args, *delete.ModelVersion)
	}

	stmt := `DELETE FROM knowledge_embedding WHERE ` + strings.Join(where, " AND ")
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to delete knowledge embedding")
	}
	return nil
}

// SearchKnowledgeEmbeddings performs vector similarity search using pgvector.
// The <=> operator computes cosine distance (1 - cosine_similarity).
func (d *DB) SearchKnowledgeEmbeddings(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.KnowledgeMatch, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	where, args := []string{"namespace = $1", "model_version = $2"}, []any{opts.Namespace, opts.ModelVersion}
	args = append(args, pgvector.NewVector(opts.Embedding))
	queryVectorIdx := len(args) // $3

	if opts.MinConfidence > 0 {
		where, args = append(where, "confidence >= "+placeholder(len(args)+1)), append(args, opts.MinConfidence)
	}
	if opts.SourceType != nil {
		where, args = append(where, "source_type = "+placeholder(len(args)+1)), append(args, *opts.SourceType)
	}

	query := `
		SELECT id, namespace, key, embedding, model_version, source_type, source, content, confidence, updated_ts,
			1 - (embedding <=> ` + placeholder(queryVectorIdx) + `) AS similarity
		FROM knowledge_embedding
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY similarity DESC, updated_ts DESC
		LIMIT ` + placeholder(len(args)+1)
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search knowledge embeddings")
	}
	defer rows.Close()

	list := []*store.KnowledgeMatch{}
	for rows.Next() {
		var embedding store.KnowledgeEmbedding
		var vector pgvector.Vector
		var similarity float32
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
			&similarity,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan knowledge match")
		}
		embedding.Embedding = vector.Slice()
		list = append(list, &store.KnowledgeMatch{Embedding: &embedding, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}
