// Package vector provides namespaced vector storage and cosine-similarity
// retrieval. Namespaces are hard-isolated and vectors are only comparable
// within the same (namespace, model version) slice.
package vector

import (
	"context"
	"errors"
	"math"
)

// Knowledge namespaces. A query against one namespace never surfaces content
// stored in another.
const (
	NamespaceExercise  = "exercise"
	NamespaceNutrition = "nutrition"
	NamespaceResearch  = "research"
	NamespaceWorkout   = "workout"
	NamespaceGeneral   = "general"
)

// Source provenance types, highest trust first.
const (
	SourceTypeCurated   = "curated"
	SourceTypeUser      = "user"
	SourceTypeGenerated = "generated"
)

var (
	// ErrNamespaceTimeout reports that a single namespace query exceeded its
	// deadline. The caller drops that namespace's contribution.
	ErrNamespaceTimeout = errors.New("namespace query timed out")

	// ErrUnknownNamespace reports an out-of-set namespace.
	ErrUnknownNamespace = errors.New("unknown namespace")

	// ErrDimensionMismatch reports a vector whose dimension does not match
	// the namespace's active model version.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Namespaces returns all valid namespaces.
func Namespaces() []string {
	return []string{NamespaceExercise, NamespaceNutrition, NamespaceResearch, NamespaceWorkout, NamespaceGeneral}
}

// IsValidNamespace reports whether ns is a known namespace.
func IsValidNamespace(ns string) bool {
	switch ns {
	case NamespaceExercise, NamespaceNutrition, NamespaceResearch, NamespaceWorkout, NamespaceGeneral:
		return true
	}
	return false
}

// Metadata describes the provenance of a stored vector.
type Metadata struct {
	Type        string  // source type, e.g. curated/user/generated
	Source      string  // origin document or system
	Confidence  float32 // 0-1
	LastUpdated int64   // unix seconds
}

// Record is one upserted entry: the embedded content plus its vector.
type Record struct {
	Namespace string
	Key       string
	Vector    []float32
	Content   string
	Metadata  Metadata
}

// Source is one ranked retrieval result. Ephemeral, never persisted.
type Source struct {
	Namespace  string
	Key        string
	Content    string
	Metadata   Metadata
	Similarity float32
}

// QueryOptions tunes a namespace query.
type QueryOptions struct {
	TopK          int
	MinConfidence float32

	// SourceType, when non-empty, restricts results to one metadata type.
	SourceType string
}

// Embedder is the slice of the embedding service reindexing needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelVersion() string
}

// Store is a namespaced vector index.
type Store interface {
	// Upsert inserts or replaces the record under (namespace, key). The
	// vector is tagged with the store's active model version.
	Upsert(ctx context.Context, record Record) error

	// Query returns up to TopK sources from one namespace ranked by cosine
	// similarity descending, ties broken by newest LastUpdated, then by
	// source-type priority. Only vectors tagged with the active model
	// version are compared.
	Query(ctx context.Context, namespace string, queryVector []float32, opts QueryOptions) ([]Source, error)

	// Delete removes the record under (namespace, key).
	Delete(ctx context.Context, namespace, key string) error

	// ReindexNamespace re-embeds every record in the namespace whose stored
	// model version differs from the embedder's, returning the number of
	// records migrated. Records are otherwise migrated lazily on their next
	// Upsert.
	ReindexNamespace(ctx context.Context, namespace string, embedder Embedder) (int, error)
}

// DefaultTypePriority is the tie-break ordering across source types.
// Higher wins.
func DefaultTypePriority() map[string]int {
	return map[string]int{
		SourceTypeCurated:   3,
		SourceTypeUser:      2,
		SourceTypeGenerated: 1,
	}
}

// CosineSimilarity computes cosine similarity between two vectors of equal
// dimension. Returns 0 for mismatched or zero vectors.
func CosineSimilarity(a, b []float32) float32 {
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
