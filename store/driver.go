package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	Migrate(ctx context.Context) error

	// Knowledge embedding model related methods.
	UpsertKnowledgeEmbedding(ctx context.Context, upsert *KnowledgeEmbedding) (*KnowledgeEmbedding, error)
	ListKnowledgeEmbeddings(ctx context.Context, find *FindKnowledgeEmbedding) ([]*KnowledgeEmbedding, error)
	DeleteKnowledgeEmbedding(ctx context.Context, delete *DeleteKnowledgeEmbedding) error

	// SearchKnowledgeEmbeddings performs cosine similarity search within one
	// (namespace, model version) slice. Results are ordered by similarity
	// descending; final tie-breaking is the caller's concern.
	SearchKnowledgeEmbeddings(ctx context.Context, opts *VectorSearchOptions) ([]*KnowledgeMatch, error)

	// Memory item model related methods.
	CreateMemoryItem(ctx context.Context, create *MemoryItem) (*MemoryItem, error)
	ListMemoryItems(ctx context.Context, find *FindMemoryItem) ([]*MemoryItem, error)
	UpdateMemoryItem(ctx context.Context, update *UpdateMemoryItem) error
	DeleteMemoryItem(ctx context.Context, delete *DeleteMemoryItem) error
	CountMemoryItems(ctx context.Context, userID int32) (int, error)

	// Coach profile model related methods.
	GetCoachProfile(ctx context.Context, find *FindCoachProfile) (*CoachProfile, error)
	UpsertCoachProfile(ctx context.Context, upsert *CoachProfile) (*CoachProfile, error)

	// Insight model related methods.
	CreateInsight(ctx context.Context, create *Insight) (*Insight, error)
	ListInsights(ctx context.Context, find *FindInsight) ([]*Insight, error)
	DeleteInsight(ctx context.Context, delete *DeleteInsight) error

	// Weekly review model related methods.
	GetWeeklyReview(ctx context.Context, find *FindWeeklyReview) (*WeeklyReview, error)
	UpsertWeeklyReview(ctx context.Context, upsert *WeeklyReview) (*WeeklyReview, error)
}
