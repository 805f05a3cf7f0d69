// Package context assembles the per-turn coaching context: profile facts,
// constraints, goals, retrieved knowledge, memories and insights folded into
// one bounded, deterministically ordered payload.
package context

import (
	"context"
	"time"

	"github.com/strideai/coach/plugin/ai/memory"
	"github.com/strideai/coach/plugin/ai/personalization"
	"github.com/strideai/coach/plugin/ai/rag"
	"github.com/strideai/coach/store"
)

// Section keys used in the completeness map. A true value means the section
// was fetched successfully this turn, even if it came back empty; false means
// the data exists upstream but was unavailable.
const (
	SectionProfile        = "profile"
	SectionPreferences    = "preferences"
	SectionInjuries       = "injuries"
	SectionEquipment      = "equipment"
	SectionGoals          = "goals"
	SectionRecentActivity = "recent_activity"
	SectionKnowledge      = "knowledge"
	SectionMemories       = "memories"
	SectionInsights       = "insights"
	SectionStyle          = "style"
)

// UserProfile is the slice of the external profile store this core consumes.
type UserProfile struct {
	DisplayName string
	Goals       []string
	Injuries    []string
	Equipment   []string
	Preferences map[string]string
}

// ProfileProvider reads the external user-profile store.
type ProfileProvider interface {
	GetUserProfile(ctx context.Context, userID int32) (*UserProfile, error)
}

// ActivityProvider reads a recent-activity summary from the external
// workout/nutrition history store.
type ActivityProvider interface {
	RecentActivitySummary(ctx context.Context, userID int32) (string, error)
}

// MemoryRetriever is the memory store surface the builder consumes.
type MemoryRetriever interface {
	Retrieve(ctx context.Context, userID int32, query string, topN int) ([]*memory.Item, error)
}

// KnowledgeProvider is the RAG surface the builder consumes.
type KnowledgeProvider interface {
	Assemble(ctx context.Context, query string, namespaces []string) (*rag.RAGContext, error)
}

// InsightReader reads unexpired proactive insights.
type InsightReader interface {
	ActiveInsights(ctx context.Context, userID int32, limit int) ([]*store.Insight, error)
}

// ProfileEngine reads the personalization profile.
type ProfileEngine interface {
	Get(ctx context.Context, userID int32) (*personalization.Profile, error)
}

// ContextRequest parameterizes one assembly.
type ContextRequest struct {
	UserID    int32
	Query     string
	MaxTokens int

	// Namespaces restricts retrieval; empty means all namespaces.
	Namespaces []string
}

// ContextBundle is the ephemeral per-request aggregate handed to generation.
type ContextBundle struct {
	UserID int32
	Query  string

	// Context is the final assembled text in deterministic section order.
	Context string

	RAG             *rag.RAGContext
	Memories        []*memory.Item
	Insights        []*store.Insight
	Personalization *personalization.Profile

	// Completeness flags each section as populated or degraded, so the
	// generation step never re-asks for data that is known but was
	// temporarily unavailable.
	Completeness map[string]bool

	TokenCount int
	BuildTime  time.Duration
}

// Complete reports whether every section was fetched successfully.
func (b *ContextBundle) Complete() bool {
	for _, ok := range b.Completeness {
		if !ok {
			return false
		}
	}
	return true
}
