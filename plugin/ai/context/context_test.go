package context

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideai/coach/plugin/ai/memory"
	"github.com/strideai/coach/plugin/ai/personalization"
	"github.com/strideai/coach/plugin/ai/rag"
	"github.com/strideai/coach/plugin/ai/token"
	"github.com/strideai/coach/store"
)

func fullBuilder() *Builder {
	return NewBuilder(4096).
		WithProfileProvider(&MockProfileProvider{Profiles: map[int32]*UserProfile{
			1: {
				DisplayName: "Jamie",
				Goals:       []string{"Squat 100kg", "Run 5k under 25 minutes"},
				Injuries:    []string{"knee"},
				Equipment:   []string{"barbell", "dumbbells"},
				Preferences: map[string]string{"session_length": "45m", "units": "metric"},
			},
		}}).
		WithActivityProvider(&MockActivityProvider{Summary: "4 sessions last week, mostly lower body."}).
		WithMemoryRetriever(&MockMemoryRetriever{Items: []*memory.Item{
			{MemoryItem: &store.MemoryItem{ID: "m1", Type: store.MemoryTypeAchievement, Content: "Hit a 90kg squat PR"}, Score: 0.9},
		}}).
		WithKnowledgeProvider(&MockKnowledgeProvider{Result: &rag.RAGContext{
			Context:  "Relevant knowledge:\n- [exercise] Single-leg work reduces knee shear.",
			Metadata: rag.Metadata{TotalSources: 1, Confidence: 0.8, Namespaces: []string{"exercise"}, Degraded: map[string]string{}},
		}}).
		WithInsightReader(&MockInsightReader{Insights: []*store.Insight{
			{ID: "i1", Priority: "medium", Title: "Volume trend: rising", Message: "Keep an eye on recovery."},
		}}).
		WithProfileEngine(&MockProfileEngine{Profile: &personalization.Profile{
			UserID: 1, CoachingStyle: personalization.CoachingScientific, Confidence: 0.8,
		}})
}

func TestAssembleFullBundle(t *testing.T) {
	b := fullBuilder()

	bundle, err := b.Assemble(context.Background(), &ContextRequest{UserID: 1, Query: "suggest a leg workout"})
	require.NoError(t, err)
	assert.True(t, bundle.Complete(), "all sections fetched: %v", bundle.Completeness)
	assert.Contains(t, bundle.Context, "Jamie")
	assert.Contains(t, bundle.Context, "knee")
	assert.Contains(t, bundle.Context, "Squat 100kg")
	assert.Contains(t, bundle.Context, "90kg squat PR")
	assert.Contains(t, bundle.Context, "Single-leg work")
	assert.Contains(t, bundle.Context, "Volume trend")
	assert.Contains(t, bundle.Context, "evidence-led")
	assert.Positive(t, bundle.TokenCount)
}

func TestAssembleInjuryConstraintScenario(t *testing.T) {
	b := fullBuilder()

	bundle, err := b.Assemble(context.Background(), &ContextRequest{UserID: 1, Query: "suggest a leg workout"})
	require.NoError(t, err)
	assert.True(t, bundle.Completeness[SectionInjuries])
	assert.Contains(t, bundle.Context, "Injury history: knee")
}

func TestAssembleDeterministicSectionOrder(t *testing.T) {
	b := fullBuilder()
	ctx := context.Background()
	req := &ContextRequest{UserID: 1, Query: "suggest a leg workout"}

	first, err := b.Assemble(ctx, req)
	require.NoError(t, err)
	second, err := b.Assemble(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.Context, second.Context)

	// Canonical ordering: profile before constraints before knowledge
	// before style instruction.
	idxProfile := strings.Index(first.Context, "Jamie")
	idxConstraints := strings.Index(first.Context, "Injury history")
	idxKnowledge := strings.Index(first.Context, "Single-leg work")
	idxStyle := strings.Index(first.Context, "evidence-led")
	assert.True(t, idxProfile < idxConstraints, "profile before constraints")
	assert.True(t, idxConstraints < idxKnowledge, "constraints before knowledge")
	assert.True(t, idxKnowledge < idxStyle, "knowledge before style")
}

func TestAssembleDegradedBranchesAreFlagged(t *testing.T) {
	b := NewBuilder(4096).
		WithProfileProvider(&MockProfileProvider{Err: errors.New("profile store down")}).
		WithActivityProvider(&MockActivityProvider{Summary: "2 sessions"}).
		WithMemoryRetriever(&MockMemoryRetriever{Err: errors.New("db timeout")}).
		WithKnowledgeProvider(&MockKnowledgeProvider{Result: &rag.RAGContext{Metadata: rag.Metadata{Degraded: map[string]string{}}}}).
		WithInsightReader(&MockInsightReader{}).
		WithProfileEngine(&MockProfileEngine{})

	bundle, err := b.Assemble(context.Background(), &ContextRequest{UserID: 1, Query: "plan my week"})
	require.NoError(t, err, "degraded branches must not fail the turn")
	assert.False(t, bundle.Completeness[SectionProfile])
	assert.False(t, bundle.Completeness[SectionInjuries])
	assert.False(t, bundle.Completeness[SectionMemories])
	assert.True(t, bundle.Completeness[SectionRecentActivity])
	assert.True(t, bundle.Completeness[SectionKnowledge])
	assert.True(t, bundle.Completeness[SectionStyle])
	assert.False(t, bundle.Complete())
}

func TestAssembleNilProvidersDegrade(t *testing.T) {
	b := NewBuilder(4096)

	bundle, err := b.Assemble(context.Background(), &ContextRequest{UserID: 1, Query: "anything"})
	require.NoError(t, err)
	assert.False(t, bundle.Complete())
	// The style instruction still renders from the default template.
	assert.Contains(t, bundle.Context, "Coaching style")
}

func TestAssembleLowConfidenceProfileUsesDefaultStyle(t *testing.T) {
	b := fullBuilder().WithProfileEngine(&MockProfileEngine{
		Profile: &personalization.Profile{UserID: 1, CoachingStyle: personalization.CoachingDrillSergeant, Confidence: 0.1},
		Err:     personalization.ErrInconsistentProfile,
	})

	bundle, err := b.Assemble(context.Background(), &ContextRequest{UserID: 1, Query: "leg day"})
	require.NoError(t, err)
	assert.True(t, bundle.Completeness[SectionStyle])
	assert.NotContains(t, bundle.Context, "demanding", "low-confidence style must not be acted on")
	assert.Contains(t, bundle.Context, "direct recommendation first")
}

func TestAssembleTokenBudget(t *testing.T) {
	long := strings.Repeat("training history detail ", 400)
	b := fullBuilder().WithActivityProvider(&MockActivityProvider{Summary: long})

	budget := 200
	bundle, err := b.Assemble(context.Background(), &ContextRequest{UserID: 1, Query: "leg day", MaxTokens: budget})
	require.NoError(t, err)
	assert.LessOrEqual(t, token.Estimate(bundle.Context), budget)
	// High-priority sections survive; the low-priority activity dump is cut.
	assert.Contains(t, bundle.Context, "Injury history")
}

func TestRankAndTruncateBudgetsJoinedOutput(t *testing.T) {
	segments := []segment{
		{section: "a", content: strings.Repeat("abcd", 25), priority: 90, order: 0},
		{section: "b", content: strings.Repeat("efgh", 25), priority: 80, order: 1},
		{section: "c", content: strings.Repeat("ijkl", 25), priority: 70, order: 2},
		{section: "d", content: strings.Repeat("mnop", 25), priority: 60, order: 3},
	}
	budget := 100
	kept := rankAndTruncate(segments, budget)
	require.NotEmpty(t, kept)

	// The estimate must hold for the rendered text, separators included,
	// not just for the sum of the individual sections.
	contents := make([]string, 0, len(kept))
	for _, seg := range kept {
		contents = append(contents, seg.content)
	}
	assert.LessOrEqual(t, token.Estimate(strings.Join(contents, "\n\n")), budget)
}

func TestRankAndTruncatePartialSegment(t *testing.T) {
	segments := []segment{
		{section: "a", content: strings.Repeat("alpha beta gamma delta\n", 40), priority: 90, order: 0},
		{section: "b", content: strings.Repeat("epsilon zeta eta theta\n", 40), priority: 50, order: 1},
	}
	kept := rankAndTruncate(segments, 150)
	require.NotEmpty(t, kept)
	total := 0
	for _, seg := range kept {
		total += token.Estimate(seg.content)
	}
	assert.LessOrEqual(t, total, 150)
	assert.Equal(t, "a", kept[0].section)
}
