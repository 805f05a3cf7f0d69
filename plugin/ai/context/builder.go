package context

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/strideai/coach/plugin/ai/memory"
	"github.com/strideai/coach/plugin/ai/personalization"
	"github.com/strideai/coach/plugin/ai/rag"
	"github.com/strideai/coach/plugin/ai/timeout"
	"github.com/strideai/coach/plugin/ai/token"
	"github.com/strideai/coach/store"
)

// Defaults for one assembly.
const (
	DefaultMaxTokens   = 4096
	defaultTopMemories = 5
	defaultTopInsights = 3
)

// Builder assembles ContextBundles. Providers are injected; a nil provider
// marks its section incomplete rather than failing the turn.
type Builder struct {
	profiles        ProfileProvider
	activity        ActivityProvider
	memories        MemoryRetriever
	knowledge       KnowledgeProvider
	insights        InsightReader
	personalization ProfileEngine

	maxTokens int
	logger    *slog.Logger
}

// NewBuilder creates a context builder with the given overall token budget.
func NewBuilder(maxTokens int) *Builder {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Builder{
		maxTokens: maxTokens,
		logger:    slog.Default().With("component", "context"),
	}
}

// WithProfileProvider sets the external profile store.
func (b *Builder) WithProfileProvider(p ProfileProvider) *Builder {
	b.profiles = p
	return b
}

// WithActivityProvider sets the external history store.
func (b *Builder) WithActivityProvider(p ActivityProvider) *Builder {
	b.activity = p
	return b
}

// WithMemoryRetriever sets the memory store.
func (b *Builder) WithMemoryRetriever(m MemoryRetriever) *Builder {
	b.memories = m
	return b
}

// WithKnowledgeProvider sets the RAG assembler.
func (b *Builder) WithKnowledgeProvider(k KnowledgeProvider) *Builder {
	b.knowledge = k
	return b
}

// WithInsightReader sets the insight source.
func (b *Builder) WithInsightReader(i InsightReader) *Builder {
	b.insights = i
	return b
}

// WithProfileEngine sets the personalization engine.
func (b *Builder) WithProfileEngine(e ProfileEngine) *Builder {
	b.personalization = e
	return b
}

// assemblyState collects fan-out branch results under one mutex.
type assemblyState struct {
	mu           sync.Mutex
	profile      *UserProfile
	activity     string
	memories     []*memory.Item
	ragContext   *rag.RAGContext
	insights     []*store.Insight
	persona      *personalization.Profile
	completeness map[string]bool
}

func (s *assemblyState) set(section string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completeness[section] = ok
}

// Assemble builds the bundle for one turn. Independent reads fan out
// concurrently under the turn deadline; each branch that fails degrades its
// own section and flags it in the completeness map.
func (b *Builder) Assemble(ctx context.Context, req *ContextRequest) (*ContextBundle, error) {
	start := time.Now()
	if req.MaxTokens <= 0 {
		req.MaxTokens = b.maxTokens
	}

	ctx, cancel := context.WithTimeout(ctx, timeout.TurnTimeout)
	defer cancel()

	state := &assemblyState{completeness: make(map[string]bool)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.fetchProfile(gctx, req.UserID, state)
		return nil
	})
	g.Go(func() error {
		b.fetchActivity(gctx, req.UserID, state)
		return nil
	})
	g.Go(func() error {
		b.fetchMemories(gctx, req.UserID, req.Query, state)
		return nil
	})
	g.Go(func() error {
		b.fetchKnowledge(gctx, req.Query, req.Namespaces, state)
		return nil
	})
	g.Go(func() error {
		b.fetchInsights(gctx, req.UserID, state)
		return nil
	})
	g.Go(func() error {
		b.fetchPersonalization(gctx, req.UserID, state)
		return nil
	})
	// Branches degrade instead of erroring; Wait is a join point only.
	_ = g.Wait()

	bundle := &ContextBundle{
		UserID:          req.UserID,
		Query:           req.Query,
		RAG:             state.ragContext,
		Memories:        state.memories,
		Insights:        state.insights,
		Personalization: state.persona,
		Completeness:    state.completeness,
		BuildTime:       time.Since(start),
	}
	bundle.Context = b.render(state, req.MaxTokens)
	bundle.TokenCount = token.Estimate(bundle.Context)

	b.logger.Debug("context assembled",
		"user_id", req.UserID,
		"tokens", bundle.TokenCount,
		"complete", bundle.Complete(),
		"build_ms", bundle.BuildTime.Milliseconds())
	return bundle, nil
}

func (b *Builder) fetchProfile(ctx context.Context, userID int32, state *assemblyState) {
	if b.profiles == nil {
		state.set(SectionProfile, false)
		state.set(SectionPreferences, false)
		state.set(SectionInjuries, false)
		state.set(SectionEquipment, false)
		state.set(SectionGoals, false)
		return
	}
	p, err := b.profiles.GetUserProfile(ctx, userID)
	if err != nil || p == nil {
		if err != nil {
			b.logger.Warn("profile fetch degraded", "user_id", userID, "error", err)
		}
		state.set(SectionProfile, false)
		state.set(SectionPreferences, false)
		state.set(SectionInjuries, false)
		state.set(SectionEquipment, false)
		state.set(SectionGoals, false)
		return
	}
	state.mu.Lock()
	state.profile = p
	state.mu.Unlock()
	state.set(SectionProfile, true)
	state.set(SectionPreferences, true)
	state.set(SectionInjuries, true)
	state.set(SectionEquipment, true)
	state.set(SectionGoals, true)
}

func (b *Builder) fetchActivity(ctx context.Context, userID int32, state *assemblyState) {
	if b.activity == nil {
		state.set(SectionRecentActivity, false)
		return
	}
	summary, err := b.activity.RecentActivitySummary(ctx, userID)
	if err != nil {
		b.logger.Warn("activity fetch degraded", "user_id", userID, "error", err)
		state.set(SectionRecentActivity, false)
		return
	}
	state.mu.Lock()
	state.activity = summary
	state.mu.Unlock()
	state.set(SectionRecentActivity, true)
}

func (b *Builder) fetchMemories(ctx context.Context, userID int32, query string, state *assemblyState) {
	if b.memories == nil {
		state.set(SectionMemories, false)
		return
	}
	items, err := b.memories.Retrieve(ctx, userID, query, defaultTopMemories)
	if err != nil {
		b.logger.Warn("memory retrieval degraded", "user_id", userID, "error", err)
		state.set(SectionMemories, false)
		return
	}
	state.mu.Lock()
	state.memories = items
	state.mu.Unlock()
	state.set(SectionMemories, true)
}

func (b *Builder) fetchKnowledge(ctx context.Context, query string, namespaces []string, state *assemblyState) {
	if b.knowledge == nil {
		state.set(SectionKnowledge, false)
		return
	}
	rc, err := b.knowledge.Assemble(ctx, query, namespaces)
	if err != nil {
		b.logger.Warn("knowledge retrieval degraded", "error", err)
		state.set(SectionKnowledge, false)
		return
	}
	state.mu.Lock()
	state.ragContext = rc
	state.mu.Unlock()
	// Embedding-level degradation inside the assembler still flags the
	// section incomplete: the knowledge exists but was unreachable.
	state.set(SectionKnowledge, len(rc.Metadata.Degraded) == 0)
}

func (b *Builder) fetchInsights(ctx context.Context, userID int32, state *assemblyState) {
	if b.insights == nil {
		state.set(SectionInsights, false)
		return
	}
	insights, err := b.insights.ActiveInsights(ctx, userID, defaultTopInsights)
	if err != nil {
		b.logger.Warn("insight read degraded", "user_id", userID, "error", err)
		state.set(SectionInsights, false)
		return
	}
	state.mu.Lock()
	state.insights = insights
	state.mu.Unlock()
	state.set(SectionInsights, true)
}

func (b *Builder) fetchPersonalization(ctx context.Context, userID int32, state *assemblyState) {
	if b.personalization == nil {
		state.set(SectionStyle, false)
		return
	}
	p, err := b.personalization.Get(ctx, userID)
	if err != nil && !isLowConfidence(err) {
		b.logger.Warn("personalization read degraded", "user_id", userID, "error", err)
		state.set(SectionStyle, false)
		return
	}
	state.mu.Lock()
	state.persona = p
	state.mu.Unlock()
	// A low-confidence profile still selects the default style template.
	state.set(SectionStyle, true)
}

func isLowConfidence(err error) bool {
	return errors.Is(err, personalization.ErrInconsistentProfile)
}

// render folds the collected state into the deterministic section order:
// profile, preferences, constraints, goals, recent activity, knowledge,
// memories, insights, style instruction.
func (b *Builder) render(state *assemblyState, budget int) string {
	var segments []segment
	add := func(section, content string, priority SegmentPriority, order int) {
		if strings.TrimSpace(content) == "" {
			return
		}
		segments = append(segments, segment{section: section, content: content, priority: priority, order: order})
	}

	p := state.profile
	if p != nil {
		add(SectionProfile, renderProfile(p), PriorityProfile, 0)
		add(SectionPreferences, renderPreferences(p.Preferences), PriorityPreferences, 1)
		add(SectionInjuries, renderConstraints(p), PriorityConstraints, 2)
		add(SectionGoals, renderList("Active goals", p.Goals), PriorityGoals, 3)
	}
	add(SectionRecentActivity, renderActivity(state.activity), PriorityActivity, 4)
	if state.ragContext != nil {
		add(SectionKnowledge, state.ragContext.Context, PriorityKnowledge, 5)
	}
	add(SectionMemories, renderMemories(state.memories), PriorityMemories, 6)
	add(SectionInsights, renderInsights(state.insights), PriorityInsights, 7)
	add(SectionStyle, styleInstruction(state.persona), PriorityStyle, 8)

	kept := rankAndTruncate(segments, budget)
	parts := make([]string, 0, len(kept))
	for _, seg := range kept {
		parts = append(parts, seg.content)
	}
	return strings.Join(parts, "\n\n")
}

func renderProfile(p *UserProfile) string {
	if p.DisplayName == "" {
		return ""
	}
	return fmt.Sprintf("User: %s", p.DisplayName)
}

func renderPreferences(prefs map[string]string) string {
	if len(prefs) == 0 {
		return ""
	}
	keys := sortedKeys(prefs)
	var b strings.Builder
	b.WriteString("Preferences:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, prefs[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderConstraints(p *UserProfile) string {
	if len(p.Injuries) == 0 && len(p.Equipment) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Constraints:\n")
	if len(p.Injuries) > 0 {
		fmt.Fprintf(&b, "- Injury history: %s. Avoid exercises that load these areas until cleared.\n", strings.Join(p.Injuries, ", "))
	}
	if len(p.Equipment) > 0 {
		fmt.Fprintf(&b, "- Available equipment: %s\n", strings.Join(p.Equipment, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderList(title string, items []string) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(title + ":\n")
	for _, item := range items {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderActivity(summary string) string {
	if summary == "" {
		return ""
	}
	return "Recent activity:\n" + summary
}

func renderMemories(items []*memory.Item) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Known about this user:\n")
	for _, item := range items {
		fmt.Fprintf(&b, "- [%s] %s\n", item.Type, item.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderInsights(insights []*store.Insight) string {
	if len(insights) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Current coaching insights:\n")
	for _, in := range insights {
		fmt.Fprintf(&b, "- (%s) %s: %s\n", in.Priority, in.Title, in.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
