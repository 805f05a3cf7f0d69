package ai

import (
	"context"
	"errors"
	"log/slog"
	"time"

	coachctx "github.com/strideai/coach/plugin/ai/context"
	"github.com/strideai/coach/plugin/ai/gateway"
	"github.com/strideai/coach/plugin/ai/insight"
	"github.com/strideai/coach/plugin/ai/memory"
	"github.com/strideai/coach/plugin/ai/personalization"
	"github.com/strideai/coach/plugin/ai/rag"
	"github.com/strideai/coach/plugin/ai/vector"
	"github.com/strideai/coach/store"
)

// Coach is the surface the chat/coaching handler talks to. It wires the
// embedding service, vector retrieval, memory, personalization, insights,
// context assembly and the model gateway behind one facade.
type Coach struct {
	config *Config

	embedder EmbeddingService
	vectors  vector.Store
	rag      *rag.Assembler
	memories *memory.Store
	persona  *personalization.Engine
	insights *insight.Engine
	builder  *coachctx.Builder
	gateway  *gateway.Gateway

	logger *slog.Logger
}

// Dependencies are the external collaborators injected into the coach.
type Dependencies struct {
	// Profiles reads the external user-profile store.
	Profiles coachctx.ProfileProvider

	// Activity reads the external history store's activity summaries.
	Activity coachctx.ActivityProvider

	// History reads windowed workout series for insight derivation.
	History insight.HistoryProvider
}

// NewCoach builds the full AI pipeline from config, the durable store and
// the external collaborators.
func NewCoach(cfg *Config, st *store.Store, deps Dependencies) (*Coach, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	llm, err := newLLM(cfg)
	if err != nil {
		return nil, err
	}

	vectors := vector.NewDBStore(st, embedder.ModelVersion(), embedder.Dimensions())
	assembler := rag.NewAssembler(embedder, vectors, rag.DefaultConfig())
	memories := memory.New(st, memory.Config{Capacity: cfg.MemoryCapacity, Embedder: embedder})
	persona := personalization.NewEngine(st)
	insights := insight.NewEngine(st, deps.History)

	builder := coachctx.NewBuilder(cfg.MaxContextTokens).
		WithProfileProvider(deps.Profiles).
		WithActivityProvider(deps.Activity).
		WithMemoryRetriever(memories).
		WithKnowledgeProvider(assembler).
		WithInsightReader(insights).
		WithProfileEngine(persona)

	gwConfig := gateway.DefaultConfig()
	gwConfig.MaxContextTokens = cfg.MaxContextTokens
	gwConfig.MaxOutputTokens = cfg.LLM.MaxTokens
	gwConfig.Temperature = cfg.LLM.Temperature

	return &Coach{
		config:   cfg,
		embedder: embedder,
		vectors:  vectors,
		rag:      assembler,
		memories: memories,
		persona:  persona,
		insights: insights,
		builder:  builder,
		gateway:  gateway.New(&chatClientAdapter{svc: llm}, gwConfig),
		logger:   slog.Default().With("component", "coach"),
	}, nil
}

func newEmbedder(cfg *Config) (EmbeddingService, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return NewOpenAIEmbedder(cfg.Embedding)
	case "mock":
		return NewMockEmbedder(cfg.Embedding.Dimensions), nil
	default:
		return nil, errors.New("unknown embedding provider: " + cfg.Embedding.Provider)
	}
}

func newLLM(cfg *Config) (LLMService, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return NewOpenAIChat(cfg.LLM)
	case "mock":
		return &MockLLM{Response: "Let's keep building on your plan."}, nil
	default:
		return nil, errors.New("unknown llm provider: " + cfg.LLM.Provider)
	}
}

// AssembleContext builds the context bundle for one coaching turn.
func (c *Coach) AssembleContext(ctx context.Context, userID int32, query string) (*coachctx.ContextBundle, error) {
	return c.builder.Assemble(ctx, &coachctx.ContextRequest{
		UserID:    userID,
		Query:     query,
		MaxTokens: c.config.MaxContextTokens,
	})
}

// StoreMemory persists a typed memory for the user.
func (c *Coach) StoreMemory(ctx context.Context, userID int32, itemType store.MemoryItemType, content string, signal float32, tags []string, metadata map[string]string) (*store.MemoryItem, error) {
	return c.memories.StoreItem(ctx, userID, itemType, content, signal, tags, metadata)
}

// GetPersonalizationProfile returns the user's personalization profile.
// A low-confidence profile comes back with ErrInconsistentProfile; its
// EffectiveCoachingStyle still resolves to the default style.
func (c *Coach) GetPersonalizationProfile(ctx context.Context, userID int32) (*personalization.Profile, error) {
	return c.persona.Get(ctx, userID)
}

// RecordInteraction feeds post-turn signals into the personalization engine.
func (c *Coach) RecordInteraction(ctx context.Context, userID int32, signals personalization.Signals) (*personalization.Profile, error) {
	return c.persona.RecordInteraction(ctx, userID, signals)
}

// ComputeWeeklyReview computes and persists the review for one week.
func (c *Coach) ComputeWeeklyReview(ctx context.Context, userID int32, week time.Time) (*store.WeeklyReview, error) {
	return c.insights.ComputeWeeklyReview(ctx, userID, week)
}

// ComputeInsights derives proactive insights over the trailing window.
func (c *Coach) ComputeInsights(ctx context.Context, userID int32, window time.Duration) ([]*store.Insight, error) {
	return c.insights.ComputeInsights(ctx, userID, window)
}

// ActiveInsights returns the user's unexpired insights.
func (c *Coach) ActiveInsights(ctx context.Context, userID int32, limit int) ([]*store.Insight, error) {
	return c.insights.ActiveInsights(ctx, userID, limit)
}

// Generate runs the model gateway over an assembled bundle.
func (c *Coach) Generate(ctx context.Context, bundle *coachctx.ContextBundle, history []gateway.Message, userMessage string) (*gateway.GenerationResult, error) {
	return c.gateway.Generate(ctx, &gateway.Request{
		SystemContext: bundle.Context,
		History:       history,
		UserMessage:   userMessage,
	})
}

// GenerateStream runs the model gateway in streaming mode, forwarding
// completion deltas to onDelta as they arrive.
func (c *Coach) GenerateStream(ctx context.Context, bundle *coachctx.ContextBundle, history []gateway.Message, userMessage string, onDelta func(string)) (*gateway.GenerationResult, error) {
	return c.gateway.GenerateStream(ctx, &gateway.Request{
		SystemContext: bundle.Context,
		History:       history,
		UserMessage:   userMessage,
	}, onDelta)
}

// IndexKnowledge embeds content and upserts it into a knowledge namespace.
func (c *Coach) IndexKnowledge(ctx context.Context, namespace, key, content string, meta vector.Metadata) error {
	vec, err := c.embedder.Embed(ctx, content)
	if err != nil {
		return err
	}
	return c.vectors.Upsert(ctx, vector.Record{
		Namespace: namespace,
		Key:       key,
		Vector:    vec,
		Content:   content,
		Metadata:  meta,
	})
}

// ReindexNamespace migrates a namespace's vectors to the active embedding
// model version.
func (c *Coach) ReindexNamespace(ctx context.Context, namespace string) (int, error) {
	return c.vectors.ReindexNamespace(ctx, namespace, c.embedder)
}

// chatClientAdapter bridges LLMService onto the gateway's client surface.
type chatClientAdapter struct {
	svc LLMService
}

var _ gateway.ChatClient = (*chatClientAdapter)(nil)

func (a *chatClientAdapter) Chat(ctx context.Context, messages []gateway.Message, maxTokens int, temperature float32) (string, error) {
	converted := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		converted = append(converted, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return a.svc.Chat(ctx, converted, ChatOptions{MaxTokens: maxTokens, Temperature: temperature})
}

func (a *chatClientAdapter) ChatStream(ctx context.Context, messages []gateway.Message, maxTokens int, temperature float32, onDelta func(string)) (string, error) {
	converted := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		converted = append(converted, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return a.svc.ChatStream(ctx, converted, ChatOptions{MaxTokens: maxTokens, Temperature: temperature}, onDelta)
}

func (a *chatClientAdapter) Model() string {
	return a.svc.Model()
}
