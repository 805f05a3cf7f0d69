package context

import (
	"context"

	"github.com/strideai/coach/plugin/ai/memory"
	"github.com/strideai/coach/plugin/ai/personalization"
	"github.com/strideai/coach/plugin/ai/rag"
	"github.com/strideai/coach/store"
)

// MockProfileProvider is a scripted external profile store.
type MockProfileProvider struct {
	Profiles map[int32]*UserProfile
	Err      error
}

var _ ProfileProvider = (*MockProfileProvider)(nil)

func (m *MockProfileProvider) GetUserProfile(_ context.Context, userID int32) (*UserProfile, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Profiles[userID], nil
}

// MockActivityProvider is a scripted external history store.
type MockActivityProvider struct {
	Summary string
	Err     error
}

var _ ActivityProvider = (*MockActivityProvider)(nil)

func (m *MockActivityProvider) RecentActivitySummary(context.Context, int32) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return m.Summary, nil
}

// MockMemoryRetriever returns fixed memory items.
type MockMemoryRetriever struct {
	Items []*memory.Item
	Err   error
}

var _ MemoryRetriever = (*MockMemoryRetriever)(nil)

func (m *MockMemoryRetriever) Retrieve(_ context.Context, _ int32, _ string, topN int) ([]*memory.Item, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if topN > 0 && len(m.Items) > topN {
		return m.Items[:topN], nil
	}
	return m.Items, nil
}

// MockKnowledgeProvider returns a fixed RAG context.
type MockKnowledgeProvider struct {
	Result *rag.RAGContext
	Err    error
}

var _ KnowledgeProvider = (*MockKnowledgeProvider)(nil)

func (m *MockKnowledgeProvider) Assemble(context.Context, string, []string) (*rag.RAGContext, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Result != nil {
		return m.Result, nil
	}
	return &rag.RAGContext{Metadata: rag.Metadata{Degraded: map[string]string{}}}, nil
}

// MockInsightReader returns fixed insights.
type MockInsightReader struct {
	Insights []*store.Insight
	Err      error
}

var _ InsightReader = (*MockInsightReader)(nil)

func (m *MockInsightReader) ActiveInsights(_ context.Context, _ int32, limit int) ([]*store.Insight, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if limit > 0 && len(m.Insights) > limit {
		return m.Insights[:limit], nil
	}
	return m.Insights, nil
}

// MockProfileEngine returns a fixed personalization profile.
type MockProfileEngine struct {
	Profile *personalization.Profile
	Err     error
}

var _ ProfileEngine = (*MockProfileEngine)(nil)

func (m *MockProfileEngine) Get(_ context.Context, userID int32) (*personalization.Profile, error) {
	if m.Profile == nil && m.Err == nil {
		return &personalization.Profile{UserID: userID}, nil
	}
	return m.Profile, m.Err
}
