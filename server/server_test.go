package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideai/coach/internal/profile"
	"github.com/strideai/coach/plugin/ai"
	coachctx "github.com/strideai/coach/plugin/ai/context"
	"github.com/strideai/coach/plugin/ai/insight"
	"github.com/strideai/coach/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	p := &profile.Profile{
		Mode:    "dev",
		Addr:    "127.0.0.1",
		Port:    0,
		Driver:  "sqlite",
		Version: "test",
	}
	st := store.New(store.NewMockDriver(), p)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &ai.Config{
		Enabled: true,
		Embedding: ai.EmbeddingConfig{
			Provider:   "mock",
			Model:      "deterministic",
			Dimensions: 64,
		},
		LLM: ai.LLMConfig{
			Provider:  "mock",
			Model:     "scripted",
			MaxTokens: 256,
		},
		MaxContextTokens: 4096,
		MemoryCapacity:   50,
	}
	deps := ai.Dependencies{
		Profiles: &coachctx.MockProfileProvider{Profiles: map[int32]*coachctx.UserProfile{
			1: {
				DisplayName: "Jamie",
				Goals:       []string{"Squat 100kg"},
				Injuries:    []string{"knee"},
				Equipment:   []string{"barbell"},
			},
		}},
		Activity: &coachctx.MockActivityProvider{Summary: "4 sessions last week."},
		History: &insight.MockHistory{Workouts: map[int32][]insight.WorkoutSummary{
			1: {
				{Date: time.Now().AddDate(0, 0, -3), Volume: 1500, Intensity: 0.7, Completed: true},
				{Date: time.Now().AddDate(0, 0, -1), Volume: 1600, Intensity: 0.7, Completed: true},
			},
		}},
	}
	coach, err := ai.NewCoach(cfg, st, deps)
	require.NoError(t, err)

	return NewServer(p, st, coach)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestChat(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/chat", ChatRequest{
		UserID:  1,
		Message: "suggest a leg workout with low knee stress",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Reply)
	assert.Equal(t, "mock/scripted", resp.Model)
	assert.True(t, resp.Completeness[coachctx.SectionInjuries])
}

func TestChatRejectsMissingFields(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/chat", ChatRequest{Message: "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/chat", ChatRequest{UserID: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatCarriesHistory(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/chat", ChatRequest{
		UserID:  1,
		Message: "and what about tomorrow?",
		History: []HistoryTurn{
			{Role: "user", Content: "plan my week"},
			{Role: "assistant", Content: "Three sessions, starting Monday."},
		},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatStream(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/chat/stream", ChatRequest{
		UserID:  1,
		Message: "suggest a leg workout with low knee stress",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/event-stream")

	body := rec.Body.String()
	assert.Contains(t, body, "event: delta")
	assert.Contains(t, body, "event: done")
	assert.Contains(t, body, "mock/scripted")
}

func TestChatStreamRejectsMissingFields(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/chat/stream", ChatRequest{Message: "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateMemory(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/memories", CreateMemoryRequest{
		UserID:  1,
		Type:    string(store.MemoryTypeAchievement),
		Content: "Hit a 90kg squat PR",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var item store.MemoryItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, store.MemoryTypeAchievement, item.Type)
}

func TestCreateMemoryRejectsUnknownType(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/memories", CreateMemoryRequest{
		UserID:  1,
		Type:    "hobby",
		Content: "collects stamps",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProfile(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/profile?user_id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ProfileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int32(1), resp.UserID)
	// A brand-new user has no usable signals yet, so the effective style
	// falls back to the default.
	assert.Equal(t, "unknown", resp.CoachingStyle)
	assert.Equal(t, "balanced", resp.EffectiveStyle)
}

func TestGetProfileRequiresUserID(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/profile", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/profile?user_id=-3", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetWeeklyReview(t *testing.T) {
	s := newTestServer(t)

	week := time.Now().AddDate(0, 0, -7).Format("2006-01-02")
	rec := doJSON(t, s, http.MethodGet, "/api/v1/reviews/weekly?user_id=1&week="+week, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var review store.WeeklyReview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &review))
	assert.Equal(t, int32(1), review.UserID)
	assert.NotEmpty(t, review.Summary)
}

func TestGetWeeklyReviewRejectsBadWeek(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/reviews/weekly?user_id=1&week=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInsightsComputeThenList(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/insights/compute", ComputeInsightsRequest{UserID: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/insights?user_id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var insights []*store.Insight
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &insights))
	for _, in := range insights {
		assert.Equal(t, int32(1), in.UserID)
	}
}

func TestIndexKnowledge(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/knowledge", IndexKnowledgeRequest{
		Namespace: "exercise",
		Key:       "split-squat",
		Content:   "Split squats train single-leg strength with low knee shear.",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// The indexed document now feeds chat context assembly.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/chat", ChatRequest{
		UserID:  1,
		Message: "single-leg strength work for a sore knee",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIndexKnowledgeRejectsUnknownNamespace(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/knowledge", IndexKnowledgeRequest{
		Namespace: "astrology",
		Key:       "k",
		Content:   "c",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
