package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/strideai/coach/plugin/ai/gateway"
	"github.com/strideai/coach/plugin/ai/personalization"
	"github.com/strideai/coach/plugin/ai/vector"
	"github.com/strideai/coach/store"
)

// fallbackReply is returned when the model is unavailable for a turn.
const fallbackReply = "I can't reach the coaching model right now. Your plan from last time still stands; try again in a few minutes."

// ChatRequest is one coaching turn.
type ChatRequest struct {
	UserID  int32         `json:"user_id"`
	Message string        `json:"message"`
	History []HistoryTurn `json:"history,omitempty"`
}

// HistoryTurn is one prior conversation turn.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse carries the generated reply and assembly diagnostics.
type ChatResponse struct {
	Reply        string          `json:"reply"`
	Model        string          `json:"model,omitempty"`
	Degraded     bool            `json:"degraded"`
	Truncated    bool            `json:"truncated,omitempty"`
	TokenCount   int             `json:"token_count,omitempty"`
	Completeness map[string]bool `json:"completeness,omitempty"`
}

// Chat assembles context for the user's message and generates a reply.
// POST /api/v1/chat
func (s *Server) Chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.UserID <= 0 || req.Message == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id and message are required"})
	}

	ctx := c.Request().Context()
	bundle, err := s.coach.AssembleContext(ctx, req.UserID, req.Message)
	if err != nil {
		slog.Error("context assembly failed", "user_id", req.UserID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "context assembly failed"})
	}

	history := make([]gateway.Message, 0, len(req.History))
	for _, t := range req.History {
		history = append(history, gateway.Message{Role: t.Role, Content: t.Content})
	}

	result, err := s.coach.Generate(ctx, bundle, history, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrRateLimited):
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limited, retry later"})
		case errors.Is(err, gateway.ErrContextTooLarge):
			return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "context too large"})
		case errors.Is(err, gateway.ErrModelUnavailable):
			slog.Warn("model unavailable, serving fallback", "user_id", req.UserID, "error", err)
			return c.JSON(http.StatusOK, ChatResponse{
				Reply:        fallbackReply,
				Degraded:     true,
				Completeness: bundle.Completeness,
			})
		default:
			slog.Error("generation failed", "user_id", req.UserID, "error", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "generation failed"})
		}
	}

	return c.JSON(http.StatusOK, ChatResponse{
		Reply:        result.Content,
		Model:        result.Model,
		Degraded:     !bundle.Complete(),
		Truncated:    result.Truncated,
		TokenCount:   bundle.TokenCount,
		Completeness: bundle.Completeness,
	})
}

// ChatStream runs the same coaching turn as Chat but streams the reply as
// server-sent events: "delta" events carry reply fragments, one final "done"
// event carries the diagnostics, and an "error" event replaces "done" when
// generation fails after streaming has started.
// POST /api/v1/chat/stream
func (s *Server) ChatStream(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.UserID <= 0 || req.Message == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id and message are required"})
	}

	ctx := c.Request().Context()
	bundle, err := s.coach.AssembleContext(ctx, req.UserID, req.Message)
	if err != nil {
		slog.Error("context assembly failed", "user_id", req.UserID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "context assembly failed"})
	}

	history := make([]gateway.Message, 0, len(req.History))
	for _, t := range req.History {
		history = append(history, gateway.Message{Role: t.Role, Content: t.Content})
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().WriteHeader(http.StatusOK)

	result, err := s.coach.GenerateStream(ctx, bundle, history, req.Message, func(delta string) {
		writeSSE(c, "delta", delta)
	})
	if err != nil {
		slog.Warn("streamed generation failed", "user_id", req.UserID, "error", err)
		writeSSE(c, "error", "generation failed")
		return nil
	}

	writeSSE(c, "done", ChatResponse{
		Model:        result.Model,
		Degraded:     !bundle.Complete(),
		Truncated:    result.Truncated,
		TokenCount:   bundle.TokenCount,
		Completeness: bundle.Completeness,
	})
	return nil
}

// writeSSE emits one server-sent event with a JSON-encoded payload and
// flushes it to the client.
func writeSSE(c echo.Context, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", event, data)
	c.Response().Flush()
}

// CreateMemoryRequest stores one memory item.
type CreateMemoryRequest struct {
	UserID   int32             `json:"user_id"`
	Type     string            `json:"type"`
	Content  string            `json:"content"`
	Signal   float32           `json:"signal,omitempty"`
	Tags     []string          `json:"tags,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreateMemory persists a typed memory for the user.
// POST /api/v1/memories
func (s *Server) CreateMemory(c echo.Context) error {
	var req CreateMemoryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.UserID <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}

	item, err := s.coach.StoreMemory(c.Request().Context(), req.UserID, store.MemoryItemType(req.Type), req.Content, req.Signal, req.Tags, req.Metadata)
	if err != nil {
		slog.Warn("memory store rejected", "user_id", req.UserID, "type", req.Type, "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, item)
}

// ProfileResponse is the personalization profile surface.
type ProfileResponse struct {
	UserID             int32             `json:"user_id"`
	CommunicationStyle string            `json:"communication_style"`
	MotivationType     string            `json:"motivation_type"`
	CoachingStyle      string            `json:"coaching_style"`
	EffectiveStyle     string            `json:"effective_style"`
	Confidence         float32           `json:"confidence"`
	Preferences        map[string]string `json:"preferences,omitempty"`
	InteractionCount   int32             `json:"interaction_count"`
	LowConfidence      bool              `json:"low_confidence"`
}

// GetProfile returns the user's personalization profile.
// GET /api/v1/profile?user_id=1
func (s *Server) GetProfile(c echo.Context) error {
	userID, err := queryUserID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	p, err := s.coach.GetPersonalizationProfile(c.Request().Context(), userID)
	lowConfidence := errors.Is(err, personalization.ErrInconsistentProfile)
	if err != nil && !lowConfidence {
		slog.Error("profile read failed", "user_id", userID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "profile read failed"})
	}

	return c.JSON(http.StatusOK, ProfileResponse{
		UserID:             p.UserID,
		CommunicationStyle: string(p.CommunicationStyle),
		MotivationType:     string(p.MotivationType),
		CoachingStyle:      string(p.CoachingStyle),
		EffectiveStyle:     string(p.EffectiveCoachingStyle()),
		Confidence:         p.Confidence,
		Preferences:        p.Preferences,
		InteractionCount:   p.InteractionCount,
		LowConfidence:      lowConfidence,
	})
}

// GetWeeklyReview returns the review for a week, computing it when absent.
// GET /api/v1/reviews/weekly?user_id=1&week=2026-08-24
func (s *Server) GetWeeklyReview(c echo.Context) error {
	userID, err := queryUserID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	week := time.Now().AddDate(0, 0, -7)
	if raw := c.QueryParam("week"); raw != "" {
		week, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "week must be YYYY-MM-DD"})
		}
	}

	ctx := c.Request().Context()
	review, err := s.coach.ComputeWeeklyReview(ctx, userID, week)
	if err != nil {
		slog.Error("weekly review failed", "user_id", userID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "weekly review failed"})
	}
	return c.JSON(http.StatusOK, review)
}

// ListInsights returns the user's unexpired insights.
// GET /api/v1/insights?user_id=1
func (s *Server) ListInsights(c echo.Context) error {
	userID, err := queryUserID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}

	insights, err := s.coach.ActiveInsights(c.Request().Context(), userID, limit)
	if err != nil {
		slog.Error("insight list failed", "user_id", userID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "insight list failed"})
	}
	return c.JSON(http.StatusOK, insights)
}

// ComputeInsightsRequest triggers insight derivation.
type ComputeInsightsRequest struct {
	UserID     int32 `json:"user_id"`
	WindowDays int   `json:"window_days,omitempty"`
}

// ComputeInsights derives insights over the trailing window.
// POST /api/v1/insights/compute
func (s *Server) ComputeInsights(c echo.Context) error {
	var req ComputeInsightsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.UserID <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}
	if req.WindowDays <= 0 {
		req.WindowDays = 28
	}

	insights, err := s.coach.ComputeInsights(c.Request().Context(), req.UserID, time.Duration(req.WindowDays)*24*time.Hour)
	if err != nil {
		slog.Error("insight computation failed", "user_id", req.UserID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "insight computation failed"})
	}
	return c.JSON(http.StatusOK, insights)
}

// IndexKnowledgeRequest adds one document to a knowledge namespace.
type IndexKnowledgeRequest struct {
	Namespace  string  `json:"namespace"`
	Key        string  `json:"key"`
	Content    string  `json:"content"`
	SourceType string  `json:"source_type,omitempty"`
	Source     string  `json:"source,omitempty"`
	Confidence float32 `json:"confidence,omitempty"`
}

// IndexKnowledge embeds and stores a knowledge document.
// POST /api/v1/knowledge
func (s *Server) IndexKnowledge(c echo.Context) error {
	var req IndexKnowledgeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if !vector.IsValidNamespace(req.Namespace) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown namespace"})
	}
	if req.Key == "" || req.Content == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "key and content are required"})
	}
	if req.SourceType == "" {
		req.SourceType = vector.SourceTypeCurated
	}
	if req.Confidence == 0 {
		req.Confidence = 0.8
	}

	err := s.coach.IndexKnowledge(c.Request().Context(), req.Namespace, req.Key, req.Content, vector.Metadata{
		Type:       req.SourceType,
		Source:     req.Source,
		Confidence: req.Confidence,
	})
	if err != nil {
		slog.Error("knowledge indexing failed", "namespace", req.Namespace, "key", req.Key, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "indexing failed"})
	}
	return c.JSON(http.StatusCreated, map[string]string{"namespace": req.Namespace, "key": req.Key})
}

func queryUserID(c echo.Context) (int32, error) {
	raw := c.QueryParam("user_id")
	if raw == "" {
		return 0, errors.New("user_id is required")
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || v <= 0 {
		return 0, errors.New("user_id must be a positive integer")
	}
	return int32(v), nil
}
