// Package insight derives proactive coaching insights from workout history:
// trend direction, plateau and overtraining risks, and weekly reviews.
package insight

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/strideai/coach/store"
)

// Insight types.
const (
	TypeTrend            = "trend"
	TypePlateauRisk      = "plateau_risk"
	TypeOvertrainingRisk = "overtraining_risk"
	TypeConsistency      = "consistency"
)

// Priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Risk thresholds mapping composite scores onto priorities.
const (
	highRiskThreshold   = 0.75
	mediumRiskThreshold = 0.45
)

// insightTTL is how long a computed insight stays relevant.
const insightTTL = 7 * 24 * time.Hour

// WorkoutSummary is the slice of history this engine consumes.
type WorkoutSummary struct {
	Date        time.Time
	Volume      float64 // total load moved, arbitrary consistent unit
	Intensity   float64 // 0-1 average effort
	DurationMin int
	Completed   bool
}

// HistoryProvider reads the external workout history store.
type HistoryProvider interface {
	RecentWorkouts(ctx context.Context, userID int32, since, until time.Time) ([]WorkoutSummary, error)
}

// Engine computes insights and weekly reviews.
type Engine struct {
	store   *store.Store
	history HistoryProvider
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine creates an insight engine.
func NewEngine(st *store.Store, history HistoryProvider) *Engine {
	return &Engine{
		store:   st,
		history: history,
		logger:  slog.Default().With("component", "insight"),
		now:     time.Now,
	}
}

// ComputeInsights derives insights over the trailing window and persists
// them. Each computed insight supersedes the user's previous insight of the
// same type, so recomputing over unchanged history does not accumulate
// duplicates. Returns the newly computed insights.
func (e *Engine) ComputeInsights(ctx context.Context, userID int32, window time.Duration) ([]*store.Insight, error) {
	if err := e.PruneExpired(ctx, userID); err != nil {
		return nil, err
	}

	now := e.now()
	workouts, err := e.history.RecentWorkouts(ctx, userID, now.Add(-window), now)
	if err != nil {
		return nil, err
	}
	if len(workouts) == 0 {
		return nil, nil
	}
	sort.Slice(workouts, func(i, j int) bool { return workouts[i].Date.Before(workouts[j].Date) })

	metrics := deriveMetrics(workouts, window)
	var insights []*store.Insight

	if in := trendInsight(metrics); in != nil {
		insights = append(insights, in)
	}
	if in := plateauInsight(metrics); in != nil {
		insights = append(insights, in)
	}
	if in := overtrainingInsight(metrics); in != nil {
		insights = append(insights, in)
	}

	for _, in := range insights {
		in.ID = shortuuid.New()
		in.UserID = userID
		in.CreatedTs = now.Unix()
		in.ExpiresTs = now.Add(insightTTL).Unix()
		if err := e.store.DeleteInsight(ctx, &store.DeleteInsight{UserID: &userID, Type: &in.Type}); err != nil {
			return nil, err
		}
		if _, err := e.store.CreateInsight(ctx, in); err != nil {
			return nil, err
		}
	}
	e.logger.Debug("insights computed", "user_id", userID, "count", len(insights), "workouts", len(workouts))
	return insights, nil
}

// ActiveInsights returns the user's unexpired insights, newest first.
func (e *Engine) ActiveInsights(ctx context.Context, userID int32, limit int) ([]*store.Insight, error) {
	now := e.now().Unix()
	return e.store.ListInsights(ctx, &store.FindInsight{
		UserID:      &userID,
		UnexpiredAt: &now,
		Limit:       limit,
	})
}

// PruneExpired deletes insights past their expiry.
func (e *Engine) PruneExpired(ctx context.Context, userID int32) error {
	now := e.now().Unix()
	return e.store.DeleteInsight(ctx, &store.DeleteInsight{UserID: &userID, ExpiredBefore: &now})
}

// windowMetrics are derived aggregates over one history window.
type windowMetrics struct {
	volumeSlope    float64 // per-session volume change from a linear fit
	meanVolume     float64
	meanIntensity  float64
	consistency    float64 // fraction of expected sessions completed
	sessions       int
	highIntensity  float64 // fraction of sessions at intensity >= 0.85
	restDayDrought int     // longest run of consecutive training days
}

func deriveMetrics(workouts []WorkoutSummary, window time.Duration) windowMetrics {
	m := windowMetrics{sessions: len(workouts)}

	volumes := make([]float64, len(workouts))
	var intensitySum float64
	highCount := 0
	completed := 0
	for i, w := range workouts {
		volumes[i] = w.Volume
		m.meanVolume += w.Volume
		intensitySum += w.Intensity
		if w.Intensity >= 0.85 {
			highCount++
		}
		if w.Completed {
			completed++
		}
	}
	m.meanVolume /= float64(len(workouts))
	m.meanIntensity = intensitySum / float64(len(workouts))
	m.highIntensity = float64(highCount) / float64(len(workouts))
	m.volumeSlope = linearSlope(volumes)

	// Expect three sessions per week as the consistency baseline.
	expected := window.Hours() / 24 / 7 * 3
	if expected > 0 {
		m.consistency = math.Min(1, float64(completed)/expected)
	}

	m.restDayDrought = longestDailyStreak(workouts)
	return m
}

// linearSlope is the least-squares slope of values over their indices,
// normalized by the mean so it reads as relative change per session.
func linearSlope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (n*sumXY - sumX*sumY) / denom
	mean := sumY / n
	if mean == 0 {
		return 0
	}
	return slope / mean
}

func longestDailyStreak(workouts []WorkoutSummary) int {
	longest, run := 0, 0
	var prev time.Time
	for _, w := range workouts {
		day := w.Date.Truncate(24 * time.Hour)
		switch {
		case prev.IsZero(), day.Sub(prev) == 24*time.Hour:
			run++
		case day.Equal(prev):
			// Two sessions in one day extend the same run.
		default:
			run = 1
		}
		if run > longest {
			longest = run
		}
		prev = day
	}
	return longest
}

func priorityFor(risk float64) string {
	switch {
	case risk >= highRiskThreshold:
		return PriorityHigh
	case risk >= mediumRiskThreshold:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func trendInsight(m windowMetrics) *store.Insight {
	if m.sessions < 3 || math.Abs(m.volumeSlope) < 0.01 {
		return nil
	}
	direction := "rising"
	message := "Training volume is trending up across recent sessions. Keep an eye on recovery as load climbs."
	if m.volumeSlope < 0 {
		direction = "falling"
		message = "Training volume is trending down across recent sessions. Worth checking whether this is planned deload or drift."
	}
	return &store.Insight{
		Type:       TypeTrend,
		Priority:   PriorityLow,
		Title:      fmt.Sprintf("Volume trend: %s", direction),
		Message:    message,
		Confidence: confidenceFromSessions(m.sessions),
	}
}

// plateauInsight scores stagnation: flat volume, moderate intensity and
// steady attendance with nothing moving.
func plateauInsight(m windowMetrics) *store.Insight {
	if m.sessions < 4 {
		return nil
	}
	risk := 0.0
	if math.Abs(m.volumeSlope) < 0.005 {
		risk += 0.5
	}
	if m.meanIntensity > 0.5 && m.meanIntensity < 0.75 {
		risk += 0.25
	}
	if m.consistency > 0.7 {
		risk += 0.25
	}
	if risk < mediumRiskThreshold {
		return nil
	}
	return &store.Insight{
		Type:           TypePlateauRisk,
		Priority:       priorityFor(risk),
		Title:          "Possible training plateau",
		Message:        "Volume and intensity have been flat while attendance stayed steady. A programmed overload or variation change may restart progress.",
		ActionRequired: risk >= highRiskThreshold,
		SuggestedActions: []string{
			"Increase load or reps on primary lifts by 2-5%",
			"Swap one accessory movement for a new variation",
		},
		Confidence: float32(risk),
	}
}

// overtrainingInsight scores accumulating fatigue: rising volume, frequent
// high-intensity sessions and long streaks without rest.
func overtrainingInsight(m windowMetrics) *store.Insight {
	if m.sessions < 4 {
		return nil
	}
	risk := 0.0
	if m.volumeSlope > 0.03 {
		risk += 0.35
	}
	if m.highIntensity > 0.5 {
		risk += 0.35
	}
	if m.restDayDrought >= 6 {
		risk += 0.3
	}
	if risk < mediumRiskThreshold {
		return nil
	}
	return &store.Insight{
		Type:           TypeOvertrainingRisk,
		Priority:       priorityFor(risk),
		Title:          "Overtraining risk",
		Message:        "Load, intensity and session frequency are all elevated. Recovery is likely lagging behind training stress.",
		ActionRequired: risk >= highRiskThreshold,
		SuggestedActions: []string{
			"Schedule at least one full rest day this week",
			"Cap high-intensity sessions at two per week until recovered",
		},
		Confidence: float32(risk),
	}
}

// confidenceFromSessions grows with sample size, saturating near 0.9.
func confidenceFromSessions(sessions int) float32 {
	c := float64(sessions) / 12
	if c > 0.9 {
		c = 0.9
	}
	return float32(c)
}
