package insight

import (
	"context"
	"fmt"
	"time"

	"github.com/strideai/coach/store"
)

// ComputeWeeklyReview builds the review for the week starting at weekStart
// (truncated to the week boundary) and persists it. Recomputing a closed week
// with unchanged history produces an identical review; the summary and
// confidence are pure functions of the week's workouts.
func (e *Engine) ComputeWeeklyReview(ctx context.Context, userID int32, weekStart time.Time) (*store.WeeklyReview, error) {
	start := TruncateToWeek(weekStart)
	end := start.AddDate(0, 0, 7)

	workouts, err := e.history.RecentWorkouts(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}

	review := buildReview(userID, start, end, workouts)
	if _, err := e.store.UpsertWeeklyReview(ctx, review); err != nil {
		return nil, err
	}
	e.logger.Debug("weekly review computed", "user_id", userID, "week_start", start.Format("2006-01-02"), "sessions", len(workouts))
	return review, nil
}

// GetWeeklyReview returns the stored review for a week, or nil when that
// week has not been reviewed.
func (e *Engine) GetWeeklyReview(ctx context.Context, userID int32, weekStart time.Time) (*store.WeeklyReview, error) {
	ts := TruncateToWeek(weekStart).Unix()
	return e.store.GetWeeklyReview(ctx, &store.FindWeeklyReview{UserID: &userID, WeekStartTs: &ts})
}

// TruncateToWeek snaps t back to the preceding Monday 00:00 UTC.
func TruncateToWeek(t time.Time) time.Time {
	t = t.UTC()
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.AddDate(0, 0, -daysSinceMonday)
}

// buildReview is deterministic: identical workout slices yield identical
// reviews. UpdatedTs is pinned to the week end so recomputation does not
// change the stored row.
func buildReview(userID int32, start, end time.Time, workouts []WorkoutSummary) *store.WeeklyReview {
	review := &store.WeeklyReview{
		UserID:      userID,
		WeekStartTs: start.Unix(),
		WeekEndTs:   end.Unix(),
		UpdatedTs:   end.Unix(),
	}

	if len(workouts) == 0 {
		review.Summary = "No training sessions were logged this week."
		review.Challenges = []string{"No sessions completed"}
		review.Recommendations = []string{"Schedule two short sessions to rebuild the habit"}
		review.NextWeekGoals = []string{"Complete at least 2 sessions"}
		review.Confidence = 0.2
		return review
	}

	completed := 0
	var totalVolume, intensitySum float64
	for _, w := range workouts {
		if w.Completed {
			completed++
		}
		totalVolume += w.Volume
		intensitySum += w.Intensity
	}
	meanIntensity := intensitySum / float64(len(workouts))

	review.Summary = fmt.Sprintf(
		"Completed %d of %d sessions with total volume %.0f and average intensity %.0f%%.",
		completed, len(workouts), totalVolume, meanIntensity*100,
	)

	if completed >= 3 {
		review.Achievements = append(review.Achievements, fmt.Sprintf("Hit %d completed sessions", completed))
	}
	if meanIntensity >= 0.75 {
		review.Achievements = append(review.Achievements, "Sustained high training intensity")
	}
	if completed < len(workouts) {
		review.Challenges = append(review.Challenges, fmt.Sprintf("%d planned sessions were not completed", len(workouts)-completed))
		review.Recommendations = append(review.Recommendations, "Plan sessions on lower-friction days to improve completion")
	}
	if meanIntensity < 0.5 {
		review.Challenges = append(review.Challenges, "Average intensity stayed low")
		review.Recommendations = append(review.Recommendations, "Add one focused higher-intensity session")
	}
	if len(review.Recommendations) == 0 {
		review.Recommendations = append(review.Recommendations, "Keep the current structure and progress loads gradually")
	}

	review.NextWeekGoals = append(review.NextWeekGoals, fmt.Sprintf("Complete %d sessions", maxInt(completed, 3)))
	review.Confidence = confidenceFromSessions(len(workouts))
	if review.Confidence < 0.3 {
		review.Confidence = 0.3
	}
	return review
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
