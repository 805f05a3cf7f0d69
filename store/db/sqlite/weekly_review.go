package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/strideai/coach/store"
)

// GetWeeklyReview retrieves a weekly review by user and week start.
// Returns nil when the week has not been reviewed yet.
func (d *DB) GetWeeklyReview(ctx context.Context, find *store.FindWeeklyReview) (*store.WeeklyReview, error) {
	if find.UserID == nil || find.WeekStartTs == nil {
		return nil, errors.New("user id and week start are required")
	}

	query := `
		SELECT user_id, week_start_ts, week_end_ts, summary, achievements, challenges, recommendations, next_week_goals, confidence, updated_ts
		FROM weekly_review
		WHERE user_id = ? AND week_start_ts = ?
	`

	var r store.WeeklyReview
	var achievements, challenges, recommendations, nextWeekGoals string
	err := d.db.QueryRowContext(ctx, query, *find.UserID, *find.WeekStartTs).Scan(
		&r.UserID,
		&r.WeekStartTs,
		&r.WeekEndTs,
		&r.Summary,
		&achievements,
		&challenges,
		&recommendations,
		&nextWeekGoals,
		&r.Confidence,
		&r.UpdatedTs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get weekly review")
	}
	r.Achievements = unmarshalStringSlice(achievements)
	r.Challenges = unmarshalStringSlice(challenges)
	r.Recommendations = unmarshalStringSlice(recommendations)
	r.NextWeekGoals = unmarshalStringSlice(nextWeekGoals)

	return &r, nil
}

// UpsertWeeklyReview inserts or updates a weekly review.
func (d *DB) UpsertWeeklyReview(ctx context.Context, upsert *store.WeeklyReview) (*store.WeeklyReview, error) {
	stmt := `
		INSERT INTO weekly_review (user_id, week_start_ts, week_end_ts, summary, achievements, challenges, recommendations, next_week_goals, confidence, updated_ts)
		VALUES (` + placeholders(10) + `)
		ON CONFLICT (user_id, week_start_ts)
		DO UPDATE SET
			week_end_ts = EXCLUDED.week_end_ts,
			summary = EXCLUDED.summary,
			achievements = EXCLUDED.achievements,
			challenges = EXCLUDED.challenges,
			recommendations = EXCLUDED.recommendations,
			next_week_goals = EXCLUDED.next_week_goals,
			confidence = EXCLUDED.confidence,
			updated_ts = EXCLUDED.updated_ts
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		upsert.UserID,
		upsert.WeekStartTs,
		upsert.WeekEndTs,
		upsert.Summary,
		marshalJSON(upsert.Achievements),
		marshalJSON(upsert.Challenges),
		marshalJSON(upsert.Recommendations),
		marshalJSON(upsert.NextWeekGoals),
		upsert.Confidence,
		upsert.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert weekly review")
	}
	return upsert, nil
}
