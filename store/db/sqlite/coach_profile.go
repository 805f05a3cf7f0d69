package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/strideai/coach/store"
)

// GetCoachProfile retrieves the personalization profile for a user.
// Returns nil when no profile has been inferred yet.
func (d *DB) GetCoachProfile(ctx context.Context, find *store.FindCoachProfile) (*store.CoachProfile, error) {
	if find.UserID == nil {
		return nil, errors.New("user id is required")
	}

	query := `
		SELECT user_id, communication_style, motivation_type, coaching_style, confidence, preferences, interaction_count, updated_ts
		FROM coach_profile
		WHERE user_id = ?
	`

	var p store.CoachProfile
	var preferences string
	err := d.db.QueryRowContext(ctx, query, *find.UserID).Scan(
		&p.UserID,
		&p.CommunicationStyle,
		&p.MotivationType,
		&p.CoachingStyle,
		&p.Confidence,
		&preferences,
		&p.InteractionCount,
		&p.UpdatedTs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get coach profile")
	}
	p.Preferences = unmarshalStringMap(preferences)

	return &p, nil
}

// UpsertCoachProfile inserts or updates the personalization profile.
func (d *DB) UpsertCoachProfile(ctx context.Context, upsert *store.CoachProfile) (*store.CoachProfile, error) {
	stmt := `
		INSERT INTO coach_profile (user_id, communication_style, motivation_type, coaching_style, confidence, preferences, interaction_count, updated_ts)
		VALUES (` + placeholders(8) + `)
		ON CONFLICT (user_id)
		DO UPDATE SET
			communication_style = EXCLUDED.communication_style,
			motivation_type = EXCLUDED.motivation_type,
			coaching_style = EXCLUDED.coaching_style,
			confidence = EXCLUDED.confidence,
			preferences = EXCLUDED.preferences,
			interaction_count = EXCLUDED.interaction_count,
			updated_ts = EXCLUDED.updated_ts
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		upsert.UserID,
		upsert.CommunicationStyle,
		upsert.MotivationType,
		upsert.CoachingStyle,
		upsert.Confidence,
		marshalJSON(upsert.Preferences),
		upsert.InteractionCount,
		upsert.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert coach profile")
	}
	return upsert, nil
}
