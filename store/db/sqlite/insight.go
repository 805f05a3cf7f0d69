package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/strideai/coach/store"
)

// CreateInsight inserts a new insight.
func (d *DB) CreateInsight(ctx context.Context, create *store.Insight) (*store.Insight, error) {
	stmt := `
		INSERT INTO insight (id, user_id, type, priority, title, message, action_required, suggested_actions, confidence, created_ts, expires_ts)
		VALUES (` + placeholders(11) + `)
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID,
		create.UserID,
		create.Type,
		create.Priority,
		create.Title,
		create.Message,
		create.ActionRequired,
		marshalJSON(create.SuggestedActions),
		create.Confidence,
		create.CreatedTs,
		create.ExpiresTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create insight")
	}
	return create, nil
}

// ListInsights lists insights.
func (d *DB) ListInsights(ctx context.Context, find *store.FindInsight) ([]*store.Insight, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}
	if find.Type != nil {
		where, args = append(where, "type = ?"), append(args, *find.Type)
	}
	if find.UnexpiredAt != nil {
		where, args = append(where, "(expires_ts = 0 OR expires_ts > ?)"), append(args, *find.UnexpiredAt)
	}

	query := `
		SELECT id, user_id, type, priority, title, message, action_required, suggested_actions, confidence, created_ts, expires_ts
		FROM insight
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC
	`
	if find.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list insights")
	}
	defer rows.Close()

	list := []*store.Insight{}
	for rows.Next() {
		var insight store.Insight
		var suggestedActions string
		if err := rows.Scan(
			&insight.ID,
			&insight.UserID,
			&insight.Type,
			&insight.Priority,
			&insight.Title,
			&insight.Message,
			&insight.ActionRequired,
			&suggestedActions,
			&insight.Confidence,
			&insight.CreatedTs,
			&insight.ExpiresTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan insight")
		}
		insight.SuggestedActions = unmarshalStringSlice(suggestedActions)
		list = append(list, &insight)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// DeleteInsight deletes insights.
func (d *DB) DeleteInsight(ctx context.Context, delete *store.DeleteInsight) error {
	where, args := []string{"1 = 1"}, []any{}

	if delete.ID != nil {
		where, args = append(where, "id = ?"), append(args, *delete.ID)
	}
	if delete.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *delete.UserID)
	}
	if delete.Type != nil {
		where, args = append(where, "type = ?"), append(args, *delete.Type)
	}
	if delete.ExpiredBefore != nil {
		where, args = append(where, "expires_ts > 0 AND expires_ts < ?"), append(args, *delete.ExpiredBefore)
	}

	stmt := `DELETE FROM insight WHERE ` + strings.Join(where, " AND ")
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to delete insight")
	}
	return nil
}
