package postgres

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/strideai/coach/store"
)

// CreateMemoryItem inserts a new memory item.
func (d *DB) CreateMemoryItem(ctx context.Context, create *store.MemoryItem) (*store.MemoryItem, error) {
	stmt := `
		INSERT INTO memory_item (id, user_id, type, content, importance, tags, metadata, created_ts, last_accessed_ts)
		VALUES (` + placeholders(9) + `)
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID,
		create.UserID,
		string(create.Type),
		create.Content,
		create.Importance,
		marshalJSON(create.Tags),
		marshalJSON(create.Metadata),
		create.CreatedTs,
		create.LastAccessedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create memory item")
	}
	return create, nil
}

// ListMemoryItems lists memory items.
func (d *DB) ListMemoryItems(ctx context.Context, find *store.FindMemoryItem) ([]*store.MemoryItem, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}
	if find.Type != nil {
		where, args = append(where, "type = "+placeholder(len(args)+1)), append(args, string(*find.Type))
	}

	query := `
		SELECT id, user_id, type, content, importance, tags, metadata, created_ts, last_accessed_ts
		FROM memory_item
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY last_accessed_ts DESC
	`
	if find.Limit > 0 {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list memory items")
	}
	defer rows.Close()

	list := []*store.MemoryItem{}
	for rows.Next() {
		var item store.MemoryItem
		var itemType, tags, metadata string
		if err := rows.Scan(
			&item.ID,
			&item.UserID,
			&itemType,
			&item.Content,
			&item.Importance,
			&tags,
			&metadata,
			&item.CreatedTs,
			&item.LastAccessedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan memory item")
		}
		item.Type = store.MemoryItemType(itemType)
		item.Tags = unmarshalStringSlice(tags)
		item.Metadata = unmarshalStringMap(metadata)
		list = append(list, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

// UpdateMemoryItem applies access-time mutations to a memory item.
func (d *DB) UpdateMemoryItem(ctx context.Context, update *store.UpdateMemoryItem) error {
	set, args := []string{}, []any{}

	if update.LastAccessedTs != nil {
		set, args = append(set, "last_accessed_ts = "+placeholder(len(args)+1)), append(args, *update.LastAccessedTs)
	}
	if update.Importance != nil {
		set, args = append(set, "importance = "+placeholder(len(args)+1)), append(args, *update.Importance)
	}
	if len(set) == 0 {
		return nil
	}

	stmt := `UPDATE memory_item SET ` + strings.Join(set, ", ") +
		` WHERE id = ` + placeholder(len(args)+1) + ` AND user_id = ` + placeholder(len(args)+2)
	args = append(args, update.ID, update.UserID)

	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to update memory item")
	}
	return nil
}

// DeleteMemoryItem deletes memory items.
func (d *DB) DeleteMemoryItem(ctx context.Context, delete *store.DeleteMemoryItem) error {
	where, args := []string{"1 = 1"}, []any{}

	if delete.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *delete.ID)
	}
	if delete.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *delete.UserID)
	}

	stmt := `DELETE FROM memory_item WHERE ` + strings.Join(where, " AND ")
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to delete memory item")
	}
	return nil
}

// CountMemoryItems returns the number of memory items stored for a user.
func (d *DB) CountMemoryItems(ctx context.Context, userID int32) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_item WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count memory items")
	}
	return count, nil
}
