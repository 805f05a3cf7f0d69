// Package sqlite implements the store driver for SQLite.
//
// SQLite is intended for development and single-user deployments. It has no
// native vector index; similarity search loads the namespace slice and scores
// it in Go, which is fine at personal-knowledge-base scale. For production,
// use PostgreSQL.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/strideai/coach/internal/profile"
	"github.com/strideai/coach/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a SQLite-backed store driver.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	// WAL mode for concurrent reads alongside the single writer.
	db, err := sql.Open("sqlite", profile.DSN+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates the schema if it does not exist.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS knowledge_embedding (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			embedding TEXT NOT NULL,
			model_version TEXT NOT NULL,
			source_type TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL DEFAULT 0,
			updated_ts INTEGER NOT NULL,
			UNIQUE (namespace, key, model_version)
		)`,
		`CREATE TABLE IF NOT EXISTS memory_item (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			importance REAL NOT NULL,
			tags TEXT NOT NULL DEFAULT '[]',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_ts INTEGER NOT NULL,
			last_accessed_ts INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_item_user ON memory_item (user_id)`,
		`CREATE TABLE IF NOT EXISTS coach_profile (
			user_id INTEGER PRIMARY KEY,
			communication_style TEXT NOT NULL,
			motivation_type TEXT NOT NULL,
			coaching_style TEXT NOT NULL,
			confidence REAL NOT NULL,
			preferences TEXT NOT NULL DEFAULT '{}',
			interaction_count INTEGER NOT NULL DEFAULT 0,
			updated_ts INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS insight (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			priority TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			action_required INTEGER NOT NULL DEFAULT 0,
			suggested_actions TEXT NOT NULL DEFAULT '[]',
			confidence REAL NOT NULL,
			created_ts INTEGER NOT NULL,
			expires_ts INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_insight_user ON insight (user_id, expires_ts)`,
		`CREATE TABLE IF NOT EXISTS weekly_review (
			user_id INTEGER NOT NULL,
			week_start_ts INTEGER NOT NULL,
			week_end_ts INTEGER NOT NULL,
			summary TEXT NOT NULL,
			achievements TEXT NOT NULL DEFAULT '[]',
			challenges TEXT NOT NULL DEFAULT '[]',
			recommendations TEXT NOT NULL DEFAULT '[]',
			next_week_goals TEXT NOT NULL DEFAULT '[]',
			confidence REAL NOT NULL,
			updated_ts INTEGER NOT NULL,
			PRIMARY KEY (user_id, week_start_ts)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to run migration statement")
		}
	}
	return nil
}

// placeholder returns a placeholder for SQLite (uses ?).
func placeholder(int) string {
	return "?"
}

// placeholders returns n placeholders for SQLite.
func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}

func marshalJSON(v any) string {
	buf, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(buf)
}

func unmarshalStringSlice(raw string) []string {
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil
	}
	return list
}

func unmarshalStringMap(raw string) map[string]string {
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}

func marshalVector(v []float32) string {
	buf, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(buf)
}

func unmarshalVector(raw string) []float32 {
	var v []float32
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil
	}
	return v
}
