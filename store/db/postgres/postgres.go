// Package postgres implements the store driver for PostgreSQL.
// PostgreSQL is the primary database for production use: it is the only
// driver with native vector similarity search (pgvector extension).
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/strideai/coach/internal/profile"
	"github.com/strideai/coach/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL-backed store driver.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	// Connection pool sized for a single coaching backend instance.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
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
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS knowledge_embedding (
			id BIGSERIAL PRIMARY KEY,
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			embedding vector NOT NULL,
			model_version TEXT NOT NULL,
			source_type TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			confidence REAL NOT NULL DEFAULT 0,
			updated_ts BIGINT NOT NULL,
			UNIQUE (namespace, key, model_version)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_embedding_namespace ON knowledge_embedding (namespace, model_version)`,
		`CREATE TABLE IF NOT EXISTS memory_item (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			importance REAL NOT NULL,
			tags TEXT NOT NULL DEFAULT '[]',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_ts BIGINT NOT NULL,
			last_accessed_ts BIGINT NOT NULL
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
			updated_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS insight (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			priority TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			action_required BOOLEAN NOT NULL DEFAULT FALSE,
			suggested_actions TEXT NOT NULL DEFAULT '[]',
			confidence REAL NOT NULL,
			created_ts BIGINT NOT NULL,
			expires_ts BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_insight_user ON insight (user_id, expires_ts)`,
		`CREATE TABLE IF NOT EXISTS weekly_review (
			user_id INTEGER NOT NULL,
			week_start_ts BIGINT NOT NULL,
			week_end_ts BIGINT NOT NULL,
			summary TEXT NOT NULL,
			achievements TEXT NOT NULL DEFAULT '[]',
			challenges TEXT NOT NULL DEFAULT '[]',
			recommendations TEXT NOT NULL DEFAULT '[]',
			next_week_goals TEXT NOT NULL DEFAULT '[]',
			confidence REAL NOT NULL,
			updated_ts BIGINT NOT NULL,
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

// placeholder returns the n-th placeholder for PostgreSQL ($1, $2, ...).
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns n placeholders for PostgreSQL.
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
