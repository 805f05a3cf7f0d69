// Package db selects the concrete store driver from the runtime profile.
//
// PostgreSQL is the production driver with native vector search (pgvector).
// SQLite is supported for development and single-user deployments; its
// vector search scans in Go.
package db

import (
	"github.com/pkg/errors"

	"github.com/strideai/coach/internal/profile"
	"github.com/strideai/coach/store"
	"github.com/strideai/coach/store/db/postgres"
	"github.com/strideai/coach/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.New("unknown db driver: only 'postgres' and 'sqlite' are supported")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
