package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// OpenPostgres opens a postgres-backed bun handle for the repository
// factory. Callers own the returned handle and close it when done.
func OpenPostgres(dsn string) (*bun.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: postgres dsn is required")
	}
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// NewPostgresFactory opens a postgres connection and builds the stores over
// it in one step.
func NewPostgresFactory(dsn string) (*RepositoryFactory, error) {
	db, err := OpenPostgres(dsn)
	if err != nil {
		return nil, err
	}
	return NewRepositoryFactoryFromDB(db)
}
