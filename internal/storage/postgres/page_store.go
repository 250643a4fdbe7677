// Package postgres provides Postgres-backed persistence for scrape runs.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitegrab/sitegrab/internal/scraper"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for page rows.
type Config struct {
	DSN             string
	PagesTable      string
	FailuresTable   string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// PageRow is one fetched page persisted per run.
type PageRow struct {
	RunID      string
	URL        string
	StatusCode int
	FetchedAt  time.Time
	DurationMs int64
	Headers    http.Header
}

// PageStore writes page and failure rows into Postgres.
type PageStore struct {
	pool          execCloser
	pagesTable    string
	failuresTable string
}

// NewPageStore creates a Postgres-backed PageStore using the provided config.
func NewPageStore(ctx context.Context, cfg Config) (*PageStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newStore(pool, cfg.PagesTable, cfg.FailuresTable)
}

// NewPageStoreWithPool constructs a store from an existing pool (primarily
// for testing with pgxmock).
func NewPageStoreWithPool(pool execCloser, pagesTable, failuresTable string) (*PageStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return newStore(pool, pagesTable, failuresTable)
}

func newStore(pool execCloser, pagesTable, failuresTable string) (*PageStore, error) {
	if pagesTable == "" {
		pagesTable = "pages"
	}
	if failuresTable == "" {
		failuresTable = "failures"
	}
	for _, table := range []string{pagesTable, failuresTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &PageStore{
		pool:          pool,
		pagesTable:    pagesTable,
		failuresTable: failuresTable,
	}, nil
}

// Close releases the underlying pool resources.
func (s *PageStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StorePage inserts one page row.
func (s *PageStore) StorePage(ctx context.Context, row PageRow) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("page store is not configured")
	}
	if row.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	headersJSON, err := json.Marshal(row.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	url,
	status_code,
	fetched_at,
	duration_ms,
	headers
) VALUES ($1, $2, $3, $4, $5, $6)`, s.pagesTable)

	if _, err := s.pool.Exec(ctx, query,
		row.RunID,
		row.URL,
		row.StatusCode,
		row.FetchedAt,
		row.DurationMs,
		headersJSON,
	); err != nil {
		return fmt.Errorf("insert page row: %w", err)
	}
	return nil
}

// StoreFailure inserts one failure row.
func (s *PageStore) StoreFailure(ctx context.Context, runID string, failure scraper.Failure) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("page store is not configured")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	url,
	last_error,
	attempts_made,
	canceled
) VALUES ($1, $2, $3, $4, $5)`, s.failuresTable)

	if _, err := s.pool.Exec(ctx, query,
		runID,
		failure.URL,
		failure.LastError,
		failure.AttemptsMade,
		failure.Canceled,
	); err != nil {
		return fmt.Errorf("insert failure row: %w", err)
	}
	return nil
}
