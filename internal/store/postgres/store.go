// Package postgres provides a Postgres-backed recipe store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/recipe-ingest/internal/metrics"
	"github.com/JakeFAU/recipe-ingest/internal/recipe"
	"github.com/JakeFAU/recipe-ingest/internal/store"
)

const defaultTable = "recipes"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type queryCloser interface {
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store writes recipe rows into Postgres.
type Store struct {
	pool  queryCloser
	table string
	now   func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates a pool from cfg and returns a Store over it.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres.dsn is required")
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
	s, err := NewWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool builds a Store over an existing pool.
func NewWithPool(pool queryCloser, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table, now: time.Now}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Save inserts rec and returns the generated id.
func (s *Store) Save(ctx context.Context, rec recipe.NormalizedRecipe) (id string, err error) {
	defer func() { metrics.ObserveStoreRequest("save", err) }()

	query := fmt.Sprintf(`
INSERT INTO %s (
	focus_keyword,
	full_recipe,
	paa,
	image_url,
	source_url,
	normalized_url,
	date_added
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
) RETURNING id`, s.table)

	var rowID int64
	err = s.pool.QueryRow(ctx, query,
		rec.FocusKeyword,
		rec.FullRecipe,
		rec.PAA,
		rec.ImageURL,
		rec.SourceURL,
		store.NormalizeURL(rec.SourceURL),
		s.now().UTC().Truncate(24*time.Hour),
	).Scan(&rowID)
	if err != nil {
		return "", fmt.Errorf("insert recipe: %w", err)
	}
	return strconv.FormatInt(rowID, 10), nil
}

// Exists reports whether a row with normalizedURL is stored.
func (s *Store) Exists(ctx context.Context, normalizedURL string) (exists bool, err error) {
	defer func() { metrics.ObserveStoreRequest("exists", err) }()

	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE normalized_url = $1)`, s.table)
	if err = s.pool.QueryRow(ctx, query, normalizedURL).Scan(&exists); err != nil {
		return false, fmt.Errorf("check recipe exists: %w", err)
	}
	return exists, nil
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (n int, err error) {
	defer func() { metrics.ObserveStoreRequest("count", err) }()

	var count int64
	if err = s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count recipes: %w", err)
	}
	return int(count), nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}
