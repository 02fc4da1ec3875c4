// Package postgres provides a self-hosted watch-list provider backed by
// PostgreSQL. The catalogue lives in the media_catalogue table (seeded by the
// operator); the watch list lives in media_watchlist.
//
// Typical usage:
//
//	p, err := postgres.NewProvider(ctx, dsn)
//	if err != nil { ... }
//	defer p.Close()
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/couchskill/pkg/provider/media"
)

// Schema is the SQL DDL for the catalogue and watch-list tables. Execute it
// via [Provider.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS media_catalogue (
    imdb       TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    year       INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_media_catalogue_title ON media_catalogue(lower(title));

CREATE TABLE IF NOT EXISTS media_watchlist (
    id       UUID PRIMARY KEY,
    imdb     TEXT NOT NULL UNIQUE,
    title    TEXT NOT NULL,
    year     INTEGER NOT NULL DEFAULT 0,
    status   TEXT NOT NULL DEFAULT 'active',
    added_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_media_watchlist_title ON media_watchlist(lower(title));
`

const defaultSearchLimit = 10

// DB is the database interface used by [Provider]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Compile-time interface checks.
var (
	_ media.Provider = (*Provider)(nil)
	_ media.Pinger   = (*Provider)(nil)
)

// Option is a functional option for configuring a [Provider].
type Option func(*Provider)

// WithSearchLimit caps the number of rows Search and Find return.
// Defaults to 10. Non-positive values are ignored.
func WithSearchLimit(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.limit = n
		}
	}
}

// Provider is a [media.Provider] backed by a PostgreSQL database.
// All operations are safe for concurrent use.
type Provider struct {
	db    DB
	pool  *pgxpool.Pool
	limit int
	newID func() string
}

// New creates a Provider that uses the given database connection or pool.
// The caller is responsible for calling [Provider.Migrate] to ensure the
// schema exists before issuing queries.
func New(db DB, opts ...Option) *Provider {
	p := &Provider{
		db:    db,
		limit: defaultSearchLimit,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// NewProvider opens a connection pool to the PostgreSQL database at dsn,
// verifies connectivity, and runs [Provider.Migrate]. Call [Provider.Close]
// to release the pool.
func NewProvider(ctx context.Context, dsn string, opts ...Option) (*Provider, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres media: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres media: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres media: ping: %w", err)
	}

	p := New(pool, opts...)
	p.pool = pool
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Migrate executes the [Schema] DDL against the database.
func (p *Provider) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres media: migrate: %w", err)
	}
	return nil
}

// Close releases the connection pool opened by [NewProvider]. It is a no-op
// for providers created with [New].
func (p *Provider) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Search returns catalogue entries whose titles contain query,
// case-insensitively. Prefix matches rank first.
func (p *Provider) Search(ctx context.Context, query string) ([]media.Media, error) {
	const q = `
		SELECT title, year, imdb
		FROM media_catalogue
		WHERE title ILIKE '%' || $1 || '%' ESCAPE '\'
		ORDER BY (lower(title) LIKE lower($1) || '%' ESCAPE '\') DESC, title
		LIMIT $2`

	rows, err := p.db.Query(ctx, q, escapeLike(query), p.limit)
	if err != nil {
		return nil, fmt.Errorf("postgres media: search: %w", err)
	}
	defer rows.Close()

	var out []media.Media
	for rows.Next() {
		var m media.Media
		if err := rows.Scan(&m.Title, &m.Year, &m.IMDB); err != nil {
			return nil, fmt.Errorf("postgres media: search scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres media: search rows: %w", err)
	}
	return out, nil
}

// Find returns watch-list entries whose titles contain query,
// case-insensitively, most recently added first.
func (p *Provider) Find(ctx context.Context, query string) ([]media.Media, error) {
	const q = `
		SELECT title, year, imdb, status
		FROM media_watchlist
		WHERE title ILIKE '%' || $1 || '%' ESCAPE '\'
		ORDER BY added_at DESC
		LIMIT $2`

	rows, err := p.db.Query(ctx, q, escapeLike(query), p.limit)
	if err != nil {
		return nil, fmt.Errorf("postgres media: find: %w", err)
	}
	defer rows.Close()

	var out []media.Media
	for rows.Next() {
		var m media.Media
		if err := rows.Scan(&m.Title, &m.Year, &m.IMDB, &m.Status); err != nil {
			return nil, fmt.Errorf("postgres media: find scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres media: find rows: %w", err)
	}
	return out, nil
}

// Add puts every item on the watch list. Items already on the list (same IMDb
// identifier) are left untouched. It stops at the first failure.
func (p *Provider) Add(ctx context.Context, items []media.Media) error {
	const q = `
		INSERT INTO media_watchlist (id, imdb, title, year)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (imdb) DO NOTHING`

	for _, item := range items {
		if item.IMDB == "" {
			return fmt.Errorf("postgres media: add %q: missing imdb identifier", item.Title)
		}
		if _, err := p.db.Exec(ctx, q, p.newID(), item.IMDB, item.Title, item.Year); err != nil {
			return fmt.Errorf("postgres media: add %q: %w", item.Title, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (p *Provider) Ping(ctx context.Context) error {
	if p.pool != nil {
		if err := p.pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres media: ping: %w", err)
		}
		return nil
	}
	var one int
	if err := p.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("postgres media: ping: %w", err)
	}
	return nil
}

// escapeLike escapes the LIKE metacharacters in s so it matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
