// Package postgres provides PostgreSQL backends: a native pgx provider
// (the default) and a lib/pq opener for the database/sql provider.
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/rowbridge/internal/database"
	"github.com/koustreak/rowbridge/internal/errs"
)

// deallocateTimeout bounds statement cleanup, which runs after the
// caller's context may already be done.
const deallocateTimeout = 5 * time.Second

// Provider is a PostgreSQL implementation of database.Provider backed by
// one pgxpool per descriptor. It is safe for concurrent use by multiple
// goroutines.
type Provider struct {
	cfg *database.Config

	mu    sync.Mutex
	pools map[string]*pgxpool.Pool

	seq atomic.Uint64 // prepared statement names
}

// New returns a Provider. Pools are created lazily on first Acquire.
func New(cfg *database.Config) *Provider {
	if cfg == nil {
		cfg = database.DefaultConfig()
	}
	return &Provider{cfg: cfg, pools: make(map[string]*pgxpool.Pool)}
}

// --- database.Provider implementation ---

// Acquire takes a connection from the descriptor's pool.
func (p *Provider) Acquire(ctx context.Context, d database.Descriptor) (database.Conn, error) {
	pool, err := p.pool(d)
	if err != nil {
		return nil, err
	}

	if p.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ConnectTimeout)
		defer cancel()
	}

	c, err := pool.Acquire(ctx)
	if err != nil {
		return nil, mapError(err, errs.ErrKindConnectionFailed, "postgres: failed to acquire connection")
	}
	return &conn{conn: c, p: p}, nil
}

// Close drains every pool. Call when the host shuts down.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, pool := range p.pools {
		pool.Close()
		delete(p.pools, key)
	}
	return nil
}

func (p *Provider) pool(d database.Descriptor) (*pgxpool.Pool, error) {
	key := d.Key()

	p.mu.Lock()
	defer p.mu.Unlock()

	if pool, ok := p.pools[key]; ok {
		return pool, nil
	}

	poolCfg, err := PoolConfig(d, p.cfg)
	if err != nil {
		return nil, err
	}

	// The pool outlives the call that created it, so it must not inherit
	// that call's context.
	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, mapError(err, errs.ErrKindConnectionFailed, "postgres: failed to create connection pool")
	}
	p.pools[key] = pool
	return pool, nil
}

// PoolConfig parses the descriptor address and applies credentials and
// pool tuning. Descriptor credentials win over those embedded in the URL.
func PoolConfig(d database.Descriptor, cfg *database.Config) (*pgxpool.Config, error) {
	connString, err := ConnString(d)
	if err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "postgres: invalid connection address", err)
	}

	if d.Username != "" {
		poolCfg.ConnConfig.User = d.Username
	}
	if d.Secret != "" {
		poolCfg.ConnConfig.Password = d.Secret
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	return poolCfg, nil
}

// ConnString returns the postgres:// URL for a postgres or postgresql
// descriptor, with any "jdbc:" prefix removed.
func ConnString(d database.Descriptor) (string, error) {
	scheme, rest, err := d.Scheme()
	if err != nil {
		return "", err
	}
	if scheme != "postgres" && scheme != "postgresql" {
		return "", errs.New(errs.ErrKindConnectionFailed, "not a postgres address: "+scheme)
	}
	if !strings.HasPrefix(rest, "//") {
		return "", errs.New(errs.ErrKindConnectionFailed, "postgres address must be a URL")
	}
	if _, err := url.Parse("postgres:" + rest); err != nil {
		return "", errs.Wrap(errs.ErrKindConnectionFailed, "postgres: invalid connection address", err)
	}
	return "postgres:" + rest, nil
}

// --- pgx type wrappers ---

// conn wraps an acquired pool connection.
type conn struct {
	conn *pgxpool.Conn
	p    *Provider
}

// Prepare creates a uniquely named server-side statement.
func (c *conn) Prepare(ctx context.Context, sql string) (database.Stmt, error) {
	name := fmt.Sprintf("rowbridge_%d", c.p.seq.Add(1))
	if _, err := c.conn.Conn().Prepare(ctx, name, sql); err != nil {
		return nil, mapError(err, errs.ErrKindQueryFailed, "postgres: prepare failed")
	}
	return &stmt{conn: c.conn, name: name}, nil
}

// Close returns the connection to its pool.
func (c *conn) Close() error {
	c.conn.Release()
	return nil
}

type stmt struct {
	conn *pgxpool.Conn
	name string
}

func (s *stmt) Query(ctx context.Context, args ...any) (database.Rows, error) {
	rows, err := s.conn.Query(ctx, s.name, args...)
	if err != nil {
		return nil, mapError(err, errs.ErrKindQueryFailed, "postgres: query failed")
	}
	return &pgxRows{rows: rows, types: s.conn.Conn().TypeMap()}, nil
}

func (s *stmt) Exec(ctx context.Context, args ...any) (int64, error) {
	tag, err := s.conn.Exec(ctx, s.name, args...)
	if err != nil {
		return 0, mapError(err, errs.ErrKindQueryFailed, "postgres: exec failed")
	}
	return tag.RowsAffected(), nil
}

// Close deallocates the server-side statement.
func (s *stmt) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), deallocateTimeout)
	defer cancel()

	if err := s.conn.Conn().Deallocate(ctx, s.name); err != nil {
		return mapError(err, errs.ErrKindQueryFailed, "postgres: deallocate failed")
	}
	return nil
}

// pgxRows wraps pgx.Rows to satisfy database.Rows.
type pgxRows struct {
	rows  pgx.Rows
	types *pgtype.Map
}

func (r *pgxRows) Columns() ([]database.Column, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]database.Column, len(descs))
	for i, fd := range descs {
		cols[i] = database.Column{
			Name:         fd.Name,
			Ordinal:      i + 1,
			DatabaseType: r.typeName(fd.DataTypeOID),
		}
	}
	return cols, nil
}

func (r *pgxRows) typeName(oid uint32) string {
	if r.types == nil {
		return ""
	}
	if t, ok := r.types.TypeForOID(oid); ok {
		return strings.ToUpper(t.Name)
	}
	return ""
}

func (r *pgxRows) Next() bool { return r.rows.Next() }

func (r *pgxRows) Values() ([]any, error) {
	vals, err := r.rows.Values()
	if err != nil {
		return nil, mapError(err, errs.ErrKindQueryFailed, "postgres: failed to decode row")
	}
	return vals, nil
}

func (r *pgxRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return mapError(err, errs.ErrKindQueryFailed, "postgres: error during row iteration")
	}
	return nil
}

func (r *pgxRows) Close() error {
	r.rows.Close()
	return nil
}
