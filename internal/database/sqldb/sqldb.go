// Package sqldb implements database.Provider over database/sql.
//
// It is shared by every backend that ships a database/sql driver (MySQL,
// SQLite, lib/pq). A backend supplies two functions: an OpenFunc that turns
// a descriptor into a *sql.DB, and a Classifier that maps the driver's
// native errors to an errs.ErrKind.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/koustreak/rowbridge/internal/database"
	"github.com/koustreak/rowbridge/internal/errs"
)

// OpenFunc opens (but need not connect) a pool for d.
type OpenFunc func(d database.Descriptor) (*sql.DB, error)

// Classifier maps a driver error to an ErrKind. It returns ErrKindUnknown
// when it does not recognise the error.
type Classifier func(err error) errs.ErrKind

// Provider keeps one *sql.DB per descriptor and hands out single
// connections from it. It is safe for concurrent use.
type Provider struct {
	name     string
	open     OpenFunc
	classify Classifier
	cfg      *database.Config

	mu    sync.Mutex
	pools map[string]*sql.DB
}

// New returns a Provider. name labels error messages ("mysql", "sqlite").
func New(name string, open OpenFunc, classify Classifier, cfg *database.Config) *Provider {
	if cfg == nil {
		cfg = database.DefaultConfig()
	}
	if classify == nil {
		classify = func(error) errs.ErrKind { return errs.ErrKindUnknown }
	}
	return &Provider{
		name:     name,
		open:     open,
		classify: classify,
		cfg:      cfg,
		pools:    make(map[string]*sql.DB),
	}
}

// --- database.Provider implementation ---

// Acquire takes one connection from the descriptor's pool, opening the
// pool on first use.
func (p *Provider) Acquire(ctx context.Context, d database.Descriptor) (database.Conn, error) {
	db, err := p.pool(d)
	if err != nil {
		return nil, err
	}

	if p.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ConnectTimeout)
		defer cancel()
	}

	c, err := db.Conn(ctx)
	if err != nil {
		return nil, p.mapError(err, errs.ErrKindConnectionFailed, p.name+": failed to acquire connection")
	}
	return &conn{conn: c, p: p}, nil
}

// Close closes every pool. Connections still checked out are closed when
// they are returned.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errList []error
	for key, db := range p.pools {
		if err := db.Close(); err != nil {
			errList = append(errList, err)
		}
		delete(p.pools, key)
	}
	return errors.Join(errList...)
}

// Stats reports pool statistics for d, or false when no pool is open.
func (p *Provider) Stats(d database.Descriptor) (sql.DBStats, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	db, ok := p.pools[d.Key()]
	if !ok {
		return sql.DBStats{}, false
	}
	return db.Stats(), true
}

func (p *Provider) pool(d database.Descriptor) (*sql.DB, error) {
	key := d.Key()

	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.pools[key]; ok {
		return db, nil
	}

	db, err := p.open(d)
	if err != nil {
		return nil, errs.Ensure(err, errs.ErrKindConnectionFailed, p.name+": invalid connection address")
	}

	if p.cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(p.cfg.MaxConns))
	}
	db.SetMaxIdleConns(int(max(p.cfg.MinConns, 2)))
	db.SetConnMaxLifetime(p.cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(p.cfg.MaxConnIdleTime)

	p.pools[key] = db
	return db, nil
}

// mapError classifies err with the backend's Classifier, falling back to
// the kind implied by the phase that failed.
func (p *Provider) mapError(err error, phase errs.ErrKind, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	kind := p.classify(err)
	if kind == errs.ErrKindUnknown {
		kind = phase
	}
	return errs.Wrap(kind, msg, err)
}

// --- sql type wrappers ---

type conn struct {
	conn *sql.Conn
	p    *Provider
}

// Prepare hands query to the driver. Some drivers, sqlite among them,
// compile lazily, so a syntax error may only surface at Query or Exec.
func (c *conn) Prepare(ctx context.Context, query string) (database.Stmt, error) {
	st, err := c.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, c.p.mapError(err, errs.ErrKindQueryFailed, c.p.name+": prepare failed")
	}
	return &stmt{stmt: st, p: c.p}, nil
}

func (c *conn) Close() error { return c.conn.Close() }

type stmt struct {
	stmt *sql.Stmt
	p    *Provider
}

func (s *stmt) Query(ctx context.Context, args ...any) (database.Rows, error) {
	r, err := s.stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, s.p.mapError(err, errs.ErrKindQueryFailed, s.p.name+": query failed")
	}
	return &rows{rows: r, p: s.p}, nil
}

func (s *stmt) Exec(ctx context.Context, args ...any) (int64, error) {
	res, err := s.stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, s.p.mapError(err, errs.ErrKindQueryFailed, s.p.name+": exec failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.p.mapError(err, errs.ErrKindQueryFailed, s.p.name+": rows affected unavailable")
	}
	return n, nil
}

func (s *stmt) Close() error { return s.stmt.Close() }

type rows struct {
	rows  *sql.Rows
	p     *Provider
	width int
}

func (r *rows) Columns() ([]database.Column, error) {
	types, err := r.rows.ColumnTypes()
	if err != nil {
		return nil, r.p.mapError(err, errs.ErrKindQueryFailed, r.p.name+": failed to read column metadata")
	}
	cols := make([]database.Column, len(types))
	for i, ct := range types {
		cols[i] = database.Column{
			Name:         ct.Name(),
			Ordinal:      i + 1,
			DatabaseType: ct.DatabaseTypeName(),
		}
	}
	r.width = len(cols)
	return cols, nil
}

func (r *rows) Next() bool { return r.rows.Next() }

func (r *rows) Values() ([]any, error) {
	if r.width == 0 {
		if _, err := r.Columns(); err != nil {
			return nil, err
		}
	}
	vals, err := database.ScanValues(r.rows, r.width)
	if err != nil {
		return nil, r.p.mapError(err, errs.ErrKindQueryFailed, r.p.name+": failed to scan row")
	}
	return vals, nil
}

func (r *rows) Err() error {
	return r.p.mapError(r.rows.Err(), errs.ErrKindQueryFailed, r.p.name+": error during row iteration")
}

func (r *rows) Close() error { return r.rows.Close() }
