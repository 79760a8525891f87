// Package bridge runs SQL against a relational database and hands the
// result back as records, as a JSON array, or as an affected-row count.
//
// A Bridge holds no per-call state. Every call acquires its own
// connection from the injected provider, prepares the statement, reads or
// executes, and releases the cursor, the statement and the connection
// before returning, whether it succeeded or not.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/rowbridge/internal/database"
	"github.com/koustreak/rowbridge/internal/errs"
	"github.com/koustreak/rowbridge/internal/logger"
	"github.com/koustreak/rowbridge/internal/record"
)

// Config bounds a single call. Zero values mean no limit.
type Config struct {
	// QueryTimeout is applied on top of the caller's context.
	QueryTimeout time.Duration `yaml:"query_timeout"`

	// MaxRows aborts a read with ErrKindLimitExceeded once the cursor
	// yields more rows than this.
	MaxRows int `yaml:"max_rows"`
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger. Without it the bridge logs to the logger
// carried by each call's context, if any.
func WithLogger(l *logger.Logger) Option {
	return func(b *Bridge) { b.log = l }
}

// WithConfig sets the per-call limits.
func WithConfig(cfg Config) Option {
	return func(b *Bridge) { b.cfg = cfg }
}

// Bridge is safe for concurrent use.
type Bridge struct {
	provider database.Provider
	factory  record.Factory
	log      *logger.Logger
	cfg      Config
}

// New returns a Bridge that acquires connections from provider and builds
// records with factory. factory may be nil when only QueryJSON and Exec
// are used.
func New(provider database.Provider, factory record.Factory, opts ...Option) *Bridge {
	b := &Bridge{provider: provider, factory: factory}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// QueryRecords runs sql and returns one record of typeName per row, in
// cursor order. Every column is set as a field named after the column,
// holding the driver's value unchanged. On failure no records are
// returned.
func (b *Bridge) QueryRecords(ctx context.Context, desc database.Descriptor, typeName, sql string, args ...any) ([]record.Record, error) {
	log := b.begin(ctx, "query_records", desc, sql, args)
	if b.factory == nil {
		err := errs.New(errs.ErrKindInstantiation, "no record factory configured")
		log.ErrorWith("query failed", err, nil)
		return nil, err
	}

	out := make([]record.Record, 0)
	var cols []database.Column
	debug := log.DebugEnabled()

	err := b.read(ctx, log, desc, sql, args,
		func(c []database.Column) error {
			cols = c
			if v, ok := b.factory.(record.Validator); ok {
				if err := v.Validate(typeName, database.Names(cols)); err != nil {
					return errs.Ensure(err, errs.ErrKindInstantiation, "result columns do not fit record type "+typeName)
				}
			}
			return nil
		},
		func(ctx context.Context, vals []any) error {
			rec, err := b.factory.Instantiate(ctx, typeName)
			if err != nil {
				return errs.Ensure(err, errs.ErrKindInstantiation, "failed to instantiate record type "+typeName)
			}
			if rec == nil {
				return errs.New(errs.ErrKindInstantiation, "record factory returned nil for type "+typeName)
			}
			for i, col := range cols {
				if debug {
					log.DebugWith("set field", map[string]any{
						"row":     len(out) + 1,
						"field":   col.Name,
						"ordinal": col.Ordinal,
						"db_type": col.DatabaseType,
						"go_type": fmt.Sprintf("%T", vals[i]),
					})
				}
				if err := rec.Set(ctx, col.Name, vals[i]); err != nil {
					return errs.Ensure(err, errs.ErrKindInstantiation, fmt.Sprintf("failed to set field %q", col.Name))
				}
			}
			out = append(out, rec)
			return nil
		},
	)
	if err != nil {
		log.ErrorWith("query failed", err, nil)
		return nil, err
	}

	log.InfoWith("query completed", map[string]any{"rows": len(out)})
	return out, nil
}

// QueryJSON runs sql and renders the rows as a JSON array of objects.
// Keys follow the result column order; an empty result is "[]".
func (b *Bridge) QueryJSON(ctx context.Context, desc database.Descriptor, sql string, args ...any) (string, error) {
	log := b.begin(ctx, "query_json", desc, sql, args)

	rows := make([]*record.Map, 0)
	var cols []database.Column
	debug := log.DebugEnabled()

	err := b.read(ctx, log, desc, sql, args,
		func(c []database.Column) error {
			cols = c
			return nil
		},
		func(ctx context.Context, vals []any) error {
			m := record.NewMap("", len(cols))
			for i, col := range cols {
				if debug {
					log.DebugWith("set field", map[string]any{
						"row":     len(rows) + 1,
						"field":   col.Name,
						"ordinal": col.Ordinal,
						"db_type": col.DatabaseType,
						"go_type": fmt.Sprintf("%T", vals[i]),
					})
				}
				_ = m.Set(ctx, col.Name, vals[i])
			}
			rows = append(rows, m)
			return nil
		},
	)
	if err != nil {
		log.ErrorWith("query failed", err, nil)
		return "", err
	}

	data, err := json.Marshal(rows)
	if err != nil {
		err = errs.Wrap(errs.ErrKindQueryFailed, "failed to encode rows as JSON", err)
		log.ErrorWith("query failed", err, nil)
		return "", err
	}

	log.InfoWith("query completed", map[string]any{"rows": len(rows), "bytes": len(data)})
	return string(data), nil
}

// Exec runs a statement that returns no rows and reports how many rows it
// affected.
func (b *Bridge) Exec(ctx context.Context, desc database.Descriptor, sql string, args ...any) (int64, error) {
	log := b.begin(ctx, "exec", desc, sql, args)

	var affected int64
	err := b.withStmt(ctx, log, desc, sql, func(ctx context.Context, stmt database.Stmt) error {
		n, err := stmt.Exec(ctx, args...)
		if err != nil {
			return errs.Ensure(err, errs.ErrKindQueryFailed, "failed to execute statement")
		}
		affected = n
		return nil
	})
	if err != nil {
		log.ErrorWith("exec failed", err, nil)
		return 0, err
	}

	log.InfoWith("exec completed", map[string]any{"affected": affected})
	return affected, nil
}

// begin returns the call-scoped logger and logs the invocation.
func (b *Bridge) begin(ctx context.Context, op string, desc database.Descriptor, sql string, args []any) *logger.Logger {
	base := b.log
	if base == nil {
		base = logger.FromContext(ctx)
	}
	log := base.With().
		Str("op", op).
		Str("call", uuid.NewString()).
		Logger()

	log.InfoWith("invoked", map[string]any{
		"address": desc.Redacted(),
		"user":    desc.Username,
		"sql":     sql,
		"args":    len(args),
	})
	return log
}

// read runs sql as a query. onColumns sees the result metadata once,
// before any row; onRow sees each row's values in column order.
func (b *Bridge) read(
	ctx context.Context,
	log *logger.Logger,
	desc database.Descriptor,
	sql string,
	args []any,
	onColumns func([]database.Column) error,
	onRow func(context.Context, []any) error,
) error {
	return b.withStmt(ctx, log, desc, sql, func(ctx context.Context, stmt database.Stmt) (err error) {
		rows, err := stmt.Query(ctx, args...)
		if err != nil {
			return errs.Ensure(err, errs.ErrKindQueryFailed, "failed to execute query")
		}
		defer closeInto(log, &err, rows, errs.ErrKindQueryFailed, "failed to close result set")

		cols, err := rows.Columns()
		if err != nil {
			return errs.Ensure(err, errs.ErrKindQueryFailed, "failed to read result columns")
		}
		if err := onColumns(cols); err != nil {
			return err
		}

		n := 0
		for rows.Next() {
			n++
			if b.cfg.MaxRows > 0 && n > b.cfg.MaxRows {
				log.WarnWith("row limit exceeded", nil, map[string]any{"max_rows": b.cfg.MaxRows})
				return errs.New(errs.ErrKindLimitExceeded, fmt.Sprintf("result has more than %d rows", b.cfg.MaxRows))
			}
			vals, err := rows.Values()
			if err != nil {
				return errs.Ensure(err, errs.ErrKindQueryFailed, fmt.Sprintf("failed to read row %d", n))
			}
			if len(vals) != len(cols) {
				return errs.New(errs.ErrKindQueryFailed, fmt.Sprintf("row %d has %d values for %d columns", n, len(vals), len(cols)))
			}
			if err := onRow(ctx, vals); err != nil {
				return err
			}
		}
		if err := rows.Err(); err != nil {
			return errs.Ensure(err, errs.ErrKindQueryFailed, "failed to iterate rows")
		}
		return nil
	})
}

// withStmt acquires a connection, prepares sql on it and calls fn. The
// statement and the connection are closed before it returns; a close
// failure is reported only when nothing failed earlier, and logged
// otherwise.
func (b *Bridge) withStmt(ctx context.Context, log *logger.Logger, desc database.Descriptor, sql string, fn func(context.Context, database.Stmt) error) (err error) {
	if strings.TrimSpace(sql) == "" {
		return errs.New(errs.ErrKindQueryFailed, "empty SQL statement")
	}

	if b.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.QueryTimeout)
		defer cancel()
	}

	conn, err := b.provider.Acquire(ctx, desc)
	if err != nil {
		return acquireError(err)
	}
	defer closeInto(log, &err, conn, errs.ErrKindConnectionFailed, "failed to release connection")

	stmt, err := conn.Prepare(ctx, sql)
	if err != nil {
		return errs.Ensure(err, errs.ErrKindQueryFailed, "failed to prepare statement")
	}
	defer closeInto(log, &err, stmt, errs.ErrKindQueryFailed, "failed to close statement")

	return fn(ctx, stmt)
}

// acquireError reports any failure to reach the database, a bad or
// unsupported address included, as a connection failure. Deadlines stay
// timeouts.
func acquireError(err error) error {
	const msg = "failed to acquire connection"
	switch errs.KindOf(err) {
	case errs.ErrKindConnectionFailed, errs.ErrKindTimeout:
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

func closeInto(log *logger.Logger, errp *error, c io.Closer, kind errs.ErrKind, msg string) {
	cerr := c.Close()
	if cerr == nil {
		return
	}
	if *errp == nil {
		*errp = errs.Ensure(cerr, kind, msg)
		return
	}
	log.WarnWith(msg, cerr, nil)
}
