package database

import "context"

// Provider resolves a Descriptor to a live connection. Pooling is the
// provider's business; callers see one Conn per Acquire and must Close it.
// Implementations are safe for concurrent use.
type Provider interface {
	// Acquire returns a connection to the database named by d.
	Acquire(ctx context.Context, d Descriptor) (Conn, error)

	// Close releases every pool the provider opened.
	Close() error
}

// Conn is a single acquired connection.
type Conn interface {
	// Prepare compiles sql on this connection. The text is passed through
	// untouched; dialect rules are the caller's concern.
	Prepare(ctx context.Context, sql string) (Stmt, error)

	// Close hands the connection back to its pool.
	Close() error
}

// Stmt is a prepared statement bound to one Conn.
type Stmt interface {
	// Query runs the statement and returns a cursor over its rows.
	Query(ctx context.Context, args ...any) (Rows, error)

	// Exec runs the statement and returns the affected-row count.
	Exec(ctx context.Context, args ...any) (int64, error)

	// Close releases the statement.
	Close() error
}

// Rows is a cursor over a result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Columns describes the result set in ordinal order.
	Columns() ([]Column, error)

	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Values returns the current row in column order, as the driver
	// produced them.
	Values() ([]any, error)

	// Err returns any error encountered during iteration.
	Err() error

	// Close releases resources held by the result set.
	Close() error
}

// Column describes one result column.
type Column struct {
	Name         string // as reported by the driver, case preserved
	Ordinal      int    // 1-based position
	DatabaseType string // driver type name, e.g. "INT8", "VARCHAR"; may be empty
}
