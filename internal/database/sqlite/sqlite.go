// Package sqlite opens SQLite databases for the sqldb provider using the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"database/sql"
	"errors"
	"strings"

	"modernc.org/sqlite"

	"github.com/koustreak/rowbridge/internal/database"
	"github.com/koustreak/rowbridge/internal/database/sqldb"
	"github.com/koustreak/rowbridge/internal/errs"
)

// driverName is the name modernc.org/sqlite registers with database/sql.
const driverName = "sqlite"

// SQLite primary result codes that mean "could not open / not allowed".
// Full list: https://www.sqlite.org/rescode.html
const (
	codePerm     = 3
	codeCantOpen = 14
	codeAuth     = 23
	codeNotADB   = 26
)

// New returns a sqldb.Provider for sqlite: descriptors.
func New(cfg *database.Config) *sqldb.Provider {
	return sqldb.New("sqlite", Open, Classify, cfg)
}

// Open turns sqlite:<path> (or sqlite:///abs/path, jdbc:sqlite:<path>) into
// a *sql.DB. The path may carry modernc query parameters such as
// ?_pragma=busy_timeout(5000). Username and Secret are ignored.
func Open(d database.Descriptor) (*sql.DB, error) {
	path, err := Path(d)
	if err != nil {
		return nil, err
	}
	return sql.Open(driverName, path)
}

// Path extracts the database file path from the descriptor.
func Path(d database.Descriptor) (string, error) {
	scheme, rest, err := d.Scheme()
	if err != nil {
		return "", err
	}
	if scheme != "sqlite" && scheme != "sqlite3" {
		return "", errs.New(errs.ErrKindConnectionFailed, "not a sqlite address: "+scheme)
	}
	path := strings.TrimPrefix(rest, "//")
	if path == "" {
		return "", errs.New(errs.ErrKindConnectionFailed, "sqlite address has no path")
	}
	return path, nil
}

// Classify maps a modernc sqlite error by primary result code.
func Classify(err error) errs.ErrKind {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return errs.ErrKindUnknown
	}
	switch sqliteErr.Code() & 0xff {
	case codePerm, codeCantOpen, codeAuth, codeNotADB:
		return errs.ErrKindConnectionFailed
	default:
		return errs.ErrKindQueryFailed
	}
}
