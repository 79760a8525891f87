package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/koustreak/rowbridge/internal/errs"
)

// SQLSTATE classes and codes that mean the session itself is unusable.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	classConnection    = "08" // connection_exception
	classInvalidAuth   = "28" // invalid_authorization_specification
	classInvalidDB     = "3D" // invalid_catalog_name
	codeAdminShutdown  = "57P01"
	codeCrashShutdown  = "57P02"
	codeCannotConnect  = "57P03"
	codeTooManyClients = "53300"
)

// mapError translates pgx / pgconn native errors into *errs.Error. phase
// is the kind used when the error carries no better signal.
func mapError(err error, phase errs.ErrKind, msg string) error {
	if err == nil {
		return nil
	}

	// Context cancellation / deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(classifySQLState(pgErr.Code), fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// Dial, TLS and auth handshake failures
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	return errs.Wrap(phase, msg, err)
}

// ClassifyPQ maps lib/pq errors for the database/sql provider.
func ClassifyPQ(err error) errs.ErrKind {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifySQLState(string(pqErr.Code))
	}
	if errors.Is(err, driver.ErrBadConn) {
		return errs.ErrKindConnectionFailed
	}
	return errs.ErrKindUnknown
}

func classifySQLState(code string) errs.ErrKind {
	if len(code) >= 2 {
		switch code[:2] {
		case classConnection, classInvalidAuth, classInvalidDB:
			return errs.ErrKindConnectionFailed
		}
	}
	switch code {
	case codeAdminShutdown, codeCrashShutdown, codeCannotConnect, codeTooManyClients:
		return errs.ErrKindConnectionFailed
	}
	return errs.ErrKindQueryFailed
}
