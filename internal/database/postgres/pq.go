package postgres

import (
	"database/sql"
	"net/url"

	"github.com/lib/pq"

	"github.com/koustreak/rowbridge/internal/database"
	"github.com/koustreak/rowbridge/internal/database/sqldb"
	"github.com/koustreak/rowbridge/internal/errs"
)

// NewPQ returns a database/sql provider for postgres descriptors backed by
// lib/pq, for hosts that select PostgresPQ.
func NewPQ(cfg *database.Config) *sqldb.Provider {
	return sqldb.New("postgres", OpenPQ, ClassifyPQ, cfg)
}

// OpenPQ builds a lib/pq connector with the descriptor credentials folded
// into the URL.
func OpenPQ(d database.Descriptor) (*sql.DB, error) {
	dsn, err := PQConnString(d)
	if err != nil {
		return nil, err
	}
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "postgres: invalid connection address", err)
	}
	return sql.OpenDB(connector), nil
}

// PQConnString returns the URL lib/pq should dial.
func PQConnString(d database.Descriptor) (string, error) {
	connString, err := ConnString(d)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(connString)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindConnectionFailed, "postgres: invalid connection address", err)
	}

	user, pass := "", ""
	hasPass := false
	if u.User != nil {
		user = u.User.Username()
		pass, hasPass = u.User.Password()
	}
	if d.Username != "" {
		user = d.Username
	}
	if d.Secret != "" {
		pass, hasPass = d.Secret, true
	}
	switch {
	case hasPass:
		u.User = url.UserPassword(user, pass)
	case user != "":
		u.User = url.User(user)
	}
	return u.String(), nil
}
