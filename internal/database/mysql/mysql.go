// Package mysql opens MySQL / MariaDB databases for the sqldb provider
// using github.com/go-sql-driver/mysql.
package mysql

import (
	"database/sql"
	"net"
	"net/url"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/rowbridge/internal/database"
	"github.com/koustreak/rowbridge/internal/database/sqldb"
	"github.com/koustreak/rowbridge/internal/errs"
)

const defaultPort = "3306"

// New returns a sqldb.Provider for mysql: and mariadb: descriptors.
func New(cfg *database.Config) *sqldb.Provider {
	return sqldb.New("mysql", Open, Classify, cfg)
}

// Open builds a connector from the descriptor and wraps it in a *sql.DB.
func Open(d database.Descriptor) (*sql.DB, error) {
	cfg, err := Config(d)
	if err != nil {
		return nil, err
	}
	connector, err := gomysql.NewConnector(cfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid mysql configuration", err)
	}
	return sql.OpenDB(connector), nil
}

// Config translates a URL style address into a driver config:
//
//	mysql://host[:port]/dbname?param=value
//
// Query parameters are the driver's DSN parameters (parseTime, tls,
// charset, …). Descriptor credentials win over userinfo in the URL.
func Config(d database.Descriptor) (*gomysql.Config, error) {
	scheme, rest, err := d.Scheme()
	if err != nil {
		return nil, err
	}
	if scheme != "mysql" && scheme != "mariadb" {
		return nil, errs.New(errs.ErrKindConnectionFailed, "not a mysql address: "+scheme)
	}

	u, err := url.Parse(scheme + ":" + rest)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid mysql address", err)
	}
	if u.Host == "" {
		return nil, errs.New(errs.ErrKindConnectionFailed, "mysql address has no host")
	}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, defaultPort)
	}

	// Let the driver parse its own parameters; credentials are set on the
	// struct so no escaping rules apply to them.
	dsn := "tcp(" + host + ")/" + strings.TrimPrefix(u.Path, "/")
	if u.RawQuery != "" {
		dsn += "?" + u.RawQuery
	}
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid mysql parameters", err)
	}

	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	if d.Username != "" {
		cfg.User = d.Username
	}
	if d.Secret != "" {
		cfg.Passwd = d.Secret
	}
	return cfg, nil
}
