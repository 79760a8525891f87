package database

import "time"

// PostgresDriver selects the client library used for postgres:// descriptors.
type PostgresDriver string

const (
	PostgresPGX PostgresDriver = "pgx" // native pgxpool (default)
	PostgresPQ  PostgresDriver = "pq"  // database/sql via lib/pq
)

// Config holds the pool settings applied to every pool a provider opens.
// One pool exists per distinct descriptor.
type Config struct {
	// PostgresDriver picks pgx or lib/pq for postgres descriptors.
	PostgresDriver PostgresDriver `yaml:"postgres_driver"`

	// Pool tuning
	MaxConns        int32         `yaml:"max_conns"`          // maximum number of connections in each pool
	MinConns        int32         `yaml:"min_conns"`          // minimum number of idle connections kept alive
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`  // maximum time a connection may be reused
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"` // maximum time a connection may sit idle

	// ConnectTimeout bounds establishing a new connection.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// DefaultConfig returns pool settings suited to a host issuing ad-hoc
// queries against a handful of databases.
func DefaultConfig() *Config {
	return &Config{
		PostgresDriver:  PostgresPGX,
		MaxConns:        10,
		MinConns:        0,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}
