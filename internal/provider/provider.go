// Package provider routes connection descriptors to the backend that
// speaks their scheme.
//
// A Router is the database.Provider a host normally hands to the bridge:
//
//	router := provider.New(database.DefaultConfig(), log)
//	defer router.Close()
//	b := bridge.New(router, registry, bridge.WithLogger(log))
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/koustreak/rowbridge/internal/database"
	"github.com/koustreak/rowbridge/internal/database/mysql"
	"github.com/koustreak/rowbridge/internal/database/postgres"
	"github.com/koustreak/rowbridge/internal/database/sqlite"
	"github.com/koustreak/rowbridge/internal/errs"
	"github.com/koustreak/rowbridge/internal/logger"
)

// Backend names, one per family of schemes.
const (
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
	BackendSQLite   = "sqlite"
)

// Factory builds a backend provider from the shared pool config.
type Factory func(cfg *database.Config) database.Provider

// Router implements database.Provider by dispatching on the descriptor
// scheme. Backends are built on first use and live until Close.
type Router struct {
	cfg *database.Config
	log *logger.Logger

	mu        sync.Mutex
	schemes   map[string]string // scheme -> backend name
	factories map[string]Factory
	backends  map[string]database.Provider
}

// New returns a Router with the postgres, mysql and sqlite backends
// registered.
func New(cfg *database.Config, log *logger.Logger) *Router {
	if cfg == nil {
		cfg = database.DefaultConfig()
	}
	if log == nil {
		log = logger.Nop()
	}
	r := &Router{
		cfg:       cfg,
		log:       log,
		schemes:   make(map[string]string),
		factories: make(map[string]Factory),
		backends:  make(map[string]database.Provider),
	}

	r.Register(BackendPostgres, postgresFactory, "postgres", "postgresql")
	r.Register(BackendMySQL, func(c *database.Config) database.Provider { return mysql.New(c) }, "mysql", "mariadb")
	r.Register(BackendSQLite, func(c *database.Config) database.Provider { return sqlite.New(c) }, "sqlite", "sqlite3")
	return r
}

// postgresFactory honours the configured client library.
func postgresFactory(cfg *database.Config) database.Provider {
	if cfg.PostgresDriver == database.PostgresPQ {
		return postgres.NewPQ(cfg)
	}
	return postgres.New(cfg)
}

// Register binds schemes to a backend, replacing any earlier binding.
// Hosts use it to add drivers or to substitute a backend in tests.
func (r *Router) Register(backend string, f Factory, schemes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[backend] = f
	for _, s := range schemes {
		r.schemes[s] = backend
	}
}

// Schemes lists the registered schemes in sorted order.
func (r *Router) Schemes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.schemesLocked()
}

func (r *Router) schemesLocked() []string {
	out := make([]string, 0, len(r.schemes))
	for s := range r.schemes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// --- database.Provider implementation ---

// Acquire resolves d's scheme to a backend and acquires from it.
func (r *Router) Acquire(ctx context.Context, d database.Descriptor) (database.Conn, error) {
	b, err := r.backend(d)
	if err != nil {
		return nil, err
	}
	return b.Acquire(ctx, d)
}

// Close closes every backend that was started.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errList []error
	for name, b := range r.backends {
		if err := b.Close(); err != nil {
			errList = append(errList, err)
		}
		delete(r.backends, name)
	}
	return errors.Join(errList...)
}

func (r *Router) backend(d database.Descriptor) (database.Provider, error) {
	scheme, _, err := d.Scheme()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.schemes[scheme]
	if !ok {
		return nil, errs.New(errs.ErrKindConnectionFailed, fmt.Sprintf("unsupported database scheme %q (supported: %s)",
			scheme, strings.Join(r.schemesLocked(), ", ")))
	}
	if b, ok := r.backends[name]; ok {
		return b, nil
	}

	b := r.factories[name](r.cfg)
	r.backends[name] = b
	r.log.InfoWith("database backend started", map[string]any{"backend": name})
	return b, nil
}
