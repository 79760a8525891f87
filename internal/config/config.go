// Package config assembles rowbridge settings from defaults, an optional
// YAML file, ROWBRIDGE_* environment variables and caller overrides, in
// that order of increasing precedence.
//
// Environment keys use a double underscore between levels:
//
//	ROWBRIDGE_DATABASE__MAX_CONNS=20   -> database.max_conns
//	ROWBRIDGE_BRIDGE__QUERY_TIMEOUT=5s -> bridge.query_timeout
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/koustreak/rowbridge/internal/bridge"
	"github.com/koustreak/rowbridge/internal/database"
	"github.com/koustreak/rowbridge/internal/errs"
	"github.com/koustreak/rowbridge/internal/export"
	"github.com/koustreak/rowbridge/internal/filestore"
	"github.com/koustreak/rowbridge/internal/logger"
	"github.com/koustreak/rowbridge/internal/record"
)

// EnvPrefix marks the environment variables Load reads.
const EnvPrefix = "ROWBRIDGE_"

// Config is the full set of knobs a host can turn.
type Config struct {
	Log      logger.Config    `yaml:"log"`
	Database database.Config  `yaml:"database"`
	Bridge   bridge.Config    `yaml:"bridge"`
	Records  Records          `yaml:"records"`
	Storage  filestore.Config `yaml:"storage"`
	Export   export.Config    `yaml:"export"`
}

// Records configures the record registry.
type Records struct {
	// AllowDynamic lets unknown type names through as plain maps.
	AllowDynamic bool `yaml:"allow_dynamic"`

	// SchemaFile is a YAML file of record types, read in addition to Types.
	SchemaFile string `yaml:"schema_file"`

	Types []record.Schema `yaml:"types"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Log:      *logger.DefaultConfig(),
		Database: *database.DefaultConfig(),
		Records:  Records{AllowDynamic: true},
		Storage:  filestore.Config{Provider: filestore.ProviderMinIO},
	}
}

// Load layers path (skipped when empty), the environment and overrides on
// top of Default. Override keys are dotted paths such as "bridge.max_rows".
func Load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read config file "+path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read environment", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to apply overrides", err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps ROWBRIDGE_BRIDGE__MAX_ROWS to bridge.max_rows.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate rejects settings no component could honour.
func (c *Config) Validate() error {
	db := c.Database
	switch db.PostgresDriver {
	case database.PostgresPGX, database.PostgresPQ:
	default:
		return invalid("database.postgres_driver must be %q or %q, got %q", database.PostgresPGX, database.PostgresPQ, db.PostgresDriver)
	}
	if db.MaxConns < 0 || db.MinConns < 0 {
		return invalid("database pool sizes must not be negative")
	}
	if db.MaxConns > 0 && db.MinConns > db.MaxConns {
		return invalid("database.min_conns (%d) exceeds database.max_conns (%d)", db.MinConns, db.MaxConns)
	}
	if c.Bridge.QueryTimeout < 0 {
		return invalid("bridge.query_timeout must not be negative")
	}
	if c.Bridge.MaxRows < 0 {
		return invalid("bridge.max_rows must not be negative")
	}
	if c.Export.URLTTL < 0 {
		return invalid("export.url_ttl must not be negative")
	}
	return nil
}

// Registry builds the record registry from Types and SchemaFile.
func (c *Config) Registry() (*record.Registry, error) {
	reg := record.NewRegistry(c.Records.AllowDynamic)
	for _, s := range c.Records.Types {
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	if c.Records.SchemaFile == "" {
		return reg, nil
	}

	f, err := os.Open(c.Records.SchemaFile)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to open record schema file", err)
	}
	defer f.Close()

	if err := reg.Load(f); err != nil {
		return nil, err
	}
	return reg, nil
}

func invalid(format string, args ...any) error {
	return errs.New(errs.ErrKindInvalidInput, fmt.Sprintf(format, args...))
}
