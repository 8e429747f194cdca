package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Catalog CatalogConfig
	MCP     MCPConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

// Addr is the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects the answer store backend.
// Driver is one of "memory", "sqlite" or "postgres".
type StorageConfig struct {
	Driver  string
	DataDir string
	DSN     string
}

type CatalogConfig struct {
	Path string // optional YAML file replacing the built-in catalog
	Seed bool
}

type MCPConfig struct {
	Stdio bool
}

type LogConfig struct {
	Level string
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 5000,
		},
		Storage: StorageConfig{
			Driver:  DriverMemory,
			DataDir: defaultDataDir(),
		},
		Catalog: CatalogConfig{
			Seed: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/folioqa/config.json, then applies FOLIOQA_* environment
// variable overrides. Secrets such as storage.dsn are only read from the
// environment.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.Storage.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("missing required config: storage.dsn for the postgres driver. " +
				"Set it via environment variable FOLIOQA_STORAGE_DSN")
		}
	default:
		return fmt.Errorf("invalid storage.driver %q (valid: %s, %s, %s)",
			cfg.Storage.Driver, DriverMemory, DriverSQLite, DriverPostgres)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", cfg.Server.Port)
	}
	return nil
}
