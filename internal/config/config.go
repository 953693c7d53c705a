// Package config loads notesdb settings from defaults, a YAML file,
// NOTESDB_ environment variables and command-line flags.
package config

import (
	"fmt"
	"time"

	"notesdb/internal/storage"
)

// Defaults.
const (
	DefaultDriver          = "sqlite"
	DefaultDSN             = "notesdb.db"
	DefaultMongoDatabase   = "notesdb"
	DefaultLogLevel        = "info"
	DefaultSettingsTimeout = 30 * time.Second
)

// Config is the full notesdb configuration.
type Config struct {
	Storage StorageConfig `koanf:"storage"`
	Log     LogConfig     `koanf:"log"`
	Views   ViewsConfig   `koanf:"views"`
	Refresh RefreshConfig `koanf:"refresh"`
}

// StorageConfig selects the backend. DSN wins over the discrete
// connection fields.
type StorageConfig struct {
	Driver   string `koanf:"driver"`
	DSN      string `koanf:"dsn"`
	Database string `koanf:"database"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	SSLMode  string `koanf:"sslmode"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `koanf:"level"`
	File   string `koanf:"file"`
	Pretty bool   `koanf:"pretty"`
}

// ViewsConfig tunes view evaluation.
type ViewsConfig struct {
	SettingsTimeout time.Duration `koanf:"settings_timeout"`
}

// RefreshConfig lists background re-fetch jobs.
type RefreshConfig struct {
	Jobs []RefreshJob `koanf:"jobs"`
}

// RefreshJob re-fetches one data source on a schedule or file change.
// Import loads watch_path into the data source before re-fetching.
type RefreshJob struct {
	DataSourceID string `koanf:"data_source_id"`
	Schedule     string `koanf:"schedule"`
	WatchPath    string `koanf:"watch_path"`
	Import       bool   `koanf:"import"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultDriver
	}
	if c.Storage.Driver == DefaultDriver && c.Storage.DSN == "" {
		c.Storage.DSN = DefaultDSN
	}
	if c.Storage.Driver == storage.DriverMongo && c.Storage.Database == "" {
		c.Storage.Database = DefaultMongoDatabase
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Views.SettingsTimeout == 0 {
		c.Views.SettingsTimeout = DefaultSettingsTimeout
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case string(storage.DialectSQLite):
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for sqlite")
		}
	case string(storage.DialectPostgres), string(storage.DialectMySQL), storage.DriverMongo:
		if c.Storage.DSN == "" && c.Storage.Host == "" {
			return fmt.Errorf("storage.dsn or storage.host is required for %s", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver)
	}

	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}

	if c.Views.SettingsTimeout < 0 {
		return fmt.Errorf("views.settings_timeout must not be negative")
	}

	for i, j := range c.Refresh.Jobs {
		if j.DataSourceID == "" {
			return fmt.Errorf("refresh.jobs[%d]: data_source_id is required", i)
		}
		if j.Schedule == "" && j.WatchPath == "" {
			return fmt.Errorf("refresh.jobs[%d]: schedule or watch_path is required", i)
		}
		if j.Import && j.WatchPath == "" {
			return fmt.Errorf("refresh.jobs[%d]: import needs watch_path", i)
		}
	}
	return nil
}

// StorageOptions converts the storage section for storage.OpenBackend.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Driver:   c.Storage.Driver,
		DSN:      c.Storage.DSN,
		Database: c.Storage.Database,
		Conn: storage.ConnParams{
			Host:     c.Storage.Host,
			Port:     c.Storage.Port,
			User:     c.Storage.User,
			Password: c.Storage.Password,
			Database: c.Storage.Database,
			SSLMode:  c.Storage.SSLMode,
		},
	}
}
