package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notesdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, DefaultDSN, cfg.Storage.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DefaultSettingsTimeout, cfg.Views.SettingsTimeout)
	assert.Empty(t, cfg.Refresh.Jobs)
}

func TestLoad_FileEnvFlagPrecedence(t *testing.T) {
	path := writeFile(t, `
storage:
  driver: postgres
  host: db.internal
  user: notes
log:
  level: warn
views:
  settings_timeout: 5s
refresh:
  jobs:
    - data_source_id: tasks
      schedule: "@every 1m"
    - data_source_id: projects
      watch_path: ./projects.json
      import: true
`)
	t.Setenv("NOTESDB_STORAGE__PORT", "6543")
	t.Setenv("NOTESDB_LOG__LEVEL", "debug")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "", "")
	flags.String("dsn", "", "")
	require.NoError(t, flags.Parse([]string{"--log-level=error"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "db.internal", cfg.Storage.Host)
	assert.Equal(t, 6543, cfg.Storage.Port)
	assert.Empty(t, cfg.Storage.DSN, "unset flags must not override")
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, 5*time.Second, cfg.Views.SettingsTimeout)

	require.Len(t, cfg.Refresh.Jobs, 2)
	assert.Equal(t, RefreshJob{DataSourceID: "tasks", Schedule: "@every 1m"}, cfg.Refresh.Jobs[0])
	assert.Equal(t, "./projects.json", cfg.Refresh.Jobs[1].WatchPath)
	assert.True(t, cfg.Refresh.Jobs[1].Import)

	opts := cfg.StorageOptions()
	assert.Equal(t, "db.internal", opts.Conn.Host)
	assert.Equal(t, 6543, opts.Conn.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "oracle" }, `unsupported storage.driver "oracle"`},
		{"mysql without host", func(c *Config) { c.Storage.Driver = "mysql"; c.Storage.DSN = "" }, "storage.dsn or storage.host is required for mysql"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, `unknown log.level "loud"`},
		{"negative timeout", func(c *Config) { c.Views.SettingsTimeout = -time.Second }, "views.settings_timeout must not be negative"},
		{"job without id", func(c *Config) { c.Refresh.Jobs = []RefreshJob{{Schedule: "@hourly"}} }, "refresh.jobs[0]: data_source_id is required"},
		{"import without path", func(c *Config) { c.Refresh.Jobs = []RefreshJob{{DataSourceID: "x", Schedule: "@hourly", Import: true}} }, "refresh.jobs[0]: import needs watch_path"},
		{"job without trigger", func(c *Config) { c.Refresh.Jobs = []RefreshJob{{DataSourceID: "x"}} }, "refresh.jobs[0]: schedule or watch_path is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.ApplyDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestApplyDefaults_Mongo(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Driver: "mongodb", Host: "localhost"}}
	cfg.ApplyDefaults()
	assert.Equal(t, DefaultMongoDatabase, cfg.Storage.Database)
	assert.Empty(t, cfg.Storage.DSN)
}
