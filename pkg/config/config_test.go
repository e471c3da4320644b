package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://discord.com/api/v9", cfg.Account.APIBaseURL)
	assert.Equal(t, "https://api.capsolver.com", cfg.Solver.APIBaseURL)
	assert.Equal(t, 30*time.Second, cfg.Account.Timeout)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 15*time.Minute, cfg.Server.SessionTTL)
	assert.Contains(t, cfg.Storage.Path, "snapshots.db")
	assert.Empty(t, cfg.Schedule.Cron)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
account:
  api_base_url: https://example.com/api
  credential: file-cred
solver:
  client_key: file-key
proxies:
  - 10.0.0.1:8080
  - 10.0.0.2:8080
storage:
  path: ` + filepath.Join(dir, "db.sqlite") + `
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/api", cfg.Account.APIBaseURL)
	assert.Equal(t, "file-cred", cfg.Account.Credential)
	assert.Equal(t, "file-key", cfg.Solver.ClientKey)
	assert.Equal(t, []string{"10.0.0.1:8080", "10.0.0.2:8080"}, cfg.Proxies)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Values absent from the file keep their defaults.
	assert.Equal(t, "https://api.capsolver.com", cfg.Solver.APIBaseURL)
	assert.Equal(t, 30*time.Second, cfg.Account.Timeout)
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account: [not: valid"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing api base url",
			mutate:  func(c *Config) { c.Account.APIBaseURL = "" },
			wantErr: "api_base_url is required",
		},
		{
			name:    "non-positive timeout",
			mutate:  func(c *Config) { c.Account.Timeout = 0 },
			wantErr: "timeout must be positive",
		},
		{
			name:    "schedule without credentials",
			mutate:  func(c *Config) { c.Schedule.Cron = "0 3 * * *" },
			wantErr: "schedule.credentials is empty",
		},
		{
			name: "schedule with credentials",
			mutate: func(c *Config) {
				c.Schedule.Cron = "0 3 * * *"
				c.Schedule.Credentials = []string{"cred-1"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
