package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "data/expense_approval.db", cfg.Database.Path)
	assert.False(t, cfg.Lark.Enabled)
	assert.Equal(t, 3, cfg.Approval.MaxConflictRetries)
	assert.Equal(t, 5*time.Second, cfg.Notification.PollInterval)
	assert.Equal(t, 20, cfg.Notification.BatchSize)
	assert.Equal(t, "expense_approval", cfg.Metrics.Namespace)
	assert.Equal(t, "json", cfg.Logger.Format)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  read_timeout: 5s
database:
  path: /tmp/approvals.db
lark:
  enabled: true
approval:
  max_conflict_retries: 7
notification:
  poll_interval: 250ms
  batch_size: 50
  max_attempts: 2
logger:
  level: debug
  format: console
`)

	t.Setenv("LARK_APP_ID", "cli_test")
	t.Setenv("LARK_APP_SECRET", "secret")
	t.Setenv("DATABASE_PATH", "/var/lib/approvals.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "/var/lib/approvals.db", cfg.Database.Path)
	assert.True(t, cfg.Lark.Enabled)
	assert.Equal(t, "cli_test", cfg.Lark.AppID)
	assert.Equal(t, "secret", cfg.Lark.AppSecret)
	assert.Equal(t, 7, cfg.Approval.MaxConflictRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Notification.PollInterval)
	assert.Equal(t, 50, cfg.Notification.BatchSize)
	assert.Equal(t, 2, cfg.Notification.MaxAttempts)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "lark enabled without credentials",
			content: "lark:\n  enabled: true\n",
			wantErr: "lark.app_id is required",
		},
		{
			name:    "negative retries",
			content: "approval:\n  max_conflict_retries: -1\n",
			wantErr: "approval.max_conflict_retries",
		},
		{
			name:    "bad port",
			content: "server:\n  port: 70000\n",
			wantErr: "server.port",
		},
		{
			name:    "bad log format",
			content: "logger:\n  format: xml\n",
			wantErr: "logger.format",
		},
		{
			name:    "malformed yaml",
			content: "server: [\n",
			wantErr: "failed to read config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LARK_APP_ID", "")
			t.Setenv("LARK_APP_SECRET", "")

			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestToContainerConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
database:
  path: ":memory:"
notification:
  poll_interval: 1s
  send_timeout: 3s
metrics:
  namespace: approvals
`))
	require.NoError(t, err)

	cc := cfg.ToContainerConfig()
	require.NoError(t, cc.Validate())
	assert.Equal(t, ":memory:", cc.Database.Path)
	assert.Equal(t, time.Second, cc.Notification.PollInterval)
	assert.Equal(t, 3*time.Second, cc.Notification.SendTimeout)
	assert.Equal(t, 3, cc.Approval.MaxConflictRetries)
	assert.Equal(t, "approvals", cc.Metrics.Namespace)
	assert.Equal(t, cfg.Server.Port, cc.Server.Port)
}
