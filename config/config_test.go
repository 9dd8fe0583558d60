package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/config"
)

func TestLoad_NoFile_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "HIRE_DATE", cfg.Scheduler.ResetCriteria)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, int64(5<<20), cfg.Attachments.MaxBytes)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	// GIVEN: A TOML file setting the port and storage driver
	// WHEN: LEAVE_APP_PORT is also set
	// THEN: The environment wins, the file still supplies the rest

	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "leave.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[app]
port = 9000

[storage]
driver = "memory"

[scheduler]
reset_criteria = "CONTRACT_START_DATE"
remind_after = "48h"
`), 0o600))
	t.Setenv("LEAVE_APP_PORT", "9100")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.App.Port)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "CONTRACT_START_DATE", cfg.Scheduler.ResetCriteria)
	assert.Equal(t, 48*time.Hour, cfg.Scheduler.RemindAfter)
}

func TestLoad_DotEnvFile_Applied(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LEAVE_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("LEAVE_LOG_LEVEL") })

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingExplicitFile_Error(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := config.Load("does-not-exist.toml")
	assert.Error(t, err)
}

func TestValidate_BadValues_AllReported(t *testing.T) {
	cfg := &config.Config{
		App:         config.AppConfig{Port: 0},
		Storage:     config.StorageConfig{Driver: "postgres"},
		Attachments: config.AttachmentConfig{Driver: "s3"},
		Scheduler:   config.SchedulerConfig{Enabled: true, ResetCriteria: "BIRTHDAY"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"app.port", "storage.driver", "attachments.bucket", "reset_criteria", "scheduler.interval"} {
		assert.Contains(t, err.Error(), want)
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains: it changes
// the working directory and restores it when the test finishes.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
