package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrej220/ansirun/pkg/runner"
)

func TestDefaultAppConfig(t *testing.T) {
	cfg := DefaultAppConfig()
	assert.Equal(t, runner.DefaultConfig(), cfg.Runner)
	assert.Equal(t, "ansible-runner", cfg.Engine.Binary)
	assert.Equal(t, ":8081", cfg.Server.Addr)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 10*time.Minute, cfg.JobTimeout.Duration)
	assert.NoError(t, cfg.Validate())
}

func TestLoadAppConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ansirun.yaml")
	data := `
runner:
  target_host: web-01
  forks: 3
  retry:
    max_attempts: 5
    initial_interval: 2s
log:
  format: console
kafka:
  brokers: [broker-1:9092, broker-2:9092]
  resultTopic: ansirun-records
workers: 8
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	cfg, err := loadAppConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "web-01", cfg.Runner.TargetHost)
	assert.Equal(t, 3, cfg.Runner.Forks)
	assert.Equal(t, "root", cfg.Runner.RemoteUser, "unset keys keep their defaults")
	assert.Equal(t, 5, cfg.Runner.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Runner.Retry.InitialInterval.Duration)
	assert.Equal(t, 10*time.Second, cfg.Runner.Retry.MaxInterval.Duration)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "ansirun-requests", cfg.Kafka.RequestTopic)
	assert.Equal(t, "ansirun-records", cfg.Kafka.ResultTopic)
	assert.Equal(t, 8, cfg.Workers)
	assert.NoError(t, cfg.Validate())
}

func TestLoadAppConfigMissingFile(t *testing.T) {
	_, err := loadAppConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadAppConfigWithoutPath(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := loadAppConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultAppConfig(), cfg)
}

func TestAppConfigValidate(t *testing.T) {
	cfg := DefaultAppConfig()
	cfg.Workers = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultAppConfig()
	cfg.Runner.Timeout = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultAppConfig()
	cfg.JobTimeout.Duration = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestApplyOverrides(t *testing.T) {
	saved := overrides
	t.Cleanup(func() { overrides = saved })

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringVar(&overrides.Host, "host", "", "")
	fs.StringVar(&overrides.User, "user", "", "")
	fs.IntVar(&overrides.Forks, "forks", 0, "")
	fs.IntVar(&overrides.Timeout, "timeout", 0, "")
	fs.StringVar(&overrides.AnsibleRunner, "ansible-runner", "", "")
	require.NoError(t, fs.Parse([]string{"--host", "db-01", "--forks", "2", "--ansible-runner", "/opt/bin/ansible-runner"}))

	cfg := DefaultAppConfig()
	applyOverrides(cfg, fs)
	assert.Equal(t, "db-01", cfg.Runner.TargetHost)
	assert.Equal(t, 2, cfg.Runner.Forks)
	assert.Equal(t, "/opt/bin/ansible-runner", cfg.Engine.Binary)
	assert.Equal(t, "root", cfg.Runner.RemoteUser, "flags not given leave the config alone")
	assert.Equal(t, runner.DefaultTimeout, cfg.Runner.Timeout)
}

func TestWriteConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "ansirun.yaml")
	cfg := DefaultAppConfig()
	cfg.Runner.TargetHost = "web-01"
	cfg.Kafka.Brokers = []string{"broker-1:9092"}

	require.NoError(t, writeConfig(path, cfg, false))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := loadAppConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestWriteConfigRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ansirun.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 9\n"), 0600))

	err := writeConfig(path, DefaultAppConfig(), false)
	assert.ErrorContains(t, err, "already exists")

	require.NoError(t, writeConfig(path, DefaultAppConfig(), true))
	loaded, err := loadAppConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Workers)
}

func TestWriteConfigRejectsInvalid(t *testing.T) {
	cfg := DefaultAppConfig()
	cfg.Workers = 0
	path := filepath.Join(t.TempDir(), "ansirun.yaml")
	assert.Error(t, writeConfig(path, cfg, false))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
