package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/shepherd/pkg/types"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shepherd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"development", "staging", "production"}, cfg.Environments)
	assert.Equal(t, 15*time.Second, cfg.Readiness.Interval)
	assert.Equal(t, 10*time.Minute, cfg.Readiness.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Health.LatencyThreshold)
	assert.Equal(t, "/health", cfg.Probes.LivenessPath)
	assert.True(t, cfg.Deploy.Backup)
	assert.True(t, cfg.Deploy.Rollback)

	prod := cfg.ProfileFor(types.EnvironmentProduction)
	assert.Equal(t, 3, prod.InstanceCount)
	assert.Equal(t, "t3.medium", prod.InstanceType)
	assert.True(t, prod.DetailedMonitoring)
}

func TestConfig_RecoveryDir(t *testing.T) {
	cfg := Default()
	assert.Equal(t, filepath.Join(".shepherd", "recovery"), cfg.RecoveryDir())

	cfg.Terraform.RecoveryDir = "/var/lib/shepherd/snapshots"
	assert.Equal(t, "/var/lib/shepherd/snapshots", cfg.RecoveryDir())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
deploy:
  health_timeout: 90s
readiness:
  protocol: grpc
  port: 7946
profiles:
  staging:
    instance_count: 4
    monitoring: false
    rollout_vars:
      workers: 8
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Deploy.HealthTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Deploy.MaxDuration, "untouched keys keep defaults")
	assert.Equal(t, "grpc", string(cfg.Readiness.Protocol))

	staging := cfg.ProfileFor(types.EnvironmentStaging)
	assert.Equal(t, 4, staging.InstanceCount)
	assert.Equal(t, "t3.small", staging.InstanceType)
	assert.False(t, staging.Monitoring)
	assert.Equal(t, 8, cfg.RolloutVarsFor(types.EnvironmentStaging)["workers"])
	assert.Nil(t, cfg.RolloutVarsFor(types.EnvironmentProduction))
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SHEPHERD_HEALTH_INTERVAL", "3s")
	t.Setenv("SHEPHERD_NOTIFY_WEBHOOK_URL", "https://hooks.example.com/x")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Health.Interval)
	assert.Equal(t, "https://hooks.example.com/x", cfg.Notify.WebhookURL)
}

func TestLoader_BindFlag(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Duration("health-timeout", time.Minute, "")
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--health-timeout=45s"}))

	l := NewLoader()
	require.NoError(t, l.BindFlag("deploy.health_timeout", flags.Lookup("health-timeout")))
	require.NoError(t, l.BindFlag("log.level", flags.Lookup("log-level")))
	assert.Error(t, l.BindFlag("log.json", flags.Lookup("missing")))

	cfg, err := l.Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Deploy.HealthTimeout)
	assert.Equal(t, "debug", cfg.Log.Level, "unset flags do not override the file")
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "readiness:\n  interval: 0s\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "readiness.interval")

	_, err = Load(writeConfig(t, "readiness:\n  protocol: ssh\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	data, err := Default().YAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "interval: 15s")

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Contains(t, doc, "profiles")
}
