package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/aqltest/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aqltest.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsMatchHarnessConstants(t *testing.T) {
	testlog.Start(t)
	cfg := Default()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "aerospike/aerospike-server:latest", cfg.ImageRef())
	assert.Equal(t, "127.0.0.1:10000", cfg.ServiceAddr())
	assert.Equal(t, []int{10000, 10001, 10002, 10003}, cfg.Ports().All())
	assert.Equal(t, "aql-test-server", cfg.ContainerName)
	assert.Equal(t, 20, cfg.ClientAttempts)
}

func TestLoadOverridesOnlyDefinedKeys(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
version = "7.2.0.1"
port_base = 12000
ready_timeout = "45s"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7.2.0.1", cfg.Version)
	assert.Equal(t, 12000, cfg.PortBase)
	assert.Equal(t, 45*time.Second, cfg.ReadyTimeout)
	assert.Equal(t, DefaultSetName, cfg.SetName)
	assert.Equal(t, DefaultClientTimeout, cfg.ClientTimeout)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `client_timeout = "soon"`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client_timeout")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `sever_version = "7"`)
	_, err := Load(path)
	assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
}

func TestApplyEnvOverrides(t *testing.T) {
	testlog.Start(t)
	t.Setenv(EnvVersion, "8.0.0.1")
	t.Setenv(EnvPortBase, "11000")
	t.Setenv(EnvValgrind, "true")
	t.Setenv(EnvBinary, "/opt/aql/bin/aql")

	cfg := Default()
	require.NoError(t, ApplyEnv(&cfg))
	assert.Equal(t, "8.0.0.1", cfg.Version)
	assert.Equal(t, 11000, cfg.PortBase)
	assert.True(t, cfg.Valgrind)
	assert.Equal(t, "/opt/aql/bin/aql", cfg.AQLBinary)
}

func TestApplyEnvRejectsBadPort(t *testing.T) {
	testlog.Start(t)
	t.Setenv(EnvPortBase, "ten")
	cfg := Default()
	assert.ErrorIs(t, ApplyEnv(&cfg), ErrInvalidConfig)
}

func TestResolveReadsConfigFileFromEnv(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `container_name = "aql-ci"`)
	t.Setenv(EnvConfigFile, path)

	cfg, err := Resolve()
	require.NoError(t, err)
	assert.Equal(t, "aql-ci", cfg.ContainerName)
}

func TestValidate(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty set", func(c *Config) { c.SetName = " " }},
		{"port too high", func(c *Config) { c.PortBase = 65533 }},
		{"port zero", func(c *Config) { c.PortBase = 0 }},
		{"no attempts", func(c *Config) { c.ClientAttempts = 0 }},
		{"zero ready timeout", func(c *Config) { c.ReadyTimeout = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.ErrorIs(t, Validate(cfg), ErrInvalidConfig)
		})
	}
}

func TestTemplateLoadsAsDefaults(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, WriteTemplate(path, false))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	err = WriteTemplate(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	require.NoError(t, WriteTemplate(path, true))
}
