package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, dotEnv, err := Load()
	require.NoError(t, err)
	assert.False(t, dotEnv)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "data/uplink.db", cfg.DBPath)
	assert.Equal(t, 15*time.Minute, cfg.RedisStatusTTL)
	assert.False(t, cfg.CacheEnabled())
	require.NotNil(t, cfg.Tuning)
	assert.Equal(t, 64, cfg.Tuning.ClientSendBuffer)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HTTP_PORT", "7000")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("TUNING_PROFILE", "stress")

	cfg, _, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.HTTPPort)
	assert.True(t, cfg.CacheEnabled())
	assert.Equal(t, 256, cfg.Tuning.ClientSendBuffer)
}

func TestLoadRejectsUnknownProfile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TUNING_PROFILE", "ludicrous")

	_, _, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http port out of range", func(c *Config) { c.HTTPPort = 70000 }},
		{"metrics port collides", func(c *Config) { c.MetricsPort = c.HTTPPort }},
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"negative balance", func(c *Config) { c.StartingBalance = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{HTTPPort: 8080, MetricsPort: 9090, DBPath: "x.db"}
			require.NoError(t, cfg.Validate())
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
