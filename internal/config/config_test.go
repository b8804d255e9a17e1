package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfigAppliesFileAndEnv(t *testing.T) {
	dir := writeConfig(t, `
database:
  driver: memory
queue:
  timezone: Asia/Kolkata
  auto_claim: true
jwt:
  secret: file-secret
`)
	t.Setenv("CLINICQ_JWT_SECRET", "env-secret")
	t.Setenv("CLINICQ_SERVER_PORT", "9090")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Queue.AutoClaim)
	assert.Equal(t, "Asia/Kolkata", cfg.Queue.Location().String())

	// Defaults fill what the file leaves out.
	assert.Equal(t, 5*time.Second, cfg.Queue.LockTTL)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 8081, cfg.Worker.HealthPort)
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	dir := writeConfig(t, "database:\n  driver: memory\n")
	_, err := LoadConfig(dir)
	assert.ErrorContains(t, err, "jwt.secret")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "postgres"},
			Queue:    QueueConfig{Timezone: "UTC"},
			JWT:      JWTConfig{Disabled: true},
			Outbox:   OutboxConfig{BatchSize: 10, PollInterval: time.Second, RetryAttempts: 3, RetryDelay: time.Second},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"unknown driver", func(c *Config) { c.Database.Driver = "sqlite" }, false},
		{"zero batch", func(c *Config) { c.Outbox.BatchSize = 0 }, false},
		{"zero retries", func(c *Config) { c.Outbox.RetryAttempts = 0 }, false},
		{"bad timezone", func(c *Config) { c.Queue.Timezone = "Mars/Olympus" }, false},
		{"auth without secret", func(c *Config) { c.JWT.Disabled = false }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestQueueLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, QueueConfig{}.Location())
	assert.Equal(t, time.UTC, QueueConfig{Timezone: "nowhere"}.Location())
}
