package common

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/pantry")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "http://localhost:11434", cfg.LLM.BaseURL)
	assert.Equal(t, "bielik-local-q8", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.LLM.RetryAttempts)
	assert.Equal(t, 4*time.Second, cfg.LLM.RetryMinWait)
	assert.Equal(t, 10*time.Second, cfg.LLM.RetryMaxWait)
	assert.Equal(t, int64(16<<20), cfg.Storage.MaxUploadBytes)
	assert.Equal(t, time.Hour, cfg.Worker.TaskTimeout)
	assert.Equal(t, 80, cfg.Mapper.Threshold)
	assert.Equal(t, 3, cfg.Mapper.Limit)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFromFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
database:
  driver: sqlite
  dsn: file:pantry.db
llm:
  model: from-file
worker:
  workers: 2
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("OLLAMA_MODEL", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:pantry.db", cfg.Database.DSN)
	assert.Equal(t, "from-env", cfg.LLM.Model)
	assert.Equal(t, 2, cfg.Worker.Workers)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/pantry")
	base, err := LoadConfig("")
	require.NoError(t, err)

	cases := map[string]func(c *Config){
		"driver":   func(c *Config) { c.Database.Driver = "mysql" },
		"dsn":      func(c *Config) { c.Database.DSN = "" },
		"timeout":  func(c *Config) { c.Worker.TaskTimeout = 2 * time.Hour },
		"attempts": func(c *Config) { c.LLM.RetryAttempts = 0 },
		"waits":    func(c *Config) { c.LLM.RetryMinWait = time.Minute },
		"mapper":   func(c *Config) { c.Mapper.Threshold = 101 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := *base
			mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}
}
