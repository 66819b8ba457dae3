package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp keeps godotenv from picking up a developer's .env.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TASKS_CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, 3, cfg.WorkerCount)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Empty(t, cfg.NATSURL)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "tasks.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
port = "9000"
store_backend = "memory"
worker_count = 8
store_timeout = "250ms"
nats_url = "nats://file:4222"
`), 0o600))

	t.Setenv("TASKS_CONFIG_FILE", path)
	t.Setenv("NATS_URL", "nats://env:4222")
	t.Setenv("PUBLISH_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, 250*time.Millisecond, cfg.StoreTimeout)
	assert.Equal(t, "nats://env:4222", cfg.NATSURL)
	assert.Equal(t, 2*time.Second, cfg.PublishTimeout)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LOG_LEVEL=debug\n"), 0o600))
	t.Setenv("TASKS_CONFIG_FILE", "")
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad worker count", map[string]string{"WORKER_COUNT": "many"}},
		{"zero workers", map[string]string{"WORKER_COUNT": "0"}},
		{"bad duration", map[string]string{"STORE_TIMEOUT": "soon"}},
		{"unknown backend", map[string]string{"STORE_BACKEND": "redis"}},
		{"missing file", map[string]string{"TASKS_CONFIG_FILE": "/nonexistent/tasks.toml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdirTemp(t)
			t.Setenv("TASKS_CONFIG_FILE", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
