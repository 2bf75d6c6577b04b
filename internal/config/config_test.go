package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/nutria-agent/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NUTRIA_CONFIG", "")
	t.Setenv("NUTRIA_MODE", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.ModeLocal, cfg.Mode)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, config.StorageSQLite, cfg.StorageBackend)
	assert.True(t, cfg.UseMockLLM, "local mode defaults to the mock generator")
	assert.Equal(t, time.Second, cfg.SaveQuietPeriod)
	assert.Equal(t, 3, cfg.SaveMaxAttempts)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nutria.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9090"
storage_backend: memory
save_quiet_period: 250ms
typing_speed: 0.5
`), 0o600))

	t.Setenv("NUTRIA_CONFIG", path)
	t.Setenv("NUTRIA_PORT", "7070")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Port, "env overrides file")
	assert.Equal(t, config.StorageMemory, cfg.StorageBackend)
	assert.Equal(t, 250*time.Millisecond, cfg.SaveQuietPeriod)
	assert.Equal(t, 0.5, cfg.TypingSpeed)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"gcp without project":  {"NUTRIA_MODE": "gcp"},
		"unknown backend":      {"NUTRIA_STORAGE_BACKEND": "mongo"},
		"bad duration":         {"NUTRIA_SAVE_QUIET_PERIOD": "soon"},
		"zero attempts":        {"NUTRIA_SAVE_MAX_ATTEMPTS": "0"},
		"negative typing":      {"NUTRIA_TYPING_SPEED": "-1"},
		"firestore no project": {"NUTRIA_STORAGE_BACKEND": "firestore"},
		"vertex no project":    {"NUTRIA_USE_MOCK_LLM": "0"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("NUTRIA_CONFIG", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}
