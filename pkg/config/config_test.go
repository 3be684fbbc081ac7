package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_CreatesDefaultsOnFirstRun(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "tripweave.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 25, cfg.GeoProvider.BatchSize)
	require.Equal(t, 8, cfg.Selector.StartingSetMin)
	require.Equal(t, 4, cfg.Sequencer.Workers)

	_, err = os.Stat(path)
	require.NoError(t, err, "config file should have been created")
}

func TestLoad_MergesOverDefaultsOnSubsequentRun(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "tripweave.yaml")

	require.NoError(t, os.WriteFile(path, []byte("sequencer:\n  workers: 8\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Sequencer.Workers)
	// Fields absent from the file keep their default.
	require.Equal(t, 25, cfg.GeoProvider.BatchSize)
}

func TestLoadSecretsFromEnv(t *testing.T) {
	t.Setenv("GOOGLE_MAPS_API_KEY", "maps-key")
	t.Setenv("GEMINI_API_KEY", "gemini-key")

	tempDir := t.TempDir()
	_, err := Load(filepath.Join(tempDir, "tripweave.yaml"))
	require.NoError(t, err)

	secrets := LoadedSecrets()
	require.Equal(t, "maps-key", secrets.GoogleMapsAPIKey)
	require.Equal(t, "gemini-key", secrets.GeminiAPIKey)
}
