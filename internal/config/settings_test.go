package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadSettingsReturnsDefaultsWhenMissing(t *testing.T) {
	isolateHome(t)

	settings, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings().Connections.MaxConcurrentSegments, settings.Connections.MaxConcurrentSegments)
	assert.True(t, settings.General.ClipboardPaste)
}

func TestSaveAndLoadSettingsRoundTrip(t *testing.T) {
	isolateHome(t)

	settings := DefaultSettings()
	settings.General.DefaultDownloadDir = "/videos"
	settings.General.Debug = true
	settings.Connections.MaxConcurrentSegments = 8
	settings.Connections.ProxyURL = "socks5://127.0.0.1:9050"

	require.NoError(t, SaveSettings(settings))

	loaded, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "/videos", loaded.General.DefaultDownloadDir)
	assert.True(t, loaded.General.Debug)
	assert.Equal(t, 8, loaded.Connections.MaxConcurrentSegments)
	assert.Equal(t, "socks5://127.0.0.1:9050", loaded.Connections.ProxyURL)
}

func TestLoadSettingsFillsMissingFieldsWithDefaults(t *testing.T) {
	home := isolateHome(t)

	dir := filepath.Join(home, ".animeko-dl")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	// A settings file from an older version, missing whole categories.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"),
		[]byte(`{"general": {"default_download_dir": "/old"}}`), 0o644))

	loaded, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "/old", loaded.General.DefaultDownloadDir)
	assert.Equal(t, DefaultSettings().Connections.MaxConcurrentSegments, loaded.Connections.MaxConcurrentSegments)
}

func TestToDownloadOptions(t *testing.T) {
	settings := DefaultSettings()
	settings.Connections.MaxConcurrentSegments = 6

	headers := map[string]string{"Cookie": "a=b"}
	opts := settings.ToDownloadOptions(headers)
	assert.Equal(t, 6, opts.MaxConcurrentSegments)
	assert.Equal(t, headers, opts.Headers)

	// A broken zero value falls back to the engine default.
	settings.Connections.MaxConcurrentSegments = 0
	opts = settings.ToDownloadOptions(nil)
	assert.Greater(t, opts.MaxConcurrentSegments, 0)
}

func TestSettingsMetadataCoversCategories(t *testing.T) {
	meta := GetSettingsMetadata()
	for _, category := range CategoryOrder() {
		assert.NotEmpty(t, meta[category], "category %s has no metadata", category)
	}
}
