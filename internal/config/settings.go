// Package config holds user-configurable application settings and the
// well-known application directories.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/Curodenz/animeko/internal/engine/types"
)

// Settings holds all user-configurable application settings organized by
// category.
type Settings struct {
	General     GeneralSettings    `json:"general"`
	Connections ConnectionSettings `json:"connections"`
}

// GeneralSettings contains application behavior settings.
type GeneralSettings struct {
	DefaultDownloadDir string `json:"default_download_dir"`
	ClipboardPaste     bool   `json:"clipboard_paste"`
	Debug              bool   `json:"debug"`
	LogRetentionCount  int    `json:"log_retention_count"`
}

// ConnectionSettings contains network parameters handed to the engine.
type ConnectionSettings struct {
	MaxConcurrentSegments int    `json:"max_concurrent_segments"`
	UserAgent             string `json:"user_agent"`
	ProxyURL              string `json:"proxy_url"`
}

// SettingMeta provides metadata for a single setting (for UI rendering).
type SettingMeta struct {
	Key         string // JSON key name
	Label       string // Human-readable label
	Description string // Help text
	Type        string // "string", "int", "bool"
}

// GetSettingsMetadata returns metadata for all settings organized by
// category.
func GetSettingsMetadata() map[string][]SettingMeta {
	return map[string][]SettingMeta{
		"General": {
			{Key: "default_download_dir", Label: "Default Download Dir", Description: "Default directory for new downloads. Leave empty to use current directory.", Type: "string"},
			{Key: "clipboard_paste", Label: "Clipboard Paste", Description: "Allow adding the clipboard URL from the dashboard.", Type: "bool"},
			{Key: "debug", Label: "Debug Log", Description: "Write a debug log file under the app directory.", Type: "bool"},
			{Key: "log_retention_count", Label: "Log Retention Count", Description: "Number of recent log files to keep.", Type: "int"},
		},
		"Network": {
			{Key: "max_concurrent_segments", Label: "Max Concurrent Segments", Description: "Maximum segment fetches in flight per download (1-32).", Type: "int"},
			{Key: "user_agent", Label: "User Agent", Description: "Custom User-Agent string for HTTP requests. Leave empty for default.", Type: "string"},
			{Key: "proxy_url", Label: "Proxy URL", Description: "HTTP/HTTPS or socks5:// proxy URL. Leave empty to use system default.", Type: "string"},
		},
	}
}

// CategoryOrder returns the order of categories for UI tabs.
func CategoryOrder() []string {
	return []string{"General", "Network"}
}

// DefaultSettings returns a new Settings instance with sensible defaults.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	defaultDir := filepath.Join(homeDir, "Downloads")

	return &Settings{
		General: GeneralSettings{
			DefaultDownloadDir: defaultDir,
			ClipboardPaste:     true,
			LogRetentionCount:  5,
		},
		Connections: ConnectionSettings{
			MaxConcurrentSegments: types.DefaultMaxConcurrentSegments,
		},
	}
}

// GetAppDir returns the application directory under the user's home.
func GetAppDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".animeko-dl"
	}
	return filepath.Join(homeDir, ".animeko-dl")
}

// GetLogsDir returns the directory debug logs are written to.
func GetLogsDir() string {
	return filepath.Join(GetAppDir(), "logs")
}

// GetHistoryDBPath returns the sqlite archive location.
func GetHistoryDBPath() string {
	return filepath.Join(GetAppDir(), "history.db")
}

// GetSettingsPath returns the path to the settings JSON file.
func GetSettingsPath() string {
	return filepath.Join(GetAppDir(), "settings.json")
}

// EnsureDirs creates the application directories.
func EnsureDirs() error {
	return os.MkdirAll(GetLogsDir(), 0o755)
}

// LoadSettings loads settings from disk. Returns defaults if the file
// doesn't exist.
func LoadSettings() (*Settings, error) {
	data, err := os.ReadFile(GetSettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings() // Start with defaults to fill any missing fields
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// SaveSettings saves settings to disk atomically.
func SaveSettings(s *Settings) error {
	path := GetSettingsPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: write to temp file, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}

// ToDownloadOptions builds the engine options a download starts with.
func (s *Settings) ToDownloadOptions(headers map[string]string) types.DownloadOptions {
	opts := types.DefaultOptions()
	if s.Connections.MaxConcurrentSegments > 0 {
		opts.MaxConcurrentSegments = s.Connections.MaxConcurrentSegments
	}
	opts.Headers = headers
	return opts
}
