package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	PairingDir string `toml:"pairing_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Backend selects and tunes the device backend.
type Backend struct {
	Kind           string `toml:"kind"`
	IDeviceID      string `toml:"idevice_id"`
	IDeviceInfo    string `toml:"ideviceinfo"`
	IDevicePair    string `toml:"idevicepair"`
	DevModeCtl     string `toml:"idevicedevmodectl"`
	AFCClient      string `toml:"afcclient"`
	LockdownDir    string `toml:"lockdown_dir"`
	BundleID       string `toml:"bundle_id"`
	CommandTimeout int    `toml:"command_timeout"`
}

// Drivers configures the host driver probe and installer.
type Drivers struct {
	InstallCommand  []string `toml:"install_command"`
	InstallerScript string   `toml:"installer_script"`
	SystemdUnit     string   `toml:"systemd_unit"`
}

// Hotplug configures the udev monitor that marks the device list stale.
type Hotplug struct {
	Enabled  bool   `toml:"enabled"`
	VendorID string `toml:"vendor_id"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Setup          bool   `toml:"setup"`
	Drivers        bool   `toml:"drivers"`
	Errors         bool   `toml:"errors"`
}

// History configures the session outcome log.
type History struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

// Wireless configures network discovery of paired devices.
type Wireless struct {
	BrowseSeconds int    `toml:"browse_seconds"`
	Interface     string `toml:"interface"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for capturepair.
//
// Configuration sections by subsystem:
//   - Paths: state, logs, pairing file output and API bind address
//   - Backend: libimobiledevice tool names, lockdown records, companion app bundle
//   - Drivers: host driver probe and privileged installer
//   - Hotplug: udev monitor for USB attach/detach hints
//   - Notifications: ntfy push notification settings
//   - History: session outcome log
//   - Wireless: mDNS browse settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Backend       Backend       `toml:"backend"`
	Drivers       Drivers       `toml:"drivers"`
	Hotplug       Hotplug       `toml:"hotplug"`
	Notifications Notifications `toml:"notifications"`
	History       History       `toml:"history"`
	Wireless      Wireless      `toml:"wireless"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("capturepair.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and CLI operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.PairingDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HistoryPath returns the SQLite database used for session history.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "capturepair.lock")
}

// PIDPath returns the daemon pid file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "capturepair.pid")
}

// DefaultPairingFile returns the destination used when a pairing file export
// does not name one.
func (c *Config) DefaultPairingFile(deviceID string) string {
	return filepath.Join(c.Paths.PairingDir, deviceID+".plist")
}

// CommandTimeout returns the per-invocation backend tool timeout; zero means none.
func (c *Config) CommandTimeout() time.Duration {
	if c.Backend.CommandTimeout <= 0 {
		return 0
	}
	return time.Duration(c.Backend.CommandTimeout) * time.Second
}

// BrowseDuration returns how long a wireless browse listens for announcements.
func (c *Config) BrowseDuration() time.Duration {
	return time.Duration(c.Wireless.BrowseSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// defaultDataDir mirrors the per-user data folder used by the desktop app:
// %APPDATA% on Windows, XDG_DATA_HOME, then ~/.local/share.
func defaultDataDir() string {
	if base, ok := os.LookupEnv("APPDATA"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, appFolderName)
	}
	if base, ok := os.LookupEnv("XDG_DATA_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, appFolderName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("~", ".local", "share", appFolderName)
	}
	return filepath.Join(home, ".local", "share", appFolderName)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
