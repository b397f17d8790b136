package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeBackend(); err != nil {
		return err
	}
	c.normalizeDrivers()
	c.normalizeHotplug()
	c.normalizeNotifications()
	c.normalizeHistory()
	c.normalizeWireless()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultDataDir()
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.PairingDir) == "" {
		c.Paths.PairingDir = filepath.Join(c.Paths.StateDir, "pairing")
	}
	if c.Paths.PairingDir, err = expandPath(c.Paths.PairingDir); err != nil {
		return fmt.Errorf("paths.pairing_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("CAPTUREPAIR_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeBackend() error {
	c.Backend.Kind = strings.ToLower(strings.TrimSpace(c.Backend.Kind))
	if c.Backend.Kind == "" {
		c.Backend.Kind = defaultBackendKind
	}
	tools := []struct {
		value    *string
		fallback string
	}{
		{&c.Backend.IDeviceID, "idevice_id"},
		{&c.Backend.IDeviceInfo, "ideviceinfo"},
		{&c.Backend.IDevicePair, "idevicepair"},
		{&c.Backend.DevModeCtl, "idevicedevmodectl"},
		{&c.Backend.AFCClient, "afcclient"},
	}
	for _, tool := range tools {
		*tool.value = strings.TrimSpace(*tool.value)
		if *tool.value == "" {
			*tool.value = tool.fallback
		}
	}
	if strings.TrimSpace(c.Backend.LockdownDir) == "" {
		c.Backend.LockdownDir = defaultLockdownDir(runtime.GOOS)
	}
	var err error
	if c.Backend.LockdownDir, err = expandPath(c.Backend.LockdownDir); err != nil {
		return fmt.Errorf("backend.lockdown_dir: %w", err)
	}
	c.Backend.BundleID = strings.TrimSpace(c.Backend.BundleID)
	if c.Backend.BundleID == "" {
		c.Backend.BundleID = defaultBundleID
	}
	return nil
}

func (c *Config) normalizeDrivers() {
	command := make([]string, 0, len(c.Drivers.InstallCommand))
	for _, arg := range c.Drivers.InstallCommand {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			command = append(command, trimmed)
		}
	}
	c.Drivers.InstallCommand = command
	c.Drivers.InstallerScript = strings.TrimSpace(c.Drivers.InstallerScript)
	if c.Drivers.InstallerScript == "" {
		c.Drivers.InstallerScript = defaultInstallerScript
	}
	c.Drivers.SystemdUnit = strings.TrimSpace(c.Drivers.SystemdUnit)
	if c.Drivers.SystemdUnit == "" {
		c.Drivers.SystemdUnit = defaultSystemdUnit
	}
}

func (c *Config) normalizeHotplug() {
	c.Hotplug.VendorID = strings.ToLower(strings.TrimSpace(c.Hotplug.VendorID))
	if c.Hotplug.VendorID == "" {
		c.Hotplug.VendorID = defaultAppleVendorID
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("CAPTUREPAIR_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeHistory() {
	if c.History.RetentionDays < 0 {
		c.History.RetentionDays = 0
	}
}

func (c *Config) normalizeWireless() {
	if c.Wireless.BrowseSeconds <= 0 {
		c.Wireless.BrowseSeconds = defaultBrowseSeconds
	}
	c.Wireless.Interface = strings.TrimSpace(c.Wireless.Interface)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
