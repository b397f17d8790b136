package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var validBackendKinds = map[string]struct{}{
	"exec": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateHotplug(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q: %w", c.Paths.APIBind, err)
	}
	return nil
}

func (c *Config) validateBackend() error {
	if _, ok := validBackendKinds[c.Backend.Kind]; !ok {
		return fmt.Errorf("backend.kind %q is not supported (expected exec)", c.Backend.Kind)
	}
	if c.Backend.CommandTimeout < 0 {
		return errors.New("backend.command_timeout must be >= 0 (seconds, 0 disables)")
	}
	if strings.ContainsAny(c.Backend.BundleID, " /") {
		return fmt.Errorf("backend.bundle_id %q must be a reverse-DNS identifier", c.Backend.BundleID)
	}
	return nil
}

func (c *Config) validateHotplug() error {
	if !c.Hotplug.Enabled {
		return nil
	}
	if len(c.Hotplug.VendorID) != 4 {
		return fmt.Errorf("hotplug.vendor_id %q must be a 4-digit hex USB vendor id", c.Hotplug.VendorID)
	}
	for _, r := range c.Hotplug.VendorID {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return fmt.Errorf("hotplug.vendor_id %q must be a 4-digit hex USB vendor id", c.Hotplug.VendorID)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (expected console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	return nil
}
