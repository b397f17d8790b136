package config

import (
	"path/filepath"
	"runtime"
)

const (
	appFolderName            = "Auto Capture Pair"
	defaultConfigPath        = "~/.config/capturepair/config.toml"
	defaultAPIBind           = "127.0.0.1:7489"
	defaultBackendKind       = "exec"
	defaultBundleID          = "com.halfeatentoast.devcapture"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
	defaultHistoryRetention  = 180
	defaultNotifyTimeout     = 10
	defaultAppleVendorID     = "05ac"
	defaultBrowseSeconds     = 5
	defaultSystemdUnit       = "usbmuxd.service"
	defaultInstallerScript   = "install-apple-drivers.ps1"
	defaultLinuxLockdownDir  = "/var/lib/lockdown"
	defaultDarwinLockdownDir = "/var/db/lockdown"
	defaultWinLockdownDir    = `C:\ProgramData\Apple\Lockdown`
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	dataDir := defaultDataDir()
	return Config{
		Paths: Paths{
			StateDir:   dataDir,
			LogDir:     filepath.Join(dataDir, "logs"),
			PairingDir: filepath.Join(dataDir, "pairing"),
			APIBind:    defaultAPIBind,
		},
		Backend: Backend{
			Kind:        defaultBackendKind,
			IDeviceID:   "idevice_id",
			IDeviceInfo: "ideviceinfo",
			IDevicePair: "idevicepair",
			DevModeCtl:  "idevicedevmodectl",
			AFCClient:   "afcclient",
			LockdownDir: defaultLockdownDir(runtime.GOOS),
			BundleID:    defaultBundleID,
		},
		Drivers: Drivers{
			InstallCommand:  defaultInstallCommand(runtime.GOOS),
			InstallerScript: defaultInstallerScript,
			SystemdUnit:     defaultSystemdUnit,
		},
		Hotplug: Hotplug{
			Enabled:  true,
			VendorID: defaultAppleVendorID,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Setup:          true,
			Drivers:        true,
			Errors:         true,
		},
		History: History{
			Enabled:       true,
			RetentionDays: defaultHistoryRetention,
		},
		Wireless: Wireless{
			BrowseSeconds: defaultBrowseSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

func defaultLockdownDir(goos string) string {
	switch goos {
	case "darwin":
		return defaultDarwinLockdownDir
	case "windows":
		return defaultWinLockdownDir
	default:
		return defaultLinuxLockdownDir
	}
}

// defaultInstallCommand is empty on Windows, where the embedded PowerShell
// installer is used instead.
func defaultInstallCommand(goos string) []string {
	switch goos {
	case "linux":
		return []string{"pkexec", "apt-get", "install", "-y", "usbmuxd", "libimobiledevice-utils"}
	default:
		return nil
	}
}
