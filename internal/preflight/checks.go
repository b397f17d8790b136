package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"capturepair/internal/backend"
	"capturepair/internal/config"
	"capturepair/internal/deps"
)

// DriverChecker reports host driver presence.
type DriverChecker interface {
	CheckDriverStatus(ctx context.Context) (backend.DriverStatus, error)
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := accessReadWrite(path); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckReadable verifies that the directory exists and can be listed. A
// missing lockdown directory is normal before the first device is paired.
func CheckReadable(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (not created yet)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := accessRead(path); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v; join the usbmux group)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (readable)", path)}
}

// CheckDrivers asks the backend whether host drivers are present.
func CheckDrivers(ctx context.Context, checker DriverChecker) Result {
	const name = "Host drivers"

	checkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	status, err := checker.CheckDriverStatus(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	switch status {
	case backend.DriverInstalled:
		return Result{Name: name, Passed: true, Detail: "Installed"}
	case backend.DriverNotApplicable:
		return Result{Name: name, Passed: true, Detail: "Not required on this platform"}
	default:
		return Result{Name: name, Detail: "Missing (run 'capturepair drivers install')"}
	}
}

// CheckNtfy verifies that the ntfy server hosting the topic answers.
func CheckNtfy(ctx context.Context, topic string) Result {
	const name = "ntfy"

	parsed, err := url.Parse(strings.TrimSpace(topic))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Result{Name: name, Detail: "invalid topic url"}
	}
	health := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/v1/health"}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, health.String(), nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeHTTPError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	}
	return Result{Name: name, Detail: fmt.Sprintf("health check failed (%d)", resp.StatusCode)}
}

// CheckSystemDeps evaluates the device tools for the given config. Both the
// daemon and the CLI status command use this list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "idevice_id",
			Command:     cfg.Backend.IDeviceID,
			Description: "Required for device enumeration",
		},
		{
			Name:        "ideviceinfo",
			Command:     cfg.Backend.IDeviceInfo,
			Description: "Required for device names and developer mode status",
		},
		{
			Name:        "idevicepair",
			Command:     cfg.Backend.IDevicePair,
			Description: "Required to create host pairing records",
		},
		{
			Name:        "afcclient",
			Command:     cfg.Backend.AFCClient,
			Description: "Required to upload the pairing record to the companion app",
		},
		{
			Name:        "idevicedevmodectl",
			Command:     cfg.Backend.DevModeCtl,
			Description: "Reveals the Developer Mode toggle on the device",
			Optional:    true,
		},
	}
	return deps.CheckBinaries(requirements)
}

func summarizeHTTPError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (server unreachable)"
	}
	return err.Error()
}
