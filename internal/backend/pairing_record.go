package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"howett.net/plist"

	"capturepair/internal/logging"
	"capturepair/internal/services"
)

// requiredRecordKeys are the fields a consumer needs to open a lockdown
// session with the device.
var requiredRecordKeys = []string{
	"DeviceCertificate",
	"HostCertificate",
	"HostID",
	"HostPrivateKey",
	"RootCertificate",
	"SystemBUID",
}

// pairingRecord returns the host pairing record for deviceID as an XML plist,
// pairing first when the host has no record yet.
func (b *ExecBackend) pairingRecord(ctx context.Context, deviceID string) ([]byte, error) {
	path := filepath.Join(b.lockdownDir, deviceID+".plist")
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := b.pair(ctx, deviceID); err != nil {
			return nil, err
		}
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, services.Wrap(services.ErrConfiguration, "backend", "read pair record",
				fmt.Sprintf("no permission to read %s; run as a member of the usbmux group or set backend.lockdown_dir", path), err)
		}
		return nil, services.Wrap(services.ErrSetup, "backend", "read pair record", path, err)
	}
	return stampPairingRecord(raw, deviceID)
}

func (b *ExecBackend) pair(ctx context.Context, deviceID string) error {
	lines, err := b.run(ctx, b.tools.IDevicePair, "-u", deviceID, "pair")
	if err == nil && !hasToolError(lines) {
		b.logger.Info("host paired with device",
			logging.String(logging.FieldDeviceID, deviceID),
			logging.String(logging.FieldEventType, "device_paired"),
		)
		return nil
	}
	if isDeviceGone(lines) {
		return b.toolError("pair", lines, err)
	}
	reason := lastLine(lines)
	for _, line := range lines {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "trust dialog") || strings.Contains(lower, "passcode") {
			reason = "unlock the device and tap Trust on the pairing prompt, then try again"
			break
		}
	}
	if reason == "" {
		reason = "pairing with device failed"
	}
	return &services.SetupError{Reason: reason, Err: err}
}

// stampPairingRecord decodes a lockdown pair record, checks it is complete,
// records the device UDID in it, and re-encodes it as an XML plist.
func stampPairingRecord(raw []byte, deviceID string) ([]byte, error) {
	var record map[string]any
	if _, err := plist.Unmarshal(raw, &record); err != nil {
		return nil, services.Wrap(services.ErrSetup, "backend", "decode pair record", "", err)
	}
	var missing []string
	for _, key := range requiredRecordKeys {
		if _, ok := record[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, &services.SetupError{Reason: "pair record incomplete: missing " + strings.Join(missing, ", ")}
	}
	record["UDID"] = deviceID

	out, err := plist.MarshalIndent(record, plist.XMLFormat, "\t")
	if err != nil {
		return nil, services.Wrap(services.ErrSetup, "backend", "encode pair record", "", err)
	}
	return out, nil
}
