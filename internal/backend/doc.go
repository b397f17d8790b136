// Package backend defines the Device Backend contract the pairing core drives
// and ships the libimobiledevice implementation used in production.
//
// The exec backend shells out to idevice_id, ideviceinfo, idevicepair,
// idevicedevmodectl and afcclient through an injectable Executor. Host driver
// readiness is delegated to a platform DriverProbe: systemd over D-Bus on
// Linux, pnputil plus an elevated PowerShell installer on Windows, and "not
// applicable" elsewhere. Tool output that means the device went away is mapped
// to ErrDeviceNotFound so the core can report a communication error instead of
// a setup failure.
package backend
