package daemon

import (
	"context"
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"capturepair/internal/config"
)

func hotplugConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Hotplug.Enabled = true
	cfg.Hotplug.VendorID = "05AC"
	return cfg
}

func TestNewNetlinkMonitor(t *testing.T) {
	t.Run("nil config returns nil", func(t *testing.T) {
		if m := newNetlinkMonitor(nil, nil, nil); m != nil {
			t.Error("expected nil monitor for nil config")
		}
	})

	t.Run("disabled hotplug returns nil", func(t *testing.T) {
		cfg := hotplugConfig()
		cfg.Hotplug.Enabled = false
		if m := newNetlinkMonitor(cfg, nil, nil); m != nil {
			t.Error("expected nil monitor when hotplug is disabled")
		}
	})

	t.Run("empty vendor returns nil", func(t *testing.T) {
		cfg := hotplugConfig()
		cfg.Hotplug.VendorID = " "
		if m := newNetlinkMonitor(cfg, nil, nil); m != nil {
			t.Error("expected nil monitor for empty vendor")
		}
	})

	t.Run("valid config creates monitor", func(t *testing.T) {
		m := newNetlinkMonitor(hotplugConfig(), nil, nil)
		if m == nil {
			t.Fatal("expected non-nil monitor")
		}
		if m.vendor != "05ac" {
			t.Errorf("expected lowercased vendor 05ac, got %s", m.vendor)
		}
	})
}

func TestNetlinkMonitorStopStartIdempotency(t *testing.T) {
	t.Run("nil monitor is safe", func(t *testing.T) {
		var m *netlinkMonitor
		m.Stop()
		if m.Running() {
			t.Error("expected Running() to return false for nil monitor")
		}
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("Start on nil monitor should return nil, got: %v", err)
		}
	})

	t.Run("double stop on unstarted monitor is safe", func(t *testing.T) {
		m := newNetlinkMonitor(hotplugConfig(), nil, nil)
		m.Stop()
		m.Stop()
		if m.Running() {
			t.Error("expected Running() to return false after Stop on unstarted monitor")
		}
	})
}

func TestBuildMatcher(t *testing.T) {
	m := newNetlinkMonitor(hotplugConfig(), nil, nil)
	matcher := m.buildMatcher()

	usbEnv := map[string]string{"SUBSYSTEM": "usb", "DEVTYPE": "usb_device"}
	for _, action := range []netlink.KObjAction{netlink.ADD, netlink.REMOVE} {
		if !matcher.Evaluate(netlink.UEvent{Action: action, Env: usbEnv}) {
			t.Errorf("expected matcher to accept %s", action)
		}
	}

	if matcher.Evaluate(netlink.UEvent{Action: netlink.CHANGE, Env: usbEnv}) {
		t.Error("expected matcher to reject CHANGE action")
	}

	iface := map[string]string{"SUBSYSTEM": "usb", "DEVTYPE": "usb_interface"}
	if matcher.Evaluate(netlink.UEvent{Action: netlink.ADD, Env: iface}) {
		t.Error("expected matcher to reject usb interfaces")
	}
}

func TestHandleEvent(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		wantReason string
	}{
		{
			name:       "udev vendor id with serial",
			env:        map[string]string{"ID_VENDOR_ID": "05ac", "ID_SERIAL_SHORT": "00008110AAAA"},
			wantReason: "usb device add (00008110AAAA)",
		},
		{
			name:       "kernel product fallback",
			env:        map[string]string{"PRODUCT": "5ac/12a8/1001"},
			wantReason: "usb device add",
		},
		{
			name: "other vendor ignored",
			env:  map[string]string{"ID_VENDOR_ID": "18d1"},
		},
		{
			name: "no vendor ignored",
			env:  map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			m := newNetlinkMonitor(hotplugConfig(), nil, func(reason string) {
				got = append(got, reason)
			})
			m.handleEvent(netlink.UEvent{Action: netlink.ADD, Env: tt.env})
			if tt.wantReason == "" {
				if len(got) != 0 {
					t.Fatalf("expected no handler call, got %v", got)
				}
				return
			}
			if len(got) != 1 || got[0] != tt.wantReason {
				t.Fatalf("expected reason %q, got %v", tt.wantReason, got)
			}
		})
	}
}
