package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"capturepair/internal/config"
	"capturepair/internal/logging"
)

// netlinkMonitor listens for udev netlink events and reports USB devices from
// the configured vendor arriving or leaving. Events are hints only: the
// handler marks the device list stale and the user refreshes explicitly.
type netlinkMonitor struct {
	logger  *slog.Logger
	handler func(reason string)
	vendor  string

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// newNetlinkMonitor creates a monitor, or nil when hotplug is disabled.
func newNetlinkMonitor(cfg *config.Config, logger *slog.Logger, handler func(reason string)) *netlinkMonitor {
	if cfg == nil || !cfg.Hotplug.Enabled {
		return nil
	}

	vendor := strings.ToLower(strings.TrimSpace(cfg.Hotplug.VendorID))
	if vendor == "" {
		return nil
	}

	return &netlinkMonitor{
		logger:  logging.NewComponentLogger(logger, "netlink-monitor"),
		handler: handler,
		vendor:  vendor,
	}
}

// Start begins listening for udev netlink events.
func (m *netlinkMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; device list will only change on refresh",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "device list is not marked stale on plug events"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("netlink monitor started",
		logging.String(logging.FieldEventType, "netlink_monitor_started"),
		logging.String("vendor_id", m.vendor),
	)

	return nil
}

// Stop shuts down the netlink monitor.
func (m *netlinkMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}

	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}

	m.running = false

	m.logger.Info("netlink monitor stopped",
		logging.String(logging.FieldEventType, "netlink_monitor_stopped"),
	)
}

// Running reports whether the netlink monitor is active.
func (m *netlinkMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *netlinkMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	matcher := m.buildMatcher()

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, matcher)

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "plug events may be missed"),
			)
		}
	}
}

// buildMatcher matches whole USB devices being added or removed.
// Vendor filtering happens in handleEvent so PRODUCT-only events still match.
func (m *netlinkMonitor) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "usb",
			"DEVTYPE":   "usb_device",
		},
	})
	return rules
}

func (m *netlinkMonitor) handleEvent(uevent netlink.UEvent) {
	vendor := vendorID(uevent)
	if vendor != m.vendor {
		m.logger.Debug("ignoring usb event for other vendor",
			logging.String("vendor_id", vendor),
			logging.String("kobj", uevent.KObj),
		)
		return
	}

	serial := strings.TrimSpace(uevent.Env["ID_SERIAL_SHORT"])
	reason := fmt.Sprintf("usb device %s", uevent.Action)
	if serial != "" {
		reason = fmt.Sprintf("usb device %s (%s)", uevent.Action, serial)
	}

	m.logger.Info("device plug event",
		logging.String(logging.FieldEventType, "netlink_device_event"),
		logging.String("action", string(uevent.Action)),
		logging.String(logging.FieldDeviceID, serial),
	)

	if m.handler != nil {
		m.handler(reason)
	}
}

// vendorID reads the vendor from ID_VENDOR_ID, falling back to the kernel's
// PRODUCT value ("5ac/12a8/1001").
func vendorID(uevent netlink.UEvent) string {
	if vendor := strings.TrimSpace(uevent.Env["ID_VENDOR_ID"]); vendor != "" {
		return strings.ToLower(vendor)
	}
	product := strings.TrimSpace(uevent.Env["PRODUCT"])
	if product == "" {
		return ""
	}
	vendor, _, _ := strings.Cut(product, "/")
	vendor = strings.ToLower(vendor)
	for len(vendor) < 4 {
		vendor = "0" + vendor
	}
	return vendor
}
