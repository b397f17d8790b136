package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"capturepair/internal/config"
)

const userAgent = "capturepair/0.1.0"

// Event names a notification type.
type Event string

const (
	EventSetupComplete       Event = "setup_complete"
	EventAwaitingDevMode     Event = "awaiting_dev_mode"
	EventAwaitingDrivers     Event = "awaiting_drivers"
	EventPairingFileExported Event = "pairing_file_exported"
	EventDriversInstalled    Event = "drivers_installed"
	EventDriverInstallFailed Event = "driver_install_failed"
	EventSessionFailed       Event = "session_failed"
	EventTest                Event = "test"
)

// Payload carries event fields by name.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		setup:    cfg.Notifications.Setup,
		drivers:  cfg.Notifications.Drivers,
		errors:   cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	setup    bool
	drivers  bool
	errors   bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if !n.enabled(event) {
		return nil
	}
	msg, ok := format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventSetupComplete, EventAwaitingDevMode, EventAwaitingDrivers, EventPairingFileExported:
		return n.setup
	case EventDriversInstalled:
		return n.drivers
	case EventDriverInstallFailed:
		return n.drivers || n.errors
	case EventSessionFailed:
		return n.errors
	case EventTest:
		return true
	default:
		return false
	}
}

func format(event Event, data Payload) (payload, bool) {
	device := deviceLabel(data)
	switch event {
	case EventSetupComplete:
		return payload{
			title:   "capturepair - Device Ready",
			message: fmt.Sprintf("✅ %s is set up for capture", device),
			tags:    []string{"capturepair", "setup", "completed"},
		}, true
	case EventAwaitingDevMode:
		return payload{
			title:   "capturepair - Developer Mode Needed",
			message: fmt.Sprintf("📱 Enable Developer Mode on %s, then run setup again", device),
			tags:    []string{"capturepair", "devmode", "action"},
		}, true
	case EventAwaitingDrivers:
		return payload{
			title:   "capturepair - Drivers Needed",
			message: fmt.Sprintf("Install the host drivers before setting up %s", device),
			tags:    []string{"capturepair", "drivers", "action"},
		}, true
	case EventPairingFileExported:
		message := fmt.Sprintf("🔑 Pairing file saved for %s", device)
		if file := textValue(data, "file"); file != "" {
			message = fmt.Sprintf("%s\nFile: %s", message, file)
		}
		return payload{
			title:   "capturepair - Pairing File",
			message: message,
			tags:    []string{"capturepair", "pairing", "exported"},
		}, true
	case EventDriversInstalled:
		return payload{
			title:   "capturepair - Drivers Installed",
			message: "Host drivers installed",
			tags:    []string{"capturepair", "drivers", "installed"},
		}, true
	case EventDriverInstallFailed:
		return payload{
			title:    "capturepair - Driver Install Failed",
			message:  fmt.Sprintf("❌ Driver install failed: %s", fallback(textValue(data, "error"), "unknown")),
			tags:     []string{"capturepair", "drivers", "error"},
			priority: "high",
		}, true
	case EventSessionFailed:
		message := fmt.Sprintf("❌ Setup failed for %s: %s", device, fallback(textValue(data, "error"), "unknown"))
		if kind := textValue(data, "kind"); kind != "" && kind != "SetupError" {
			message = fmt.Sprintf("%s (%s)", message, kind)
		}
		return payload{
			title:    "capturepair - Error",
			message:  message,
			tags:     []string{"capturepair", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return payload{
			title:    "capturepair - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"capturepair", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func deviceLabel(data Payload) string {
	name := textValue(data, "deviceName")
	id := textValue(data, "deviceID")
	switch {
	case name != "" && id != "":
		return fmt.Sprintf("%s (%s)", name, id)
	case name != "":
		return name
	case id != "":
		return id
	default:
		return "device"
	}
}

func textValue(data Payload, key string) string {
	if data == nil {
		return ""
	}
	switch v := data[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
