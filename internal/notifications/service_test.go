package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"capturepair/internal/config"
	"capturepair/internal/notifications"
	"capturepair/internal/pairing"
)

type capturedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func captureServer(t *testing.T) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var (
		mu       sync.Mutex
		captured []capturedRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		mu.Lock()
		captured = append(captured, capturedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), captured...)
	}
}

func configFor(url string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = url
	cfg.Notifications.RequestTimeout = 5
	return &cfg
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventSetupComplete, notifications.Payload{"deviceID": "AAAA"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "setup complete",
			event:         notifications.EventSetupComplete,
			payload:       notifications.Payload{"deviceID": "AAAA", "deviceName": "iPhone"},
			expectTitle:   "capturepair - Device Ready",
			expectMessage: "✅ iPhone (AAAA) is set up for capture",
			expectTags:    "capturepair,setup,completed",
		},
		{
			name:          "awaiting dev mode",
			event:         notifications.EventAwaitingDevMode,
			payload:       notifications.Payload{"deviceID": "AAAA"},
			expectTitle:   "capturepair - Developer Mode Needed",
			expectMessage: "📱 Enable Developer Mode on AAAA, then run setup again",
			expectTags:    "capturepair,devmode,action",
		},
		{
			name:          "pairing file",
			event:         notifications.EventPairingFileExported,
			payload:       notifications.Payload{"deviceName": "iPad", "file": "/data/AAAA.plist"},
			expectTitle:   "capturepair - Pairing File",
			expectMessage: "🔑 Pairing file saved for iPad\nFile: /data/AAAA.plist",
			expectTags:    "capturepair,pairing,exported",
		},
		{
			name:           "session failed",
			event:          notifications.EventSessionFailed,
			payload:        notifications.Payload{"deviceID": "AAAA", "error": "device not found", "kind": "DeviceCommunicationError"},
			expectTitle:    "capturepair - Error",
			expectMessage:  "❌ Setup failed for AAAA: device not found (DeviceCommunicationError)",
			expectTags:     "capturepair,error,alert",
			expectPriority: "high",
		},
		{
			name:           "setup rejected",
			event:          notifications.EventSessionFailed,
			payload:        notifications.Payload{"deviceID": "AAAA", "error": "timeout", "kind": "SetupError"},
			expectTitle:    "capturepair - Error",
			expectMessage:  "❌ Setup failed for AAAA: timeout",
			expectTags:     "capturepair,error,alert",
			expectPriority: "high",
		},
		{
			name:           "driver install failed",
			event:          notifications.EventDriverInstallFailed,
			payload:        notifications.Payload{"error": "elevation was refused"},
			expectTitle:    "capturepair - Driver Install Failed",
			expectMessage:  "❌ Driver install failed: elevation was refused",
			expectTags:     "capturepair,drivers,error",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, requests := captureServer(t)
			svc := notifications.NewService(configFor(server.URL))
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			got := requests()
			if len(got) != 1 {
				t.Fatalf("expected one request, got %d", len(got))
			}
			if got[0].title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got[0].title)
			}
			if got[0].body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got[0].body)
			}
			if got[0].tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got[0].tags)
			}
			if got[0].priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got[0].priority)
			}
		})
	}
}

func TestNtfyServiceHonoursToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.Header.Get("Title"))
	}))
	defer server.Close()

	cfg := configFor(server.URL)
	cfg.Notifications.Setup = false
	cfg.Notifications.Drivers = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(cfg)
	suppressed := []notifications.Event{
		notifications.EventSetupComplete,
		notifications.EventAwaitingDevMode,
		notifications.EventDriversInstalled,
		notifications.EventDriverInstallFailed,
		notifications.EventSessionFailed,
		notifications.Event("unknown"),
	}
	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"deviceID": "AAAA"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic is read-only", http.StatusForbidden)
	}))
	defer server.Close()

	svc := notifications.NewService(configFor(server.URL))
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestSessionNotifierMapsOutcomes(t *testing.T) {
	server, requests := captureServer(t)
	notifier := notifications.SessionNotifier{Service: notifications.NewService(configFor(server.URL))}
	ctx := context.Background()

	sessions := []pairing.Session{
		{DeviceID: "AAAA", State: pairing.StateComplete, Operation: pairing.OperationSetup},
		{DeviceID: "AAAA", State: pairing.StateComplete, Operation: pairing.OperationPairingFile, PairingFile: "/p/AAAA.plist"},
		{DeviceID: "AAAA", State: pairing.StateAwaitingDevModeEnable},
		{DeviceID: "AAAA", State: pairing.StateFailed, ErrorKind: "SetupError", ErrorMessage: "timeout"},
		{DeviceID: "AAAA", State: pairing.StateSetup},
	}
	for _, s := range sessions {
		if err := notifier.SessionFinished(ctx, s); err != nil {
			t.Fatalf("SessionFinished: %v", err)
		}
	}

	got := requests()
	wantTitles := []string{
		"capturepair - Device Ready",
		"capturepair - Pairing File",
		"capturepair - Developer Mode Needed",
		"capturepair - Error",
	}
	if len(got) != len(wantTitles) {
		t.Fatalf("expected %d notifications, got %d", len(wantTitles), len(got))
	}
	for i, want := range wantTitles {
		if got[i].title != want {
			t.Fatalf("notification %d: expected %q, got %q", i, want, got[i].title)
		}
	}
}

func TestDriverListenerPublishesSettledState(t *testing.T) {
	server, requests := captureServer(t)
	listener := notifications.DriverListener(notifications.NewService(configFor(server.URL)), nil)

	listener(pairing.DriverState{Phase: pairing.DriverInstalled})
	listener(pairing.DriverState{Phase: pairing.DriverFailed, Message: "winget not found"})

	got := requests()
	if len(got) != 2 {
		t.Fatalf("expected two notifications, got %d", len(got))
	}
	if got[0].title != "capturepair - Drivers Installed" {
		t.Fatalf("unexpected first title %q", got[0].title)
	}
	if got[1].body != "❌ Driver install failed: winget not found" {
		t.Fatalf("unexpected failure body %q", got[1].body)
	}
}
