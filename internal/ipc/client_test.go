package ipc_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"capturepair/internal/api"
	"capturepair/internal/app"
	"capturepair/internal/backend"
	"capturepair/internal/daemon"
	"capturepair/internal/ipc"
	"capturepair/internal/services"
	"capturepair/internal/testsupport"
)

func startDaemon(t *testing.T, fake *testsupport.FakeBackend, opts ...testsupport.ConfigOption) string {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	rt, err := app.Build(cfg, nil, app.WithBackend(fake))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d, err := daemon.New(cfg, rt, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d.APIAddress()
}

func TestClientRoundTrip(t *testing.T) {
	fake := testsupport.NewFakeBackend()
	fake.SetDevices([]backend.Device{
		{ID: "00008110-AAAA", Name: "iPhone"},
		{ID: "00008110-BBBB", Name: "iPhone"},
	}, nil)
	fake.SetDevMode("00008110-AAAA", true, nil)
	addr := startDaemon(t, fake)
	ctx := context.Background()

	client, err := ipc.Dial(ctx, addr, "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	list, err := client.Devices(ctx)
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	if len(list.Devices) != 2 {
		t.Fatalf("expected daemon start to enumerate two devices, got %+v", list)
	}

	session, err := client.BeginSession(ctx, "iPhone (…AAAA)")
	if err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	if session.State != "complete" || session.DeviceID != "00008110-AAAA" {
		t.Fatalf("unexpected session %+v", session)
	}

	sessions, err := client.History(ctx, api.HistoryQuery{DeviceID: "00008110-AAAA", Limit: 10})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != session.ID {
		t.Fatalf("unexpected history %+v", sessions)
	}

	current, err := client.CurrentSession(ctx)
	if err != nil || current != nil {
		t.Fatalf("expected no current session, got %+v %v", current, err)
	}

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.LastSession == nil || status.LastSession.ID != session.ID {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestClientMapsErrorsToMarkers(t *testing.T) {
	fake := testsupport.NewFakeBackend()
	fake.SetDevices([]backend.Device{
		{ID: "00008110-AAAA", Name: "iPhone"},
		{ID: "00008110-BBBB", Name: "iPhone"},
	}, nil)
	addr := startDaemon(t, fake)
	ctx := context.Background()

	client, err := ipc.Dial(ctx, addr, "")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	_, err = client.BeginSession(ctx, "iPhone")
	if !errors.Is(err, services.ErrInvalidDevice) {
		t.Fatalf("expected invalid device for ambiguous name, got %v", err)
	}
	var remote *api.RemoteError
	if !errors.As(err, &remote) || remote.Status != http.StatusNotFound {
		t.Fatalf("expected 404 remote error, got %#v", err)
	}

	_, err = client.InstallDrivers(ctx)
	if !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("expected invalid state for installed drivers, got %v", err)
	}
}

func TestDialRequiresToken(t *testing.T) {
	addr := startDaemon(t, testsupport.NewFakeBackend(), testsupport.WithAPIToken("s3cret"))
	ctx := context.Background()

	if _, err := ipc.Dial(ctx, addr, ""); err == nil {
		t.Fatal("expected dial without token to fail")
	}
	if _, err := ipc.Dial(ctx, addr, "s3cret"); err != nil {
		t.Fatalf("Dial with token: %v", err)
	}
}

func TestDialFailsWhenNothingListens(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()

	if _, err := ipc.Dial(context.Background(), addr, ""); err == nil {
		t.Fatal("expected dial to fail")
	}
	if _, err := ipc.Dial(context.Background(), "", ""); err == nil {
		t.Fatal("expected dial to fail without bind")
	}
}
