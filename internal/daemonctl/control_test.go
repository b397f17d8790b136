package daemonctl

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"capturepair/internal/app"
	"capturepair/internal/daemon"
	"capturepair/internal/logging"
	"capturepair/internal/testsupport"
)

func TestStopWithoutDaemonReportsNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "127.0.0.1:1"

	_, err := Stop(context.Background(), cfg, 100*time.Millisecond)
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestStopRefusesCurrentProcess(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "127.0.0.1:1"
	if err := os.WriteFile(cfg.PIDPath(), []byte("  "+strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Stop(context.Background(), cfg, 100*time.Millisecond); err == nil {
		t.Fatal("expected refusal to signal the current process")
	}
}

func TestProcessInfoAndEnsureStartedAgainstRunningDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	logger := logging.NewNop()
	rt, err := app.Build(cfg, logger, app.WithBackend(testsupport.NewFakeBackend()))
	if err != nil {
		t.Fatalf("app.Build: %v", err)
	}
	d, err := daemon.New(cfg, rt, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cfg.Paths.APIBind = d.APIAddress()

	running, pid, err := ProcessInfo(ctx, cfg)
	if err != nil {
		t.Fatalf("ProcessInfo: %v", err)
	}
	if !running || pid != os.Getpid() {
		t.Fatalf("expected running daemon with pid %d, got running=%v pid=%d", os.Getpid(), running, pid)
	}

	result, err := EnsureStarted(ctx, cfg, "/nonexistent/capturepair", LaunchOptions{}, time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if result.State != StartStateAlreadyRunning || result.Launched {
		t.Fatalf("expected already running without launch, got %+v", result)
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := Launch(" ", LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable path")
	}
}

func TestReadPID(t *testing.T) {
	path := t.TempDir() + "/capturepair.pid"
	if got := readPID(path); got != 0 {
		t.Fatalf("expected 0 for missing file, got %d", got)
	}
	if err := os.WriteFile(path, []byte("4242\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := readPID(path); got != 4242 {
		t.Fatalf("expected 4242, got %d", got)
	}
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := readPID(path); got != 0 {
		t.Fatalf("expected 0 for garbage, got %d", got)
	}
}
