package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"capturepair/internal/config"
	"capturepair/internal/pairing"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "state", "logs")
	cfg.Paths.PairingDir = filepath.Join(base, "pairing")
	return &cfg
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := testConfig(t)
	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func session(id, device string, state pairing.SessionState, finished time.Time) pairing.Session {
	return pairing.Session{
		ID:         id,
		Operation:  pairing.OperationSetup,
		DeviceID:   device,
		DeviceName: "iPhone",
		State:      state,
		DevMode:    pairing.DevModeEnabled,
		StartedAt:  finished.Add(-3 * time.Second),
		FinishedAt: finished,
	}
}

func TestRecordAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	failed := session("s1", "AAAA", pairing.StateFailed, base)
	failed.ErrorKind = "SetupError"
	failed.ErrorMessage = "timeout"
	if err := store.Record(ctx, failed); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Record(ctx, session("s2", "BBBB", pairing.StateComplete, base.Add(500*time.Millisecond))); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Record(ctx, session("s3", "AAAA", pairing.StateComplete, base.Add(time.Minute))); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Record(ctx, failed); err != nil {
		t.Fatalf("re-recording should be ignored: %v", err)
	}

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(all))
	}
	if all[0].ID != "s3" || all[1].ID != "s2" || all[2].ID != "s1" {
		t.Fatalf("expected newest first, got %s %s %s", all[0].ID, all[1].ID, all[2].ID)
	}
	if all[2].ErrorMessage != "timeout" || all[2].ErrorKind != "SetupError" {
		t.Fatalf("error fields not preserved: %+v", all[2])
	}
	if !all[2].FinishedAt.Equal(base) || all[2].Duration() != 3*time.Second {
		t.Fatalf("timestamps not preserved: %+v", all[2])
	}

	forA, err := store.List(ctx, ListOptions{DeviceID: "AAAA", Limit: 1})
	if err != nil {
		t.Fatalf("List device: %v", err)
	}
	if len(forA) != 1 || forA[0].ID != "s3" {
		t.Fatalf("unexpected device filter result %+v", forA)
	}
}

func TestGetAndStats(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	export := session("e1", "AAAA", pairing.StateComplete, now)
	export.Operation = pairing.OperationPairingFile
	export.PairingFile = "/tmp/AAAA.plist"
	export.PairingBytes = 4096
	if err := store.Record(ctx, export); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Record(ctx, session("s1", "AAAA", pairing.StateAwaitingDevModeEnable, now)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, ok, err := store.Get(ctx, "e1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Operation != pairing.OperationPairingFile || got.PairingBytes != 4096 || got.PairingFile != "/tmp/AAAA.plist" {
		t.Fatalf("export fields not preserved: %+v", got)
	}
	if _, ok, err := store.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected missing session, ok=%v err=%v", ok, err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[pairing.StateComplete] != 1 || stats[pairing.StateAwaitingDevModeEnable] != 1 {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestPrune(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	if err := store.Record(ctx, session("old", "AAAA", pairing.StateComplete, now.AddDate(0, 0, -200))); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Record(ctx, session("new", "AAAA", pairing.StateComplete, now.AddDate(0, 0, -2))); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if n, err := store.Prune(ctx, 0); err != nil || n != 0 {
		t.Fatalf("zero retention should keep everything, n=%d err=%v", n, err)
	}
	n, err := store.Prune(ctx, 180)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one pruned row, got %d", n)
	}
	remaining, _ := store.List(ctx, ListOptions{})
	if len(remaining) != 1 || remaining[0].ID != "new" {
		t.Fatalf("unexpected remaining sessions %+v", remaining)
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	cfg := testConfig(t)
	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Record(context.Background(), session("s1", "AAAA", pairing.StateComplete, time.Now())); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.Path() != cfg.HistoryPath() {
		t.Fatalf("unexpected path %q", reopened.Path())
	}
	sessions, err := reopened.List(context.Background(), ListOptions{})
	if err != nil || len(sessions) != 1 {
		t.Fatalf("expected persisted session, got %d (%v)", len(sessions), err)
	}
}

func TestRecordRequiresID(t *testing.T) {
	store := openTestStore(t)
	if err := store.Record(context.Background(), pairing.Session{}); err == nil {
		t.Fatal("expected error for session without id")
	}
}
