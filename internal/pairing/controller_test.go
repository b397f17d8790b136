package pairing_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"capturepair/internal/backend"
	"capturepair/internal/pairing"
	"capturepair/internal/services"
	"capturepair/internal/testsupport"
)

func TestBeginWithoutInstalledDriversParksWithoutBackendCalls(t *testing.T) {
	for _, name := range []string{"unknown", "missing"} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			if name == "missing" {
				h.fake.SetDriverStatus(backend.DriverMissing, nil)
				if _, err := h.drivers.Check(context.Background()); err != nil {
					t.Fatalf("Check: %v", err)
				}
			}
			h.fake.ResetCalls()

			session, err := h.controller.Begin(context.Background(), "dev-1")
			if err != nil {
				t.Fatalf("Begin: %v", err)
			}
			if session.State != pairing.StateAwaitingDriverInstall {
				t.Fatalf("expected awaiting driver install, got %q", session.State)
			}
			if calls := h.fake.Calls(); len(calls) != 0 {
				t.Fatalf("expected no backend calls, got %+v", calls)
			}
			if h.controller.State() != pairing.StateIdle {
				t.Fatalf("slot should reset to idle, got %q", h.controller.State())
			}
		})
	}
}

// Scenario: developer mode disabled on dev-1.
func TestBeginRevealsDevModeAndParks(t *testing.T) {
	h := newHarness(t)
	h.installDrivers(t)
	h.fake.SetDevMode("dev-1", false, nil)

	session, err := h.controller.Begin(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if session.State != pairing.StateAwaitingDevModeEnable {
		t.Fatalf("expected awaiting dev mode, got %q", session.State)
	}
	if session.DevMode != pairing.DevModeRevealRequested {
		t.Fatalf("expected reveal requested, got %q", session.DevMode)
	}
	if session.ErrorKind != "" {
		t.Fatalf("dev mode disabled is not an error, got %q", session.ErrorKind)
	}
	if n := h.fake.CallCount(testsupport.OpRevealDevMode); n != 1 {
		t.Fatalf("expected one reveal, got %d", n)
	}
	if n := h.fake.CallCount(testsupport.OpSetupDevice); n != 0 {
		t.Fatalf("setup must not run, got %d calls", n)
	}
	if n := h.fake.CallCount(testsupport.OpIsDeviceInDevMode); n != 1 {
		t.Fatalf("dev mode must not be polled, got %d checks", n)
	}
}

func TestBeginReentryAfterDevModeEnabled(t *testing.T) {
	h := newHarness(t)
	h.installDrivers(t)
	h.fake.SetDevMode("dev-1", false, nil)
	if s, _ := h.controller.Begin(context.Background(), "dev-1"); s.State != pairing.StateAwaitingDevModeEnable {
		t.Fatalf("expected parked session, got %q", s.State)
	}

	h.fake.SetDevMode("dev-1", true, nil)
	session, err := h.controller.Begin(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if session.State != pairing.StateComplete || session.DevMode != pairing.DevModeEnabled {
		t.Fatalf("expected complete with dev mode enabled, got %+v", session)
	}
}

func TestSetupNeverPrecedesDevModeCheck(t *testing.T) {
	h := newHarness(t)
	h.installDrivers(t)
	h.fake.SetDevMode("dev-1", true, nil)

	if _, err := h.controller.Begin(context.Background(), "dev-1"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	calls := h.fake.Calls()
	want := []testsupport.Call{
		{Op: testsupport.OpIsDeviceInDevMode, DeviceID: "dev-1"},
		{Op: testsupport.OpSetupDevice, DeviceID: "dev-1"},
	}
	if !slices.Equal(calls, want) {
		t.Fatalf("unexpected call order %+v", calls)
	}
}

func TestBeginCompleteReportsAndResets(t *testing.T) {
	h := newHarness(t)
	h.installDrivers(t)
	h.fake.SetDevices([]backend.Device{{ID: "dev-1", Name: "Jamie's iPhone"}}, nil)
	if _, err := h.registry.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	h.fake.SetDevMode("dev-1", true, nil)

	session, err := h.controller.Begin(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if session.State != pairing.StateComplete {
		t.Fatalf("expected complete, got %+v", session)
	}
	if session.ID == "" || session.DeviceName != "Jamie's iPhone" {
		t.Fatalf("expected id and device name, got %+v", session)
	}
	if session.FinishedAt.IsZero() || session.FinishedAt.Before(session.StartedAt) {
		t.Fatalf("unexpected timestamps %+v", session)
	}

	want := []pairing.SessionState{pairing.StateDriverCheck, pairing.StateDevModeCheck, pairing.StateSetup, pairing.StateComplete}
	if got := h.transitions.states(session.ID); !slices.Equal(got, want) {
		t.Fatalf("unexpected transitions %v", got)
	}
	if _, ok := h.controller.Current(); ok {
		t.Fatal("no session should be in flight")
	}
	last, ok := h.controller.Last()
	if !ok || last.ID != session.ID {
		t.Fatalf("expected last outcome to be kept, got %+v", last)
	}
	recorded := h.recorder.recorded()
	if len(recorded) != 1 || recorded[0].State != pairing.StateComplete {
		t.Fatalf("expected one recorded session, got %+v", recorded)
	}
}

// Scenario: setup fails with "timeout", and the next Begin starts over.
func TestSetupFailureIsVerbatimAndNextBeginStartsFresh(t *testing.T) {
	h := newHarness(t)
	h.installDrivers(t)
	h.fake.SetDevMode("dev-1", true, nil)
	h.fake.SetSetupResult(errors.New("timeout"), nil)

	failed, err := h.controller.Begin(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if failed.State != pairing.StateFailed || failed.ErrorMessage != "timeout" {
		t.Fatalf("expected failed(timeout), got %+v", failed)
	}
	if failed.ErrorKind != "SetupError" {
		t.Fatalf("expected SetupError kind, got %q", failed.ErrorKind)
	}

	h.fake.SetSetupResult(nil, nil)
	again, err := h.controller.Begin(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("second Begin: %v", err)
	}
	if again.ID == failed.ID {
		t.Fatal("expected a new session")
	}
	if states := h.transitions.states(again.ID); len(states) == 0 || states[0] != pairing.StateDriverCheck {
		t.Fatalf("expected fresh driver check, got %v", states)
	}
	if again.ErrorMessage != "" || again.State != pairing.StateComplete {
		t.Fatalf("expected clean completed session, got %+v", again)
	}
}

func TestSetupRejectionReasonPassesThrough(t *testing.T) {
	h := newHarness(t)
	h.installDrivers(t)
	h.fake.SetDevMode("dev-1", true, nil)
	h.fake.SetSetupResult(&services.SetupError{Reason: "companion app is not installed on the device"}, nil)

	session, _ := h.controller.Begin(context.Background(), "dev-1")
	if session.ErrorMessage != "companion app is not installed on the device" {
		t.Fatalf("unexpected reason %q", session.ErrorMessage)
	}
}

func TestCommunicationErrorsFailTheSession(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(*testsupport.FakeBackend)
	}{
		{"unplugged before dev mode check", func(f *testsupport.FakeBackend) {}},
		{"reveal fails", func(f *testsupport.FakeBackend) {
			f.SetDevMode("dev-1", false, nil)
			f.SetRevealError(backend.ErrDeviceNotFound)
		}},
		{"unplugged during setup", func(f *testsupport.FakeBackend) {
			f.SetDevMode("dev-1", true, nil)
			f.SetSetupResult(backend.ErrDeviceNotFound, nil)
		}},
		{"dev mode query transport failure", func(f *testsupport.FakeBackend) {
			f.SetDevMode("dev-1", false, errors.New("lockdownd: connection reset"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.installDrivers(t)
			tt.prepare(h.fake)

			session, err := h.controller.Begin(context.Background(), "dev-1")
			if err != nil {
				t.Fatalf("Begin: %v", err)
			}
			if session.State != pairing.StateFailed || session.ErrorKind != "DeviceCommunicationError" {
				t.Fatalf("expected DeviceCommunicationError failure, got %+v", session)
			}
		})
	}
}

func TestDevModeUnavailableFails(t *testing.T) {
	h := newHarness(t)
	h.installDrivers(t)
	h.fake.SetDevMode("dev-1", false, backend.ErrDevModeUnsupported)

	session, _ := h.controller.Begin(context.Background(), "dev-1")
	if session.State != pairing.StateFailed || session.ErrorKind != "DevModeUnavailable" {
		t.Fatalf("expected DevModeUnavailable failure, got %+v", session)
	}
}

func TestDevModeHelperFailureKeepsItsKind(t *testing.T) {
	h := newHarness(t)
	h.installDrivers(t)
	h.fake.SetDevMode("dev-1", false, services.Wrap(services.ErrExternalTool, "backend", "run helper", "devmode helper exited 127", nil))

	session, err := h.controller.Begin(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if session.State != pairing.StateFailed || session.ErrorKind != "ExternalToolError" {
		t.Fatalf("expected ExternalToolError failure, got %+v", session)
	}
	if h.fake.CallCount(testsupport.OpSetupDevice) != 0 {
		t.Fatal("expected no setup after a helper failure")
	}
}

func TestSecondBeginIsRejectedWhileInFlight(t *testing.T) {
	h := newHarness(t)
	h.installDrivers(t)
	h.fake.SetDevMode("dev-1", true, nil)
	h.fake.SetDevMode("dev-2", true, nil)
	release := make(chan struct{})
	h.fake.SetSetupResult(nil, release)

	first := make(chan pairing.Session, 1)
	go func() {
		s, _ := h.controller.Begin(context.Background(), "dev-1")
		first <- s
	}()
	waitFor(t, "setup state", func() bool { return h.controller.State() == pairing.StateSetup })

	if _, err := h.controller.Begin(context.Background(), "dev-2"); !errors.Is(err, services.ErrSessionInProgress) {
		t.Fatalf("expected session in progress, got %v", err)
	}
	if _, err := h.controller.ExportPairingFile(context.Background(), "dev-2", ""); !errors.Is(err, services.ErrSessionInProgress) {
		t.Fatalf("export should share the slot, got %v", err)
	}
	current, ok := h.controller.Current()
	if !ok || current.DeviceID != "dev-1" {
		t.Fatalf("expected dev-1 in flight, got %+v", current)
	}

	close(release)
	outcome := <-first
	if outcome.State != pairing.StateComplete || outcome.DeviceID != "dev-1" {
		t.Fatalf("original session should be unaffected, got %+v", outcome)
	}
	if n := h.fake.CallCount(testsupport.OpIsDeviceInDevMode); n != 1 {
		t.Fatalf("rejected begin must not touch the backend, got %d dev mode checks", n)
	}
}

func TestSessionSurvivesCallerCancellation(t *testing.T) {
	h := newHarness(t)
	h.installDrivers(t)
	h.fake.SetDevMode("dev-1", true, nil)
	release := make(chan struct{})
	h.fake.SetSetupResult(nil, release)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := h.controller.Begin(ctx, "dev-1")
		errCh <- err
	}()
	waitFor(t, "setup state", func() bool { return h.controller.State() == pairing.StateSetup })

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation for the caller, got %v", err)
	}
	close(release)
	h.controller.Wait()

	last, ok := h.controller.Last()
	if !ok || last.State != pairing.StateComplete {
		t.Fatalf("detached session should complete, got %+v", last)
	}
	if len(h.recorder.recorded()) != 1 {
		t.Fatal("detached session should still be recorded")
	}
}

func TestBeginRejectsBlankDevice(t *testing.T) {
	h := newHarness(t)
	if _, err := h.controller.Begin(context.Background(), "  "); !errors.Is(err, services.ErrInvalidDevice) {
		t.Fatalf("expected invalid device, got %v", err)
	}
}

func TestExportPairingFile(t *testing.T) {
	h := newHarness(t)
	if _, err := h.controller.ExportPairingFile(context.Background(), "dev-1", ""); !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("export without drivers should be rejected, got %v", err)
	}

	h.installDrivers(t)
	session, err := h.controller.ExportPairingFile(context.Background(), "dev-1", "")
	if err != nil {
		t.Fatalf("ExportPairingFile: %v", err)
	}
	wantPath := filepath.Join(h.pairingDir, "dev-1.plist")
	if session.State != pairing.StateComplete || session.PairingFile != wantPath {
		t.Fatalf("unexpected session %+v", session)
	}
	info, err := os.Stat(wantPath)
	if err != nil {
		t.Fatalf("stat pairing file: %v", err)
	}
	if info.Size() != session.PairingBytes {
		t.Fatalf("reported %d bytes, file has %d", session.PairingBytes, info.Size())
	}
	if session.Operation != pairing.OperationPairingFile {
		t.Fatalf("unexpected operation %q", session.Operation)
	}
	if n := h.fake.CallCount(testsupport.OpSetupDevice); n != 0 {
		t.Fatalf("export must not run setup, got %d", n)
	}
	if recorded := h.recorder.recorded(); len(recorded) != 1 || recorded[0].Operation != pairing.OperationPairingFile {
		t.Fatalf("expected export in history, got %+v", recorded)
	}
}

func TestExportPairingFileFailure(t *testing.T) {
	h := newHarness(t)
	h.installDrivers(t)
	h.fake.SetPairingError(backend.ErrDeviceNotFound)

	dest := filepath.Join(t.TempDir(), "custom.plist")
	session, err := h.controller.ExportPairingFile(context.Background(), "dev-1", dest)
	if err != nil {
		t.Fatalf("ExportPairingFile: %v", err)
	}
	if session.State != pairing.StateFailed || session.ErrorKind != "DeviceCommunicationError" {
		t.Fatalf("expected communication failure, got %+v", session)
	}
	if session.PairingFile != dest {
		t.Fatalf("expected explicit destination, got %q", session.PairingFile)
	}
}

type failingNotifier struct{ calls int }

func (n *failingNotifier) SessionFinished(context.Context, pairing.Session) error {
	n.calls++
	return errors.New("ntfy unreachable")
}

func TestNotifierFailureDoesNotChangeOutcome(t *testing.T) {
	notifier := &failingNotifier{}
	h := newHarness(t, pairing.WithNotifier(notifier))
	h.installDrivers(t)
	h.fake.SetDevMode("dev-1", true, nil)

	session, err := h.controller.Begin(context.Background(), "dev-1")
	if err != nil || session.State != pairing.StateComplete {
		t.Fatalf("expected complete, got %+v (%v)", session, err)
	}
	if notifier.calls != 1 {
		t.Fatalf("expected one notification, got %d", notifier.calls)
	}
}
