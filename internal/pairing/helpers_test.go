package pairing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"capturepair/internal/pairing"
	"capturepair/internal/testsupport"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

type transitionLog struct {
	mu    sync.Mutex
	items []pairing.Transition
}

func (l *transitionLog) observe(t pairing.Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, t)
}

func (l *transitionLog) states(sessionID string) []pairing.SessionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []pairing.SessionState
	for _, item := range l.items {
		if item.SessionID == sessionID {
			out = append(out, item.To)
		}
	}
	return out
}

type memoryRecorder struct {
	mu       sync.Mutex
	sessions []pairing.Session
}

func (r *memoryRecorder) Record(_ context.Context, s pairing.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
	return nil
}

func (r *memoryRecorder) recorded() []pairing.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pairing.Session(nil), r.sessions...)
}

type harness struct {
	fake        *testsupport.FakeBackend
	drivers     *pairing.DriverGate
	registry    *pairing.Registry
	controller  *pairing.Controller
	transitions *transitionLog
	recorder    *memoryRecorder
	pairingDir  string
}

func newHarness(t *testing.T, opts ...pairing.Option) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	h := &harness{
		fake:        testsupport.NewFakeBackend(),
		transitions: &transitionLog{},
		recorder:    &memoryRecorder{},
		pairingDir:  cfg.Paths.PairingDir,
	}
	h.drivers = pairing.NewDriverGate(h.fake)
	h.registry = pairing.NewRegistry(h.fake, nil)
	all := append([]pairing.Option{
		pairing.WithObserver(h.transitions.observe),
		pairing.WithRecorder(h.recorder),
		pairing.WithRegistry(h.registry),
		pairing.WithPairingFileDefault(cfg.DefaultPairingFile),
	}, opts...)
	h.controller = pairing.NewController(h.drivers, pairing.NewDevModeGate(h.fake, nil), h.fake, all...)
	t.Cleanup(func() {
		h.controller.Wait()
		h.drivers.Wait()
	})
	return h
}

// installDrivers brings the gate to installed through a real check.
func (h *harness) installDrivers(t *testing.T) {
	t.Helper()
	state, err := h.drivers.Check(context.Background())
	if err != nil || !state.Installed() {
		t.Fatalf("expected installed drivers, got %+v (%v)", state, err)
	}
	h.fake.ResetCalls()
}
