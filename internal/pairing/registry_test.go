package pairing_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"capturepair/internal/backend"
	"capturepair/internal/pairing"
	"capturepair/internal/services"
	"capturepair/internal/testsupport"
)

func deviceIDs(snap pairing.Snapshot) []string {
	ids := make([]string, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		ids = append(ids, d.ID)
	}
	return ids
}

// Scenario: two devices share the display name "iPhone".
func TestRegistryKeepsDuplicateNamesSelectable(t *testing.T) {
	fake := testsupport.NewFakeBackend()
	fake.SetDevices([]backend.Device{{ID: "BBBB", Name: "iPhone"}, {ID: "AAAA", Name: "iPhone"}}, nil)
	reg := pairing.NewRegistry(fake, nil)

	snap, err := reg.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(snap.Devices) != 2 {
		t.Fatalf("expected both devices, got %+v", snap.Devices)
	}

	choices := reg.Choices()
	if len(choices) != 2 {
		t.Fatalf("expected two choices, got %+v", choices)
	}
	if choices[0].Label != "iPhone (…AAAA)" || choices[1].Label != "iPhone (…BBBB)" {
		t.Fatalf("unexpected labels: %q, %q", choices[0].Label, choices[1].Label)
	}
	for _, want := range []string{"AAAA", "BBBB"} {
		device, err := reg.Resolve(want)
		if err != nil || device.ID != want {
			t.Fatalf("resolve %s by id: %+v (%v)", want, device, err)
		}
	}
	for _, choice := range choices {
		device, err := reg.Resolve(choice.Label)
		if err != nil || device.ID != choice.Device.ID {
			t.Fatalf("resolve label %q: %+v (%v)", choice.Label, device, err)
		}
	}
	if _, err := reg.Resolve("iPhone"); !errors.Is(err, services.ErrInvalidDevice) {
		t.Fatalf("ambiguous name should be rejected, got %v", err)
	}
}

func TestRegistryResolveByUniqueName(t *testing.T) {
	fake := testsupport.NewFakeBackend()
	fake.SetDevices([]backend.Device{{ID: "AAAA", Name: "Work iPad"}, {ID: "BBBB", Name: "iPhone"}}, nil)
	reg := pairing.NewRegistry(fake, nil)
	if _, err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	device, err := reg.Resolve("work ipad")
	if err != nil || device.ID != "AAAA" {
		t.Fatalf("expected AAAA, got %+v (%v)", device, err)
	}
	if _, err := reg.Resolve("Apple Watch"); !errors.Is(err, services.ErrInvalidDevice) {
		t.Fatalf("unknown device should be rejected, got %v", err)
	}
	if _, err := reg.Resolve("  "); !errors.Is(err, services.ErrInvalidDevice) {
		t.Fatalf("blank reference should be rejected, got %v", err)
	}
}

func TestRegistryRefreshReplacesWholeSnapshot(t *testing.T) {
	fake := testsupport.NewFakeBackend()
	reg := pairing.NewRegistry(fake, nil)

	fake.SetDevices([]backend.Device{{ID: "AAAA", Name: "iPhone"}, {ID: "BBBB", Name: "iPad"}}, nil)
	if _, err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	fake.SetDevices([]backend.Device{{ID: "CCCC", Name: "iPhone"}}, nil)
	snap, err := reg.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if ids := deviceIDs(snap); len(ids) != 1 || ids[0] != "CCCC" {
		t.Fatalf("expected only CCCC, got %v", ids)
	}
	if _, ok := reg.Lookup("AAAA"); ok {
		t.Fatal("dropped device should no longer be found")
	}
}

func TestRegistryFailureKeepsPreviousSnapshot(t *testing.T) {
	fake := testsupport.NewFakeBackend()
	fake.SetDevices([]backend.Device{{ID: "AAAA", Name: "iPhone"}}, nil)
	reg := pairing.NewRegistry(fake, nil)
	before, err := reg.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	fake.SetDevices(nil, errors.New("usbmuxd not running"))
	snap, err := reg.Refresh(context.Background())
	if !errors.Is(err, services.ErrDeviceEnumeration) {
		t.Fatalf("expected enumeration error, got %v", err)
	}
	if snap.Generation != before.Generation || len(snap.Devices) != 1 {
		t.Fatalf("expected previous snapshot, got %+v", snap)
	}
	if got := reg.Snapshot(); got.Generation != before.Generation {
		t.Fatalf("visible snapshot changed after failure: %+v", got)
	}
}

type gatedLister struct {
	mu      sync.Mutex
	calls   int
	results [][]backend.Device
	gates   []chan struct{}
	started chan int
}

func (g *gatedLister) ListDevices(context.Context) ([]backend.Device, error) {
	g.mu.Lock()
	idx := g.calls
	g.calls++
	g.mu.Unlock()
	g.started <- idx
	if gate := g.gates[idx]; gate != nil {
		<-gate
	}
	return g.results[idx], nil
}

func TestRegistryOverlappingRefreshKeepsLatestIssued(t *testing.T) {
	slow := make(chan struct{})
	lister := &gatedLister{
		results: [][]backend.Device{{{ID: "OLD1", Name: "iPhone"}}, {{ID: "NEW1", Name: "iPhone"}}},
		gates:   []chan struct{}{slow, nil},
		started: make(chan int, 2),
	}
	reg := pairing.NewRegistry(lister, nil)

	firstDone := make(chan pairing.Snapshot, 1)
	go func() {
		snap, _ := reg.Refresh(context.Background())
		firstDone <- snap
	}()
	<-lister.started

	second, err := reg.Refresh(context.Background())
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if ids := deviceIDs(second); len(ids) != 1 || ids[0] != "NEW1" {
		t.Fatalf("expected NEW1, got %v", ids)
	}

	close(slow)
	first := <-firstDone
	if ids := deviceIDs(first); len(ids) != 1 || ids[0] != "NEW1" {
		t.Fatalf("late result must not replace a newer snapshot, got %v", ids)
	}
	if ids := deviceIDs(reg.Snapshot()); len(ids) != 1 || ids[0] != "NEW1" {
		t.Fatalf("visible snapshot should be NEW1, got %v", ids)
	}
}

func TestRegistryNormalizesNames(t *testing.T) {
	fake := testsupport.NewFakeBackend()
	fake.SetDevices([]backend.Device{
		{ID: "AAAA", Name: "  Cafe\u0301 iPhone "},
		{ID: "BBBB", Name: ""},
		{ID: " ", Name: "ghost"},
	}, nil)
	reg := pairing.NewRegistry(fake, nil)
	snap, err := reg.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(snap.Devices) != 2 {
		t.Fatalf("expected blank ids dropped, got %+v", snap.Devices)
	}
	if snap.Devices[0].Name != "Caf\u00e9 iPhone" {
		t.Fatalf("expected NFC trimmed name, got %q", snap.Devices[0].Name)
	}
	if snap.Devices[1].Name != "Unnamed device" {
		t.Fatalf("expected placeholder name, got %q", snap.Devices[1].Name)
	}
}

func TestRegistryMarkStale(t *testing.T) {
	fake := testsupport.NewFakeBackend()
	reg := pairing.NewRegistry(fake, nil)
	reg.MarkStale("usb add 05ac:12a8")
	if snap := reg.Snapshot(); !snap.Stale || snap.StaleReason != "usb add 05ac:12a8" {
		t.Fatalf("expected stale snapshot, got %+v", snap)
	}
	if n := fake.CallCount(testsupport.OpListDevices); n != 0 {
		t.Fatalf("marking stale must not enumerate, got %d calls", n)
	}
	snap, err := reg.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.Stale {
		t.Fatal("refresh should clear the stale flag")
	}
}

func TestRegistrySnapshotIsACopy(t *testing.T) {
	fake := testsupport.NewFakeBackend()
	fake.SetDevices([]backend.Device{{ID: "AAAA", Name: "iPhone"}}, nil)
	reg := pairing.NewRegistry(fake, nil)
	snap, _ := reg.Refresh(context.Background())
	snap.Devices[0].Name = "mutated"
	if reg.Snapshot().Devices[0].Name != "iPhone" {
		t.Fatal("callers must not be able to mutate the registry")
	}
}
