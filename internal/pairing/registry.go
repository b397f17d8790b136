package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"capturepair/internal/backend"
	"capturepair/internal/logging"
	"capturepair/internal/services"
)

const unnamedDevice = "Unnamed device"

// ErrAmbiguousDevice marks a display name shared by several attached devices.
var ErrAmbiguousDevice = errors.New("ambiguous device reference")

// DeviceLister is the slice of the device backend the registry uses.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]backend.Device, error)
}

// Snapshot is the registry's view of attached devices as of one enumeration.
// Devices sharing a display name remain distinct entries.
type Snapshot struct {
	Devices     []backend.Device `json:"devices" yaml:"devices"`
	Generation  uint64           `json:"generation" yaml:"generation"`
	RefreshedAt time.Time        `json:"refreshed_at,omitzero" yaml:"refreshed_at,omitempty"`
	Stale       bool             `json:"stale,omitempty" yaml:"stale,omitempty"`
	StaleReason string           `json:"stale_reason,omitempty" yaml:"stale_reason,omitempty"`
}

func (s Snapshot) clone() Snapshot {
	s.Devices = slices.Clone(s.Devices)
	return s
}

// Choice pairs a device with a label unique within its snapshot.
type Choice struct {
	Label  string         `json:"label" yaml:"label"`
	Device backend.Device `json:"device" yaml:"device"`
}

// Registry holds the latest device enumeration. It refreshes only on request.
type Registry struct {
	lister DeviceLister
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	issued uint64
	snap   Snapshot
}

// NewRegistry returns an empty registry.
func NewRegistry(lister DeviceLister, logger *slog.Logger) *Registry {
	return &Registry{
		lister: lister,
		logger: logging.NewComponentLogger(logger, "registry"),
		now:    time.Now,
	}
}

// Refresh enumerates devices and replaces the snapshot wholesale. When
// refreshes overlap, a result only replaces the visible snapshot if its
// refresh was issued later. On failure the previous snapshot is kept.
func (r *Registry) Refresh(ctx context.Context) (Snapshot, error) {
	r.mu.Lock()
	r.issued++
	generation := r.issued
	r.mu.Unlock()

	devices, err := r.lister.ListDevices(ctx)
	if err != nil {
		logging.WarnWithContext(r.logger, "device enumeration failed; keeping previous snapshot", "device_enumeration_failed",
			logging.Error(err),
			logging.Int64("visible_generation", int64(r.Snapshot().Generation)),
			logging.String(logging.FieldErrorHint, "check the USB connection and retry"),
		)
		return r.Snapshot(), services.Wrap(services.ErrDeviceEnumeration, "registry", "refresh", "", err)
	}

	next := Snapshot{
		Devices:     normalizeDevices(devices),
		Generation:  generation,
		RefreshedAt: r.now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if generation > r.snap.Generation {
		r.snap = next
		r.logger.Debug("device snapshot replaced",
			logging.Int("device_count", len(next.Devices)),
			logging.Int64("generation", int64(generation)),
		)
	}
	return r.snap.clone(), nil
}

// Snapshot returns a copy of the visible snapshot.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap.clone()
}

// MarkStale flags the snapshot as possibly outdated without refreshing it.
func (r *Registry) MarkStale(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.Stale = true
	r.snap.StaleReason = strings.TrimSpace(reason)
}

// Lookup finds a device by identifier in the visible snapshot.
func (r *Registry) Lookup(id string) (backend.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, device := range r.snap.Devices {
		if device.ID == id {
			return device, true
		}
	}
	return backend.Device{}, false
}

// Choices returns the visible devices with unique labels. A name shared by
// several devices is suffixed with the tail of each identifier.
func (r *Registry) Choices() []Choice {
	return choicesFor(r.Snapshot().Devices)
}

// Resolve finds a device by identifier, unique label, or unique display name.
func (r *Registry) Resolve(ref string) (backend.Device, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return backend.Device{}, fmt.Errorf("%w: device reference required", services.ErrInvalidDevice)
	}
	if device, ok := r.Lookup(ref); ok {
		return device, nil
	}
	choices := r.Choices()
	for _, choice := range choices {
		if choice.Label == ref {
			return choice.Device, nil
		}
	}
	name := normalizeName(ref)
	var matches []backend.Device
	for _, choice := range choices {
		if strings.EqualFold(choice.Device.Name, name) {
			matches = append(matches, choice.Device)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return backend.Device{}, fmt.Errorf("%w: no attached device matches %q", services.ErrInvalidDevice, ref)
	default:
		labels := make([]string, 0, len(matches))
		for _, choice := range choices {
			if strings.EqualFold(choice.Device.Name, name) {
				labels = append(labels, choice.Label)
			}
		}
		return backend.Device{}, fmt.Errorf("%w: %w: %q matches %d devices; use one of %s",
			services.ErrInvalidDevice, ErrAmbiguousDevice, ref, len(matches), strings.Join(labels, ", "))
	}
}

func choicesFor(devices []backend.Device) []Choice {
	counts := make(map[string]int, len(devices))
	for _, device := range devices {
		counts[device.Name]++
	}
	choices := make([]Choice, 0, len(devices))
	used := make(map[string]struct{}, len(devices))
	for _, device := range devices {
		label := device.Name
		if counts[device.Name] > 1 {
			label = fmt.Sprintf("%s (…%s)", device.Name, idTail(device.ID))
		}
		if _, taken := used[label]; taken {
			label = fmt.Sprintf("%s (%s)", device.Name, device.ID)
		}
		used[label] = struct{}{}
		choices = append(choices, Choice{Label: label, Device: device})
	}
	sort.SliceStable(choices, func(i, j int) bool {
		if choices[i].Label == choices[j].Label {
			return choices[i].Device.ID < choices[j].Device.ID
		}
		return choices[i].Label < choices[j].Label
	})
	return choices
}

func idTail(id string) string {
	const tail = 4
	if len(id) <= tail {
		return id
	}
	return id[len(id)-tail:]
}

func normalizeDevices(devices []backend.Device) []backend.Device {
	out := make([]backend.Device, 0, len(devices))
	for _, device := range devices {
		id := strings.TrimSpace(device.ID)
		if id == "" {
			continue
		}
		out = append(out, backend.Device{ID: id, Name: normalizeName(device.Name)})
	}
	return out
}

func normalizeName(name string) string {
	name = strings.TrimSpace(norm.NFC.String(name))
	if name == "" {
		return unnamedDevice
	}
	return name
}
