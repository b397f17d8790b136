package backend

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"
)

const (
	// WirelessService is the Bonjour service paired iOS devices announce when
	// Wi-Fi connections are enabled.
	WirelessService = "_apple-mobdev2._tcp"
	wirelessDomain  = "local."
)

// WirelessDevice is a device announcing the wireless lockdown service.
type WirelessDevice struct {
	Instance  string   `json:"instance" yaml:"instance"`
	MAC       string   `json:"mac,omitempty" yaml:"mac,omitempty"`
	Host      string   `json:"host" yaml:"host"`
	Port      int      `json:"port" yaml:"port"`
	Addresses []string `json:"addresses" yaml:"addresses"`
}

// WirelessBrowser discovers devices over mDNS.
type WirelessBrowser struct {
	iface string
}

// NewWirelessBrowser returns a browser bound to iface, or all interfaces when empty.
func NewWirelessBrowser(iface string) *WirelessBrowser {
	return &WirelessBrowser{iface: strings.TrimSpace(iface)}
}

// Browse listens for announcements for the given duration and returns the
// devices seen, merged by instance name and sorted.
func (b *WirelessBrowser) Browse(ctx context.Context, duration time.Duration) ([]WirelessDevice, error) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	opts, err := b.options()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	browseErr := make(chan error, 1)
	go func() {
		browseErr <- zeroconf.Browse(ctx, WirelessService, wirelessDomain, entries, removed, opts...)
	}()

	found := make(map[string]*WirelessDevice)
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			ips := make([]net.IP, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
			ips = append(ips, entry.AddrIPv4...)
			ips = append(ips, entry.AddrIPv6...)
			mergeWireless(found, newWirelessDevice(entry.Instance, entry.HostName, entry.Port, ips))
		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			delete(found, entry.Instance)
		case err := <-browseErr:
			if err != nil && ctx.Err() == nil {
				return nil, fmt.Errorf("browse %s: %w", WirelessService, err)
			}
			return sortedWireless(found), nil
		case <-ctx.Done():
			return sortedWireless(found), nil
		}
	}
}

func (b *WirelessBrowser) options() ([]zeroconf.ClientOption, error) {
	if b.iface == "" {
		return nil, nil
	}
	iface, err := net.InterfaceByName(b.iface)
	if err != nil {
		return nil, fmt.Errorf("wireless interface %q: %w", b.iface, err)
	}
	return []zeroconf.ClientOption{zeroconf.SelectIfaces([]net.Interface{*iface})}, nil
}

// newWirelessDevice converts an announcement. Instance names have the form
// "<wifi-mac>@<link-local-address>".
func newWirelessDevice(instance, host string, port int, ips []net.IP) WirelessDevice {
	device := WirelessDevice{
		Instance: instance,
		Host:     strings.TrimSuffix(host, "."),
		Port:     port,
	}
	if mac, _, ok := strings.Cut(instance, "@"); ok {
		if hw, err := net.ParseMAC(mac); err == nil {
			device.MAC = hw.String()
		}
	}
	for _, ip := range ips {
		device.Addresses = append(device.Addresses, ip.String())
	}
	return device
}

func mergeWireless(found map[string]*WirelessDevice, device WirelessDevice) {
	existing, ok := found[device.Instance]
	if !ok {
		found[device.Instance] = &device
		return
	}
	seen := make(map[string]struct{}, len(existing.Addresses))
	for _, addr := range existing.Addresses {
		seen[addr] = struct{}{}
	}
	for _, addr := range device.Addresses {
		if _, dup := seen[addr]; !dup {
			existing.Addresses = append(existing.Addresses, addr)
		}
	}
}

func sortedWireless(found map[string]*WirelessDevice) []WirelessDevice {
	out := make([]WirelessDevice, 0, len(found))
	for _, device := range found {
		out = append(out, *device)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}
