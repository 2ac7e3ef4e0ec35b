package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	BRIDGE_SERVICE        = "_beaver._tcp"
	BRIDGE_DOMAIN         = "local."
	BRIDGE_DIAL_TIMEOUT   = 5 * time.Second
	BRIDGE_BROWSE_TIMEOUT = 5 * time.Second
)

// Bridge is a Wi-Fi serial bridge advertising the readout over mDNS.
type Bridge struct {
	Instance string
	Hostname string
	Address  string
}

// NetworkBackend speaks the readout protocol over TCP to a serial bridge.
// With no address configured the first bridge found on the local network is
// used.
type NetworkBackend struct {
	lineLink

	address       string
	browseTimeout time.Duration
}

func NewNetworkBackend(address string, logger *slog.Logger) *NetworkBackend {
	return &NetworkBackend{
		lineLink:      lineLink{name: "network", logger: logger},
		address:       address,
		browseTimeout: BRIDGE_BROWSE_TIMEOUT,
	}
}

func (backend *NetworkBackend) Name() string {
	return "network"
}

func (backend *NetworkBackend) Open(ctx context.Context, emit EmitFunc) error {
	address := backend.address
	if address == "" {
		bridges, err := DiscoverBridges(ctx, backend.browseTimeout, backend.logger)
		if err != nil {
			backend.log(slog.LevelWarn, "Bridge discovery failed", "error", err)
			return fmt.Errorf("%w: %v", ErrNoDevice, err)
		}
		if len(bridges) == 0 {
			backend.log(slog.LevelWarn, "No readout bridges found", "service", BRIDGE_SERVICE)
			return ErrNoDevice
		}
		address = bridges[0].Address
		backend.log(slog.LevelDebug, "Auto-selected bridge", "instance", bridges[0].Instance, "address", address)
	}

	dialer := net.Dialer{Timeout: BRIDGE_DIAL_TIMEOUT}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		backend.log(slog.LevelError, "Failed to connect to bridge", "address", address, "error", err)
		return fmt.Errorf("connect to bridge %s: %w", address, err)
	}

	backend.attach(conn, emit)
	backend.log(slog.LevelInfo, "Bridge connected", "address", address)

	return nil
}

func (backend *NetworkBackend) Send(cmd Command) error {
	return backend.send(cmd)
}

func (backend *NetworkBackend) Close() error {
	return backend.close()
}

// DiscoverBridges browses the local network for readout bridges until the
// timeout elapses or ctx is cancelled.
func DiscoverBridges(ctx context.Context, timeout time.Duration, logger *slog.Logger) ([]Bridge, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize resolver: %w", err)
	}

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		if err := resolver.Browse(browseCtx, BRIDGE_SERVICE, BRIDGE_DOMAIN, entries); err != nil && logger != nil {
			logger.Error("Failed to browse for bridges", "error", err)
		}
	}()

	var bridges []Bridge
	seen := make(map[string]bool)

loop:
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				break loop
			}

			bridge, ok := bridgeFromEntry(entry)
			if !ok || seen[bridge.Address] {
				continue
			}

			seen[bridge.Address] = true
			bridges = append(bridges, bridge)
			if logger != nil {
				logger.Debug("Bridge discovered", "instance", bridge.Instance, "address", bridge.Address)
			}
		case <-browseCtx.Done():
			break loop
		}
	}

	return bridges, nil
}

func bridgeFromEntry(entry *zeroconf.ServiceEntry) (Bridge, bool) {
	if entry == nil || entry.Port == 0 {
		return Bridge{}, false
	}

	var ip net.IP
	switch {
	case len(entry.AddrIPv4) > 0:
		ip = entry.AddrIPv4[0]
	case len(entry.AddrIPv6) > 0:
		ip = entry.AddrIPv6[0]
	default:
		return Bridge{}, false
	}

	return Bridge{
		Instance: entry.Instance,
		Hostname: entry.HostName,
		Address:  net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port)),
	}, true
}
