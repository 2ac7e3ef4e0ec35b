// Package netwatch reports whether the cloud is reachable.
package netwatch

import (
	"context"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"
)

const (
	DEFAULT_PROBE_INTERVAL = 10 * time.Second
	PROBE_TIMEOUT          = 3 * time.Second
)

// Monitor publishes connectivity. Subscribers are told about transitions
// only.
type Monitor interface {
	Online() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

type subscribers struct {
	mu        sync.RWMutex
	online    bool
	listeners map[uint64]func(bool)
	nextID    uint64
}

func (s *subscribers) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

func (s *subscribers) Subscribe(fn func(online bool)) func() {
	s.mu.Lock()
	if s.listeners == nil {
		s.listeners = make(map[uint64]func(bool))
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// set stores online and notifies listeners when it changed.
func (s *subscribers) set(online bool) bool {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return false
	}
	s.online = online

	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	listeners := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(online)
	}
	return true
}

// StaticMonitor reports whatever it was last told.
type StaticMonitor struct {
	subscribers
}

func NewStaticMonitor(online bool) *StaticMonitor {
	monitor := &StaticMonitor{}
	monitor.online = online
	return monitor
}

func (monitor *StaticMonitor) SetOnline(online bool) {
	monitor.set(online)
}

type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// ProbeMonitor considers the host online while a TCP dial to address
// succeeds.
type ProbeMonitor struct {
	subscribers

	address  string
	interval time.Duration
	dial     DialFunc
	logger   *slog.Logger

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewProbeMonitor(address string, interval time.Duration, logger *slog.Logger) *ProbeMonitor {
	if interval <= 0 {
		interval = DEFAULT_PROBE_INTERVAL
	}

	dialer := &net.Dialer{Timeout: PROBE_TIMEOUT}
	return &ProbeMonitor{
		address:  address,
		interval: interval,
		dial:     dialer.DialContext,
		logger:   logger,
	}
}

func (monitor *ProbeMonitor) log(level slog.Level, msg string, args ...any) {
	if monitor.logger != nil {
		monitor.logger.Log(context.Background(), level, msg, args...)
	}
}

// Probe dials once and records the result.
func (monitor *ProbeMonitor) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, PROBE_TIMEOUT)
	defer cancel()

	online := false
	conn, err := monitor.dial(probeCtx, "tcp", monitor.address)
	if err == nil {
		online = true
		conn.Close()
	}

	if monitor.set(online) {
		if online {
			monitor.log(slog.LevelInfo, "Connectivity restored", "probe", monitor.address)
		} else {
			monitor.log(slog.LevelWarn, "Connectivity lost", "probe", monitor.address, "error", err)
		}
	}

	return online
}

// Start probes immediately, then every interval until Stop or ctx is done.
func (monitor *ProbeMonitor) Start(ctx context.Context) {
	monitor.Stop()

	monitor.lifecycle.Lock()
	defer monitor.lifecycle.Unlock()

	probeCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	monitor.cancel = cancel
	monitor.done = done

	monitor.Probe(probeCtx)

	go func() {
		defer close(done)

		ticker := time.NewTicker(monitor.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				monitor.Probe(probeCtx)
			case <-probeCtx.Done():
				monitor.log(slog.LevelDebug, "Connectivity probe stopped")
				return
			}
		}
	}()
}

func (monitor *ProbeMonitor) Stop() {
	monitor.lifecycle.Lock()
	cancel, done := monitor.cancel, monitor.done
	monitor.cancel, monitor.done = nil, nil
	monitor.lifecycle.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
