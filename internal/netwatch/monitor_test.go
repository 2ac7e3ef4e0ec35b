package netwatch

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStaticMonitorNotifiesTransitionsOnly(t *testing.T) {
	monitor := NewStaticMonitor(false)

	var got []bool
	unsubscribe := monitor.Subscribe(func(online bool) { got = append(got, online) })

	monitor.SetOnline(false)
	monitor.SetOnline(true)
	monitor.SetOnline(true)
	monitor.SetOnline(false)
	unsubscribe()
	monitor.SetOnline(true)

	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Errorf("transitions = %v, want [true false]", got)
	}
	if !monitor.Online() {
		t.Error("online = false, want true")
	}
}

func TestProbeMonitorFollowsDial(t *testing.T) {
	var reachable atomic.Bool
	monitor := NewProbeMonitor("probe.test:443", time.Hour, nil)
	monitor.dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		if !reachable.Load() {
			return nil, errors.New("unreachable")
		}
		client, server := net.Pipe()
		server.Close()
		return client, nil
	}

	var mu sync.Mutex
	var got []bool
	monitor.Subscribe(func(online bool) {
		mu.Lock()
		got = append(got, online)
		mu.Unlock()
	})

	ctx := context.Background()
	if monitor.Probe(ctx) {
		t.Error("probe = true while unreachable")
	}
	reachable.Store(true)
	if !monitor.Probe(ctx) {
		t.Error("probe = false while reachable")
	}
	monitor.Probe(ctx)
	reachable.Store(false)
	monitor.Probe(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Errorf("transitions = %v, want [true false]", got)
	}
}

func TestProbeMonitorStartStop(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	monitor := NewProbeMonitor(listener.Addr().String(), 10*time.Millisecond, nil)
	monitor.Start(context.Background())
	if !monitor.Online() {
		t.Error("online = false after first probe")
	}

	monitor.Stop()
	monitor.Stop()
}
