package transport

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"
)

const testInterval = 10 * time.Millisecond

// fakeBackend records commands and lets the test emit samples by hand.
type fakeBackend struct {
	name    string
	openErr error

	mu       sync.Mutex
	emit     EmitFunc
	commands []Command
	opened   int
	closed   int
}

func (fake *fakeBackend) Name() string { return fake.name }

func (fake *fakeBackend) Open(_ context.Context, emit EmitFunc) error {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.openErr != nil {
		return fake.openErr
	}
	fake.opened++
	fake.emit = emit
	return nil
}

func (fake *fakeBackend) Send(cmd Command) error {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	fake.commands = append(fake.commands, cmd)
	return nil
}

func (fake *fakeBackend) Close() error {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	fake.closed++
	fake.emit = nil
	return nil
}

func (fake *fakeBackend) push(sample Sample) {
	fake.mu.Lock()
	emit := fake.emit
	fake.mu.Unlock()
	if emit != nil {
		emit(sample)
	}
}

type collector struct {
	mu      sync.Mutex
	samples []Sample
}

func (c *collector) add(sample Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, sample)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func newMockController(t *testing.T) (*Controller, *MockBackend) {
	t.Helper()
	mock := NewMockBackendWithSource(testInterval, rand.NewSource(1), nil)
	controller := NewController(nil, func() Backend { return mock }, true, nil)
	if err := controller.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { controller.Disconnect() })
	return controller, mock
}

func TestSendCommandRequiresConnection(t *testing.T) {
	controller := NewController(nil, func() Backend { return NewMockBackend(testInterval, nil) }, true, nil)

	if err := controller.SendCommand(StartCommand()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
	if controller.IsStreaming() {
		t.Error("streaming after failed start")
	}
}

func TestMockStreamingDeliversPlausibleSamples(t *testing.T) {
	controller, _ := newMockController(t)

	var got collector
	controller.Subscribe(got.add)

	if err := controller.SendCommand(StartCommand()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, time.Second, func() bool { return got.count() >= 3 })

	got.mu.Lock()
	defer got.mu.Unlock()
	for _, sample := range got.samples {
		if sample.Freq < 1200 || sample.Freq >= 1400 {
			t.Errorf("freq = %v, out of band", sample.Freq)
		}
		if sample.Temp < 25 || sample.Temp >= 30 {
			t.Errorf("temp = %v, out of band", sample.Temp)
		}
		if sample.Bat < 85 || sample.Bat > 99 {
			t.Errorf("bat = %v, out of band", sample.Bat)
		}
	}
}

func TestStartTwiceRunsOneGenerator(t *testing.T) {
	controller, mock := newMockController(t)

	var got collector
	controller.Subscribe(got.add)

	if err := controller.SendCommand(StartCommand()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := controller.SendCommand(StartCommand()); err != nil {
		t.Fatalf("second start: %v", err)
	}

	waitFor(t, time.Second, func() bool { return got.count() >= 2 })
	if n := mock.generators.Load(); n != 1 {
		t.Errorf("generators = %d, want 1", n)
	}

	window := 20 * testInterval
	before := got.count()
	time.Sleep(window)
	delivered := got.count() - before
	if limit := int(window/testInterval) + 3; delivered > limit {
		t.Errorf("delivered %d samples in %v, want at most %d", delivered, window, limit)
	}
}

func TestStopHaltsEmission(t *testing.T) {
	controller, mock := newMockController(t)

	var got collector
	controller.Subscribe(got.add)

	if err := controller.SendCommand(StartCommand()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, time.Second, func() bool { return got.count() >= 2 })

	if err := controller.SendCommand(StopCommand()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	stoppedAt := got.count()

	time.Sleep(5 * testInterval)
	if got.count() != stoppedAt {
		t.Errorf("samples after stop = %d, want %d", got.count(), stoppedAt)
	}
	if n := mock.generators.Load(); n != 0 {
		t.Errorf("generators = %d, want 0", n)
	}
	if controller.IsStreaming() {
		t.Error("still streaming after stop")
	}
}

func TestUnsubscribeIsIndependent(t *testing.T) {
	fake := &fakeBackend{name: "fake"}
	controller := NewController(func() Backend { return fake }, nil, false, nil)
	if err := controller.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := controller.SendCommand(StartCommand()); err != nil {
		t.Fatalf("start: %v", err)
	}

	var first, second collector
	unsubscribeFirst := controller.Subscribe(first.add)
	controller.Subscribe(second.add)

	fake.push(Sample{Freq: 1})
	unsubscribeFirst()
	unsubscribeFirst()
	fake.push(Sample{Freq: 2})

	if first.count() != 1 {
		t.Errorf("first = %d, want 1", first.count())
	}
	if second.count() != 2 {
		t.Errorf("second = %d, want 2", second.count())
	}
	if second.samples[0].Freq != 1 || second.samples[1].Freq != 2 {
		t.Errorf("order = %+v", second.samples)
	}
}

func TestSamplesDroppedWhileNotStreaming(t *testing.T) {
	fake := &fakeBackend{name: "fake"}
	controller := NewController(func() Backend { return fake }, nil, false, nil)
	if err := controller.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var got collector
	controller.Subscribe(got.add)

	fake.push(Sample{Freq: 1})
	controller.SendCommand(StartCommand())
	fake.push(Sample{Freq: 2})
	controller.SendCommand(StopCommand())
	fake.push(Sample{Freq: 3})

	if got.count() != 1 || got.samples[0].Freq != 2 {
		t.Errorf("samples = %+v, want only freq 2", got.samples)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.commands) != 2 || fake.commands[0].Cmd != CommandStart || fake.commands[1].Cmd != CommandStop {
		t.Errorf("commands = %+v", fake.commands)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	fake := &fakeBackend{name: "fake"}
	controller := NewController(func() Backend { return fake }, nil, false, nil)

	if err := controller.Disconnect(); err != nil {
		t.Fatalf("disconnect before connect: %v", err)
	}
	if err := controller.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	controller.SendCommand(StartCommand())

	if err := controller.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := controller.Disconnect(); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}

	if controller.IsConnected() || controller.IsStreaming() {
		t.Error("state not cleared")
	}
	if fake.closed != 1 {
		t.Errorf("closed = %d, want 1", fake.closed)
	}
	if last := fake.commands[len(fake.commands)-1]; last.Cmd != CommandStop {
		t.Errorf("last command = %v, want Stop", last.Cmd)
	}
}

func TestConnectFailureLeavesDisconnected(t *testing.T) {
	fake := &fakeBackend{name: "fake", openErr: ErrNoDevice}
	controller := NewController(func() Backend { return fake }, nil, false, nil)

	if err := controller.Connect(context.Background()); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("err = %v, want ErrNoDevice", err)
	}
	if controller.IsConnected() {
		t.Error("connected after failure")
	}
}

func TestSetMockModeSwapsBackend(t *testing.T) {
	serialFake := &fakeBackend{name: "fake-serial"}
	controller := NewController(
		func() Backend { return serialFake },
		func() Backend { return NewMockBackend(testInterval, nil) },
		true,
		nil,
	)
	if err := controller.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if name := controller.BackendName(); name != "mock" {
		t.Fatalf("backend = %q, want mock", name)
	}
	controller.SendCommand(StartCommand())

	if err := controller.SetMockMode(context.Background(), false); err != nil {
		t.Fatalf("set mock mode: %v", err)
	}
	if controller.MockMode() {
		t.Error("mock mode still enabled")
	}
	if name := controller.BackendName(); name != "fake-serial" {
		t.Errorf("backend = %q, want fake-serial", name)
	}
	if !controller.IsConnected() || controller.IsStreaming() {
		t.Errorf("connected = %v streaming = %v, want true/false", controller.IsConnected(), controller.IsStreaming())
	}

	if err := controller.SetMockMode(context.Background(), true); err != nil {
		t.Fatalf("set mock mode back: %v", err)
	}
	if serialFake.closed != 1 {
		t.Errorf("serial backend closed = %d, want 1", serialFake.closed)
	}
	controller.Disconnect()
}
