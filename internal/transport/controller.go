package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Controller owns the notion of "connected" and "streaming" and delivers
// samples to subscribers independently of the backend in use.
type Controller struct {
	realBackend BackendFactory
	mockBackend BackendFactory
	logger      *slog.Logger

	// opMu serializes lifecycle operations. It is never held while a sample
	// is dispatched.
	opMu sync.Mutex

	mu          sync.RWMutex
	backend     Backend
	mockMode    bool
	connected   bool
	streaming   bool
	subscribers map[uint64]func(Sample)
	nextID      uint64
}

// NewController builds a controller that uses mockBackend when mockMode is
// set and realBackend otherwise.
func NewController(realBackend, mockBackend BackendFactory, mockMode bool, logger *slog.Logger) *Controller {
	return &Controller{
		realBackend: realBackend,
		mockBackend: mockBackend,
		mockMode:    mockMode,
		logger:      logger,
		subscribers: make(map[uint64]func(Sample)),
	}
}

func (controller *Controller) log(level slog.Level, msg string, args ...any) {
	if controller.logger != nil {
		controller.logger.Log(context.Background(), level, msg, args...)
	}
}

// Connect opens the selected backend. Connecting while already connected is a
// no-op.
func (controller *Controller) Connect(ctx context.Context) error {
	controller.opMu.Lock()
	defer controller.opMu.Unlock()

	return controller.connectLocked(ctx)
}

func (controller *Controller) connectLocked(ctx context.Context) error {
	controller.mu.RLock()
	connected, mockMode := controller.connected, controller.mockMode
	controller.mu.RUnlock()

	if connected {
		return nil
	}

	factory := controller.realBackend
	if mockMode {
		factory = controller.mockBackend
	}
	if factory == nil {
		controller.log(slog.LevelWarn, "No backend configured", "mock_mode", mockMode)
		return ErrNoDevice
	}

	backend := factory()
	controller.log(slog.LevelDebug, "Connecting transport", "backend", backend.Name())

	if err := backend.Open(ctx, controller.dispatch); err != nil {
		controller.log(slog.LevelWarn, "Transport connection failed", "backend", backend.Name(), "error", err)
		return err
	}

	controller.mu.Lock()
	controller.backend = backend
	controller.connected = true
	controller.streaming = false
	controller.mu.Unlock()

	controller.log(slog.LevelInfo, "Transport connected", "backend", backend.Name())
	return nil
}

// Disconnect stops streaming and releases the backend. It is safe to call
// when already disconnected.
func (controller *Controller) Disconnect() error {
	controller.opMu.Lock()
	defer controller.opMu.Unlock()

	return controller.disconnectLocked()
}

func (controller *Controller) disconnectLocked() error {
	controller.mu.Lock()
	backend := controller.backend
	wasStreaming := controller.streaming
	controller.backend = nil
	controller.connected = false
	controller.streaming = false
	controller.mu.Unlock()

	if backend == nil {
		return nil
	}

	if wasStreaming {
		if err := backend.Send(StopCommand()); err != nil {
			controller.log(slog.LevelDebug, "Stop before disconnect failed", "backend", backend.Name(), "error", err)
		}
	}

	if err := backend.Close(); err != nil {
		controller.log(slog.LevelWarn, "Transport close failed", "backend", backend.Name(), "error", err)
		return err
	}

	controller.log(slog.LevelInfo, "Transport disconnected", "backend", backend.Name())
	return nil
}

// SendCommand forwards cmd to the backend. Start marks the controller as
// streaming; Stop clears the flag before the backend is told, so samples the
// device still sends afterwards are dropped.
func (controller *Controller) SendCommand(cmd Command) error {
	controller.opMu.Lock()
	defer controller.opMu.Unlock()

	controller.mu.Lock()
	backend := controller.backend
	if !controller.connected || backend == nil {
		controller.mu.Unlock()
		controller.log(slog.LevelWarn, "Transport not connected", "command", string(cmd.Cmd))
		return ErrNotConnected
	}

	previous := controller.streaming
	switch cmd.Cmd {
	case CommandStart:
		controller.streaming = true
	case CommandStop:
		controller.streaming = false
	default:
		controller.mu.Unlock()
		return fmt.Errorf("unknown command %q", cmd.Cmd)
	}
	controller.mu.Unlock()

	controller.log(slog.LevelDebug, "Sending transport command", "command", string(cmd.Cmd), "subscribers", controller.subscriberCount())

	if err := backend.Send(cmd); err != nil {
		controller.mu.Lock()
		if controller.backend == backend {
			controller.streaming = previous
		}
		controller.mu.Unlock()

		controller.log(slog.LevelError, "Transport send failed", "command", string(cmd.Cmd), "error", err)
		return err
	}

	return nil
}

// Subscribe registers fn to be called once per emitted sample, in emission
// order. The returned function removes the subscription and may be called
// more than once.
func (controller *Controller) Subscribe(fn func(Sample)) func() {
	controller.mu.Lock()
	id := controller.nextID
	controller.nextID++
	controller.subscribers[id] = fn
	controller.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			controller.mu.Lock()
			delete(controller.subscribers, id)
			controller.mu.Unlock()
		})
	}
}

// SetMockMode disconnects, swaps the backend selection and reconnects. It
// returns once the new backend is connected or has failed to connect.
func (controller *Controller) SetMockMode(ctx context.Context, enabled bool) error {
	controller.opMu.Lock()
	defer controller.opMu.Unlock()

	if err := controller.disconnectLocked(); err != nil {
		controller.log(slog.LevelWarn, "Disconnect during mode switch failed", "error", err)
	}

	controller.mu.Lock()
	controller.mockMode = enabled
	controller.mu.Unlock()

	controller.log(slog.LevelInfo, "Transport mode changed", "mock_mode", enabled)
	return controller.connectLocked(ctx)
}

func (controller *Controller) IsConnected() bool {
	controller.mu.RLock()
	defer controller.mu.RUnlock()
	return controller.connected
}

func (controller *Controller) IsStreaming() bool {
	controller.mu.RLock()
	defer controller.mu.RUnlock()
	return controller.streaming
}

func (controller *Controller) MockMode() bool {
	controller.mu.RLock()
	defer controller.mu.RUnlock()
	return controller.mockMode
}

// BackendName returns the name of the connected backend, or "" when
// disconnected.
func (controller *Controller) BackendName() string {
	controller.mu.RLock()
	defer controller.mu.RUnlock()
	if controller.backend == nil {
		return ""
	}
	return controller.backend.Name()
}

func (controller *Controller) subscriberCount() int {
	controller.mu.RLock()
	defer controller.mu.RUnlock()
	return len(controller.subscribers)
}

// dispatch is the EmitFunc handed to backends.
func (controller *Controller) dispatch(sample Sample) {
	controller.mu.RLock()
	if !controller.streaming {
		controller.mu.RUnlock()
		controller.log(slog.LevelDebug, "Dropping sample while not streaming", "freq", sample.Freq)
		return
	}

	ids := make([]uint64, 0, len(controller.subscribers))
	for id := range controller.subscribers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	listeners := make([]func(Sample), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, controller.subscribers[id])
	}
	controller.mu.RUnlock()

	controller.log(slog.LevelDebug, "Notifying subscribers", "count", len(listeners), "freq", sample.Freq, "temp", sample.Temp, "bat", sample.Bat)
	for _, listener := range listeners {
		listener(sample)
	}
}
