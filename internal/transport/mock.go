package transport

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DEFAULT_MOCK_INTERVAL = 2 * time.Second

	mockFrequencyBase  = 1200.0
	mockFrequencySpan  = 200.0
	mockTemperatureMin = 25.0
	mockTemperatureMax = 30.0
	mockBatteryMin     = 85
	mockBatterySpan    = 15
)

// MockBackend stands in for the readout device. While streaming it emits one
// plausible sample per interval.
type MockBackend struct {
	interval time.Duration
	rng      *rand.Rand
	logger   *slog.Logger

	mu     sync.Mutex
	emit   EmitFunc
	open   bool
	cancel context.CancelFunc
	done   chan struct{}

	generators atomic.Int32
}

func NewMockBackend(interval time.Duration, logger *slog.Logger) *MockBackend {
	return NewMockBackendWithSource(interval, rand.NewSource(time.Now().UnixNano()), logger)
}

// NewMockBackendWithSource is NewMockBackend with a caller-supplied random
// source, for reproducible sample sequences.
func NewMockBackendWithSource(interval time.Duration, source rand.Source, logger *slog.Logger) *MockBackend {
	if interval <= 0 {
		interval = DEFAULT_MOCK_INTERVAL
	}

	return &MockBackend{
		interval: interval,
		rng:      rand.New(source),
		logger:   logger,
	}
}

func (mock *MockBackend) log(level slog.Level, msg string, args ...any) {
	if mock.logger != nil {
		mock.logger.Log(context.Background(), level, msg, args...)
	}
}

func (mock *MockBackend) Name() string {
	return "mock"
}

func (mock *MockBackend) Open(_ context.Context, emit EmitFunc) error {
	mock.mu.Lock()
	defer mock.mu.Unlock()

	mock.emit = emit
	mock.open = true
	mock.log(slog.LevelInfo, "Mock data generator ready", "interval", mock.interval)

	return nil
}

func (mock *MockBackend) Send(cmd Command) error {
	mock.mu.Lock()
	open := mock.open
	mock.mu.Unlock()

	if !open {
		return ErrNotConnected
	}

	switch cmd.Cmd {
	case CommandStart:
		mock.startGenerator()
	case CommandStop:
		mock.stopGenerator()
	default:
		_, err := cmd.Encode()
		return err
	}

	return nil
}

func (mock *MockBackend) Close() error {
	mock.stopGenerator()

	mock.mu.Lock()
	mock.open = false
	mock.emit = nil
	mock.mu.Unlock()

	return nil
}

func (mock *MockBackend) startGenerator() {
	mock.mu.Lock()
	defer mock.mu.Unlock()

	if mock.cancel != nil {
		mock.log(slog.LevelDebug, "Mock data generator already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	mock.cancel = cancel
	mock.done = done

	mock.log(slog.LevelDebug, "Starting mock data generator")
	go mock.generate(ctx, mock.emit, done)
}

// stopGenerator cancels the running generator and waits for it to exit.
func (mock *MockBackend) stopGenerator() {
	mock.mu.Lock()
	cancel, done := mock.cancel, mock.done
	mock.cancel = nil
	mock.done = nil
	mock.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
	mock.log(slog.LevelDebug, "Mock data generator stopped")
}

func (mock *MockBackend) generate(ctx context.Context, emit EmitFunc, done chan struct{}) {
	defer close(done)

	mock.generators.Add(1)
	defer mock.generators.Add(-1)

	ticker := time.NewTicker(mock.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}

			sample := mock.nextSample()
			mock.log(slog.LevelDebug, "Generated mock sample", "freq", sample.Freq, "temp", sample.Temp, "bat", sample.Bat)
			if emit != nil {
				emit(sample)
			}
		}
	}
}

func (mock *MockBackend) nextSample() Sample {
	return Sample{
		Freq: mockFrequencyBase + mock.rng.Float64()*mockFrequencySpan,
		Temp: mockTemperatureMin + mock.rng.Float64()*(mockTemperatureMax-mockTemperatureMin),
		Bat:  float64(mockBatteryMin + mock.rng.Intn(mockBatterySpan)),
	}
}
