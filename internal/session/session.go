// Package session coordinates calibration state, the live sample stream and
// the pending upload buffer.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gaurav-cyamsys/beaver-readout/internal/calc"
	"github.com/gaurav-cyamsys/beaver-readout/internal/cloud"
	"github.com/gaurav-cyamsys/beaver-readout/internal/models"
	"github.com/gaurav-cyamsys/beaver-readout/internal/netwatch"
	"github.com/gaurav-cyamsys/beaver-readout/internal/storage"
	"github.com/gaurav-cyamsys/beaver-readout/internal/transport"
)

const DEFAULT_WATCHDOG_DELAY = 5 * time.Second

var (
	ErrNoSensorSelected = errors.New("no sensor selected")
	ErrOffline          = errors.New("offline")
	ErrUnknownSensor    = errors.New("unknown sensor")
)

// Transport is the part of transport.Controller the session drives.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	SendCommand(cmd transport.Command) error
	Subscribe(fn func(transport.Sample)) func()
	SetMockMode(ctx context.Context, enabled bool) error
	IsConnected() bool
	IsStreaming() bool
	MockMode() bool
}

type Options struct {
	Transport Transport
	Store     *storage.Store
	// History is optional.
	History  *storage.History
	Uploader cloud.Uploader
	Monitor  netwatch.Monitor
	Logger   *slog.Logger

	WatchdogDelay time.Duration
	Now           func() time.Time
}

// Event is published for every sample the session accepts. Reading is nil
// when no sensor was selected.
type Event struct {
	Sample     transport.Sample `json:"sample"`
	Reading    *models.Reading  `json:"reading,omitempty"`
	ReceivedAt time.Time        `json:"received_at"`
}

// State is a point-in-time copy of the session.
type State struct {
	Connected      bool              `json:"connected"`
	Streaming      bool              `json:"streaming"`
	MockMode       bool              `json:"mock_mode"`
	Online         bool              `json:"online"`
	ReceivingData  bool              `json:"receiving_data"`
	CurrentSample  *transport.Sample `json:"current_sample,omitempty"`
	CurrentReading *models.Reading   `json:"current_reading,omitempty"`
	LastReadingAt  *time.Time        `json:"last_reading_at,omitempty"`
	CurrentSensor  *models.Sensor    `json:"current_sensor,omitempty"`
	Sensors        []models.Sensor   `json:"sensors"`
	DeviceID       string            `json:"device_id,omitempty"`
}

type Session struct {
	transport     Transport
	store         *storage.Store
	history       *storage.History
	uploader      cloud.Uploader
	monitor       netwatch.Monitor
	logger        *slog.Logger
	watchdogDelay time.Duration
	now           func() time.Time

	mu             sync.RWMutex
	ctx            context.Context
	mounted        bool
	connected      bool
	online         bool
	receiving      bool
	currentSample  *transport.Sample
	currentReading *models.Reading
	lastReadingAt  time.Time
	sensors        []models.Sensor
	currentSensor  *models.Sensor
	deviceID       string
	watchdog       *time.Timer
	unsubscribe    []func()

	// pendingMu serializes read/modify/write of the pending buffer.
	pendingMu sync.Mutex
	// uploadMu allows one batch upload at a time so each trims only its own
	// prefix.
	uploadMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   map[uint64]func(Event)
	nextID      uint64

	background sync.WaitGroup
}

func New(options Options) *Session {
	uploader := options.Uploader
	if uploader == nil {
		uploader = cloud.NopUploader{}
	}
	monitor := options.Monitor
	if monitor == nil {
		monitor = netwatch.NewStaticMonitor(false)
	}
	watchdogDelay := options.WatchdogDelay
	if watchdogDelay <= 0 {
		watchdogDelay = DEFAULT_WATCHDOG_DELAY
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}

	return &Session{
		transport:     options.Transport,
		store:         options.Store,
		history:       options.History,
		uploader:      uploader,
		monitor:       monitor,
		logger:        options.Logger,
		watchdogDelay: watchdogDelay,
		now:           now,
		ctx:           context.Background(),
		online:        monitor.Online(),
		listeners:     make(map[uint64]func(Event)),
	}
}

func (session *Session) log(level slog.Level, msg string, args ...any) {
	if session.logger != nil {
		session.logger.Log(context.Background(), level, msg, args...)
	}
}

// Mount starts observing connectivity, opens the transport, subscribes to
// samples and loads the persisted sensors. A transport that fails to connect
// is logged and leaves the session disconnected.
func (session *Session) Mount(ctx context.Context) {
	session.mu.Lock()
	if session.mounted {
		session.mu.Unlock()
		return
	}
	session.mounted = true
	session.ctx = ctx
	session.mu.Unlock()

	unsubscribeConnectivity := session.monitor.Subscribe(session.onConnectivity)
	session.mu.Lock()
	session.online = session.monitor.Online()
	session.mu.Unlock()

	if deviceID, err := session.store.EnsureDeviceID(ctx); err != nil {
		session.log(slog.LevelWarn, "Failed to load device id", "error", err)
	} else {
		session.mu.Lock()
		session.deviceID = deviceID
		session.mu.Unlock()
	}

	if err := session.transport.Connect(ctx); err != nil {
		session.log(slog.LevelWarn, "Transport unavailable", "error", err)
	}
	unsubscribeSamples := session.transport.Subscribe(session.onSample)

	session.mu.Lock()
	session.unsubscribe = append(session.unsubscribe, unsubscribeConnectivity, unsubscribeSamples)
	session.mu.Unlock()

	session.UpdateConnectionStatus()
	session.LoadSensors(ctx)

	session.log(slog.LevelInfo, "Session mounted", "online", session.monitor.Online(), "mock_mode", session.transport.MockMode())
}

// Unmount releases every subscription and disconnects the transport.
func (session *Session) Unmount() {
	session.mu.Lock()
	if !session.mounted {
		session.mu.Unlock()
		return
	}
	session.mounted = false
	unsubscribe := session.unsubscribe
	session.unsubscribe = nil
	session.stopWatchdogLocked()
	session.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}

	if err := session.transport.Disconnect(); err != nil {
		session.log(slog.LevelWarn, "Failed to disconnect transport", "error", err)
	}
	session.UpdateConnectionStatus()

	session.background.Wait()
	session.log(slog.LevelInfo, "Session unmounted")
}

func (session *Session) onConnectivity(online bool) {
	session.mu.Lock()
	wasOnline := session.online
	session.online = online
	ctx := session.ctx
	session.mu.Unlock()

	session.log(slog.LevelInfo, "Connectivity changed", "online", online)

	if !online || wasOnline {
		return
	}

	preferences, err := session.store.Preferences(ctx)
	if err != nil {
		session.log(slog.LevelWarn, "Failed to load preferences", "error", err)
		return
	}
	if !preferences.AutoUpload {
		return
	}

	session.background.Add(1)
	go func() {
		defer session.background.Done()

		uploaded, err := session.UploadReadings(ctx)
		if err != nil {
			session.log(slog.LevelWarn, "Automatic upload failed", "error", err)
			return
		}
		session.log(slog.LevelInfo, "Automatic upload completed", "readings", uploaded)
	}()
}

func (session *Session) onSample(sample transport.Sample) {
	now := session.now()

	session.mu.Lock()
	session.currentSample = &sample
	session.lastReadingAt = now
	session.receiving = true
	var sensor *models.Sensor
	if session.currentSensor != nil {
		selected := *session.currentSensor
		sensor = &selected
	}
	online := session.online
	deviceID := session.deviceID
	ctx := session.ctx
	session.mu.Unlock()

	event := Event{Sample: sample, ReceivedAt: now}
	if sensor == nil {
		session.log(slog.LevelDebug, "Sample received without a selected sensor", "freq", sample.Freq)
		session.publish(event)
		return
	}

	reading := BuildReading(*sensor, sample, now)
	event.Reading = &reading

	session.mu.Lock()
	session.currentReading = &reading
	session.mu.Unlock()

	session.pendingMu.Lock()
	err := session.store.AppendPendingReading(ctx, reading)
	session.pendingMu.Unlock()
	if err != nil {
		session.log(slog.LevelError, "Failed to store reading", "sensor_id", reading.SensorID, "error", err)
	}

	if session.history != nil {
		if err := session.history.Append(ctx, reading); err != nil {
			session.log(slog.LevelError, "Failed to record reading history", "sensor_id", reading.SensorID, "error", err)
		}
	}

	session.publish(event)

	if online {
		if err := session.uploader.Insert(ctx, []cloud.Row{cloud.NewRow(reading, deviceID)}); err != nil {
			session.log(slog.LevelWarn, "Immediate upload failed, reading kept for batch upload", "sensor_id", reading.SensorID, "error", err)
		}
	}
}

// BuildReading derives the stored reading for sample taken with sensor.
func BuildReading(sensor models.Sensor, sample transport.Sample, at time.Time) models.Reading {
	return models.Reading{
		SensorID:    sensor.SensorID,
		Frequency:   sample.Freq,
		Temperature: sample.Temp,
		FinalLoad:   calc.FinalLoad(sample.Freq, sensor.InitialReading, sensor.GaugeFactor),
		Digits:      calc.Digits(sample.Freq),
		Battery:     sample.Bat,
		Timestamp:   models.FormatTimestamp(at),
	}
}

// Subscribe registers fn for every accepted sample, in arrival order.
func (session *Session) Subscribe(fn func(Event)) func() {
	session.listenersMu.Lock()
	id := session.nextID
	session.nextID++
	session.listeners[id] = fn
	session.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			session.listenersMu.Lock()
			delete(session.listeners, id)
			session.listenersMu.Unlock()
		})
	}
}

func (session *Session) publish(event Event) {
	session.listenersMu.RLock()
	ids := make([]uint64, 0, len(session.listeners))
	for id := range session.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	listeners := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, session.listeners[id])
	}
	session.listenersMu.RUnlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// StartFetching asks the device to start streaming. It requires a selected
// sensor.
func (session *Session) StartFetching() error {
	session.mu.RLock()
	selected := session.currentSensor != nil
	session.mu.RUnlock()

	if !selected {
		return ErrNoSensorSelected
	}

	session.log(slog.LevelInfo, "Starting fetch")
	if err := session.transport.SendCommand(transport.StartCommand()); err != nil {
		session.log(slog.LevelError, "Failed to send fetch command", "error", err)
		return fmt.Errorf("failed to start fetching: %w", err)
	}

	session.mu.Lock()
	session.receiving = false
	session.armWatchdogLocked(session.now())
	session.mu.Unlock()

	return nil
}

func (session *Session) StopFetching() error {
	session.log(slog.LevelInfo, "Stopping fetch")
	if err := session.transport.SendCommand(transport.StopCommand()); err != nil {
		session.log(slog.LevelError, "Failed to stop fetch", "error", err)
		return fmt.Errorf("failed to stop fetching: %w", err)
	}

	session.mu.Lock()
	session.receiving = false
	session.stopWatchdogLocked()
	session.mu.Unlock()

	return nil
}

func (session *Session) armWatchdogLocked(startedAt time.Time) {
	session.stopWatchdogLocked()

	var timer *time.Timer
	timer = time.AfterFunc(session.watchdogDelay, func() {
		session.mu.Lock()
		if session.watchdog != timer {
			session.mu.Unlock()
			return
		}
		session.watchdog = nil
		silent := session.lastReadingAt.Before(startedAt)
		session.mu.Unlock()

		if silent && session.transport.IsStreaming() {
			session.log(slog.LevelWarn, "Fetch command active but no data received", "after", session.watchdogDelay)
		}
	})
	session.watchdog = timer
}

func (session *Session) stopWatchdogLocked() {
	if session.watchdog != nil {
		session.watchdog.Stop()
		session.watchdog = nil
	}
}

// UploadReadings sends the whole pending buffer as one batch and returns the
// number of readings uploaded. The buffer is trimmed only when the batch
// succeeds; readings that arrive during the upload are kept.
func (session *Session) UploadReadings(ctx context.Context) (int, error) {
	session.mu.RLock()
	online := session.online
	deviceID := session.deviceID
	session.mu.RUnlock()

	if !online {
		session.log(slog.LevelInfo, "Upload skipped while offline")
		return 0, ErrOffline
	}

	session.uploadMu.Lock()
	defer session.uploadMu.Unlock()

	session.pendingMu.Lock()
	readings, err := session.store.PendingReadings(ctx)
	session.pendingMu.Unlock()
	if err != nil {
		session.log(slog.LevelError, "Failed to load pending readings", "error", err)
		return 0, fmt.Errorf("failed to load pending readings: %w", err)
	}
	if len(readings) == 0 {
		return 0, nil
	}

	if err := session.uploader.Insert(ctx, cloud.NewRows(readings, deviceID)); err != nil {
		session.log(slog.LevelError, "Failed to upload readings", "readings", len(readings), "error", err)
		return 0, fmt.Errorf("failed to upload readings: %w", err)
	}

	session.pendingMu.Lock()
	defer session.pendingMu.Unlock()

	current, err := session.store.PendingReadings(ctx)
	if err != nil {
		session.log(slog.LevelError, "Failed to reload pending readings", "error", err)
		return len(readings), nil
	}

	var remaining []models.Reading
	if len(current) > len(readings) {
		remaining = current[len(readings):]
	}
	if err := session.store.ReplacePendingReadings(ctx, remaining); err != nil {
		session.log(slog.LevelError, "Failed to clear uploaded readings", "error", err)
	}

	session.log(slog.LevelInfo, "Readings uploaded", "readings", len(readings))
	return len(readings), nil
}

// PendingReadings returns the readings not yet uploaded.
func (session *Session) PendingReadings(ctx context.Context) []models.Reading {
	session.pendingMu.Lock()
	defer session.pendingMu.Unlock()

	readings, err := session.store.PendingReadings(ctx)
	if err != nil {
		session.log(slog.LevelError, "Failed to load pending readings", "error", err)
		return nil
	}

	return readings
}

// History returns recorded readings newest first. It is empty without a
// history store.
func (session *Session) History(ctx context.Context, sensorID string, limit int) ([]models.Reading, error) {
	if session.history == nil {
		return nil, nil
	}
	return session.history.Recent(ctx, sensorID, limit)
}

// SetCurrentSensor selects the sensor with sensorID and persists the choice.
// An empty sensorID clears the selection.
func (session *Session) SetCurrentSensor(ctx context.Context, sensorID string) error {
	if sensorID == "" {
		session.mu.Lock()
		session.currentSensor = nil
		session.mu.Unlock()

		if err := session.store.SetCurrentSensorID(ctx, ""); err != nil {
			session.log(slog.LevelError, "Failed to clear current sensor", "error", err)
			return fmt.Errorf("failed to clear current sensor: %w", err)
		}
		return nil
	}

	session.mu.Lock()
	var selected *models.Sensor
	for i := range session.sensors {
		if session.sensors[i].SensorID == sensorID {
			sensor := session.sensors[i]
			selected = &sensor
			break
		}
	}
	if selected == nil {
		session.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSensor, sensorID)
	}
	session.currentSensor = selected
	session.mu.Unlock()

	if err := session.store.SetCurrentSensorID(ctx, sensorID); err != nil {
		session.log(slog.LevelError, "Failed to persist current sensor", "sensor_id", sensorID, "error", err)
		return fmt.Errorf("failed to persist current sensor: %w", err)
	}

	return nil
}

// LoadSensors reloads the sensor list and the last selected sensor from
// storage. Storage errors are logged and leave the list empty.
func (session *Session) LoadSensors(ctx context.Context) []models.Sensor {
	sensors, err := session.store.Sensors(ctx)
	if err != nil {
		session.log(slog.LevelError, "Failed to load sensors", "error", err)
		sensors = nil
	}

	currentID, err := session.store.CurrentSensorID(ctx)
	if err != nil {
		session.log(slog.LevelError, "Failed to load current sensor", "error", err)
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	session.sensors = sensors
	if currentID == "" && session.currentSensor != nil {
		currentID = session.currentSensor.SensorID
	}
	if currentID != "" {
		for i := range sensors {
			if sensors[i].SensorID == currentID {
				sensor := sensors[i]
				session.currentSensor = &sensor
				break
			}
		}
	}

	return append([]models.Sensor(nil), sensors...)
}

// SaveSensor inserts or replaces sensor, reloads the list and selects it.
func (session *Session) SaveSensor(ctx context.Context, sensor models.Sensor) error {
	if err := session.store.UpsertSensor(ctx, sensor); err != nil {
		session.log(slog.LevelError, "Failed to save sensor", "sensor_id", sensor.SensorID, "error", err)
		return fmt.Errorf("failed to save sensor: %w", err)
	}

	session.LoadSensors(ctx)
	return session.SetCurrentSensor(ctx, sensor.SensorID)
}

func (session *Session) Sensors() []models.Sensor {
	session.mu.RLock()
	defer session.mu.RUnlock()
	return append([]models.Sensor(nil), session.sensors...)
}

func (session *Session) CurrentSensor() (models.Sensor, bool) {
	session.mu.RLock()
	defer session.mu.RUnlock()
	if session.currentSensor == nil {
		return models.Sensor{}, false
	}
	return *session.currentSensor, true
}

func (session *Session) State() State {
	session.UpdateConnectionStatus()

	session.mu.RLock()
	defer session.mu.RUnlock()

	state := State{
		Connected:     session.connected,
		Streaming:     session.transport.IsStreaming(),
		MockMode:      session.transport.MockMode(),
		Online:        session.online,
		ReceivingData: session.receiving,
		Sensors:       append([]models.Sensor{}, session.sensors...),
		DeviceID:      session.deviceID,
	}
	if session.currentSample != nil {
		sample := *session.currentSample
		state.CurrentSample = &sample
	}
	if session.currentReading != nil {
		reading := *session.currentReading
		state.CurrentReading = &reading
	}
	if !session.lastReadingAt.IsZero() {
		at := session.lastReadingAt
		state.LastReadingAt = &at
	}
	if session.currentSensor != nil {
		sensor := *session.currentSensor
		state.CurrentSensor = &sensor
	}

	return state
}

// ClearAllData resets the in-memory state. Storage is left untouched.
func (session *Session) ClearAllData() {
	session.log(slog.LevelInfo, "Clearing session state")

	session.mu.Lock()
	defer session.mu.Unlock()

	session.sensors = nil
	session.currentSensor = nil
	session.currentSample = nil
	session.currentReading = nil
	session.lastReadingAt = time.Time{}
	session.receiving = false
}

// FactoryReset deletes every stored record and resets the in-memory state.
// The device keeps streaming if it was.
func (session *Session) FactoryReset(ctx context.Context) error {
	session.pendingMu.Lock()
	err := session.store.ClearAll(ctx)
	session.pendingMu.Unlock()
	if err != nil {
		session.log(slog.LevelError, "Factory reset failed", "error", err)
		return fmt.Errorf("failed to clear storage: %w", err)
	}

	if session.history != nil {
		if err := session.history.Clear(ctx); err != nil {
			session.log(slog.LevelError, "Failed to clear reading history", "error", err)
			return err
		}
	}

	session.ClearAllData()

	deviceID, err := session.store.EnsureDeviceID(ctx)
	if err != nil {
		session.log(slog.LevelWarn, "Failed to create device id", "error", err)
	}
	session.mu.Lock()
	session.deviceID = deviceID
	session.mu.Unlock()

	session.log(slog.LevelInfo, "Factory reset completed")
	return nil
}

// UpdateConnectionStatus refreshes the cached transport connection flag.
func (session *Session) UpdateConnectionStatus() bool {
	connected := session.transport.IsConnected()

	session.mu.Lock()
	changed := session.connected != connected
	session.connected = connected
	session.mu.Unlock()

	if changed {
		session.log(slog.LevelDebug, "Connection status updated", "connected", connected)
	}

	return connected
}

// SetMockMode swaps between the synthetic generator and the real device.
func (session *Session) SetMockMode(ctx context.Context, enabled bool) error {
	session.mu.Lock()
	session.receiving = false
	session.stopWatchdogLocked()
	session.mu.Unlock()

	err := session.transport.SetMockMode(ctx, enabled)
	session.UpdateConnectionStatus()
	if err != nil {
		session.log(slog.LevelWarn, "Transport unavailable after mode change", "mock_mode", enabled, "error", err)
		return err
	}

	return nil
}

func (session *Session) Preferences(ctx context.Context) models.Preferences {
	preferences, err := session.store.Preferences(ctx)
	if err != nil {
		session.log(slog.LevelError, "Failed to load preferences", "error", err)
	}
	return preferences
}

func (session *Session) SavePreferences(ctx context.Context, preferences models.Preferences) error {
	if err := session.store.SavePreferences(ctx, preferences); err != nil {
		session.log(slog.LevelError, "Failed to save preferences", "error", err)
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

func (session *Session) IsOnline() bool {
	session.mu.RLock()
	defer session.mu.RUnlock()
	return session.online
}
