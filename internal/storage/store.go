package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gaurav-cyamsys/beaver-readout/internal/models"
	"github.com/google/uuid"
)

const (
	KEY_SENSORS          = "@sensors"
	KEY_READINGS         = "@readings"
	KEY_CURRENT_SENSOR   = "@current_sensor"
	KEY_READOUT_SETTINGS = "@readout_settings"
	KEY_DEVICE_ID        = "@device_id"
)

var ALL_KEYS = []string{
	KEY_SENSORS,
	KEY_READINGS,
	KEY_CURRENT_SENSOR,
	KEY_READOUT_SETTINGS,
	KEY_DEVICE_ID,
}

// Store maps the application's records onto fixed KV keys. Every collection
// is read, modified and written back whole; callers serialize concurrent
// writers to the same key.
type Store struct {
	kv KV
}

func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

func (store *Store) readJSON(ctx context.Context, key string, target any) (bool, error) {
	raw, found, err := store.kv.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}

	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}

	return true, nil
}

func (store *Store) writeJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	return store.kv.Set(ctx, key, string(data))
}

func (store *Store) Sensors(ctx context.Context) ([]models.Sensor, error) {
	var sensors []models.Sensor
	if _, err := store.readJSON(ctx, KEY_SENSORS, &sensors); err != nil {
		return nil, err
	}

	return sensors, nil
}

func (store *Store) SaveSensors(ctx context.Context, sensors []models.Sensor) error {
	if sensors == nil {
		sensors = []models.Sensor{}
	}
	return store.writeJSON(ctx, KEY_SENSORS, sensors)
}

// UpsertSensor replaces the sensor with the same SensorID in place, or
// appends it when the ID is new.
func (store *Store) UpsertSensor(ctx context.Context, sensor models.Sensor) error {
	sensors, err := store.Sensors(ctx)
	if err != nil {
		return err
	}

	replaced := false
	for i := range sensors {
		if sensors[i].SensorID == sensor.SensorID {
			sensors[i] = sensor
			replaced = true
			break
		}
	}
	if !replaced {
		sensors = append(sensors, sensor)
	}

	return store.SaveSensors(ctx, sensors)
}

func (store *Store) CurrentSensorID(ctx context.Context) (string, error) {
	id, _, err := store.kv.Get(ctx, KEY_CURRENT_SENSOR)
	return id, err
}

// SetCurrentSensorID persists the selection. An empty sensorID removes it.
func (store *Store) SetCurrentSensorID(ctx context.Context, sensorID string) error {
	if sensorID == "" {
		return store.kv.Delete(ctx, KEY_CURRENT_SENSOR)
	}
	return store.kv.Set(ctx, KEY_CURRENT_SENSOR, sensorID)
}

func (store *Store) PendingReadings(ctx context.Context) ([]models.Reading, error) {
	var readings []models.Reading
	if _, err := store.readJSON(ctx, KEY_READINGS, &readings); err != nil {
		return nil, err
	}

	return readings, nil
}

func (store *Store) AppendPendingReading(ctx context.Context, reading models.Reading) error {
	readings, err := store.PendingReadings(ctx)
	if err != nil {
		return err
	}

	return store.ReplacePendingReadings(ctx, append(readings, reading))
}

func (store *Store) ReplacePendingReadings(ctx context.Context, readings []models.Reading) error {
	if readings == nil {
		readings = []models.Reading{}
	}
	return store.writeJSON(ctx, KEY_READINGS, readings)
}

func (store *Store) ClearPendingReadings(ctx context.Context) error {
	return store.ReplacePendingReadings(ctx, nil)
}

// Preferences returns the stored preferences, or the defaults when none were
// saved yet.
func (store *Store) Preferences(ctx context.Context) (models.Preferences, error) {
	preferences := models.DefaultPreferences()
	if _, err := store.readJSON(ctx, KEY_READOUT_SETTINGS, &preferences); err != nil {
		return models.DefaultPreferences(), err
	}

	return preferences, nil
}

func (store *Store) SavePreferences(ctx context.Context, preferences models.Preferences) error {
	return store.writeJSON(ctx, KEY_READOUT_SETTINGS, preferences)
}

// DeviceID returns the persisted installation ID, or "" when none exists.
func (store *Store) DeviceID(ctx context.Context) (string, error) {
	id, _, err := store.kv.Get(ctx, KEY_DEVICE_ID)
	return id, err
}

func (store *Store) EnsureDeviceID(ctx context.Context) (string, error) {
	id, err := store.DeviceID(ctx)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := store.kv.Set(ctx, KEY_DEVICE_ID, id); err != nil {
		return "", err
	}

	return id, nil
}

// ClearAll removes every key the application owns.
func (store *Store) ClearAll(ctx context.Context) error {
	for _, key := range ALL_KEYS {
		if err := store.kv.Delete(ctx, key); err != nil {
			return err
		}
	}

	return nil
}
