package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gaurav-cyamsys/beaver-readout/internal/database"
	"github.com/gaurav-cyamsys/beaver-readout/internal/models"
	"github.com/gaurav-cyamsys/beaver-readout/internal/netwatch"
	"github.com/gaurav-cyamsys/beaver-readout/internal/session"
	"github.com/gaurav-cyamsys/beaver-readout/internal/storage"
	"github.com/gaurav-cyamsys/beaver-readout/internal/transport"
	"github.com/gorilla/websocket"
)

type pushBackend struct {
	mu   sync.Mutex
	emit transport.EmitFunc
}

func (backend *pushBackend) Name() string { return "push" }

func (backend *pushBackend) Open(_ context.Context, emit transport.EmitFunc) error {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.emit = emit
	return nil
}

func (backend *pushBackend) Send(transport.Command) error { return nil }

func (backend *pushBackend) Close() error { return nil }

func (backend *pushBackend) push(sample transport.Sample) {
	backend.mu.Lock()
	emit := backend.emit
	backend.mu.Unlock()
	if emit != nil {
		emit(sample)
	}
}

func newTestServer(t *testing.T, online bool) (*httptest.Server, *pushBackend) {
	t.Helper()

	db, err := database.Open(database.MemoryPath)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })

	backend := &pushBackend{}
	controller := transport.NewController(func() transport.Backend { return backend }, nil, false, nil)
	s := session.New(session.Options{
		Transport: controller,
		Store:     storage.NewStore(storage.NewGormKV(db)),
		History:   storage.NewHistory(db),
		Monitor:   netwatch.NewStaticMonitor(online),
	})
	s.Mount(context.Background())
	t.Cleanup(s.Unmount)

	server := httptest.NewServer(NewServer(s, nil).Handler())
	t.Cleanup(server.Close)

	return server, backend
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	request, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { response.Body.Close() })
	return response
}

func createSensor(t *testing.T, baseURL string) {
	t.Helper()
	form := session.CalibrationForm{SensorID: "VW-1", GaugeFactor: "0.5", InitialReading: "1000", Temperature: "22"}
	if response := do(t, "POST", baseURL+"/api/sensors", form); response.StatusCode != http.StatusCreated {
		t.Fatalf("create sensor status = %d, want 201", response.StatusCode)
	}
}

func TestHealthSetsRequestID(t *testing.T) {
	server, _ := newTestServer(t, false)

	response := do(t, "GET", server.URL+"/api/health", nil)
	if response.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", response.StatusCode)
	}
	if response.Header.Get(REQUEST_ID_HEADER) == "" {
		t.Error("request id header missing")
	}
}

func TestStartWithoutSensorConflicts(t *testing.T) {
	server, _ := newTestServer(t, false)

	response := do(t, "POST", server.URL+"/api/fetch/start", nil)
	if response.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", response.StatusCode)
	}
}

func TestCreateSensorValidation(t *testing.T) {
	server, _ := newTestServer(t, false)

	form := session.CalibrationForm{SensorID: "VW-1", GaugeFactor: "x", InitialReading: "1000", Temperature: "22"}
	response := do(t, "POST", server.URL+"/api/sensors", form)
	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", response.StatusCode)
	}

	createSensor(t, server.URL)

	response = do(t, "GET", server.URL+"/api/sensors", nil)
	var sensors []models.Sensor
	json.NewDecoder(response.Body).Decode(&sensors)
	if len(sensors) != 1 || sensors[0].SensorID != "VW-1" {
		t.Errorf("sensors = %+v, want VW-1", sensors)
	}
}

func TestSelectUnknownSensorNotFound(t *testing.T) {
	server, _ := newTestServer(t, false)

	response := do(t, "PUT", server.URL+"/api/sensors/current", map[string]string{"sensor_id": "nope"})
	if response.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", response.StatusCode)
	}
}

func TestUploadOfflineUnavailable(t *testing.T) {
	server, _ := newTestServer(t, false)

	response := do(t, "POST", server.URL+"/api/upload", nil)
	if response.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", response.StatusCode)
	}
}

func TestPreferencesRejectUnknownUnit(t *testing.T) {
	server, _ := newTestServer(t, false)

	preferences := models.DefaultPreferences()
	preferences.TemperatureUnit = "K"
	if response := do(t, "PUT", server.URL+"/api/preferences", preferences); response.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", response.StatusCode)
	}

	preferences.TemperatureUnit = "F"
	if response := do(t, "PUT", server.URL+"/api/preferences", preferences); response.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", response.StatusCode)
	}

	response := do(t, "GET", server.URL+"/api/preferences", nil)
	var got models.Preferences
	json.NewDecoder(response.Body).Decode(&got)
	if got.TemperatureUnit != "F" {
		t.Errorf("unit = %q, want F", got.TemperatureUnit)
	}
}

func TestStreamPushesReadings(t *testing.T) {
	server, backend := newTestServer(t, false)
	createSensor(t, server.URL)

	if response := do(t, "POST", server.URL+"/api/fetch/start", nil); response.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, want 200", response.StatusCode)
	}

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The subscription is registered after the upgrade; retry until it lands.
	received := make(chan StreamMessage, 1)
	go func() {
		var message StreamMessage
		if err := conn.ReadJSON(&message); err == nil {
			received <- message
		}
	}()

	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case message := <-received:
			if message.Reading == nil || message.Reading.SensorID != "VW-1" {
				t.Errorf("reading = %+v, want VW-1", message.Reading)
			}
			if message.Temperature != "25.0 °C" {
				t.Errorf("temperature = %q, want 25.0 °C", message.Temperature)
			}

			response := do(t, "GET", server.URL+"/api/readings/history?sensor_id=VW-1&limit=5", nil)
			var history []models.Reading
			json.NewDecoder(response.Body).Decode(&history)
			if len(history) == 0 {
				t.Error("history empty after streaming")
			}
			return
		case <-ticker.C:
			backend.push(transport.Sample{Freq: 1300, Temp: 25, Bat: 90})
		case <-deadline:
			t.Fatal("no stream message received")
		}
	}
}
