package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gaurav-cyamsys/beaver-readout/internal/calc"
	"github.com/gaurav-cyamsys/beaver-readout/internal/models"
	"github.com/gaurav-cyamsys/beaver-readout/internal/session"
	"github.com/gaurav-cyamsys/beaver-readout/internal/transport"
)

type errorResponse struct {
	Error string `json:"error"`
}

type createSensorResponse struct {
	Sensor        models.Sensor `json:"sensor"`
	DigitsPreview float64       `json:"digits_preview"`
}

type selectSensorRequest struct {
	SensorID string `json:"sensor_id"`
}

type modeRequest struct {
	MockMode *bool `json:"mock_mode"`
}

type uploadResponse struct {
	Uploaded int `json:"uploaded"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps session and transport errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNoSensorSelected):
		return http.StatusConflict
	case errors.Is(err, session.ErrOffline), errors.Is(err, transport.ErrNotConnected), errors.Is(err, transport.ErrNoDevice):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrInvalidCalibration):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrUnknownSensor):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func (server *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (server *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, server.session.State())
}

func (server *Server) handleListSensors(w http.ResponseWriter, r *http.Request) {
	sensors := server.session.Sensors()
	if sensors == nil {
		sensors = []models.Sensor{}
	}
	writeJSON(w, http.StatusOK, sensors)
}

func (server *Server) handleCreateSensor(w http.ResponseWriter, r *http.Request) {
	var form session.CalibrationForm
	if err := decodeBody(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sensor, err := form.Sensor(server.now())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	if err := server.session.SaveSensor(r.Context(), sensor); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, createSensorResponse{Sensor: sensor, DigitsPreview: form.DigitsPreview()})
}

func (server *Server) handleSelectSensor(w http.ResponseWriter, r *http.Request) {
	var request selectSensorRequest
	if err := decodeBody(r, &request); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := server.session.SetCurrentSensor(r.Context(), request.SensorID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, server.session.State())
}

func (server *Server) handleStartFetching(w http.ResponseWriter, r *http.Request) {
	if err := server.session.StartFetching(); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, server.session.State())
}

func (server *Server) handleStopFetching(w http.ResponseWriter, r *http.Request) {
	if err := server.session.StopFetching(); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, server.session.State())
}

func (server *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	uploaded, err := server.session.UploadReadings(r.Context())
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{Uploaded: uploaded})
}

func (server *Server) handlePendingReadings(w http.ResponseWriter, r *http.Request) {
	readings := server.session.PendingReadings(r.Context())
	if readings == nil {
		readings = []models.Reading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

func (server *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	readings, err := server.session.History(r.Context(), query.Get("sensor_id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if readings == nil {
		readings = []models.Reading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

func (server *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var request modeRequest
	if err := decodeBody(r, &request); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if request.MockMode == nil {
		writeError(w, http.StatusBadRequest, errors.New("mock_mode is required"))
		return
	}

	if err := server.session.SetMockMode(r.Context(), *request.MockMode); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, server.session.State())
}

func (server *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, server.session.Preferences(r.Context()))
}

func (server *Server) handleSavePreferences(w http.ResponseWriter, r *http.Request) {
	var preferences models.Preferences
	if err := decodeBody(r, &preferences); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if preferences.TemperatureUnit != calc.UnitCelsius && preferences.TemperatureUnit != calc.UnitFahrenheit {
		writeError(w, http.StatusBadRequest, errors.New("temperatureUnit must be C or F"))
		return
	}

	if err := server.session.SavePreferences(r.Context(), preferences); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, preferences)
}
