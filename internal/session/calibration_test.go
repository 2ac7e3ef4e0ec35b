package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gaurav-cyamsys/beaver-readout/internal/models"
)

func TestCalibrationFormValidate(t *testing.T) {
	valid := CalibrationForm{SensorID: "VW-1", GaugeFactor: "0.5", InitialReading: "1000", Temperature: "25"}

	tests := []struct {
		name    string
		mutate  func(form *CalibrationForm)
		wantMsg string
	}{
		{"valid", func(*CalibrationForm) {}, ""},
		{"blank id", func(form *CalibrationForm) { form.SensorID = "   " }, "sensor ID"},
		{"missing gauge factor", func(form *CalibrationForm) { form.GaugeFactor = "" }, "gauge factor"},
		{"bad initial reading", func(form *CalibrationForm) { form.InitialReading = "abc" }, "initial reading"},
		{"missing temperature", func(form *CalibrationForm) { form.Temperature = " " }, "temperature"},
		{"nan gauge factor", func(form *CalibrationForm) { form.GaugeFactor = "NaN" }, "gauge factor"},
		{"infinite initial reading", func(form *CalibrationForm) { form.InitialReading = "Inf" }, "initial reading"},
		{"infinity initial reading", func(form *CalibrationForm) { form.InitialReading = "-Infinity" }, "initial reading"},
		{"lowercase nan temperature", func(form *CalibrationForm) { form.Temperature = "nan" }, "temperature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := valid
			tt.mutate(&form)
			err := form.Validate()

			if tt.wantMsg == "" {
				if err != nil {
					t.Errorf("err = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidCalibration) {
				t.Fatalf("err = %v, want ErrInvalidCalibration", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("err = %q, want mention of %q", err, tt.wantMsg)
			}
		})
	}
}

func TestCalibrationFormSensor(t *testing.T) {
	form := CalibrationForm{
		SensorID:       "  VW-7 ",
		GaugeFactor:    "0.0312",
		InitialReading: "1200.5",
		Temperature:    "21",
		Remark:         " pier 3 ",
	}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	sensor, err := form.Sensor(now)
	if err != nil {
		t.Fatalf("sensor: %v", err)
	}

	want := models.Sensor{
		SensorID:             "VW-7",
		GaugeFactor:          0.0312,
		InitialReading:       1200.5,
		Remark:               "pier 3",
		CalibrationTimestamp: "2024-05-01T12:00:00.000Z",
	}
	if sensor != want {
		t.Errorf("sensor = %+v, want %+v", sensor, want)
	}
}

func TestCalibrationFormDigitsPreview(t *testing.T) {
	if got := (CalibrationForm{InitialReading: "1000"}).DigitsPreview(); got != 1000 {
		t.Errorf("digits = %v, want 1000", got)
	}
	if got := (CalibrationForm{InitialReading: "n/a"}).DigitsPreview(); got != 0 {
		t.Errorf("digits = %v, want 0", got)
	}
}
