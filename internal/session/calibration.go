package session

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gaurav-cyamsys/beaver-readout/internal/calc"
	"github.com/gaurav-cyamsys/beaver-readout/internal/models"
)

var ErrInvalidCalibration = errors.New("invalid calibration")

// CalibrationForm holds the raw values a technician enters for a new sensor.
type CalibrationForm struct {
	SensorID       string `json:"sensor_id"`
	GaugeFactor    string `json:"gauge_factor"`
	InitialReading string `json:"initial_reading"`
	Temperature    string `json:"temperature"`
	Remark         string `json:"remark"`
}

func parseRequired(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	number, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(number) || math.IsInf(number, 0) {
		return 0, false
	}
	return number, true
}

// Validate checks the fields in form order and reports the first problem.
func (form CalibrationForm) Validate() error {
	if strings.TrimSpace(form.SensorID) == "" {
		return fmt.Errorf("%w: please enter a sensor ID", ErrInvalidCalibration)
	}
	if _, ok := parseRequired(form.GaugeFactor); !ok {
		return fmt.Errorf("%w: please enter a valid gauge factor", ErrInvalidCalibration)
	}
	if _, ok := parseRequired(form.InitialReading); !ok {
		return fmt.Errorf("%w: please enter a valid initial reading", ErrInvalidCalibration)
	}
	if _, ok := parseRequired(form.Temperature); !ok {
		return fmt.Errorf("%w: please enter a valid temperature", ErrInvalidCalibration)
	}

	return nil
}

// Sensor validates the form and builds the sensor record calibrated at now.
// The temperature is checked but not stored.
func (form CalibrationForm) Sensor(now time.Time) (models.Sensor, error) {
	if err := form.Validate(); err != nil {
		return models.Sensor{}, err
	}

	gaugeFactor, _ := parseRequired(form.GaugeFactor)
	initialReading, _ := parseRequired(form.InitialReading)

	return models.Sensor{
		SensorID:             strings.TrimSpace(form.SensorID),
		GaugeFactor:          gaugeFactor,
		InitialReading:       initialReading,
		Remark:               strings.TrimSpace(form.Remark),
		CalibrationTimestamp: models.FormatTimestamp(now),
	}, nil
}

// DigitsPreview is the digits value of the initial reading, or 0 while it
// does not parse.
func (form CalibrationForm) DigitsPreview() float64 {
	initialReading, ok := parseRequired(form.InitialReading)
	if !ok {
		return 0
	}
	return calc.Digits(initialReading)
}
