package models

import "time"

// Sensor is the calibration record of one vibrating-wire gauge. SensorID is
// chosen by the technician and unique within the local list.
type Sensor struct {
	SensorID             string  `json:"sensor_id"`
	GaugeFactor          float64 `json:"gauge_factor"`
	InitialReading       float64 `json:"initial_reading"`
	Remark               string  `json:"remark"`
	CalibrationTimestamp string  `json:"calibration_timestamp"`
}

func (sensor Sensor) CalibratedAt() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, sensor.CalibrationTimestamp)
}
