package models

import (
	"time"

	"gorm.io/gorm"
)

// TimestampFormat is the ISO-8601 layout used for reading timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Reading is one stored sample with the values derived from the sensor that
// was selected when it arrived.
type Reading struct {
	SensorID    string  `json:"sensor_id"`
	Frequency   float64 `json:"frequency"`
	Temperature float64 `json:"temperature"`
	FinalLoad   float64 `json:"final_load"`
	Digits      float64 `json:"digits"`
	Battery     float64 `json:"battery"`
	Timestamp   string  `json:"timestamp"`
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// ReadingRecord is the permanent local history of readings. Uploading never
// removes rows from it.
type ReadingRecord struct {
	gorm.Model
	SensorID    string    `gorm:"index"`
	Frequency   float64
	Temperature float64
	FinalLoad   float64
	Digits      float64
	Battery     float64
	Timestamp   time.Time `gorm:"index"`
}

func (ReadingRecord) TableName() string {
	return "readings"
}

func NewReadingRecord(reading Reading) ReadingRecord {
	timestamp, err := time.Parse(time.RFC3339Nano, reading.Timestamp)
	if err != nil {
		timestamp = time.Now().UTC()
	}

	return ReadingRecord{
		SensorID:    reading.SensorID,
		Frequency:   reading.Frequency,
		Temperature: reading.Temperature,
		FinalLoad:   reading.FinalLoad,
		Digits:      reading.Digits,
		Battery:     reading.Battery,
		Timestamp:   timestamp,
	}
}

func (record ReadingRecord) Reading() Reading {
	return Reading{
		SensorID:    record.SensorID,
		Frequency:   record.Frequency,
		Temperature: record.Temperature,
		FinalLoad:   record.FinalLoad,
		Digits:      record.Digits,
		Battery:     record.Battery,
		Timestamp:   FormatTimestamp(record.Timestamp),
	}
}
