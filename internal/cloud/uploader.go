// Package cloud pushes readings to the remote readings table.
package cloud

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gaurav-cyamsys/beaver-readout/internal/config"
	"github.com/gaurav-cyamsys/beaver-readout/internal/models"
)

// Row is one record of the remote readings table.
type Row struct {
	SensorID    string  `json:"sensor_id" gorm:"column:sensor_id"`
	DeviceID    *string `json:"device_id" gorm:"column:device_id"`
	Frequency   float64 `json:"frequency" gorm:"column:frequency"`
	Temperature float64 `json:"temperature" gorm:"column:temperature"`
	FinalLoad   float64 `json:"final_load" gorm:"column:final_load"`
	Digits      float64 `json:"digits" gorm:"column:digits"`
	Battery     float64 `json:"battery" gorm:"column:battery"`
	Timestamp   string  `json:"timestamp" gorm:"column:timestamp"`
}

// NewRow maps a stored reading to an upload row. An empty deviceID becomes
// null.
func NewRow(reading models.Reading, deviceID string) Row {
	row := Row{
		SensorID:    reading.SensorID,
		Frequency:   reading.Frequency,
		Temperature: reading.Temperature,
		FinalLoad:   reading.FinalLoad,
		Digits:      reading.Digits,
		Battery:     reading.Battery,
		Timestamp:   reading.Timestamp,
	}
	if deviceID != "" {
		row.DeviceID = &deviceID
	}

	return row
}

func NewRows(readings []models.Reading, deviceID string) []Row {
	rows := make([]Row, 0, len(readings))
	for _, reading := range readings {
		rows = append(rows, NewRow(reading, deviceID))
	}

	return rows
}

// Uploader inserts rows into the remote table. A single row is a single
// insert, several rows are one batch insert. Any error means nothing can be
// assumed to have been stored.
type Uploader interface {
	Insert(ctx context.Context, rows []Row) error
}

// NopUploader accepts and discards everything.
type NopUploader struct{}

func (NopUploader) Insert(context.Context, []Row) error {
	return nil
}

// New builds the uploader selected by settings.
func New(settings config.CloudSettings, logger *slog.Logger) (Uploader, error) {
	table := settings.Table
	if table == "" {
		table = config.DEFAULT_CLOUD_TABLE
	}

	switch settings.Driver {
	case config.CLOUD_DRIVER_REST:
		if settings.URL == "" {
			return nil, fmt.Errorf("cloud.url is required for the %s driver", settings.Driver)
		}
		return NewRESTUploader(settings.URL, settings.APIKey, table, logger), nil
	case config.CLOUD_DRIVER_POSTGRES:
		if settings.DSN == "" {
			return nil, fmt.Errorf("cloud.dsn is required for the %s driver", settings.Driver)
		}
		return OpenPostgresUploader(settings.DSN, table, logger)
	case config.CLOUD_DRIVER_NONE, "":
		return NopUploader{}, nil
	default:
		return nil, fmt.Errorf("unknown cloud driver %q", settings.Driver)
	}
}
