package storage

import (
	"context"
	"fmt"

	"github.com/gaurav-cyamsys/beaver-readout/internal/models"
	"gorm.io/gorm"
)

const DEFAULT_HISTORY_LIMIT = 50

// History is the append-only local record of every reading taken.
type History struct {
	db *gorm.DB
}

func NewHistory(db *gorm.DB) *History {
	return &History{db: db}
}

func (history *History) Append(ctx context.Context, reading models.Reading) error {
	record := models.NewReadingRecord(reading)
	if err := history.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to record reading: %w", err)
	}

	return nil
}

// Recent returns up to limit readings, newest first. An empty sensorID
// matches every sensor.
func (history *History) Recent(ctx context.Context, sensorID string, limit int) ([]models.Reading, error) {
	if limit <= 0 {
		limit = DEFAULT_HISTORY_LIMIT
	}

	query := history.db.WithContext(ctx).Model(&models.ReadingRecord{})
	if sensorID != "" {
		query = query.Where("sensor_id = ?", sensorID)
	}

	var records []models.ReadingRecord
	if err := query.Order("timestamp desc, id desc").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	readings := make([]models.Reading, 0, len(records))
	for _, record := range records {
		readings = append(readings, record.Reading())
	}

	return readings, nil
}

func (history *History) Count(ctx context.Context, sensorID string) (int64, error) {
	query := history.db.WithContext(ctx).Model(&models.ReadingRecord{})
	if sensorID != "" {
		query = query.Where("sensor_id = ?", sensorID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}

	return count, nil
}

// Clear soft-deletes every history row.
func (history *History) Clear(ctx context.Context) error {
	if err := history.db.WithContext(ctx).Where("1 = 1").Delete(&models.ReadingRecord{}).Error; err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}

	return nil
}
