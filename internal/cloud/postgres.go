package cloud

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const INSERT_BATCH_SIZE = 100

// PostgresUploader writes rows straight into a Postgres table.
type PostgresUploader struct {
	db     *gorm.DB
	table  string
	logger *slog.Logger
}

func OpenPostgresUploader(dsn, table string, logger *slog.Logger) (*PostgresUploader, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cloud database: %w", err)
	}

	return NewPostgresUploader(db, table, logger), nil
}

// NewPostgresUploader uses an already opened database handle.
func NewPostgresUploader(db *gorm.DB, table string, logger *slog.Logger) *PostgresUploader {
	return &PostgresUploader{db: db, table: table, logger: logger}
}

func gormLogger() logger.Interface {
	return logger.Default.LogMode(logger.Silent)
}

func (uploader *PostgresUploader) Insert(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	if uploader.logger != nil {
		uploader.logger.Debug("Inserting rows", "table", uploader.table, "rows", len(rows))
	}

	if err := uploader.db.WithContext(ctx).Table(uploader.table).CreateInBatches(rows, INSERT_BATCH_SIZE).Error; err != nil {
		return fmt.Errorf("failed to insert rows: %w", err)
	}

	return nil
}

func (uploader *PostgresUploader) Close() error {
	sqlDB, err := uploader.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
