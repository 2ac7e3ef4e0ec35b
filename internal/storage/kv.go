package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gaurav-cyamsys/beaver-readout/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KV is a string key/value store. Missing keys are reported through found,
// not as an error.
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// GormKV keeps entries in the kv_entries table.
type GormKV struct {
	db *gorm.DB
}

func NewGormKV(db *gorm.DB) *GormKV {
	return &GormKV{db: db}
}

func (kv *GormKV) Get(ctx context.Context, key string) (string, bool, error) {
	var entry models.KVEntry
	err := kv.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	return entry.Value, true, nil
}

func (kv *GormKV) Set(ctx context.Context, key, value string) error {
	entry := models.KVEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	err := kv.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	return nil
}

func (kv *GormKV) Delete(ctx context.Context, key string) error {
	if err := kv.db.WithContext(ctx).Where("key = ?", key).Delete(&models.KVEntry{}).Error; err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	return nil
}

func (kv *GormKV) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := kv.db.WithContext(ctx).Model(&models.KVEntry{}).Order("key").Pluck("key", &keys).Error; err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	return keys, nil
}

// MemoryKV is a process-local KV.
type MemoryKV struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string]string)}
}

func (kv *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	value, found := kv.entries[key]
	return value, found, nil
}

func (kv *MemoryKV) Set(_ context.Context, key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.entries[key] = value
	return nil
}

func (kv *MemoryKV) Delete(_ context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.entries, key)
	return nil
}

func (kv *MemoryKV) Keys(_ context.Context) ([]string, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	keys := make([]string, 0, len(kv.entries))
	for key := range kv.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
