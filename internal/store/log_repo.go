package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLogRepository is the gorm-backed LogRepository.
type GormLogRepository struct {
	db *gorm.DB
}

// NewLogRepository creates a gorm-backed log repository.
func NewLogRepository(db *gorm.DB) *GormLogRepository {
	return &GormLogRepository{db: db}
}

// Upsert stores a log keyed by its client-supplied ID. A duplicate delivery
// carries the same ID and resolves to a no-op update of identical values.
func (r *GormLogRepository) Upsert(ctx context.Context, l *DeviceLog) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(l).Error

	if err != nil {
		return fmt.Errorf("failed to upsert device log: %w", err)
	}
	return nil
}

// BySerial returns all logs for a device, newest first.
func (r *GormLogRepository) BySerial(ctx context.Context, serial string) ([]DeviceLog, error) {
	var logs []DeviceLog
	err := r.db.WithContext(ctx).
		Where("serial = ?", serial).
		Order("send_time DESC").
		Find(&logs).Error

	if err != nil {
		return nil, fmt.Errorf("failed to fetch device logs: %w", err)
	}
	return logs, nil
}

// Update applies a partial update to a log by ID.
func (r *GormLogRepository) Update(ctx context.Context, id string, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&DeviceLog{}).
		Where("id = ?", id).
		Updates(updates)

	if result.Error != nil {
		return fmt.Errorf("failed to update device log: %w", result.Error)
	}
	return nil
}

// Delete removes a log by ID.
func (r *GormLogRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&DeviceLog{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete device log: %w", err)
	}
	return nil
}

// DeleteBefore removes logs sent before the cutoff.
func (r *GormLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("send_time < ?", cutoff).
		Delete(&DeviceLog{})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old device logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Ensure GormLogRepository implements LogRepository.
var _ LogRepository = (*GormLogRepository)(nil)
