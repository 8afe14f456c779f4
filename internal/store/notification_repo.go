package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"smtrack.dev/telemetry-hub/pkg/scope"
)

// GormNotificationRepository is the gorm-backed NotificationRepository.
type GormNotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a gorm-backed notification repository.
func NewNotificationRepository(db *gorm.DB) *GormNotificationRepository {
	return &GormNotificationRepository{db: db}
}

// Upsert stores a notification keyed by ID.
func (r *GormNotificationRepository) Upsert(ctx context.Context, n *Notification) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(n).Error

	if err != nil {
		return fmt.Errorf("failed to upsert notification: %w", err)
	}
	return nil
}

// scoped applies the visibility predicate of sc to a query joined against
// the devices table. The same predicate shape backs every scoped read so the
// list, count and mobile paths cannot diverge.
func scoped(tx *gorm.DB, sc scope.Scope) *gorm.DB {
	switch sc.Kind {
	case scope.KindWard:
		return tx.Where("devices.ward = ?", sc.Ward)
	case scope.KindHospital:
		return tx.Where("devices.hospital = ?", sc.Hospital)
	default:
		return tx.Where("devices.hospital <> ?", scope.DevelopmentHospital)
	}
}

func (r *GormNotificationRepository) joined(ctx context.Context, sc scope.Scope) *gorm.DB {
	tx := r.db.WithContext(ctx).
		Table("notifications").
		Select("notifications.*, devices.name AS device_name, devices.ward AS device_ward, devices.hospital AS device_hospital").
		Joins("JOIN devices ON devices.serial = notifications.serial")
	return scoped(tx, sc)
}

// List returns notifications visible to the scope, joined with their device,
// newest first.
func (r *GormNotificationRepository) List(ctx context.Context, sc scope.Scope, contains string, page, perPage int) ([]NotificationWithDevice, error) {
	tx := r.joined(ctx, sc)

	if contains != "" {
		tx = tx.Where("notifications.message LIKE ?", "%"+contains+"%")
	}

	var rows []NotificationWithDevice
	err := tx.
		Order("notifications.created_at DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Scan(&rows).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return rows, nil
}

// AllScoped returns every notification visible to the scope, newest first.
func (r *GormNotificationRepository) AllScoped(ctx context.Context, sc scope.Scope, limit int) ([]NotificationWithDevice, error) {
	tx := r.joined(ctx, sc).Order("notifications.created_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var rows []NotificationWithDevice
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch scoped notifications: %w", err)
	}
	return rows, nil
}

// BySerial returns notifications for one device, newest first.
func (r *GormNotificationRepository) BySerial(ctx context.Context, serial string) ([]Notification, error) {
	var rows []Notification
	err := r.db.WithContext(ctx).
		Where("serial = ?", serial).
		Order("created_at DESC").
		Find(&rows).Error

	if err != nil {
		return nil, fmt.Errorf("failed to fetch device notifications: %w", err)
	}
	return rows, nil
}

// Update applies a partial update to a notification by ID.
func (r *GormNotificationRepository) Update(ctx context.Context, id string, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("id = ?", id).
		Updates(updates)

	if result.Error != nil {
		return fmt.Errorf("failed to update notification: %w", result.Error)
	}
	return nil
}

// Delete removes a notification by ID.
func (r *GormNotificationRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&Notification{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	return nil
}

// DeleteBefore removes notifications created before the cutoff.
func (r *GormNotificationRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&Notification{})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old notifications: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Ensure GormNotificationRepository implements NotificationRepository.
var _ NotificationRepository = (*GormNotificationRepository)(nil)
