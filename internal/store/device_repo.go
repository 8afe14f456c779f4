package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// GormDeviceRepository is the gorm-backed DeviceRepository.
type GormDeviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository creates a gorm-backed device repository.
func NewDeviceRepository(db *gorm.DB) *GormDeviceRepository {
	return &GormDeviceRepository{db: db}
}

// Upsert creates the device or updates its mutable attributes, keyed by
// serial. The assign-or-create pattern keeps the write idempotent when the
// same broker message is delivered more than once.
func (r *GormDeviceRepository) Upsert(ctx context.Context, d *Device) error {
	result := r.db.WithContext(ctx).
		Where("serial = ?", d.Serial).
		Assign(map[string]interface{}{
			"name":        d.Name,
			"static_name": d.StaticName,
			"ward":        d.Ward,
			"hospital":    d.Hospital,
			"status":      d.Status,
			"seq":         d.Seq,
			"firmware":    d.Firmware,
			"remark":      d.Remark,
		}).
		FirstOrCreate(d)

	if result.Error != nil {
		return fmt.Errorf("failed to upsert device: %w", result.Error)
	}
	return nil
}

// SetOnline flips the online flag for a device by serial.
func (r *GormDeviceRepository) SetOnline(ctx context.Context, serial string, online bool) error {
	result := r.db.WithContext(ctx).
		Model(&Device{}).
		Where("serial = ?", serial).
		Update("online", online)

	if result.Error != nil {
		return fmt.Errorf("failed to update online status: %w", result.Error)
	}
	return nil
}

// Get returns a device by serial.
func (r *GormDeviceRepository) Get(ctx context.Context, serial string) (*Device, error) {
	var device Device
	if err := r.db.WithContext(ctx).First(&device, "serial = ?", serial).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch device: %w", err)
	}
	return &device, nil
}

// Update applies a partial update to a device by serial.
func (r *GormDeviceRepository) Update(ctx context.Context, serial string, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&Device{}).
		Where("serial = ?", serial).
		Updates(updates)

	if result.Error != nil {
		return fmt.Errorf("failed to update device: %w", result.Error)
	}
	return nil
}

// Delete removes a device by serial.
func (r *GormDeviceRepository) Delete(ctx context.Context, serial string) error {
	if err := r.db.WithContext(ctx).Delete(&Device{}, "serial = ?", serial).Error; err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	return nil
}

// WardDevices returns devices in a ward ordered by display sequence, each
// with its latest log and its notifications, newest first.
func (r *GormDeviceRepository) WardDevices(ctx context.Context, ward string) ([]Device, error) {
	var devices []Device
	err := r.db.WithContext(ctx).
		Where("ward = ?", ward).
		Preload("Logs", func(db *gorm.DB) *gorm.DB {
			return db.Order("send_time DESC").Limit(1)
		}).
		Preload("Notifications", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC")
		}).
		Order("seq ASC").
		Find(&devices).Error

	if err != nil {
		return nil, fmt.Errorf("failed to fetch ward devices: %w", err)
	}
	return devices, nil
}

// Ensure GormDeviceRepository implements DeviceRepository.
var _ DeviceRepository = (*GormDeviceRepository)(nil)
