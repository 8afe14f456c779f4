// Package store provides the PostgreSQL persistence layer for devices,
// device logs and notifications.
package store

import (
	"time"
)

// Device represents a deployed sensor unit.
type Device struct {
	Serial     string    `gorm:"primaryKey;size:100" json:"serial"`
	Name       string    `gorm:"size:50" json:"name"`
	StaticName string    `gorm:"size:100" json:"staticName"`
	Ward       string    `gorm:"size:100;index" json:"ward"`
	Hospital   string    `gorm:"size:100;index" json:"hospital"`
	Status     bool      `json:"status"`
	Online     bool      `json:"online"`
	Seq        int       `json:"seq"`
	Firmware   string    `gorm:"size:10" json:"firmware"`
	Remark     string    `gorm:"size:255" json:"remark"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createAt"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updateAt"`

	Logs          []DeviceLog    `gorm:"foreignKey:Serial;references:Serial" json:"-"`
	Notifications []Notification `gorm:"foreignKey:Serial;references:Serial" json:"-"`
}

// TableName specifies the table name for the Device model.
func (Device) TableName() string {
	return "devices"
}

// DeviceLog is a single telemetry report persisted for a device. The ID is
// supplied by the device client, which makes the consumer's upsert idempotent
// against duplicate broker delivery.
type DeviceLog struct {
	ID              string    `gorm:"primaryKey;size:100" json:"id"`
	Serial          string    `gorm:"size:100;index:idx_log_serial_sendtime" json:"serial"`
	Temp            float64   `json:"temp"`
	TempDisplay     float64   `json:"tempDisplay"`
	Humidity        float64   `json:"humidity"`
	HumidityDisplay float64   `json:"humidityDisplay"`
	SendTime        time.Time `gorm:"index:idx_log_serial_sendtime;index" json:"sendTime"`
	Plug            bool      `json:"plug"`
	Door1           bool      `json:"door1"`
	Door2           bool      `json:"door2"`
	Door3           bool      `json:"door3"`
	Internet        bool      `json:"internet"`
	Probe           string    `gorm:"size:2" json:"probe"`
	Battery         float64   `json:"battery"`
	TempInternal    float64   `json:"tempInternal"`
	ExtMemory       bool      `json:"extMemory"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"createAt"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updateAt"`
}

// TableName specifies the table name for the DeviceLog model.
func (DeviceLog) TableName() string {
	return "device_logs"
}

// Notification is a classified device event. Message holds the raw event
// code; Detail is derived from it deterministically by the classifier.
type Notification struct {
	ID        string    `gorm:"primaryKey;size:100" json:"id"`
	Serial    string    `gorm:"size:100;index" json:"serial"`
	Message   string    `gorm:"size:100" json:"message"`
	Detail    string    `gorm:"size:255" json:"detail"`
	Status    bool      `json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updateAt"`
}

// TableName specifies the table name for the Notification model.
func (Notification) TableName() string {
	return "notifications"
}

// DeviceRef is the subset of device attributes attached to scoped
// notification reads.
type DeviceRef struct {
	Name     string `json:"name"`
	Ward     string `json:"ward"`
	Hospital string `json:"hospital"`
}

// NotificationWithDevice is a notification joined with its owning device.
type NotificationWithDevice struct {
	Notification
	Device DeviceRef `gorm:"embedded;embeddedPrefix:device_" json:"device"`
}
