package model

import "time"

// DeviceStatus is the local status enum derived from the provider's numeric
// status code.
type DeviceStatus string

const (
	StatusOnline  DeviceStatus = "ONLINE"
	StatusFault   DeviceStatus = "FAULT"
	StatusStandby DeviceStatus = "STANDBY"
	StatusOffline DeviceStatus = "OFFLINE"
	StatusUnknown DeviceStatus = "UNKNOWN"
)

// UserTelemetry is one replicated user-level snapshot per sync cycle.
// Append-only: cycles insert new rows, prior rows are never mutated.
type UserTelemetry struct {
	ID              int64  `gorm:"autoIncrement;primaryKey"`
	UserEmail       string `gorm:"size:256;not null;index"`
	MemberID        string `gorm:"size:128;not null"`
	Sign            string `gorm:"size:256;not null"` // provider checksum, kept verbatim
	StateCounts     string `gorm:"size:256"`
	CurrentPower    float64
	TodayGeneration float64
	TotalGeneration float64
	RatedCapacity   *float64
	ProviderTime    *time.Time
	CreatedAt       time.Time `gorm:"not null;index"`
}

// DeviceTelemetry is one replicated device-level snapshot per sync cycle.
// Append-only like UserTelemetry.
type DeviceTelemetry struct {
	ID              int64        `gorm:"autoIncrement;primaryKey"`
	DeviceSN        string       `gorm:"column:device_sn;size:64;not null;index"`
	GoodsID         string       `gorm:"size:64;not null"`
	Status          DeviceStatus `gorm:"size:16;not null"`
	CurrentPower    float64
	TodayGeneration float64
	TotalGeneration float64
	GenerationHours float64
	ProviderTime    time.Time `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null;index"`
}
