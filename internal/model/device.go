package model

import "time"

// DeviceType is fixed at registration time.
type DeviceType string

const (
	DeviceTypeInverter DeviceType = "INVERTER"
	DeviceTypeBattery  DeviceType = "BATTERY"
)

// Device represents a piece of hardware registered against a plant. Devices
// are created only through explicit registration; replication never creates
// them.
type Device struct {
	ID         int64      `gorm:"primaryKey"`
	SN         string     `gorm:"column:sn;uniqueIndex;size:64;not null"`
	DeviceType DeviceType `gorm:"size:32;not null"`
	PlantID    int64      `gorm:"index;not null"`
	CustomerID int64      `gorm:"index;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Associations
	Plant    Plant `gorm:"constraint:OnDelete:CASCADE"`
	Customer User  `gorm:"foreignKey:CustomerID"`
}
