package model

import "time"

// Plant represents a solar installation owned by a customer and managed by an
// installer. AutoID correlates the plant with the provider cloud's own group id.
type Plant struct {
	ID          int64  `gorm:"primaryKey"`
	Name        string `gorm:"size:256;not null"`
	AutoID      string `gorm:"column:auto_id;size:64;index"`
	CustomerID  int64  `gorm:"index;not null"`
	InstallerID int64  `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Associations
	Customer  User     `gorm:"foreignKey:CustomerID"`
	Installer User     `gorm:"foreignKey:InstallerID"`
	Devices   []Device `gorm:"foreignKey:PlantID"`
}
