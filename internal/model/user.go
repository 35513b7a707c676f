package model

import "time"

// UserRole identifies what a user can do in the fleet.
type UserRole string

const (
	RoleCustomer  UserRole = "CUSTOMER"
	RoleInstaller UserRole = "INSTALLER"
	RoleAdmin     UserRole = "ADMIN"
)

// User represents a registered account: a plant customer, an installer, or an admin.
type User struct {
	ID            int64    `gorm:"primaryKey"`
	Name          string   `gorm:"size:128;not null"`
	Email         string   `gorm:"uniqueIndex;size:256;not null"`
	Role          UserRole `gorm:"size:32;not null"`
	NotifyEnabled bool     `gorm:"not null;default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
