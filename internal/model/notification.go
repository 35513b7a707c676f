package model

import "time"

// Notification is the audit record of an alarm push. The (device_sn, alarm_at)
// pair identifies the alarm instance and gates repeat notifications.
type Notification struct {
	ID        int64  `gorm:"autoIncrement;primaryKey"`
	UserID    int64  `gorm:"index;not null"`
	DeviceSN  string `gorm:"column:device_sn;size:64;index;not null"`
	Title     string `gorm:"size:256;not null"`
	Body      string `gorm:"not null"`
	AlarmAt   time.Time
	CreatedAt time.Time `gorm:"not null"`
}
