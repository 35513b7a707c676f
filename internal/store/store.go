package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"solar-fleet-backend/internal/model"
)

var (
	// ErrPlantNotFound is returned when a device registration names a plant
	// that does not exist.
	ErrPlantNotFound = errors.New("plant not found")
	// ErrDeviceExists is returned when a device registration reuses a serial.
	ErrDeviceExists = errors.New("device serial already registered")
)

// Store defines the interface for all database operations the replication
// jobs and API handlers depend on.
type Store interface {
	ResolveUserByEmail(ctx context.Context, email string) (*model.User, error)
	ListDevices(ctx context.Context) ([]model.Device, error)
	ListDevicesWithInstaller(ctx context.Context) ([]model.Device, error)
	InsertUserTelemetry(ctx context.Context, row *model.UserTelemetry) error
	InsertDeviceTelemetry(ctx context.Context, row *model.DeviceTelemetry) error
	HasAlarmNotification(ctx context.Context, sn string, alarmAt time.Time) (bool, error)
	CreateNotification(ctx context.Context, n *model.Notification) error
	RegisterDevice(ctx context.Context, d *model.Device) error
	SubscriptionsForUser(ctx context.Context, userID int64) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SetNotifyEnabled(ctx context.Context, userID int64, enabled bool) error
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// ResolveUserByEmail looks up a user by exact email match. A missing user is
// reported through gorm.ErrRecordNotFound so callers can treat it as a skip.
func (s *gormStore) ResolveUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListDevices returns every registered device with its owning customer.
func (s *gormStore) ListDevices(ctx context.Context) ([]model.Device, error) {
	var devices []model.Device
	if err := s.db.WithContext(ctx).Preload("Customer").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// ListDevicesWithInstaller returns every device with its plant, the plant's
// installer, and the owning customer, for alarm routing.
func (s *gormStore) ListDevicesWithInstaller(ctx context.Context) ([]model.Device, error) {
	var devices []model.Device
	if err := s.db.WithContext(ctx).
		Preload("Customer").
		Preload("Plant").
		Preload("Plant.Installer").
		Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices with installers: %w", err)
	}
	return devices, nil
}

// InsertUserTelemetry appends one user-level snapshot row.
func (s *gormStore) InsertUserTelemetry(ctx context.Context, row *model.UserTelemetry) error {
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to insert user telemetry for %s: %w", row.UserEmail, err)
	}
	return nil
}

// InsertDeviceTelemetry appends one device-level snapshot row.
func (s *gormStore) InsertDeviceTelemetry(ctx context.Context, row *model.DeviceTelemetry) error {
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to insert device telemetry for %s: %w", row.DeviceSN, err)
	}
	return nil
}

// HasAlarmNotification reports whether a notification has already been
// recorded for the alarm instance identified by (sn, alarmAt).
func (s *gormStore) HasAlarmNotification(ctx context.Context, sn string, alarmAt time.Time) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("device_sn = ? AND alarm_at = ?", sn, alarmAt).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check alarm notification for %s: %w", sn, err)
	}
	return count > 0, nil
}

// CreateNotification persists one notification audit row.
func (s *gormStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification for user %d: %w", n.UserID, err)
	}
	return nil
}

// RegisterDevice creates a device after checking that its plant exists and
// its serial is unused. Replication never calls this; devices only enter the
// registry through explicit registration.
func (s *gormStore) RegisterDevice(ctx context.Context, d *model.Device) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var plantCount int64
		if err := tx.Model(&model.Plant{}).Where("id = ?", d.PlantID).Count(&plantCount).Error; err != nil {
			return fmt.Errorf("failed to check plant %d: %w", d.PlantID, err)
		}
		if plantCount == 0 {
			return ErrPlantNotFound
		}

		var snCount int64
		if err := tx.Model(&model.Device{}).Where("sn = ?", d.SN).Count(&snCount).Error; err != nil {
			return fmt.Errorf("failed to check serial %s: %w", d.SN, err)
		}
		if snCount > 0 {
			return ErrDeviceExists
		}

		return tx.Create(d).Error
	})
}

// SubscriptionsForUser returns the push subscriptions registered by a user.
func (s *gormStore) SubscriptionsForUser(ctx context.Context, userID int64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions for user %d: %w", userID, err)
	}
	return subs, nil
}

// DeleteSubscription removes a push subscription by endpoint.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error
}

// SetNotifyEnabled updates a user's notification preference.
func (s *gormStore) SetNotifyEnabled(ctx context.Context, userID int64, enabled bool) error {
	result := s.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Update("notify_enabled", enabled)
	if result.Error != nil {
		return fmt.Errorf("failed to update notify preference for user %d: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
