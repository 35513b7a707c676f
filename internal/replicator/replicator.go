package replicator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"solar-fleet-backend/config"
	"solar-fleet-backend/internal/cloud"
	"solar-fleet-backend/internal/model"
	"solar-fleet-backend/internal/notification"
	"solar-fleet-backend/internal/parse"
	"solar-fleet-backend/internal/store"
)

// Service runs the scheduled replication jobs: user-telemetry sync,
// device-telemetry sync, and alarm polling. Each job fires on its own cadence
// and reconciles provider data against the local registry.
type Service struct {
	cfg    *config.Config
	store  store.Store
	client cloud.TelemetryClient
	pool   *notification.WorkerPool
	loc    *time.Location

	userSyncBusy   atomic.Bool
	deviceSyncBusy atomic.Bool
	alarmPollBusy  atomic.Bool
}

// NewService creates and initializes a new replication service.
func NewService(cfg *config.Config, s store.Store, client cloud.TelemetryClient, pool *notification.WorkerPool) *Service {
	loc, err := time.LoadLocation(cfg.Provider.Timezone)
	if err != nil {
		log.Printf("Warning: invalid provider timezone %q: %v. Falling back to UTC.", cfg.Provider.Timezone, err)
		loc = time.UTC
	}

	return &Service{
		cfg:    cfg,
		store:  s,
		client: client,
		pool:   pool,
		loc:    loc,
	}
}

// Run starts the three job loops and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Sync.Enabled {
		log.Println("Replication is disabled. Not starting.")
		return
	}
	log.Println("Starting replication service...")

	s.pool.Start(ctx)

	go s.runJob(ctx, "user-telemetry", s.cfg.Sync.UserSyncInterval, &s.userSyncBusy, func(ctx context.Context) {
		s.SyncUsersOnce(ctx)
	})
	go s.runJob(ctx, "device-telemetry", s.cfg.Sync.DeviceSyncInterval, &s.deviceSyncBusy, func(ctx context.Context) {
		s.SyncDevicesOnce(ctx)
	})
	go s.runJob(ctx, "alarm-poll", s.cfg.Sync.AlarmPollInterval, &s.alarmPollBusy, func(ctx context.Context) {
		s.PollAlarmsOnce(ctx)
	})

	<-ctx.Done()
	log.Println("Replication service shutting down.")
}

// runJob fires fn immediately and then on every tick. A firing that arrives
// while the previous one is still running is skipped, and a panicking cycle is
// logged without taking the scheduler down.
func (s *Service) runJob(ctx context.Context, name string, interval time.Duration, busy *atomic.Bool, fn func(context.Context)) {
	run := func() {
		if !busy.CompareAndSwap(false, true) {
			log.Printf("Job %s is still running; skipping this firing", name)
			return
		}
		defer busy.Store(false)
		defer func() {
			if r := recover(); r != nil {
				log.Printf("Job %s panicked: %v", name, r)
			}
		}()
		fn(ctx)
	}

	go run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Job %s shutting down.", name)
			return
		case <-ticker.C:
			go run()
		}
	}
}

// SyncUsersOnce replicates the bulk end-user summary pull into user telemetry
// rows. Returns the success and failure tallies of the cycle.
func (s *Service) SyncUsersOnce(ctx context.Context) (synced, failed int) {
	log.Println("Executing user-telemetry sync cycle...")

	items, err := s.client.EndUserSummary(ctx)
	if err != nil {
		log.Printf("Error pulling end-user summary: %v. Cycle aborted.", err)
		return 0, 0
	}
	if len(items) == 0 {
		log.Println("User-telemetry sync: no data available this cycle.")
		return 0, 0
	}

	var (
		okCount   atomic.Int64
		failCount atomic.Int64
		skipCount atomic.Int64
		wg        sync.WaitGroup
	)

	for _, item := range items {
		wg.Add(1)
		go func(item cloud.SummaryItem) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					failCount.Add(1)
					log.Printf("Panic replicating summary for member %q: %v", item.MemberID, r)
				}
			}()

			// Items carrying neither a member id nor a signature are noise
			// from the provider, not failures.
			if item.MemberID == "" && item.Sign == "" {
				skipCount.Add(1)
				return
			}

			if err := s.replicateSummaryItem(ctx, item); err != nil {
				failCount.Add(1)
				log.Printf("Error replicating summary for member %q: %v", item.MemberID, err)
				return
			}
			okCount.Add(1)
		}(item)
	}
	wg.Wait()

	synced, failed = int(okCount.Load()), int(failCount.Load())
	log.Printf("User-telemetry sync finished: %d synced, %d failed, %d skipped of %d items.",
		synced, failed, int(skipCount.Load()), len(items))
	return synced, failed
}

// replicateSummaryItem resolves one summary record to a local user and
// appends its normalized snapshot.
func (s *Service) replicateSummaryItem(ctx context.Context, item cloud.SummaryItem) error {
	user, err := s.store.ResolveUserByEmail(ctx, item.MemberID)
	if err != nil {
		return fmt.Errorf("no local user for member id %q: %w", item.MemberID, err)
	}

	row := &model.UserTelemetry{
		UserEmail:       user.Email,
		MemberID:        item.MemberID,
		Sign:            item.Sign,
		StateCounts:     parse.EncodeCounts(parse.StateCounts(item.MemberStateCount)),
		CurrentPower:    parse.Float(item.CurrentPac),
		TodayGeneration: parse.Float(item.EToday),
		TotalGeneration: parse.Float(item.ETotal),
		RatedCapacity:   parse.FloatPtr(item.Kwp),
		ProviderTime:    parse.Timestamp(item.CreateTime, s.loc),
	}
	return s.store.InsertUserTelemetry(ctx, row)
}

// SyncDevicesOnce replicates per-device detail for every registered device.
// Returns the success and failure tallies of the cycle.
func (s *Service) SyncDevicesOnce(ctx context.Context) (synced, failed int) {
	log.Println("Executing device-telemetry sync cycle...")

	devices, err := s.store.ListDevices(ctx)
	if err != nil {
		log.Printf("Error listing devices: %v. Cycle aborted.", err)
		return 0, 0
	}
	if len(devices) == 0 {
		log.Println("Device-telemetry sync: no registered devices.")
		return 0, 0
	}

	var (
		okCount   atomic.Int64
		failCount atomic.Int64
		skipCount atomic.Int64
		wg        sync.WaitGroup
	)

	for _, device := range devices {
		wg.Add(1)
		go func(device model.Device) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					failCount.Add(1)
					log.Printf("Panic replicating device %q: %v", device.SN, r)
				}
			}()

			// Guard against malformed registry rows.
			if device.SN == "" || device.Customer.Email == "" {
				skipCount.Add(1)
				log.Printf("Skipping device %d: missing serial or customer email", device.ID)
				return
			}

			wrote, err := s.replicateDevice(ctx, device)
			if err != nil {
				failCount.Add(1)
				log.Printf("Error replicating device %q: %v", device.SN, err)
				return
			}
			if !wrote {
				skipCount.Add(1)
				return
			}
			okCount.Add(1)
		}(device)
	}
	wg.Wait()

	synced, failed = int(okCount.Load()), int(failCount.Load())
	log.Printf("Device-telemetry sync finished: %d synced, %d failed, %d skipped of %d devices.",
		synced, failed, int(skipCount.Load()), len(devices))
	return synced, failed
}

// replicateDevice pulls one device's detail and appends its normalized
// snapshot. Returns false when the provider had no data for the device.
func (s *Service) replicateDevice(ctx context.Context, device model.Device) (bool, error) {
	detail, err := s.client.DeviceBySN(ctx, device.SN, device.Customer.Email)
	if err != nil {
		return false, fmt.Errorf("detail pull failed: %w", err)
	}
	if detail == nil || detail.GoodsID == "" {
		// The provider has nothing for this serial yet. Not an error.
		log.Printf("No provider data for device %q this cycle.", device.SN)
		return false, nil
	}

	now := time.Now().UTC()
	providerTime := now
	if ts := parse.Timestamp(detail.DataTime, s.loc); ts != nil {
		providerTime = *ts
	}

	row := &model.DeviceTelemetry{
		DeviceSN:        device.SN,
		GoodsID:         detail.GoodsID,
		Status:          MapStatus(int(parse.Float(detail.Light))),
		CurrentPower:    parse.Float(detail.CurrPac),
		TodayGeneration: parse.Float(detail.EToday),
		TotalGeneration: parse.Float(detail.ETotal),
		GenerationHours: parse.Float(detail.Htotal),
		ProviderTime:    providerTime,
	}
	if err := s.store.InsertDeviceTelemetry(ctx, row); err != nil {
		return false, err
	}
	return true, nil
}

// MapStatus maps the provider's numeric status code to the local enum.
func MapStatus(code int) model.DeviceStatus {
	switch code {
	case 1:
		return model.StatusOnline
	case 2:
		return model.StatusFault
	case 3:
		return model.StatusStandby
	case 4:
		return model.StatusOffline
	default:
		return model.StatusUnknown
	}
}

// PollAlarmsOnce checks every device for fresh alarms and dispatches push
// notifications to the affected customer and installer. Returns the number of
// alarms that triggered a notification and the failure tally.
func (s *Service) PollAlarmsOnce(ctx context.Context) (notified, failed int) {
	log.Println("Executing alarm poll cycle...")

	devices, err := s.store.ListDevicesWithInstaller(ctx)
	if err != nil {
		log.Printf("Error listing devices for alarm poll: %v. Cycle aborted.", err)
		return 0, 0
	}
	if len(devices) == 0 {
		return 0, 0
	}

	var (
		notifyCount atomic.Int64
		failCount   atomic.Int64
		wg          sync.WaitGroup
	)

	for _, device := range devices {
		wg.Add(1)
		go func(device model.Device) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					failCount.Add(1)
					log.Printf("Panic polling alarms for device %q: %v", device.SN, r)
				}
			}()

			if device.SN == "" {
				return
			}

			n, err := s.pollDeviceAlarms(ctx, device)
			if err != nil {
				failCount.Add(1)
				log.Printf("Error polling alarms for device %q: %v", device.SN, err)
				return
			}
			notifyCount.Add(int64(n))
		}(device)
	}
	wg.Wait()

	notified, failed = int(notifyCount.Load()), int(failCount.Load())
	log.Printf("Alarm poll finished: %d notifications dispatched, %d failures of %d devices.",
		notified, failed, len(devices))
	return notified, failed
}

// pollDeviceAlarms pulls one device's alarm report and dispatches pushes for
// every fresh, not-yet-notified alarm instance.
func (s *Service) pollDeviceAlarms(ctx context.Context, device model.Device) (int, error) {
	report, err := s.client.DeviceAlarms(ctx, device.Plant.AutoID, device.SN)
	if err != nil {
		return 0, fmt.Errorf("alarm pull failed: %w", err)
	}
	if report == nil || report.ErrorCount == 0 || len(report.Errors) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	notified := 0
	for _, alarm := range report.Errors {
		elapsed := time.Duration(parse.Float(alarm.ElapsedSeconds)) * time.Second
		if elapsed <= 0 || elapsed > s.cfg.Sync.AlarmMaxAge {
			continue
		}

		// The alarm instance key is (serial, start time). The start time is
		// truncated to the minute so successive polls of the same alarm
		// resolve to the same key.
		alarmAt := now.Add(-elapsed).Truncate(time.Minute)

		exists, err := s.store.HasAlarmNotification(ctx, device.SN, alarmAt)
		if err != nil {
			return notified, fmt.Errorf("dedup check failed: %w", err)
		}
		if exists {
			continue
		}

		title := fmt.Sprintf("Device fault on %s", device.SN)
		body := alarm.Message
		if body == "" {
			body = fmt.Sprintf("Error code %s reported by device %s", alarm.Code, device.SN)
		}

		if device.Customer.NotifyEnabled {
			s.pool.Dispatch(notification.Job{
				UserID:   device.CustomerID,
				Title:    title,
				Body:     body,
				DeviceSN: device.SN,
				AlarmAt:  alarmAt,
			})
		}
		installer := device.Plant.Installer
		if installer.ID != 0 && installer.ID != device.CustomerID && installer.NotifyEnabled {
			s.pool.Dispatch(notification.Job{
				UserID:   installer.ID,
				Title:    title,
				Body:     body,
				DeviceSN: device.SN,
				AlarmAt:  alarmAt,
			})
		}
		notified++
	}
	return notified, nil
}
