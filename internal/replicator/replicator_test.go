package replicator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"solar-fleet-backend/config"
	"solar-fleet-backend/internal/cloud"
	"solar-fleet-backend/internal/model"
	"solar-fleet-backend/internal/notification"
	"solar-fleet-backend/internal/store"
)

// mockClient is a mock implementation of the cloud.TelemetryClient interface.
type mockClient struct {
	EndUserSummaryFunc func(ctx context.Context) ([]cloud.SummaryItem, error)
	DeviceBySNFunc     func(ctx context.Context, sn, email string) (*cloud.DeviceDetail, error)
	DeviceAlarmsFunc   func(ctx context.Context, autoID, sn string) (*cloud.AlarmReport, error)
}

func (m *mockClient) EndUserSummary(ctx context.Context) ([]cloud.SummaryItem, error) {
	return m.EndUserSummaryFunc(ctx)
}

func (m *mockClient) DeviceBySN(ctx context.Context, sn, email string) (*cloud.DeviceDetail, error) {
	return m.DeviceBySNFunc(ctx, sn, email)
}

func (m *mockClient) DeviceAlarms(ctx context.Context, autoID, sn string) (*cloud.AlarmReport, error) {
	return m.DeviceAlarmsFunc(ctx, autoID, sn)
}

// mockStore is an in-memory implementation of the store.Store interface that
// records every inserted row.
type mockStore struct {
	mu              sync.Mutex
	users           map[string]*model.User
	devices         []model.Device
	userRows        []model.UserTelemetry
	deviceRows      []model.DeviceTelemetry
	notifications   []model.Notification
	hasNotification bool
	insertDeviceErr error
	insertUserErr   error
	listDevicesErr  error
}

func newMockStore() *mockStore {
	return &mockStore{users: make(map[string]*model.User)}
}

func (m *mockStore) ResolveUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[email]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockStore) ListDevices(context.Context) ([]model.Device, error) {
	if m.listDevicesErr != nil {
		return nil, m.listDevicesErr
	}
	return m.devices, nil
}

func (m *mockStore) ListDevicesWithInstaller(ctx context.Context) ([]model.Device, error) {
	return m.ListDevices(ctx)
}

func (m *mockStore) InsertUserTelemetry(_ context.Context, row *model.UserTelemetry) error {
	if m.insertUserErr != nil {
		return m.insertUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userRows = append(m.userRows, *row)
	return nil
}

func (m *mockStore) InsertDeviceTelemetry(_ context.Context, row *model.DeviceTelemetry) error {
	if m.insertDeviceErr != nil {
		return m.insertDeviceErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deviceRows = append(m.deviceRows, *row)
	return nil
}

func (m *mockStore) HasAlarmNotification(context.Context, string, time.Time) (bool, error) {
	return m.hasNotification, nil
}

func (m *mockStore) CreateNotification(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, *n)
	return nil
}

func (m *mockStore) RegisterDevice(context.Context, *model.Device) error { return nil }

func (m *mockStore) SubscriptionsForUser(context.Context, int64) ([]model.PushSubscription, error) {
	return nil, nil
}

func (m *mockStore) DeleteSubscription(context.Context, string) error { return nil }

func (m *mockStore) SetNotifyEnabled(context.Context, int64, bool) error { return nil }

func (m *mockStore) DB() *gorm.DB { return nil }

var _ store.Store = (*mockStore)(nil)

func testConfig() *config.Config {
	return &config.Config{
		Provider: config.ProviderConfig{Timezone: "UTC"},
		Sync: config.SyncConfig{
			Enabled:     true,
			AlarmMaxAge: 5 * time.Minute,
		},
	}
}

func newTestService(s store.Store, client cloud.TelemetryClient) (*Service, *notification.WorkerPool) {
	pool := notification.NewWorkerPool(8, s, nil)
	return NewService(testConfig(), s, client, pool), pool
}

func TestMapStatus(t *testing.T) {
	testCases := []struct {
		code     int
		expected model.DeviceStatus
	}{
		{1, model.StatusOnline},
		{2, model.StatusFault},
		{3, model.StatusStandby},
		{4, model.StatusOffline},
		{0, model.StatusUnknown},
		{5, model.StatusUnknown},
		{-1, model.StatusUnknown},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, MapStatus(tc.code), "code %d", tc.code)
	}
}

func TestSyncUsersOnce_EmptyPull(t *testing.T) {
	st := newMockStore()
	svc, _ := newTestService(st, &mockClient{
		EndUserSummaryFunc: func(context.Context) ([]cloud.SummaryItem, error) {
			return []cloud.SummaryItem{}, nil
		},
	})

	synced, failed := svc.SyncUsersOnce(context.Background())

	assert.Equal(t, 0, synced)
	assert.Equal(t, 0, failed)
	assert.Empty(t, st.userRows, "an empty pull must produce zero writes")
}

func TestSyncUsersOnce_PullFailureAbortsCycle(t *testing.T) {
	st := newMockStore()
	svc, _ := newTestService(st, &mockClient{
		EndUserSummaryFunc: func(context.Context) ([]cloud.SummaryItem, error) {
			return nil, errors.New("provider unavailable")
		},
	})

	synced, failed := svc.SyncUsersOnce(context.Background())

	assert.Equal(t, 0, synced)
	assert.Equal(t, 0, failed)
	assert.Empty(t, st.userRows)
}

func TestSyncUsersOnce_SkipsItemsWithoutIdentity(t *testing.T) {
	st := newMockStore()
	st.users["a@x.com"] = &model.User{ID: 1, Email: "a@x.com"}

	svc, _ := newTestService(st, &mockClient{
		EndUserSummaryFunc: func(context.Context) ([]cloud.SummaryItem, error) {
			return []cloud.SummaryItem{
				{}, // no member id, no signature: skipped silently
				{MemberID: "a@x.com", Sign: "abc"},
			}, nil
		},
	})

	synced, failed := svc.SyncUsersOnce(context.Background())

	assert.Equal(t, 1, synced)
	assert.Equal(t, 0, failed, "an identity-less item is not a failure")
	assert.Len(t, st.userRows, 1)
}

func TestSyncUsersOnce_NormalizesFields(t *testing.T) {
	st := newMockStore()
	st.users["a@x.com"] = &model.User{ID: 1, Email: "a@x.com"}

	svc, _ := newTestService(st, &mockClient{
		EndUserSummaryFunc: func(context.Context) ([]cloud.SummaryItem, error) {
			return []cloud.SummaryItem{{
				MemberID:         "a@x.com",
				Sign:             "abc",
				CurrentPac:       "12.5",
				EToday:           nil,
				ETotal:           "100.25",
				Kwp:              "8.8",
				MemberStateCount: "1,0,3",
				CreateTime:       "2024-03-01 10:00:00",
			}}, nil
		},
	})

	synced, failed := svc.SyncUsersOnce(context.Background())

	assert.Equal(t, 1, synced)
	assert.Equal(t, 0, failed)
	if assert.Len(t, st.userRows, 1) {
		row := st.userRows[0]
		assert.Equal(t, "a@x.com", row.UserEmail)
		assert.Equal(t, "abc", row.Sign)
		assert.Equal(t, 12.5, row.CurrentPower)
		assert.Equal(t, 0.0, row.TodayGeneration, "absent numeric defaults to 0")
		assert.Equal(t, 100.25, row.TotalGeneration)
		assert.Equal(t, "1,0,3", row.StateCounts)
		if assert.NotNil(t, row.RatedCapacity) {
			assert.Equal(t, 8.8, *row.RatedCapacity)
		}
		assert.NotNil(t, row.ProviderTime)
	}
}

func TestSyncUsersOnce_UnresolvedUserIsIsolated(t *testing.T) {
	st := newMockStore()
	st.users["known@x.com"] = &model.User{ID: 1, Email: "known@x.com"}

	svc, _ := newTestService(st, &mockClient{
		EndUserSummaryFunc: func(context.Context) ([]cloud.SummaryItem, error) {
			return []cloud.SummaryItem{
				{MemberID: "ghost@x.com", Sign: "s1"},
				{MemberID: "known@x.com", Sign: "s2"},
			}, nil
		},
	})

	synced, failed := svc.SyncUsersOnce(context.Background())

	assert.Equal(t, 1, synced)
	assert.Equal(t, 1, failed)
	if assert.Len(t, st.userRows, 1) {
		assert.Equal(t, "known@x.com", st.userRows[0].UserEmail)
	}
}

func deviceFixture(id int64, sn, email string) model.Device {
	return model.Device{
		ID:         id,
		SN:         sn,
		DeviceType: model.DeviceTypeInverter,
		PlantID:    1,
		CustomerID: id,
		Customer:   model.User{ID: id, Email: email, NotifyEnabled: true},
	}
}

func TestSyncDevicesOnce_IsolatesFailingDevice(t *testing.T) {
	st := newMockStore()
	st.devices = []model.Device{
		deviceFixture(1, "SN-1", "a@x.com"),
		deviceFixture(2, "SN-2", "b@x.com"),
		deviceFixture(3, "SN-3", "c@x.com"),
	}

	svc, _ := newTestService(st, &mockClient{
		DeviceBySNFunc: func(_ context.Context, sn, _ string) (*cloud.DeviceDetail, error) {
			if sn == "SN-2" {
				return nil, errors.New("connection reset")
			}
			return &cloud.DeviceDetail{GoodsID: "G-" + sn, Light: 1.0}, nil
		},
	})

	synced, failed := svc.SyncDevicesOnce(context.Background())

	assert.Equal(t, 2, synced, "the two healthy devices must still be replicated")
	assert.Equal(t, 1, failed)
	assert.Len(t, st.deviceRows, 2)
}

func TestSyncDevicesOnce_MissingGoodsIDWritesNothing(t *testing.T) {
	st := newMockStore()
	st.devices = []model.Device{deviceFixture(1, "SN-1", "a@x.com")}

	svc, _ := newTestService(st, &mockClient{
		DeviceBySNFunc: func(context.Context, string, string) (*cloud.DeviceDetail, error) {
			return &cloud.DeviceDetail{Light: 1.0}, nil // no GoodsID
		},
	})

	synced, failed := svc.SyncDevicesOnce(context.Background())

	assert.Equal(t, 0, synced)
	assert.Equal(t, 0, failed, "missing provider data is not an error")
	assert.Empty(t, st.deviceRows)
}

func TestSyncDevicesOnce_DefensiveStatusAndNumerics(t *testing.T) {
	st := newMockStore()
	st.devices = []model.Device{deviceFixture(1, "SN-1", "a@x.com")}

	svc, _ := newTestService(st, &mockClient{
		DeviceBySNFunc: func(context.Context, string, string) (*cloud.DeviceDetail, error) {
			return &cloud.DeviceDetail{
				GoodsID: "G-1",
				Light:   5.0,    // unmapped status code
				CurrPac: "oops", // malformed numeric
			}, nil
		},
	})

	synced, failed := svc.SyncDevicesOnce(context.Background())

	assert.Equal(t, 1, synced)
	assert.Equal(t, 0, failed)
	if assert.Len(t, st.deviceRows, 1) {
		row := st.deviceRows[0]
		assert.Equal(t, model.StatusUnknown, row.Status)
		assert.Equal(t, 0.0, row.CurrentPower)
		assert.False(t, row.ProviderTime.IsZero(), "missing provider timestamp falls back to processing time")
	}
}

func TestSyncDevicesOnce_GuardsMalformedRegistryRows(t *testing.T) {
	st := newMockStore()
	st.devices = []model.Device{
		{ID: 1, SN: "", Customer: model.User{Email: "a@x.com"}},
		{ID: 2, SN: "SN-2", Customer: model.User{Email: ""}},
	}

	var calls int
	svc, _ := newTestService(st, &mockClient{
		DeviceBySNFunc: func(context.Context, string, string) (*cloud.DeviceDetail, error) {
			calls++
			return &cloud.DeviceDetail{GoodsID: "G"}, nil
		},
	})

	synced, failed := svc.SyncDevicesOnce(context.Background())

	assert.Equal(t, 0, synced)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 0, calls, "malformed rows must never reach the provider")
	assert.Empty(t, st.deviceRows)
}

func drainJobs(pool *notification.WorkerPool) []notification.Job {
	var jobs []notification.Job
	for {
		select {
		case job := <-pool.Jobs():
			jobs = append(jobs, job)
		default:
			return jobs
		}
	}
}

func TestPollAlarmsOnce_DispatchesForFreshAlarm(t *testing.T) {
	st := newMockStore()
	device := deviceFixture(1, "SN-1", "a@x.com")
	device.Plant = model.Plant{
		ID:          1,
		AutoID:      "AUTO-1",
		InstallerID: 9,
		Installer:   model.User{ID: 9, NotifyEnabled: true},
	}
	st.devices = []model.Device{device}

	svc, pool := newTestService(st, &mockClient{
		DeviceAlarmsFunc: func(context.Context, string, string) (*cloud.AlarmReport, error) {
			return &cloud.AlarmReport{
				ErrorCount: 1,
				Errors:     []cloud.AlarmError{{Code: "E042", Message: "Grid overvoltage", ElapsedSeconds: 90.0}},
			}, nil
		},
	})

	notified, failed := svc.PollAlarmsOnce(context.Background())

	assert.Equal(t, 1, notified)
	assert.Equal(t, 0, failed)

	jobs := drainJobs(pool)
	if assert.Len(t, jobs, 2, "customer and installer must both be notified") {
		assert.ElementsMatch(t, []int64{1, 9}, []int64{jobs[0].UserID, jobs[1].UserID})
		assert.Equal(t, "SN-1", jobs[0].DeviceSN)
		assert.Equal(t, "Grid overvoltage", jobs[0].Body)
	}
}

func TestPollAlarmsOnce_SkipsStaleAlarm(t *testing.T) {
	st := newMockStore()
	st.devices = []model.Device{deviceFixture(1, "SN-1", "a@x.com")}

	svc, pool := newTestService(st, &mockClient{
		DeviceAlarmsFunc: func(context.Context, string, string) (*cloud.AlarmReport, error) {
			return &cloud.AlarmReport{
				ErrorCount: 1,
				Errors:     []cloud.AlarmError{{Code: "E042", ElapsedSeconds: 3600.0}},
			}, nil
		},
	})

	notified, failed := svc.PollAlarmsOnce(context.Background())

	assert.Equal(t, 0, notified)
	assert.Equal(t, 0, failed)
	assert.Empty(t, drainJobs(pool))
}

func TestPollAlarmsOnce_DedupsNotifiedAlarm(t *testing.T) {
	st := newMockStore()
	st.hasNotification = true
	st.devices = []model.Device{deviceFixture(1, "SN-1", "a@x.com")}

	svc, pool := newTestService(st, &mockClient{
		DeviceAlarmsFunc: func(context.Context, string, string) (*cloud.AlarmReport, error) {
			return &cloud.AlarmReport{
				ErrorCount: 1,
				Errors:     []cloud.AlarmError{{Code: "E042", ElapsedSeconds: 90.0}},
			}, nil
		},
	})

	notified, failed := svc.PollAlarmsOnce(context.Background())

	assert.Equal(t, 0, notified)
	assert.Equal(t, 0, failed)
	assert.Empty(t, drainJobs(pool))
}

func TestPollAlarmsOnce_HonorsDisabledPreference(t *testing.T) {
	st := newMockStore()
	device := deviceFixture(1, "SN-1", "a@x.com")
	device.Customer.NotifyEnabled = false
	st.devices = []model.Device{device}

	svc, pool := newTestService(st, &mockClient{
		DeviceAlarmsFunc: func(context.Context, string, string) (*cloud.AlarmReport, error) {
			return &cloud.AlarmReport{
				ErrorCount: 1,
				Errors:     []cloud.AlarmError{{Code: "E042", ElapsedSeconds: 90.0}},
			}, nil
		},
	})

	_, failed := svc.PollAlarmsOnce(context.Background())

	assert.Equal(t, 0, failed)
	assert.Empty(t, drainJobs(pool), "a user who opted out must not be notified")
}

func TestPollAlarmsOnce_IsolatesFailingDevice(t *testing.T) {
	st := newMockStore()
	st.devices = []model.Device{
		deviceFixture(1, "SN-1", "a@x.com"),
		deviceFixture(2, "SN-2", "b@x.com"),
	}

	svc, pool := newTestService(st, &mockClient{
		DeviceAlarmsFunc: func(_ context.Context, _ string, sn string) (*cloud.AlarmReport, error) {
			if sn == "SN-1" {
				return nil, errors.New("timeout")
			}
			return &cloud.AlarmReport{
				ErrorCount: 1,
				Errors:     []cloud.AlarmError{{Code: "E001", ElapsedSeconds: 60.0}},
			}, nil
		},
	})

	notified, failed := svc.PollAlarmsOnce(context.Background())

	assert.Equal(t, 1, notified)
	assert.Equal(t, 1, failed)
	assert.NotEmpty(t, drainJobs(pool))
}
