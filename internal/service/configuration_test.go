package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filescout/internal/entity"
	"filescout/internal/observability"
	"filescout/internal/repository"
)

type memStore struct {
	rows map[string]*entity.Configuration
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]*entity.Configuration)}
}

func (m *memStore) key(tenantID, id string) string { return tenantID + ":" + id }

func (m *memStore) Create(_ context.Context, cfg *entity.Configuration) (bool, error) {
	k := m.key(cfg.TenantID, cfg.ID)
	if _, ok := m.rows[k]; ok {
		return false, nil
	}
	copied := *cfg
	m.rows[k] = &copied
	return true, nil
}

func (m *memStore) Get(_ context.Context, tenantID, id string) (*entity.Configuration, error) {
	cfg, ok := m.rows[m.key(tenantID, id)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *cfg
	return &copied, nil
}

func (m *memStore) Update(_ context.Context, cfg *entity.Configuration) error {
	current, ok := m.rows[m.key(cfg.TenantID, cfg.ID)]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != cfg.Version {
		return repository.ErrVersionConflict
	}
	copied := *cfg
	copied.Version++
	m.rows[m.key(cfg.TenantID, cfg.ID)] = &copied
	cfg.Version++
	return nil
}

func (m *memStore) Deactivate(_ context.Context, tenantID, id string, version int64) error {
	current, ok := m.rows[m.key(tenantID, id)]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != version {
		return repository.ErrVersionConflict
	}
	current.IsActive = false
	current.Version++
	return nil
}

func newService(store ConfigurationStore) *ConfigurationService {
	return NewConfigurationService(store, observability.NopLogger{}, observability.NopMetrics{})
}

func validFTPInput() ConfigurationInput {
	return ConfigurationInput{
		TenantID: "tenant-1",
		Protocol: "ftp",
		ProtocolSettings: entity.ProtocolSettings{
			Host:              "files.example.com",
			Username:          "reports",
			PasswordSecretRef: "ftp-password",
		},
		PathPattern:    "/outbound/{yyyy}/{mm}",
		NamePattern:    "daily_{yyyy}{mm}{dd}.csv",
		CronExpression: "0 8 * * *",
		Timezone:       "America/New_York",
		NotificationTargets: []entity.NotificationTarget{
			{EventType: "file.discovered", Destination: "ingest-queue"},
		},
	}
}

func TestCreateConfiguration(t *testing.T) {
	store := newMemStore()
	cfg, err := newService(store).Create(context.Background(), validFTPInput())
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.ID)
	assert.Equal(t, entity.ProtocolFTP, cfg.Protocol)
	assert.Equal(t, int64(1), cfg.Version)
	assert.True(t, cfg.IsActive)
	require.NotNil(t, cfg.NextScheduledRun)
}

func TestCreateIsIdempotent(t *testing.T) {
	store := newMemStore()
	svc := newService(store)

	in := validFTPInput()
	in.ID = "11111111-1111-1111-1111-111111111111"

	first, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	// replaying the same create must not insert a second row
	in.NamePattern = "changed_{dd}.csv"
	second, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.NamePattern, second.NamePattern)
	assert.Len(t, store.rows, 1)
}

func TestCreateValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ConfigurationInput)
	}{
		{"unknown protocol", func(in *ConfigurationInput) { in.Protocol = "sftp" }},
		{"ftp without host", func(in *ConfigurationInput) { in.ProtocolSettings.Host = "" }},
		{"ftp username without secret", func(in *ConfigurationInput) { in.ProtocolSettings.PasswordSecretRef = "" }},
		{"bad cron", func(in *ConfigurationInput) { in.CronExpression = "0 8 * * * *" }},
		{"bad timezone", func(in *ConfigurationInput) { in.Timezone = "Mars/Olympus_Mons" }},
		{"no targets", func(in *ConfigurationInput) { in.NotificationTargets = nil }},
		{"target without destination", func(in *ConfigurationInput) {
			in.NotificationTargets = []entity.NotificationTarget{{EventType: "file.discovered"}}
		}},
		{"target with both types", func(in *ConfigurationInput) {
			in.NotificationTargets = []entity.NotificationTarget{
				{EventType: "file.discovered", CommandType: "ingest.start", Destination: "q"},
			}
		}},
		{"target with neither type", func(in *ConfigurationInput) {
			in.NotificationTargets = []entity.NotificationTarget{{Destination: "q"}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validFTPInput()
			tc.mutate(&in)
			_, err := newService(newMemStore()).Create(context.Background(), in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCreateRejectsTokenInHost(t *testing.T) {
	in := ConfigurationInput{
		TenantID: "tenant-1",
		Protocol: "https",
		ProtocolSettings: entity.ProtocolSettings{
			BaseURL: "https://{yyyy}.example.com",
		},
		PathPattern:    "reports",
		NamePattern:    "daily.csv",
		CronExpression: "0 8 * * *",
		NotificationTargets: []entity.NotificationTarget{
			{EventType: "file.discovered", Destination: "ingest-queue"},
		},
	}
	_, err := newService(newMemStore()).Create(context.Background(), in)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateBumpsVersion(t *testing.T) {
	store := newMemStore()
	svc := newService(store)

	created, err := svc.Create(context.Background(), validFTPInput())
	require.NoError(t, err)

	in := validFTPInput()
	in.ID = created.ID
	in.NamePattern = "weekly_{yyyy}{mm}{dd}.csv"

	updated, err := svc.Update(context.Background(), in, created.Version)
	require.NoError(t, err)
	assert.Equal(t, created.Version+1, updated.Version)
	assert.Equal(t, "weekly_{yyyy}{mm}{dd}.csv", updated.NamePattern)
}

func TestUpdateRejectsStaleVersion(t *testing.T) {
	store := newMemStore()
	svc := newService(store)

	created, err := svc.Create(context.Background(), validFTPInput())
	require.NoError(t, err)

	in := validFTPInput()
	in.ID = created.ID

	_, err = svc.Update(context.Background(), in, created.Version+5)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
}

func TestDeactivateSoftDeletes(t *testing.T) {
	store := newMemStore()
	svc := newService(store)

	created, err := svc.Create(context.Background(), validFTPInput())
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), created.TenantID, created.ID, created.Version))

	stored, err := svc.Get(context.Background(), created.TenantID, created.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive, "deactivation must keep the row")
}
