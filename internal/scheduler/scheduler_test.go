package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filescout/internal/config"
	"filescout/internal/entity"
	"filescout/internal/observability"
)

type memConfigStore struct {
	mu      sync.Mutex
	configs []*entity.Configuration
	runs    map[string]time.Time
}

func newMemConfigStore(configs ...*entity.Configuration) *memConfigStore {
	return &memConfigStore{configs: configs, runs: make(map[string]time.Time)}
}

func (m *memConfigStore) ListActive(_ context.Context, offset, limit int) ([]*entity.Configuration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if offset >= len(m.configs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.configs) {
		end = len(m.configs)
	}
	return m.configs[offset:end], nil
}

func (m *memConfigStore) RecordRun(_ context.Context, tenantID, id string, lastExecutedAt time.Time, nextScheduledRun *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[tenantID+":"+id] = lastExecutedAt
	for _, cfg := range m.configs {
		if cfg.TenantID == tenantID && cfg.ID == id {
			at := lastExecutedAt
			cfg.LastExecutedAt = &at
			cfg.NextScheduledRun = nextScheduledRun
		}
	}
	return nil
}

func (m *memConfigStore) runCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

type fakePurger struct {
	mu     sync.Mutex
	purged int
	cutoff time.Time
}

func (p *fakePurger) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purged++
	p.cutoff = cutoff
	return 0, nil
}

type fakeRunner struct {
	mu      sync.Mutex
	ran     []string
	failFor map[string]error
	block   chan struct{}
}

func (r *fakeRunner) Run(_ context.Context, cfg *entity.Configuration) (*entity.Execution, error) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.ran = append(r.ran, cfg.ID)
	r.mu.Unlock()
	if err, ok := r.failFor[cfg.ID]; ok {
		return nil, err
	}
	return entity.NewExecution(cfg.TenantID, cfg.ID), nil
}

func (r *fakeRunner) runIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ran...)
}

type fakeLease struct {
	mu     sync.Mutex
	denied map[string]bool
	held   map[string]bool
}

func newFakeLease() *fakeLease {
	return &fakeLease{denied: make(map[string]bool), held: make(map[string]bool)}
}

func (l *fakeLease) Acquire(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.denied[key] || l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLease) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

func dueConfig(id, tenantID string) *entity.Configuration {
	cfg := entity.NewConfiguration(id, tenantID)
	cfg.Protocol = entity.ProtocolHTTPS
	cfg.CronExpression = "* * * * *"
	cfg.Timezone = "UTC"
	return cfg
}

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		TickInterval:       time.Minute,
		DueWindow:          2 * time.Minute,
		MaxConcurrent:      100,
		PageSize:           2,
		ExecutionRetention: 90 * 24 * time.Hour,
	}
}

func newScheduler(store *memConfigStore, runner *fakeRunner, leases *fakeLease, cfg config.SchedulerConfig) *Scheduler {
	return New(store, &fakePurger{}, runner, leases, cfg, observability.NopLogger{}, observability.NopMetrics{})
}

func TestTickRunsAllDueConfigurations(t *testing.T) {
	store := newMemConfigStore(
		dueConfig("00000000-0000-0000-0000-00000000000a", "tenant-1"),
		dueConfig("00000000-0000-0000-0000-00000000000b", "tenant-1"),
		dueConfig("00000000-0000-0000-0000-00000000000c", "tenant-2"),
	)
	runner := &fakeRunner{}
	s := newScheduler(store, runner, newFakeLease(), testSchedulerConfig())

	s.Tick(context.Background())
	s.Wait()

	assert.Len(t, runner.runIDs(), 3)
	assert.Equal(t, 3, store.runCount())
}

func TestTickIsolatesFailures(t *testing.T) {
	store := newMemConfigStore(
		dueConfig("00000000-0000-0000-0000-00000000000a", "tenant-1"),
		dueConfig("00000000-0000-0000-0000-00000000000b", "tenant-1"),
		dueConfig("00000000-0000-0000-0000-00000000000c", "tenant-1"),
	)
	runner := &fakeRunner{failFor: map[string]error{
		"00000000-0000-0000-0000-00000000000b": errors.New("auth rejected"),
	}}
	s := newScheduler(store, runner, newFakeLease(), testSchedulerConfig())

	s.Tick(context.Background())
	s.Wait()

	// the failing configuration must not prevent its siblings from running
	assert.Len(t, runner.runIDs(), 3)
	assert.Equal(t, 3, store.runCount())
}

func TestTickSkipsLeasedConfiguration(t *testing.T) {
	store := newMemConfigStore(
		dueConfig("00000000-0000-0000-0000-00000000000a", "tenant-1"),
		dueConfig("00000000-0000-0000-0000-00000000000b", "tenant-1"),
	)
	leases := newFakeLease()
	leases.denied["tenant-1:00000000-0000-0000-0000-00000000000a"] = true
	runner := &fakeRunner{}
	s := newScheduler(store, runner, leases, testSchedulerConfig())

	s.Tick(context.Background())
	s.Wait()

	ids := runner.runIDs()
	require.Len(t, ids, 1)
	assert.Equal(t, "00000000-0000-0000-0000-00000000000b", ids[0])
}

func TestTickDefersWhenPoolSaturated(t *testing.T) {
	store := newMemConfigStore(
		dueConfig("00000000-0000-0000-0000-00000000000a", "tenant-1"),
		dueConfig("00000000-0000-0000-0000-00000000000b", "tenant-1"),
	)
	cfg := testSchedulerConfig()
	cfg.MaxConcurrent = 1

	runner := &fakeRunner{block: make(chan struct{})}
	s := newScheduler(store, runner, newFakeLease(), cfg)
	now := time.Date(2026, 8, 23, 12, 0, 30, 0, time.UTC)
	s.now = func() time.Time { return now }

	// first tick: one slot, so exactly one check starts
	s.Tick(context.Background())
	close(runner.block)
	s.Wait()
	require.Len(t, runner.runIDs(), 1)

	// the deferred configuration is picked up on a later tick; the one that
	// already ran this firing is not re-triggered
	runner.block = nil
	s.Tick(context.Background())
	s.Wait()
	ids := runner.runIDs()
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
}

func TestTickDoesNotRetriggerWithinWindow(t *testing.T) {
	cfg := dueConfig("00000000-0000-0000-0000-00000000000a", "tenant-1")
	cfg.CronExpression = "0 8 * * *"
	store := newMemConfigStore(cfg)
	runner := &fakeRunner{}
	s := newScheduler(store, runner, newFakeLease(), testSchedulerConfig())

	now := time.Date(2026, 8, 23, 8, 0, 30, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Tick(context.Background())
	s.Wait()
	require.Len(t, runner.runIDs(), 1)

	// one tick later, still inside the due window of the same firing
	now = time.Date(2026, 8, 23, 8, 1, 30, 0, time.UTC)
	s.Tick(context.Background())
	s.Wait()
	assert.Len(t, runner.runIDs(), 1, "the 08:00 firing must run once, not once per tick")

	// the next day's firing triggers again
	now = time.Date(2026, 8, 24, 8, 0, 30, 0, time.UTC)
	s.Tick(context.Background())
	s.Wait()
	assert.Len(t, runner.runIDs(), 2)
}

func TestTickIgnoresNotDueConfigurations(t *testing.T) {
	notDue := dueConfig("00000000-0000-0000-0000-00000000000a", "tenant-1")
	notDue.CronExpression = "0 8 * * *"
	store := newMemConfigStore(notDue)
	runner := &fakeRunner{}
	s := newScheduler(store, runner, newFakeLease(), testSchedulerConfig())
	s.now = func() time.Time {
		return time.Date(2026, 8, 23, 15, 0, 0, 0, time.UTC)
	}

	s.Tick(context.Background())
	s.Wait()

	assert.Empty(t, runner.runIDs())
}

func TestTickEvalErrorDoesNotBlockSiblings(t *testing.T) {
	broken := dueConfig("00000000-0000-0000-0000-00000000000a", "tenant-1")
	broken.Timezone = "Mars/Olympus_Mons"
	store := newMemConfigStore(
		broken,
		dueConfig("00000000-0000-0000-0000-00000000000b", "tenant-1"),
	)
	runner := &fakeRunner{}
	s := newScheduler(store, runner, newFakeLease(), testSchedulerConfig())

	s.Tick(context.Background())
	s.Wait()

	ids := runner.runIDs()
	require.Len(t, ids, 1)
	assert.Equal(t, "00000000-0000-0000-0000-00000000000b", ids[0])
}

func TestPurgeUsesRetentionHorizon(t *testing.T) {
	purger := &fakePurger{}
	cfg := testSchedulerConfig()
	s := New(newMemConfigStore(), purger, &fakeRunner{}, newFakeLease(), cfg,
		observability.NopLogger{}, observability.NopMetrics{})
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.purge(context.Background())

	assert.Equal(t, 1, purger.purged)
	assert.Equal(t, now.Add(-cfg.ExecutionRetention), purger.cutoff)
}
