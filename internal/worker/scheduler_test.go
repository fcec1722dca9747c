package worker_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/notifyhub/quicksched/internal/domain"
	"github.com/notifyhub/quicksched/internal/repository"
	"github.com/notifyhub/quicksched/internal/worker"
)

func TestReconcileScheduler_InvalidSchedule(t *testing.T) {
	rec := newReconciler(
		repository.NewMockScheduleRepository(),
		repository.NewMockNotificationRepository(),
		newFakeOracle(publishedSet()),
		worker.MetricHooks{},
	)
	_, err := worker.NewReconcileScheduler(rec, "not a schedule", zap.NewNop())
	assert.Error(t, err)
}

func TestReconcileScheduler_TriggerNowBeforeStartIsRefused(t *testing.T) {
	schedule := repository.NewMockScheduleRepository()
	oracle := newFakeOracle(publishedSet("ext-1"))
	rec := newReconciler(schedule, repository.NewMockNotificationRepository(), oracle, worker.MetricHooks{})
	seed(t, schedule, "ext-1")

	s, err := worker.NewReconcileScheduler(rec, "@every 1h", zap.NewNop())
	require.NoError(t, err)

	_, err = s.TriggerNow()
	assert.ErrorIs(t, err, domain.ErrReconcileDisabled)
	assert.Equal(t, 0, oracle.Total())
	_, ok := s.LastReport()
	assert.False(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestReconcileScheduler_TriggerNowAndStop(t *testing.T) {
	schedule := repository.NewMockScheduleRepository()
	notifications := repository.NewMockNotificationRepository()
	rec := newReconciler(schedule, notifications, newFakeOracle(publishedSet("ext-1")), worker.MetricHooks{})
	p := seed(t, schedule, "ext-1")

	s, err := worker.NewReconcileScheduler(rec, "@every 1h", zap.NewNop())
	require.NoError(t, err)
	s.Start()

	report, err := s.TriggerNow()
	require.NoError(t, err)
	assert.Equal(t, 1, report.Archived)
	assert.Equal(t, 1, notifications.CountBySource(p.ID))

	last, ok := s.LastReport()
	require.True(t, ok)
	assert.Equal(t, report.Archived, last.Archived)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	_, err = s.TriggerNow()
	assert.Error(t, err, "no passes may start after Stop")
}

func TestReconcileScheduler_TriggerNowWhileRunning(t *testing.T) {
	schedule := repository.NewMockScheduleRepository()
	notifications := repository.NewMockNotificationRepository()

	entered := make(chan struct{})
	release := make(chan struct{})
	oracle := newFakeOracle(func(string, int) (bool, error) {
		close(entered)
		<-release
		return false, nil
	})
	rec := newReconciler(schedule, notifications, oracle, worker.MetricHooks{})
	seed(t, schedule, "ext-1")

	s, err := worker.NewReconcileScheduler(rec, "@every 1h", zap.NewNop())
	require.NoError(t, err)
	s.Start()

	go func() { _, _ = s.TriggerNow() }()
	<-entered

	assert.True(t, s.Running())
	_, err = s.TriggerNow()
	assert.ErrorIs(t, err, domain.ErrPassInProgress)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.Running())
}

func TestReconcileScheduler_StopTimesOutOnStuckPass(t *testing.T) {
	schedule := repository.NewMockScheduleRepository()
	entered := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	oracle := newFakeOracle(func(string, int) (bool, error) {
		close(entered)
		<-release
		return false, nil
	})
	rec := newReconciler(schedule, repository.NewMockNotificationRepository(), oracle, worker.MetricHooks{})
	seed(t, schedule, "ext-1")

	s, err := worker.NewReconcileScheduler(rec, "@every 1h", zap.NewNop())
	require.NoError(t, err)
	s.Start()

	go func() { _, _ = s.TriggerNow() }()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
}

func TestReconcileScheduler_OverlappingTicksAreSkipped(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	schedule := repository.NewMockScheduleRepository()

	entered := make(chan struct{})
	release := make(chan struct{})
	oracle := newFakeOracle(func(_ string, call int) (bool, error) {
		if call == 1 {
			close(entered)
			<-release
		}
		return false, nil
	})
	rec := newReconciler(schedule, repository.NewMockNotificationRepository(), oracle, worker.MetricHooks{})
	seed(t, schedule, "ext-1")

	s, err := worker.NewReconcileScheduler(rec, "@every 1s", zap.New(core))
	require.NoError(t, err)
	s.Start()

	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		t.Fatal("no pass started from a cron tick")
	}

	// Later ticks fire while the first pass is blocked and are dropped by the
	// job chain before they reach the reconciler.
	require.Eventually(t, func() bool {
		return logs.FilterMessage("skip").Len() >= 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, oracle.Total())
	assert.Zero(t, logs.FilterMessage("reconcile pass already running").Len())

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

// panicOnceSchedule panics on the first ListPending call.
type panicOnceSchedule struct {
	*repository.MockScheduleRepository
	calls atomic.Int32
}

func (p *panicOnceSchedule) ListPending(ctx context.Context) ([]*domain.ScheduledPost, error) {
	if p.calls.Add(1) == 1 {
		panic("store driver bug")
	}
	return p.MockScheduleRepository.ListPending(ctx)
}

func TestReconcileScheduler_RecoversFromPanickingPass(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	mock := repository.NewMockScheduleRepository()
	schedule := &panicOnceSchedule{MockScheduleRepository: mock}
	notifications := repository.NewMockNotificationRepository()
	rec := newReconciler(schedule, notifications, newFakeOracle(publishedSet("ext-1")), worker.MetricHooks{})
	p := seed(t, mock, "ext-1")

	s, err := worker.NewReconcileScheduler(rec, "@every 1s", zap.New(core))
	require.NoError(t, err)
	s.Start()

	require.Eventually(t, func() bool {
		return notifications.CountBySource(p.ID) == 1
	}, 5*time.Second, 20*time.Millisecond, "a later tick must still run after a panic")
	assert.Equal(t, 1, logs.FilterMessage("panic").Len())
	assert.False(t, exists(t, mock, p.ID))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
