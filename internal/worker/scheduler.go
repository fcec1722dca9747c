package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/notifyhub/quicksched/internal/domain"
)

// ReconcileScheduler runs reconciliation passes on a cron schedule and on
// demand. A tick that fires while a pass is still running is dropped.
type ReconcileScheduler struct {
	rec    *Reconciler
	cron   *cron.Cron
	logger *zap.Logger

	// ctx is handed to every pass; cancelling it stops dispatch of new
	// oracle queries.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

var errSchedulerStopped = errors.New("reconcile scheduler is stopped")

// NewReconcileScheduler validates spec (standard five-field cron syntax or
// a descriptor such as "@every 30s") and registers the pass.
func NewReconcileScheduler(rec *Reconciler, spec string, logger *zap.Logger) (*ReconcileScheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	clog := cronLogger{logger: logger.Sugar()}

	s := &ReconcileScheduler{
		rec:    rec,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		cron: cron.New(
			cron.WithLogger(clog),
			// Recover sits inside SkipIfStillRunning so a panicking pass
			// still releases the slot for later ticks.
			cron.WithChain(cron.SkipIfStillRunning(clog), cron.Recover(clog)),
		),
	}

	if _, err := s.cron.AddFunc(spec, func() { _, _ = s.run("schedule") }); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing scheduled passes in the background.
func (s *ReconcileScheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("reconcile scheduler started")
}

// TriggerNow runs a pass immediately and returns its report.
// It returns domain.ErrPassInProgress if a pass is already running and
// domain.ErrReconcileDisabled if the scheduler was never started.
func (s *ReconcileScheduler) TriggerNow() (PassReport, error) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return PassReport{}, domain.ErrReconcileDisabled
	}
	return s.run("manual")
}

// Running reports whether a pass is in flight.
func (s *ReconcileScheduler) Running() bool {
	return s.rec.Running()
}

// LastReport returns the report of the most recently finished pass.
func (s *ReconcileScheduler) LastReport() (PassReport, bool) {
	return s.rec.LastReport()
}

// Stop prevents new ticks, stops the running pass from dispatching further
// oracle queries, and waits for it to finish or for ctx to expire.
func (s *ReconcileScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("reconcile scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for reconcile pass: %w", ctx.Err())
	}
}

func (s *ReconcileScheduler) run(trigger string) (PassReport, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return PassReport{}, errSchedulerStopped
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	report, err := s.rec.ReconcileOnce(s.ctx)
	if errors.Is(err, domain.ErrPassInProgress) {
		s.logger.Debug("reconcile pass already running", zap.String("trigger", trigger))
		return report, err
	}
	if err != nil {
		s.logger.Error("reconcile pass failed", zap.String("trigger", trigger), zap.Error(err))
		return report, err
	}

	s.logger.Info("reconcile pass finished",
		zap.String("trigger", trigger),
		zap.Int("snapshot", report.Snapshot),
		zap.Int("checked", report.Checked),
		zap.Int("archived", report.Archived),
		zap.Int("skipped", report.Skipped),
		zap.Int("oracle_errors", report.OracleErrors),
		zap.Int("store_errors", report.StoreErrors),
		zap.Duration("duration", report.Duration()),
	)
	return report, nil
}

// cronLogger routes robfig/cron logging into zap. Cron logs every wakeup at
// info level, so that goes to debug.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
