package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notifyhub/quicksched/internal/domain"
	"github.com/notifyhub/quicksched/internal/platform"
	"github.com/notifyhub/quicksched/internal/repository"
)

// MetricHooks carries the metric callback functions injected by main.
// Any field may be nil.
type MetricHooks struct {
	OnPass        func(report PassReport)
	OnArchived    func(category domain.Category, lag time.Duration)
	OnOracleError func()
	OnStoreError  func(op string)
}

// ReconcilerConfig tunes a Reconciler.
type ReconcilerConfig struct {
	Workers     int
	ItemTimeout time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// PassReport summarises one reconciliation pass.
type PassReport struct {
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Snapshot     int       `json:"snapshot"`
	Checked      int       `json:"checked"`
	Published    int       `json:"published"`
	Archived     int       `json:"archived"`
	Skipped      int       `json:"skipped"`
	OracleErrors int       `json:"oracle_errors"`
	StoreErrors  int       `json:"store_errors"`
	Interrupted  bool      `json:"interrupted"`
}

// Duration is the wall time the pass took.
func (r PassReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Reconciler moves submitted posts that the platform reports as live from
// the schedule into the notification archive.
//
// Each pass works on a snapshot of pending posts. A post is archived first
// and deleted second, so a crash or store failure between the two steps
// leaves it archived but still pending; the next pass re-archives it as a
// no-op (archives are unique per source post) and finishes the delete.
type Reconciler struct {
	schedule      repository.ScheduleRepository
	notifications repository.NotificationRepository
	oracle        platform.StatusOracle
	backoff       *backoffTracker
	workers       int
	itemTimeout   time.Duration
	logger        *zap.Logger
	hooks         MetricHooks
	now           func() time.Time

	running atomic.Bool

	mu   sync.RWMutex
	last *PassReport
}

func NewReconciler(
	cfg ReconcilerConfig,
	schedule repository.ScheduleRepository,
	notifications repository.NotificationRepository,
	oracle platform.StatusOracle,
	logger *zap.Logger,
	hooks MetricHooks,
) *Reconciler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Reconciler{
		schedule:      schedule,
		notifications: notifications,
		oracle:        oracle,
		backoff:       newBackoffTracker(cfg.BackoffBase, cfg.BackoffMax),
		workers:       cfg.Workers,
		itemTimeout:   cfg.ItemTimeout,
		logger:        logger,
		hooks:         hooks,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Running reports whether a pass is in flight.
func (r *Reconciler) Running() bool {
	return r.running.Load()
}

// LastReport returns the report of the most recently finished pass.
func (r *Reconciler) LastReport() (PassReport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return PassReport{}, false
	}
	return *r.last, true
}

// ReconcileOnce runs a single pass. It returns domain.ErrPassInProgress if
// another pass has not finished yet.
//
// Cancelling ctx stops new oracle queries from being dispatched. Queries
// already running are allowed to finish, and an archive transition that has
// started always runs to completion.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (report PassReport, err error) {
	if !r.running.CompareAndSwap(false, true) {
		return PassReport{}, domain.ErrPassInProgress
	}
	defer r.running.Store(false)

	var t tally
	report.StartedAt = r.now()
	defer func() {
		t.fill(&report)
		report.FinishedAt = r.now()
		r.mu.Lock()
		r.last = &report
		r.mu.Unlock()
		if r.hooks.OnPass != nil {
			r.hooks.OnPass(report)
		}
	}()

	posts, err := r.schedule.ListPending(ctx)
	if err != nil {
		t.storeErrors.Add(1)
		r.storeError("list_pending")
		r.logger.Error("failed to load pending posts", zap.Error(err))
		return report, fmt.Errorf("list pending posts: %w", err)
	}
	report.Snapshot = len(posts)

	live := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		live[p.ID] = struct{}{}
	}
	r.backoff.Retain(live)

	var g errgroup.Group
	g.SetLimit(r.workers)

	now := r.now()
	for _, p := range posts {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}
		if p.IsDraft() {
			continue
		}
		if !r.backoff.Ready(p.ID, now) {
			t.skipped.Add(1)
			continue
		}
		g.Go(func() error {
			// cron.Recover only covers the pass goroutine, not the pool.
			defer func() {
				if v := recover(); v != nil {
					r.backoff.Failure(p.ID, r.now())
					t.oracleErrors.Add(1)
					r.logger.Error("reconcile check panicked",
						zap.String("post_id", p.ID), zap.Any("panic", v), zap.Stack("stack"))
				}
			}()
			r.check(ctx, p, &t)
			return nil
		})
	}
	_ = g.Wait()

	if report.Interrupted {
		r.logger.Info("reconcile pass interrupted, remaining posts left for the next pass")
	}
	return report, nil
}

func (r *Reconciler) check(ctx context.Context, p *domain.ScheduledPost, t *tally) {
	log := r.logger.With(
		zap.String("post_id", p.ID),
		zap.String("external_ref", *p.ExternalRef),
	)

	// A dispatched query outlives shutdown; only itemTimeout bounds it.
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.itemTimeout)
	published, err := r.oracle.IsPublished(qctx, *p.ExternalRef)
	cancel()

	if err != nil {
		delay := r.backoff.Failure(p.ID, r.now())
		t.oracleErrors.Add(1)
		if r.hooks.OnOracleError != nil {
			r.hooks.OnOracleError()
		}
		fields := []zap.Field{
			zap.Error(err),
			zap.Int("consecutive_failures", r.backoff.Failures(p.ID)),
			zap.Duration("next_attempt_in", delay),
		}
		// Throttling and outages clear up on their own; anything else, such
		// as a revoked token, needs an operator.
		var ge *platform.GraphError
		if errors.As(err, &ge) && !ge.Transient() {
			log.Error("publish status query rejected", fields...)
			return
		}
		log.Warn("publish status query failed", fields...)
		return
	}

	r.backoff.Success(p.ID)
	t.checked.Add(1)
	if !published {
		return
	}
	t.published.Add(1)

	// Once the platform confirms publication the transition must not be cut
	// short by shutdown.
	switch r.archive(context.WithoutCancel(ctx), p, log) {
	case outcomeArchived:
		t.archived.Add(1)
	case outcomeFailed:
		t.storeErrors.Add(1)
	}
}

type outcome int

const (
	outcomeArchived outcome = iota
	// outcomeWithdrawn: a user delete won the race and the archive was undone.
	outcomeWithdrawn
	outcomeFailed
)

// archive performs the write-then-delete transition for p.
func (r *Reconciler) archive(ctx context.Context, p *domain.ScheduledPost, log *zap.Logger) outcome {
	now := r.now()
	n := domain.NewArchivedNotification(uuid.NewString(), p, now)

	created, err := r.notifications.Archive(ctx, n)
	if err != nil {
		r.storeError("archive")
		log.Error("failed to archive published post", zap.Error(err))
		return outcomeFailed
	}
	if !created {
		log.Info("archive record already exists, completing transition")
	}

	if err := r.schedule.Delete(ctx, p.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// The user deleted the post first; that deletion wins.
			if err := r.notifications.DeleteBySource(ctx, p.ID); err != nil {
				r.storeError("withdraw_archive")
				log.Error("failed to withdraw archive after concurrent delete", zap.Error(err))
				return outcomeFailed
			}
			log.Info("post deleted concurrently, archive withdrawn")
			return outcomeWithdrawn
		}
		r.storeError("delete")
		log.Error("archived post could not be removed from schedule", zap.Error(err))
		return outcomeFailed
	}

	if r.hooks.OnArchived != nil {
		r.hooks.OnArchived(p.Category, now.Sub(p.PublishAt))
	}
	log.Info("post published and archived", zap.Bool("new_archive", created))
	return outcomeArchived
}

func (r *Reconciler) storeError(op string) {
	if r.hooks.OnStoreError != nil {
		r.hooks.OnStoreError(op)
	}
}

// tally collects per-pass counters from concurrent checks.
type tally struct {
	checked      atomic.Int64
	published    atomic.Int64
	archived     atomic.Int64
	skipped      atomic.Int64
	oracleErrors atomic.Int64
	storeErrors  atomic.Int64
}

func (t *tally) fill(r *PassReport) {
	r.Checked = int(t.checked.Load())
	r.Published = int(t.published.Load())
	r.Archived = int(t.archived.Load())
	r.Skipped = int(t.skipped.Load())
	r.OracleErrors = int(t.oracleErrors.Load())
	r.StoreErrors = int(t.storeErrors.Load())
}
