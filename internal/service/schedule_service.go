package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/quicksched/internal/assethost"
	"github.com/notifyhub/quicksched/internal/domain"
	"github.com/notifyhub/quicksched/internal/platform"
	"github.com/notifyhub/quicksched/internal/repository"
)

// Options wires the optional collaborators of ScheduleService.
type Options struct {
	// Publisher submits posts to the platform. Nil stores every new post as
	// a draft.
	Publisher platform.Publisher
	// Uploader backs UploadAsset. Nil disables uploads.
	Uploader assethost.Uploader
	// MinLead is the minimum distance between now and a post's publish time.
	MinLead time.Duration
	// OnSubmit observes every platform submission attempt.
	OnSubmit func(err error)
}

// ScheduleService owns the rules for creating, editing, and removing
// scheduled posts. HTTP handlers depend on it; the reconciler does not.
type ScheduleService struct {
	schedule      repository.ScheduleRepository
	notifications repository.NotificationRepository
	publisher     platform.Publisher
	uploader      assethost.Uploader
	minLead       time.Duration
	onSubmit      func(error)
	logger        *zap.Logger
	now           func() time.Time

	// submitting holds draft ids with a platform submission in flight.
	mu         sync.Mutex
	submitting map[string]struct{}
}

func NewScheduleService(
	schedule repository.ScheduleRepository,
	notifications repository.NotificationRepository,
	logger *zap.Logger,
	opts Options,
) *ScheduleService {
	onSubmit := opts.OnSubmit
	if onSubmit == nil {
		onSubmit = func(error) {}
	}
	return &ScheduleService{
		schedule:      schedule,
		notifications: notifications,
		publisher:     opts.Publisher,
		uploader:      opts.Uploader,
		minLead:       opts.MinLead,
		onSubmit:      onSubmit,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
		submitting:    make(map[string]struct{}),
	}
}

// PublishingEnabled reports whether new posts are submitted on creation.
func (s *ScheduleService) PublishingEnabled() bool {
	return s.publisher != nil
}

// Create validates req, submits the post to the platform when a publisher
// is configured, and persists it. A failed submission persists nothing.
func (s *ScheduleService) Create(ctx context.Context, req domain.CreatePostRequest) (*domain.ScheduledPost, error) {
	now := s.now()
	if err := req.Validate(now, s.minLead); err != nil {
		return nil, err
	}

	p := &domain.ScheduledPost{
		ID:        uuid.New().String(),
		Category:  req.Category,
		Body:      strings.TrimSpace(req.Body),
		PublishAt: domain.NormalizeInstant(req.PublishAt),
		MediaRefs: append([]string{}, req.MediaRefs...),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if s.publisher != nil {
		ref, err := s.submit(ctx, p)
		if err != nil {
			return nil, err
		}
		p.ExternalRef = &ref
	}

	if err := s.schedule.Create(ctx, p); err != nil {
		if p.ExternalRef != nil {
			// The platform will still publish it; nothing local tracks it now.
			s.logger.Error("post submitted but not persisted",
				zap.String("post_id", p.ID),
				zap.String("external_ref", *p.ExternalRef),
				zap.Error(err))
		}
		return nil, fmt.Errorf("persist post: %w", err)
	}
	return p, nil
}

// Submit hands a draft to the platform and records the resulting reference.
// A second Submit for the same draft while the first is still talking to the
// platform fails with ErrAlreadySubmitted instead of creating a duplicate
// platform post.
func (s *ScheduleService) Submit(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	if s.publisher == nil {
		return nil, domain.ErrPublisherDisabled
	}
	if !s.claim(id) {
		return nil, domain.ErrAlreadySubmitted
	}
	defer s.release(id)

	p, err := s.schedule.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsDraft() {
		return nil, domain.ErrAlreadySubmitted
	}
	if p.PublishAt.Before(s.now().Add(s.minLead)) {
		return nil, domain.ErrPublishTimeTooSoon
	}

	ref, err := s.submit(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := s.schedule.SetExternalRef(ctx, id, ref); err != nil {
		s.logger.Error("submitted draft could not be marked",
			zap.String("post_id", id),
			zap.String("external_ref", ref),
			zap.Error(err))
		return nil, err
	}
	return s.schedule.GetByID(ctx, id)
}

// Update edits the mutable fields of a post. The external reference is
// never touched.
func (s *ScheduleService) Update(ctx context.Context, id string, u domain.PostUpdate) (*domain.ScheduledPost, error) {
	if u.IsEmpty() {
		return s.schedule.GetByID(ctx, id)
	}
	if err := u.Validate(s.now(), s.minLead); err != nil {
		return nil, err
	}
	return s.schedule.Update(ctx, id, u)
}

// Delete removes a pending post. If the reconciler archived the post just
// before this delete landed, that archive record is withdrawn so only the
// user's deletion takes effect.
//
// The post is gone once the schedule delete succeeds, so a failed withdrawal
// does not fail the call. It is logged with the post id; the leftover record
// can be removed through DeleteNotification.
func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	if err := s.schedule.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.notifications.DeleteBySource(context.WithoutCancel(ctx), id); err != nil {
		s.logger.Error("post deleted but its archive record could not be withdrawn",
			zap.String("post_id", id), zap.Error(err))
	}
	return nil
}

func (s *ScheduleService) Get(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	return s.schedule.GetByID(ctx, id)
}

func (s *ScheduleService) List(ctx context.Context) ([]*domain.ScheduledPost, error) {
	return s.schedule.List(ctx)
}

func (s *ScheduleService) ListByCategory(ctx context.Context, c domain.Category) ([]*domain.ScheduledPost, error) {
	if !c.IsValid() {
		return nil, domain.ErrInvalidCategory
	}
	return s.schedule.ListByCategory(ctx, c)
}

func (s *ScheduleService) ListNotifications(ctx context.Context) ([]*domain.ArchivedNotification, error) {
	return s.notifications.List(ctx)
}

func (s *ScheduleService) GetNotification(ctx context.Context, id string) (*domain.ArchivedNotification, error) {
	return s.notifications.GetByID(ctx, id)
}

func (s *ScheduleService) DeleteNotification(ctx context.Context, id string) error {
	return s.notifications.Delete(ctx, id)
}

// UploadAsset forwards a file to the asset host and returns its durable URL,
// ready to be used as a media reference.
func (s *ScheduleService) UploadAsset(ctx context.Context, filename string, size int64, r io.Reader) (string, error) {
	if s.uploader == nil {
		return "", domain.ErrAssetHostDisabled
	}
	if size == 0 {
		return "", domain.ErrEmptyUpload
	}
	url, err := s.uploader.Upload(ctx, filename, r)
	if err != nil {
		s.logger.Warn("asset upload failed", zap.String("filename", filename), zap.Error(err))
		return "", fmt.Errorf("%w: %w", domain.ErrAssetHostFailure, err)
	}
	return url, nil
}

func (s *ScheduleService) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.submitting[id]; busy {
		return false
	}
	s.submitting[id] = struct{}{}
	return true
}

func (s *ScheduleService) release(id string) {
	s.mu.Lock()
	delete(s.submitting, id)
	s.mu.Unlock()
}

func (s *ScheduleService) submit(ctx context.Context, p *domain.ScheduledPost) (string, error) {
	ref, err := s.publisher.Submit(ctx, p)
	s.onSubmit(err)
	if err != nil {
		s.logger.Warn("platform rejected post", zap.String("post_id", p.ID), zap.Error(err))
		return "", fmt.Errorf("%w: %w", domain.ErrPlatformFailure, err)
	}
	s.logger.Info("post submitted to platform", zap.String("post_id", p.ID), zap.String("external_ref", ref))
	return ref, nil
}
