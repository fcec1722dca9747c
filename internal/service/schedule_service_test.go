package service_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/quicksched/internal/domain"
	"github.com/notifyhub/quicksched/internal/repository"
	"github.com/notifyhub/quicksched/internal/service"
)

type fakePublisher struct {
	ref   string
	err   error
	calls int

	// entered and release, when set, hold Submit until the test lets go.
	entered chan struct{}
	release chan struct{}
}

func (f *fakePublisher) Submit(_ context.Context, _ *domain.ScheduledPost) (string, error) {
	f.calls++
	if f.entered != nil {
		close(f.entered)
		<-f.release
	}
	return f.ref, f.err
}

type fakeUploader struct {
	url  string
	err  error
	body string
}

func (f *fakeUploader) Upload(_ context.Context, _ string, r io.Reader) (string, error) {
	b, _ := io.ReadAll(r)
	f.body = string(b)
	return f.url, f.err
}

type fixture struct {
	svc           *service.ScheduleService
	schedule      *repository.MockScheduleRepository
	notifications *repository.MockNotificationRepository
	publisher     *fakePublisher
	submits       []error
}

func newFixture(publisher *fakePublisher) *fixture {
	f := &fixture{
		schedule:      repository.NewMockScheduleRepository(),
		notifications: repository.NewMockNotificationRepository(),
		publisher:     publisher,
	}
	opts := service.Options{
		MinLead:  30 * time.Minute,
		OnSubmit: func(err error) { f.submits = append(f.submits, err) },
		Uploader: &fakeUploader{url: "https://assets.example.com/a.png"},
	}
	if publisher != nil {
		opts.Publisher = publisher
	}
	f.svc = service.NewScheduleService(f.schedule, f.notifications, zap.NewNop(), opts)
	return f
}

func validRequest() domain.CreatePostRequest {
	return domain.CreatePostRequest{
		Body:      "  Happy birthday!  ",
		PublishAt: time.Now().Add(2 * time.Hour),
		MediaRefs: []string{"https://cdn.example.com/cake.jpg"},
	}
}

func TestScheduleService_Create_SubmitsAndPersists(t *testing.T) {
	f := newFixture(&fakePublisher{ref: "page_1"})

	p, err := f.svc.Create(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ExternalRef == nil || *p.ExternalRef != "page_1" {
		t.Fatalf("expected external ref page_1, got %v", p.ExternalRef)
	}
	if p.Category != domain.CategoryGeneral {
		t.Fatalf("expected default category general, got %s", p.Category)
	}
	if p.Body != "Happy birthday!" {
		t.Fatalf("expected trimmed body, got %q", p.Body)
	}
	if p.PublishAt.Nanosecond()%int(time.Millisecond) != 0 {
		t.Fatal("expected publish_at truncated to milliseconds")
	}
	if f.schedule.Len() != 1 {
		t.Fatalf("expected 1 stored post, got %d", f.schedule.Len())
	}
	if len(f.submits) != 1 || f.submits[0] != nil {
		t.Fatalf("expected one successful submit observation, got %v", f.submits)
	}
}

func TestScheduleService_Create_PublisherFailurePersistsNothing(t *testing.T) {
	f := newFixture(&fakePublisher{err: errors.New("token expired")})

	_, err := f.svc.Create(context.Background(), validRequest())
	if !errors.Is(err, domain.ErrPlatformFailure) {
		t.Fatalf("expected ErrPlatformFailure, got %v", err)
	}
	if f.schedule.Len() != 0 {
		t.Fatal("nothing may be persisted when submission fails")
	}
}

func TestScheduleService_Create_WithoutPublisherStoresDraft(t *testing.T) {
	f := newFixture(nil)

	p, err := f.svc.Create(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.IsDraft() {
		t.Fatal("expected a draft when no publisher is configured")
	}
}

func TestScheduleService_Create_Validation(t *testing.T) {
	f := newFixture(&fakePublisher{ref: "page_1"})

	tests := []struct {
		name   string
		mutate func(*domain.CreatePostRequest)
		want   error
	}{
		{"empty body", func(r *domain.CreatePostRequest) { r.Body = "   " }, domain.ErrEmptyBody},
		{"too soon", func(r *domain.CreatePostRequest) { r.PublishAt = time.Now().Add(10 * time.Minute) }, domain.ErrPublishTimeTooSoon},
		{"past", func(r *domain.CreatePostRequest) { r.PublishAt = time.Now().Add(-time.Hour) }, domain.ErrPublishTimeTooSoon},
		{"bad category", func(r *domain.CreatePostRequest) { r.Category = "sale" }, domain.ErrInvalidCategory},
		{"relative media", func(r *domain.CreatePostRequest) { r.MediaRefs = []string{"cake.jpg"} }, domain.ErrInvalidMediaRef},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			if _, err := f.svc.Create(context.Background(), req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if f.publisher.calls != 0 {
		t.Fatal("invalid requests must never reach the platform")
	}
}

func TestScheduleService_Submit(t *testing.T) {
	pub := &fakePublisher{ref: "page_9"}
	f := newFixture(pub)
	ctx := context.Background()

	draft := &domain.ScheduledPost{
		ID:        "draft-1",
		Category:  domain.CategoryEvent,
		Body:      "Launch",
		PublishAt: time.Now().Add(time.Hour),
	}
	if err := f.schedule.Create(ctx, draft); err != nil {
		t.Fatal(err)
	}

	p, err := f.svc.Submit(ctx, "draft-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ExternalRef == nil || *p.ExternalRef != "page_9" {
		t.Fatalf("expected external ref page_9, got %v", p.ExternalRef)
	}

	if _, err := f.svc.Submit(ctx, "draft-1"); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	if _, err := f.svc.Submit(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if pub.calls != 1 {
		t.Fatalf("expected exactly one platform call, got %d", pub.calls)
	}
}

func TestScheduleService_Submit_ConcurrentCallsReachPlatformOnce(t *testing.T) {
	pub := &fakePublisher{ref: "page_9", entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(pub)
	ctx := context.Background()

	draft := &domain.ScheduledPost{
		ID:        "draft-1",
		Category:  domain.CategoryEvent,
		Body:      "Launch",
		PublishAt: time.Now().Add(time.Hour),
	}
	if err := f.schedule.Create(ctx, draft); err != nil {
		t.Fatal(err)
	}

	first := make(chan error, 1)
	go func() {
		_, err := f.svc.Submit(ctx, "draft-1")
		first <- err
	}()
	<-pub.entered

	if _, err := f.svc.Submit(ctx, "draft-1"); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("concurrent submit: expected ErrAlreadySubmitted, got %v", err)
	}

	close(pub.release)
	if err := <-first; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if pub.calls != 1 {
		t.Fatalf("expected exactly one platform call, got %d", pub.calls)
	}
}

func TestScheduleService_Submit_Disabled(t *testing.T) {
	f := newFixture(nil)
	if _, err := f.svc.Submit(context.Background(), "any"); !errors.Is(err, domain.ErrPublisherDisabled) {
		t.Fatalf("expected ErrPublisherDisabled, got %v", err)
	}
}

func TestScheduleService_Update(t *testing.T) {
	f := newFixture(&fakePublisher{ref: "page_1"})
	ctx := context.Background()

	p, err := f.svc.Create(ctx, validRequest())
	if err != nil {
		t.Fatal(err)
	}

	body := "Rescheduled"
	holiday := domain.CategoryHoliday
	updated, err := f.svc.Update(ctx, p.ID, domain.PostUpdate{Body: &body, Category: &holiday})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Body != body || updated.Category != holiday {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.ExternalRef == nil || *updated.ExternalRef != "page_1" {
		t.Fatal("update must keep the external ref")
	}

	soon := time.Now().Add(time.Minute)
	if _, err := f.svc.Update(ctx, p.ID, domain.PostUpdate{PublishAt: &soon}); !errors.Is(err, domain.ErrPublishTimeTooSoon) {
		t.Fatalf("expected ErrPublishTimeTooSoon, got %v", err)
	}
	if _, err := f.svc.Update(ctx, "missing", domain.PostUpdate{Body: &body}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScheduleService_DeleteWithdrawsArchive(t *testing.T) {
	f := newFixture(&fakePublisher{ref: "page_1"})
	ctx := context.Background()

	p, err := f.svc.Create(ctx, validRequest())
	if err != nil {
		t.Fatal(err)
	}
	// The reconciler archived the post but has not deleted it yet.
	if _, err := f.notifications.Archive(ctx, domain.NewArchivedNotification("n-1", p, time.Now())); err != nil {
		t.Fatal(err)
	}

	if err := f.svc.Delete(ctx, p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.notifications.CountBySource(p.ID) != 0 {
		t.Fatal("archive of a user-deleted post must be withdrawn")
	}
	if err := f.svc.Delete(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestScheduleService_DeleteSucceedsWhenWithdrawalFails(t *testing.T) {
	f := newFixture(&fakePublisher{ref: "page_1"})
	ctx := context.Background()

	p, err := f.svc.Create(ctx, validRequest())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.notifications.Archive(ctx, domain.NewArchivedNotification("n-1", p, time.Now())); err != nil {
		t.Fatal(err)
	}
	f.notifications.DeleteBySourceErr = errors.New("connection reset")

	if err := f.svc.Delete(ctx, p.ID); err != nil {
		t.Fatalf("delete must report the post as removed, got %v", err)
	}
	if _, err := f.svc.Get(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected post to be gone, got %v", err)
	}

	f.notifications.DeleteBySourceErr = nil
	if err := f.svc.DeleteNotification(ctx, "n-1"); err != nil {
		t.Fatalf("leftover archive record must be removable: %v", err)
	}
}

func TestScheduleService_ListByCategory(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	req := validRequest()
	req.Category = domain.CategoryBirthday
	if _, err := f.svc.Create(ctx, req); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Create(ctx, validRequest()); err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.ListByCategory(ctx, domain.CategoryBirthday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 birthday post, got %d", len(got))
	}
	if _, err := f.svc.ListByCategory(ctx, "nope"); !errors.Is(err, domain.ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestScheduleService_Notifications(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	src := &domain.ScheduledPost{ID: "p-1", Category: domain.CategoryGeneral, Body: "x", PublishAt: time.Now()}
	if _, err := f.notifications.Archive(ctx, domain.NewArchivedNotification("n-1", src, time.Now())); err != nil {
		t.Fatal(err)
	}

	list, err := f.svc.ListNotifications(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected 1 notification, got %d (err=%v)", len(list), err)
	}
	if _, err := f.svc.GetNotification(ctx, "n-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.svc.DeleteNotification(ctx, "n-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.GetNotification(ctx, "n-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScheduleService_UploadAsset(t *testing.T) {
	f := newFixture(nil)

	url, err := f.svc.UploadAsset(context.Background(), "a.png", 6, strings.NewReader("pixels"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://assets.example.com/a.png" {
		t.Fatalf("unexpected url %q", url)
	}
	if _, err := f.svc.UploadAsset(context.Background(), "a.png", 0, strings.NewReader("")); !errors.Is(err, domain.ErrEmptyUpload) {
		t.Fatalf("expected ErrEmptyUpload, got %v", err)
	}

	failing := service.NewScheduleService(f.schedule, f.notifications, zap.NewNop(), service.Options{
		Uploader: &fakeUploader{err: errors.New("quota exceeded")},
	})
	if _, err := failing.UploadAsset(context.Background(), "a.png", 6, strings.NewReader("pixels")); !errors.Is(err, domain.ErrAssetHostFailure) {
		t.Fatalf("expected ErrAssetHostFailure, got %v", err)
	}

	disabled := service.NewScheduleService(f.schedule, f.notifications, zap.NewNop(), service.Options{})
	if _, err := disabled.UploadAsset(context.Background(), "a.png", 6, strings.NewReader("pixels")); !errors.Is(err, domain.ErrAssetHostDisabled) {
		t.Fatalf("expected ErrAssetHostDisabled, got %v", err)
	}
}
