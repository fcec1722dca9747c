package repository

import (
	"context"

	"github.com/notifyhub/quicksched/internal/domain"
)

// ScheduleRepository persists pending scheduled posts.
// Every single-row operation is atomic on its own; Update, SetExternalRef
// and Delete report domain.ErrNotFound when the id no longer exists.
//
// The pgx implementation is in pg_schedule_repo.go, the SQLite one in
// sqlite_schedule_repo.go. Tests use mock_schedule_repo.go.
type ScheduleRepository interface {
	Create(ctx context.Context, p *domain.ScheduledPost) error
	GetByID(ctx context.Context, id string) (*domain.ScheduledPost, error)
	List(ctx context.Context) ([]*domain.ScheduledPost, error)
	ListByCategory(ctx context.Context, c domain.Category) ([]*domain.ScheduledPost, error)
	// ListPending returns a snapshot of every post that carries an external
	// ref, ordered by publish time.
	ListPending(ctx context.Context) ([]*domain.ScheduledPost, error)
	Update(ctx context.Context, id string, u domain.PostUpdate) (*domain.ScheduledPost, error)
	// SetExternalRef stores ref on a draft. It fails with
	// domain.ErrAlreadySubmitted if a ref is already present.
	SetExternalRef(ctx context.Context, id, ref string) error
	Delete(ctx context.Context, id string) error
}

// NotificationRepository persists the archive of published posts.
type NotificationRepository interface {
	// Archive inserts n unless a record with the same SourceID exists.
	// created is false when the record was already there.
	Archive(ctx context.Context, n *domain.ArchivedNotification) (created bool, err error)
	GetByID(ctx context.Context, id string) (*domain.ArchivedNotification, error)
	List(ctx context.Context) ([]*domain.ArchivedNotification, error)
	Delete(ctx context.Context, id string) error
	// DeleteBySource removes the record archived from sourceID, if any.
	DeleteBySource(ctx context.Context, sourceID string) error
}
