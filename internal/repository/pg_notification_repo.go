package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/quicksched/internal/domain"
)

const notificationColumns = `id, source_id, category, body, publish_at, media_refs, archived_at`

type pgNotificationRepository struct {
	pool *pgxpool.Pool
}

// NewPgNotificationRepository returns a NotificationRepository backed by PostgreSQL.
func NewPgNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &pgNotificationRepository{pool: pool}
}

func (r *pgNotificationRepository) Archive(ctx context.Context, n *domain.ArchivedNotification) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO posted_notifications (`+notificationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (source_id) DO NOTHING`,
		n.ID, n.SourceID, n.Category, n.Body, n.PublishAt,
		mediaRefsOrEmpty(n.MediaRefs), n.ArchivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert posted notification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgNotificationRepository) GetByID(ctx context.Context, id string) (*domain.ArchivedNotification, error) {
	id, ok := pgID(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM posted_notifications WHERE id = $1`, id)
	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return n, err
}

func (r *pgNotificationRepository) List(ctx context.Context) ([]*domain.ArchivedNotification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+` FROM posted_notifications
		ORDER BY archived_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list posted notifications: %w", err)
	}
	defer rows.Close()

	var result []*domain.ArchivedNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *pgNotificationRepository) Delete(ctx context.Context, id string) error {
	id, ok := pgID(id)
	if !ok {
		return domain.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM posted_notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete posted notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgNotificationRepository) DeleteBySource(ctx context.Context, sourceID string) error {
	sourceID, ok := pgID(sourceID)
	if !ok {
		return nil
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM posted_notifications WHERE source_id = $1`, sourceID); err != nil {
		return fmt.Errorf("delete posted notification by source: %w", err)
	}
	return nil
}

func scanNotification(row pgx.Row) (*domain.ArchivedNotification, error) {
	var n domain.ArchivedNotification
	err := row.Scan(
		&n.ID, &n.SourceID, &n.Category, &n.Body, &n.PublishAt,
		&n.MediaRefs, &n.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
