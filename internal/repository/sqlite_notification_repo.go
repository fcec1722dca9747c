package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/notifyhub/quicksched/internal/domain"
)

type sqliteNotificationRepository struct {
	db *sql.DB
}

// NewSQLiteNotificationRepository returns a NotificationRepository backed by SQLite.
func NewSQLiteNotificationRepository(db *sql.DB) NotificationRepository {
	return &sqliteNotificationRepository{db: db}
}

func (r *sqliteNotificationRepository) Archive(ctx context.Context, n *domain.ArchivedNotification) (bool, error) {
	refs, err := encodeRefs(n.MediaRefs)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO posted_notifications (`+notificationColumns+`)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT (source_id) DO NOTHING`,
		n.ID, n.SourceID, string(n.Category), n.Body, n.PublishAt.UnixMilli(),
		refs, n.ArchivedAt.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("insert posted notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert posted notification: %w", err)
	}
	return affected == 1, nil
}

func (r *sqliteNotificationRepository) GetByID(ctx context.Context, id string) (*domain.ArchivedNotification, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM posted_notifications WHERE id = ?`, id)
	n, err := scanSQLiteNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return n, err
}

func (r *sqliteNotificationRepository) List(ctx context.Context) ([]*domain.ArchivedNotification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM posted_notifications
		ORDER BY archived_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list posted notifications: %w", err)
	}
	defer rows.Close()

	var result []*domain.ArchivedNotification
	for rows.Next() {
		n, err := scanSQLiteNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *sqliteNotificationRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM posted_notifications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete posted notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *sqliteNotificationRepository) DeleteBySource(ctx context.Context, sourceID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM posted_notifications WHERE source_id = ?`, sourceID); err != nil {
		return fmt.Errorf("delete posted notification by source: %w", err)
	}
	return nil
}

func scanSQLiteNotification(row rowScanner) (*domain.ArchivedNotification, error) {
	var (
		n                     domain.ArchivedNotification
		category, refs        string
		publishAt, archivedAt int64
	)
	if err := row.Scan(&n.ID, &n.SourceID, &category, &n.Body, &publishAt, &refs, &archivedAt); err != nil {
		return nil, err
	}
	n.Category = domain.Category(category)
	n.PublishAt = time.UnixMilli(publishAt).UTC()
	n.ArchivedAt = time.UnixMilli(archivedAt).UTC()
	if err := json.Unmarshal([]byte(refs), &n.MediaRefs); err != nil {
		return nil, fmt.Errorf("decode media refs: %w", err)
	}
	return &n, nil
}
