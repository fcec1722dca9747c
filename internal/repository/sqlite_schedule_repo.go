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

type sqliteScheduleRepository struct {
	db *sql.DB
}

// NewSQLiteScheduleRepository returns a ScheduleRepository backed by a
// SQLite database opened with db.OpenSQLite. Instants are stored as Unix
// milliseconds, media refs as a JSON array.
func NewSQLiteScheduleRepository(db *sql.DB) ScheduleRepository {
	return &sqliteScheduleRepository{db: db}
}

func (r *sqliteScheduleRepository) Create(ctx context.Context, p *domain.ScheduledPost) error {
	refs, err := encodeRefs(p.MediaRefs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scheduled_posts (`+postColumns+`)
		VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, string(p.Category), p.Body, p.PublishAt.UnixMilli(), refs,
		nullableRef(p.ExternalRef), p.CreatedAt.UnixMilli(), p.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert scheduled post: %w", err)
	}
	return nil
}

func (r *sqliteScheduleRepository) GetByID(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM scheduled_posts WHERE id = ?`, id)
	p, err := scanSQLitePost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return p, err
}

func (r *sqliteScheduleRepository) List(ctx context.Context) ([]*domain.ScheduledPost, error) {
	return r.query(ctx, `SELECT `+postColumns+` FROM scheduled_posts ORDER BY publish_at ASC, id ASC`)
}

func (r *sqliteScheduleRepository) ListByCategory(ctx context.Context, c domain.Category) ([]*domain.ScheduledPost, error) {
	return r.query(ctx, `
		SELECT `+postColumns+` FROM scheduled_posts
		WHERE category = ?
		ORDER BY publish_at ASC, id ASC`, string(c))
}

func (r *sqliteScheduleRepository) ListPending(ctx context.Context) ([]*domain.ScheduledPost, error) {
	return r.query(ctx, `
		SELECT `+postColumns+` FROM scheduled_posts
		WHERE external_ref IS NOT NULL AND external_ref <> ''
		ORDER BY publish_at ASC, id ASC`)
}

func (r *sqliteScheduleRepository) Update(ctx context.Context, id string, u domain.PostUpdate) (*domain.ScheduledPost, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	p, err := scanSQLitePost(tx.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM scheduled_posts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	u.Apply(p)
	p.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	refs, err := encodeRefs(p.MediaRefs)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE scheduled_posts
		SET category = ?, body = ?, publish_at = ?, media_refs = ?, updated_at = ?
		WHERE id = ?`,
		string(p.Category), p.Body, p.PublishAt.UnixMilli(), refs, p.UpdatedAt.UnixMilli(), id,
	); err != nil {
		return nil, fmt.Errorf("update scheduled post: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return p, nil
}

func (r *sqliteScheduleRepository) SetExternalRef(ctx context.Context, id, ref string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_posts SET external_ref = ?, updated_at = ?
		WHERE id = ? AND (external_ref IS NULL OR external_ref = '')`,
		ref, time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("set external ref: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM scheduled_posts WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check scheduled post: %w", err)
	}
	return domain.ErrAlreadySubmitted
}

func (r *sqliteScheduleRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scheduled_posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete scheduled post: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *sqliteScheduleRepository) query(ctx context.Context, query string, args ...any) ([]*domain.ScheduledPost, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scheduled posts: %w", err)
	}
	defer rows.Close()

	var result []*domain.ScheduledPost
	for rows.Next() {
		p, err := scanSQLitePost(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePost(row rowScanner) (*domain.ScheduledPost, error) {
	var (
		p                               domain.ScheduledPost
		category, refs                  string
		externalRef                     sql.NullString
		publishAt, createdAt, updatedAt int64
	)
	if err := row.Scan(&p.ID, &category, &p.Body, &publishAt, &refs, &externalRef, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Category = domain.Category(category)
	p.PublishAt = time.UnixMilli(publishAt).UTC()
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	p.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if externalRef.Valid {
		ref := externalRef.String
		p.ExternalRef = &ref
	}
	if err := json.Unmarshal([]byte(refs), &p.MediaRefs); err != nil {
		return nil, fmt.Errorf("decode media refs: %w", err)
	}
	return &p, nil
}

func encodeRefs(refs []string) (string, error) {
	b, err := json.Marshal(mediaRefsOrEmpty(refs))
	if err != nil {
		return "", fmt.Errorf("encode media refs: %w", err)
	}
	return string(b), nil
}

func nullableRef(ref *string) any {
	if ref == nil || *ref == "" {
		return nil
	}
	return *ref
}
