package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/quicksched/internal/domain"
)

const postColumns = `id, category, body, publish_at, media_refs, external_ref, created_at, updated_at`

type pgScheduleRepository struct {
	pool *pgxpool.Pool
}

// NewPgScheduleRepository returns a ScheduleRepository backed by PostgreSQL.
func NewPgScheduleRepository(pool *pgxpool.Pool) ScheduleRepository {
	return &pgScheduleRepository{pool: pool}
}

func (r *pgScheduleRepository) Create(ctx context.Context, p *domain.ScheduledPost) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO scheduled_posts (`+postColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.Category, p.Body, p.PublishAt, mediaRefsOrEmpty(p.MediaRefs),
		p.ExternalRef, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scheduled post: %w", err)
	}
	return nil
}

func (r *pgScheduleRepository) GetByID(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	id, ok := pgID(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM scheduled_posts WHERE id = $1`, id)
	p, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return p, err
}

func (r *pgScheduleRepository) List(ctx context.Context) ([]*domain.ScheduledPost, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+postColumns+` FROM scheduled_posts ORDER BY publish_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list scheduled posts: %w", err)
	}
	defer rows.Close()
	return scanPosts(rows)
}

func (r *pgScheduleRepository) ListByCategory(ctx context.Context, c domain.Category) ([]*domain.ScheduledPost, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+postColumns+` FROM scheduled_posts
		WHERE category = $1
		ORDER BY publish_at ASC, id ASC`, c)
	if err != nil {
		return nil, fmt.Errorf("list scheduled posts by category: %w", err)
	}
	defer rows.Close()
	return scanPosts(rows)
}

func (r *pgScheduleRepository) ListPending(ctx context.Context) ([]*domain.ScheduledPost, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+postColumns+` FROM scheduled_posts
		WHERE external_ref IS NOT NULL AND external_ref <> ''
		ORDER BY publish_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending posts: %w", err)
	}
	defer rows.Close()
	return scanPosts(rows)
}

func (r *pgScheduleRepository) Update(ctx context.Context, id string, u domain.PostUpdate) (*domain.ScheduledPost, error) {
	id, ok := pgID(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	set, args := buildUpdateSet(u, func(n int) string { return fmt.Sprintf("$%d", n) })
	args = append(args, time.Now().UTC(), id)
	query := fmt.Sprintf(`
		UPDATE scheduled_posts SET %supdated_at = $%d
		WHERE id = $%d
		RETURNING `+postColumns, set, len(args)-1, len(args))

	p, err := scanPost(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update scheduled post: %w", err)
	}
	return p, nil
}

func (r *pgScheduleRepository) SetExternalRef(ctx context.Context, id, ref string) error {
	id, ok := pgID(id)
	if !ok {
		return domain.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_posts SET external_ref = $1, updated_at = $2
		WHERE id = $3 AND (external_ref IS NULL OR external_ref = '')`,
		ref, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set external ref: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Either the row is gone or the ref was already set.
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM scheduled_posts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check scheduled post: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrAlreadySubmitted
}

func (r *pgScheduleRepository) Delete(ctx context.Context, id string) error {
	id, ok := pgID(id)
	if !ok {
		return domain.ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM scheduled_posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete scheduled post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ---- helpers ----

// pgID canonicalises id for a UUID column. ok is false when id cannot name
// any row, so callers answer ErrNotFound instead of sending an unparsable
// value to the server.
func pgID(id string) (string, bool) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return u.String(), true
}

// scanPost reads a single scheduled post from any pgx row type.
func scanPost(row pgx.Row) (*domain.ScheduledPost, error) {
	var p domain.ScheduledPost
	err := row.Scan(
		&p.ID, &p.Category, &p.Body, &p.PublishAt, &p.MediaRefs,
		&p.ExternalRef, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.PublishAt = p.PublishAt.UTC()
	return &p, nil
}

func scanPosts(rows pgx.Rows) ([]*domain.ScheduledPost, error) {
	var result []*domain.ScheduledPost
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// buildUpdateSet renders the "col = $n, " assignments for the set fields of
// u. placeholder maps a 1-based argument index to the driver's syntax.
func buildUpdateSet(u domain.PostUpdate, placeholder func(int) string) (string, []any) {
	var b strings.Builder
	var args []any

	add := func(col string, val any) {
		args = append(args, val)
		fmt.Fprintf(&b, "%s = %s, ", col, placeholder(len(args)))
	}

	if u.Category != nil {
		add("category", *u.Category)
	}
	if u.Body != nil {
		add("body", strings.TrimSpace(*u.Body))
	}
	if u.PublishAt != nil {
		add("publish_at", domain.NormalizeInstant(*u.PublishAt))
	}
	if u.MediaRefs != nil {
		add("media_refs", mediaRefsOrEmpty(*u.MediaRefs))
	}
	return b.String(), args
}

func mediaRefsOrEmpty(refs []string) []string {
	if refs == nil {
		return []string{}
	}
	return refs
}
