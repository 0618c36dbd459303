package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
	"github.com/CareOpsHQ/mednotify/internal/domain/template"
)

var _ template.Repo = (*TemplateRepo)(nil)

type TemplateRepo struct{ db *DB }

func NewTemplateRepo(db *DB) *TemplateRepo { return &TemplateRepo{db: db} }

const (
	qTmplActive = `
SELECT id, category, channel, subject, body, rich, active, created_at, updated_at
FROM notification_templates
WHERE category = $1 AND channel = $2 AND active = TRUE;`

	qTmplDeactivate = `
UPDATE notification_templates
SET active = FALSE, updated_at = now()
WHERE category = $1 AND channel = $2 AND active = TRUE;`

	qTmplInsert = `
INSERT INTO notification_templates (category, channel, subject, body, rich, active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at, updated_at;`
)

func (r *TemplateRepo) GetActive(ctx context.Context, category notification.Category, channel notification.Channel) (*template.Template, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var t template.Template
	if err := r.db.Pool.QueryRow(ctx, qTmplActive, category, channel).Scan(
		&t.ID, &t.Category, &t.Channel, &t.Subject, &t.Body, &t.Rich, &t.Active,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get active template: %w", err)
	}
	return &t, nil
}

// Upsert stores a new template version. An active template displaces the
// previously active one for its (category, channel) pair inside a single
// transaction, preserving the at-most-one-active invariant (also enforced
// by a partial unique index).
func (r *TemplateRepo) Upsert(ctx context.Context, t *template.Template) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if t.Active {
		if _, err := tx.Exec(ctx, qTmplDeactivate, t.Category, t.Channel); err != nil {
			return fmt.Errorf("deactivate previous: %w", err)
		}
	}

	if err := tx.QueryRow(ctx, qTmplInsert,
		t.Category, t.Channel, t.Subject, t.Body, t.Rich, t.Active,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert template: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
