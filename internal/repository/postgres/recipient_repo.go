package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/CareOpsHQ/mednotify/internal/domain/recipient"

	"github.com/jackc/pgx/v5"
)

var _ recipient.Directory = (*RecipientRepo)(nil)

type RecipientRepo struct {
	db *DB
}

func NewRecipientRepo(db *DB) *RecipientRepo { return &RecipientRepo{db: db} }

const qRecipientByID = `
SELECT id, full_name, email, phone, created_at
FROM recipients
WHERE id = $1;`

func (r *RecipientRepo) GetByID(ctx context.Context, id int64) (*recipient.Recipient, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var rec recipient.Recipient
	if err := r.db.Pool.QueryRow(ctx, qRecipientByID, id).
		Scan(&rec.ID, &rec.FullName, &rec.Email, &rec.Phone, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("recipient by id: %w", err)
	}
	return &rec, nil
}
