package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
	"github.com/CareOpsHQ/mednotify/internal/domain/preference"
)

var _ preference.Repo = (*PreferenceRepo)(nil)

type PreferenceRepo struct{ db *DB }

func NewPreferenceRepo(db *DB) *PreferenceRepo { return &PreferenceRepo{db: db} }

const (
	qPrefDefaultInsert = `
INSERT INTO notification_preferences
    (recipient_id, email_enabled, sms_enabled, push_enabled, in_app_enabled,
     categories, quiet_start, quiet_end, language)
VALUES ($1, TRUE, TRUE, TRUE, TRUE, '{}'::jsonb, '', '', 'en')
ON CONFLICT (recipient_id) DO NOTHING;`

	qPrefByRecipient = `
SELECT recipient_id, email_enabled, sms_enabled, push_enabled, in_app_enabled,
       categories, quiet_start, quiet_end, language, created_at, updated_at
FROM notification_preferences
WHERE recipient_id = $1;`

	qPrefUpdate = `
UPDATE notification_preferences
SET email_enabled  = $2,
    sms_enabled    = $3,
    push_enabled   = $4,
    in_app_enabled = $5,
    categories     = $6,
    quiet_start    = $7,
    quiet_end      = $8,
    language       = $9,
    updated_at     = now()
WHERE recipient_id = $1
RETURNING updated_at;`
)

// GetOrCreate lazily inserts all-enabled defaults the first time a
// recipient's preferences are needed.
func (r *PreferenceRepo) GetOrCreate(ctx context.Context, recipientID int64) (*preference.Preference, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, qPrefDefaultInsert, recipientID); err != nil {
		return nil, fmt.Errorf("insert default preferences: %w", err)
	}

	var p preference.Preference
	if err := r.db.Pool.QueryRow(ctx, qPrefByRecipient, recipientID).Scan(
		&p.RecipientID, &p.EmailEnabled, &p.SMSEnabled, &p.PushEnabled, &p.InAppEnabled,
		&p.Categories, &p.QuietStart, &p.QuietEnd, &p.Language,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	if p.Categories == nil {
		p.Categories = map[notification.Category]bool{}
	}
	return &p, nil
}

func (r *PreferenceRepo) Update(ctx context.Context, p *preference.Preference) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.Pool.QueryRow(ctx, qPrefUpdate,
		p.RecipientID, p.EmailEnabled, p.SMSEnabled, p.PushEnabled, p.InAppEnabled,
		p.Categories, p.QuietStart, p.QuietEnd, p.Language,
	).Scan(&p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update preferences: %w", err)
	}
	return nil
}
