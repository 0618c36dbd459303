package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
)

var _ notification.Repo = (*NotificationRepo)(nil)

type NotificationRepo struct{ db *DB }

func NewNotificationRepo(db *DB) *NotificationRepo { return &NotificationRepo{db: db} }

const notifColumns = `
id, recipient_id, category, channel, priority, status, subject, body, rich,
context_data, destination, scheduled_for, sent_at, delivered_at, attempts,
max_attempts, last_error, lease_until, created_at, updated_at`

const (
	qNotifInsert = `
INSERT INTO notifications
    (id, recipient_id, category, channel, priority, status, subject, body, rich,
     context_data, destination, scheduled_for, attempts, max_attempts)
VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, $8, $9, $10, $11, 0, $12)
RETURNING created_at, updated_at;`

	qNotifByID = `
SELECT ` + notifColumns + `
FROM notifications
WHERE id = $1;`

	// Claim: lease due pending rows, urgent first. SKIP LOCKED keeps
	// competing workers from blocking on each other; the lease keeps a
	// claimed row invisible to later ticks until it expires.
	qNotifClaim = `
WITH cand AS (
    SELECT id
    FROM notifications
    WHERE status = 'pending'
      AND scheduled_for <= now()
      AND (lease_until IS NULL OR lease_until < now())
    ORDER BY CASE priority
                 WHEN 'urgent' THEN 0
                 WHEN 'high'   THEN 1
                 WHEN 'normal' THEN 2
                 ELSE 3
             END,
             scheduled_for
    LIMIT $1
    FOR UPDATE SKIP LOCKED
), upd AS (
    UPDATE notifications n
    SET lease_until = now() + $2::interval, updated_at = now()
    FROM cand
    WHERE n.id = cand.id
    RETURNING n.id, n.recipient_id, n.category, n.channel, n.priority, n.status,
              n.subject, n.body, n.rich, n.context_data, n.destination,
              n.scheduled_for, n.sent_at, n.delivered_at, n.attempts,
              n.max_attempts, n.last_error, n.lease_until, n.created_at, n.updated_at
)
SELECT ` + notifColumns + ` FROM upd;`

	qNotifRelease = `
UPDATE notifications
SET lease_until = NULL, updated_at = now()
WHERE id = $1 AND status = 'pending';`

	qNotifMarkSent = `
UPDATE notifications
SET status = 'sent', sent_at = $2, last_error = '', lease_until = NULL, updated_at = now()
WHERE id = $1 AND status = 'pending';`

	qNotifMarkDelivered = `
UPDATE notifications
SET status = 'delivered', sent_at = $2, delivered_at = $3, last_error = '',
    lease_until = NULL, updated_at = now()
WHERE id = $1 AND status = 'pending';`

	qNotifMarkFailed = `
UPDATE notifications
SET status = 'failed', attempts = $2, last_error = $3, lease_until = NULL, updated_at = now()
WHERE id = $1 AND status = 'pending';`

	qNotifReschedule = `
UPDATE notifications
SET attempts = $2, scheduled_for = $3, last_error = $4, lease_until = NULL, updated_at = now()
WHERE id = $1 AND status = 'pending';`

	// Cancellation is only honored before any worker has touched the row.
	qNotifCancel = `
UPDATE notifications
SET status = 'cancelled', lease_until = NULL, updated_at = now()
WHERE id = $1
  AND status = 'pending'
  AND attempts = 0
  AND (lease_until IS NULL OR lease_until < now());`

	// Manual retry: back to pending, attempts counter preserved.
	qNotifResetForRetry = `
UPDATE notifications
SET status = 'pending', scheduled_for = $2, lease_until = NULL, updated_at = now()
WHERE id = $1 AND status = 'failed' AND attempts < max_attempts;`

	qNotifCountByStatus = `
SELECT status, count(*) FROM notifications GROUP BY status;`

	qNotifListInApp = `
SELECT ` + notifColumns + `
FROM notifications
WHERE recipient_id = $1 AND channel = 'in_app' AND status IN ('sent', 'delivered')
ORDER BY created_at DESC
LIMIT $2;`
)

func scanNotification(row pgx.Row, n *notification.Notification) error {
	if err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.Category,
		&n.Channel,
		&n.Priority,
		&n.Status,
		&n.Subject,
		&n.Body,
		&n.Rich,
		&n.ContextData,
		&n.Destination,
		&n.ScheduledFor,
		&n.SentAt,
		&n.DeliveredAt,
		&n.Attempts,
		&n.MaxAttempts,
		&n.LastError,
		&n.LeaseUntil,
		&n.CreatedAt,
		&n.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) Create(ctx context.Context, n *notification.Notification) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if n.MaxAttempts <= 0 {
		n.MaxAttempts = notification.DefaultMaxAttempts
	}
	n.Status = notification.StatusPending

	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qNotifInsert,
		n.ID,
		n.RecipientID,
		n.Category,
		n.Channel,
		n.Priority,
		n.Subject,
		n.Body,
		n.Rich,
		n.ContextData,
		n.Destination,
		n.ScheduledFor,
		n.MaxAttempts,
	).Scan(&n.CreatedAt, &n.UpdatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) GetByID(ctx context.Context, id string) (*notification.Notification, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var n notification.Notification
	if err := scanNotification(r.db.Pool.QueryRow(ctx, qNotifByID, id), &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepo) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	ttl := fmt.Sprintf("%f seconds", lease.Seconds())
	rows, err := r.db.Pool.Query(ctx, qNotifClaim, limit, ttl)
	if err != nil {
		return nil, fmt.Errorf("claim due: %w", err)
	}
	defer rows.Close()

	var out []*notification.Notification
	for rows.Next() {
		var n notification.Notification
		if err := scanNotification(rows, &n); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (r *NotificationRepo) Release(ctx context.Context, id string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()
	_, err := r.db.Pool.Exec(ctx, qNotifRelease, id)
	return err
}

func (r *NotificationRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	return r.exec1(ctx, qNotifMarkSent, id, at)
}

func (r *NotificationRepo) MarkDelivered(ctx context.Context, id string, sentAt, deliveredAt time.Time) error {
	return r.exec1(ctx, qNotifMarkDelivered, id, sentAt, deliveredAt)
}

func (r *NotificationRepo) MarkFailed(ctx context.Context, id string, attempts int, lastError string) error {
	return r.exec1(ctx, qNotifMarkFailed, id, attempts, lastError)
}

func (r *NotificationRepo) Reschedule(ctx context.Context, id string, attempts int, next time.Time, lastError string) error {
	return r.exec1(ctx, qNotifReschedule, id, attempts, next, lastError)
}

func (r *NotificationRepo) Cancel(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.Pool.Exec(ctx, qNotifCancel, id)
	if err != nil {
		return false, fmt.Errorf("cancel notification: %w", err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *NotificationRepo) ResetForRetry(ctx context.Context, id string, at time.Time) error {
	return r.exec1(ctx, qNotifResetForRetry, id, at)
}

func (r *NotificationRepo) CountByStatus(ctx context.Context) (map[notification.Status]int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qNotifCountByStatus)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	out := make(map[notification.Status]int64)
	for rows.Next() {
		var s notification.Status
		var c int64
		if err := rows.Scan(&s, &c); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[s] = c
	}
	return out, rows.Err()
}

func (r *NotificationRepo) ListInApp(ctx context.Context, recipientID int64, limit int) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qNotifListInApp, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list in-app: %w", err)
	}
	defer rows.Close()

	var out []*notification.Notification
	for rows.Next() {
		var n notification.Notification
		if err := scanNotification(rows, &n); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

// exec1 runs a conditional single-row update; zero rows affected means the
// row is not in the state the transition expects.
func (r *NotificationRepo) exec1(ctx context.Context, q string, args ...any) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
