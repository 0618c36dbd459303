package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/CareOpsHQ/mednotify/internal/domain/audit"
)

var _ audit.Repo = (*AuditRepo)(nil)

type AuditRepo struct {
	db *DB
}

func NewAuditRepo(db *DB) *AuditRepo { return &AuditRepo{db: db} }

const (
	qAuditInsert = `
INSERT INTO notification_audit (notification_id, kind, detail)
VALUES ($1, $2, $3)
RETURNING id, at;`

	qAuditByNotification = `
SELECT id, notification_id, kind, detail, at
FROM notification_audit
WHERE notification_id = $1
ORDER BY id;`

	qAuditPurge = `
DELETE FROM notification_audit
WHERE at < $1;`
)

func (r *AuditRepo) Append(ctx context.Context, e *audit.Entry) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qAuditInsert, e.NotificationID, e.Kind, e.Detail).
		Scan(&e.ID, &e.At); err != nil {
		return fmt.Errorf("audit insert: %w", err)
	}
	return nil
}

func (r *AuditRepo) ListByNotification(ctx context.Context, notificationID string) ([]*audit.Entry, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qAuditByNotification, notificationID)
	if err != nil {
		return nil, fmt.Errorf("audit list: %w", err)
	}
	defer rows.Close()

	var out []*audit.Entry
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.ID, &e.NotificationID, &e.Kind, &e.Detail, &e.At); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *AuditRepo) PurgeBefore(ctx context.Context, horizon time.Time) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, qAuditPurge, horizon)
	if err != nil {
		return 0, fmt.Errorf("audit purge: %w", err)
	}
	return tag.RowsAffected(), nil
}
