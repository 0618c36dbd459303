package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CareOpsHQ/mednotify/internal/domain/device"

	"github.com/jackc/pgx/v5"
)

var _ device.Repo = (*DeviceRepo)(nil)

type DeviceRepo struct {
	db *DB
}

func NewDeviceRepo(db *DB) *DeviceRepo { return &DeviceRepo{db: db} }

const (
	qDeviceUpsert = `
INSERT INTO push_devices (recipient_id, token, device_type, active)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (token) DO UPDATE
SET recipient_id = EXCLUDED.recipient_id,
    device_type  = EXCLUDED.device_type,
    active       = TRUE,
    updated_at   = NOW()
RETURNING id, recipient_id, token, device_type, active, created_at, updated_at;`

	qDeviceListActive = `
SELECT id, recipient_id, token, device_type, active, created_at, updated_at
FROM push_devices
WHERE recipient_id = $1 AND active
ORDER BY id;`

	qDeviceDeactivate = `
UPDATE push_devices
SET active = FALSE, updated_at = NOW()
WHERE id = $1;`

	qDeviceDeactivateByToken = `
UPDATE push_devices
SET active = FALSE, updated_at = NOW()
WHERE token = $1;`
)

func (r *DeviceRepo) Register(ctx context.Context, d *device.Device) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.Pool.QueryRow(ctx, qDeviceUpsert, d.RecipientID, d.Token, d.DeviceType).
		Scan(&d.ID, &d.RecipientID, &d.Token, &d.DeviceType, &d.Active, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return fmt.Errorf("device upsert: %w", err)
	}
	return nil
}

func (r *DeviceRepo) ListActive(ctx context.Context, recipientID int64) ([]*device.Device, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qDeviceListActive, recipientID)
	if err != nil {
		return nil, fmt.Errorf("device list: %w", err)
	}
	defer rows.Close()

	var out []*device.Device
	for rows.Next() {
		var d device.Device
		if err := scanDevice(rows, &d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (r *DeviceRepo) Deactivate(ctx context.Context, id int64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, qDeviceDeactivate, id); err != nil {
		return fmt.Errorf("device deactivate: %w", err)
	}
	return nil
}

func (r *DeviceRepo) DeactivateByToken(ctx context.Context, token string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, qDeviceDeactivateByToken, token); err != nil {
		return fmt.Errorf("device deactivate by token: %w", err)
	}
	return nil
}

func scanDevice(row pgx.Row, out *device.Device) error {
	var created, updated time.Time
	if err := row.Scan(&out.ID, &out.RecipientID, &out.Token, &out.DeviceType, &out.Active, &created, &updated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan device: %w", err)
	}
	out.CreatedAt = created
	out.UpdatedAt = updated
	return nil
}
