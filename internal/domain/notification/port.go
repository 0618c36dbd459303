package notification

import (
	"context"
	"time"
)

type Repo interface {
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id string) (*Notification, error)

	// ClaimDue atomically leases up to limit due pending notifications,
	// ordered by priority (urgent first) then scheduled_for. A row whose
	// lease has expired is claimable again; at most one caller holds a
	// given row's lease at a time.
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*Notification, error)

	// Release clears the lease without recording an attempt. Used for
	// quiet-hours deferral.
	Release(ctx context.Context, id string) error

	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkDelivered(ctx context.Context, id string, sentAt, deliveredAt time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, lastError string) error

	// Reschedule records a failed attempt and pushes scheduled_for forward;
	// the row stays pending.
	Reschedule(ctx context.Context, id string, attempts int, next time.Time, lastError string) error

	// Cancel transitions a pending, never-attempted, unclaimed row to
	// cancelled. Returns false when the row was not cancellable.
	Cancel(ctx context.Context, id string) (bool, error)

	// ResetForRetry returns a failed row to pending without resetting the
	// attempt counter. Fails with ErrNotFound when the row is not failed or
	// its attempts ceiling is already reached.
	ResetForRetry(ctx context.Context, id string, at time.Time) error

	CountByStatus(ctx context.Context) (map[Status]int64, error)
	ListInApp(ctx context.Context, recipientID int64, limit int) ([]*Notification, error)
}
