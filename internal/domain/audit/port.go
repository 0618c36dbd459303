package audit

import (
	"context"
	"time"
)

type Repo interface {
	Append(ctx context.Context, e *Entry) error
	ListByNotification(ctx context.Context, notificationID string) ([]*Entry, error)

	// PurgeBefore deletes entries older than the horizon. Reserved for the
	// retention job; returns the number of rows removed.
	PurgeBefore(ctx context.Context, horizon time.Time) (int64, error)
}
