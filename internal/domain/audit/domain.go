package audit

import "time"

type Kind string

const (
	KindCreated   Kind = "created"
	KindSent      Kind = "sent"
	KindDelivered Kind = "delivered"
	KindFailed    Kind = "failed"
	KindRetry     Kind = "retry"
	KindCancelled Kind = "cancelled"
)

// Entry is one append-only lifecycle record for a notification. Entries are
// never updated; only the retention job deletes them.
type Entry struct {
	ID             int64     `json:"id"`
	NotificationID string    `json:"notification_id"`
	Kind           Kind      `json:"kind"`
	Detail         string    `json:"detail"`
	At             time.Time `json:"at"`
}
