package recipient

import "context"

// Directory is the read-only contact lookup used at notification creation
// time only; destinations are snapshotted, never re-fetched.
type Directory interface {
	GetByID(ctx context.Context, id int64) (*Recipient, error)
}
