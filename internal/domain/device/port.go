package device

import "context"

type Repo interface {
	// Register stores the token, reactivating it if the same token was
	// registered before.
	Register(ctx context.Context, d *Device) error

	ListActive(ctx context.Context, recipientID int64) ([]*Device, error)

	// Deactivate is idempotent: deactivating an already-inactive device is
	// a no-op.
	Deactivate(ctx context.Context, id int64) error
	DeactivateByToken(ctx context.Context, token string) error
}
