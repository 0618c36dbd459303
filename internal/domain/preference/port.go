package preference

import "context"

type Repo interface {
	// GetOrCreate returns the recipient's preferences, inserting
	// all-enabled defaults when none exist yet.
	GetOrCreate(ctx context.Context, recipientID int64) (*Preference, error)

	Update(ctx context.Context, p *Preference) error
}
