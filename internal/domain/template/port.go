package template

import (
	"context"

	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
)

type Repo interface {
	// GetActive returns the single active template for the pair, or
	// ErrNotFound when the category legitimately lacks one.
	GetActive(ctx context.Context, category notification.Category, channel notification.Channel) (*Template, error)

	// Upsert stores a new template version. When t.Active is set, the
	// previously active template for the pair is deactivated in the same
	// transaction.
	Upsert(ctx context.Context, t *Template) error
}
