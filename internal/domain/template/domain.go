package template

import (
	"time"

	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
)

// Template holds the subject/body for one (category, channel) pair.
// At most one active template exists per pair; edits only affect renders
// performed after the edit.
type Template struct {
	ID        int64                 `json:"id"`
	Category  notification.Category `json:"category"`
	Channel   notification.Channel  `json:"channel"`
	Subject   string                `json:"subject"`
	Body      string                `json:"body"`
	Rich      bool                  `json:"rich"`
	Active    bool                  `json:"active"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}
