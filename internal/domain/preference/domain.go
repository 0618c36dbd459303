package preference

import (
	"time"

	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
)

// Preference is one row per recipient, created lazily with all-enabled
// defaults the first time it is needed.
type Preference struct {
	RecipientID  int64 `json:"recipient_id"`
	EmailEnabled bool  `json:"email_enabled"`
	SMSEnabled   bool  `json:"sms_enabled"`
	PushEnabled  bool  `json:"push_enabled"`
	InAppEnabled bool  `json:"in_app_enabled"`

	// Categories maps category name to a toggle. A category absent from the
	// map is enabled.
	Categories map[notification.Category]bool `json:"categories"`

	// QuietStart/QuietEnd are "HH:MM" local times; both empty means no
	// quiet-hours window. The window may wrap midnight (start > end).
	QuietStart string `json:"quiet_start"`
	QuietEnd   string `json:"quiet_end"`

	Language  string    `json:"language"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func Defaults(recipientID int64) *Preference {
	return &Preference{
		RecipientID:  recipientID,
		EmailEnabled: true,
		SMSEnabled:   true,
		PushEnabled:  true,
		InAppEnabled: true,
		Categories:   map[notification.Category]bool{},
		Language:     "en",
	}
}

func (p *Preference) ChannelEnabled(c notification.Channel) bool {
	switch c {
	case notification.ChannelEmail:
		return p.EmailEnabled
	case notification.ChannelSMS:
		return p.SMSEnabled
	case notification.ChannelPush:
		return p.PushEnabled
	case notification.ChannelInApp:
		return p.InAppEnabled
	}
	return false
}

func (p *Preference) CategoryEnabled(c notification.Category) bool {
	enabled, ok := p.Categories[c]
	if !ok {
		return true
	}
	return enabled
}

// Patch carries partial preference updates; nil fields are left untouched.
type Patch struct {
	EmailEnabled *bool
	SMSEnabled   *bool
	PushEnabled  *bool
	InAppEnabled *bool
	Categories   map[notification.Category]bool
	QuietStart   *string
	QuietEnd     *string
	Language     *string
}
