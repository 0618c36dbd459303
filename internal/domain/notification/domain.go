package notification

import (
	"time"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelInApp Channel = "in_app"
)

func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp}
}

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp:
		return true
	}
	return false
}

// Category is the closed set of business reasons a notification exists.
// Producers and the template store must agree on these names.
type Category string

const (
	CategoryAppointmentConfirmation Category = "appointment_confirmation"
	CategoryAppointmentReminder     Category = "appointment_reminder"
	CategoryAppointmentCancellation Category = "appointment_cancellation"
	CategoryAppointmentRescheduled  Category = "appointment_rescheduled"
	CategoryPrescriptionReady       Category = "prescription_ready"
	CategoryLabResultsReady         Category = "lab_results_ready"
	CategoryEmergencyAlert          Category = "emergency_alert"
)

func Categories() []Category {
	return []Category{
		CategoryAppointmentConfirmation,
		CategoryAppointmentReminder,
		CategoryAppointmentCancellation,
		CategoryAppointmentRescheduled,
		CategoryPrescriptionReady,
		CategoryLabResultsReady,
		CategoryEmergencyAlert,
	}
}

func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// BypassesQuietHours reports whether this priority is delivered even inside
// the recipient's quiet-hours window. This is the one place priority
// overrides a user preference.
func (p Priority) BypassesQuietHours() bool {
	return p == PriorityHigh || p == PriorityUrgent
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

const DefaultMaxAttempts = 3

type Notification struct {
	ID          string            `json:"id"`
	RecipientID int64             `json:"recipient_id"`
	Category    Category          `json:"category"`
	Channel     Channel           `json:"channel"`
	Priority    Priority          `json:"priority"`
	Status      Status            `json:"status"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	Rich        bool              `json:"rich"`
	ContextData map[string]string `json:"context_data"`

	// Destination is snapshotted at creation time so later changes to the
	// recipient's contact info do not retroactively alter in-flight rows.
	Destination string `json:"destination"`

	ScheduledFor time.Time  `json:"scheduled_for"`
	SentAt       *time.Time `json:"sent_at"`
	DeliveredAt  *time.Time `json:"delivered_at"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	LastError    string     `json:"last_error"`
	LeaseUntil   *time.Time `json:"lease_until"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
