// Package ingest consumes platform business events and turns them into
// notification creation calls. The event type set is closed and versioned
// together with the category enumeration.
package ingest

import (
	"time"

	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
)

// Event is the JSON payload platform producers publish. Data carries the
// template context (patient name, appointment time, ward, ...).
type Event struct {
	Type         string            `json:"type"`
	RecipientID  int64             `json:"recipient_id"`
	Priority     string            `json:"priority,omitempty"`
	ScheduledFor *time.Time        `json:"scheduled_for,omitempty"`
	Data         map[string]string `json:"data"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

var eventCategories = map[string]notification.Category{
	"appointment.booked":       notification.CategoryAppointmentConfirmation,
	"appointment.reminder_due": notification.CategoryAppointmentReminder,
	"appointment.cancelled":    notification.CategoryAppointmentCancellation,
	"appointment.rescheduled":  notification.CategoryAppointmentRescheduled,
	"prescription.ready":       notification.CategoryPrescriptionReady,
	"lab.results_ready":        notification.CategoryLabResultsReady,
	"emergency.alert":          notification.CategoryEmergencyAlert,
}

// categoryFor maps an event type to its notification category.
func categoryFor(eventType string) (notification.Category, bool) {
	c, ok := eventCategories[eventType]
	return c, ok
}

// priorityFor defaults emergency alerts to urgent; everything else is
// normal unless the producer says otherwise.
func priorityFor(ev *Event, cat notification.Category) notification.Priority {
	if ev.Priority != "" {
		return notification.Priority(ev.Priority)
	}
	if cat == notification.CategoryEmergencyAlert {
		return notification.PriorityUrgent
	}
	return notification.PriorityNormal
}
