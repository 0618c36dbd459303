// Package notify is the creation-side surface of the notification core: the
// factory, cancellation, manual retry, device registration, preference and
// template administration. Delivery itself belongs to the dispatcher.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/CareOpsHQ/mednotify/internal/domain/audit"
	"github.com/CareOpsHQ/mednotify/internal/domain/device"
	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
	"github.com/CareOpsHQ/mednotify/internal/domain/preference"
	"github.com/CareOpsHQ/mednotify/internal/domain/recipient"
	"github.com/CareOpsHQ/mednotify/internal/domain/template"
	"github.com/CareOpsHQ/mednotify/internal/prefs"
	"github.com/CareOpsHQ/mednotify/internal/render"
	"github.com/CareOpsHQ/mednotify/internal/repository/postgres"
)

// ValidationError is a creation-time configuration error, rejected
// synchronously and never stored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type Service struct {
	Notifs    notification.Repo
	Templates template.Repo
	PrefRepo  preference.Repo
	Resolver  *prefs.Resolver
	Devices   device.Repo
	Audit     audit.Repo
	Directory recipient.Directory
	Tx        postgres.Transactor
	Clock     notification.Clock
	Log       *zap.Logger
}

type CreateRequest struct {
	RecipientID int64
	Category    notification.Category
	ContextData map[string]string
	Priority    notification.Priority

	// ScheduledFor defaults to now; zero means immediate.
	ScheduledFor time.Time

	// Channels, when non-empty, bypasses the preference resolver. Used for
	// system-triggered tests and broadcasts.
	Channels []notification.Channel

	// MaxAttempts defaults to notification.DefaultMaxAttempts when zero.
	MaxAttempts int
}

// Create renders and stores one pending notification per enabled channel. A
// channel without an active template is skipped silently; an empty result is
// a valid outcome, not an error.
func (s *Service) Create(ctx context.Context, req CreateRequest) ([]*notification.Notification, error) {
	if !req.Category.Valid() {
		return nil, &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", req.Category)}
	}
	if req.Priority == "" {
		req.Priority = notification.PriorityNormal
	}
	if !req.Priority.Valid() {
		return nil, &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", req.Priority)}
	}
	for _, c := range req.Channels {
		if !c.Valid() {
			return nil, &ValidationError{Field: "channels", Reason: fmt.Sprintf("unknown channel %q", c)}
		}
	}

	tr := otel.Tracer("notify.service")
	ctx, span := tr.Start(ctx, "notify.create")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("recipient.id", req.RecipientID),
		attribute.String("category", string(req.Category)),
		attribute.String("priority", string(req.Priority)),
	)

	channels := req.Channels
	if len(channels) == 0 {
		var err error
		channels, err = s.Resolver.EnabledChannels(ctx, req.RecipientID, req.Category)
		if err != nil {
			return nil, fmt.Errorf("resolve channels: %w", err)
		}
	}
	if len(channels) == 0 {
		span.SetAttributes(attribute.Int("created", 0))
		return nil, nil
	}

	rec, err := s.Directory.GetByID(ctx, req.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("recipient lookup: %w", err)
	}

	scheduled := req.ScheduledFor
	if scheduled.IsZero() {
		scheduled = s.Clock.Now()
	}

	var out []*notification.Notification
	for _, ch := range channels {
		tmpl, err := s.Templates.GetActive(ctx, req.Category, ch)
		if err != nil {
			if errors.Is(err, postgres.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("template lookup (%s/%s): %w", req.Category, ch, err)
		}

		dest, err := s.destination(ctx, rec, ch)
		if err != nil {
			return nil, err
		}

		out = append(out, &notification.Notification{
			ID:           uuid.NewString(),
			RecipientID:  req.RecipientID,
			Category:     req.Category,
			Channel:      ch,
			Priority:     req.Priority,
			Subject:      render.Render(tmpl.Subject, req.ContextData),
			Body:         render.Render(tmpl.Body, req.ContextData),
			Rich:         tmpl.Rich,
			ContextData:  req.ContextData,
			Destination:  dest,
			ScheduledFor: scheduled,
			MaxAttempts:  req.MaxAttempts,
		})
	}
	if len(out) == 0 {
		span.SetAttributes(attribute.Int("created", 0))
		return nil, nil
	}

	err = s.Tx.WithTx(ctx, func(txCtx context.Context) error {
		for _, n := range out {
			if err := s.Notifs.Create(txCtx, n); err != nil {
				return fmt.Errorf("store notification: %w", err)
			}
			if err := s.Audit.Append(txCtx, &audit.Entry{
				NotificationID: n.ID,
				Kind:           audit.KindCreated,
				Detail:         fmt.Sprintf("channel=%s priority=%s", n.Channel, n.Priority),
			}); err != nil {
				return fmt.Errorf("audit created: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("created", len(out)))
	s.Log.Info("notifications created",
		zap.Int64("recipient_id", req.RecipientID),
		zap.String("category", string(req.Category)),
		zap.Int("count", len(out)),
	)
	return out, nil
}

// destination snapshots the contact field for the channel at creation time.
// A snapshot may legitimately be empty; the adapter turns that into a
// permanent failure at dispatch.
func (s *Service) destination(ctx context.Context, rec *recipient.Recipient, ch notification.Channel) (string, error) {
	switch ch {
	case notification.ChannelEmail:
		return rec.Email, nil
	case notification.ChannelSMS:
		return rec.Phone, nil
	case notification.ChannelPush:
		devices, err := s.Devices.ListActive(ctx, rec.ID)
		if err != nil {
			return "", fmt.Errorf("list devices: %w", err)
		}
		if len(devices) == 0 {
			return "", nil
		}
		return devices[0].Token, nil
	case notification.ChannelInApp:
		return strconv.FormatInt(rec.ID, 10), nil
	}
	return "", &ValidationError{Field: "channel", Reason: fmt.Sprintf("unknown channel %q", ch)}
}

// Cancel transitions a pending, never-attempted, unclaimed notification to
// cancelled. Returns false when the row was already claimed, attempted or
// terminal; the caller treats that as "too late", not as an error.
func (s *Service) Cancel(ctx context.Context, id string) (bool, error) {
	ok, err := s.Notifs.Cancel(ctx, id)
	if err != nil {
		return false, fmt.Errorf("cancel: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := s.Audit.Append(ctx, &audit.Entry{
		NotificationID: id,
		Kind:           audit.KindCancelled,
		Detail:         "cancelled before first attempt",
	}); err != nil {
		s.Log.Warn("audit cancelled", zap.String("notification_id", id), zap.Error(err))
	}
	return true, nil
}

// Retry returns a failed notification to pending. The attempt counter is
// kept, so a notification that already reached its ceiling is rejected.
func (s *Service) Retry(ctx context.Context, id string) error {
	if err := s.Notifs.ResetForRetry(ctx, id, s.Clock.Now()); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return fmt.Errorf("notification %s is not retryable: %w", id, err)
		}
		return fmt.Errorf("reset for retry: %w", err)
	}
	if err := s.Audit.Append(ctx, &audit.Entry{
		NotificationID: id,
		Kind:           audit.KindRetry,
		Detail:         "manual retry requested",
	}); err != nil {
		s.Log.Warn("audit retry", zap.String("notification_id", id), zap.Error(err))
	}
	return nil
}

func (s *Service) RegisterDevice(ctx context.Context, recipientID int64, token, deviceType string) (*device.Device, error) {
	if token == "" {
		return nil, &ValidationError{Field: "token", Reason: "must not be empty"}
	}
	d := &device.Device{RecipientID: recipientID, Token: token, DeviceType: deviceType}
	if err := s.Devices.Register(ctx, d); err != nil {
		return nil, fmt.Errorf("register device: %w", err)
	}
	return d, nil
}

func (s *Service) DeactivateDevice(ctx context.Context, deviceID int64) error {
	if err := s.Devices.Deactivate(ctx, deviceID); err != nil {
		return fmt.Errorf("deactivate device: %w", err)
	}
	return nil
}

func (s *Service) Preferences(ctx context.Context, recipientID int64) (*preference.Preference, error) {
	p, err := s.PrefRepo.GetOrCreate(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	return p, nil
}

// UpdatePreferences applies a partial patch. Quiet-hours misconfiguration is
// a synchronous validation error, never stored.
func (s *Service) UpdatePreferences(ctx context.Context, recipientID int64, patch preference.Patch) (*preference.Preference, error) {
	p, err := s.PrefRepo.GetOrCreate(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	if patch.EmailEnabled != nil {
		p.EmailEnabled = *patch.EmailEnabled
	}
	if patch.SMSEnabled != nil {
		p.SMSEnabled = *patch.SMSEnabled
	}
	if patch.PushEnabled != nil {
		p.PushEnabled = *patch.PushEnabled
	}
	if patch.InAppEnabled != nil {
		p.InAppEnabled = *patch.InAppEnabled
	}
	if patch.Categories != nil {
		for c := range patch.Categories {
			if !c.Valid() {
				return nil, &ValidationError{Field: "categories", Reason: fmt.Sprintf("unknown category %q", c)}
			}
		}
		if p.Categories == nil {
			p.Categories = map[notification.Category]bool{}
		}
		for c, enabled := range patch.Categories {
			p.Categories[c] = enabled
		}
	}
	if patch.QuietStart != nil {
		p.QuietStart = *patch.QuietStart
	}
	if patch.QuietEnd != nil {
		p.QuietEnd = *patch.QuietEnd
	}
	if patch.Language != nil {
		p.Language = *patch.Language
	}

	if err := validateQuietWindow(p.QuietStart, p.QuietEnd); err != nil {
		return nil, err
	}

	if err := s.PrefRepo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update preferences: %w", err)
	}
	return p, nil
}

func validateQuietWindow(start, end string) error {
	if start == "" && end == "" {
		return nil
	}
	if start == "" || end == "" {
		return &ValidationError{Field: "quiet_hours", Reason: "start and end must both be set or both be empty"}
	}
	ps, err := prefs.ParseClock(start)
	if err != nil {
		return &ValidationError{Field: "quiet_start", Reason: err.Error()}
	}
	pe, err := prefs.ParseClock(end)
	if err != nil {
		return &ValidationError{Field: "quiet_end", Reason: err.Error()}
	}
	if ps == pe {
		return &ValidationError{Field: "quiet_hours", Reason: "start and end must differ"}
	}
	return nil
}

// UpsertTemplate stores a template version, enforcing at most one active
// template per (category, channel).
func (s *Service) UpsertTemplate(ctx context.Context, t *template.Template) error {
	if !t.Category.Valid() {
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", t.Category)}
	}
	if !t.Channel.Valid() {
		return &ValidationError{Field: "channel", Reason: fmt.Sprintf("unknown channel %q", t.Channel)}
	}
	if t.Body == "" {
		return &ValidationError{Field: "body", Reason: "must not be empty"}
	}
	if err := s.Templates.Upsert(ctx, t); err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}
