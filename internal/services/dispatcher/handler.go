// Package dispatcher owns the delivery state machine: it is the only writer
// of notification status after creation. Workers claim due pending rows,
// invoke the channel adapter, and turn every outcome into a status
// transition plus an audit entry.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/CareOpsHQ/mednotify/internal/channel"
	"github.com/CareOpsHQ/mednotify/internal/domain/audit"
	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
	"github.com/CareOpsHQ/mednotify/internal/obs"
	"github.com/CareOpsHQ/mednotify/internal/obs/retry"
	"github.com/CareOpsHQ/mednotify/internal/prefs"
)

type Result string

const (
	ResultSent      Result = "sent"
	ResultDelivered Result = "delivered"
	ResultDeferred  Result = "deferred"
	ResultRetried   Result = "retried"
	ResultFailed    Result = "failed"
	ResultError     Result = "error"
)

type Handler struct {
	Notifs   notification.Repo
	Resolver *prefs.Resolver
	Audit    audit.Repo
	Adapters map[notification.Channel]channel.Adapter
	Clock    notification.Clock
	Log      *zap.Logger

	// SendTimeout bounds how long one adapter call may block.
	SendTimeout time.Duration

	// Backoff schedules automatic retries; Next(attempts-1) for the n-th
	// failed attempt.
	Backoff retry.Backoff
}

func NewHandler(
	notifs notification.Repo,
	resolver *prefs.Resolver,
	auditRepo audit.Repo,
	adapters []channel.Adapter,
	clock notification.Clock,
	log *zap.Logger,
	sendTimeout time.Duration,
	backoffBase, backoffMax time.Duration,
) *Handler {
	byChannel := make(map[notification.Channel]channel.Adapter, len(adapters))
	for _, a := range adapters {
		byChannel[a.Channel()] = a
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	if backoffBase <= 0 {
		backoffBase = time.Minute
	}
	return &Handler{
		Notifs:      notifs,
		Resolver:    resolver,
		Audit:       auditRepo,
		Adapters:    byChannel,
		Clock:       clock,
		Log:         log,
		SendTimeout: sendTimeout,
		Backoff:     retry.ExpoJitter{Base: backoffBase, Max: backoffMax},
	}
}

// Process runs one claimed notification end-to-end. It never returns an
// error upward; failures become state transitions, and repo write errors
// leave the lease to expire so another worker can pick the row up again.
func (h *Handler) Process(ctx context.Context, n *notification.Notification) Result {
	log := obs.WithTrace(ctx, h.Log).With(
		zap.String("notification_id", n.ID),
		zap.String("channel", string(n.Channel)),
	)

	if !n.Priority.BypassesQuietHours() {
		quiet, err := h.Resolver.InQuietHours(ctx, n.RecipientID, h.Clock.Now())
		if err != nil {
			log.Warn("quiet-hours check failed", zap.Error(err))
			h.release(ctx, n.ID, log)
			return ResultError
		}
		if quiet {
			h.release(ctx, n.ID, log)
			return ResultDeferred
		}
	}

	adapter, ok := h.Adapters[n.Channel]
	if !ok {
		return h.fail(ctx, n, n.Attempts+1, fmt.Sprintf("no adapter for channel %s", n.Channel), log)
	}

	sendCtx, cancel := context.WithTimeout(ctx, h.SendTimeout)
	outcome := adapter.Send(sendCtx, n)
	cancel()

	if outcome.Success {
		return h.succeed(ctx, n, outcome.Detail, log)
	}

	attempts := n.Attempts + 1
	if outcome.Permanent || attempts >= n.MaxAttempts {
		return h.fail(ctx, n, attempts, outcome.Detail, log)
	}

	next := h.Clock.Now().Add(h.Backoff.Next(attempts - 1))
	if err := h.Notifs.Reschedule(ctx, n.ID, attempts, next, outcome.Detail); err != nil {
		log.Warn("reschedule failed", zap.Error(err))
		return ResultError
	}
	h.append(ctx, n.ID, audit.KindRetry,
		fmt.Sprintf("attempt %d/%d failed: %s; next at %s", attempts, n.MaxAttempts, outcome.Detail, next.UTC().Format(time.RFC3339)),
		log)
	log.Info("delivery rescheduled", zap.Int("attempts", attempts), zap.Time("next", next))
	return ResultRetried
}

func (h *Handler) succeed(ctx context.Context, n *notification.Notification, detail string, log *zap.Logger) Result {
	now := h.Clock.Now()

	// in-app delivery is confirmed by the row existing in storage, so it
	// advances straight to delivered; email/sms/push stop at sent unless a
	// provider webhook advances them later.
	if n.Channel == notification.ChannelInApp {
		if err := h.Notifs.MarkDelivered(ctx, n.ID, now, now); err != nil {
			log.Warn("mark delivered failed", zap.Error(err))
			return ResultError
		}
		h.append(ctx, n.ID, audit.KindSent, detail, log)
		h.append(ctx, n.ID, audit.KindDelivered, detail, log)
		return ResultDelivered
	}

	if err := h.Notifs.MarkSent(ctx, n.ID, now); err != nil {
		log.Warn("mark sent failed", zap.Error(err))
		return ResultError
	}
	h.append(ctx, n.ID, audit.KindSent, detail, log)
	log.Info("delivery succeeded")
	return ResultSent
}

func (h *Handler) fail(ctx context.Context, n *notification.Notification, attempts int, detail string, log *zap.Logger) Result {
	if err := h.Notifs.MarkFailed(ctx, n.ID, attempts, detail); err != nil {
		log.Warn("mark failed failed", zap.Error(err))
		return ResultError
	}
	h.append(ctx, n.ID, audit.KindFailed, detail, log)
	log.Warn("delivery failed terminally", zap.Int("attempts", attempts), zap.String("reason", detail))
	return ResultFailed
}

func (h *Handler) release(ctx context.Context, id string, log *zap.Logger) {
	if err := h.Notifs.Release(ctx, id); err != nil {
		log.Warn("lease release failed", zap.Error(err))
	}
}

func (h *Handler) append(ctx context.Context, id string, kind audit.Kind, detail string, log *zap.Logger) {
	if err := h.Audit.Append(ctx, &audit.Entry{NotificationID: id, Kind: kind, Detail: detail}); err != nil {
		log.Warn("audit append failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}
