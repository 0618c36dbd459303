package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
	"github.com/CareOpsHQ/mednotify/internal/obs/retry"
	kafkax "github.com/CareOpsHQ/mednotify/internal/repository/kafka"
	"github.com/CareOpsHQ/mednotify/internal/services/notify"
)

type Controller struct {
	Log *zap.Logger
	Sub *kafkax.Consumer
	Svc *notify.Service
}

func (c *Controller) Run(ctx context.Context) error {
	policy := retry.DefaultIngestPolicy(c.Log)
	policy.Name = "ingest.create"
	policy.Retryable = func(err error) bool {
		// configuration errors do not heal on redelivery
		var verr *notify.ValidationError
		return err != nil && !errors.As(err, &verr)
	}

	handler := kafkax.JSONHandler(func(ctx context.Context, key []byte, ev *Event) error {
		return c.handle(ctx, ev, policy)
	})
	return c.Sub.Consume(ctx, handler)
}

func (c *Controller) handle(ctx context.Context, ev *Event, policy retry.Policy) error {
	log := c.Log.With(
		zap.String("event_type", ev.Type),
		zap.Int64("recipient_id", ev.RecipientID),
	)

	if ev.RecipientID <= 0 {
		log.Warn("event dropped: bad recipient_id")
		return nil
	}
	cat, ok := categoryFor(ev.Type)
	if !ok {
		log.Warn("event dropped: unknown type")
		return nil
	}

	req := notify.CreateRequest{
		RecipientID: ev.RecipientID,
		Category:    cat,
		ContextData: ev.Data,
		Priority:    priorityFor(ev, cat),
	}
	if ev.ScheduledFor != nil {
		req.ScheduledFor = *ev.ScheduledFor
	}

	var created []*notification.Notification
	err := retry.Do(ctx, func() error {
		var cerr error
		created, cerr = c.Svc.Create(ctx, req)
		return cerr
	}, policy)
	if err != nil {
		var verr *notify.ValidationError
		if errors.As(err, &verr) {
			// producer bug; drop so the partition keeps moving
			log.Warn("event dropped: invalid", zap.Error(err))
			return nil
		}
		return err
	}

	log.Info("event ingested",
		zap.String("category", string(cat)),
		zap.Int("notifications", len(created)),
		zap.Duration("age", time.Since(ev.OccurredAt)),
	)
	return nil
}
