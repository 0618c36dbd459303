package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	dispcfg "github.com/CareOpsHQ/mednotify/internal/config/dispatcher"
	"github.com/CareOpsHQ/mednotify/internal/domain/audit"
	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
	"github.com/CareOpsHQ/mednotify/internal/obs"
)

type Runner struct {
	log     *zap.Logger
	handler *Handler
	notifs  notification.Repo
	audit   audit.Repo
	cfg     *dispcfg.DispatchCfg
	ret     *dispcfg.RetentionCfg

	mClaimed  prometheus.Counter
	mOutcomes *prometheus.CounterVec
	mTickDur  prometheus.Histogram
	mByStatus *prometheus.GaugeVec
	mPurged   prometheus.Counter
}

func NewRunner(
	log *zap.Logger,
	handler *Handler,
	notifs notification.Repo,
	auditRepo audit.Repo,
	cfg *dispcfg.DispatchCfg,
	ret *dispcfg.RetentionCfg,
) *Runner {
	return &Runner{
		log:     log,
		handler: handler,
		notifs:  notifs,
		audit:   auditRepo,
		cfg:     cfg,
		ret:     ret,
		mClaimed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_notifications_claimed_total", Help: "Notifications claimed for dispatch.",
		}),
		mOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatcher_outcomes_total", Help: "Dispatch outcomes by result.",
		}, []string{"result"}),
		mTickDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "dispatcher_tick_duration_seconds", Help: "Worker tick duration.",
			Buckets: prometheus.DefBuckets,
		}),
		mByStatus: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dispatcher_notifications_by_status", Help: "Notification rows by status.",
		}, []string{"status"}),
		mPurged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_audit_purged_total", Help: "Audit entries removed by retention.",
		}),
	}
}

// Run starts the worker pool plus the stats and retention tickers and blocks
// until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go r.worker(ctx, i, &wg)
	}

	wg.Add(1)
	go r.stats(ctx, &wg)

	if r.ret != nil && r.ret.Enable {
		wg.Add(1)
		go r.retention(ctx, &wg)
	}

	wg.Wait()
	return ctx.Err()
}

func (r *Runner) worker(ctx context.Context, id int, wg *sync.WaitGroup) {
	defer wg.Done()
	log := r.log.With(zap.Int("worker", id))
	log.Info("dispatch worker started", zap.Duration("tick", r.cfg.Tick))

	ticker := time.NewTicker(r.cfg.Tick)
	defer ticker.Stop()

	tr := otel.Tracer("dispatcher.runner")

	for {
		select {
		case <-ctx.Done():
			log.Info("dispatch worker stop")
			return
		case <-ticker.C:
			t0 := time.Now()

			ctxSpan, span := tr.Start(ctx, "dispatcher.tick")
			span.SetAttributes(
				attribute.Int("batch.limit", r.cfg.BatchSize),
				attribute.String("lease_ttl", r.cfg.LeaseTTL.String()),
			)

			batch, err := r.notifs.ClaimDue(ctxSpan, r.cfg.BatchSize, r.cfg.LeaseTTL)
			if err != nil {
				span.RecordError(err)
				r.mOutcomes.WithLabelValues(string(ResultError)).Inc()
				obs.WithTrace(ctxSpan, log).Error("claim error", zap.Error(err))
				span.End()
				continue
			}
			r.mClaimed.Add(float64(len(batch)))

			for _, n := range batch {
				res := r.handler.Process(ctxSpan, n)
				r.mOutcomes.WithLabelValues(string(res)).Inc()
			}

			span.SetAttributes(attribute.Int("batch.claimed", len(batch)))
			span.End()
			r.mTickDur.Observe(time.Since(t0).Seconds())
		}
	}
}

func (r *Runner) stats(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	interval := r.cfg.StatsInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts, err := r.notifs.CountByStatus(ctx)
			if err != nil {
				r.log.Warn("status counts", zap.Error(err))
				continue
			}
			for _, s := range []notification.Status{
				notification.StatusPending, notification.StatusSent, notification.StatusDelivered,
				notification.StatusFailed, notification.StatusCancelled,
			} {
				r.mByStatus.WithLabelValues(string(s)).Set(float64(counts[s]))
			}
		}
	}
}

func (r *Runner) retention(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	r.log.Info("audit retention enabled",
		zap.Duration("max_age", r.ret.MaxAge), zap.Duration("interval", r.ret.Interval))

	ticker := time.NewTicker(r.ret.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			horizon := r.handler.Clock.Now().Add(-r.ret.MaxAge)
			purged, err := r.audit.PurgeBefore(ctx, horizon)
			if err != nil {
				r.log.Warn("audit purge", zap.Error(err))
				continue
			}
			if purged > 0 {
				r.mPurged.Add(float64(purged))
				r.log.Info("audit entries purged", zap.Int64("count", purged), zap.Time("horizon", horizon))
			}
		}
	}
}
