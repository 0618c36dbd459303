package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/CareOpsHQ/mednotify/internal/channel"
	config "github.com/CareOpsHQ/mednotify/internal/config/dispatcher"
	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
	"github.com/CareOpsHQ/mednotify/internal/obs"
	"github.com/CareOpsHQ/mednotify/internal/prefs"
	pg "github.com/CareOpsHQ/mednotify/internal/repository/postgres"
	redisx "github.com/CareOpsHQ/mednotify/internal/repository/redis"
	"github.com/CareOpsHQ/mednotify/internal/services/dispatcher"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal(err)
	}

	l, err := obs.NewLogger(*cfg.Log.AsLoggerConfig(cfg.App))
	if err != nil {
		log.Fatal(err)
	}
	l.Info("starting dispatcher",
		zap.Int("workers", cfg.Dispatch.Workers),
		zap.Strings("channels", cfg.Dispatch.EnabledChannels),
		zap.String("metrics_addr", cfg.Dispatch.MetricsAddr),
	)

	otelCloser, err := obs.SetupOTel(ctx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	db, err := pg.NewDB(ctx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb, err := redisx.NewClient(ctx, &cfg.Redis)
	if err != nil {
		l.Fatal("redis connect", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()

	ms := obs.BootstrapMetricsServer(cfg.Dispatch.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Pool.Ping(hctx)
	}, l)

	// repos
	notifRepo := pg.NewNotificationRepo(db)
	prefRepo := redisx.NewPreferenceCache(pg.NewPreferenceRepo(db), rdb, cfg.Redis.TTL, l)
	deviceRepo := pg.NewDeviceRepo(db)
	auditRepo := pg.NewAuditRepo(db)

	resolver := prefs.NewResolver(prefRepo, cfg.Dispatch.Channels())

	// adapters
	httpc := &http.Client{Timeout: cfg.Dispatch.SendTimeout}
	adapters := []channel.Adapter{
		channel.NewEmail(channel.NewMailer(cfg.SMTP).WithLogger(l), l),
		channel.NewSMS(cfg.SMS, httpc, l),
		channel.NewPush(cfg.Push, deviceRepo, httpc, l),
		channel.NewInApp(),
	}

	handler := dispatcher.NewHandler(
		notifRepo, resolver, auditRepo, adapters,
		notification.SystemClock{}, l,
		cfg.Dispatch.SendTimeout, cfg.Dispatch.BackoffBase, cfg.Dispatch.BackoffMax,
	)
	runner := dispatcher.NewRunner(l, handler, notifRepo, auditRepo, &cfg.Dispatch, &cfg.Retention)

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	l.Info("dispatcher started")

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("runner error", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
