package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	config "github.com/CareOpsHQ/mednotify/internal/config/ingest"
	"github.com/CareOpsHQ/mednotify/internal/domain/notification"
	"github.com/CareOpsHQ/mednotify/internal/obs"
	"github.com/CareOpsHQ/mednotify/internal/prefs"
	kafkax "github.com/CareOpsHQ/mednotify/internal/repository/kafka"
	pg "github.com/CareOpsHQ/mednotify/internal/repository/postgres"
	redisx "github.com/CareOpsHQ/mednotify/internal/repository/redis"
	"github.com/CareOpsHQ/mednotify/internal/services/ingest"
	"github.com/CareOpsHQ/mednotify/internal/services/notify"
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
	l.Info("starting ingest",
		zap.Any("kafka_in", cfg.In),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
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

	cons := kafkax.NewConsumer(&kafkax.ConsumerConfig{
		Brokers:       cfg.In.Brokers,
		GroupID:       cfg.In.GroupID,
		Topic:         cfg.In.Topic,
		FromBeginning: cfg.In.FromBeginning,
		Logger:        l,
	})
	defer func() { _ = cons.Close() }()

	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Pool.Ping(hctx)
	}, l)

	// wiring
	prefRepo := redisx.NewPreferenceCache(pg.NewPreferenceRepo(db), rdb, cfg.Redis.TTL, l)
	svc := &notify.Service{
		Notifs:    pg.NewNotificationRepo(db),
		Templates: pg.NewTemplateRepo(db),
		PrefRepo:  prefRepo,
		Resolver:  prefs.NewResolver(prefRepo, notification.Channels()),
		Devices:   pg.NewDeviceRepo(db),
		Audit:     pg.NewAuditRepo(db),
		Directory: pg.NewRecipientRepo(db),
		Tx:        pg.NewTransactor(db, l),
		Clock:     notification.SystemClock{},
		Log:       l,
	}
	ctrl := &ingest.Controller{Log: l, Sub: cons, Svc: svc}

	errCh := make(chan error, 1)
	go func() { errCh <- ctrl.Run(ctx) }()

	l.Info("ingest started")

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("consumer error", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
