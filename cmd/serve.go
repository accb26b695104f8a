package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JezreelBuenconsejo/web-scraper/internal/api"
	"github.com/JezreelBuenconsejo/web-scraper/internal/browser"
	"github.com/JezreelBuenconsejo/web-scraper/internal/clock/system"
	"github.com/JezreelBuenconsejo/web-scraper/internal/dispatcher"
	"github.com/JezreelBuenconsejo/web-scraper/internal/export"
	"github.com/JezreelBuenconsejo/web-scraper/internal/id/uuid"
	"github.com/JezreelBuenconsejo/web-scraper/internal/producer"
	"github.com/JezreelBuenconsejo/web-scraper/internal/progress"
	queuememory "github.com/JezreelBuenconsejo/web-scraper/internal/queue/memory"
	queuepubsub "github.com/JezreelBuenconsejo/web-scraper/internal/queue/pubsub"
	"github.com/JezreelBuenconsejo/web-scraper/internal/scrape"
	"github.com/JezreelBuenconsejo/web-scraper/internal/storage/gcs"
	"github.com/JezreelBuenconsejo/web-scraper/internal/storage/local"
	storememory "github.com/JezreelBuenconsejo/web-scraper/internal/store/memory"
	"github.com/JezreelBuenconsejo/web-scraper/internal/store/postgres"
	"github.com/JezreelBuenconsejo/web-scraper/internal/strategy"
	"github.com/JezreelBuenconsejo/web-scraper/internal/worker"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scraper service",
		Long: `Starts the job queue, the worker pool with its headless browser
sessions, and the HTTP API, then blocks until interrupted.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	queue, closeQueue, err := buildQueue(ctx, true)
	if err != nil {
		return err
	}
	defer closeQueue()

	sessions := browser.NewFactory(browser.Config{
		UserAgent:      cfg.Browser.UserAgent,
		ViewportWidth:  int64(cfg.Browser.ViewportWidth),
		ViewportHeight: int64(cfg.Browser.ViewportHeight),
		NavTimeout:     cfg.NavTimeout(),
	})
	defer sessions.Close()

	clock := system.New()
	nav := strategy.NewNavigator(cfg.Settle(), cfg.NavTimeout(), logger)
	registry := strategy.NewRegistry(
		strategy.NewQuotes(nav, clock, cfg.PageDelay(), logger),
		strategy.NewReddit(nav, clock, logger),
		strategy.NewTikTok(nav, clock, logger),
	)

	exporter, err := buildExporter(ctx)
	if err != nil {
		return err
	}

	sink := progress.NewMulti(progress.NewLog(logger), progress.NewPrometheus())
	workers := make([]*worker.Worker, cfg.Scraper.Workers)
	for i := range workers {
		workers[i] = worker.New(queue, store, sessions, registry, sink, clock, exporter, logger)
	}
	pool := dispatcher.New(workers, logger)

	prod := producer.New(store, queue, registry, clock, uuid.New(), jobDefaults(), logger)
	apiCfg := api.Config{RequestTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second}
	if cfg.Auth.Enabled {
		apiCfg.APIKey = cfg.Auth.APIKey
	}
	srv := api.NewServer(store, prod, apiCfg, logger)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		pool.Run(ctx)
	}()

	httpErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	select {
	case err := <-httpErr:
		stop()
		<-poolDone
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	<-poolDone
	logger.Info("shutdown complete")
	return nil
}

func jobDefaults() producer.Defaults {
	return producer.Defaults{
		MaxItems: cfg.Scraper.MaxItemsDefault,
		MaxPages: cfg.Scraper.MaxPagesDefault,
	}
}

func buildStore(ctx context.Context) (scrape.ContentStore, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Info("using in-memory content store")
		return storememory.New(), func() {}, nil
	}
	store, err := postgres.New(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        int32(cfg.DB.MaxConns),
		MinConns:        int32(cfg.DB.MinConns),
		MaxConnLifetime: time.Duration(cfg.DB.ConnLifetimeMinute) * time.Minute,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("using postgres content store")
	return store, store.Close, nil
}

func buildQueue(ctx context.Context, consume bool) (scrape.Queue, func(), error) {
	switch cfg.Queue.Backend {
	case "pubsub":
		q, err := queuepubsub.New(ctx, queuepubsub.Config{
			ProjectID:      cfg.Queue.ProjectID,
			TopicID:        cfg.Queue.TopicID,
			SubscriptionID: cfg.Queue.SubscriptionID,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect pubsub: %w", err)
		}
		if consume {
			if err := q.Start(ctx); err != nil {
				_ = q.Close()
				return nil, nil, fmt.Errorf("start pubsub receiver: %w", err)
			}
		}
		logger.Info("using pubsub queue", zap.String("topic", cfg.Queue.TopicID))
		return q, func() { _ = q.Close() }, nil
	default:
		logger.Info("using in-memory queue", zap.Int("depth", cfg.Scraper.QueueDepth))
		q := queuememory.New(cfg.Scraper.QueueDepth)
		return q, q.Close, nil
	}
}

func buildExporter(ctx context.Context) (worker.Exporter, error) {
	switch cfg.Export.Backend {
	case "none":
		return nil, nil
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.Export.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local export store: %w", err)
		}
		return export.New(store, logger), nil
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Export.GCSBucket, Prefix: cfg.Export.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs export store: %w", err)
		}
		return export.New(store, logger), nil
	default:
		return nil, fmt.Errorf("unknown export backend %q", cfg.Export.Backend)
	}
}
