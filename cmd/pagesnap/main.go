// Package main wires together the capture service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pagesnap/pagesnap/internal/api"
	"github.com/pagesnap/pagesnap/internal/capture"
	"github.com/pagesnap/pagesnap/internal/clock/system"
	"github.com/pagesnap/pagesnap/internal/config"
	"github.com/pagesnap/pagesnap/internal/dispatcher"
	staticfetcher "github.com/pagesnap/pagesnap/internal/fetcher/static"
	"github.com/pagesnap/pagesnap/internal/id/uuid"
	"github.com/pagesnap/pagesnap/internal/logging"
	"github.com/pagesnap/pagesnap/internal/metrics"
	"github.com/pagesnap/pagesnap/internal/orchestrator"
	"github.com/pagesnap/pagesnap/internal/packager"
	"github.com/pagesnap/pagesnap/internal/progress"
	"github.com/pagesnap/pagesnap/internal/progress/sinks"
	pubsubpublisher "github.com/pagesnap/pagesnap/internal/publisher/pubsub"
	queuememory "github.com/pagesnap/pagesnap/internal/queue/memory"
	"github.com/pagesnap/pagesnap/internal/renderer"
	storememory "github.com/pagesnap/pagesnap/internal/store/memory"
	"github.com/pagesnap/pagesnap/internal/store/postgres"
	"github.com/pagesnap/pagesnap/internal/storage/gcs"
	"github.com/pagesnap/pagesnap/internal/storage/local"
	storagememory "github.com/pagesnap/pagesnap/internal/storage/memory"
	"github.com/pagesnap/pagesnap/internal/sweeper"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	jobStore, closeStore, err := buildJobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("job store init failed", zap.Error(err))
	}
	defer closeStore()

	blobStore, err := buildBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("blob store init failed", zap.Error(err))
	}

	hub, err := buildHub(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("progress hub init failed", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close", zap.Error(err))
		}
	}()

	clock := system.New()
	idGen := uuid.New()
	queue := queuememory.NewQueue(cfg.Capture.QueueDepth)

	rendererCfg := renderer.Config{
		NavigationTimeout: time.Duration(cfg.Renderer.NavTimeoutSec) * time.Second,
		SettleDelay:       time.Duration(cfg.Renderer.SettleDelayMs) * time.Millisecond,
		ChromePath:        cfg.Renderer.ChromePath,
	}
	sessionFactory := func(context.Context) (orchestrator.BrowserSession, error) {
		return renderer.NewSession(rendererCfg, logger.Named("renderer"))
	}

	var opts []orchestrator.Option
	opts = append(opts, orchestrator.WithEmitter(hub))
	if cfg.Renderer.StaticDiscovery {
		opts = append(opts, orchestrator.WithStaticDiscovery(staticfetcher.New(staticfetcher.Config{})))
	}
	orch := orchestrator.New(jobStore, blobStore, sessionFactory, clock, logger.Named("orchestrator"), opts...)

	dispatch := dispatcher.New(queue, orch, cfg.Capture.Workers, logger.Named("dispatcher"))
	pack := packager.New(jobStore, blobStore, clock, logger.Named("packager"))
	sweep := sweeper.New(sweeper.Config{Interval: cfg.Retention.SweepInterval()}, jobStore, blobStore, clock, logger.Named("sweeper"))

	apiServer := api.NewServer(jobStore, dispatch, pack, idGen, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Capture.Workers))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("sweeper started", zap.Duration("interval", cfg.Retention.SweepInterval()))
		sweep.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
}

func buildJobStore(ctx context.Context, cfg config.Config) (capture.JobStore, func(), error) {
	if cfg.DB.DSN == "" {
		return storememory.New(), func() {}, nil
	}
	store, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxConns),
		MinConns: int32(cfg.DB.MinConns),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres store: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, store.Close, nil
}

func buildBlobStore(ctx context.Context, cfg config.Config) (capture.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
	case "local":
		return local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
	case "memory":
		return storagememory.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildHub(ctx context.Context, cfg config.Config, logger *zap.Logger) (*progress.Hub, error) {
	sinkList := []progress.Sink{sinks.NewLogSink(logger.Named("progress"))}

	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("prometheus sink: %w", err)
	}
	sinkList = append(sinkList, promSink)

	if cfg.PubSub.ProjectID != "" {
		pub, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher: %w", err)
		}
		sinkList = append(sinkList, sinks.NewPublishSink(pub))
	}

	return progress.NewHub(progress.Config{Logger: logger.Named("hub")}, sinkList...), nil
}
