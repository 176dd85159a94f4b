package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/docbeacon/internal/config"
	"github.com/BrandonDHaskell/docbeacon/internal/db"
	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/geo"
	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/notify"
	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/service"
	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/store"
	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/store/memory"
	sqlitestore "github.com/BrandonDHaskell/docbeacon/internal/docbeacon/store/sqlite"
	"github.com/BrandonDHaskell/docbeacon/internal/docbeacon/types"
	"github.com/BrandonDHaskell/docbeacon/internal/grpcapi"
	"github.com/BrandonDHaskell/docbeacon/internal/httpapi"
	"github.com/BrandonDHaskell/docbeacon/internal/logging"
	"github.com/BrandonDHaskell/docbeacon/internal/supervisor"
)

func main() {
	cfg, err := config.Load(config.LoadOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "docbeacon-server: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("docbeacon-server exited")
		os.Exit(1)
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		eventStore store.AccessEventStore
		conn       *sql.DB
	)
	switch cfg.Storage.Driver {
	case "memory":
		logger.Warn().Msg("using in-memory storage; access events are lost on restart")
		eventStore = memory.NewAccessEventStore()
	default:
		var err error
		conn, err = db.Open(ctx, db.Config{Path: cfg.Storage.Path})
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer conn.Close()

		writer := db.NewWorker(conn)
		defer writer.Close()

		eventStore = sqlitestore.NewAccessEventStore(conn, writer)
		logger.Info().Str("path", cfg.Storage.Path).Msg("sqlite storage ready")
	}

	// Location
	providers, err := geo.BuildProviders(geo.ProviderConfig{
		Names:       cfg.Geo.Providers,
		IPInfoToken: cfg.Geo.IPInfoToken,
		BaseURLs:    cfg.Geo.BaseURLs,
		Breaker: geo.BreakerSettings{
			ConsecutiveFailures: cfg.Geo.BreakerFailures,
			OpenTimeout:         cfg.Geo.BreakerOpenTimeout,
		},
	}, &http.Client{Timeout: cfg.Geo.ProviderTimeout}, logger)
	if err != nil {
		return fmt.Errorf("geo providers: %w", err)
	}
	resolver := geo.NewResolver(providers, geo.Options{
		GPSDefaultAccuracy: cfg.Geo.GPSDefaultAccuracyM,
		GPSAccuracyCeiling: cfg.Geo.GPSAccuracyCeilingM,
		EnrichGPSWithIP:    cfg.Geo.EnrichGPSWithIP,
		ProviderTimeout:    cfg.Geo.ProviderTimeout,
	}, logger)

	// Notifications
	var renderer *notify.Renderer
	if cfg.Notify.TemplateFile != "" {
		renderer, err = notify.NewRendererFromFile(cfg.Notify.TemplateFile)
		if err != nil {
			return fmt.Errorf("notification template: %w", err)
		}
	}
	ec := cfg.Notify.Email
	cc := cfg.Notify.Chat
	dispatcher, err := notify.NewDispatcher(notify.DispatcherOptions{
		Email: notify.NewEmailChannel(notify.EmailConfig{
			Host:               ec.Host,
			Port:               ec.Port,
			Username:           ec.Username,
			Password:           ec.Password,
			From:               ec.From,
			To:                 ec.To,
			InsecureSkipVerify: ec.InsecureSkipVerify,
		}),
		Chat: notify.NewChatChannel(notify.ChatConfig{
			BaseURL:    cc.BaseURL,
			InstanceID: cc.InstanceID,
			Token:      cc.Token,
			ToNumber:   cc.ToNumber,
		}, &http.Client{Timeout: cfg.Notify.Timeout}),
		Renderer: renderer,
		Timeout:  cfg.Notify.Timeout,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("notification dispatcher: %w", err)
	}

	// Services
	pool := service.NewWorkerPool(service.PoolConfig{
		QueueSize:      cfg.Pipeline.QueueSize,
		Workers:        cfg.Pipeline.Workers,
		EnqueueTimeout: cfg.Pipeline.EnqueueTimeout,
		JobTimeout:     cfg.Pipeline.JobTimeout,
	}, logger)

	tracking := service.NewTrackingService(service.TrackingDeps{
		Resolver: resolver,
		Store:    eventStore,
		Notifier: dispatcher,
		Executor: pool,
		Logger:   logger,
	})
	documents, err := service.NewDocumentService(service.DocumentOptions{})
	if err != nil {
		return err
	}
	pruner := service.NewEventPruner(eventStore, service.PrunerConfig{
		RetentionDays: cfg.Storage.RetentionDays,
		IntervalHours: cfg.Storage.PruneIntervalHours,
	}, logger)

	// HTTP
	deps := httpapi.Dependencies{
		Logger:          logger,
		Addr:            cfg.Server.Addr,
		TrackingService: tracking,
		DocumentService: documents,
		ConfigStatus: types.ConfigStatus{
			EmailConfigured: dispatcher.EmailConfigured(),
			ChatConfigured:  dispatcher.ChatConfigured(),
			EmailFrom:       ec.From,
			SMTPServer:      ec.Host,
			SMTPPort:        ec.Port,
			GeoProviders:    resolver.ProviderNames(),
		},
		PublicBaseURL:   cfg.Server.PublicBaseURL,
		RateLimitPerMin: cfg.Server.RateLimitPerMinute,
		EnableMetrics:   cfg.Metrics.Enabled,
	}
	if conn != nil {
		deps.DB = conn
	}
	srv := httpapi.NewServer(deps)

	// Supervision
	tree := supervisor.NewTree(logging.NewSlog(logger), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddPipelineService(pool)
	if pruner.Enabled() {
		tree.AddPipelineService(pruner)
	}
	tree.AddAPIService(supervisor.NewHTTPServerService(srv, cfg.Server.ShutdownTimeout))
	if cfg.GRPC.Addr != "" {
		tree.AddAPIService(grpcapi.NewHealthServer(cfg.GRPC.Addr, logger))
	}

	logger.Info().
		Str("http_addr", cfg.Server.Addr).
		Str("grpc_addr", cfg.GRPC.Addr).
		Str("storage", cfg.Storage.Driver).
		Strs("geo_providers", resolver.ProviderNames()).
		Bool("email_configured", dispatcher.EmailConfigured()).
		Bool("chat_configured", dispatcher.ChatConfigured()).
		Msg("docbeacon starting")

	start := time.Now()
	err = tree.Serve(ctx)
	logger.Info().Dur("uptime", time.Since(start)).Msg("docbeacon stopped")

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		logger.Warn().Int("count", len(report)).Msg("services did not stop within the shutdown timeout")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
