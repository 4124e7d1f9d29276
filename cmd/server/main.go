package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iconidentify/clipgif/internal/api"
	"github.com/iconidentify/clipgif/internal/api/handler"
	"github.com/iconidentify/clipgif/internal/config"
	"github.com/iconidentify/clipgif/internal/downloader"
	"github.com/iconidentify/clipgif/internal/encoder"
	"github.com/iconidentify/clipgif/internal/extract"
	"github.com/iconidentify/clipgif/internal/repository"
	"github.com/iconidentify/clipgif/internal/service"
	"github.com/iconidentify/clipgif/internal/storage"
	"github.com/iconidentify/clipgif/internal/worker"
	"github.com/iconidentify/clipgif/pkg/ffmpeg"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("clipgif %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level, _ := cfg.Log.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	var logHandler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Log.Format == "text" {
		logHandler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting clipgif",
		"version", Version,
		"build_time", BuildTime,
	)

	if err := os.MkdirAll(cfg.Storage.TempPath, 0755); err != nil {
		logger.Error("failed to create temp directory", "error", err)
		os.Exit(1)
	}

	// Message hub
	hub, err := service.NewHub(service.HubConfig{
		RingBufferSize:  cfg.Events.RingBufferSize,
		PersistToSQLite: cfg.Events.PersistToSQLite,
		SQLitePath:      cfg.Events.SQLitePath,
		RetentionDays:   cfg.Events.RetentionDays,
	}, logger)
	if err != nil {
		logger.Error("failed to create message hub", "error", err)
		os.Exit(1)
	}

	bgCtx, cancelBackground := context.WithCancel(context.Background())
	go runCleanup(bgCtx, hub, logger)

	// Job history is optional
	var history repository.HistoryStore
	var historyStore *repository.SQLiteHistoryStore
	if cfg.Storage.HistoryPath != "" {
		historyStore, err = repository.NewSQLiteHistoryStore(cfg.Storage.HistoryPath)
		if err != nil {
			logger.Error("failed to open history store", "error", err)
			os.Exit(1)
		}
		history = historyStore
	}

	// Encoders
	selector := encoder.NewDefaultSelector(logger, cfg.Encoder.FFmpegPath, cfg.Encoder.FFprobePath)

	// Delegated extraction bridge
	var bridge extract.Bridge
	var wsBridge *extract.ChannelBridge
	var redisClient *redis.Client
	switch cfg.Extraction.Bridge {
	case "redis":
		redisClient = redis.NewClient(&redis.Options{
			Addr:                  cfg.Redis.Addr,
			Password:              cfg.Redis.Password,
			DB:                    cfg.Redis.DB,
			ContextTimeoutEnabled: true,
		})
		bridge = extract.NewRedisBridge(redisClient, extract.RedisBridgeConfig{
			RequestKey:  cfg.Redis.RequestKey,
			ReplyPrefix: cfg.Redis.ReplyPrefix,
		}, logger.With("component", "redis_bridge"))
	default:
		wsBridge = extract.NewChannelBridge(16)
		bridge = wsBridge
	}

	extractor := extract.NewExtractor(extract.Config{
		SeekTimeout:       cfg.Extraction.SeekTimeout,
		FrameBudget:       cfg.Extraction.FrameBudget,
		DelegationTimeout: cfg.Extraction.DelegationTimeout,
	}, bridge, logger.With("component", "extractor"))

	// Local sources need ffmpeg; without it only delegated extraction works
	var decoder extract.FrameDecoder
	if vp, err := ffmpeg.NewVideoProcessorWithPaths(cfg.Encoder.FFmpegPath, cfg.Encoder.FFprobePath); err != nil {
		logger.Warn("ffmpeg not available, local sources disabled", "error", err)
	} else {
		decoder = vp
	}

	dl := downloader.NewHTTPDownloader(cfg.Download)
	dl.SetLogger(logger.With("component", "downloader"))

	pipeline := service.NewPipeline(service.PipelineConfig{
		TempDir:         cfg.Storage.TempPath,
		DefaultEncoder:  cfg.Encoder.Default,
		DefaultFallback: cfg.Encoder.Fallback,
	}, extractor, decoder, dl, selector, logger.With("component", "pipeline"))

	// Job queue
	queue := worker.NewQueue(repository.NewInMemoryJobRepository(), pipeline, history, logger.With("component", "queue"))
	queue.StartSweeper(bgCtx, cfg.Queue.SweepInterval, cfg.Queue.Retention)

	// Artifact uploads are optional
	var artifacts storage.ArtifactStore
	if cfg.Artifacts.Enabled {
		store, err := storage.NewMinioStore(cfg.Artifacts, logger.With("component", "artifacts"))
		if err != nil {
			logger.Error("failed to create artifact store", "error", err)
			os.Exit(1)
		}
		ctx, cancel := context.WithTimeout(bgCtx, 30*time.Second)
		err = store.EnsureBucket(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to prepare artifact bucket", "error", err)
			os.Exit(1)
		}
		artifacts = store
	}

	orch := service.NewOrchestrator(service.OrchestratorConfig{
		MaxConcurrentJobs: cfg.Orchestrator.MaxConcurrentJobs,
		FirstPoll:         cfg.Orchestrator.FirstPoll,
		PollInterval:      cfg.Orchestrator.PollInterval,
		JobTimeout:        cfg.Orchestrator.JobTimeout,
		ProgressInterval:  cfg.Orchestrator.ProgressInterval,
		MaxGIFWidth:       cfg.Orchestrator.MaxGIFWidth,
		MaxGIFHeight:      cfg.Orchestrator.MaxGIFHeight,
	}, queue, hub, artifacts, logger.With("component", "orchestrator"))
	orch.Start()

	// Initialize handlers
	handlers := api.Handlers{
		Health:  handler.NewHealthHandler(queue, cfg.Storage.TempPath),
		GIF:     handler.NewGIFHandler(orch, selector, logger),
		Event:   handler.NewEventHandler(hub, logger),
		WS:      handler.NewWSHandler(hub, wsBridge, logger),
		History: handler.NewHistoryHandler(history, logger),
	}

	// Setup router
	router := api.NewRouter(handlers, api.Config{
		APIKey:         cfg.Server.APIKey,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.WriteTimeout,
	}, logger)

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr, "bridge", cfg.Extraction.Bridge)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new requests
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Pending callbacks fire before the queue goes away
	orch.Close()
	cancelBackground()

	if err := queue.Stop(cfg.Queue.StopTimeout); err != nil {
		logger.Error("queue shutdown error", "error", err)
	}
	if err := hub.Close(); err != nil {
		logger.Error("hub shutdown error", "error", err)
	}
	if historyStore != nil {
		if err := historyStore.Close(); err != nil {
			logger.Error("history store shutdown error", "error", err)
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("redis shutdown error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// runCleanup prunes persisted hub messages once a day.
func runCleanup(ctx context.Context, hub *service.Hub, logger *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		if err := hub.CleanupOld(ctx); err != nil {
			logger.Warn("message cleanup failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
