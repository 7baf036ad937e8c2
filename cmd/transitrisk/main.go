package main

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transitrisk/internal/cache"
	"transitrisk/internal/config"
	"transitrisk/internal/domain"
	"transitrisk/internal/events"
	"transitrisk/internal/feed"
	"transitrisk/internal/handler"
	"transitrisk/internal/hub"
	"transitrisk/internal/knowledge"
	"transitrisk/internal/learner"
	"transitrisk/internal/metrics"
	"transitrisk/internal/middleware"
	"transitrisk/internal/persist"
	"transitrisk/internal/predict"
	"transitrisk/internal/stats"
	"transitrisk/internal/store"
	"transitrisk/pkg/openmeteo"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting transitrisk server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"storage_backend", cfg.StorageBackend,
		"feed", cfg.FeedKind,
		"learning_enabled", cfg.LearningEnabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blobs, err := persist.Open(ctx, persist.Options{
		Backend:       cfg.StorageBackend,
		Path:          cfg.StoragePath,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		SQLitePath:    cfg.SQLitePath,
		DatabaseURL:   cfg.DatabaseURL,
	}, logger)
	if err != nil {
		logger.Error("failed to open storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer blobs.Close()

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.NewCollector()
	}

	incidents := store.New(blobs, store.Options{
		Key:      cfg.StorageKey,
		Backend:  cfg.StorageBackend,
		SeedDays: cfg.SeedDays,
		Rand:     newRand(cfg.SeedRandom, 1),
	}, logger)

	policy, err := cache.ParsePolicy(cfg.CacheInvalidation)
	if err != nil {
		logger.Error("invalid cache policy", "error", err)
		os.Exit(1)
	}
	patterns := cache.NewPatternCache(policy, logger)

	gathererOpts := predict.GathererOptions{Timeout: cfg.LookupTimeout}
	if cfg.WeatherEnabled {
		gathererOpts.Weather = openmeteo.New(openmeteo.Options{
			GeocodingURL: cfg.GeocodingBaseURL,
			ForecastURL:  cfg.WeatherBaseURL,
			CountryCode:  cfg.WeatherCountry,
		})
	}
	if cfg.EventsFile != "" {
		calendar, err := events.LoadFile(cfg.EventsFile)
		if err != nil {
			logger.Error("failed to load event calendar", "path", cfg.EventsFile, "error", err)
			os.Exit(1)
		}
		logger.Info("event calendar loaded", "path", cfg.EventsFile, "events", calendar.Len())
		gathererOpts.Events = calendar
	}
	if collector != nil {
		gathererOpts.Observer = collector
	}

	kbOpts := knowledge.Options{
		Store:    incidents,
		Cache:    patterns,
		Gatherer: predict.NewGatherer(gathererOpts, logger),
	}
	if collector != nil {
		kbOpts.Observer = collector
	}
	kb := knowledge.New(kbOpts, logger)

	if err := kb.Open(ctx); err != nil {
		logger.Warn("incident history reseeded", "error", err)
	}
	if collector != nil {
		collector.WatchCache(kb.CacheStats)
	}

	network := domain.DefaultNetwork()
	if cfg.CacheWarmOnStart {
		go knowledge.NewWarmer(kb, network, logger).WarmAll(ctx, time.Now())
	}

	wsHub := hub.NewHub(logger)

	var sched *learner.Scheduler
	if cfg.LearningEnabled {
		source, closeSource, err := openFeed(cfg, network, newRand(cfg.SeedRandom, 2), logger)
		if err != nil {
			logger.Error("failed to open delay feed", "kind", cfg.FeedKind, "error", err)
			os.Exit(1)
		}
		defer closeSource()

		var observer learner.Observer
		if collector != nil {
			observer = collector
		}
		sched = learner.New(kb, source, wsHub, observer, learner.Options{
			Interval:               cfg.LearningInterval,
			MaterializeProbability: cfg.LearningMaterializeProbability,
			Rand:                   newRand(cfg.SeedRandom, 3),
		}, logger)
	}

	serverStats := handler.NewServerStats()
	limiter := middleware.NewRateLimiter(middleware.RateLimitOptions{
		Rate:      cfg.RateLimitPerWindow,
		Window:    cfg.RateLimitWindow,
		Whitelist: cfg.RateLimitWhitelist,
		OnBlocked: func(string) { serverStats.IncRateLimitBlocked() },
	}, logger)

	routes := handler.Routes{
		HTTP:        handler.NewHTTPHandler(kb, wsHub, logger),
		WS:          handler.NewWSHandler(wsHub, kb, serverStats, logger),
		Health:      handler.NewHealthHandler(kb, func() bool { return sched == nil || sched.IsReady() }),
		Diagnostics: handler.NewDiagnosticsHandler(kb, serverStats),
		Stats:       serverStats,
		RateLimit:   limiter.Middleware,
		CORSOrigins: cfg.CORSAllowedOrigins,
	}
	if collector != nil {
		routes.Metrics = collector.Handler()
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.NewRouter(routes),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go wsHub.Run(ctx)
	go limiter.Run(ctx)

	if sched != nil {
		go sched.Run(ctx)
	} else {
		kb.SetStatistics(stats.Compute(kb.AllIncidents(), time.Now()))
	}

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := incidents.Save(shutdownCtx); err != nil {
		logger.Error("final save failed", "incidents", incidents.Count(), "error", err)
	}

	logger.Info("shutdown complete")
}

// newRand derives an independent stream per consumer so a fixed SEED_RANDOM reproduces the seeded
// corpus regardless of learner activity.
func newRand(seed int64, stream uint64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewPCG(uint64(seed), stream))
}

func openFeed(cfg *config.Config, network []domain.Line, rng *rand.Rand, logger *slog.Logger) (feed.Source, func(), error) {
	switch cfg.FeedKind {
	case feed.KindGTFSRT:
		tt, err := domain.ParseTransportType(cfg.GTFSRTTransport)
		if err != nil {
			return nil, nil, err
		}
		return feed.NewGTFSRT(feed.GTFSRTOptions{
			TripUpdatesURL: cfg.GTFSRTTripUpdatesURL,
			AlertsURL:      cfg.GTFSRTAlertsURL,
			TransportType:  tt,
			Threshold:      cfg.FeedDelayThreshold,
		}, logger), func() {}, nil
	case feed.KindNATS:
		src, err := feed.NewNATS(cfg.NATSURL, cfg.NATSSubject, 0, logger)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	default:
		return feed.NewSimulated(network, rng, cfg.LearningBatchSize), func() {}, nil
	}
}
