// Package main provides the entry point for the threatlens server, a
// threat intelligence aggregation service correlating MISP and OpenCTI.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mnguyen-sec/threatlens/internal/aggregator"
	"github.com/mnguyen-sec/threatlens/internal/api"
	"github.com/mnguyen-sec/threatlens/internal/cache"
	"github.com/mnguyen-sec/threatlens/internal/config"
	"github.com/mnguyen-sec/threatlens/internal/intel"
	"github.com/mnguyen-sec/threatlens/internal/observability"
)

// Version information (injected at build time via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("threatlens %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting threatlens",
		zap.String("version", Version),
		zap.String("config", *configPath))

	// Build whichever source adapters have credentials. A missing
	// source is skipped, not fatal.
	var misp, opencti intel.Provider
	if cfg.Sources.MISP.Configured() {
		p, err := intel.NewMISPProvider(cfg.Sources.MISP, logger.Named("misp"))
		if err != nil {
			logger.Warn("MISP adapter disabled", zap.Error(err))
		} else {
			misp = p
			logger.Info("MISP adapter configured", zap.String("url", cfg.Sources.MISP.BaseURL))
		}
	}
	if cfg.Sources.OpenCTI.Configured() {
		p, err := intel.NewOpenCTIProvider(cfg.Sources.OpenCTI, logger.Named("opencti"))
		if err != nil {
			logger.Warn("OpenCTI adapter disabled", zap.Error(err))
		} else {
			opencti = p
			logger.Info("OpenCTI adapter configured", zap.String("url", cfg.Sources.OpenCTI.BaseURL))
		}
	}
	if misp == nil && opencti == nil {
		logger.Warn("no threat intelligence sources configured; queries will fail until credentials are provided")
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	opts := aggregator.Options{
		MISP:    misp,
		OpenCTI: opencti,
		Policy:  cfg.Scoring,
		Metrics: metrics,
		Logger:  logger.Named("aggregator"),
	}
	if cfg.Cache.Enabled {
		resultCache := cache.New(cfg.Cache, logger.Named("cache"))
		defer resultCache.Close()
		opts.Cache = resultCache
		logger.Info("result cache enabled", zap.String("addr", cfg.Cache.Addr))
	}

	engine := aggregator.New(opts)
	apiServer := api.NewServer(engine, logger.Named("api"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", handleHealth)
	r.Get("/ready", handleReady(engine))
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/intel", apiServer.Routes())
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","version":"` + Version + `"}`))
}

// handleReady consults the connectivity prober. Readiness is advisory;
// the query path is never gated on it.
func handleReady(engine *aggregator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		status := engine.Status(ctx)
		ready := false
		for _, up := range status.Connections {
			if up {
				ready = true
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if ready {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ready"}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not_ready"}`))
	}
}
