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

	"colend/gateway/config"
	"colend/gateway/middleware"
	"colend/gateway/routes"
	"colend/observability/logging"
)

func main() {
	configFile := flag.String("config", "", "Path to the gateway configuration file (empty uses defaults)")
	flag.Parse()

	env := os.Getenv("COLEND_ENV")
	logger := logging.Setup("colend-gateway", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	nodeURL, err := cfg.NodeURL()
	if err != nil {
		logger.Error("invalid node endpoint", "err", err)
		os.Exit(1)
	}

	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for name, limit := range cfg.RateLimits {
		limits[name] = middleware.RateLimit{
			RequestsPerMinute: limit.RequestsPerMinute,
			Burst:             limit.Burst,
		}
	}

	routerCfg := routes.Config{
		Client:      routes.NewClient(nodeURL, cfg.NodeAuthToken(), cfg.Node.Timeout),
		NodeURL:     nodeURL,
		RateLimiter: middleware.NewRateLimiter(limits),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName:   cfg.Observability.ServiceName,
			MetricsPrefix: cfg.Observability.MetricsPrefix,
			LogRequests:   cfg.Observability.LogRequests,
			Enabled:       cfg.Observability.Metrics,
		}),
		CORS: middleware.CORSConfig{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
		},
	}
	if cfg.Auth.Enabled {
		routerCfg.Authenticator = middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    true,
			HMACSecret: cfg.AuthSecret(),
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ScopeClaim: cfg.Auth.ScopeClaim,
			ClockSkew:  cfg.Auth.ClockSkew,
		})
	}
	if cfg.Idempotency.Enabled {
		store, err := middleware.NewIdempotencyStore(cfg.Idempotency.Path, cfg.Idempotency.TTL)
		if err != nil {
			logger.Error("failed to open idempotency store", "err", err)
			os.Exit(1)
		}
		defer store.Close()
		routerCfg.Idempotency = store
		go pruneLoop(store)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           routes.New(routerCfg),
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting gateway", "addr", cfg.ListenAddress, "node", nodeURL.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("gateway server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown failed", "err", err)
	}
}

func pruneLoop(store *middleware.IdempotencyStore) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		if err := store.Prune(); err != nil {
			// Pruning failures are recoverable; the next tick retries.
			continue
		}
	}
}
