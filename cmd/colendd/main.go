package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"colend/config"
	"colend/core"
	"colend/core/pricing"
	"colend/integrations/webhooks"
	"colend/observability/logging"
	otelobs "colend/observability/otel"
	"colend/rpc"
	"colend/storage"

	nativecommon "colend/native/common"
)

// defaultMutatingRatePerMin bounds mutating RPC calls per source when the
// config does not override quotas.
const defaultMutatingRatePerMin = 600

func main() {
	configFile := flag.String("config", "./colend.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.SetupWithOptions("colendd", cfg.Logging.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.File.Path,
		MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
		MaxBackups: cfg.Logging.File.MaxBackups,
		MaxAgeDays: cfg.Logging.File.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.OTLPEndpoint != "" {
		shutdown, err := otelobs.Init(ctx, otelobs.Config{
			ServiceName: "colendd",
			Environment: cfg.Logging.Environment,
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetryHeaders(cfg.Telemetry),
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			logger.Error("failed to initialise telemetry", "err", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", "err", err)
			}
		}()
	}

	params, err := cfg.Parameters()
	if err != nil {
		logger.Error("failed to resolve parameters", "err", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DataDir, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	feed := pricing.NewManualFeed(
		pricing.WithMaxQuoteAge(cfg.Oracle.MaxQuoteAgeSeconds),
		pricing.WithMaxDeviationBps(cfg.Oracle.MaxDeviationBps),
	)

	opts := []core.NodeOption{
		core.WithCloseFactor(params.CloseFactorBps),
		core.WithPauses(core.Pauses{
			Lending:    cfg.Pauses.Lending,
			Delegation: cfg.Pauses.Delegation,
			Rebalance:  cfg.Pauses.Rebalance,
		}),
	}
	if !params.OracleAuthority.IsZero() {
		verifier := pricing.NewProofVerifier(
			params.OracleAuthority,
			cfg.Oracle.Providers,
			time.Duration(cfg.Oracle.ProofMaxSkewSeconds)*time.Second,
		)
		opts = append(opts, core.WithProofVerifier(verifier))
	}

	node := core.NewNode(db, feed, opts...)

	genesis := core.Genesis{Tokens: params.Tokens}
	for _, grant := range params.Roles {
		genesis.Roles = append(genesis.Roles, core.GenesisRole{Role: grant.Role, Address: grant.Address})
	}
	for _, mint := range params.Mints {
		genesis.Mints = append(genesis.Mints, core.GenesisMint{Address: mint.Address, Symbol: mint.Symbol, Amount: mint.Amount})
	}
	if err := node.ApplyGenesis(genesis); err != nil {
		logger.Error("failed to apply genesis", "err", err)
		os.Exit(1)
	}

	if dispatcher := buildWebhookDispatcher(logger, cfg.Webhooks); dispatcher != nil {
		defer dispatcher.Close()
		node.AddSink(dispatcher)
	}

	if cfg.MetricsAddress != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("starting metrics server", "addr", cfg.MetricsAddress)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "err", err)
			}
		}()
		defer metricsServer.Close()
	}

	rpcServer := rpc.NewServer(node, rpc.ServerConfig{
		AuthToken:          os.Getenv(cfg.RPCAuthTokenEnv),
		TrustProxyHeaders:  cfg.RPCTrustProxyHeaders,
		MutatingRatePerMin: defaultMutatingRatePerMin,
		Quotas: rpc.Quotas{
			Lending:    toNodeQuota(cfg.Quotas.Lending),
			Delegation: toNodeQuota(cfg.Quotas.Delegation),
			Rebalance:  toNodeQuota(cfg.Quotas.Rebalance),
			Bank:       toNodeQuota(cfg.Quotas.Bank),
		},
	})
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           rpcServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting JSON-RPC server", "addr", cfg.RPCAddress, "network", cfg.NetworkName)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("rpc server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("rpc shutdown failed", "err", err)
	}
}

// telemetryHeaders merges file-configured exporter headers with the
// env-sourced ones holding collector credentials.
func telemetryHeaders(cfg config.Telemetry) map[string]string {
	headers := make(map[string]string, len(cfg.OTLPHeaders))
	for key, value := range cfg.OTLPHeaders {
		headers[key] = value
	}
	if env := strings.TrimSpace(cfg.OTLPHeadersEnv); env != "" {
		for key, value := range otelobs.ParseHeaders(os.Getenv(env)) {
			headers[key] = value
		}
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}

// toNodeQuota converts the per-minute config quota into the per-epoch form
// the transport enforces.
func toNodeQuota(q config.Quota) nativecommon.Quota {
	if q.MaxRequestsPerMin == 0 || q.EpochSeconds == 0 {
		return nativecommon.Quota{}
	}
	perEpoch := uint64(q.MaxRequestsPerMin) * uint64(q.EpochSeconds) / 60
	if perEpoch == 0 {
		perEpoch = 1
	}
	if perEpoch > uint64(^uint32(0)) {
		perEpoch = uint64(^uint32(0))
	}
	return nativecommon.Quota{
		MaxRequestsPerEpoch: uint32(perEpoch),
		EpochSeconds:        q.EpochSeconds,
	}
}

func buildWebhookDispatcher(logger *slog.Logger, cfg config.Webhooks) *webhooks.Dispatcher {
	secret := strings.TrimSpace(os.Getenv(cfg.SecretEnv))
	if secret == "" || len(cfg.Endpoints) == 0 {
		return nil
	}
	endpoints := make([]webhooks.Endpoint, 0, len(cfg.Endpoints))
	for _, endpoint := range cfg.Endpoints {
		endpoints = append(endpoints, webhooks.Endpoint{URL: endpoint.URL, Events: endpoint.Events})
	}
	var opts []webhooks.Option
	if cfg.JournalPath != "" {
		journal, err := webhooks.OpenJournal(cfg.JournalPath)
		if err != nil {
			logger.Error("failed to open webhook journal", "path", cfg.JournalPath, "err", err)
			os.Exit(1)
		}
		opts = append(opts, webhooks.WithJournal(journal))
	}
	dispatcher, err := webhooks.NewDispatcher([]byte(secret), endpoints, opts...)
	if err != nil {
		logger.Error("failed to configure webhooks", "err", err)
		os.Exit(1)
	}
	logger.Info("webhook fanout enabled", "endpoints", len(endpoints))
	return dispatcher
}
