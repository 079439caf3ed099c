package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/af-corp/intentd/internal/action"
	"github.com/af-corp/intentd/internal/audit"
	"github.com/af-corp/intentd/internal/config"
	"github.com/af-corp/intentd/internal/engine"
	"github.com/af-corp/intentd/internal/events"
	"github.com/af-corp/intentd/internal/executor"
	"github.com/af-corp/intentd/internal/identity"
	"github.com/af-corp/intentd/internal/intent"
	"github.com/af-corp/intentd/internal/provider"
	"github.com/af-corp/intentd/internal/provider/embed"
	"github.com/af-corp/intentd/internal/provider/llm"
	"github.com/af-corp/intentd/internal/ratelimit"
	"github.com/af-corp/intentd/internal/redact"
	"github.com/af-corp/intentd/internal/resolve"
	"github.com/af-corp/intentd/internal/server"
	"github.com/af-corp/intentd/internal/telemetry"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}
	cfg := loader.Config()
	level.Set(parseLevel(cfg.Telemetry.LogLevel))
	if strings.EqualFold(cfg.Telemetry.LogFormat, "text") {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Telemetry, "intentd")
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	if err := dbPool.Ping(ctx); err != nil {
		logger.Warn("database not reachable (resolution and audit will fail until it is)", "error", err)
	} else {
		logger.Info("database connected")
	}

	// Connect to Redis
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			// Components fall back to process-local state while Redis is away.
			logger.Warn("redis not reachable", "error", err)
		} else {
			logger.Info("redis connected")
		}
	}

	// Language-model providers
	healthTracker := provider.NewHealthTracker(cfg.Routing.CircuitBreaker.FailureThreshold, cfg.Routing.CircuitBreaker.RecoveryProbeInterval)
	registry := llm.BuildFromConfig(loader.Providers())
	loader.OnReload(func() {
		registry.Replace(llm.BuildFromConfig(loader.Providers()))
		level.Set(parseLevel(loader.Config().Telemetry.LogLevel))
		logger.Info("provider registry reloaded")
	})

	parser := intent.NewParser(registry, healthTracker, ratelimit.NewTenantQuota(rdb),
		func() config.ParserConfig { return loader.Config().Parser },
		func() int64 { return loader.Config().RateLimit.TenantDailyLLMCalls },
		metrics, logger)

	// Candidate resolution
	var embedder embed.Embedder
	if pc, ok := loader.Providers().Providers[cfg.Resolver.EmbedProvider]; ok {
		embedder = embed.NewCachedEmbedder(embed.New(pc, cfg.Resolver.EmbedModel), rdb, cfg.Resolver.EmbedCacheTTL)
	} else {
		logger.Warn("embedding provider not configured, ranking is lexical only", "provider", cfg.Resolver.EmbedProvider)
	}
	resolver := resolve.NewResolver(resolve.NewPGIndex(dbPool), embedder,
		func() config.ResolverConfig { return loader.Config().Resolver }, metrics, logger)

	// Drafting, policy and confirmation
	policy := action.NewPolicy(func() config.PolicyConfig { return loader.Config().Actions.Policy }, logger)
	if policy.Enabled() {
		if err := policy.Load(); err != nil {
			logger.Error("failed to load action policy (policy-gated actions will be denied)", "error", err)
		}
	}
	loader.OnReload(func() {
		if !policy.Enabled() {
			return
		}
		if err := policy.Load(); err != nil {
			logger.Error("failed to reload action policy", "error", err)
		}
	})
	drafter := action.NewDrafter(policy, func() config.ActionsConfig { return loader.Config().Actions }, logger)
	drafts := action.NewDraftStore(rdb, func() time.Duration { return loader.Config().Actions.DraftTTL }, logger)

	exec := executor.New(func() config.ExecutorConfig { return loader.Config().Executor },
		&http.Client{Transport: &http.Transport{MaxIdleConnsPerHost: 16, IdleConnTimeout: 90 * time.Second}},
		metrics, logger)

	// Audit and events
	auditWriter := audit.NewWriter(audit.NewPGStore(dbPool), func() config.AuditConfig { return loader.Config().Audit }, metrics, logger)

	hub := events.NewHub(func() int { return loader.Config().Events.SubscriberBuffer }, metrics, logger)
	if cfg.Events.RedisRelay && rdb != nil {
		relay := events.NewRedisRelay(rdb, uuid.NewString(), logger)
		hub.SetRelay(relay)
		go func() {
			if err := relay.Run(ctx, hub); err != nil {
				logger.Error("event relay stopped", "error", err)
			}
		}()
	}

	eng := engine.New(engine.Deps{
		Config:   loader.Config,
		Limiter:  ratelimit.NewLimiter(rdb),
		Parser:   parser,
		Resolver: resolver,
		Drafter:  drafter,
		Drafts:   drafts,
		Executor: exec,
		Audit:    auditWriter,
		Events:   hub,
		Scanner:  redact.NewScanner(),
		Metrics:  metrics,
		Logger:   logger,
	})

	idp, err := identity.NewProvider(cfg.Identity, identity.NewCachedKeyStore(dbPool, rdb))
	if err != nil {
		logger.Error("failed to build identity provider", "error", err)
		os.Exit(1)
	}

	// Readiness
	grpcHealth := health.NewServer()
	prober := server.NewProber(map[string]server.Check{
		server.ComponentLLM: func(context.Context) error {
			names := loader.Config().Parser.Providers
			if !healthTracker.AnyClosed(names) {
				return fmt.Errorf("every language-model circuit is open: %v", healthTracker.Snapshot(names))
			}
			return nil
		},
		server.ComponentVectorIndex: resolver.Ping,
		server.ComponentRedis: func(ctx context.Context) error {
			if rdb == nil {
				return errors.New("redis not configured")
			}
			return rdb.Ping(ctx).Err()
		},
		server.ComponentAudit: auditWriter.Ping,
	}, grpcHealth, func() time.Duration { return loader.Config().Routing.HealthCheckInterval }, logger)
	go prober.Run(ctx)

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, grpcHealth)
	grpcAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCHealthPort)
	grpcLis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logger.Error("failed to listen for grpc health", "addr", grpcAddr, "error", err)
		os.Exit(1)
	}
	go func() {
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Error("grpc health server error", "error", err)
		}
	}()

	metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	handler := server.NewHandler(eng, hub, logger)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     server.NewRouter(handler, idp, prober, version),
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout stays zero: /v1/events streams indefinitely and
		// each pipeline stage carries its own deadline.
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("intentd starting", "addr", addr, "grpc_health", grpcAddr, "metrics", metricsAddr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	grpcHealth.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	stop()
	if err := auditWriter.Close(shutdownCtx); err != nil {
		logger.Warn("audit writer did not drain", "error", err)
	}
	grpcServer.GracefulStop()
	metricsSrv.Shutdown(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("trace flush failed", "error", err)
	}
	if rdb != nil {
		rdb.Close()
	}
	logger.Info("intentd stopped")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
