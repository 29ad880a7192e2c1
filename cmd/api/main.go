package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/app/migrate"
	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/cluster"
	httpx "github.com/YoubetDao/MCPForge-Backend-sub000/internal/http"
	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/repository/postgres"
	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/service/catalog"
	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/service/mcpserver"
	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/ws"
	"github.com/YoubetDao/MCPForge-Backend-sub000/pkg/config"
	"github.com/YoubetDao/MCPForge-Backend-sub000/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clusterClient, err := newClusterClient(cfg.Cluster, log)
	if err != nil {
		log.Error("failed to configure cluster client", "error", err)
		os.Exit(1)
	}

	policy, err := loadPolicy(cfg)
	if err != nil {
		log.Error("failed to load mcp server policy", "error", err)
		os.Exit(1)
	}

	servers := mcpserver.New(clusterClient, policy, mcpserver.Options{
		Namespace:         cfg.Cluster.Namespace,
		APIVersion:        cfg.Cluster.Group + "/" + cfg.Cluster.Version,
		Port:              int32(cfg.MCPServer.Port),
		Transport:         cfg.MCPServer.Transport,
		PermissionProfile: cfg.MCPServer.PermissionProfile,
	}, log)
	poller := mcpserver.NewPoller(servers, mcpserver.PollerConfig{
		Interval:     cfg.MCPServer.PollInterval,
		MaxAttempts:  cfg.MCPServer.PollAttempts,
		SafetyBuffer: cfg.MCPServer.PollBuffer,
		Registerer:   prometheus.DefaultRegisterer,
	}, log)
	hub := ws.NewHub()
	watcher := mcpserver.NewWatcher(poller, httpx.ObservationPublisher(hub))

	healthChecks := map[string]httpx.HealthCheck{"cluster": clusterClient.Health}

	var catalogSvc httpx.CatalogService
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
		if err != nil {
			log.Error("failed to configure migrations", "error", err)
			os.Exit(1)
		}
		defer runner.Close()
		if err := runner.Ping(ctx); err != nil {
			log.Error("database ping failed", "error", err)
			os.Exit(1)
		}
		if cfg.AutoMigrate {
			if err := runner.Ensure(ctx); err != nil {
				log.Error("migrations failed", "error", err)
				os.Exit(1)
			}
		} else if statuses, err := runner.Status(ctx); err != nil {
			log.Warn("migration status unavailable", "error", err)
		} else if pending := migrate.Pending(statuses); len(pending) > 0 {
			log.Warn("automatic migrations disabled with pending migrations", "pending", len(pending), "next", pending[0].Path)
		}

		var importer catalog.Importer
		if url := strings.TrimSpace(cfg.DeepflowURL); url != "" {
			importer = catalog.NewDeepflowImporter(url, nil)
		} else {
			log.Info("deepflow importer disabled, cards are created from repository urls")
		}
		catalogSvc = catalog.New(postgres.New(pool), importer, servers, log)
		healthChecks["database"] = pool.Ping
	} else {
		log.Warn("DATABASE_URL not set, catalog routes disabled")
	}

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET not set, every authenticated route will reject requests")
	}

	router := httpx.NewRouter(httpx.Dependencies{
		Logger:        log,
		Servers:       servers,
		Waiter:        watcher,
		Catalog:       catalogSvc,
		Hub:           hub,
		Limiter:       limiter,
		JWTSecret:     cfg.JWTSecret,
		SessionCookie: cfg.SessionCookieName,
		HealthChecks:  healthChecks,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "environment", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

func newClusterClient(cc config.ClusterConfig, log *slog.Logger) (*cluster.Client, error) {
	clusterCfg, err := cluster.ResolveCredentials(cluster.Config{
		Host:         cc.Host,
		BearerToken:  cc.BearerToken,
		Namespace:    cc.Namespace,
		Group:        cc.Group,
		Version:      cc.Version,
		Resource:     cc.Resource,
		UserAgent:    cc.UserAgent,
		CAFile:       cc.CAFile,
		Timeout:      cc.RequestTimeout,
		MaxRedirects: cc.MaxRedirects,
	}, cc.Kubeconfig)
	if err != nil {
		return nil, err
	}
	return cluster.New(clusterCfg, log)
}

func loadPolicy(cfg config.APIConfig) (*mcpserver.Policy, error) {
	mc := cfg.MCPServer
	if strings.TrimSpace(mc.PolicyFile) == "" {
		return mcpserver.DefaultPolicy(mc.DefaultCPU, mc.DefaultMemory), nil
	}
	return mcpserver.LoadPolicy(mc.PolicyFile, mcpserver.ImageDefaults{
		CPU:    mc.DefaultCPU,
		Memory: mc.DefaultMemory,
	}, cfg.EnvEncryptionKey)
}
