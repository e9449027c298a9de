package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/luansfranca/sopromocoes/config"
	"github.com/luansfranca/sopromocoes/server"
	"github.com/luansfranca/sopromocoes/storefront"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the storefront API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP listen address")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Separate Prometheus listen address (e.g. :9090)")
	flags.StringVar(&cfg.SessionStore, "session-store", cfg.SessionStore, "Selection store: memory or redis")
	flags.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for the redis session store")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, closeGateway, err := openGateway(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer closeGateway()

	metrics := storefront.NewMetrics()
	factory, err := newControllerFactory(gw, cfg, metrics)
	if err != nil {
		return err
	}

	store, closeStore, err := openSelectionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	srv, err := server.New(server.Options{
		Factory:        factory,
		Store:          store,
		MaxSessions:    cfg.MaxSessions,
		SessionTTL:     cfg.SessionTTL,
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        metrics,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	servers := []*http.Server{httpServer}

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		servers = append(servers, metricsServer)
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	errCh := make(chan error, len(servers))
	for _, s := range servers {
		go func(s *http.Server) {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", s.Addr, err)
			}
		}(s)
	}
	slog.Info("serving storefront",
		slog.String("addr", cfg.ListenAddr),
		slog.String("backend", cfg.Backend),
		slog.String("session_store", cfg.SessionStore),
	)

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections")
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, s := range servers {
		if shutdownErr := s.Shutdown(shutdownCtx); shutdownErr != nil {
			slog.Error("server shutdown failed", slog.String("addr", s.Addr), slog.Any("error", shutdownErr))
		}
	}
	return err
}

func openSelectionStore(ctx context.Context, cfg *config.Config) (server.SelectionStore, func() error, error) {
	// Stored selections outlive the live sessions they back.
	storeTTL := cfg.SessionTTL * 4
	if cfg.SessionStore != config.StoreRedis {
		return server.NewMemoryStore(cfg.MaxSessions*4, storeTTL), func() error { return nil }, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	store, err := server.NewRedisStore(pingCtx, rdb, storeTTL)
	if err != nil {
		rdb.Close()
		return nil, nil, err
	}
	return store, rdb.Close, nil
}
