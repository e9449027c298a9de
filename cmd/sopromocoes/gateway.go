package main

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/luansfranca/sopromocoes/catalog"
	"github.com/luansfranca/sopromocoes/config"
	"github.com/luansfranca/sopromocoes/storefront"
)

//go:embed fixtures/demo.yaml
var demoFixtures []byte

// openGateway builds the configured catalog backend. The returned close
// function is never nil.
func openGateway(ctx context.Context, cfg *config.Config) (catalog.Gateway, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendREST:
		gw, err := catalog.NewREST(catalog.RESTOptions{
			BaseURL:   cfg.CatalogURL,
			APIKey:    cfg.CatalogKey,
			Timeout:   cfg.QueryTimeout,
			UserAgent: cfg.UserAgent,
		})
		if err != nil {
			return nil, noop, err
		}
		return gw, noop, nil

	case config.BackendPostgres, config.BackendSQLite:
		dialect, err := catalog.DialectByName(cfg.Backend)
		if err != nil {
			return nil, noop, err
		}
		gw, err := catalog.OpenSQL(ctx, dialect, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		if cfg.Backend == config.BackendSQLite {
			if err := gw.EnsureSchema(ctx); err != nil {
				gw.Close()
				return nil, noop, err
			}
		}
		return gw, gw.Close, nil

	case config.BackendMemory:
		mem := catalog.NewMemory()
		data := demoFixtures
		if cfg.FixturesFile != "" {
			b, err := os.ReadFile(cfg.FixturesFile)
			if err != nil {
				return nil, noop, fmt.Errorf("read fixtures: %w", err)
			}
			data = b
		}
		if err := mem.LoadFixtures(bytes.NewReader(data)); err != nil {
			return nil, noop, err
		}
		return mem, noop, nil

	default:
		return nil, noop, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

// newControllerFactory shares one resolver and one metrics set between all
// controllers it builds.
func newControllerFactory(gw catalog.Gateway, cfg *config.Config, metrics *storefront.Metrics) (func() (*storefront.Controller, error), error) {
	policy, err := storefront.ParseFailurePolicy(cfg.FailurePolicy)
	if err != nil {
		return nil, err
	}
	resolver, err := storefront.NewResolver(gw, cfg.CategoryCacheSize, metrics)
	if err != nil {
		return nil, err
	}
	slog.Debug("catalog ready",
		slog.String("backend", cfg.Backend),
		slog.String("policy", policy.String()),
		slog.Duration("query_timeout", cfg.QueryTimeout),
	)
	return func() (*storefront.Controller, error) {
		return storefront.New(gw, storefront.Options{
			QueryTimeout: cfg.QueryTimeout,
			Policy:       policy,
			Metrics:      metrics,
			Resolver:     resolver,
		})
	}, nil
}
