package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pior/memcached"
	"github.com/pior/memcached/internal/promexporter"
	"github.com/pior/memcached/store"
)

func main() {
	cfg, err := loadConfig(os.Args[1:], ".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "memcached: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(os.Stderr, cfg.logLevel, cfg.logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "memcached: %v\n", err)
		os.Exit(2)
	}
	slog.SetDefault(logger)
	cfg.logSources(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("memcached: exiting", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg serverConfig, logger *slog.Logger) error {
	st, readThrough, err := buildStore(cfg, logger)
	if err != nil {
		return err
	}

	srv, err := memcached.NewServer(st, cfg.engineConfig(logger))
	if err != nil {
		return err
	}

	if cfg.metricsAddr != "" {
		exporter := promexporter.NewExporter()
		promexporter.NewServerMetrics(exporter.Registry(), srv.Stats)
		if readThrough != nil {
			promexporter.RegisterBreakerState(exporter.Registry(), "dir", readThrough.BreakerState)
		}

		go func() {
			logger.Info("memcached: serving metrics", "addr", cfg.metricsAddr)
			if err := exporter.ListenAndServe(ctx, cfg.metricsAddr); err != nil {
				logger.Error("memcached: metrics server failed", "error", err)
			}
		}()
	}

	err = srv.ListenAndServe(ctx, cfg.addr)
	if readThrough != nil {
		readThrough.Wait()
	}
	if errors.Is(err, memcached.ErrServerClosed) {
		logger.Info("memcached: stopped", "stats", fmt.Sprintf("%+v", srv.Stats()))
		return nil
	}
	return err
}

// buildStore returns the store to serve and, when a source directory is
// configured, the read-through layer in front of it.
func buildStore(cfg serverConfig, logger *slog.Logger) (store.Store, *store.ReadThrough, error) {
	cache := store.NewSharded(cfg.shards)

	if cfg.seedPath != "" {
		items, err := loadSeed(cfg.seedPath)
		if err != nil {
			return nil, nil, err
		}
		for _, item := range items {
			cache.Set(item)
		}
		logger.Info("memcached: seed loaded", "path", cfg.seedPath, "items", len(items))
	}

	if cfg.sourceDir == "" {
		return cache, nil, nil
	}

	info, err := os.Stat(cfg.sourceDir)
	if err != nil {
		return nil, nil, fmt.Errorf("source-dir: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("source-dir: %s is not a directory", cfg.sourceDir)
	}

	rt := store.NewReadThrough(store.NewDirSource(cfg.sourceDir), cache, store.ReadThroughConfig{Logger: logger})
	return rt, rt, nil
}
