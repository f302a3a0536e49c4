// Package main wires together the tag crawler binary.
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

	"go.uber.org/zap"

	"github.com/chainintel/tagcrawler/internal/api"
	"github.com/chainintel/tagcrawler/internal/checkpoint"
	"github.com/chainintel/tagcrawler/internal/clock/system"
	"github.com/chainintel/tagcrawler/internal/config"
	"github.com/chainintel/tagcrawler/internal/crawl"
	"github.com/chainintel/tagcrawler/internal/fetcher/tagapi"
	"github.com/chainintel/tagcrawler/internal/logging"
	"github.com/chainintel/tagcrawler/internal/metrics"
	"github.com/chainintel/tagcrawler/internal/storage/postgres"
	"github.com/chainintel/tagcrawler/internal/taxonomy"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, stop); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("crawler exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, stop func()) error {
	metrics.Init()

	// Taxonomy problems are fatal at startup: nothing is crawled.
	tax, err := taxonomy.Load(cfg.Paths.TaxonomyFile)
	if err != nil {
		return fmt.Errorf("load taxonomy: %w", err)
	}
	logger.Info("taxonomy loaded",
		zap.String("path", cfg.Paths.TaxonomyFile),
		zap.Int("tags", tax.Len()),
	)

	cp, err := checkpoint.Load(cfg.Paths.CheckpointFile)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	logger.Info("checkpoint loaded",
		zap.String("path", cfg.Paths.CheckpointFile),
		zap.Int("completed_tags", cp.Len()),
	)

	store, err := postgres.Connect(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		ConnectAttempts: cfg.DB.ConnectAttempts,
		ConnectDelay:    time.Duration(cfg.DB.ConnectDelaySeconds) * time.Second,
	}, logger.Named("postgres"))
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := store.PrimeTaxonomy(ctx, tax.Document()); err != nil {
		return fmt.Errorf("prime taxonomy: %w", err)
	}

	fetcher := tagapi.New(tagapi.Config{
		BaseURL:        cfg.API.BaseURL,
		UserAgent:      cfg.API.UserAgent,
		Payload:        cfg.API.Payload,
		Timestamp:      cfg.API.Timestamp,
		Session:        cfg.API.Session,
		Timeout:        cfg.RequestTimeout(),
		MaxRetries:     cfg.API.MaxRetries,
		RetryDelay:     time.Duration(cfg.API.RetryDelaySeconds) * time.Second,
		RateLimitDelay: time.Duration(cfg.API.RateLimitDelaySeconds) * time.Second,
		RequestDelay:   time.Duration(cfg.API.RequestDelayMs) * time.Millisecond,
	}, logger.Named("fetcher"))

	crawler := crawl.New(
		fetcher,
		store,
		cp,
		tax,
		system.New(),
		crawl.Config{
			MaxPages:            cfg.Crawl.MaxPages,
			LoopRepeatThreshold: cfg.Crawl.LoopRepeatThreshold,
			LoopPageThreshold:   cfg.Crawl.LoopPageThreshold,
		},
		logger.Named("crawl"),
	)

	statusServer := api.NewServer(cp, crawler.Progress(), logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           statusServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("status server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server error", zap.Error(err))
			stop()
		}
	}()

	runErr := crawler.Run(ctx, tax.TagIDs())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	return runErr
}
