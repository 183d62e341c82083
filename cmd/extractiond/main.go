package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/toyiyo/nimble-pnl-sub019/internal/categorize"
	"github.com/toyiyo/nimble-pnl-sub019/internal/common"
	"github.com/toyiyo/nimble-pnl-sub019/internal/docfetch"
	"github.com/toyiyo/nimble-pnl-sub019/internal/export"
	"github.com/toyiyo/nimble-pnl-sub019/internal/extract"
	"github.com/toyiyo/nimble-pnl-sub019/internal/pipeline"
	"github.com/toyiyo/nimble-pnl-sub019/internal/provider"
	"github.com/toyiyo/nimble-pnl-sub019/internal/registry"
	"github.com/toyiyo/nimble-pnl-sub019/internal/repository"
	"github.com/toyiyo/nimble-pnl-sub019/internal/server"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(pool, logger)

	if err := repository.HealthCheck(ctx, pool, cfg.Database.DialTimeout, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}

	receiptModels := registry.ReceiptModels()
	statementModels := registry.StatementModels()

	caller := provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.RequestTimeout, logger)

	receiptOrch := extract.NewOrchestrator(receiptModels, caller, cfg.Provider.ReceiptStreamLimit, 0, logger)
	statementOrch := extract.NewOrchestrator(statementModels, caller, cfg.Provider.StatementStreamLimit, 0, logger)

	docs := repository.NewDocumentStore(pool, logger)
	receiptPipe := pipeline.NewReceiptPipeline(docs, receiptOrch, repository.NewReceiptStore(pool, logger), logger)
	statementStore := repository.NewStatementStore(pool, logger)
	statementPipe := pipeline.NewStatementPipeline(docs, statementOrch, statementStore, logger)

	categorizer := categorize.NewService(categorize.Config{
		BaseURL:   cfg.Provider.BaseURL,
		APIKey:    cfg.Provider.APIKey,
		Model:     cfg.Categorize.Model,
		BatchSize: cfg.Categorize.BatchSize,
		Timeout:   cfg.Categorize.Timeout,
	}, statementStore, logger)

	exporter := export.NewService(statementStore, logger)
	fetcher := docfetch.NewFetcher(cfg.Provider.DownloadTimeout, int64(cfg.Provider.MaxDocumentBytes), logger)

	srv := server.New(server.Config{
		AuthToken:        cfg.Server.AuthToken,
		MaxDocumentBytes: int64(cfg.Provider.MaxDocumentBytes),
	}, receiptPipe, statementPipe, categorizer, exporter, fetcher, pool.Ping, logger)

	if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
