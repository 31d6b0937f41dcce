package main

import (
	"context"
	"os"

	"docminer/internal/activities"
	"docminer/internal/app"
	"docminer/internal/config"
	"docminer/internal/logging"
	"docminer/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("load config", "err", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		logger.Error("dial temporal", "address", cfg.TemporalAddress, "err", err)
		os.Exit(1)
	}
	defer c.Close()

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("build components", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: cfg.IngestWorkers * 2,
	})
	workflows.Register(w)
	activities.Register(w, a.Activities())

	logger.Info("docminer worker listening", "address", cfg.TemporalAddress, "queue", cfg.TemporalTaskQueue, "llm_providers", cfg.LLMProviders, "embed_providers", cfg.EmbedProviders)
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Error("worker stopped", "err", err)
		os.Exit(1)
	}
}
