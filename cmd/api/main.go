package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docminer/internal/api"
	"docminer/internal/app"
	"docminer/internal/config"
	"docminer/internal/logging"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("load config", "err", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("build components", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	deps := api.Deps{
		Docs:        a.Docs,
		Extractions: a.Docs,
		Ingestor:    a.Ingestor,
		RAG:         a.RAG,
		Logger:      logger,
	}
	if cfg.TemporalEnabled {
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
		deps.Temporal = c
	}

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           api.NewServer(cfg, deps).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("docminer api listening", "addr", cfg.APIAddr, "temporal", cfg.TemporalEnabled, "llm_providers", cfg.LLMProviders, "embed_providers", cfg.EmbedProviders)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("serve", "err", err)
		os.Exit(1)
	}
}
