package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sahaana/coopvault/backend/internal/config"
	"github.com/sahaana/coopvault/backend/internal/ledger"
	"github.com/sahaana/coopvault/backend/internal/logging"
	"github.com/sahaana/coopvault/backend/internal/mail"
	"github.com/sahaana/coopvault/backend/internal/notify"
	"github.com/sahaana/coopvault/backend/internal/server"
	"github.com/sahaana/coopvault/backend/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.Mongo.Timeout)
	store, err := ledger.NewMongoStore(connectCtx, ledger.MongoOptions{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
	})
	connectCancel()
	if err != nil {
		logger.Error("failed to connect to ledger store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Warn("closing ledger store failed", "error", err)
		}
	}()

	hub := notify.NewHub(logger)

	dispatcher := mail.NewDispatcher(buildSender(logger, cfg.Mail), logger, cfg.Mail.Workers, cfg.Mail.MaxRetries)

	approvals := service.NewApprovalService(store, hub, dispatcher, logger)
	listings := service.NewListingService(store)
	adminHandlers := server.NewAdminHandlers(logger, approvals, listings)
	wsHandler := server.NewWSHandler(logger, hub)

	router := server.NewRouter(logger, server.RouterDependencies{
		Health:           server.StoreHealthService{Store: store},
		Admin:            adminHandlers,
		WS:               wsHandler,
		AllowedOrigins:   parseAllowedOrigins(cfg.HTTP.AllowedOriginsCSV),
		AllowCredentials: true,
	})

	srv := server.New(logger, cfg.HTTP, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("server stopped unexpectedly", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	// Flush queued emails before dropping websocket sessions.
	dispatcher.Close()
	hub.Close()
}

func buildSender(logger *slog.Logger, cfg config.MailConfig) mail.Sender {
	if cfg.Backend == "file" || cfg.Host == "" {
		logger.Info("using file mail backend", "dir", cfg.OutputDir)
		return mail.FileSender{Dir: cfg.OutputDir}
	}
	return mail.NewSMTPSender(cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.From)
}

func parseAllowedOrigins(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	var origins []string
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		origins = append(origins, origin)
	}
	return origins
}
