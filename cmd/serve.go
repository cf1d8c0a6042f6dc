package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"token_renewer/internal/delivery/httpapi"
	"token_renewer/internal/domain"
	"token_renewer/internal/logger"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the renewal daemon and its HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(*configPath)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.close()

	a.bootstrapAccounts()

	a.scheduler.Start()
	if err := a.control.Start(ctx); err != nil {
		logger.Error().Printf("Failed to restore scheduled renewals: %v", err)
	}

	a.host.Watch(func(tab domain.Tab) {
		a.injector.HandleTabLoaded(ctx, tab)
	})

	apiServer := httpapi.NewServer(cfg, a.control)
	if err := apiServer.Start(); err != nil {
		a.scheduler.Stop(ctx)
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info().Println("Token renewer started. Press Ctrl+C to stop.")
	<-sigChan

	logger.Info().Println("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Printf("HTTP API shutdown error: %v", err)
	}
	a.scheduler.Stop(shutdownCtx)
	logger.Info().Println("Token renewer stopped.")
	return nil
}
