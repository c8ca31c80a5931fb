package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatwave/console/internal/api"
	"github.com/chatwave/console/internal/billing"
	"github.com/chatwave/console/internal/checkout"
	"github.com/chatwave/console/internal/config"
	"github.com/chatwave/console/internal/logging"
	"github.com/chatwave/console/internal/platforms"
	"github.com/chatwave/console/internal/websocket"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "console",
	Short:   "ChatWave Console - messaging automation dashboard",
	Long:    `ChatWave Console serves the dashboard for the ChatWave messaging-automation platform, including the subscription checkout workflow.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ChatWave Console %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	// Baseline logger for early startup messages
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "console",
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Re-initialize logging with configuration-driven settings
	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "console",
	})

	client, err := billing.NewClient(billing.ClientConfig{
		BaseURL: cfg.BillingAPIURL,
		Timeout: cfg.RequestTimeout,
		Retries: cfg.NetworkRetries,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create billing client")
	}

	catalog := billing.NewCatalog(client)
	store := checkout.NewCheckpointStore(cfg.DataDir)
	registry := platforms.NewRegistry()

	orchestrator := checkout.NewOrchestrator(
		catalog,
		checkout.NewTierSelector(catalog, store),
		checkout.NewGatewaySession(client, store),
		checkout.NewStatusPoller(client, cfg.PollInterval, cfg.PollDeadline),
		checkout.NewProvisioner(store, registry),
		store,
		client,
	)

	hub := websocket.NewHub(func() interface{} {
		return orchestrator.Snapshot()
	})
	orchestrator.OnChange(func(snap checkout.Snapshot) {
		hub.BroadcastState(snap)
	})

	router := api.NewRouter(orchestrator, hub)
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		hub.Run(ctx)
		return nil
	})

	group.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Msg("Console HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		orchestrator.Cancel()
		return server.Shutdown(shutdownCtx)
	})

	// A persisted order checkpoint means the user is coming back from the
	// payment gateway; resume confirmation without waiting for the UI.
	group.Go(func() error {
		if err := orchestrator.ResumeFromCheckpoint(ctx); err != nil {
			log.Warn().Err(err).Msg("Checkout resume on startup finished with error")
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Console terminated")
	}
	log.Info().Msg("Console shut down cleanly")
}
