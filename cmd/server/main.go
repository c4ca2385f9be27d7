package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wso2/abdm-integration-api/internal/config"
	"github.com/wso2/abdm-integration-api/internal/router"
)

// Version information (set by build script)
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "abdm-server",
		Short:        "ABDM consent and health record fetch service",
		SilenceUsage: true,
	}
	// CONFIG_PATH env var > --config > auto-discovery under ./configs
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to the configuration file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(sweepCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, callback workers and expiry sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(*configPath)
		},
	}
}

func sweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one consent expiry sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), *configPath)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "abdm-server %s (built %s)\n", version, buildDate)
		},
	}
}

func loadConfig(configPath string) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger := newLogger(&cfg.Logging)
	logger.WithFields(logrus.Fields{
		"config_path": configPath,
		"log_level":   logger.GetLevel().String(),
	}).Info("Configuration loaded successfully")
	return cfg, logger, nil
}

func runServer(configPath string) error {
	// Set Gin to release mode by default (can be overridden by GIN_MODE env var)
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"version":    version,
		"build_date": buildDate,
	}).Info("Starting ABDM integration server...")

	app, err := newApplication(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize application")
		return err
	}
	defer app.close()

	opts := router.Options{
		Consents:        app.consentHandler,
		HealthRecords:   app.healthRecordHandler,
		Callbacks:       app.callbackHandler,
		Health:          app.db,
		CallbackMaxBody: cfg.Callback.MaxBodyBytes,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsPath:     cfg.Metrics.Path,
	}
	if cfg.Callback.VerifySignatures {
		opts.CallbackSigner = app.credentials
	}

	serverAddr := cfg.Server.GetServerAddress()
	server := &http.Server{
		Addr:           serverAddr,
		Handler:        router.SetupRouter(opts),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.dispatcher.Run(gctx)
	})

	app.sweeper.Start(gctx)
	defer app.sweeper.Stop()

	g.Go(func() error {
		logger.WithField("addr", serverAddr).Info("Starting HTTP server...")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Server stopped with error")
		return err
	}

	logger.Info("Server exited gracefully")
	return nil
}

func runSweep(ctx context.Context, configPath string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	app, err := newApplication(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize application")
		return err
	}
	defer app.close()

	result, err := app.sweeper.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("expiry sweep failed: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"requests_expired":  result.RequestsExpired,
		"artifacts_expired": result.ArtifactsExpired,
		"consents_expired":  result.ConsentsExpired,
	}).Info("Expiry sweep finished")
	return nil
}
