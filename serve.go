package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ampplex/InfluencerFlow-sub001/config"
	"github.com/Ampplex/InfluencerFlow-sub001/handler"
	"github.com/Ampplex/InfluencerFlow-sub001/pkg/contractpdf"
	"github.com/Ampplex/InfluencerFlow-sub001/pkg/logger"
	"github.com/Ampplex/InfluencerFlow-sub001/pkg/metrics"
	"github.com/Ampplex/InfluencerFlow-sub001/service"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	metrics.Register()

	ctx := cmd.Context()

	repo, closeStore, err := openStore(ctx, &cfg.Store, false)
	if err != nil {
		return err
	}
	defer closeStore()

	blobs, err := service.NewMinioService(&cfg.Minio)
	if err != nil {
		return fmt.Errorf("failed to initialize minio client: %w", err)
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure bucket %s: %w", cfg.Minio.Bucket, err)
	}

	renderer := contractpdf.NewRenderer(time.Duration(cfg.Render.FetchTimeoutSeconds) * time.Second)
	contracts := service.NewContractService(repo, blobs, renderer)

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(cfg, handler.NewContractHandler(contracts))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port, "store", cfg.Store.Driver, "verify_tokens", cfg.Auth.VerifyTokens)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-quit:
	}
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server exited gracefully")
	return nil
}

// openStore builds the configured contract repository. The returned func
// releases any pool it opened.
func openStore(ctx context.Context, cfg *config.StoreConfig, migrate bool) (service.ContractRepository, func(), error) {
	switch cfg.Driver {
	case config.DriverMemory:
		slog.Warn("using in-memory contract store, contents are lost on restart")
		return service.NewMemoryStore(), func() {}, nil
	case config.DriverPostgres:
		pool, err := service.Connect(ctx, cfg.DatabaseURL, cfg.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		store := service.NewPostgresStore(pool)
		if migrate {
			if err := store.Migrate(ctx); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
