package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/meddocs/internal/api/handlers"
	"github.com/cloo-solutions/meddocs/internal/api/middleware"
	"github.com/cloo-solutions/meddocs/internal/logger"
	"github.com/cloo-solutions/meddocs/internal/server"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the meddocs API server and the background processing worker",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides MEDDOCS_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().String("migrations", defaultMigrationsDir, "Directory holding the SQL migrations")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New("serve")

	flush := initTelemetry(cfg)
	defer flush()

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); !noMigrate {
		dir, _ := cmd.Flags().GetString("migrations")
		if err := runMigrations(cfg.DatabaseURL, dir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	// Jobs left in processing were interrupted by a previous shutdown.
	requeued, err := app.Jobs.RequeueProcessing(ctx)
	if err != nil {
		return fmt.Errorf("failed to requeue interrupted jobs: %w", err)
	}
	if requeued > 0 {
		log.Info("requeued interrupted jobs", "count", requeued)
	}

	go app.Worker.Start(ctx)

	var driveBrowser handlers.DriveBrowser
	if app.Drive != nil {
		driveBrowser = app.Drive
	}

	router := server.NewRouter(server.RouterConfig{
		APIToken:        cfg.APIToken,
		MaxBodyBytes:    cfg.MaxUploadBytes + multipartOverhead,
		RateLimiter:     middleware.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		DocumentHandler: handlers.NewDocumentHandler(app.Documents),
		ChatHandler: handlers.NewChatHandler(app.Chat, app.Retriever, handlers.SearchDefaults{
			K:             cfg.QATopK,
			MinSimilarity: cfg.QAMinSimilarity,
		}),
		ReportHandler: handlers.NewReportHandler(app.Reports),
		DriveHandler:  handlers.NewDriveHandler(driveBrowser, app.Documents),
	})
	if !cfg.HasAPIToken() {
		log.Warn("MEDDOCS_API_TOKEN is not set; the API is unauthenticated")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down")

	app.Worker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}

// multipartOverhead leaves room for form boundaries and the metadata field
// on top of the largest accepted file.
const multipartOverhead = 1 << 20
