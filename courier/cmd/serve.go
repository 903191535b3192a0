package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courier/courier/controllers"
	"courier/courier/routes"
	"courier/courier/utils/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket gateway",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.Sync()
	log := logging.AppLogger

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	b, err := openBackends(ctx, cfg)
	cancel()
	if err != nil {
		log.Error("backend connection error", zap.Error(err))
		return err
	}
	defer b.close()

	handler := routes.NewRouter(routes.Handlers{
		Auth:            controllers.NewAuthController(b.users, b.tokens, log),
		Users:           controllers.NewUserController(b.users),
		Health:          controllers.NewHealthController(b.healthChecks()),
		Gateway:         b.gatewayController(),
		Blobs:           b.blobs,
		Tokens:          b.tokens,
		Metrics:         b.metrics,
		InsecureOrigins: cfg.IsDevelopment(),
		Log:             log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("server listen error", zap.Error(err))
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
		return err
	}
	log.Info("server shutdown complete")
	return nil
}
