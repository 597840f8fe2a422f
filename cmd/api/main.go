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

	"github.com/wolfman30/salon-sms-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/salon-sms-booking/internal/config"
	"github.com/wolfman30/salon-sms-booking/internal/conversation"
	"github.com/wolfman30/salon-sms-booking/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting salon SMS booking API",
		"env", cfg.Env,
		"port", cfg.Port,
		"reply_mode", cfg.SMSReplyMode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	app, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	worker, err := inProcessWorker(app)
	if err != nil {
		return err
	}
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	if worker != nil {
		logger.Info("starting in-process conversation worker", "workers", cfg.WorkerCount)
		worker.Start(workerCtx)
	}

	srv := newServer(cfg, app.HTTPHandler())
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	if worker != nil {
		cancelWorker()
		waitForWorker(shutdownCtx, worker, logger)
	}
	return nil
}

// inProcessWorker returns a worker when replies are queued in memory. SQS
// deployments run cmd/conversation-worker instead.
func inProcessWorker(app *bootstrap.App) (*conversation.Worker, error) {
	if app.Config.SMSReplyMode != appconfig.ReplyModeAsync {
		return nil, nil
	}
	if _, ok := app.Queue.(*conversation.MemoryQueue); !ok {
		return nil, nil
	}
	return app.NewWorker()
}

func newServer(cfg *appconfig.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func waitForWorker(ctx context.Context, worker *conversation.Worker, logger *logging.Logger) {
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("conversation worker stopped")
	case <-ctx.Done():
		logger.Error("conversation worker shutdown timed out", "error", ctx.Err())
	}
}
