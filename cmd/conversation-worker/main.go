package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wolfman30/salon-sms-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/salon-sms-booking/internal/config"
	"github.com/wolfman30/salon-sms-booking/pkg/logging"
)

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.SMSReplyMode != appconfig.ReplyModeAsync || cfg.QueueBackend != "sqs" {
		logger.Error("conversation worker requires SMS_REPLY_MODE=async and QUEUE_BACKEND=sqs",
			"reply_mode", cfg.SMSReplyMode,
			"queue_backend", cfg.QueueBackend,
		)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build worker dependencies", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	worker, err := app.NewWorker()
	if err != nil {
		logger.Error("failed to create conversation worker", "error", err)
		os.Exit(1)
	}
	logger.Info("starting conversation worker", "workers", cfg.WorkerCount, "queue_url", cfg.ConversationQueueURL)
	worker.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down conversation worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}
}
