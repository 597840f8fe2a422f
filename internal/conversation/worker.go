package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/salon-sms-booking/internal/observability/metrics"
	"github.com/wolfman30/salon-sms-booking/pkg/logging"
)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 10
	defaultBatchSize     = 5
	deleteTimeoutSeconds = 5
	sendTimeoutSeconds   = 15
)

// MessageHandler turns an inbound text into a reply. *Engine implements it.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg InboundMessage) (Reply, error)
}

// ReplySender delivers a reply over SMS.
type ReplySender interface {
	SendSMS(ctx context.Context, to, from, body string) error
}

// Worker consumes queued inbound texts, runs them through the handler, and
// sends the replies.
type Worker struct {
	handler MessageHandler
	queue   Queue
	sender  ReplySender
	logger  *logging.Logger
	metrics *metrics.MessagingMetrics
	tracer  trace.Tracer
	cfg     workerConfig
	wg      sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	metrics          *metrics.MessagingMetrics
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumers.
func WithWorkerCount(n int) WorkerOption {
	return func(cfg *workerConfig) {
		if n > 0 {
			cfg.workers = n
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait for each receive.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds >= 0 {
			cfg.receiveWaitSecs = seconds
		}
	}
}

// WithReceiveBatchSize sets the max messages per receive.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size > 0 {
			cfg.receiveBatchSize = size
		}
	}
}

func WithWorkerMetrics(m *metrics.MessagingMetrics) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.metrics = m
	}
}

func NewWorker(handler MessageHandler, queue Queue, sender ReplySender, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if handler == nil {
		panic("conversation: message handler cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if sender == nil {
		panic("conversation: reply sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		handler: handler,
		queue:   queue,
		sender:  sender,
		logger:  logger,
		metrics: cfg.metrics,
		tracer:  otel.Tracer("salon.internal.conversation.worker"),
		cfg:     cfg,
	}
}

// Start launches the consumers. They stop when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("conversation worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("conversation worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive inbound messages", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

// handleMessage deletes the queue message once the engine has run, even if the
// reply could not be delivered: replaying the text would advance the
// conversation twice.
func (w *Worker) handleMessage(ctx context.Context, msg QueueMessage) {
	ctx, span := w.tracer.Start(ctx, "conversation.worker.handle")
	defer span.End()

	payload, err := decodePayload(msg.Body)
	if err != nil {
		span.RecordError(err)
		w.logger.Error("dropping undecodable inbound message", "error", err, "queue_message_id", msg.ID)
		w.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}
	logger := w.logger.With("job_id", payload.ID).WithPhone(payload.Message.From)

	reply, err := w.handler.HandleMessage(ctx, payload.Message)
	if err != nil {
		span.RecordError(err)
		logger.Error("failed to handle inbound message", "error", err)
		w.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}

	if strings.TrimSpace(reply.Body) != "" {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeoutSeconds*time.Second)
		err = w.sender.SendSMS(sendCtx, reply.To, reply.From, reply.Body)
		cancel()
		if err != nil {
			span.RecordError(err)
			w.metrics.ObserveOutbound("async", "failed")
			logger.Error("failed to send reply", "error", err)
		} else {
			w.metrics.ObserveOutbound("async", "sent")
			logger.Info("reply sent", "step", reply.Step)
		}
	}

	w.deleteMessage(ctx, msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete inbound message", "error", err)
	}
}
