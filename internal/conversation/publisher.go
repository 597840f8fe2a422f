package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/salon-sms-booking/pkg/logging"
)

// Publisher enqueues inbound texts for the worker.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
	now    Clock
}

func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger, now: time.Now}
}

// EnqueueMessage publishes msg. id is the provider message id when known and
// doubles as the dedupe key.
func (p *Publisher) EnqueueMessage(ctx context.Context, id string, msg InboundMessage) error {
	if msg.From == "" {
		return errMissingSender
	}
	payload, body, err := encodePayload(queuePayload{ID: id, Message: msg, EnqueuedAt: p.now().UTC()})
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, msg.From, payload.ID, body); err != nil {
		return fmt.Errorf("conversation: failed to enqueue message: %w", err)
	}
	p.logger.Debug("inbound message enqueued", "job_id", payload.ID, "phone", logging.MaskPhone(msg.From))
	return nil
}
