package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/salon-sms-booking/internal/config"
	"github.com/wolfman30/salon-sms-booking/internal/conversation"
)

// BuildQueue returns the conversation queue used in async reply mode.
func BuildQueue(ctx context.Context, cfg *appconfig.Config) (conversation.Queue, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	switch cfg.QueueBackend {
	case "", "memory":
		return conversation.NewMemoryQueue(0), nil
	case "sqs":
		if cfg.ConversationQueueURL == "" {
			return nil, fmt.Errorf("bootstrap: CONVERSATION_QUEUE_URL is required for sqs")
		}
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			o.BaseEndpoint = endpointOverride(cfg)
		})
		return conversation.NewSQSQueue(client, cfg.ConversationQueueURL), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}
}
