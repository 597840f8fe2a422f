package bootstrap

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/salon-sms-booking/internal/config"
	"github.com/wolfman30/salon-sms-booking/internal/conversation"
	"github.com/wolfman30/salon-sms-booking/pkg/logging"
)

// BuildPhraser wires the optional LLM that rewords replies. It returns a nil
// phraser when LLM_PROVIDER is none. The closer releases the client, if any.
func BuildPhraser(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.Phraser, io.Closer, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.LLMProvider {
	case "", "none":
		return nil, nil, nil
	case "gemini":
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: %w", err)
		}
		logger.Info("reply phrasing enabled", "provider", "gemini", "model", cfg.GeminiModelID)
		return conversation.NewLLMPhraser(client, cfg.GeminiModelID, cfg.MaxReplyLength), client, nil
	case "bedrock":
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		client := conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
		logger.Info("reply phrasing enabled", "provider", "bedrock", "model", cfg.BedrockModelID)
		return conversation.NewLLMPhraser(client, cfg.BedrockModelID, cfg.MaxReplyLength), nil, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}
