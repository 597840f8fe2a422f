package conversation

import "context"

// ChatRole names the author of a ChatMessage.
type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	Role    ChatRole
	Content string
}

// LLMRequest is one completion call made by the phraser. System prompts are
// sent the way each provider expects; Temperature < 0 and TopP == 0 keep the
// provider defaults.
type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// TokenUsage is reported for logging only.
type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type LLMResponse struct {
	Text       string
	StopReason string
	Usage      TokenUsage
}

// LLMClient is implemented by GeminiLLMClient and BedrockLLMClient.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
