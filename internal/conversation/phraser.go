package conversation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Phraser rewords a finished reply. It never decides content.
type Phraser interface {
	Phrase(ctx context.Context, draft string, facts []string) (string, error)
}

const phraserSystemPrompt = `You reword SMS replies for a head spa's booking assistant.
Rewrite the reply so it sounds warm and natural. Rules:
- Keep every listed fact exactly as written (service names, dates, times, prices).
- Do not add times, dates, prices, services, links, or promises that are not in the reply.
- Keep the same question or next step the reply ends with.
- Plain text only, no emoji, at most %d characters.
Return only the rewritten reply.`

// LLMPhraser rewords replies through an LLMClient.
type LLMPhraser struct {
	client    LLMClient
	model     string
	maxLength int
}

func NewLLMPhraser(client LLMClient, model string, maxLength int) *LLMPhraser {
	if client == nil {
		panic("conversation: llm client required")
	}
	if maxLength <= 0 {
		maxLength = MaxReplyLength
	}
	return &LLMPhraser{client: client, model: model, maxLength: maxLength}
}

func (p *LLMPhraser) Phrase(ctx context.Context, draft string, facts []string) (string, error) {
	var prompt strings.Builder
	prompt.WriteString("Reply:\n")
	prompt.WriteString(draft)
	if len(facts) > 0 {
		prompt.WriteString("\n\nFacts to keep verbatim:\n")
		for _, fact := range facts {
			if strings.TrimSpace(fact) == "" {
				continue
			}
			prompt.WriteString("- ")
			prompt.WriteString(fact)
			prompt.WriteString("\n")
		}
	}

	resp, err := p.client.Complete(ctx, LLMRequest{
		Model:       p.model,
		System:      []string{fmt.Sprintf(phraserSystemPrompt, p.maxLength)},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: prompt.String()}},
		MaxTokens:   256,
		Temperature: 0.4,
	})
	if err != nil {
		return "", fmt.Errorf("conversation: phrasing failed: %w", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return "", errors.New("conversation: phrasing returned empty text")
	}
	return resp.Text, nil
}

var (
	clockMention   = regexp.MustCompile(`(?i)\b\d{1,2}(?::\d{2})?\s?[ap]\.?m\b`)
	priceMention   = regexp.MustCompile(`\$\d+(?:\.\d{2})?`)
	dayNameMention = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday|january|february|march|april|may|june|july|august|september|october|november|december)\b`)
	numberMention  = regexp.MustCompile(`\b\d+\b`)
)

// acceptPhrasing keeps a rewrite only if it fits, keeps every fact, and
// mentions no time, price, day, or number the draft did not contain.
func acceptPhrasing(candidate, draft string, facts []string, maxLength int) bool {
	if candidate == "" || utf8.RuneCountInString(candidate) > maxLength {
		return false
	}
	lowerCandidate := strings.ToLower(candidate)
	for _, fact := range facts {
		if fact == "" {
			continue
		}
		if !strings.Contains(lowerCandidate, strings.ToLower(fact)) {
			return false
		}
	}
	lowerDraft := strings.ToLower(draft)
	for _, pattern := range []*regexp.Regexp{clockMention, priceMention, dayNameMention, numberMention} {
		for _, mention := range pattern.FindAllString(lowerCandidate, -1) {
			if !strings.Contains(lowerDraft, mention) {
				return false
			}
		}
	}
	return true
}
