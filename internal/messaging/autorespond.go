package messaging

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/wolfman30/salon-sms-booking/internal/conversation"
)

// Reasons returned by AutoRespondSwitch.Allow when a text is left unanswered.
// They double as inbound metric statuses.
const (
	SkipAutoRespondOff       = "auto_respond_off"
	SkipOutsideBusinessHours = "outside_business_hours"
	SkipExcludedKeyword      = "excluded_keyword"
	SkipExcludedSender       = "excluded_sender"
	SkipNotAutoRespondNumber = "not_auto_respond_number"
)

// AutoRespondRules narrow which texts get an automatic reply. Zero values
// answer everything.
type AutoRespondRules struct {
	// ExcludedKeywords leave a text for staff when any appears in the body,
	// case-insensitively.
	ExcludedKeywords []string
	// ExcludedSenders are client numbers that never get an automatic reply.
	ExcludedSenders []string
	// RespondToNumbers limits replies to texts sent to these salon numbers.
	RespondToNumbers []string
	// BusinessHoursOnly answers only while Profile says the salon is open.
	BusinessHoursOnly bool
	Profile           conversation.BusinessProfile
}

type AutoRespondOption func(*AutoRespondSwitch)

func WithAutoRespondRules(rules AutoRespondRules) AutoRespondOption {
	return func(s *AutoRespondSwitch) {
		s.keywords = nil
		for _, kw := range rules.ExcludedKeywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				s.keywords = append(s.keywords, kw)
			}
		}
		s.excluded = phoneSet(rules.ExcludedSenders)
		s.respondTo = phoneSet(rules.RespondToNumbers)
		s.hoursOnly = rules.BusinessHoursOnly
		s.profile = rules.Profile
	}
}

// AutoRespondSwitch turns automatic replies on and off at runtime and applies
// the configured rules. Skipped texts are acknowledged with an empty response
// and not processed.
type AutoRespondSwitch struct {
	enabled   atomic.Bool
	keywords  []string
	excluded  map[string]struct{}
	respondTo map[string]struct{}
	hoursOnly bool
	profile   conversation.BusinessProfile
}

func NewAutoRespondSwitch(enabled bool, opts ...AutoRespondOption) *AutoRespondSwitch {
	s := &AutoRespondSwitch{}
	s.enabled.Store(enabled)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AutoRespondSwitch) Enabled() bool {
	if s == nil {
		return true
	}
	return s.enabled.Load()
}

func (s *AutoRespondSwitch) Set(enabled bool) {
	s.enabled.Store(enabled)
}

// Allow reports whether a text from one number to another should be answered
// automatically. When it should not, reason names the rule that stopped it.
func (s *AutoRespondSwitch) Allow(from, to, body string, at time.Time) (bool, string) {
	if s == nil {
		return true, ""
	}
	if !s.enabled.Load() {
		return false, SkipAutoRespondOff
	}
	if s.hoursOnly && !s.profile.IsOpenAt(at) {
		return false, SkipOutsideBusinessHours
	}
	lower := strings.ToLower(body)
	for _, kw := range s.keywords {
		if strings.Contains(lower, kw) {
			return false, SkipExcludedKeyword
		}
	}
	if _, ok := s.excluded[NormalizeE164(from)]; ok {
		return false, SkipExcludedSender
	}
	if len(s.respondTo) > 0 {
		if _, ok := s.respondTo[NormalizeE164(to)]; !ok {
			return false, SkipNotAutoRespondNumber
		}
	}
	return true, ""
}

func phoneSet(numbers []string) map[string]struct{} {
	if len(numbers) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		if e164 := NormalizeE164(n); e164 != "" {
			set[e164] = struct{}{}
		}
	}
	return set
}
