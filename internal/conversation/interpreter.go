package conversation

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Intent is the dominant classification of an inbound message.
type Intent string

const (
	IntentGreeting         Intent = "greeting"
	IntentBusinessQuestion Intent = "business_question"
	IntentBookingIntent    Intent = "booking_intent"
	IntentDateReference    Intent = "date_reference"
	IntentTimeReference    Intent = "time_reference"
	IntentServiceReference Intent = "service_reference"
	IntentUnclear          Intent = "unclear"
)

// QuestionKind narrows a business question.
type QuestionKind string

const (
	QuestionNone     QuestionKind = ""
	QuestionPricing  QuestionKind = "pricing"
	QuestionServices QuestionKind = "services"
	QuestionHours    QuestionKind = "hours"
	QuestionLocation QuestionKind = "location"
)

// Signals is everything the interpreter could read from one message.
type Signals struct {
	Intent         Intent
	Question       QuestionKind
	ServiceGuess   string
	ServiceMatches []Service
	DateGuess      *Date
	TimeGuess      *TimeOfDay
	// Choice is a 1-based pick from the list in the last reply ("the 2nd
	// one"), LastChoice for "the last one", or 0.
	Choice int
	// Abort backs out of cancelling or moving an appointment.
	Abort           bool
	Booking         bool
	Cancel          bool
	Reschedule      bool
	Acknowledgement bool
}

// LastChoice marks "the last one" in Signals.Choice.
const LastChoice = -1

var (
	ordinalChoicePattern = regexp.MustCompile(`\b(the\s+)?(first|second|third|fourth|fifth|sixth|last|1st|2nd|3rd|4th|5th|6th)(\s+(?:one|option|choice|slot|time|opening|spot))?\b`)
	numberChoicePattern  = regexp.MustCompile(`(?:\boption\s*#?|#)(\d)\b`)
	ordinalChoices       = map[string]int{
		"first": 1, "1st": 1, "second": 2, "2nd": 2, "third": 3, "3rd": 3,
		"fourth": 4, "4th": 4, "fifth": 5, "5th": 5, "sixth": 6, "6th": 6,
		"last": LastChoice,
	}
)

var (
	abortPhrases = []string{
		"never mind", "nevermind", "forget it", "start over", "dont cancel", "do not cancel", "keep it",
	}
	cancelPhrases = []string{
		"cancel", "cant make it", "can not make it", "need to cancel", "never mind", "nevermind",
		"start over", "forget it",
	}
	reschedulePhrases = []string{
		"reschedule", "change appointment", "change my appointment", "move appointment",
		"move my appointment", "different time", "different day", "different date", "another time",
		"another day", "another date", "change the date", "change the time",
	}
	bookingWords = []string{
		"book", "booking", "appointment", "appt", "schedule", "reserve", "make an appointment",
		"come in", "get in",
	}
	questionPhrases = []struct {
		kind    QuestionKind
		phrases []string
	}{
		{QuestionPricing, []string{"how much", "cost", "costs", "price", "prices", "pricing", "rates"}},
		{QuestionServices, []string{
			"what services", "which services", "services do you", "do you offer", "what do you offer",
			"what do you have", "do you do", "menu", "list of services", "what kind of",
		}},
		{QuestionHours, []string{
			"when are you open", "what are your hours", "your hours", "business hours", "hours",
			"are you open", "what time do you open", "what time do you close", "when do you close",
			"when do you open", "closing time",
		}},
		{QuestionLocation, []string{
			"where are you", "whats your address", "your address", "address", "located", "location",
			"directions", "where is",
		}},
	}
	greetingPhrases = []string{
		"hi", "hello", "hey", "hiya", "howdy", "yo", "hi there", "hello there", "hey there",
		"good morning", "good afternoon", "good evening",
	}
	acknowledgementPhrases = []string{
		"thanks", "thank you", "thx", "ty", "thank you so much", "thanks so much", "ok thanks",
		"ok thank you", "great thanks", "awesome", "perfect", "ok", "okay", "cool", "got it", "sounds good",
	}
	greetingLeadWords = []string{"hi", "hello", "hey", "hiya", "howdy"}
)

// Interpret classifies text against the current state and the live catalog.
// now must be in the business time zone. It never mutates state.
func Interpret(text string, state *ConversationState, catalog []Service, now time.Time) Signals {
	step := StepIdle
	if state != nil {
		step = state.Step
	}

	lower := strings.ToLower(strings.TrimSpace(text))
	norm := normalizeText(text)
	padded := " " + norm + " "

	var sig Signals
	sig.Question = detectQuestion(padded)
	sig.Cancel = sig.Question == QuestionNone && containsAnyPhrase(padded, cancelPhrases) &&
		!strings.Contains(padded, " policy ")
	sig.Reschedule = containsAnyPhrase(padded, reschedulePhrases)
	sig.Abort = containsAnyPhrase(padded, abortPhrases)
	sig.Booking = containsAnyPhrase(padded, bookingWords)

	remainder := lower
	if date, span, ok := findDate(lower, now, step == StepAwaitingTime); ok {
		sig.DateGuess = &date
		remainder = lower[:span[0]] + " " + lower[span[1]:]
	}
	if step == StepAwaitingTime || step == StepChoosingAppointment {
		var span []int
		sig.Choice, span = parseChoice(remainder, step == StepChoosingAppointment)
		if span != nil {
			remainder = remainder[:span[0]] + " " + remainder[span[1]:]
		}
	}
	if tod, ok := parseTime(remainder, step == StepAwaitingTime); ok {
		sig.TimeGuess = &tod
	}

	sig.ServiceMatches = MatchServices(text, catalog)
	if len(sig.ServiceMatches) == 1 {
		sig.ServiceGuess = sig.ServiceMatches[0].Name
	}

	greeting := isGreeting(norm)
	sig.Acknowledgement = !greeting && containsExact(norm, acknowledgementPhrases)

	switch {
	case sig.Question != QuestionNone:
		sig.Intent = IntentBusinessQuestion
	case (sig.TimeGuess != nil || sig.Choice != 0) && step == StepAwaitingTime:
		sig.Intent = IntentTimeReference
	case len(sig.ServiceMatches) > 0:
		sig.Intent = IntentServiceReference
	case sig.DateGuess != nil:
		sig.Intent = IntentDateReference
	case sig.TimeGuess != nil:
		sig.Intent = IntentTimeReference
	case sig.Booking || sig.Reschedule:
		sig.Intent = IntentBookingIntent
	case greeting || sig.Acknowledgement:
		sig.Intent = IntentGreeting
	default:
		sig.Intent = IntentUnclear
	}
	return sig
}

// HasBookingField reports whether the message carries a service, date or time.
func (s Signals) HasBookingField() bool {
	return len(s.ServiceMatches) > 0 || s.DateGuess != nil || s.TimeGuess != nil
}

// parseChoice reads "the second one", "last option" or "#2". A bare ordinal
// needs "the" or a noun after it so "first thing tomorrow" is not a pick. A
// lone digit counts only when allowBare is set.
func parseChoice(lower string, allowBare bool) (int, []int) {
	if allowBare {
		if n, err := strconv.Atoi(normalizeText(lower)); err == nil && n > 0 && n < 10 {
			return n, []int{0, len(lower)}
		}
	}
	if m := numberChoicePattern.FindStringSubmatchIndex(lower); m != nil {
		n, _ := strconv.Atoi(lower[m[2]:m[3]])
		if n > 0 {
			return n, m[:2]
		}
	}
	for _, m := range ordinalChoicePattern.FindAllStringSubmatchIndex(lower, -1) {
		if m[2] < 0 && m[6] < 0 {
			continue
		}
		return ordinalChoices[lower[m[4]:m[5]]], m[:2]
	}
	return 0, nil
}

func detectQuestion(padded string) QuestionKind {
	for _, group := range questionPhrases {
		if containsAnyPhrase(padded, group.phrases) {
			return group.kind
		}
	}
	return QuestionNone
}

func isGreeting(norm string) bool {
	if containsExact(norm, greetingPhrases) {
		return true
	}
	fields := strings.Fields(norm)
	if len(fields) == 0 || len(fields) > 5 {
		return false
	}
	for _, w := range greetingLeadWords {
		if fields[0] == w {
			return true
		}
	}
	return strings.HasPrefix(norm, "good morning") || strings.HasPrefix(norm, "good afternoon") ||
		strings.HasPrefix(norm, "good evening")
}

func containsAnyPhrase(padded string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

func containsExact(norm string, phrases []string) bool {
	for _, p := range phrases {
		if norm == p {
			return true
		}
	}
	return false
}
