package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wolfman30/salon-sms-booking/internal/observability/metrics"
	"github.com/wolfman30/salon-sms-booking/pkg/logging"
)

const (
	// MaxSlotsToPresent caps how many times one reply lists.
	MaxSlotsToPresent = 6
	// MaxReplyLength keeps a reply within two GSM segments.
	MaxReplyLength = 320

	temporaryFailureReply = "Sorry, we're having trouble right now. Please try again in a moment."
)

// draft is a rendered template plus the facts a rephrasing must keep.
type draft struct {
	text  string
	facts []string
}

// Composer renders engine actions into SMS text.
type Composer struct {
	profile        BusinessProfile
	maxSlots       int
	maxLength      int
	phraser        Phraser
	phraserTimeout time.Duration
	metrics        *metrics.ConversationMetrics
	logger         *logging.Logger
}

// ComposerOption customizes a Composer.
type ComposerOption func(*Composer)

func WithMaxSlots(n int) ComposerOption {
	return func(c *Composer) {
		if n > 0 {
			c.maxSlots = n
		}
	}
}

func WithMaxReplyLength(n int) ComposerOption {
	return func(c *Composer) {
		if n > 0 {
			c.maxLength = n
		}
	}
}

// WithPhraser lets an LLM reword replies. timeout bounds each call.
func WithPhraser(p Phraser, timeout time.Duration) ComposerOption {
	return func(c *Composer) {
		c.phraser = p
		c.phraserTimeout = timeout
	}
}

func WithComposerMetrics(m *metrics.ConversationMetrics) ComposerOption {
	return func(c *Composer) {
		c.metrics = m
	}
}

func WithComposerLogger(logger *logging.Logger) ComposerOption {
	return func(c *Composer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewComposer(profile BusinessProfile, opts ...ComposerOption) *Composer {
	c := &Composer{
		profile:   profile,
		maxSlots:  MaxSlotsToPresent,
		maxLength: MaxReplyLength,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose renders the action. A configured phraser may reword the template,
// but its output is discarded unless every fact survives unchanged.
func (c *Composer) Compose(ctx context.Context, action Action) string {
	d := c.render(action)
	if c.phraser == nil || action.Kind == ActionTemporaryFailure {
		return d.text
	}

	phraseCtx := ctx
	if c.phraserTimeout > 0 {
		var cancel context.CancelFunc
		phraseCtx, cancel = context.WithTimeout(ctx, c.phraserTimeout)
		defer cancel()
	}
	candidate, err := c.phraser.Phrase(phraseCtx, d.text, d.facts)
	if err != nil {
		c.metrics.ObservePhrasing("error")
		c.logger.Warn("reply phrasing failed, using template", "error", err, "action", action.Kind)
		return d.text
	}
	candidate = strings.TrimSpace(candidate)
	if !acceptPhrasing(candidate, d.text, d.facts, c.maxLength) {
		c.metrics.ObservePhrasing("rejected")
		c.logger.Debug("reply phrasing rejected", "action", action.Kind)
		return d.text
	}
	c.metrics.ObservePhrasing("accepted")
	return candidate
}

func (c *Composer) render(a Action) draft {
	var d draft
	if a.Greeting && a.Kind != ActionGreet {
		const hello = "Hi! "
		reserved := *c
		reserved.maxLength -= len(hello)
		d = reserved.renderBody(a)
		d.text = hello + d.text
	} else {
		d = c.renderBody(a)
	}
	if a.FollowUp != "" {
		if prompt := followUpPrompt(a.FollowUp); prompt != "" && c.fits(d.text+" "+prompt) {
			d.text += " " + prompt
		}
	}
	d.text = truncateRunes(d.text, c.maxLength)
	return d
}

func (c *Composer) renderBody(a Action) draft {
	switch a.Kind {
	case ActionGreet:
		if c.profile.Name == "" {
			return draft{text: "Hi! Thanks for texting us. How can I help you today?"}
		}
		return draft{
			text:  fmt.Sprintf("Hi! Thanks for texting %s. How can I help you today?", c.profile.Name),
			facts: []string{c.profile.Name},
		}
	case ActionAcknowledge:
		return draft{text: "You're welcome! Text us anytime you'd like to book."}
	case ActionHelp:
		return draft{text: "I can help you book an appointment or answer questions about our services and hours. What would you like to do?"}
	case ActionAskService:
		if len(a.Services) == 0 {
			return draft{text: "We don't have any services open for booking right now. Please check back soon."}
		}
		return c.fitList("Which service would you like to book? We offer: ", serviceLabels(a.Services), ", ", ".", len(a.Services))
	case ActionChooseService:
		return c.fitList("A few services match: ", serviceLabels(a.Services), ", ", ". Which one would you like?", len(a.Services))
	case ActionServiceNotFound:
		if len(a.Services) == 0 {
			return draft{text: "Sorry, I couldn't find that service, and we have nothing open for booking right now."}
		}
		return c.fitList("Sorry, I couldn't find that service. Please choose one: ", serviceLabels(a.Services), ", ", ".", len(a.Services))
	case ActionAskDate:
		name := serviceName(a.Service)
		return draft{
			text:  fmt.Sprintf("Great choice! What date would you like for your %s? You can say tomorrow, Friday, or a date like July 30.", name),
			facts: []string{name},
		}
	case ActionNoAvailability:
		name, date := serviceName(a.Service), dateText(a.Date)
		return draft{
			text:  fmt.Sprintf("Sorry, there are no openings for %s on %s. What other date works for you?", name, date),
			facts: []string{name, date},
		}
	case ActionOfferSlots:
		name, date := serviceName(a.Service), dateText(a.Date)
		d := c.fitList(fmt.Sprintf("Available times for %s on %s: ", name, date), slotLabels(a.Slots), ", ", ". Which time works best?", c.maxSlots)
		d.facts = append(d.facts, name, date)
		return d
	case ActionTimeUnavailable:
		date := dateText(a.Date)
		prefix := fmt.Sprintf("That time isn't available on %s. Open times: ", date)
		if a.RequestedTime != nil {
			prefix = fmt.Sprintf("%s isn't available on %s. Open times: ", formatTimeOfDay(*a.RequestedTime), date)
		}
		d := c.fitList(prefix, slotLabels(a.Slots), ", ", ". Which works best?", c.maxSlots)
		d.facts = append(d.facts, date)
		return d
	case ActionBooked:
		name, date, clock := serviceName(a.Service), dateText(a.Date), slotClock(a.Slot)
		price := ""
		if a.Service != nil {
			price = formatPrice(a.Service.PriceCents)
		}
		text := fmt.Sprintf("You're all set! %s on %s at %s. Total: %s.", name, date, clock, price)
		if c.profile.Name != "" {
			text += fmt.Sprintf(" See you at %s!", c.profile.Name)
		}
		return draft{text: text, facts: []string{name, date, clock, price}}
	case ActionConflict:
		date, clock := dateText(a.Date), slotClock(a.Slot)
		if len(a.Slots) == 0 {
			return draft{
				text:  fmt.Sprintf("Sorry, %s on %s was just booked and that day is now full. What other date works for you?", clock, date),
				facts: []string{clock, date},
			}
		}
		d := c.fitList(fmt.Sprintf("Sorry, %s on %s was just booked. Open times: ", clock, date), slotLabels(a.Slots), ", ", ". Which works best?", c.maxSlots)
		d.facts = append(d.facts, clock, date)
		return d
	case ActionCancelled:
		if a.ManageMode != "" {
			return draft{text: "No problem, your appointment stays as booked."}
		}
		return draft{text: "No problem, I've cancelled this booking request. Text us anytime to start again."}
	case ActionChooseAppointment:
		verb := "cancel"
		if a.ManageMode == ManageReschedule {
			verb = "reschedule"
		}
		labels := make([]string, 0, len(a.Appointments))
		for i, appt := range a.Appointments {
			labels = append(labels, fmt.Sprintf("%d) %s", i+1, appointmentLabel(appt)))
		}
		prefix := fmt.Sprintf("I found %d upcoming appointments. Which one would you like to %s? ", len(a.Appointments), verb)
		return c.fitList(prefix, labels, "; ", "", len(labels))
	case ActionAppointmentCancelled:
		label := appointmentText(a.Appointment)
		return draft{
			text:  fmt.Sprintf("Done! I've cancelled your %s. Text us anytime to book again.", label),
			facts: []string{label},
		}
	case ActionAskRescheduleDate:
		label := appointmentText(a.Appointment)
		return draft{
			text:  fmt.Sprintf("Sure! Your %s is booked. What date would you like to move it to?", label),
			facts: []string{label},
		}
	case ActionRescheduled:
		name, date, clock := serviceName(a.Service), dateText(a.Date), slotClock(a.Slot)
		text := fmt.Sprintf("All set! Your %s has moved to %s at %s.", name, date, clock)
		if c.profile.Name != "" {
			text += fmt.Sprintf(" See you at %s!", c.profile.Name)
		}
		return draft{text: text, facts: []string{name, date, clock}}
	case ActionNothingToCancel:
		return draft{text: "There's no booking in progress. Text us anytime you'd like to book."}
	case ActionAnswerQuestion:
		return c.renderAnswer(a)
	default:
		return draft{text: temporaryFailureReply}
	}
}

func (c *Composer) renderAnswer(a Action) draft {
	switch a.Question {
	case QuestionHours:
		hours := c.profile.HoursSummary()
		return draft{text: fmt.Sprintf("We're open %s.", hours), facts: []string{hours}}
	case QuestionLocation:
		switch {
		case c.profile.Address != "":
			return draft{text: fmt.Sprintf("We're located at %s.", c.profile.Address), facts: []string{c.profile.Address}}
		case c.profile.Phone != "":
			return draft{text: fmt.Sprintf("Call us at %s for directions.", c.profile.Phone), facts: []string{c.profile.Phone}}
		default:
			return draft{text: "Please give us a call for directions."}
		}
	case QuestionPricing:
		if a.Service != nil {
			text := formatServiceDetails(*a.Service) + "."
			return draft{text: text, facts: []string{a.Service.Name, formatPrice(a.Service.PriceCents)}}
		}
	}
	if len(a.Services) == 0 {
		return draft{text: "We're updating our service menu right now. Please call us for details."}
	}
	labels := make([]string, 0, len(a.Services))
	for _, svc := range a.Services {
		labels = append(labels, formatServiceDetails(svc))
	}
	suffix := "."
	if a.FollowUp == "" {
		suffix = ". Would you like to book?"
	}
	return c.fitList("Our services: ", labels, "; ", suffix, len(labels))
}

// fitList renders prefix + items + suffix, dropping trailing items until the
// text fits the reply limit. Shown items become facts.
func (c *Composer) fitList(prefix string, items []string, sep, suffix string, max int) draft {
	if max <= 0 || max > len(items) {
		max = len(items)
	}
	for n := max; n >= 1; n-- {
		list := strings.Join(items[:n], sep)
		if n < len(items) {
			list += fmt.Sprintf(" (+%d more)", len(items)-n)
		}
		text := prefix + list + suffix
		if c.fits(text) {
			return draft{text: text, facts: append([]string(nil), items[:n]...)}
		}
	}
	if len(items) == 0 {
		return draft{text: strings.TrimSpace(prefix + suffix)}
	}
	return draft{text: truncateRunes(prefix+items[0], c.maxLength), facts: []string{items[0]}}
}

func (c *Composer) fits(text string) bool {
	return utf8.RuneCountInString(text) <= c.maxLength
}

func followUpPrompt(kind ActionKind) string {
	switch kind {
	case ActionAskService:
		return "Which service would you like to book?"
	case ActionAskDate:
		return "What date works for you?"
	case ActionOfferSlots:
		return "Which time works for you?"
	case ActionChooseAppointment:
		return "Which appointment did you mean?"
	default:
		return ""
	}
}

func serviceLabels(services []Service) []string {
	out := make([]string, 0, len(services))
	for _, svc := range services {
		out = append(out, formatServiceWithPrice(svc))
	}
	return out
}

func slotLabels(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	seen := make(map[string]struct{}, len(slots))
	for _, slot := range slots {
		label := formatClock(slot.Start)
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	return out
}

func serviceName(s *Service) string {
	if s == nil {
		return "your appointment"
	}
	return s.Name
}

func dateText(d *Date) string {
	if d == nil {
		return "that day"
	}
	return formatDate(*d)
}

func slotClock(s *Slot) string {
	if s == nil {
		return "that time"
	}
	return formatClock(s.Start)
}

// appointmentLabel renders e.g. "Signature Head Spa on Wednesday, July 30 at 3:00 PM".
func appointmentLabel(appt BookedAppointment) string {
	return fmt.Sprintf("%s on %s at %s", appt.Service.Name, formatDate(DateOf(appt.Start)), formatClock(appt.Start))
}

func appointmentText(appt *BookedAppointment) string {
	if appt == nil {
		return "appointment"
	}
	return appointmentLabel(*appt)
}
