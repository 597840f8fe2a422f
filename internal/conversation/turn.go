package conversation

import (
	"context"
	"fmt"

	"github.com/wolfman30/salon-sms-booking/pkg/logging"
)

// turn is one decision cycle over a private copy of the state. If any
// collaborator call fails the copy is discarded.
type turn struct {
	engine  *Engine
	ctx     context.Context
	state   *ConversationState
	sig     Signals
	catalog []Service
	logger  *logging.Logger
}

func (t *turn) decide() (Action, error) {
	s, sig := t.state, t.sig

	if s.Step == StepChoosingAppointment {
		return t.fromChoosingAppointment()
	}

	if sig.Cancel {
		if s.IsBlank() {
			if t.engine.appts != nil {
				return t.manage(ManageCancel)
			}
			return Action{Kind: ActionNothingToCancel}, nil
		}
		var mode ManageMode
		if s.Rescheduling != nil {
			mode = ManageReschedule
		}
		s.Reset()
		return Action{Kind: ActionCancelled, ManageMode: mode}, nil
	}

	if sig.Intent == IntentBusinessQuestion {
		return t.answerQuestion(), nil
	}

	if !t.refreshSelectedService() {
		t.logger.Info("selected service no longer offered, asking again")
		t.rememberDateTime()
		return Action{Kind: ActionAskService, Services: t.catalog}, nil
	}

	switch s.Step {
	case StepIdle:
		return t.fromIdle()
	case StepAwaitingService:
		return t.fromAwaitingService()
	case StepAwaitingDate:
		return t.fromAwaitingDate()
	case StepAwaitingTime:
		return t.fromAwaitingTime()
	case StepReadyToBook:
		return t.book()
	default:
		t.logger.Warn("unknown conversation step, resetting", "step", s.Step)
		s.Reset()
		return t.fromIdle()
	}
}

func (t *turn) fromIdle() (Action, error) {
	if t.sig.Reschedule && t.engine.appts != nil {
		return t.manage(ManageReschedule)
	}
	return t.startBooking()
}

func (t *turn) startBooking() (Action, error) {
	sig := t.sig
	switch {
	case len(sig.ServiceMatches) == 1:
		t.rememberDateTime()
		t.selectService(sig.ServiceMatches[0])
		return t.advance()
	case len(sig.ServiceMatches) > 1:
		t.rememberDateTime()
		t.state.Step = StepAwaitingService
		return Action{Kind: ActionChooseService, Services: sig.ServiceMatches}, nil
	case sig.Booking || sig.Reschedule || sig.DateGuess != nil || sig.TimeGuess != nil:
		t.rememberDateTime()
		t.state.Step = StepAwaitingService
		return Action{Kind: ActionAskService, Services: t.catalog}, nil
	case sig.Acknowledgement:
		return Action{Kind: ActionAcknowledge}, nil
	case sig.Intent == IntentGreeting:
		// A greeting while idle never reopens service selection.
		return Action{Kind: ActionGreet}, nil
	default:
		return Action{Kind: ActionHelp}, nil
	}
}

func (t *turn) fromAwaitingService() (Action, error) {
	sig := t.sig
	t.rememberDateTime()
	switch {
	case len(sig.ServiceMatches) == 1:
		t.selectService(sig.ServiceMatches[0])
		return t.advance()
	case len(sig.ServiceMatches) > 1:
		return Action{Kind: ActionChooseService, Services: sig.ServiceMatches}, nil
	case sig.Intent == IntentGreeting || sig.Booking || sig.Reschedule || sig.DateGuess != nil || sig.TimeGuess != nil:
		return Action{Kind: ActionAskService, Services: t.catalog, Greeting: t.greeted()}, nil
	default:
		return Action{Kind: ActionServiceNotFound, Services: t.catalog}, nil
	}
}

func (t *turn) fromAwaitingDate() (Action, error) {
	s, sig := t.state, t.sig
	if t.switchesService() {
		t.rememberDateTime()
		t.selectService(sig.ServiceMatches[0])
		return t.advance()
	}
	if sig.DateGuess != nil {
		t.rememberDateTime()
		return t.advance()
	}
	if sig.TimeGuess != nil {
		tod := *sig.TimeGuess
		s.RequestedTime = &tod
	}
	return Action{Kind: ActionAskDate, Service: s.SelectedService, Greeting: t.greeted()}, nil
}

func (t *turn) fromAwaitingTime() (Action, error) {
	s, sig := t.state, t.sig
	if t.switchesService() {
		t.rememberDateTime()
		t.selectService(sig.ServiceMatches[0])
		return t.advance()
	}

	if sig.DateGuess != nil && (s.SelectedDate == nil || *sig.DateGuess != *s.SelectedDate) {
		// A changed date always re-queries the slot finder.
		t.rememberDateTime()
		return t.advance()
	}

	if sig.TimeGuess != nil {
		return t.chooseTime(*sig.TimeGuess)
	}

	if sig.Choice != 0 && len(s.CandidateSlots) > 0 {
		return t.chooseOffered(sig.Choice)
	}

	if sig.Reschedule && sig.DateGuess == nil {
		s.SelectedDate = nil
		s.SelectedTime = nil
		s.CandidateSlots = nil
		s.Step = StepAwaitingDate
		return Action{Kind: ActionAskDate, Service: s.SelectedService}, nil
	}

	if len(s.CandidateSlots) == 0 {
		return t.advance()
	}
	return t.offerSlots(t.greeted()), nil
}

// advance fills whatever the state is missing, in step order, and books once
// a requested time matches a fresh slot.
func (t *turn) advance() (Action, error) {
	s := t.state
	if s.SelectedService == nil {
		s.Step = StepAwaitingService
		return Action{Kind: ActionAskService, Services: t.catalog}, nil
	}
	svc := *s.SelectedService
	if s.SelectedDate == nil {
		s.Step = StepAwaitingDate
		return Action{Kind: ActionAskDate, Service: &svc}, nil
	}

	if len(s.CandidateSlots) == 0 {
		date := *s.SelectedDate
		slots, err := t.findSlots(svc, date)
		if err != nil {
			return Action{}, err
		}
		s.SelectedTime = nil
		if len(slots) == 0 {
			s.SelectedDate = nil
			s.CandidateSlots = nil
			s.Step = StepAwaitingDate
			return Action{Kind: ActionNoAvailability, Service: &svc, Date: &date}, nil
		}
		s.CandidateSlots = slots
	}

	s.Step = StepAwaitingTime
	if s.RequestedTime != nil {
		requested := *s.RequestedTime
		s.RequestedTime = nil
		return t.chooseTime(requested)
	}
	return t.offerSlots(false), nil
}

func (t *turn) chooseTime(requested TimeOfDay) (Action, error) {
	s := t.state
	slot, ok := matchCandidate(requested, s.CandidateSlots)
	if !ok {
		return Action{
			Kind:          ActionTimeUnavailable,
			Service:       s.SelectedService,
			Date:          s.SelectedDate,
			Slots:         s.CandidateSlots,
			RequestedTime: &requested,
		}, nil
	}
	s.SelectedTime = &slot
	s.Step = StepReadyToBook
	return t.book()
}

// chooseOffered books the n-th offered slot as listed in the last reply.
func (t *turn) chooseOffered(n int) (Action, error) {
	s := t.state
	if n == LastChoice {
		n = len(s.CandidateSlots)
	}
	if n < 1 || n > len(s.CandidateSlots) {
		return t.offerSlots(false), nil
	}
	slot := s.CandidateSlots[n-1]
	s.SelectedTime = &slot
	s.Step = StepReadyToBook
	return t.book()
}

func (t *turn) book() (Action, error) {
	s := t.state
	if s.SelectedService == nil || s.SelectedDate == nil || s.SelectedTime == nil {
		s.SelectedTime = nil
		return t.advance()
	}
	svc, date, slot := *s.SelectedService, *s.SelectedDate, *s.SelectedTime

	req := AppointmentRequest{
		ServiceID:  svc.ID,
		StaffID:    slot.StaffID,
		Start:      slot.Start,
		End:        slot.Start.Add(svc.Duration()),
		PriceCents: svc.PriceCents,
	}
	var result BookingResult
	var err error
	if s.Rescheduling != nil {
		result, err = t.moveAppointment(s.Rescheduling.ID, req)
	} else {
		req.ClientID, err = t.findClient()
		if err != nil {
			return Action{}, err
		}
		result, err = t.createAppointment(req)
	}
	if err != nil {
		t.engine.metrics.ObserveBooking("error")
		return Action{}, err
	}

	switch result.Status {
	case BookingBooked:
		if moved := s.Rescheduling; moved != nil {
			t.engine.metrics.ObserveBooking("rescheduled")
			t.logger.Info("appointment rescheduled", "appointment_id", moved.ID, "from", moved.Start, "to", slot.Start)
			s.Reset()
			return Action{Kind: ActionRescheduled, Appointment: moved, Service: &svc, Date: &date, Slot: &slot, AppointmentID: moved.ID}, nil
		}
		t.engine.metrics.ObserveBooking("booked")
		t.logger.Info("appointment booked", "appointment_id", result.AppointmentID, "service_id", svc.ID, "start", slot.Start)
		s.Reset()
		return Action{Kind: ActionBooked, Service: &svc, Date: &date, Slot: &slot, AppointmentID: result.AppointmentID}, nil
	case BookingConflict:
		t.engine.metrics.ObserveBooking("conflict")
		t.logger.Info("slot taken before booking", "service_id", svc.ID, "start", slot.Start)
		slots, err := t.findSlots(svc, date)
		if err != nil {
			return Action{}, err
		}
		slots = withoutStart(slots, slot)
		s.SelectedTime = nil
		s.RequestedTime = nil
		if len(slots) == 0 {
			s.SelectedDate = nil
			s.CandidateSlots = nil
			s.Step = StepAwaitingDate
			return Action{Kind: ActionConflict, Service: &svc, Date: &date, Slot: &slot}, nil
		}
		s.CandidateSlots = slots
		s.Step = StepAwaitingTime
		return Action{Kind: ActionConflict, Service: &svc, Date: &date, Slot: &slot, Slots: slots}, nil
	default:
		return Action{}, &collaboratorError{op: "create_appointment", err: fmt.Errorf("unknown booking status %q", result.Status)}
	}
}

func (t *turn) answerQuestion() Action {
	s, sig := t.state, t.sig
	a := Action{Kind: ActionAnswerQuestion, Question: sig.Question, Services: t.catalog}
	if sig.Question == QuestionPricing && len(sig.ServiceMatches) == 1 {
		svc := sig.ServiceMatches[0]
		a.Service = &svc
	}
	switch s.Step {
	case StepAwaitingService:
		a.FollowUp = ActionAskService
	case StepAwaitingDate:
		a.FollowUp = ActionAskDate
	case StepAwaitingTime:
		a.FollowUp = ActionOfferSlots
	case StepChoosingAppointment:
		a.FollowUp = ActionChooseAppointment
	}
	return a
}

func (t *turn) offerSlots(greeting bool) Action {
	s := t.state
	return Action{
		Kind:     ActionOfferSlots,
		Service:  s.SelectedService,
		Date:     s.SelectedDate,
		Slots:    s.CandidateSlots,
		Greeting: greeting,
	}
}

func (t *turn) selectService(svc Service) {
	s := t.state
	if s.SelectedService == nil || s.SelectedService.ID != svc.ID {
		s.CandidateSlots = nil
		s.SelectedTime = nil
	}
	s.SelectedService = &svc
	s.Step = StepAwaitingDate
}

// rememberDateTime keeps a date or time the client gave before it can be used.
func (t *turn) rememberDateTime() {
	s, sig := t.state, t.sig
	if sig.DateGuess != nil {
		d := *sig.DateGuess
		if s.SelectedDate == nil || *s.SelectedDate != d {
			s.CandidateSlots = nil
			s.SelectedTime = nil
		}
		s.SelectedDate = &d
	}
	if sig.TimeGuess != nil {
		tod := *sig.TimeGuess
		s.RequestedTime = &tod
	}
}

func (t *turn) switchesService() bool {
	matches := t.sig.ServiceMatches
	if len(matches) != 1 {
		return false
	}
	return t.state.SelectedService == nil || t.state.SelectedService.ID != matches[0].ID
}

// refreshSelectedService swaps in the live catalog entry and reports false
// when the selected service has been retired.
func (t *turn) refreshSelectedService() bool {
	s := t.state
	if s.SelectedService == nil {
		return true
	}
	for _, svc := range t.catalog {
		if svc.ID == s.SelectedService.ID {
			live := svc
			s.SelectedService = &live
			return true
		}
	}
	s.SelectedService = nil
	s.SelectedTime = nil
	s.CandidateSlots = nil
	s.Step = StepAwaitingService
	return false
}

func (t *turn) greeted() bool {
	return t.sig.Intent == IntentGreeting && !t.sig.Acknowledgement
}

func (t *turn) findSlots(svc Service, date Date) ([]Slot, error) {
	ctx, cancel := t.engine.callContext(t.ctx)
	defer cancel()
	slots, err := t.engine.slots.FindAvailableSlots(ctx, svc.ID, date)
	if err != nil {
		return nil, &collaboratorError{op: "find_slots", err: err}
	}
	return slots, nil
}

func (t *turn) findClient() (string, error) {
	ctx, cancel := t.engine.callContext(t.ctx)
	defer cancel()
	id, err := t.engine.clients.FindOrCreateClientByPhone(ctx, t.state.Phone)
	if err != nil {
		return "", &collaboratorError{op: "find_client", err: err}
	}
	return id, nil
}

func (t *turn) createAppointment(req AppointmentRequest) (BookingResult, error) {
	ctx, cancel := t.engine.callContext(t.ctx)
	defer cancel()
	result, err := t.engine.bookings.CreateAppointment(ctx, req)
	if err != nil {
		return BookingResult{}, &collaboratorError{op: "create_appointment", err: err}
	}
	return result, nil
}

// matchCandidate resolves a requested time against offered slots. An inexact
// time that fits both a morning and an afternoon slot does not match.
func matchCandidate(requested TimeOfDay, slots []Slot) (Slot, bool) {
	var found *Slot
	for i := range slots {
		if !requested.Matches(slots[i]) {
			continue
		}
		if found == nil {
			found = &slots[i]
			continue
		}
		if found.Start.Hour() != slots[i].Start.Hour() {
			return Slot{}, false
		}
	}
	if found == nil {
		return Slot{}, false
	}
	return *found, true
}

func withoutStart(slots []Slot, taken Slot) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, slot := range slots {
		if slot.Start.Equal(taken.Start) {
			continue
		}
		out = append(out, slot)
	}
	return out
}
