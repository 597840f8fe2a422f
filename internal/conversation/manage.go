package conversation

// manage starts cancelling or moving one of the client's upcoming
// appointments. A reschedule request from a client with nothing booked is
// treated as a new booking.
func (t *turn) manage(mode ManageMode) (Action, error) {
	s, sig := t.state, t.sig
	appts, err := t.upcomingAppointments()
	if err != nil {
		return Action{}, err
	}
	switch len(appts) {
	case 0:
		if mode == ManageCancel {
			return Action{Kind: ActionNothingToCancel}, nil
		}
		return t.startBooking()
	case 1:
		return t.applyManage(mode, appts[0], true)
	}

	// A date in a reschedule request is the new date, so only a cancel can
	// narrow the list by it.
	if mode == ManageCancel {
		if appt, ok := pickAppointment(sig, appts); ok {
			return t.applyManage(mode, appt, false)
		}
	}
	s.Step = StepChoosingAppointment
	s.ManageMode = mode
	s.AppointmentChoices = appts
	return Action{Kind: ActionChooseAppointment, Appointments: appts, ManageMode: mode}, nil
}

func (t *turn) fromChoosingAppointment() (Action, error) {
	s, sig := t.state, t.sig
	if appt, ok := pickAppointment(sig, s.AppointmentChoices); ok {
		return t.applyManage(s.ManageMode, appt, false)
	}
	if sig.Abort || (sig.Cancel && s.ManageMode == ManageReschedule) {
		mode := s.ManageMode
		s.Reset()
		return Action{Kind: ActionCancelled, ManageMode: mode}, nil
	}
	if sig.Intent == IntentBusinessQuestion {
		return t.answerQuestion(), nil
	}
	return Action{Kind: ActionChooseAppointment, Appointments: s.AppointmentChoices, ManageMode: s.ManageMode}, nil
}

// applyManage cancels appt, or starts finding it a new time. keepDateTime
// carries a date or time from the message into the reschedule.
func (t *turn) applyManage(mode ManageMode, appt BookedAppointment, keepDateTime bool) (Action, error) {
	s := t.state
	if mode == ManageCancel {
		if err := t.cancelAppointment(appt.ID); err != nil {
			return Action{}, err
		}
		t.engine.metrics.ObserveBooking("cancelled")
		t.logger.Info("appointment cancelled by client", "appointment_id", appt.ID, "start", appt.Start)
		s.Reset()
		return Action{Kind: ActionAppointmentCancelled, Appointment: &appt, AppointmentID: appt.ID}, nil
	}

	s.Reset()
	s.Rescheduling = &appt
	svc := appt.Service
	for _, live := range t.catalog {
		if live.ID == svc.ID {
			svc = live
			break
		}
	}
	s.SelectedService = &svc
	s.Step = StepAwaitingDate
	if keepDateTime {
		t.rememberDateTime()
	}
	if s.SelectedDate == nil {
		return Action{Kind: ActionAskRescheduleDate, Appointment: &appt, Service: &svc}, nil
	}
	return t.advance()
}

// pickAppointment resolves a list position, or a date and time that fit
// exactly one appointment.
func pickAppointment(sig Signals, appts []BookedAppointment) (BookedAppointment, bool) {
	if len(appts) == 0 {
		return BookedAppointment{}, false
	}
	if sig.Choice != 0 {
		n := sig.Choice
		if n == LastChoice {
			n = len(appts)
		}
		if n >= 1 && n <= len(appts) {
			return appts[n-1], true
		}
		return BookedAppointment{}, false
	}
	if sig.DateGuess == nil && sig.TimeGuess == nil {
		return BookedAppointment{}, false
	}
	var found []BookedAppointment
	for _, appt := range appts {
		if sig.DateGuess != nil && DateOf(appt.Start) != *sig.DateGuess {
			continue
		}
		if sig.TimeGuess != nil && !sig.TimeGuess.Matches(Slot{Start: appt.Start}) {
			continue
		}
		found = append(found, appt)
	}
	if len(found) != 1 {
		return BookedAppointment{}, false
	}
	return found[0], true
}

func (t *turn) upcomingAppointments() ([]BookedAppointment, error) {
	ctx, cancel := t.engine.callContext(t.ctx)
	defer cancel()
	appts, err := t.engine.appts.UpcomingAppointments(ctx, t.state.Phone, t.engine.now())
	if err != nil {
		return nil, &collaboratorError{op: "upcoming_appointments", err: err}
	}
	loc := t.engine.location
	for i := range appts {
		appts[i].Start = appts[i].Start.In(loc)
		appts[i].End = appts[i].End.In(loc)
	}
	return appts, nil
}

func (t *turn) cancelAppointment(id string) error {
	ctx, cancel := t.engine.callContext(t.ctx)
	defer cancel()
	if err := t.engine.appts.CancelAppointment(ctx, id); err != nil {
		return &collaboratorError{op: "cancel_appointment", err: err}
	}
	return nil
}

func (t *turn) moveAppointment(id string, req AppointmentRequest) (BookingResult, error) {
	ctx, cancel := t.engine.callContext(t.ctx)
	defer cancel()
	result, err := t.engine.appts.RescheduleAppointment(ctx, id, req)
	if err != nil {
		return BookingResult{}, &collaboratorError{op: "reschedule_appointment", err: err}
	}
	return result, nil
}
