package conversation

// ActionKind is the engine's decision for one inbound message.
type ActionKind string

const (
	ActionGreet            ActionKind = "greet"
	ActionAcknowledge      ActionKind = "acknowledge"
	ActionHelp             ActionKind = "help"
	ActionAskService       ActionKind = "ask_service"
	ActionChooseService    ActionKind = "choose_service"
	ActionServiceNotFound  ActionKind = "service_not_found"
	ActionAskDate          ActionKind = "ask_date"
	ActionNoAvailability   ActionKind = "no_availability"
	ActionOfferSlots       ActionKind = "offer_slots"
	ActionTimeUnavailable  ActionKind = "time_unavailable"
	ActionBooked           ActionKind = "booked"
	ActionConflict         ActionKind = "conflict"
	ActionCancelled        ActionKind = "cancelled"
	ActionNothingToCancel  ActionKind = "nothing_to_cancel"
	ActionAnswerQuestion   ActionKind = "answer_question"
	ActionTemporaryFailure ActionKind = "temporary_failure"

	ActionChooseAppointment    ActionKind = "choose_appointment"
	ActionAppointmentCancelled ActionKind = "appointment_cancelled"
	ActionAskRescheduleDate    ActionKind = "ask_reschedule_date"
	ActionRescheduled          ActionKind = "rescheduled"
)

// ChangesCalendar reports whether the action follows a committed appointment write.
func (k ActionKind) ChangesCalendar() bool {
	return k == ActionBooked || k == ActionAppointmentCancelled || k == ActionRescheduled
}

// Action carries the decided reply and every fact it may mention. The
// composer renders it and never adds facts of its own.
type Action struct {
	Kind          ActionKind
	Services      []Service
	Service       *Service
	Date          *Date
	Slots         []Slot
	Slot          *Slot
	RequestedTime *TimeOfDay
	Question      QuestionKind
	// FollowUp re-prompts the current step after a question is answered.
	FollowUp ActionKind
	// Greeting prefixes a re-prompt when the client says hello mid-flow.
	Greeting      bool
	AppointmentID string
	// Appointment is the existing appointment being cancelled or moved.
	Appointment  *BookedAppointment
	Appointments []BookedAppointment
	ManageMode   ManageMode
}
