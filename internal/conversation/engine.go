package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/salon-sms-booking/internal/observability/metrics"
	"github.com/wolfman30/salon-sms-booking/pkg/logging"
)

const defaultCollaboratorTimeout = 5 * time.Second

// EngineDeps are the collaborators the engine cannot run without.
type EngineDeps struct {
	Store    StateStore
	Catalog  ServiceCatalog
	Slots    SlotFinder
	Bookings BookingWriter
	Clients  ClientDirectory
	Composer *Composer
}

// Engine is the booking state machine. It is the only component that calls
// the slot finder and the booking writer, and the only one that writes state.
type Engine struct {
	store      StateStore
	locker     Locker
	catalog    ServiceCatalog
	slots      SlotFinder
	bookings   BookingWriter
	clients    ClientDirectory
	appts      AppointmentManager
	composer   *Composer
	location   *time.Location
	now        Clock
	timeout    time.Duration
	transcript Transcript
	metrics    *metrics.ConversationMetrics
	logger     *logging.Logger
	tracer     trace.Tracer
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

func WithClock(clock Clock) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.now = clock
		}
	}
}

// WithLocker replaces the in-process per-phone locker, e.g. with a RedisLocker.
func WithLocker(locker Locker) EngineOption {
	return func(e *Engine) {
		if locker != nil {
			e.locker = locker
		}
	}
}

func WithLocation(loc *time.Location) EngineOption {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithCollaboratorTimeout bounds each catalog, slot, client, and booking call.
func WithCollaboratorTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithAppointmentManager lets clients cancel or move upcoming appointments
// by text. Without it a cancel only clears the booking in progress.
func WithAppointmentManager(m AppointmentManager) EngineOption {
	return func(e *Engine) {
		e.appts = m
	}
}

func WithTranscript(t Transcript) EngineOption {
	return func(e *Engine) {
		e.transcript = t
	}
}

func WithEngineMetrics(m *metrics.ConversationMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithEngineLogger(logger *logging.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewEngine(deps EngineDeps, opts ...EngineOption) *Engine {
	switch {
	case deps.Store == nil:
		panic("conversation: state store required")
	case deps.Catalog == nil:
		panic("conversation: service catalog required")
	case deps.Slots == nil:
		panic("conversation: slot finder required")
	case deps.Bookings == nil:
		panic("conversation: booking writer required")
	case deps.Clients == nil:
		panic("conversation: client directory required")
	case deps.Composer == nil:
		panic("conversation: composer required")
	}
	e := &Engine{
		store:    deps.Store,
		catalog:  deps.Catalog,
		slots:    deps.Slots,
		bookings: deps.Bookings,
		clients:  deps.Clients,
		composer: deps.Composer,
		location: time.UTC,
		now:      time.Now,
		timeout:  defaultCollaboratorTimeout,
		logger:   logging.Default(),
		tracer:   otel.Tracer("salon.internal.conversation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.locker == nil {
		e.locker = NewKeyedLocker(0)
	}
	return e
}

// HandleMessage runs one inbound text through the state machine. Collaborator
// failures become an apology reply with state left as it was; the only error
// returned is for a message without a sender.
func (e *Engine) HandleMessage(ctx context.Context, msg InboundMessage) (Reply, error) {
	ctx, span := e.tracer.Start(ctx, "conversation.handle_message")
	defer span.End()
	started := time.Now()
	defer func() { e.metrics.ObserveHandleLatency(time.Since(started).Seconds()) }()

	phone := strings.TrimSpace(msg.From)
	if phone == "" {
		return Reply{}, errMissingSender
	}
	logger := e.logger.WithPhone(phone)
	reply := Reply{To: phone, From: msg.To}
	e.record(ctx, MessageRecord{Phone: phone, Direction: DirectionInbound, Body: msg.Body, CreatedAt: e.receivedAt(msg)})

	unlock, err := e.locker.Lock(ctx, phone)
	if err != nil {
		span.RecordError(err)
		logger.Warn("conversation lock not acquired", "error", err)
		e.metrics.ObserveCollaboratorError("lock")
		reply.Body = e.composer.Compose(ctx, Action{Kind: ActionTemporaryFailure})
		e.record(ctx, MessageRecord{Phone: phone, Direction: DirectionOutbound, Body: reply.Body, CreatedAt: e.now()})
		return reply, nil
	}
	defer unlock()

	action, state := e.process(ctx, phone, msg.Body, logger)
	if state != nil {
		reply.Step = state.Step
	}
	span.SetAttributes(
		attribute.String("salon.conversation.action", string(action.Kind)),
		attribute.String("salon.conversation.step", string(reply.Step)),
	)
	reply.Body = e.composer.Compose(ctx, action)
	e.record(ctx, MessageRecord{Phone: phone, Direction: DirectionOutbound, Body: reply.Body, CreatedAt: e.now()})
	return reply, nil
}

// State returns the stored conversation for phone, or nil.
func (e *Engine) State(ctx context.Context, phone string) (*ConversationState, error) {
	return e.store.Load(ctx, phone)
}

// Reset discards the stored conversation for phone.
func (e *Engine) Reset(ctx context.Context, phone string) error {
	unlock, err := e.locker.Lock(ctx, phone)
	if err != nil {
		return err
	}
	defer unlock()
	return e.store.Delete(ctx, phone)
}

// ActiveConversations counts conversations with a booking in progress.
func (e *Engine) ActiveConversations(ctx context.Context) (int, error) {
	return e.store.ActiveCount(ctx)
}

func (e *Engine) process(ctx context.Context, phone, body string, logger *logging.Logger) (Action, *ConversationState) {
	now := e.now().In(e.location)

	current, err := e.store.Load(ctx, phone)
	if err != nil {
		return e.failed(ctx, "load_state", err, logger), nil
	}
	if current == nil {
		current = NewState(phone, now)
	}

	catalog, err := e.listServices(ctx)
	if err != nil {
		return e.failed(ctx, "list_services", err, logger), current
	}

	sig := Interpret(body, current, catalog, now)
	e.metrics.ObserveMessage(string(sig.Intent))

	t := &turn{engine: e, ctx: ctx, state: current.Clone(), sig: sig, catalog: catalog, logger: logger}
	action, err := t.decide()
	if err != nil {
		var opErr *collaboratorError
		op := "decide"
		if errors.As(err, &opErr) {
			op = opErr.op
		}
		return e.failed(ctx, op, err, logger), current
	}

	next := t.state
	next.LastActivityAt = now
	if err := e.persist(ctx, next); err != nil {
		if action.Kind.ChangesCalendar() {
			// The calendar already changed; report it even though state could not be saved.
			logger.Error("failed to save state after calendar change", "error", err, "action", action.Kind, "appointment_id", action.AppointmentID)
			return action, next
		}
		return e.failed(ctx, "save_state", err, logger), current
	}

	e.metrics.ObserveTransition(string(current.Step), string(next.Step))
	logger.Info("conversation turn handled",
		"intent", sig.Intent,
		"action", action.Kind,
		"from_step", current.Step,
		"to_step", next.Step,
	)
	return action, next
}

func (e *Engine) persist(ctx context.Context, state *ConversationState) error {
	if state.IsBlank() {
		return e.store.Delete(ctx, state.Phone)
	}
	return e.store.Save(ctx, state)
}

func (e *Engine) failed(ctx context.Context, op string, err error, logger *logging.Logger) Action {
	trace.SpanFromContext(ctx).RecordError(err)
	e.metrics.ObserveCollaboratorError(op)
	logger.Error("conversation turn failed", "operation", op, "error", err)
	return Action{Kind: ActionTemporaryFailure}
}

func (e *Engine) record(ctx context.Context, rec MessageRecord) {
	if e.transcript == nil {
		return
	}
	if err := e.transcript.Append(ctx, rec); err != nil {
		e.logger.Warn("failed to append transcript", "error", err, "direction", rec.Direction)
	}
}

func (e *Engine) receivedAt(msg InboundMessage) time.Time {
	if msg.ReceivedAt.IsZero() {
		return e.now()
	}
	return msg.ReceivedAt
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.timeout)
}

func (e *Engine) listServices(ctx context.Context) ([]Service, error) {
	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	services, err := e.catalog.ListActiveServices(callCtx)
	if err != nil {
		return nil, &collaboratorError{op: "list_services", err: err}
	}
	return services, nil
}

// collaboratorError tags a failure with the collaborator call that produced it.
type collaboratorError struct {
	op  string
	err error
}

func (e *collaboratorError) Error() string {
	return fmt.Sprintf("conversation: %s failed: %v", e.op, e.err)
}

func (e *collaboratorError) Unwrap() error {
	return e.err
}
