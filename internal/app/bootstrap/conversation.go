package bootstrap

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/salon-sms-booking/internal/config"
	"github.com/wolfman30/salon-sms-booking/internal/conversation"
	"github.com/wolfman30/salon-sms-booking/internal/observability/metrics"
	"github.com/wolfman30/salon-sms-booking/internal/scheduling"
	"github.com/wolfman30/salon-sms-booking/pkg/logging"
)

const (
	phraserTimeout = 3 * time.Second
	minLockLease   = 30 * time.Second
	lockLeaseSlack = 5 * time.Second

	// maxTurnCalls bounds the timed collaborator calls one turn can make.
	maxTurnCalls = 8
)

// lockLease outlasts the longest turn the engine can run, so the per-phone
// lock never expires while its holder is still working.
func lockLease(cfg *appconfig.Config) time.Duration {
	lease := time.Duration(maxTurnCalls)*cfg.CollaboratorTimeout + phraserTimeout + lockLeaseSlack
	return max(lease, minLockLease)
}

// Collaborators bundles the contracts the engine books through.
type Collaborators struct {
	Catalog      conversation.ServiceCatalog
	Slots        conversation.SlotFinder
	Bookings     conversation.BookingWriter
	Clients      conversation.ClientDirectory
	Appointments conversation.AppointmentManager
}

// BuildBusinessProfile parses the business settings from config.
func BuildBusinessProfile(cfg *appconfig.Config) (conversation.BusinessProfile, error) {
	profile, err := conversation.NewBusinessProfile(
		cfg.BusinessName,
		cfg.BusinessTimezone,
		cfg.BusinessAddress,
		cfg.BusinessPhone,
		cfg.BusinessOpenTime,
		cfg.BusinessCloseTime,
		cfg.BusinessClosedDays,
	)
	if err != nil {
		return conversation.BusinessProfile{}, fmt.Errorf("bootstrap: business profile: %w", err)
	}
	return profile, nil
}

// BuildCollaborators returns the Postgres repositories when a pool is
// available and an in-memory calendar otherwise.
func BuildCollaborators(pool *pgxpool.Pool, profile conversation.BusinessProfile, logger *logging.Logger) Collaborators {
	if logger == nil {
		logger = logging.Default()
	}
	if pool == nil {
		logger.Warn("DATABASE_URL not set, booking against the in-memory calendar")
		calendar := scheduling.NewMemoryCalendar(profile, nil)
		return Collaborators{Catalog: calendar, Slots: calendar, Bookings: calendar, Clients: calendar, Appointments: calendar}
	}
	return Collaborators{
		Catalog:      scheduling.NewCatalog(pool),
		Slots:        scheduling.NewSlotFinder(pool, profile.Location),
		Bookings:     scheduling.NewAppointmentWriter(pool, logger),
		Clients:      scheduling.NewClientDirectory(pool),
		Appointments: scheduling.NewAppointmentManager(pool, logger),
	}
}

// BuildStateStore picks the conversation store and the per-phone locker. Redis
// backs both when configured so several API instances share conversations.
func BuildStateStore(cfg *appconfig.Config, redisClient *redis.Client) (conversation.StateStore, conversation.Locker, error) {
	switch cfg.StateBackend {
	case "", "memory":
		return conversation.NewMemoryStore(cfg.ConversationTTL, nil), conversation.NewKeyedLocker(cfg.LockWait), nil
	case "redis":
		if redisClient == nil {
			return nil, nil, fmt.Errorf("bootstrap: redis state backend requires a reachable REDIS_ADDR")
		}
		return conversation.NewRedisStore(redisClient, cfg.ConversationTTL, nil),
			conversation.NewRedisLocker(redisClient, lockLease(cfg), cfg.LockWait),
			nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown CONVERSATION_STATE_BACKEND %q", cfg.StateBackend)
	}
}

// EngineInputs are the runtime pieces BuildEngine wires together.
type EngineInputs struct {
	Store         conversation.StateStore
	Locker        conversation.Locker
	Collaborators Collaborators
	Profile       conversation.BusinessProfile
	Phraser       conversation.Phraser
	Transcript    conversation.Transcript
	Metrics       *metrics.ConversationMetrics
}

// BuildEngine assembles the composer and the booking engine.
func BuildEngine(cfg *appconfig.Config, in EngineInputs, logger *logging.Logger) *conversation.Engine {
	if logger == nil {
		logger = logging.Default()
	}
	composerOpts := []conversation.ComposerOption{
		conversation.WithMaxSlots(cfg.MaxSlotsToPresent),
		conversation.WithMaxReplyLength(cfg.MaxReplyLength),
		conversation.WithComposerLogger(logger),
	}
	if in.Phraser != nil {
		composerOpts = append(composerOpts, conversation.WithPhraser(in.Phraser, phraserTimeout))
	}
	engineOpts := []conversation.EngineOption{
		conversation.WithLocker(in.Locker),
		conversation.WithLocation(in.Profile.Location),
		conversation.WithCollaboratorTimeout(cfg.CollaboratorTimeout),
		conversation.WithEngineLogger(logger),
	}
	if in.Transcript != nil {
		engineOpts = append(engineOpts, conversation.WithTranscript(in.Transcript))
	}
	if cfg.AppointmentChangesEnabled && in.Collaborators.Appointments != nil {
		engineOpts = append(engineOpts, conversation.WithAppointmentManager(in.Collaborators.Appointments))
	}
	if in.Metrics != nil {
		composerOpts = append(composerOpts, conversation.WithComposerMetrics(in.Metrics))
		engineOpts = append(engineOpts, conversation.WithEngineMetrics(in.Metrics))
	}

	return conversation.NewEngine(conversation.EngineDeps{
		Store:    in.Store,
		Catalog:  in.Collaborators.Catalog,
		Slots:    in.Collaborators.Slots,
		Bookings: in.Collaborators.Bookings,
		Clients:  in.Collaborators.Clients,
		Composer: conversation.NewComposer(in.Profile, composerOpts...),
	}, engineOpts...)
}
