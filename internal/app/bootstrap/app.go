package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/salon-sms-booking/internal/config"
	"github.com/wolfman30/salon-sms-booking/internal/conversation"
	"github.com/wolfman30/salon-sms-booking/internal/http/handlers"
	"github.com/wolfman30/salon-sms-booking/internal/messaging"
	"github.com/wolfman30/salon-sms-booking/internal/observability/metrics"
	"github.com/wolfman30/salon-sms-booking/pkg/logging"
)

// App holds every long-lived dependency a binary needs.
type App struct {
	Config  *appconfig.Config
	Logger  *logging.Logger
	Profile conversation.BusinessProfile

	Redis *redis.Client
	Pool  *pgxpool.Pool
	SQLDB *sql.DB

	Engine      *conversation.Engine
	Queue       conversation.Queue
	Publisher   *conversation.Publisher
	Sender      *messaging.TwilioSender
	Deduper     messaging.Deduper
	AutoRespond *messaging.AutoRespondSwitch

	Registry            *prometheus.Registry
	MessagingMetrics    *metrics.MessagingMetrics
	ConversationMetrics *metrics.ConversationMetrics

	closers []io.Closer
}

// Build connects to the configured backends and assembles the engine. On
// error, anything already opened is closed.
func Build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (app *App, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app = &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.MessagingMetrics = metrics.NewMessagingMetrics(app.Registry)
	app.ConversationMetrics = metrics.NewConversationMetrics(app.Registry)

	if app.Profile, err = BuildBusinessProfile(cfg); err != nil {
		return app, err
	}

	app.Redis = BuildRedisClient(ctx, cfg, logger, true)
	if app.Redis != nil {
		app.closers = append(app.closers, app.Redis)
	}

	if app.Pool, err = BuildPostgresPool(ctx, cfg); err != nil {
		return app, err
	}
	if app.SQLDB, err = BuildSQLDB(cfg); err != nil {
		return app, err
	}
	if app.SQLDB != nil {
		app.closers = append(app.closers, app.SQLDB)
	}

	store, locker, err := BuildStateStore(cfg, app.Redis)
	if err != nil {
		return app, err
	}

	phraser, phraserCloser, err := BuildPhraser(ctx, cfg, logger)
	if err != nil {
		return app, err
	}
	if phraserCloser != nil {
		app.closers = append(app.closers, phraserCloser)
	}

	inputs := EngineInputs{
		Store:         store,
		Locker:        locker,
		Collaborators: BuildCollaborators(app.Pool, app.Profile, logger),
		Profile:       app.Profile,
		Phraser:       phraser,
		Metrics:       app.ConversationMetrics,
	}
	if app.SQLDB != nil {
		inputs.Transcript = conversation.NewMessageLog(app.SQLDB)
	}
	app.Engine = BuildEngine(cfg, inputs, logger)

	if app.Redis != nil {
		app.Deduper = messaging.NewRedisDeduper(app.Redis, messaging.DefaultDedupeTTL)
	} else {
		app.Deduper = messaging.NewMemoryDeduper(messaging.DefaultDedupeTTL)
	}
	app.AutoRespond = messaging.NewAutoRespondSwitch(cfg.AutoRespondEnabled, messaging.WithAutoRespondRules(messaging.AutoRespondRules{
		ExcludedKeywords:  cfg.AutoRespondExcludedKeywords,
		ExcludedSenders:   cfg.AutoRespondExcludedNumbers,
		RespondToNumbers:  cfg.AutoRespondNumbers,
		BusinessHoursOnly: cfg.AutoRespondBusinessHoursOnly,
		Profile:           app.Profile,
	}))

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		if app.Sender, err = messaging.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger); err != nil {
			return app, err
		}
	}

	if cfg.SMSReplyMode == appconfig.ReplyModeAsync {
		if app.Queue, err = BuildQueue(ctx, cfg); err != nil {
			return app, err
		}
		app.Publisher = conversation.NewPublisher(app.Queue, logger)
	}

	logger.Info("application dependencies ready",
		"state_backend", cfg.StateBackend,
		"reply_mode", cfg.SMSReplyMode,
		"postgres", app.Pool != nil,
		"redis", app.Redis != nil,
		"message_log", app.SQLDB != nil,
		"llm_provider", cfg.LLMProvider,
	)
	return app, nil
}

// NewWorker builds a queue consumer that answers through the Twilio sender.
func (a *App) NewWorker() (*conversation.Worker, error) {
	if a.Queue == nil {
		return nil, fmt.Errorf("bootstrap: no conversation queue configured (SMS_REPLY_MODE=%s)", a.Config.SMSReplyMode)
	}
	if a.Sender == nil {
		return nil, fmt.Errorf("bootstrap: twilio credentials are required to send replies")
	}
	return conversation.NewWorker(a.Engine, a.Queue, a.Sender, a.Logger,
		conversation.WithWorkerCount(a.Config.WorkerCount),
		conversation.WithWorkerMetrics(a.MessagingMetrics),
	), nil
}

// HealthChecks pings the backends that were configured.
func (a *App) HealthChecks() map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if a.Pool != nil {
		checks["postgres"] = a.Pool.Ping
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	if a.SQLDB != nil {
		checks["message_log"] = a.SQLDB.PingContext
	}
	return checks
}

// Close releases every connection opened by Build.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.Logger.Warn("failed to close dependency", "error", err)
		}
	}
	a.closers = nil
	if a.Pool != nil {
		a.Pool.Close()
		a.Pool = nil
	}
}
