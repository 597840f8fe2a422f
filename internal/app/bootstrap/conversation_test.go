package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	appconfig "github.com/wolfman30/salon-sms-booking/internal/config"
	"github.com/wolfman30/salon-sms-booking/internal/conversation"
	"github.com/wolfman30/salon-sms-booking/internal/scheduling"
	"github.com/wolfman30/salon-sms-booking/pkg/logging"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		Env:                 "development",
		LogLevel:            "error",
		StateBackend:        "memory",
		ConversationTTL:     30 * time.Minute,
		CollaboratorTimeout: 5 * time.Second,
		LockWait:            time.Second,
		MaxSlotsToPresent:   6,
		MaxReplyLength:      320,
		BusinessName:        "Glo Head Spa",
		BusinessTimezone:    "UTC",
		BusinessOpenTime:    "09:00",
		BusinessCloseTime:   "18:00",
		BusinessClosedDays:  []string{"sunday"},
		SMSReplyMode:        appconfig.ReplyModeTwiML,
		QueueBackend:        "memory",
		WorkerCount:         1,
		LLMProvider:         "none",
		AdminJWTSecret:      "bootstrap-secret",
		AutoRespondEnabled:  true,
	}
}

func TestBuildBusinessProfile(t *testing.T) {
	profile, err := BuildBusinessProfile(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Name != "Glo Head Spa" {
		t.Fatalf("expected business name, got %q", profile.Name)
	}
	if profile.IsOpenOn(time.Sunday) {
		t.Fatalf("expected sunday closed")
	}

	cfg := testConfig()
	cfg.BusinessClosedDays = []string{"someday"}
	if _, err := BuildBusinessProfile(cfg); err == nil {
		t.Fatalf("expected error for unknown weekday")
	}
}

func TestBuildCollaboratorsWithoutPoolUsesMemoryCalendar(t *testing.T) {
	profile, err := BuildBusinessProfile(testConfig())
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	collab := BuildCollaborators(nil, profile, logging.New("error"))
	calendar, ok := collab.Catalog.(*scheduling.MemoryCalendar)
	if !ok {
		t.Fatalf("expected memory calendar, got %T", collab.Catalog)
	}
	if collab.Slots != calendar || collab.Bookings != calendar || collab.Clients != calendar {
		t.Fatalf("expected one calendar behind every contract")
	}
	services, err := collab.Catalog.ListActiveServices(context.Background())
	if err != nil || len(services) != len(scheduling.DefaultServices) {
		t.Fatalf("expected seeded services, got %d (%v)", len(services), err)
	}
}

func TestBuildStateStoreMemory(t *testing.T) {
	store, locker, err := BuildStateStore(testConfig(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.(*conversation.MemoryStore); !ok {
		t.Fatalf("expected MemoryStore, got %T", store)
	}
	if _, ok := locker.(*conversation.KeyedLocker); !ok {
		t.Fatalf("expected KeyedLocker, got %T", locker)
	}
}

func TestBuildStateStoreRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.StateBackend = "redis"
	cfg.RedisAddr = mr.Addr()

	if _, _, err := BuildStateStore(cfg, nil); err == nil {
		t.Fatalf("expected error without a redis client")
	}

	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	if client == nil {
		t.Fatalf("expected redis client")
	}
	defer client.Close()

	store, locker, err := BuildStateStore(cfg, client)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.(*conversation.RedisStore); !ok {
		t.Fatalf("expected RedisStore, got %T", store)
	}
	if _, ok := locker.(*conversation.RedisLocker); !ok {
		t.Fatalf("expected RedisLocker, got %T", locker)
	}
}

func TestLockLeaseOutlastsSlowestTurn(t *testing.T) {
	cfg := testConfig()
	cfg.CollaboratorTimeout = time.Second
	if got := lockLease(cfg); got != minLockLease {
		t.Fatalf("expected floor lease %s, got %s", minLockLease, got)
	}

	cfg.CollaboratorTimeout = 10 * time.Second
	turn := maxTurnCalls*cfg.CollaboratorTimeout + phraserTimeout
	if got := lockLease(cfg); got <= turn {
		t.Fatalf("lease %s must outlast a %s turn", got, turn)
	}

	mr := miniredis.RunT(t)
	cfg.StateBackend = "redis"
	cfg.RedisAddr = mr.Addr()
	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	defer client.Close()
	_, locker, err := BuildStateStore(cfg, client)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	unlock, err := locker.Lock(context.Background(), "+15125550100")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()
	if ttl := mr.TTL("conversation:lock:+15125550100"); ttl != lockLease(cfg) {
		t.Fatalf("expected lock ttl %s, got %s", lockLease(cfg), ttl)
	}
}

func TestBuildStateStoreUnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.StateBackend = "etcd"
	if _, _, err := BuildStateStore(cfg, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestBuildRedisClientUnreachableReturnsNil(t *testing.T) {
	cfg := testConfig()
	cfg.RedisAddr = "127.0.0.1:1"
	if client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when redis is unreachable")
	}
	cfg.RedisAddr = ""
	if client := BuildRedisClient(context.Background(), cfg, nil, false); client != nil {
		t.Fatalf("expected nil client when redis is disabled")
	}
}

func TestBuildPostgresPoolEmptyURLReturnsNil(t *testing.T) {
	pool, err := BuildPostgresPool(context.Background(), testConfig())
	if err != nil || pool != nil {
		t.Fatalf("expected nil pool without DATABASE_URL, got %v (%v)", pool, err)
	}
	db, err := BuildSQLDB(testConfig())
	if err != nil || db != nil {
		t.Fatalf("expected nil db with message log disabled, got %v (%v)", db, err)
	}
}

func TestBuildPhraser(t *testing.T) {
	phraser, closer, err := BuildPhraser(context.Background(), testConfig(), nil)
	if err != nil || phraser != nil || closer != nil {
		t.Fatalf("expected no phraser for provider none, got %v %v %v", phraser, closer, err)
	}

	cfg := testConfig()
	cfg.LLMProvider = "mystery"
	if _, _, err := BuildPhraser(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	if _, _, err := BuildPhraser(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildQueue(t *testing.T) {
	queue, err := BuildQueue(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := queue.(*conversation.MemoryQueue); !ok {
		t.Fatalf("expected MemoryQueue, got %T", queue)
	}

	cfg := testConfig()
	cfg.QueueBackend = "sqs"
	if _, err := BuildQueue(context.Background(), cfg); err == nil {
		t.Fatalf("expected error without queue url")
	}

	cfg.ConversationQueueURL = "http://localhost:4566/000000000000/conversations.fifo"
	cfg.AWSRegion = "us-east-1"
	cfg.AWSAccessKeyID = "test"
	cfg.AWSSecretAccessKey = "test"
	cfg.AWSEndpointOverride = "http://localhost:4566"
	queue, err = BuildQueue(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := queue.(*conversation.SQSQueue); !ok {
		t.Fatalf("expected SQSQueue, got %T", queue)
	}
}
