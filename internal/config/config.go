package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	DatabaseURL       string
	MessageLogEnabled bool
	RedisAddr         string
	RedisPassword     string
	RedisTLS          bool

	StateBackend        string
	ConversationTTL     time.Duration
	CollaboratorTimeout time.Duration
	LockWait            time.Duration
	MaxSlotsToPresent   int
	MaxReplyLength      int

	BusinessName       string
	BusinessTimezone   string
	BusinessAddress    string
	BusinessPhone      string
	BusinessOpenTime   string
	BusinessCloseTime  string
	BusinessClosedDays []string

	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioFromNumber    string
	TwilioSkipSignature bool
	SMSReplyMode        string

	QueueBackend         string
	ConversationQueueURL string
	WorkerCount          int
	AWSRegion            string
	AWSEndpointOverride  string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string

	LLMProvider    string
	GeminiAPIKey   string
	GeminiModelID  string
	BedrockModelID string

	AdminJWTSecret  string
	SimulateEnabled bool

	AutoRespondEnabled           bool
	AutoRespondExcludedKeywords  []string
	AutoRespondExcludedNumbers   []string
	AutoRespondNumbers           []string
	AutoRespondBusinessHoursOnly bool

	AppointmentChangesEnabled bool

	RateLimitRPS   float64
	RateLimitBurst int
}

// DefaultExcludedKeywords leave texts that need a person to staff. Cancel and
// reschedule requests are handled by the engine and are not excluded.
var DefaultExcludedKeywords = []string{"urgent", "emergency", "complaint", "refund", "911"}

// Reply delivery modes.
const (
	ReplyModeTwiML = "twiml"
	ReplyModeAsync = "async"
)

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DatabaseURL:       getEnv("DATABASE_URL", ""),
		MessageLogEnabled: getEnvAsBool("MESSAGE_LOG_ENABLED", false),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisTLS:          getEnvAsBool("REDIS_TLS", false),

		StateBackend:        strings.ToLower(getEnv("CONVERSATION_STATE_BACKEND", "memory")),
		ConversationTTL:     getEnvAsDuration("CONVERSATION_TTL", 30*time.Minute),
		CollaboratorTimeout: getEnvAsDuration("COLLABORATOR_TIMEOUT", 5*time.Second),
		LockWait:            getEnvAsDuration("LOCK_WAIT", 10*time.Second),
		MaxSlotsToPresent:   getEnvAsInt("MAX_SLOTS_TO_PRESENT", 6),
		MaxReplyLength:      getEnvAsInt("MAX_REPLY_LENGTH", 320),

		BusinessName:       getEnv("BUSINESS_NAME", "Glo Head Spa"),
		BusinessTimezone:   getEnv("BUSINESS_TIMEZONE", "America/Chicago"),
		BusinessAddress:    getEnv("BUSINESS_ADDRESS", ""),
		BusinessPhone:      getEnv("BUSINESS_PHONE", ""),
		BusinessOpenTime:   getEnv("BUSINESS_OPEN_TIME", "09:00"),
		BusinessCloseTime:  getEnv("BUSINESS_CLOSE_TIME", "18:00"),
		BusinessClosedDays: getEnvAsList("BUSINESS_CLOSED_DAYS", []string{"sunday"}),

		TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:    getEnv("TWILIO_FROM_NUMBER", ""),
		TwilioSkipSignature: getEnvAsBool("TWILIO_SKIP_SIGNATURE", false),
		SMSReplyMode:        strings.ToLower(getEnv("SMS_REPLY_MODE", ReplyModeTwiML)),

		QueueBackend:         strings.ToLower(getEnv("QUEUE_BACKEND", "memory")),
		ConversationQueueURL: getEnv("CONVERSATION_QUEUE_URL", ""),
		WorkerCount:          getEnvAsInt("WORKER_COUNT", 2),
		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),

		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", "none")),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),

		AdminJWTSecret:  getEnv("ADMIN_JWT_SECRET", ""),
		SimulateEnabled: getEnvAsBool("SIMULATE_ENABLED", false),

		AutoRespondEnabled:           getEnvAsBool("AUTO_RESPOND_ENABLED", true),
		AutoRespondExcludedKeywords:  getEnvAsList("AUTO_RESPOND_EXCLUDED_KEYWORDS", DefaultExcludedKeywords),
		AutoRespondExcludedNumbers:   getEnvAsList("AUTO_RESPOND_EXCLUDED_NUMBERS", nil),
		AutoRespondNumbers:           getEnvAsList("AUTO_RESPOND_NUMBERS", nil),
		AutoRespondBusinessHoursOnly: getEnvAsBool("AUTO_RESPOND_BUSINESS_HOURS_ONLY", false),

		AppointmentChangesEnabled: getEnvAsBool("APPOINTMENT_CHANGES_ENABLED", true),

		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 20),
	}
}

// LoadDotEnv loads the given .env files (".env" when none are named).
// Missing files are ignored; variables already set in the environment win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", file, err)
		}
	}
	return nil
}

// Validate reports combinations that cannot start.
func (c *Config) Validate() error {
	switch c.StateBackend {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("config: CONVERSATION_STATE_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("config: unknown CONVERSATION_STATE_BACKEND %q", c.StateBackend)
	}
	switch c.SMSReplyMode {
	case ReplyModeTwiML, ReplyModeAsync:
	default:
		return fmt.Errorf("config: unknown SMS_REPLY_MODE %q", c.SMSReplyMode)
	}
	if c.SMSReplyMode == ReplyModeAsync && (c.TwilioAccountSID == "" || c.TwilioAuthToken == "" || c.TwilioFromNumber == "") {
		return errors.New("config: SMS_REPLY_MODE=async requires twilio credentials and TWILIO_FROM_NUMBER")
	}
	if c.QueueBackend == "sqs" && c.ConversationQueueURL == "" {
		return errors.New("config: QUEUE_BACKEND=sqs requires CONVERSATION_QUEUE_URL")
	}
	switch c.LLMProvider {
	case "", "none":
	case "gemini":
		if c.GeminiAPIKey == "" {
			return errors.New("config: LLM_PROVIDER=gemini requires GEMINI_API_KEY")
		}
	case "bedrock":
		if c.BedrockModelID == "" {
			return errors.New("config: LLM_PROVIDER=bedrock requires BEDROCK_MODEL_ID")
		}
	default:
		return fmt.Errorf("config: unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.MessageLogEnabled && c.DatabaseURL == "" {
		return errors.New("config: MESSAGE_LOG_ENABLED requires DATABASE_URL")
	}
	if c.SimulateEnabled && c.AdminJWTSecret == "" {
		return errors.New("config: SIMULATE_ENABLED requires ADMIN_JWT_SECRET")
	}
	return nil
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
