package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName       string
	AppVersion    string
	Environment   string
	HTTPAddr      string
	PublicBaseURL string
	SnowflakeNode int64

	OTLPEndpoint string
	Telemetry    TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBMigrate         bool

	Redis        RedisConfig
	RateLimit    RateLimitConfig
	Providers    ProvidersConfig
	Poller       PollerConfig
	Generation   GenerationConfig
	Storage      StorageConfig
	Notification NotificationConfig
	Callback     CallbackConfig
	Seed         SeedConfig
	MetricsPush  MetricsPushConfig

	// Operators maps user ids to an operator role for the admin API.
	Operators map[int64]string
}

// TelemetryConfig covers logging and OpenTelemetry export.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis endpoint was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type RateLimitConfig struct {
	Enabled     bool
	SubmitRate  float64
	SubmitBurst int
}

type ProviderConfig struct {
	APIKey         string
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
}

type ProvidersConfig struct {
	Kie        ProviderConfig
	MiniMax    ProviderConfig
	ElevenLabs ProviderConfig
}

type PollerConfig struct {
	Enabled         bool
	RunInterval     time.Duration
	BatchSize       int
	MinPollInterval time.Duration
	MaxPollErrors   int
	PollConcurrency int
	PendingTimeout  time.Duration
	StaleImage      time.Duration
	StaleVideo      time.Duration
	StaleAudio      time.Duration
	StaleMusic      time.Duration
	LockTTL         time.Duration
}

type GenerationConfig struct {
	MaxActiveJobsPerUser int
	ReserveMaxAttempts   int
}

type StorageConfig struct {
	Driver        string
	LocalDir      string
	PublicBaseURL string
	S3Bucket      string
	S3Region      string
	S3Prefix      string
}

type NotificationConfig struct {
	SlackWebhookURL string
	SlackChannel    string
	BufferSize      int

	// Refund failures are also mailed to AlertEmails when SMTP is set.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	AlertEmails  []string
}

type CallbackConfig struct {
	Token string
}

// MetricsPushConfig ships the process's Prometheus metrics for deployments
// that cannot be scraped, such as the headless poller.
type MetricsPushConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

// SeedConfig names a local user credited on startup. Ignored in production.
type SeedConfig struct {
	UserID  int64
	Credits int64
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "genstudio"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL: strings.TrimRight(strings.TrimSpace(getenv("PUBLIC_BASE_URL", "")), "/"),
		SnowflakeNode: getenvInt64("SNOWFLAKE_NODE", 1),
		OTLPEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", true),
			OtelProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "genstudio"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBMigrate:         getenvBool("DATABASE_MIGRATE", false),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getenvBool("RATE_LIMIT_ENABLED", false),
			SubmitRate:  getenvFloat("RATE_LIMIT_SUBMIT_RATE", 0.5),
			SubmitBurst: getenvInt("RATE_LIMIT_SUBMIT_BURST", 5),
		},
		Providers: ProvidersConfig{
			Kie:        loadProvider("KIE", "https://api.kie.ai"),
			MiniMax:    loadProvider("MINIMAX", "https://api.minimax.io"),
			ElevenLabs: loadProvider("ELEVENLABS", "https://api.elevenlabs.io"),
		},
		Poller: PollerConfig{
			Enabled:         getenvBool("POLLER_ENABLED", true),
			RunInterval:     getenvDuration("POLLER_RUN_INTERVAL", 5*time.Second),
			BatchSize:       getenvInt("POLLER_BATCH_SIZE", 25),
			MinPollInterval: getenvDuration("POLLER_MIN_POLL_INTERVAL", 5*time.Second),
			MaxPollErrors:   getenvInt("POLLER_MAX_POLL_ERRORS", 5),
			PollConcurrency: getenvInt("POLLER_CONCURRENCY", 5),
			PendingTimeout:  getenvDuration("POLLER_PENDING_TIMEOUT", 3*time.Minute),
			StaleImage:      getenvDuration("POLLER_STALE_IMAGE", 5*time.Minute),
			StaleVideo:      getenvDuration("POLLER_STALE_VIDEO", 20*time.Minute),
			StaleAudio:      getenvDuration("POLLER_STALE_AUDIO", 5*time.Minute),
			StaleMusic:      getenvDuration("POLLER_STALE_MUSIC", 10*time.Minute),
			LockTTL:         getenvDuration("POLLER_LOCK_TTL", 30*time.Second),
		},
		Generation: GenerationConfig{
			MaxActiveJobsPerUser: getenvInt("GENERATION_MAX_ACTIVE_JOBS_PER_USER", 0),
			ReserveMaxAttempts:   getenvInt("GENERATION_RESERVE_MAX_ATTEMPTS", 3),
		},
		Storage: StorageConfig{
			Driver:        strings.ToLower(strings.TrimSpace(getenv("STORAGE_DRIVER", "local"))),
			LocalDir:      getenv("STORAGE_LOCAL_DIR", "./data/media"),
			PublicBaseURL: strings.TrimRight(strings.TrimSpace(getenv("STORAGE_PUBLIC_BASE_URL", "")), "/"),
			S3Bucket:      strings.TrimSpace(getenv("STORAGE_S3_BUCKET", "")),
			S3Region:      strings.TrimSpace(getenv("STORAGE_S3_REGION", "")),
			S3Prefix:      strings.TrimSpace(getenv("STORAGE_S3_PREFIX", "generations")),
		},
		Notification: NotificationConfig{
			SlackWebhookURL: strings.TrimSpace(getenv("SLACK_WEBHOOK_URL", "")),
			SlackChannel:    strings.TrimSpace(getenv("SLACK_CHANNEL", "")),
			BufferSize:      getenvInt("NOTIFICATION_BUFFER_SIZE", 256),
			SMTPHost:        strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:        getenvInt("SMTP_PORT", 587),
			SMTPUsername:    strings.TrimSpace(getenv("SMTP_USERNAME", "")),
			SMTPPassword:    getenv("SMTP_PASSWORD", ""),
			SMTPFrom:        strings.TrimSpace(getenv("SMTP_FROM", "alerts@genstudio.local")),
			AlertEmails:     splitList(getenv("NOTIFY_ALERT_EMAILS", "")),
		},
		Callback: CallbackConfig{
			Token: strings.TrimSpace(getenv("CALLBACK_TOKEN", "")),
		},
		MetricsPush: MetricsPushConfig{
			Exporter:  strings.ToLower(strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", ""))),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
			Interval:  getenvDuration("METRICS_PUSH_INTERVAL", 30*time.Second),
		},
		Seed: SeedConfig{
			UserID:  getenvInt64("SEED_USER_ID", 0),
			Credits: getenvInt64("SEED_USER_CREDITS", 0),
		},
		Operators: parseOperatorRoles(getenv("OPERATOR_ROLES", "")),
	}

	return cfg
}

func loadProvider(prefix, baseURL string) ProviderConfig {
	return ProviderConfig{
		APIKey:         strings.TrimSpace(getenv(prefix+"_API_KEY", "")),
		BaseURL:        strings.TrimRight(getenv(prefix+"_BASE_URL", baseURL), "/"),
		Timeout:        getenvDuration(prefix+"_TIMEOUT", 45*time.Second),
		MaxRetries:     getenvInt(prefix+"_MAX_RETRIES", 2),
		RetryBaseDelay: getenvDuration(prefix+"_RETRY_BASE_DELAY", 600*time.Millisecond),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseOperatorRoles reads "12:admin,40:support". Malformed entries are skipped.
func parseOperatorRoles(value string) map[int64]string {
	roles := map[int64]string{}
	for _, item := range splitList(value) {
		idRaw, role, ok := strings.Cut(item, ":")
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idRaw), 10, 64)
		role = strings.ToLower(strings.TrimSpace(role))
		if err != nil || id <= 0 || role == "" {
			continue
		}
		roles[id] = role
	}
	return roles
}
