package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "MEMORA"

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Game      GameSettings      `mapstructure:"game"`
	Review    ReviewSettings    `mapstructure:"review"`
	Push      PushSettings      `mapstructure:"push"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	Schema            string        `mapstructure:"schema"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	DB              int    `mapstructure:"db"`
	Password        string `mapstructure:"password"`
	TLSEnabled      bool   `mapstructure:"tls_enabled"`
	RateLimitPrefix string `mapstructure:"rate_limit_prefix"`
}

// KafkaSettings configures Kafka producer
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// RateLimitSettings configures the sliding window applied to answer submissions
type RateLimitSettings struct {
	WindowDuration    time.Duration `mapstructure:"window_duration"`
	AnswerMaxAttempts int           `mapstructure:"answer_max_attempts"`
}

// JWTSettings configures verification of bearer tokens issued by the auth service
type JWTSettings struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type TelemetrySettings struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// GameSettings configures the session engine
type GameSettings struct {
	DefaultCardsPerSession int           `mapstructure:"default_cards_per_session"`
	SessionTTL             time.Duration `mapstructure:"session_ttl"`
	ReapInterval           time.Duration `mapstructure:"reap_interval"`
}

// ReviewSettings configures the due scanner and batch coordinator
type ReviewSettings struct {
	ScanInterval           time.Duration `mapstructure:"scan_interval"`
	ScanTimeout            time.Duration `mapstructure:"scan_timeout"`
	MinDueCards            int           `mapstructure:"min_due_cards"`
	BatchLookback          time.Duration `mapstructure:"batch_lookback"`
	DefaultCardsPerSession int           `mapstructure:"default_cards_per_session"`
	ReminderTimes          []string      `mapstructure:"reminder_times"`
	Timezone               string        `mapstructure:"timezone"`
}

// PushSettings configures the FCM sender
type PushSettings struct {
	CredentialsFile  string  `mapstructure:"credentials_file"`
	ProjectID        string  `mapstructure:"project_id"`
	RatePerSecond    float64 `mapstructure:"rate_per_second"`
	Burst            int     `mapstructure:"burst"`
	MaxParallelSends int     `mapstructure:"max_parallel_sends"`
	MaxActiveTokens  int     `mapstructure:"max_active_tokens"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.schema",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.rate_limit_prefix",
		"kafka.enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"jwt.secret",
		"jwt.issuer",
		"telemetry.tracing_enabled",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"rate_limit.window_duration",
		"rate_limit.answer_max_attempts",
		"game.default_cards_per_session",
		"game.session_ttl",
		"game.reap_interval",
		"review.scan_interval",
		"review.scan_timeout",
		"review.min_due_cards",
		"review.batch_lookback",
		"review.default_cards_per_session",
		"review.reminder_times",
		"review.timezone",
		"push.credentials_file",
		"push.project_id",
		"push.rate_per_second",
		"push.burst",
		"push.max_parallel_sends",
		"push.max_active_tokens",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "memora-api")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "memora")
	v.SetDefault("postgres.password", "memora_password")
	v.SetDefault("postgres.database", "memora")
	v.SetDefault("postgres.schema", "memora")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.rate_limit_prefix", "memora:rate_limit")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "memora")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "")

	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "memora-api")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.answer_max_attempts", 60)

	v.SetDefault("game.default_cards_per_session", 20)
	v.SetDefault("game.session_ttl", "24h")
	v.SetDefault("game.reap_interval", "1h")

	v.SetDefault("review.scan_interval", "15m")
	v.SetDefault("review.scan_timeout", "5m")
	v.SetDefault("review.min_due_cards", 3)
	v.SetDefault("review.batch_lookback", "3h")
	v.SetDefault("review.default_cards_per_session", 15)
	v.SetDefault("review.reminder_times", []string{"09:00", "19:00"})
	v.SetDefault("review.timezone", "UTC")

	v.SetDefault("push.credentials_file", "")
	v.SetDefault("push.project_id", "")
	v.SetDefault("push.rate_per_second", 50.0)
	v.SetDefault("push.burst", 10)
	v.SetDefault("push.max_parallel_sends", 4)
	v.SetDefault("push.max_active_tokens", 5)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
