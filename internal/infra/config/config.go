package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Auth      AuthSettings      `mapstructure:"auth"`
	Lockout   LockoutSettings   `mapstructure:"lockout"`
	IPLockout LockoutSettings   `mapstructure:"ip_lockout"`
	TOTP      TOTPSettings      `mapstructure:"totp"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	Sentry    SentrySettings    `mapstructure:"sentry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
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
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// DSN renders a libpq-style connection URL.
func (p PostgresSettings) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// RedisSettings configures Redis connection, TLS and key namespace
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// KafkaSettings configures the security event producer and the revocation command consumer
type KafkaSettings struct {
	Enabled            bool     `mapstructure:"enabled"`
	Brokers            []string `mapstructure:"brokers"`
	TopicPrefix        string   `mapstructure:"topic_prefix"`
	ConsumerGroup      string   `mapstructure:"consumer_group"`
	ConsumeRevocations bool     `mapstructure:"consume_revocations"`
}

// RateLimitSettings configures per-IP request limits on the auth endpoints
type RateLimitSettings struct {
	WindowDuration             time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts           int           `mapstructure:"login_max_attempts"`
	RegisterMaxAttempts        int           `mapstructure:"register_max_attempts"`
	RefreshMaxAttempts         int           `mapstructure:"refresh_max_attempts"`
	PasswordResetMaxAttempts   int           `mapstructure:"password_reset_max_attempts"`
	PasswordConfirmMaxAttempts int           `mapstructure:"password_confirm_max_attempts"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type JWTSettings struct {
	KeyDirectory     string        `mapstructure:"key_directory"`
	SigningKeyID     string        `mapstructure:"signing_key_id"`
	Issuer           string        `mapstructure:"issuer"`
	Audience         []string      `mapstructure:"audience"`
	AccessTokenTTL   time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL  time.Duration `mapstructure:"refresh_token_ttl"`
	RefreshRetention time.Duration `mapstructure:"refresh_retention"`
}

// AuthSettings configures cross-cutting authentication behaviour
type AuthSettings struct {
	StoreTimeout         time.Duration `mapstructure:"store_timeout"`
	RequireVerifiedEmail bool          `mapstructure:"require_verified_email"`
	VerifyEmailTTL       time.Duration `mapstructure:"verify_email_ttl"`
	PasswordResetTTL     time.Duration `mapstructure:"password_reset_ttl"`
	DegradationPolicy    string        `mapstructure:"degradation_policy"`
	CORSOrigins          []string      `mapstructure:"cors_origins"`
}

// LockoutSettings configures one login throttle instance
type LockoutSettings struct {
	Window       time.Duration `mapstructure:"window"`
	MaxFailures  int           `mapstructure:"max_failures"`
	BaseDuration time.Duration `mapstructure:"base_duration"`
	MaxDuration  time.Duration `mapstructure:"max_duration"`
	Decay        time.Duration `mapstructure:"decay"`
}

// TOTPSettings configures two-factor enrollment and verification
type TOTPSettings struct {
	Issuer           string        `mapstructure:"issuer"`
	Period           uint          `mapstructure:"period"`
	Skew             uint          `mapstructure:"skew"`
	Digits           int           `mapstructure:"digits"`
	BackupCodeCount  int           `mapstructure:"backup_code_count"`
	EnrollmentTTL    time.Duration `mapstructure:"enrollment_ttl"`
	EncryptionKey    string        `mapstructure:"encryption_key"`
	BackupCodePepper string        `mapstructure:"backup_code_pepper"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type SentrySettings struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("AUTH")

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
		"redis.key_prefix",
		"kafka.enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.consumer_group",
		"kafka.consume_revocations",
		"jwt.key_directory",
		"jwt.signing_key_id",
		"jwt.issuer",
		"jwt.audience",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"jwt.refresh_retention",
		"auth.store_timeout",
		"auth.require_verified_email",
		"auth.verify_email_ttl",
		"auth.password_reset_ttl",
		"auth.degradation_policy",
		"auth.cors_origins",
		"lockout.window",
		"lockout.max_failures",
		"lockout.base_duration",
		"lockout.max_duration",
		"lockout.decay",
		"ip_lockout.window",
		"ip_lockout.max_failures",
		"ip_lockout.base_duration",
		"ip_lockout.max_duration",
		"ip_lockout.decay",
		"totp.issuer",
		"totp.period",
		"totp.skew",
		"totp.digits",
		"totp.backup_code_count",
		"totp.enrollment_ttl",
		"totp.encryption_key",
		"totp.backup_code_pepper",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"sentry.dsn",
		"sentry.environment",
		"sentry.sample_rate",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.register_max_attempts",
		"rate_limit.refresh_max_attempts",
		"rate_limit.password_reset_max_attempts",
		"rate_limit.password_confirm_max_attempts",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings that would silently weaken authentication.
func (c *AppConfig) Validate() error {
	if c.JWT.AccessTokenTTL <= 0 || c.JWT.RefreshTokenTTL <= c.JWT.AccessTokenTTL {
		return fmt.Errorf("config: refresh token ttl must exceed a positive access token ttl")
	}
	for name, l := range map[string]LockoutSettings{"lockout": c.Lockout, "ip_lockout": c.IPLockout} {
		if l.MaxFailures <= 0 || l.Window <= 0 || l.BaseDuration <= 0 {
			return fmt.Errorf("config: %s requires positive window, max_failures and base_duration", name)
		}
	}
	if c.TOTP.Period == 0 || c.TOTP.Digits < 6 {
		return fmt.Errorf("config: totp period must be positive and digits at least 6")
	}
	if c.Auth.StoreTimeout <= 0 {
		return fmt.Errorf("config: auth.store_timeout must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "marketplace-auth")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "marketplace")
	v.SetDefault("postgres.password", "marketplace_password")
	v.SetDefault("postgres.database", "marketplace")
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
	v.SetDefault("redis.key_prefix", "auth")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "marketplace")
	v.SetDefault("kafka.consumer_group", "marketplace-auth")
	v.SetDefault("kafka.consume_revocations", false)

	v.SetDefault("jwt.key_directory", "./secrets")
	v.SetDefault("jwt.signing_key_id", "")
	v.SetDefault("jwt.issuer", "marketplace-auth")
	v.SetDefault("jwt.audience", []string{"marketplace-api"})
	v.SetDefault("jwt.access_token_ttl", "15m")
	v.SetDefault("jwt.refresh_token_ttl", "168h")
	v.SetDefault("jwt.refresh_retention", "24h")

	v.SetDefault("auth.store_timeout", "2s")
	v.SetDefault("auth.require_verified_email", true)
	v.SetDefault("auth.verify_email_ttl", "24h")
	v.SetDefault("auth.password_reset_ttl", "1h")
	v.SetDefault("auth.degradation_policy", "strict")
	v.SetDefault("auth.cors_origins", []string{})

	v.SetDefault("lockout.window", "15m")
	v.SetDefault("lockout.max_failures", 5)
	v.SetDefault("lockout.base_duration", "15m")
	v.SetDefault("lockout.max_duration", "24h")
	v.SetDefault("lockout.decay", "24h")

	v.SetDefault("ip_lockout.window", "15m")
	v.SetDefault("ip_lockout.max_failures", 50)
	v.SetDefault("ip_lockout.base_duration", "5m")
	v.SetDefault("ip_lockout.max_duration", "1h")
	v.SetDefault("ip_lockout.decay", "6h")

	v.SetDefault("totp.issuer", "Marketplace")
	v.SetDefault("totp.period", 30)
	v.SetDefault("totp.skew", 1)
	v.SetDefault("totp.digits", 6)
	v.SetDefault("totp.backup_code_count", 10)
	v.SetDefault("totp.enrollment_ttl", "10m")
	v.SetDefault("totp.encryption_key", "")
	v.SetDefault("totp.backup_code_pepper", "")

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "marketplace-auth")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")
	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 20)
	v.SetDefault("rate_limit.register_max_attempts", 5)
	v.SetDefault("rate_limit.refresh_max_attempts", 30)
	v.SetDefault("rate_limit.password_reset_max_attempts", 5)
	v.SetDefault("rate_limit.password_confirm_max_attempts", 10)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "AUTH_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
