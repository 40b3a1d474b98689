// AngelaMos | 2026
// config.go

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

type Config struct {
	App       AppConfig       `koanf:"app"`
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	JWT       JWTConfig       `koanf:"jwt"`
	Tokens    TokenConfig     `koanf:"tokens"`
	Password  PasswordConfig  `koanf:"password"`
	Mail      MailConfig      `koanf:"mail"`
	Broker    BrokerConfig    `koanf:"broker"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	CORS      CORSConfig      `koanf:"cors"`
	Log       LogConfig       `koanf:"log"`
	Otel      OtelConfig      `koanf:"otel"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	DrainDelay      time.Duration `koanf:"drain_delay"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
}

const (
	AlgorithmHS256 = "HS256"
	AlgorithmES256 = "ES256"
)

type JWTConfig struct {
	Algorithm          string        `koanf:"algorithm"`
	Secret             string        `koanf:"secret"`
	PrivateKeyPath     string        `koanf:"private_key_path"`
	PublicKeyPath      string        `koanf:"public_key_path"`
	AccessTokenExpire  time.Duration `koanf:"access_token_expire"`
	RefreshTokenExpire time.Duration `koanf:"refresh_token_expire"`
	Issuer             string        `koanf:"issuer"`
	Audience           string        `koanf:"audience"`
}

// TokenConfig covers the single-use reset and confirmation tokens.
type TokenConfig struct {
	ResetTokenExpire        time.Duration `koanf:"reset_token_expire"`
	ConfirmationTokenExpire time.Duration `koanf:"confirmation_token_expire"`
	ConfirmationBaseURL     string        `koanf:"confirmation_base_url"`
	ResetBaseURL            string        `koanf:"reset_base_url"`
}

const (
	PasswordArgon2id = "argon2id"
	PasswordBcrypt   = "bcrypt"
)

type PasswordConfig struct {
	Algorithm  string `koanf:"algorithm"`
	BcryptCost int    `koanf:"bcrypt_cost"`
}

const (
	MailDriverLog     = "log"
	MailDriverMailgun = "mailgun"
	MailDriverQueue   = "queue"
)

type MailConfig struct {
	Driver         string        `koanf:"driver"`
	From           string        `koanf:"from"`
	MailgunDomain  string        `koanf:"mailgun_domain"`
	MailgunAPIKey  string        `koanf:"mailgun_api_key"`
	MailgunAPIBase string        `koanf:"mailgun_api_base"`
	SendTimeout    time.Duration `koanf:"send_timeout"`
	MaxAttempts    int           `koanf:"max_attempts"`
}

type BrokerConfig struct {
	URL            string `koanf:"url"`
	EmailQueue     string `koanf:"email_queue"`
	EventsExchange string `koanf:"events_exchange"`
	Prefetch       int    `koanf:"prefetch"`
	DialAttempts   int    `koanf:"dial_attempts"`
}

func (b BrokerConfig) Enabled() bool {
	return b.URL != ""
}

type RateLimitConfig struct {
	Requests     int           `koanf:"requests"`
	Window       time.Duration `koanf:"window"`
	Burst        int           `koanf:"burst"`
	AuthRequests int           `koanf:"auth_requests"`
	AuthBurst    int           `koanf:"auth_burst"`
	// TrustProxy keys limits on X-Forwarded-For and X-Real-IP. Enable only
	// behind a proxy that overwrites them.
	TrustProxy bool `koanf:"trust_proxy"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// Options controls where Load reads from. Flags, when set, override every
// other source; only flags the user actually changed are applied.
type Options struct {
	ConfigPath string
	EnvFile    string
	Flags      *pflag.FlagSet

	// Validate replaces the full API validation for processes that need
	// only part of the configuration.
	Validate func(*Config) error
}

var (
	cfg  *Config
	once sync.Once
)

func Load(opts Options) (*Config, error) {
	var loadErr error

	once.Do(func() {
		cfg, loadErr = load(opts)
	})

	if loadErr != nil {
		return nil, loadErr
	}

	return cfg, nil
}

func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call Load() first")
	}
	return cfg
}

func load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if opts.ConfigPath != "" {
		if err := k.Load(file.Provider(opts.ConfigPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, flagKeyMapper)
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	c := &Config{}
	if err := k.Unmarshal("", c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	check := opts.Validate
	if check == nil {
		check = validate
	}
	if err := check(c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "Users Service",
		"app.version":     "1.0.0",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",
		"server.drain_delay":      "5s",

		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",
		"database.connect_attempts":   5,
		"database.auto_migrate":       false,

		"redis.pool_size":      10,
		"redis.min_idle_conns": 5,

		"jwt.algorithm":            AlgorithmHS256,
		"jwt.access_token_expire":  "15m",
		"jwt.refresh_token_expire": "168h",
		"jwt.issuer":               "users-service",
		"jwt.audience":             "users-service-api",
		"jwt.private_key_path":     "keys/private.pem",
		"jwt.public_key_path":      "keys/public.pem",

		"tokens.reset_token_expire":        "30m",
		"tokens.confirmation_token_expire": "24h",
		"tokens.confirmation_base_url":     "http://localhost:8080/api/auth/confirm-email",
		"tokens.reset_base_url":            "",

		"password.algorithm":   PasswordArgon2id,
		"password.bcrypt_cost": 12,

		"mail.driver":       MailDriverLog,
		"mail.from":         "no-reply@localhost",
		"mail.send_timeout": "10s",
		"mail.max_attempts": 5,

		"broker.email_queue":     "users.email",
		"broker.events_exchange": "users.events",
		"broker.prefetch":        16,
		"broker.dial_attempts":   5,

		"rate_limit.requests":      100,
		"rate_limit.window":        "1m",
		"rate_limit.burst":         20,
		"rate_limit.auth_requests": 10,
		"rate_limit.auth_burst":    5,
		"rate_limit.trust_proxy":   false,

		"cors.allowed_origins": []string{"http://localhost:3000"},
		"cors.allowed_methods": []string{
			"GET",
			"POST",
			"PUT",
			"PATCH",
			"DELETE",
			"OPTIONS",
		},
		"cors.allowed_headers": []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
		},
		"cors.allow_credentials": true,
		"cors.max_age":           300,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "users-service",

		"metrics.enabled": true,
		"metrics.path":    "/metrics",
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"DATABASE_URL":                "database.url",
	"DATABASE_AUTO_MIGRATE":       "database.auto_migrate",
	"REDIS_URL":                   "redis.url",
	"ENVIRONMENT":                 "app.environment",
	"HOST":                        "server.host",
	"PORT":                        "server.port",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
	"JWT_ALGORITHM":               "jwt.algorithm",
	"JWT_SECRET":                  "jwt.secret",
	"JWT_PRIVATE_KEY_PATH":        "jwt.private_key_path",
	"JWT_PUBLIC_KEY_PATH":         "jwt.public_key_path",
	"JWT_ACCESS_TOKEN_EXPIRE":     "jwt.access_token_expire",
	"JWT_REFRESH_TOKEN_EXPIRE":    "jwt.refresh_token_expire",
	"JWT_ISSUER":                  "jwt.issuer",
	"JWT_AUDIENCE":                "jwt.audience",
	"RESET_TOKEN_EXPIRE":          "tokens.reset_token_expire",
	"CONFIRMATION_TOKEN_EXPIRE":   "tokens.confirmation_token_expire",
	"CONFIRMATION_BASE_URL":       "tokens.confirmation_base_url",
	"RESET_BASE_URL":              "tokens.reset_base_url",
	"PASSWORD_ALGORITHM":          "password.algorithm",
	"PASSWORD_BCRYPT_COST":        "password.bcrypt_cost",
	"MAIL_DRIVER":                 "mail.driver",
	"MAIL_FROM":                   "mail.from",
	"MAILGUN_DOMAIN":              "mail.mailgun_domain",
	"MAILGUN_API_KEY":             "mail.mailgun_api_key",
	"MAILGUN_API_BASE":            "mail.mailgun_api_base",
	"RABBITMQ_URL":                "broker.url",
	"RABBITMQ_EMAIL_QUEUE":        "broker.email_queue",
	"RABBITMQ_EVENTS_EXCHANGE":    "broker.events_exchange",
	"RATE_LIMIT_REQUESTS":         "rate_limit.requests",
	"RATE_LIMIT_WINDOW":           "rate_limit.window",
	"RATE_LIMIT_BURST":            "rate_limit.burst",
	"RATE_LIMIT_AUTH_REQUESTS":    "rate_limit.auth_requests",
	"RATE_LIMIT_AUTH_BURST":       "rate_limit.auth_burst",
	"RATE_LIMIT_TRUST_PROXY":      "rate_limit.trust_proxy",
	"METRICS_ENABLED":             "metrics.enabled",
	"OTEL_ENDPOINT":               "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel.endpoint",
	"OTEL_SERVICE_NAME":           "otel.service_name",
	"OTEL_ENABLED":                "otel.enabled",
	"OTEL_INSECURE":               "otel.insecure",
	"OTEL_SAMPLE_RATE":            "otel.sample_rate",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

var flagKeyMap = map[string]string{
	"host":         "server.host",
	"port":         "server.port",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"database-url": "database.url",
	"auto-migrate": "database.auto_migrate",
	"mail-driver":  "mail.driver",
}

func flagKeyMapper(f *pflag.Flag) (string, any) {
	key, ok := flagKeyMap[f.Name]
	if !ok {
		return "", nil
	}
	return key, f.Value.String()
}

func validate(c *Config) error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	switch c.JWT.Algorithm {
	case AlgorithmHS256:
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 bytes for HS256")
		}
	case AlgorithmES256:
		if c.JWT.PrivateKeyPath == "" {
			return fmt.Errorf("JWT_PRIVATE_KEY_PATH is required for ES256")
		}
	default:
		return fmt.Errorf("unsupported jwt.algorithm %q", c.JWT.Algorithm)
	}

	if c.JWT.AccessTokenExpire <= 0 || c.JWT.RefreshTokenExpire <= 0 {
		return fmt.Errorf("jwt token lifetimes must be positive")
	}

	if c.Tokens.ResetTokenExpire <= 0 || c.Tokens.ConfirmationTokenExpire <= 0 {
		return fmt.Errorf("reset and confirmation token lifetimes must be positive")
	}

	if c.Tokens.ConfirmationBaseURL == "" {
		return fmt.Errorf("CONFIRMATION_BASE_URL is required")
	}

	switch c.Password.Algorithm {
	case PasswordArgon2id, PasswordBcrypt:
	default:
		return fmt.Errorf("unsupported password.algorithm %q", c.Password.Algorithm)
	}

	switch c.Mail.Driver {
	case MailDriverLog:
	case MailDriverMailgun:
		if err := validateMailgun(c.Mail); err != nil {
			return err
		}
	case MailDriverQueue:
		if !c.Broker.Enabled() {
			return fmt.Errorf("RABBITMQ_URL is required for the queue mail driver")
		}
	default:
		return fmt.Errorf("unsupported mail.driver %q", c.Mail.Driver)
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf(
					"CORS wildcard '*' cannot be used with AllowCredentials",
				)
			}
		}
	}

	if c.App.Environment == "production" {
		if c.Otel.Enabled && c.Otel.Insecure {
			return fmt.Errorf("OTEL_INSECURE must be false in production")
		}
		if c.Mail.Driver == MailDriverLog {
			return fmt.Errorf("mail.driver %q is not allowed in production", MailDriverLog)
		}
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	return nil
}

func validateMailgun(m MailConfig) error {
	var missing []string
	if m.MailgunDomain == "" {
		missing = append(missing, "MAILGUN_DOMAIN")
	}
	if m.MailgunAPIKey == "" {
		missing = append(missing, "MAILGUN_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s required for the mailgun driver", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateMigrations checks the settings the migrate command needs.
func ValidateMigrations(c *Config) error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// ValidateMailWorker checks the settings the queue consumer needs, which the
// API process itself does not.
func ValidateMailWorker(c *Config) error {
	if !c.Broker.Enabled() {
		return fmt.Errorf("RABBITMQ_URL is required")
	}
	return validateMailgun(c.Mail)
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func (s *ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
