package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Fallback providers accepted by FALLBACK_PROVIDER.
const (
	FallbackRelay    = "relay"
	FallbackSendGrid = "sendgrid"
	FallbackSES      = "ses"
	FallbackSMTP     = "smtp"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	// Primary lead store (hosted Postgres REST gateway)
	LeadsStoreURL   string
	LeadsStoreKey   string
	LeadsStoreTable string

	// Fallback delivery
	FallbackProvider      string
	RelayEndpoint         string
	RelayDestinationEmail string
	RelaySubject          string

	IPEchoURL       string
	IPLookupTimeout time.Duration
	DeliveryTimeout time.Duration

	// Per-email submission limiter
	RateLimitBackend    string
	RateLimitWindow     time.Duration
	RateLimitMax        int
	RateLimitCapacity   int
	RateLimitEvictBatch int
	// Per-IP guard on the HTTP endpoint
	HTTPRateLimitPerMinute int

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	DatabaseURL           string
	JournalBackend        string
	JournalPath           string
	JournalReplayInterval time.Duration

	// SendGrid Email Configuration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// AWS SES Email Configuration
	SESFromEmail        string
	SESFromName         string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// SMTP Email Configuration
	SMTPAddr        string
	SMTPUsername    string
	SMTPPassword    string
	SMTPFromEmail   string
	SMTPFromName    string
	SMTPImplicitTLS bool

	ContactPhone        string
	ContactWhatsApp     string
	CORSAllowedOrigins  []string
	AdminJWTSecret      string
	OperatorAliasesFile string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		LeadsStoreURL:   getEnv("LEADS_STORE_URL", ""),
		LeadsStoreKey:   getEnv("LEADS_STORE_KEY", ""),
		LeadsStoreTable: getEnv("LEADS_STORE_TABLE", "leads"),

		FallbackProvider:      strings.ToLower(strings.TrimSpace(getEnv("FALLBACK_PROVIDER", FallbackRelay))),
		RelayEndpoint:         getEnv("RELAY_ENDPOINT", "https://formsubmit.co/ajax"),
		RelayDestinationEmail: getEnv("RELAY_DESTINATION_EMAIL", ""),
		RelaySubject:          getEnv("RELAY_SUBJECT", "Novo lead pelo site"),

		IPEchoURL:       getEnv("IP_ECHO_URL", "https://api.ipify.org?format=json"),
		IPLookupTimeout: getEnvAsDuration("IP_LOOKUP_TIMEOUT", 3*time.Second),
		DeliveryTimeout: getEnvAsDuration("DELIVERY_TIMEOUT", 12*time.Second),

		RateLimitBackend:       strings.ToLower(strings.TrimSpace(getEnv("RATE_LIMIT_BACKEND", "memory"))),
		RateLimitWindow:        getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitMax:           getEnvAsInt("RATE_LIMIT_MAX", 5),
		RateLimitCapacity:      getEnvAsInt("RATE_LIMIT_CAPACITY", 1000),
		RateLimitEvictBatch:    getEnvAsInt("RATE_LIMIT_EVICT_BATCH", 100),
		HTTPRateLimitPerMinute: getEnvAsInt("HTTP_RATE_LIMIT_PER_MINUTE", 30),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		DatabaseURL:           getEnv("DATABASE_URL", ""),
		JournalBackend:        strings.ToLower(strings.TrimSpace(getEnv("JOURNAL_BACKEND", "none"))),
		JournalPath:           getEnv("JOURNAL_PATH", "data/lead_journal.db"),
		JournalReplayInterval: getEnvAsDuration("JOURNAL_REPLAY_INTERVAL", 0),

		// SendGrid Email Configuration
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Corretora Site"),

		// AWS SES Email Configuration
		SESFromEmail:        getEnv("SES_FROM_EMAIL", ""),
		SESFromName:         getEnv("SES_FROM_NAME", "Corretora Site"),
		AWSRegion:           getEnv("AWS_REGION", "sa-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		// SMTP Email Configuration
		SMTPAddr:        getEnv("SMTP_ADDR", ""),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SMTPFromEmail:   getEnv("SMTP_FROM_EMAIL", ""),
		SMTPFromName:    getEnv("SMTP_FROM_NAME", "Corretora Site"),
		SMTPImplicitTLS: getEnvAsBool("SMTP_IMPLICIT_TLS", false),

		ContactPhone:        getEnv("CONTACT_PHONE", ""),
		ContactWhatsApp:     getEnv("CONTACT_WHATSAPP", ""),
		CORSAllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS"),
		AdminJWTSecret:      getEnv("ADMIN_JWT_SECRET", ""),
		OperatorAliasesFile: getEnv("OPERATOR_ALIASES_FILE", ""),
	}
}

// Validate fails fast on settings the pipeline cannot run without.
func (c *Config) Validate() error {
	var errs []error
	require := func(value, key string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}

	require(c.LeadsStoreURL, "LEADS_STORE_URL")
	require(c.LeadsStoreKey, "LEADS_STORE_KEY")
	require(c.RelayDestinationEmail, "RELAY_DESTINATION_EMAIL")

	switch c.FallbackProvider {
	case FallbackRelay:
		require(c.RelayEndpoint, "RELAY_ENDPOINT")
	case FallbackSendGrid:
		require(c.SendGridAPIKey, "SENDGRID_API_KEY")
		require(c.SendGridFromEmail, "SENDGRID_FROM_EMAIL")
	case FallbackSES:
		require(c.SESFromEmail, "SES_FROM_EMAIL")
		require(c.AWSRegion, "AWS_REGION")
	case FallbackSMTP:
		require(c.SMTPAddr, "SMTP_ADDR")
		require(c.SMTPFromEmail, "SMTP_FROM_EMAIL")
	default:
		errs = append(errs, fmt.Errorf("FALLBACK_PROVIDER %q is not one of relay, sendgrid, ses, smtp", c.FallbackProvider))
	}

	switch c.RateLimitBackend {
	case "memory":
	case "redis":
		require(c.RedisAddr, "REDIS_ADDR")
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND %q is not one of memory, redis", c.RateLimitBackend))
	}

	switch c.JournalBackend {
	case "none":
	case "postgres":
		require(c.DatabaseURL, "DATABASE_URL")
	case "bolt":
		require(c.JournalPath, "JOURNAL_PATH")
	default:
		errs = append(errs, fmt.Errorf("JOURNAL_BACKEND %q is not one of none, postgres, bolt", c.JournalBackend))
	}

	if c.DeliveryTimeout <= 0 {
		errs = append(errs, errors.New("DELIVERY_TIMEOUT must be positive"))
	}
	if c.RateLimitMax <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX must be positive"))
	}
	if c.RateLimitCapacity > 0 && c.RateLimitEvictBatch > c.RateLimitCapacity {
		errs = append(errs, errors.New("RATE_LIMIT_EVICT_BATCH must not exceed RATE_LIMIT_CAPACITY"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether ENV names a production deployment.
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

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
