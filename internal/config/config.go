package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Environment names accepted by gateway configs.
const (
	EnvSandbox    = "sandbox"
	EnvProduction = "production"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	DBAutoMigrate      bool
	RedisURL           string
	CORSAllowedOrigins []string

	// PublicBaseURL is where this API is reachable by payment providers (callback target).
	PublicBaseURL string
	// SiteBaseURL is the public website the browser lands on after a payment.
	SiteBaseURL string

	Payments      PaymentsConfig
	SMTP          SMTPConfig
	Storage       StorageConfig
	Kafka         KafkaConfig
	Organization  OrganizationConfig
	Observability ObservabilityConfig

	DocumentCompress   bool
	PaymentRateLimit   string
	IdempotencyTTL     time.Duration
	SettlementLockTTL  time.Duration
	NotifyEmailEnabled bool
}

// PaymentsConfig groups per-gateway credentials and outbound HTTP policy.
type PaymentsConfig struct {
	Env        string
	ESewa      ESewaConfig
	Khalti     KhaltiConfig
	PayPal     PayPalConfig
	Stripe     StripeConfig
	IMEPay     IMEPayConfig
	ConnectIPS ConnectIPSConfig

	HTTPTimeout     time.Duration
	RetryAttempts   int
	RetryBaseDelay  time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

type ESewaConfig struct {
	Env         string
	ProductCode string
	SecretKey   string
	FormURL     string
	StatusURL   string
}

type KhaltiConfig struct {
	Env       string
	SecretKey string
	BaseURL   string
}

type PayPalConfig struct {
	Env          string
	ClientID     string
	ClientSecret string
	BaseURL      string
	BrandName    string
}

type StripeConfig struct {
	Env       string
	SecretKey string
	BaseURL   string
}

type IMEPayConfig struct {
	Env          string
	MerchantCode string
	Module       string
	Username     string
	Password     string
	BaseURL      string
	CheckoutURL  string
}

type ConnectIPSConfig struct {
	Env         string
	MerchantID  string
	AppID       string
	AppName     string
	Password    string
	GatewayURL  string
	ValidateURL string
}

// SMTPConfig configures the outbound mail relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether an SMTP relay is configured.
func (c SMTPConfig) Enabled() bool { return strings.TrimSpace(c.Host) != "" }

// StorageConfig configures the object store for generated documents.
type StorageConfig struct {
	Driver          string
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
	ForcePathStyle  bool
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// OrganizationConfig carries the identity printed on certificates and receipts.
type OrganizationConfig struct {
	Name            string
	Transliteration string
	Address         string
	Phone           string
	Email           string
	Website         string
	VerifyURL       string
}

// ObservabilityConfig mirrors the OBS_* environment.
type ObservabilityConfig struct {
	ServiceName     string
	LogFormat       string
	LogLevel        string
	MetricsEnabled  bool
	MetricsNS       string
	MetricsBuckets  string
	TracingEnabled  bool
	TracingExporter string
	TracingEndpoint string
	TracingSample   float64
}

// Load reads configuration from environment variables and optional .env files.
// Gateway credentials are not validated here; a gateway without credentials fails
// when it is first used.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	paymentEnv := normalizeEnv(k.String("PAYMENT_ENV"), EnvSandbox)
	gatewayEnv := func(key string) string { return normalizeEnv(k.String(key), paymentEnv) }

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		DBAutoMigrate:      parseBool(k.String("DB_AUTO_MIGRATE")),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		PublicBaseURL:      strings.TrimRight(valueOrDefault(k.String("PUBLIC_BASE_URL"), "http://localhost:8080"), "/"),
		SiteBaseURL:        strings.TrimRight(valueOrDefault(k.String("SITE_BASE_URL"), "http://localhost:3000"), "/"),
		Payments: PaymentsConfig{
			Env: paymentEnv,
			ESewa: ESewaConfig{
				Env:         gatewayEnv("ESEWA_ENV"),
				ProductCode: valueOrDefault(k.String("ESEWA_PRODUCT_CODE"), "EPAYTEST"),
				SecretKey:   k.String("ESEWA_SECRET_KEY"),
				FormURL:     k.String("ESEWA_FORM_URL"),
				StatusURL:   k.String("ESEWA_STATUS_URL"),
			},
			Khalti: KhaltiConfig{
				Env:       gatewayEnv("KHALTI_ENV"),
				SecretKey: k.String("KHALTI_SECRET_KEY"),
				BaseURL:   k.String("KHALTI_BASE_URL"),
			},
			PayPal: PayPalConfig{
				Env:          gatewayEnv("PAYPAL_ENV"),
				ClientID:     k.String("PAYPAL_CLIENT_ID"),
				ClientSecret: k.String("PAYPAL_CLIENT_SECRET"),
				BaseURL:      k.String("PAYPAL_BASE_URL"),
				BrandName:    k.String("PAYPAL_BRAND_NAME"),
			},
			Stripe: StripeConfig{
				Env:       gatewayEnv("STRIPE_ENV"),
				SecretKey: k.String("STRIPE_SECRET_KEY"),
				BaseURL:   k.String("STRIPE_BASE_URL"),
			},
			IMEPay: IMEPayConfig{
				Env:          gatewayEnv("IMEPAY_ENV"),
				MerchantCode: k.String("IMEPAY_MERCHANT_CODE"),
				Module:       k.String("IMEPAY_MODULE"),
				Username:     k.String("IMEPAY_USERNAME"),
				Password:     k.String("IMEPAY_PASSWORD"),
				BaseURL:      k.String("IMEPAY_BASE_URL"),
				CheckoutURL:  k.String("IMEPAY_CHECKOUT_URL"),
			},
			ConnectIPS: ConnectIPSConfig{
				Env:         gatewayEnv("CONNECTIPS_ENV"),
				MerchantID:  k.String("CONNECTIPS_MERCHANT_ID"),
				AppID:       k.String("CONNECTIPS_APP_ID"),
				AppName:     k.String("CONNECTIPS_APP_NAME"),
				Password:    k.String("CONNECTIPS_PASSWORD"),
				GatewayURL:  k.String("CONNECTIPS_GATEWAY_URL"),
				ValidateURL: k.String("CONNECTIPS_VALIDATE_URL"),
			},
			HTTPTimeout:     parseDuration(k.String("PAYMENT_HTTP_TIMEOUT"), "15s"),
			RetryAttempts:   parseInt(k.String("PAYMENT_RETRY_ATTEMPTS"), 3),
			RetryBaseDelay:  parseDuration(k.String("PAYMENT_RETRY_BASE_DELAY"), "200ms"),
			BreakerFailures: parseInt(k.String("PAYMENT_BREAKER_FAILURES"), 5),
			BreakerCooldown: parseDuration(k.String("PAYMENT_BREAKER_COOLDOWN"), "30s"),
		},
		SMTP: SMTPConfig{
			Host:     k.String("SMTP_HOST"),
			Port:     parseInt(k.String("SMTP_PORT"), 587),
			Username: k.String("SMTP_USER"),
			Password: k.String("SMTP_PASS"),
			From:     valueOrDefault(k.String("EMAIL_FROM"), "no-reply@localhost"),
		},
		Storage: StorageConfig{
			Driver:          strings.ToLower(valueOrDefault(k.String("STORAGE_DRIVER"), "memory")),
			Bucket:          k.String("STORAGE_BUCKET"),
			Region:          valueOrDefault(k.String("STORAGE_REGION"), "us-east-1"),
			Endpoint:        k.String("STORAGE_ENDPOINT"),
			AccessKeyID:     k.String("STORAGE_ACCESS_KEY_ID"),
			SecretAccessKey: k.String("STORAGE_SECRET_ACCESS_KEY"),
			PublicBaseURL:   strings.TrimRight(k.String("STORAGE_PUBLIC_BASE_URL"), "/"),
			ForcePathStyle:  parseBool(k.String("STORAGE_FORCE_PATH_STYLE")),
		},
		Kafka: KafkaConfig{
			Brokers: splitAndTrim(k.String("KAFKA_BROKERS")),
			Topic:   valueOrDefault(k.String("KAFKA_TOPIC"), "nonprofit.events"),
		},
		Organization: OrganizationConfig{
			Name:            valueOrDefault(k.String("ORG_NAME"), "Nonprofit Organization"),
			Transliteration: k.String("ORG_NAME_TRANSLITERATION"),
			Address:         k.String("ORG_ADDRESS"),
			Phone:           k.String("ORG_PHONE"),
			Email:           k.String("ORG_EMAIL"),
			Website:         k.String("ORG_WEBSITE"),
			VerifyURL:       k.String("CERTIFICATE_VERIFY_URL"),
		},
		Observability: ObservabilityConfig{
			ServiceName:     valueOrDefault(k.String("OBS_SERVICE_NAME"), "nonprofit-api"),
			LogFormat:       valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:        valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:  parseBoolDefault(k.String("OBS_METRICS_ENABLED"), true),
			MetricsNS:       valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "nonprofit"),
			MetricsBuckets:  k.String("OBS_METRICS_BUCKETS_MS"),
			TracingEnabled:  parseBool(k.String("OBS_TRACING_ENABLED")),
			TracingExporter: valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			TracingEndpoint: k.String("OBS_TRACING_ENDPOINT"),
			TracingSample:   parseFloat(k.String("OBS_TRACING_SAMPLER_RATIO"), 1),
		},
		DocumentCompress:   parseBoolDefault(k.String("DOCUMENT_COMPRESS"), true),
		PaymentRateLimit:   valueOrDefault(k.String("PAYMENT_RATE_LIMIT"), "30-M"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		SettlementLockTTL:  parseDuration(k.String("SETTLEMENT_LOCK_TTL"), "30s"),
		NotifyEmailEnabled: parseBoolDefault(k.String("NOTIFY_EMAIL_ENABLED"), true),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.Storage.Driver == "s3" && cfg.Storage.Bucket == "" {
		return nil, errors.New("STORAGE_BUCKET is required when STORAGE_DRIVER=s3")
	}
	switch cfg.Storage.Driver {
	case "s3", "memory":
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.Storage.Driver)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
}

func normalizeEnv(value, fallback string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "production", "prod", "live":
		return EnvProduction
	case "sandbox", "test", "uat", "staging":
		return EnvSandbox
	default:
		return fallback
	}
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
