// Package config defines the global configuration for the ShopPay gateway
// service. Configuration is loaded once at process start and immutable
// thereafter; values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format aborts startup (fail fast).
package config

import (
	"time"

	"shoppay/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used for sensitive configuration values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"shoppay-gateway"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server        ServerConfig
	Database      DatabaseConfig
	Stripe        StripeConfig
	Shop          ShopConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build metadata (injected via ldflags, not env).
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// ShopBaseURL is the public shop storefront URL used as the redirect
	// target for account form submissions (no trailing slash).
	ShopBaseURL string `envconfig:"SHOP_BASE_URL" validate:"required,url"`
}

// DatabaseConfig holds connection and pool tuning parameters for the shop
// platform database.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// StripeConfig holds Stripe API credentials and client tuning.
type StripeConfig struct {
	SecretKey      SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	PublishableKey string       `envconfig:"STRIPE_PUBLISHABLE_KEY" validate:"required"`
	// WebhookSecret is only required when the webhook endpoint is exposed.
	WebhookSecret SecretString  `envconfig:"STRIPE_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"STRIPE_TIMEOUT" default:"20s"`
}

// ShopConfig holds shop-platform integration settings.
type ShopConfig struct {
	// TemplateVersion is the major version of the active shop template.
	// The Stripe card payment method is only registered for version 3+.
	TemplateVersion int `envconfig:"SHOP_TEMPLATE_VERSION" default:"3"`
	// Currency is the shop's ISO currency code; amounts are formatted and
	// refunded in this currency.
	Currency string `envconfig:"SHOP_CURRENCY" default:"EUR"`
	// AdminKeyHash is the bcrypt hash of the backend admin key that guards
	// the refund action.
	AdminKeyHash  SecretString `envconfig:"ADMIN_KEY_HASH" validate:"required"`
	SessionCookie string       `envconfig:"SHOP_SESSION_COOKIE" default:"shop_session"`
}

// AWSConfig holds AWS regional configuration for SSM secret resolution and
// CloudWatch metrics.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"eu-central-1"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"ShopPay"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
