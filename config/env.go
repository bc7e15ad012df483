package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"experience-backend/gateways"
)

// Config is read once at startup. The four secrets have no defaults: the
// process refuses to start without them.
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	GinMode  string `env:"GIN_MODE" envDefault:"debug"`
	DBDriver string `env:"DB_DRIVER" envDefault:"mysql"`
	SeedDemo bool   `env:"SEED_DEMO" envDefault:"false"`

	ActionTokenSecret    string `env:"ACTION_TOKEN_SECRET,required,notEmpty"`
	CronSecret           string `env:"CRON_SECRET,required,notEmpty"`
	PaymentWebhookSecret string `env:"PAYMENT_WEBHOOK_SECRET,required,notEmpty"`
	SupplierJWTSecret    string `env:"SUPPLIER_JWT_SECRET,required,notEmpty"`

	FrontendURL   string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	CorsOrigins   string `env:"CORS_ORIGINS"`
	PaymentAPIURL string `env:"PAYMENT_API_URL"`
	PaymentAPIKey string `env:"PAYMENT_API_KEY"`

	RedisAddr     string   `env:"REDIS_ADDR"`
	RedisPassword string   `env:"REDIS_PASSWORD"`
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic    string   `env:"KAFKA_TOPIC" envDefault:"experience-events"`
	LokiURL       string   `env:"LOKI_URL"`
	OTLPEndpoint  string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     string `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFromName string `env:"SMTP_FROM_NAME" envDefault:"Experiences"`

	ResponseWindow    time.Duration `env:"RESPONSE_WINDOW" envDefault:"48h"`
	PaymentWindow     time.Duration `env:"PAYMENT_WINDOW" envDefault:"24h"`
	AutoCompleteAfter time.Duration `env:"AUTO_COMPLETE_AFTER" envDefault:"168h"`
	ActionTokenTTL    time.Duration `env:"ACTION_TOKEN_TTL" envDefault:"168h"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DBDriver != "mysql" && cfg.DBDriver != "postgres" {
		return Config{}, fmt.Errorf("DB_DRIVER must be mysql or postgres, got %q", cfg.DBDriver)
	}
	return cfg, nil
}

func (c Config) SMTP() gateways.SMTPConfig {
	return gateways.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUser,
		Password: c.SMTPPass,
		FromName: c.SMTPFromName,
	}
}

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
