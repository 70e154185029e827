package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const Production = "production"

// DefaultEnvFiles are loaded, when present, before the environment is parsed.
var DefaultEnvFiles = []string{".env", ".env.local"}

type LogOptions struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type DatabaseOptions struct {
	URL             string        `env:"DATABASE_URL"`
	Name            string        `env:"DB_NAME" envDefault:"formationflow"`
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            string        `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"postgres"`
	Password        string        `env:"DB_PASSWORD" envDefault:"postgres"`
	SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// ConnectionString returns DATABASE_URL when set, a keyword/value DSN
// otherwise.
func (d *DatabaseOptions) ConnectionString() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.Password, d.SSLMode,
	)
}

type StorageOptions struct {
	Backend     string `env:"ARTIFACT_BACKEND" envDefault:"local"`
	Bucket      string `env:"ARTIFACT_BUCKET"`
	Prefix      string `env:"ARTIFACT_PREFIX" envDefault:"documents"`
	Dir         string `env:"ARTIFACT_DIR" envDefault:"./data/documents"`
	S3Region    string `env:"S3_REGION" envDefault:"eu-central-1"`
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
}

type TemplateOptions struct {
	Backend    string `env:"TEMPLATE_BACKEND" envDefault:"bundled"`
	Collection string `env:"TEMPLATE_COLLECTION" envDefault:"templates"`
	Slug       string `env:"DOCUMENT_TEMPLATE_SLUG" envDefault:"doo-statut"`
}

type RasterizerOptions struct {
	Engine        string        `env:"RASTERIZER_ENGINE" envDefault:"rod"`
	ChromeBin     string        `env:"CHROME_BIN"`
	NoSandbox     bool          `env:"CHROME_NO_SANDBOX" envDefault:"true"`
	GotenbergURL  string        `env:"GOTENBERG_URL"`
	Timeout       time.Duration `env:"RASTERIZE_TIMEOUT" envDefault:"60s"`
	MaxConcurrent int64         `env:"RASTERIZE_MAX_CONCURRENT" envDefault:"2"`
	RetryCount    int           `env:"RASTERIZE_RETRY_COUNT" envDefault:"0"`
	Optimize      bool          `env:"RASTERIZE_OPTIMIZE" envDefault:"true"`
}

type LockOptions struct {
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	TTL           time.Duration `env:"LOCK_TTL" envDefault:"2m"`
}

type OutboxOptions struct {
	Dispatcher       string        `env:"OUTBOX_DISPATCHER" envDefault:"direct"`
	RelayEnabled     bool          `env:"OUTBOX_RELAY_ENABLED" envDefault:"false"`
	PollInterval     time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	BatchSize        int           `env:"OUTBOX_BATCH_SIZE" envDefault:"20"`
	Concurrency      int           `env:"OUTBOX_CONCURRENCY" envDefault:"2"`
	MaxAttempts      int           `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"8"`
	LockTTL          time.Duration `env:"OUTBOX_LOCK_TTL" envDefault:"5m"`
	DispatchTimeout  time.Duration `env:"OUTBOX_DISPATCH_TIMEOUT" envDefault:"3m"`
	SingleActive     bool          `env:"OUTBOX_SINGLE_ACTIVE" envDefault:"true"`
	WorkerURL        string        `env:"DOCUMENT_WORKER_URL"`
	EventSource      string        `env:"OUTBOX_EVENT_SOURCE" envDefault:"formationflow/api"`
	WorkflowID       string        `env:"WORKFLOW_ID" envDefault:"document-generation"`
	WorkflowLocation string        `env:"WORKFLOW_LOCATION" envDefault:"europe-west1"`
}

type PricingOptions struct {
	NetPrice   decimal.Decimal `env:"PRICE_NET" envDefault:"100"`
	VATPercent decimal.Decimal `env:"VAT_PERCENT" envDefault:"21"`
	Currency   string          `env:"CURRENCY" envDefault:"EUR"`
}

// Gross is the price charged per request: net price plus VAT.
func (p PricingOptions) Gross() decimal.Decimal {
	vat := p.NetPrice.Mul(p.VATPercent).Div(decimal.NewFromInt(100))
	return p.NetPrice.Add(vat).Round(2)
}

type BankOptions struct {
	AccountNumber   string `env:"BANK_ACCOUNT_NUMBER" envDefault:"510-0000000000000-00"`
	BankName        string `env:"BANK_NAME" envDefault:"Crnogorska komercijalna banka"`
	Swift           string `env:"BANK_SWIFT" envDefault:"CKBCMEPG"`
	ReferencePrefix string `env:"PAYMENT_REFERENCE_PREFIX" envDefault:"DOO"`
	Instructions    string `env:"PAYMENT_INSTRUCTIONS" envDefault:"Molimo da u opis plaćanja unesete referentni broj."`
}

// Reference is the payment reference the owner must quote.
func (b BankOptions) Reference(requestID int64) string {
	return fmt.Sprintf("%s-%d", b.ReferencePrefix, requestID)
}

type PreviewOptions struct {
	ObscureSensitive bool   `env:"PREVIEW_OBSCURE_SENSITIVE" envDefault:"true"`
	Watermark        string `env:"PREVIEW_WATERMARK" envDefault:"PREVIEW - NEOZVANIČEN"`
}

type HTTPOptions struct {
	Port         string `env:"PORT" envDefault:"8080"`
	BasePath     string `env:"API_BASE_PATH" envDefault:"/api"`
	GatewayToken string `env:"GATEWAY_TOKEN"`
}

type Config struct {
	Env        string `env:"APP_ENV" envDefault:"development"`
	ProjectID  string `env:"PROJECT_ID"`
	Service    string `env:"SERVICE_NAME" envDefault:"formationflow"`
	Log        LogOptions
	Database   DatabaseOptions
	Storage    StorageOptions
	Templates  TemplateOptions
	Rasterizer RasterizerOptions
	Lock       LockOptions
	Outbox     OutboxOptions
	Pricing    PricingOptions
	Bank       BankOptions
	Preview    PreviewOptions
	HTTP       HTTPOptions
}

// LoadEnv loads the env files that exist and reports how many were read.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads env files, parses the environment and validates the result.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = DefaultEnvFiles
	}
	if _, err := LoadEnv(envFiles); err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that depend on one another.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case "gcs", "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, fmt.Errorf("ARTIFACT_BUCKET must be set for the %s backend", c.Storage.Backend))
		}
	case "local":
	default:
		errs = append(errs, fmt.Errorf("unknown ARTIFACT_BACKEND %q", c.Storage.Backend))
	}

	switch c.Templates.Backend {
	case "firestore":
		if c.ProjectID == "" {
			errs = append(errs, errors.New("PROJECT_ID must be set for the firestore template backend"))
		}
	case "bundled":
	default:
		errs = append(errs, fmt.Errorf("unknown TEMPLATE_BACKEND %q", c.Templates.Backend))
	}

	switch c.Rasterizer.Engine {
	case "gotenberg":
		if c.Rasterizer.GotenbergURL == "" {
			errs = append(errs, errors.New("GOTENBERG_URL must be set for the gotenberg engine"))
		}
	case "rod":
	default:
		errs = append(errs, fmt.Errorf("unknown RASTERIZER_ENGINE %q", c.Rasterizer.Engine))
	}
	if c.Rasterizer.Timeout <= 0 {
		errs = append(errs, errors.New("RASTERIZE_TIMEOUT must be positive"))
	}
	if c.Rasterizer.MaxConcurrent < 1 {
		errs = append(errs, errors.New("RASTERIZE_MAX_CONCURRENT must be at least 1"))
	}

	switch c.Outbox.Dispatcher {
	case "cloudevents":
		if c.Outbox.WorkerURL == "" {
			errs = append(errs, errors.New("DOCUMENT_WORKER_URL must be set for the cloudevents dispatcher"))
		}
	case "workflows":
		if c.ProjectID == "" {
			errs = append(errs, errors.New("PROJECT_ID must be set for the workflows dispatcher"))
		}
	case "direct":
	default:
		errs = append(errs, fmt.Errorf("unknown OUTBOX_DISPATCHER %q", c.Outbox.Dispatcher))
	}

	if c.Pricing.NetPrice.IsNegative() || c.Pricing.VATPercent.IsNegative() {
		errs = append(errs, errors.New("PRICE_NET and VAT_PERCENT must not be negative"))
	}
	return errors.Join(errs...)
}
