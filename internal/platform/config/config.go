package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full service configuration, parsed from the environment so
// main stays lean.
type Config struct {
	Server   Server          `envPrefix:"DILIGENCE_"`
	Log      LogConfig       `envPrefix:"LOG_"`
	Redis    RedisConfig     `envPrefix:"REDIS_"`
	Database DatabaseConfig  `envPrefix:"DATABASE_"`
	Kafka    KafkaConfig     `envPrefix:"KAFKA_"`
	Oracle   OracleConfig    `envPrefix:"ORACLE_"`
	Sources  SourcesConfig   `envPrefix:"SOURCES_"`
	Pipeline PipelineConfig  `envPrefix:"PIPELINE_"`
	Limits   RateLimitConfig `envPrefix:"RATE_LIMIT_"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// RedisConfig configures the evidence cache. An empty URL disables Redis and
// the in-memory cache is used instead.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"2s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"1s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"1s"`
}

// DatabaseConfig configures report persistence. An empty URL keeps reports in memory.
type DatabaseConfig struct {
	URL             string        `env:"URL"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	MigrateOnStart  bool          `env:"MIGRATE_ON_START" envDefault:"true"`
}

// KafkaConfig configures audit event publishing. No brokers disables Kafka.
type KafkaConfig struct {
	Brokers    []string `env:"BROKERS" envSeparator:","`
	AuditTopic string   `env:"AUDIT_TOPIC" envDefault:"diligence.audit"`
	Partitions int32    `env:"AUDIT_PARTITIONS" envDefault:"3"`
	ClientID   string   `env:"CLIENT_ID" envDefault:"diligence"`
}

// OracleConfig configures the risk-assessment model.
type OracleConfig struct {
	APIKey           string        `env:"API_KEY"`
	BaseURL          string        `env:"BASE_URL"`
	Model            string        `env:"MODEL" envDefault:"gpt-4o-mini"`
	Temperature      float32       `env:"TEMPERATURE" envDefault:"0.2"`
	MaxTokens        int           `env:"MAX_TOKENS" envDefault:"2000"`
	Timeout          time.Duration `env:"TIMEOUT" envDefault:"60s"`
	Retries          int           `env:"RETRIES" envDefault:"1"`
	FailureThreshold int           `env:"BREAKER_FAILURES" envDefault:"5"`
	BreakerCooldown  time.Duration `env:"BREAKER_COOLDOWN" envDefault:"30s"`
}

// SourcesConfig configures the evidence source adapters. A source whose
// credentials are missing is not registered.
type SourcesConfig struct {
	CompaniesHouseURL    string        `env:"COMPANIES_HOUSE_URL" envDefault:"https://api.company-information.service.gov.uk"`
	CompaniesHouseKey    string        `env:"COMPANIES_HOUSE_KEY"`
	OpenCorporatesURL    string        `env:"OPENCORPORATES_URL" envDefault:"https://api.opencorporates.com"`
	OpenCorporatesToken  string        `env:"OPENCORPORATES_TOKEN"`
	AviationRegistryURL  string        `env:"AVIATION_REGISTRY_URL"`
	AviationRegistryKey  string        `env:"AVIATION_REGISTRY_KEY"`
	OpenSanctionsURL     string        `env:"OPENSANCTIONS_URL" envDefault:"https://api.opensanctions.org"`
	OpenSanctionsKey     string        `env:"OPENSANCTIONS_KEY"`
	WebSearchURL         string        `env:"WEB_SEARCH_URL" envDefault:"https://google.serper.dev"`
	WebSearchKey         string        `env:"WEB_SEARCH_KEY"`
	RequestsPerSecond    float64       `env:"REQUESTS_PER_SECOND" envDefault:"5"`
	HTTPTimeout          time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`
	CacheTTL             time.Duration `env:"CACHE_TTL" envDefault:"6h"`
	SanctionsMatchCutoff float64       `env:"SANCTIONS_MATCH_CUTOFF" envDefault:"0.7"`
}

// PipelineConfig bounds the investigation pipeline.
type PipelineConfig struct {
	Concurrency        int           `env:"CONCURRENCY" envDefault:"8"`
	TaskTimeout        time.Duration `env:"TASK_TIMEOUT" envDefault:"20s"`
	TaskRetries        int           `env:"TASK_RETRIES" envDefault:"1"`
	ContextBudget      int           `env:"CONTEXT_BUDGET" envDefault:"24000"`
	DocumentBudget     int           `env:"DOCUMENT_BUDGET" envDefault:"8000"`
	PreclassifySector  bool          `env:"PRECLASSIFY_SECTOR" envDefault:"false"`
	ClassifierTimeout  time.Duration `env:"CLASSIFIER_TIMEOUT" envDefault:"15s"`
	InvestigationLimit time.Duration `env:"INVESTIGATION_TIMEOUT" envDefault:"3m"`
}

// RateLimitConfig throttles investigation requests per client IP. A zero
// limit disables throttling.
type RateLimitConfig struct {
	Investigations int           `env:"INVESTIGATIONS" envDefault:"30"`
	Window         time.Duration `env:"WINDOW" envDefault:"1m"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot honour.
func (c Config) Validate() error {
	var errs []error
	if c.Pipeline.Concurrency < 1 {
		errs = append(errs, errors.New("PIPELINE_CONCURRENCY must be at least 1"))
	}
	if c.Pipeline.TaskTimeout <= 0 {
		errs = append(errs, errors.New("PIPELINE_TASK_TIMEOUT must be positive"))
	}
	if c.Oracle.Timeout <= 0 {
		errs = append(errs, errors.New("ORACLE_TIMEOUT must be positive"))
	}
	if c.Pipeline.ContextBudget < 1000 {
		errs = append(errs, errors.New("PIPELINE_CONTEXT_BUDGET must be at least 1000 characters"))
	}
	if c.Pipeline.DocumentBudget < 0 || c.Pipeline.DocumentBudget > c.Pipeline.ContextBudget {
		errs = append(errs, errors.New("PIPELINE_DOCUMENT_BUDGET must be between 0 and PIPELINE_CONTEXT_BUDGET"))
	}
	if c.Sources.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("SOURCES_REQUESTS_PER_SECOND must be positive"))
	}
	if c.Limits.Investigations < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_INVESTIGATIONS must not be negative"))
	}
	if c.Limits.Investigations > 0 && c.Limits.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive"))
	}
	return errors.Join(errs...)
}
