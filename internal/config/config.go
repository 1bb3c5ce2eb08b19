package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Mailjet  MailjetConfig  `yaml:"mailjet"`
	SES      SESConfig      `yaml:"ses"`
	Mailing  MailingConfig  `yaml:"mailing"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Tracking TrackingConfig `yaml:"tracking"`
	Worker   WorkerConfig   `yaml:"worker"`
	Session  SessionConfig  `yaml:"session"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for the HTTP listener.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// MailjetConfig holds Mailjet Send API credentials.
type MailjetConfig struct {
	PublicKey      string `yaml:"public_key"`
	PrivateKey     string `yaml:"private_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"` // 0 disables retries
}

// Timeout returns the configured timeout as a duration
func (c MailjetConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	ConfigurationSet string `yaml:"configuration_set"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DispatchTimeout returns the per-message timeout of the configured
// provider.
func (c *Config) DispatchTimeout() time.Duration {
	if c.Mailing.Provider == "ses" {
		return c.SES.Timeout()
	}
	return c.Mailjet.Timeout()
}

// MailingConfig holds campaign sending settings.
type MailingConfig struct {
	Provider           string `yaml:"provider"` // "mailjet" or "ses"
	FromEmail          string `yaml:"from_email"`
	FromName           string `yaml:"from_name"`
	TemplatesDir       string `yaml:"templates_dir"`
	CustomTemplatesDir string `yaml:"custom_templates_dir"`
	AdminRedirectURL   string `yaml:"admin_redirect_url"`
	Concurrency        int    `yaml:"concurrency"`
}

// DatabaseConfig holds the Postgres connection string. An empty URL selects
// the in-memory ledger.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the Redis connection used for the job queue, sessions and
// locks. An empty URL selects in-process fallbacks.
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// StorageConfig selects where uploaded campaign images are kept.
type StorageConfig struct {
	Type      string `yaml:"type"` // "local" or "s3"
	LocalPath string `yaml:"local_path"`
	S3Bucket  string `yaml:"s3_bucket"`
	S3Prefix  string `yaml:"s3_prefix"`
	AWSRegion string `yaml:"aws_region"`
}

// TrackingConfig holds open-tracking settings.
type TrackingConfig struct {
	BaseURL     string `yaml:"base_url"`
	SQSQueueURL string `yaml:"sqs_queue_url"`
	SQSRegion   string `yaml:"sqs_region"`
	Port        int    `yaml:"port"`
}

// WorkerConfig holds background dispatch settings.
type WorkerConfig struct {
	NumWorkers              int `yaml:"num_workers"`
	LockTTLSeconds          int `yaml:"lock_ttl_seconds"`
	PollTimeoutSeconds      int `yaml:"poll_timeout_seconds"`
	StaleAfterSeconds       int `yaml:"stale_after_seconds"`
	RecoveryIntervalSeconds int `yaml:"recovery_interval_seconds"`
}

// StaleAfter returns how long an in-flight job may miss heartbeats before
// another worker reclaims it.
func (c WorkerConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSeconds) * time.Second
}

// HeartbeatInterval keeps three heartbeats inside one stale window.
func (c WorkerConfig) HeartbeatInterval() time.Duration {
	return c.StaleAfter() / 3
}

// RecoveryInterval returns how often stale jobs are reclaimed.
func (c WorkerConfig) RecoveryInterval() time.Duration {
	return time.Duration(c.RecoveryIntervalSeconds) * time.Second
}

// LockTTL returns the per-job lock TTL.
func (c WorkerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// PollTimeout returns how long a worker blocks waiting for a job.
func (c WorkerConfig) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSeconds) * time.Second
}

// SessionConfig holds the selection cookie settings.
type SessionConfig struct {
	CookieName string `yaml:"cookie_name"`
	TTLMinutes int    `yaml:"ttl_minutes"`
	Secure     bool   `yaml:"secure"`
}

// TTL returns how long a selection survives without being touched.
func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Mailjet.BaseURL == "" {
		cfg.Mailjet.BaseURL = "https://api.mailjet.com/v3.1"
	}
	if cfg.Mailjet.TimeoutSeconds == 0 {
		cfg.Mailjet.TimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.Mailing.Provider == "" {
		cfg.Mailing.Provider = "mailjet"
	}
	if cfg.Mailing.FromName == "" {
		cfg.Mailing.FromName = "Plataforma"
	}
	if cfg.Mailing.TemplatesDir == "" {
		cfg.Mailing.TemplatesDir = "templates/emails"
	}
	if cfg.Mailing.CustomTemplatesDir == "" {
		cfg.Mailing.CustomTemplatesDir = "templates/emails/custom"
	}
	if cfg.Mailing.AdminRedirectURL == "" {
		cfg.Mailing.AdminRedirectURL = "/admin/mail/recipient/"
	}
	if cfg.Mailing.Concurrency <= 0 {
		cfg.Mailing.Concurrency = 1
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "mailtrack"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "static/images"
	}
	if cfg.Storage.S3Prefix == "" {
		cfg.Storage.S3Prefix = "images/"
	}
	if cfg.Tracking.BaseURL == "" {
		cfg.Tracking.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	if cfg.Tracking.Port == 0 {
		cfg.Tracking.Port = 8081
	}
	if cfg.Worker.NumWorkers == 0 {
		cfg.Worker.NumWorkers = 2
	}
	if cfg.Worker.LockTTLSeconds == 0 {
		cfg.Worker.LockTTLSeconds = 600
	}
	if cfg.Worker.PollTimeoutSeconds == 0 {
		cfg.Worker.PollTimeoutSeconds = 5
	}
	if cfg.Worker.StaleAfterSeconds == 0 {
		cfg.Worker.StaleAfterSeconds = 300
	}
	if cfg.Worker.RecoveryIntervalSeconds == 0 {
		cfg.Worker.RecoveryIntervalSeconds = 120
	}
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = "mailtrack_session"
	}
	if cfg.Session.TTLMinutes == 0 {
		cfg.Session.TTLMinutes = 120
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration from file and overrides with environment variables
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MAIL_PUBLIC"); v != "" {
		cfg.Mailjet.PublicKey = v
	}
	if v := os.Getenv("MAIL_PRIVATE"); v != "" {
		cfg.Mailjet.PrivateKey = v
	}
	if v := os.Getenv("MAILJET_BASE_URL"); v != "" {
		cfg.Mailjet.BaseURL = v
	}
	if v := os.Getenv("EMAIL_HOST_USER"); v != "" {
		cfg.Mailing.FromEmail = v
	}
	if v := os.Getenv("MAIL_PROVIDER"); v != "" {
		cfg.Mailing.Provider = strings.ToLower(v)
	}
	// NGROK_URL is the historical name for the public tracking host.
	if v := os.Getenv("NGROK_URL"); v != "" {
		cfg.Tracking.BaseURL = v
	}
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.Tracking.BaseURL = v
	}
	if v := os.Getenv("SQS_TRACKING_QUEUE_URL"); v != "" {
		cfg.Tracking.SQSQueueURL = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("ATTACHMENT_S3_BUCKET"); v != "" {
		cfg.Storage.Type = "s3"
		cfg.Storage.S3Bucket = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	cfg.Tracking.BaseURL = strings.TrimRight(cfg.Tracking.BaseURL, "/")
	return cfg, nil
}

// Validate reports configuration that would make every send fail.
func (cfg *Config) Validate() error {
	if cfg.Mailing.FromEmail == "" {
		return fmt.Errorf("config: mailing.from_email (EMAIL_HOST_USER) is required")
	}
	switch cfg.Mailing.Provider {
	case "mailjet":
		if cfg.Mailjet.PublicKey == "" || cfg.Mailjet.PrivateKey == "" {
			return fmt.Errorf("config: mailjet keys (MAIL_PUBLIC, MAIL_PRIVATE) are required")
		}
	case "ses":
	default:
		return fmt.Errorf("config: unknown mailing.provider %q", cfg.Mailing.Provider)
	}
	if cfg.Storage.Type == "s3" && cfg.Storage.S3Bucket == "" {
		return fmt.Errorf("config: storage.s3_bucket is required for s3 storage")
	}
	return nil
}
