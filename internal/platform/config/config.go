// Package config loads service configuration from defaults, an optional YAML
// file and DOCGATE_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	strs "docgate/pkg/platform/strings"
)

// EnvPrefix is the prefix for environment overrides. Nested keys use a double
// underscore: DOCGATE_SERVER__ADDR sets server.addr.
const EnvPrefix = "DOCGATE_"

// Config is the top-level service configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Auth        AuthConfig        `koanf:"auth"`
	Log         LogConfig         `koanf:"log"`
	Database    DatabaseConfig    `koanf:"database"`
	Redis       RedisConfig       `koanf:"redis"`
	Kafka       KafkaConfig       `koanf:"kafka"`
	ObjectStore ObjectStoreConfig `koanf:"object_store"`
	Analysis    AnalysisConfig    `koanf:"analysis"`
	Policy      PolicyConfig      `koanf:"policy"`
	Document    DocumentConfig    `koanf:"document"`
	Biometric   BiometricConfig   `koanf:"biometric"`
	Batch       BatchConfig       `koanf:"batch"`
	Cache       CacheConfig       `koanf:"cache"`
	Issuance    IssuanceConfig    `koanf:"issuance"`
	RateLimit   RateLimitConfig   `koanf:"rate_limit"`
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	HealthTimeout     time.Duration `koanf:"health_timeout"`
	AllowedOrigins    []string      `koanf:"allowed_origins"`
	// AdminToken, when set, additionally gates /admin routes behind X-Admin-Token.
	AdminToken string `koanf:"admin_token"`
}

type AuthConfig struct {
	JWTSigningKey string `koanf:"jwt_signing_key"`
	JWTIssuer     string `koanf:"jwt_issuer"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

// DatabaseConfig selects PostgreSQL when URL is set; otherwise stores are in memory.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// RedisConfig selects Redis for the forensic cache and idempotency keys when URL is set.
type RedisConfig struct {
	URL          string        `koanf:"url"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// KafkaConfig enables the audit outbox relay when Brokers is non-empty.
type KafkaConfig struct {
	Brokers        []string      `koanf:"brokers"`
	AuditTopic     string        `koanf:"audit_topic"`
	Partitions     int32         `koanf:"partitions"`
	RelayInterval  time.Duration `koanf:"relay_interval"`
	RelayBatchSize int           `koanf:"relay_batch_size"`
}

// ObjectStoreConfig selects MinIO/S3 for uploaded bytes when Endpoint is set.
type ObjectStoreConfig struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	UseSSL    bool   `koanf:"use_ssl"`
}

type AnalysisConfig struct {
	APIKey    string        `koanf:"api_key"`
	BaseURL   string        `koanf:"base_url"`
	Model     string        `koanf:"model"`
	MaxTokens int           `koanf:"max_tokens"`
	Timeout   time.Duration `koanf:"timeout"`
}

type PolicyConfig struct {
	ApproveThreshold int  `koanf:"approve_threshold"`
	ReviewThreshold  int  `koanf:"review_threshold"`
	TamperOverride   bool `koanf:"tamper_override"`
}

type DocumentConfig struct {
	MaxUploadBytes      int64         `koanf:"max_upload_bytes"`
	AllowedMimeTypes    []string      `koanf:"allowed_mime_types"`
	ExpirySweepInterval time.Duration `koanf:"expiry_sweep_interval"`
	TxTimeout           time.Duration `koanf:"tx_timeout"`
}

type BiometricConfig struct {
	// HashKey keys the BLAKE2b biometric hash so hashes cannot be precomputed offline.
	HashKey string `koanf:"hash_key"`
	// SupportContact is returned with duplicate-identity errors.
	SupportContact string `koanf:"support_contact"`
}

type BatchConfig struct {
	MaxItems       int           `koanf:"max_items"`
	Workers        int           `koanf:"workers"`
	IdempotencyTTL time.Duration `koanf:"idempotency_ttl"`
}

type CacheConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

type IssuanceConfig struct {
	RelayURL          string        `koanf:"relay_url"`
	RelayAPIKey       string        `koanf:"relay_api_key"`
	Timeout           time.Duration `koanf:"timeout"`
	ReconcileInterval time.Duration `koanf:"reconcile_interval"`
	MaxAttempts       int           `koanf:"max_attempts"`
	BaseBackoff       time.Duration `koanf:"base_backoff"`
}

// RateLimitConfig throttles uploads and batches per caller. A zero limit
// disables that class.
type RateLimitConfig struct {
	Disabled bool          `koanf:"disabled"`
	Uploads  int           `koanf:"uploads"`
	Batches  int           `koanf:"batches"`
	Window   time.Duration `koanf:"window"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			HealthTimeout:     2 * time.Second,
		},
		Auth: AuthConfig{
			JWTSigningKey: "dev-secret-key-change-in-production",
			JWTIssuer:     "docgate",
		},
		Log: LogConfig{Level: "info"},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			AuditTopic:     "docgate.audit",
			Partitions:     3,
			RelayInterval:  2 * time.Second,
			RelayBatchSize: 100,
		},
		ObjectStore: ObjectStoreConfig{
			Bucket: "docgate-documents",
		},
		Analysis: AnalysisConfig{
			Model:     "gpt-4o",
			MaxTokens: 4096,
			Timeout:   3 * time.Minute,
		},
		Policy: PolicyConfig{
			ApproveThreshold: 85,
			ReviewThreshold:  70,
			TamperOverride:   true,
		},
		Document: DocumentConfig{
			MaxUploadBytes:      10 << 20,
			AllowedMimeTypes:    []string{"image/jpeg", "image/png", "application/pdf"},
			ExpirySweepInterval: time.Hour,
			TxTimeout:           5 * time.Second,
		},
		Biometric: BiometricConfig{
			HashKey:        "dev-biometric-key-change-in-production",
			SupportContact: "support@docgate.example",
		},
		Batch: BatchConfig{
			MaxItems:       100,
			Workers:        8,
			IdempotencyTTL: 24 * time.Hour,
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Issuance: IssuanceConfig{
			Timeout:           15 * time.Second,
			ReconcileInterval: time.Minute,
			MaxAttempts:       8,
			BaseBackoff:       30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Uploads: 20,
			Batches: 10,
			Window:  time.Minute,
		},
	}
}

// Load reads configuration from the given YAML file (skipped when path is empty
// or the file does not exist), then overlays DOCGATE_* environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps DOCGATE_BATCH__MAX_ITEMS to batch.max_items.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// normalize cleans list values. Env overrides arrive comma-split with the
// surrounding spaces intact.
func (c *Config) normalize() {
	c.Server.AllowedOrigins = strs.DedupeAndTrim(c.Server.AllowedOrigins)
	c.Kafka.Brokers = strs.DedupeAndTrim(c.Kafka.Brokers)
	c.Document.AllowedMimeTypes = strs.DedupeAndTrimLower(c.Document.AllowedMimeTypes)
}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Auth.JWTSigningKey == "" {
		return fmt.Errorf("auth.jwt_signing_key is required")
	}
	if c.Policy.ReviewThreshold < 0 || c.Policy.ApproveThreshold > 100 ||
		c.Policy.ReviewThreshold > c.Policy.ApproveThreshold {
		return fmt.Errorf("policy thresholds must satisfy 0 <= review_threshold <= approve_threshold <= 100")
	}
	if c.Batch.MaxItems < 1 {
		return fmt.Errorf("batch.max_items must be positive")
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be positive")
	}
	if c.Document.MaxUploadBytes <= 0 {
		return fmt.Errorf("document.max_upload_bytes must be positive")
	}
	if len(c.Document.AllowedMimeTypes) == 0 {
		return fmt.Errorf("document.allowed_mime_types must not be empty")
	}
	if c.Analysis.Timeout <= 0 || c.Issuance.Timeout <= 0 {
		return fmt.Errorf("analysis.timeout and issuance.timeout must be positive")
	}
	if c.Biometric.HashKey == "" {
		return fmt.Errorf("biometric.hash_key is required")
	}
	if len(c.Biometric.HashKey) > 64 {
		return fmt.Errorf("biometric.hash_key must be at most 64 bytes")
	}
	if !c.RateLimit.Disabled && c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive")
	}
	if c.Issuance.MaxAttempts < 1 {
		return fmt.Errorf("issuance.max_attempts must be positive")
	}
	if c.Document.ExpirySweepInterval <= 0 {
		return fmt.Errorf("document.expiry_sweep_interval must be positive")
	}
	if c.Issuance.ReconcileInterval <= 0 {
		return fmt.Errorf("issuance.reconcile_interval must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.RelayInterval <= 0 {
		return fmt.Errorf("kafka.relay_interval must be positive when brokers are set")
	}
	return nil
}
