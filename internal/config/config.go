package config

import "time"

// Config is the root configuration for a stockdesk instance.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	API       APIConfig       `yaml:"api"`
	Stream    StreamConfig    `yaml:"stream"`
	Queue     QueueConfig     `yaml:"queue"`
	Execution ExecutionConfig `yaml:"execution"`
	Storage   StorageConfig   `yaml:"storage"`
	Poller    PollerConfig    `yaml:"poller"`
	Journal   JournalConfig   `yaml:"journal"`
	HTTP      HTTPConfig      `yaml:"http"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstanceConfig identifies this instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds quote REST API settings. An empty APIKey runs the quote
// source offline.
type APIConfig struct {
	RestURL     string        `yaml:"rest_url"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	Concurrency int           `yaml:"concurrency"`
	NameTTL     time.Duration `yaml:"name_ttl"`
}

// StreamConfig holds price stream connection settings.
type StreamConfig struct {
	URL                  string        `yaml:"url"`
	APIKey               string        `yaml:"api_key"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout     time.Duration `yaml:"heartbeat_timeout"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	ReconnectJitter      bool          `yaml:"reconnect_jitter"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	FlushInterval        time.Duration `yaml:"flush_interval"`
	BufferSize           int           `yaml:"buffer_size"`
}

// QueueConfig holds offline order queue settings.
type QueueConfig struct {
	MaxRetries        int           `yaml:"max_retries"`
	ConflictThreshold float64       `yaml:"conflict_threshold"` // fraction, 0.005 = 0.5%
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
}

// Execution modes.
const (
	ExecutionSimulated = "simulated"
	ExecutionHTTP      = "http"
)

// ExecutionConfig selects and configures the order executor.
type ExecutionConfig struct {
	Mode        string        `yaml:"mode"`
	URL         string        `yaml:"url"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	Latency     time.Duration `yaml:"latency"`      // simulated only
	FailureRate *float64      `yaml:"failure_rate"` // simulated only; nil uses the default
}

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// StorageConfig holds durable state settings.
type StorageConfig struct {
	Backend            string        `yaml:"backend"`
	Namespace          string        `yaml:"namespace"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
	EncryptionKeyPath  string        `yaml:"encryption_key_path"` // empty disables encryption
	Postgres           DBConfig      `yaml:"postgres"`
	Redis              RedisConfig   `yaml:"redis"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RedisConfig holds a Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PollerConfig holds quote poller settings.
type PollerConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// JournalConfig holds order history journal settings. The journal writes to
// storage.postgres.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// HTTPConfig holds the API server settings.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Path string `yaml:"path"`
}

// UsesPostgres reports whether any component needs the Postgres connection.
func (c *Config) UsesPostgres() bool {
	return c.Storage.Backend == BackendPostgres || c.Journal.Enabled
}
