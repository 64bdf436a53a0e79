package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID           = "stockdesk"
	DefaultRestURL              = "https://finnhub.io/api/v1"
	DefaultAPITimeout           = 10 * time.Second
	DefaultAPIMaxRetries        = 2
	DefaultAPIConcurrency       = 5
	DefaultNameTTL              = 24 * time.Hour
	DefaultStreamURL            = "ws://localhost:8080/ws"
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultHeartbeatTimeout     = 10 * time.Second
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 60 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultStreamFlushInterval  = 16 * time.Millisecond
	DefaultStreamBufferSize     = 1000
	DefaultQueueMaxRetries      = 3
	DefaultConflictThreshold    = 0.005
	DefaultRetryBaseDelay       = 1 * time.Second
	DefaultRetryMaxDelay        = 1 * time.Minute
	DefaultExecutionMode        = ExecutionSimulated
	DefaultExecutionTimeout     = 10 * time.Second
	DefaultExecutionLatency     = 800 * time.Millisecond
	DefaultFailureRate          = 0.05
	DefaultBackend              = BackendMemory
	DefaultCheckpointInterval   = 30 * time.Second
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultRedisAddr            = "localhost:6379"
	DefaultPollInterval         = 1 * time.Minute
	DefaultPollTimeout          = 30 * time.Second
	DefaultJournalBatchSize     = 100
	DefaultJournalFlushInterval = 1 * time.Second
	DefaultJournalBufferSize    = 1000
	DefaultHTTPAddr             = ":8090"
	DefaultShutdownTimeout      = 10 * time.Second
	DefaultMetricsPath          = "/metrics"
)

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultAPIMaxRetries
	}
	if c.API.Concurrency == 0 {
		c.API.Concurrency = DefaultAPIConcurrency
	}
	if c.API.NameTTL == 0 {
		c.API.NameTTL = DefaultNameTTL
	}

	// Stream defaults
	if c.Stream.URL == "" {
		c.Stream.URL = DefaultStreamURL
	}
	if c.Stream.HeartbeatInterval == 0 {
		c.Stream.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Stream.HeartbeatTimeout == 0 {
		c.Stream.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.Stream.ReconnectBaseDelay == 0 {
		c.Stream.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Stream.ReconnectMaxDelay == 0 {
		c.Stream.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Stream.MaxReconnectAttempts == 0 {
		c.Stream.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Stream.FlushInterval == 0 {
		c.Stream.FlushInterval = DefaultStreamFlushInterval
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultStreamBufferSize
	}

	// Queue defaults
	if c.Queue.MaxRetries == 0 {
		c.Queue.MaxRetries = DefaultQueueMaxRetries
	}
	if c.Queue.ConflictThreshold == 0 {
		c.Queue.ConflictThreshold = DefaultConflictThreshold
	}
	if c.Queue.RetryBaseDelay == 0 {
		c.Queue.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.Queue.RetryMaxDelay == 0 {
		c.Queue.RetryMaxDelay = DefaultRetryMaxDelay
	}

	// Execution defaults
	if c.Execution.Mode == "" {
		c.Execution.Mode = DefaultExecutionMode
	}
	if c.Execution.Timeout == 0 {
		c.Execution.Timeout = DefaultExecutionTimeout
	}
	if c.Execution.Latency == 0 {
		c.Execution.Latency = DefaultExecutionLatency
	}
	if c.Execution.FailureRate == nil {
		rate := DefaultFailureRate
		c.Execution.FailureRate = &rate
	}

	// Storage defaults
	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultBackend
	}
	if c.Storage.Namespace == "" {
		c.Storage.Namespace = c.Instance.ID
	}
	if c.Storage.CheckpointInterval == 0 {
		c.Storage.CheckpointInterval = DefaultCheckpointInterval
	}
	applyDBDefaults(&c.Storage.Postgres)
	if c.Storage.Redis.Addr == "" {
		c.Storage.Redis.Addr = DefaultRedisAddr
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollTimeout
	}

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultJournalBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultJournalFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultJournalBufferSize
	}

	// HTTP defaults
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
