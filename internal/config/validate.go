package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.Concurrency < 1 {
		return errors.New("api.concurrency must be >= 1")
	}

	if !strings.HasPrefix(c.Stream.URL, "ws://") && !strings.HasPrefix(c.Stream.URL, "wss://") {
		return fmt.Errorf("stream.url must start with ws:// or wss://, got %q", c.Stream.URL)
	}
	if c.Stream.MaxReconnectAttempts < 1 {
		return errors.New("stream.max_reconnect_attempts must be >= 1")
	}
	if c.Stream.ReconnectBaseDelay > c.Stream.ReconnectMaxDelay {
		return fmt.Errorf("stream.reconnect_base_delay (%v) cannot exceed reconnect_max_delay (%v)",
			c.Stream.ReconnectBaseDelay, c.Stream.ReconnectMaxDelay)
	}

	if c.Queue.MaxRetries < 1 {
		return errors.New("queue.max_retries must be >= 1")
	}
	if c.Queue.ConflictThreshold <= 0 || c.Queue.ConflictThreshold >= 1 {
		return fmt.Errorf("queue.conflict_threshold must be in (0, 1), got %v", c.Queue.ConflictThreshold)
	}

	switch c.Execution.Mode {
	case ExecutionSimulated:
		if r := c.Execution.FailureRate; r != nil && (*r < 0 || *r > 1) {
			return fmt.Errorf("execution.failure_rate must be in [0, 1], got %v", *r)
		}
	case ExecutionHTTP:
		if c.Execution.URL == "" {
			return errors.New("execution.url is required when mode is http")
		}
	default:
		return fmt.Errorf("execution.mode must be %q or %q, got %q", ExecutionSimulated, ExecutionHTTP, c.Execution.Mode)
	}

	switch c.Storage.Backend {
	case BackendMemory, BackendPostgres:
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, postgres, redis, got %q", c.Storage.Backend)
	}

	if c.UsesPostgres() {
		if err := c.Storage.Postgres.validate("storage.postgres"); err != nil {
			return err
		}
	}

	if c.Journal.Enabled && c.Journal.BatchSize < 1 {
		return errors.New("journal.batch_size must be >= 1")
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
