package config

import (
	"fmt"
)

// Validate applies the static checks that make a config unusable rather
// than merely suboptimal.
func Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Broker.Type != "kafka" {
		return fmt.Errorf("unsupported broker type: %s", cfg.Broker.Type)
	}
	if len(cfg.Broker.Kafka.Brokers) == 0 {
		return fmt.Errorf("at least one kafka broker is required")
	}
	if cfg.Broker.Kafka.MaxInFlight <= 0 {
		return fmt.Errorf("kafka max_in_flight must be positive, got %d", cfg.Broker.Kafka.MaxInFlight)
	}

	if cfg.Database.MongoDB.URI == "" {
		return fmt.Errorf("mongodb uri is required")
	}
	if cfg.Database.MongoDB.Database == "" {
		return fmt.Errorf("mongodb database name is required")
	}
	if cfg.Database.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}

	if cfg.Scheduler.LockGracePeriod <= 0 {
		return fmt.Errorf("scheduler lock_grace_period must be positive")
	}
	if cfg.Dedup.TTL <= 0 {
		return fmt.Errorf("dedup ttl must be positive")
	}
	switch cfg.Dedup.OnCacheErr {
	case "allow", "deny":
	default:
		return fmt.Errorf("dedup on_cache_error must be \"allow\" or \"deny\", got %q", cfg.Dedup.OnCacheErr)
	}
	if cfg.ContentCache.TTL <= 0 {
		return fmt.Errorf("contentcache ttl must be positive")
	}

	if cfg.Output.RetryAttempts <= 0 {
		return fmt.Errorf("output retry_attempts must be positive")
	}
	if cfg.Output.RetryDelay < 0 {
		return fmt.Errorf("output retry_delay must not be negative")
	}

	if cfg.Logging.Level != "" {
		switch cfg.Logging.Level {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
		}
	}

	return nil
}
