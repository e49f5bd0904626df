package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"filepipe/internal/constants"
)

// LoadConfig reads the YAML config file (if given), layers FILEPIPE_*
// environment variables on top, and fills defaults for everything else.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix("FILEPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_seconds", 15*time.Second)
	v.SetDefault("server.write_timeout_seconds", 15*time.Second)

	v.SetDefault("database.redis.host", "localhost")
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("database.mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("database.mongodb.database", constants.DefaultMongoDBName)

	v.SetDefault("broker.type", "kafka")
	v.SetDefault("broker.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("broker.kafka.max_in_flight", constants.DefaultMaxInFlight)
	v.SetDefault("broker.kafka.retry.max_attempts", 5)
	v.SetDefault("broker.kafka.retry.initial_interval", time.Second)
	v.SetDefault("broker.kafka.retry.max_interval", 30*time.Second)
	v.SetDefault("broker.kafka.retry.multiplier", 2.0)
	v.SetDefault("broker.kafka.retry.max_elapsed_time", 5*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.lock_grace_period", constants.DefaultLockGracePeriod)

	v.SetDefault("dedup.ttl", constants.DefaultDedupTTL)
	v.SetDefault("dedup.on_cache_error", "allow")

	v.SetDefault("contentcache.ttl", constants.DefaultContentTTL)

	v.SetDefault("output.retry_attempts", constants.DefaultOutputRetryAttempts)
	v.SetDefault("output.retry_delay", constants.DefaultOutputRetryDelay)
	v.SetDefault("output.write_timeout", 30*time.Second)

	v.SetDefault("circuitbreaker.enabled", true)
	v.SetDefault("circuitbreaker.max_requests", 3)
	v.SetDefault("circuitbreaker.interval", 60*time.Second)
	v.SetDefault("circuitbreaker.timeout", 30*time.Second)
	v.SetDefault("circuitbreaker.failure_ratio", 0.6)
	v.SetDefault("circuitbreaker.min_requests", 5)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.otlp.endpoint", "localhost:4317")
	v.SetDefault("tracing.otlp.insecure", true)
	v.SetDefault("tracing.sampler.type", "parentbased_always_on")
	v.SetDefault("tracing.sampler.param", 1.0)
}
