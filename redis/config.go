package redis

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	env "github.com/tradecore/go-marketstore-common/environment"
	"github.com/tradecore/go-marketstore-common/retry"
)

const (
	RedisNodeAddressSuffix      = "REDIS_STORE_ADDRESS"
	RedisDBSuffix               = "REDIS_STORE_DB"
	RedisPasswordFileSuffix     = "REDIS_STORE_PASSWORD_FILENAME" //nolint:gosec
	RedisTLSSuffix              = "REDIS_STORE_TLS"
	RedisNamespaceEnvSuffix     = "REDIS_KEY_NAMESPACE"
	RedisPoolMaxSizeSuffix      = "REDIS_POOL_MAX_SIZE"
	RedisPoolAcquireSuffix      = "REDIS_POOL_ACQUIRE_TIMEOUT"
	RedisDialTimeoutSuffix      = "REDIS_DIAL_TIMEOUT"
	RedisReadTimeoutSuffix      = "REDIS_READ_TIMEOUT"
	RedisWriteTimeoutSuffix     = "REDIS_WRITE_TIMEOUT"
	RedisRetryAttemptsSuffix    = "REDIS_RETRY_ATTEMPTS"
	RedisRetryInitialSuffix     = "REDIS_RETRY_INITIAL_DELAY"
	RedisRetryMaxSuffix         = "REDIS_RETRY_MAX_DELAY"
	RedisRetryMultiplierSuffix  = "REDIS_RETRY_MULTIPLIER"
	RedisRetryJitterSuffix      = "REDIS_RETRY_JITTER"
	RedisUpdateChannelEnvSuffix = "REDIS_SUBSCRIPTION_CHANNEL"

	// sized for a high reuse rate across all services sharing a process
	DefaultMaxPoolSize    = 120
	DefaultAcquireTimeout = 5 * time.Second
	DefaultSocketTimeout  = 10 * time.Second
)

var (
	ErrInvalidConfig = errors.New("invalid redis store config")
)

// StoreConfig carries the validated values the store consumes. The store
// never reads the environment itself; FromEnvOrFatal is one way to build a
// StoreConfig.
type StoreConfig struct {
	Address  string
	Password string
	DB       int
	TLS      bool

	// Namespace scopes the subscription registry key.
	Namespace string

	MaxPoolSize    int
	AcquireTimeout time.Duration

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Retry retry.Policy

	UpdateChannel string
}

// DefaultConfig returns a config for address with every tunable at its
// default.
func DefaultConfig(address, namespace string) StoreConfig {
	return StoreConfig{
		Address:        address,
		Namespace:      namespace,
		MaxPoolSize:    DefaultMaxPoolSize,
		AcquireTimeout: DefaultAcquireTimeout,
		DialTimeout:    DefaultSocketTimeout,
		ReadTimeout:    DefaultSocketTimeout,
		WriteTimeout:   DefaultSocketTimeout,
		Retry:          retry.DefaultPolicy(),
		UpdateChannel:  DefaultUpdateChannel,
	}
}

// FromEnvOrFatal assumes conventional service env vars and populates a
// StoreConfig or panics. Only the address and namespace are required.
func FromEnvOrFatal(log Logger) StoreConfig {
	cfg := DefaultConfig(
		env.GetOrFatal(RedisNodeAddressSuffix),
		env.GetOrFatal(RedisNamespaceEnvSuffix),
	)

	cfg.DB = env.GetIntWithDefault(RedisDBSuffix, 0)
	cfg.Password = env.ReadIndirectWithDefault(RedisPasswordFileSuffix, "")
	cfg.TLS = env.GetTruthy(RedisTLSSuffix)

	cfg.MaxPoolSize = env.GetIntWithDefault(RedisPoolMaxSizeSuffix, cfg.MaxPoolSize)
	cfg.AcquireTimeout = env.GetDurationWithDefault(RedisPoolAcquireSuffix, cfg.AcquireTimeout)
	cfg.DialTimeout = env.GetDurationWithDefault(RedisDialTimeoutSuffix, cfg.DialTimeout)
	cfg.ReadTimeout = env.GetDurationWithDefault(RedisReadTimeoutSuffix, cfg.ReadTimeout)
	cfg.WriteTimeout = env.GetDurationWithDefault(RedisWriteTimeoutSuffix, cfg.WriteTimeout)

	cfg.Retry.MaxAttempts = env.GetIntWithDefault(RedisRetryAttemptsSuffix, cfg.Retry.MaxAttempts)
	cfg.Retry.InitialDelay = env.GetDurationWithDefault(RedisRetryInitialSuffix, cfg.Retry.InitialDelay)
	cfg.Retry.MaxDelay = env.GetDurationWithDefault(RedisRetryMaxSuffix, cfg.Retry.MaxDelay)
	cfg.Retry.Multiplier = env.GetFloatWithDefault(RedisRetryMultiplierSuffix, cfg.Retry.Multiplier)
	if _, err := env.GetRequired(RedisRetryJitterSuffix); err == nil {
		cfg.Retry.Jitter = env.GetTruthy(RedisRetryJitterSuffix)
	}

	cfg.UpdateChannel = env.GetWithDefault(RedisUpdateChannelEnvSuffix, cfg.UpdateChannel)

	if err := cfg.Validate(); err != nil {
		log.Panicf("%v", err)
	}
	log.InfoR("redis store config", cfg.Address, cfg.Namespace, cfg.MaxPoolSize)
	return cfg
}

// Validate checks that all required fields are set and values are valid.
func (cfg StoreConfig) Validate() error {
	if cfg.Address == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidConfig)
	}
	if cfg.Namespace == "" {
		return fmt.Errorf("%w: namespace is required", ErrInvalidConfig)
	}
	if cfg.DB < 0 {
		return fmt.Errorf("%w: db must be >= 0, got %d", ErrInvalidConfig, cfg.DB)
	}
	if cfg.MaxPoolSize < 1 {
		return fmt.Errorf("%w: max pool size must be >= 1, got %d", ErrInvalidConfig, cfg.MaxPoolSize)
	}
	if cfg.AcquireTimeout <= 0 {
		return fmt.Errorf("%w: acquire timeout must be > 0, got %v", ErrInvalidConfig, cfg.AcquireTimeout)
	}
	if cfg.UpdateChannel == "" {
		return fmt.Errorf("%w: update channel is required", ErrInvalidConfig)
	}
	if err := cfg.Retry.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// URL is the address used in log and span context.
func (cfg StoreConfig) URL() string {
	return cfg.Address
}

// Options returns the go-redis options for one pooled connection. Each
// connection is a client limited to a single socket; retries belong to the
// store's executor so go-redis's own retries are disabled.
func (cfg StoreConfig) Options() *redis.Options {
	opts := &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   -1,
		PoolSize:     1,
		MinIdleConns: 0,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}
