package config

import "time"

/* --------------------------------- Timing Config Defaults -------------------------------- */

const (
	defaultProbeInterval = 60 * time.Second
	defaultProbeTimeout  = 5 * time.Second

	defaultReceiptPollInterval = 2 * time.Second
	defaultReceiptMaxAttempts  = 60

	defaultRelayerPollInterval  = 5 * time.Second
	defaultRelayerMaxAttempts   = 60
	defaultRelayerRateLimit     = 2.0
	defaultCallbackPollInterval = 1 * time.Second
	defaultCallbackMaxAttempts  = 120

	defaultPollCacheTTL = 10 * time.Second
	defaultCacheWorkers = 8
)

/* --------------------------------- Health Config -------------------------------- */

// HealthConfig controls how often the gateway is probed.
type HealthConfig struct {
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
}

func (c *HealthConfig) hydrateHealthDefaults() {
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = defaultProbeInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
}

/* --------------------------------- Submitter Config -------------------------------- */

// SubmitterConfig bounds the receipt confirmation loop.
// The total wait is PollInterval * MaxAttempts.
type SubmitterConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

func (c *SubmitterConfig) hydrateSubmitterDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultReceiptPollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultReceiptMaxAttempts
	}
}

/* --------------------------------- Decryption Config -------------------------------- */

// DecryptionConfig holds the relayer polling and callback wait budgets.
type DecryptionConfig struct {
	RelayerPollInterval time.Duration `yaml:"relayer_poll_interval"`
	RelayerMaxAttempts  int           `yaml:"relayer_max_attempts"`

	// RelayerRateLimit caps relayer requests per second across the process.
	RelayerRateLimit float64 `yaml:"relayer_rate_limit"`

	CallbackPollInterval time.Duration `yaml:"callback_poll_interval"`
	CallbackMaxAttempts  int           `yaml:"callback_max_attempts"`
}

func (c *DecryptionConfig) hydrateDecryptionDefaults() {
	if c.RelayerPollInterval <= 0 {
		c.RelayerPollInterval = defaultRelayerPollInterval
	}
	if c.RelayerMaxAttempts <= 0 {
		c.RelayerMaxAttempts = defaultRelayerMaxAttempts
	}
	if c.RelayerRateLimit <= 0 {
		c.RelayerRateLimit = defaultRelayerRateLimit
	}
	if c.CallbackPollInterval <= 0 {
		c.CallbackPollInterval = defaultCallbackPollInterval
	}
	if c.CallbackMaxAttempts <= 0 {
		c.CallbackMaxAttempts = defaultCallbackMaxAttempts
	}
}

/* --------------------------------- Cache Config -------------------------------- */

// CacheConfig controls the poll metadata cache and list fan-out.
type CacheConfig struct {
	PollTTL time.Duration `yaml:"poll_ttl"`
	Workers int           `yaml:"workers"`
}

func (c *CacheConfig) hydrateCacheDefaults() {
	if c.PollTTL <= 0 {
		c.PollTTL = defaultPollCacheTTL
	}
	if c.Workers <= 0 {
		c.Workers = defaultCacheWorkers
	}
}
