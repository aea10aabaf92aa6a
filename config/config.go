package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

/* --------------------------------- Client Config Struct -------------------------------- */

// ClientConfig contains everything needed to run the voting client,
// parsed from a YAML config file or from the environment.
type ClientConfig struct {
	Network    NetworkConfig    `yaml:"network_config"`
	Contracts  ContractsConfig  `yaml:"contracts_config"`
	Health     HealthConfig     `yaml:"health_config"`
	Submitter  SubmitterConfig  `yaml:"submitter_config"`
	Decryption DecryptionConfig `yaml:"decryption_config"`
	Cache      CacheConfig      `yaml:"cache_config"`
	Wallet     WalletConfig     `yaml:"wallet_config"`
	Logger     LoggerConfig     `yaml:"logger_config"`
	Metrics    MetricsConfig    `yaml:"metrics_config"`
	Router     RouterConfig     `yaml:"router_config"`

	// RedisConfig is optional. When set, gateway status changes are
	// mirrored to Redis for other processes to observe.
	RedisConfig *RedisConfig `yaml:"redis_config,omitempty"`
}

type EnvConfigError struct {
	Description string
}

func (c EnvConfigError) Error() string {
	return c.Description
}

// LoadClientConfigFromYAML reads a YAML configuration file from the specified path
// and unmarshals its content into a ClientConfig instance.
func LoadClientConfigFromYAML(path string) (ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ClientConfig{}, err
	}

	return parseClientConfig(data)
}

func parseClientConfig(data []byte) (ClientConfig, error) {
	var config ClientConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return ClientConfig{}, err
	}

	config.hydrateDefaults()

	return config, config.validate()
}

/* --------------------------------- Client Config Hydration Helpers -------------------------------- */

func (c *ClientConfig) hydrateDefaults() {
	c.Network.hydrateNetworkDefaults()
	c.Contracts.hydrateContractsDefaults()
	c.Health.hydrateHealthDefaults()
	c.Submitter.hydrateSubmitterDefaults()
	c.Decryption.hydrateDecryptionDefaults()
	c.Cache.hydrateCacheDefaults()
	c.Wallet.hydrateWalletDefaults(c.Network)
	c.Logger.hydrateLoggerDefaults()
	c.Metrics.hydrateMetricsDefaults()
	c.Router.hydrateRouterDefaults()
	if c.RedisConfig != nil {
		c.RedisConfig.hydrateRedisDefaults()
	}
}

/* --------------------------------- Client Config Validation Helpers -------------------------------- */

func (c *ClientConfig) validate() error {
	if err := c.Network.Validate(); err != nil {
		return fmt.Errorf("invalid network config: %w", err)
	}
	if err := c.Contracts.Validate(); err != nil {
		return fmt.Errorf("invalid contracts config: %w", err)
	}
	if err := c.Wallet.Validate(); err != nil {
		return fmt.Errorf("invalid wallet config: %w", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}
	if err := c.Router.Validate(); err != nil {
		return fmt.Errorf("invalid router config: %w", err)
	}
	if c.RedisConfig != nil {
		if err := c.RedisConfig.Validate(); err != nil {
			return fmt.Errorf("invalid redis config: %w", err)
		}
	}
	return nil
}
