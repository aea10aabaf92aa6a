package config

import (
	"errors"
	"time"
)

const (
	defaultRedisStatusKey     = "voting:gateway:status"
	defaultRedisStatusChannel = "voting:gateway:events"

	defaultLeaderKey           = "voting:gateway:prober"
	defaultLeaderLeaseDuration = 30 * time.Second
	defaultLeaderRenewInterval = 10 * time.Second
)

// RedisConfig configures the optional gateway status mirror.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// StatusKey holds the latest gateway status.
	StatusKey string `yaml:"status_key"`

	// StatusChannel receives every status change.
	StatusChannel string `yaml:"status_channel"`

	// LeaderElection lets several watchers share one gateway prober.
	// Only the holder of the lease under LeaderKey probes; the others
	// follow the status it mirrors.
	LeaderElection bool          `yaml:"leader_election"`
	LeaderKey      string        `yaml:"leader_key"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewInterval  time.Duration `yaml:"renew_interval"`
}

func (c *RedisConfig) hydrateRedisDefaults() {
	if c.StatusKey == "" {
		c.StatusKey = defaultRedisStatusKey
	}
	if c.StatusChannel == "" {
		c.StatusChannel = defaultRedisStatusChannel
	}
	if !c.LeaderElection {
		return
	}
	if c.LeaderKey == "" {
		c.LeaderKey = defaultLeaderKey
	}
	if c.LeaseDuration == 0 {
		c.LeaseDuration = defaultLeaderLeaseDuration
	}
	if c.RenewInterval == 0 {
		c.RenewInterval = defaultLeaderRenewInterval
	}
}

func (c *RedisConfig) Validate() error {
	if c.Address == "" {
		return errors.New("address is required")
	}
	if c.LeaderElection {
		if c.LeaseDuration < time.Second {
			return errors.New("lease_duration must be at least 1s")
		}
		if c.RenewInterval <= 0 || c.RenewInterval >= c.LeaseDuration {
			return errors.New("renew_interval must be positive and shorter than lease_duration")
		}
	}
	return nil
}
