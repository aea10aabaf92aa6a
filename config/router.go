package config

import (
	"errors"
	"time"
)

/* --------------------------------- Router Config Defaults -------------------------------- */

const (
	// defaultRouterPort serves the operational endpoints while watching.
	defaultRouterPort = 3069

	// https://pkg.go.dev/net/http#Server
	defaultHTTPServerReadTimeout  = 10 * time.Second
	defaultHTTPServerWriteTimeout = 10 * time.Second
	defaultHTTPServerIdleTimeout  = 60 * time.Second
)

/* --------------------------------- Router Config Struct -------------------------------- */

// RouterConfig configures the operational HTTP server started by watch.
// A negative Port disables it.
type RouterConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// Enabled reports whether the operational server should be started.
func (c RouterConfig) Enabled() bool {
	return c.Port > 0
}

/* --------------------------------- Router Config Private Helpers -------------------------------- */

func (c *RouterConfig) hydrateRouterDefaults() {
	if c.Port == 0 {
		c.Port = defaultRouterPort
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultHTTPServerReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultHTTPServerWriteTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = defaultHTTPServerIdleTimeout
	}
}

func (c *RouterConfig) Validate() error {
	if c.Port > 65535 {
		return errors.New("port must be at most 65535")
	}
	return nil
}
