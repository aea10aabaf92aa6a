package config

import "fmt"

const defaultLogLevel = "info"

// validLogLevels lists the levels understood by polyzero.ParseLevel.
var validLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// LoggerConfig contains the logging configuration.
type LoggerConfig struct {
	Level string `yaml:"level"`
}

func (c *LoggerConfig) hydrateLoggerDefaults() {
	if c.Level == "" {
		c.Level = defaultLogLevel
	}
}

// Validate checks that the configured level is supported.
func (c *LoggerConfig) Validate() error {
	if _, ok := validLogLevels[c.Level]; !ok {
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	return nil
}
