package config

import (
	"fmt"
	"net"
)

/* --------------------------------- Metrics Config Defaults -------------------------------- */

// defaultPrometheusAddr serves /metrics on every interface.
const defaultPrometheusAddr = ":9090"

/* --------------------------------- Metrics Config Struct -------------------------------- */

// MetricsConfig holds the listen addresses of the scrape and profiling
// servers started by the watch command.
type MetricsConfig struct {
	PrometheusAddr string `yaml:"prometheus_addr"`

	// PprofAddr is empty unless profiling is wanted.
	PprofAddr string `yaml:"pprof_addr"`
}

// Validate checks that both addresses are host:port pairs.
func (c MetricsConfig) Validate() error {
	if _, _, err := net.SplitHostPort(c.PrometheusAddr); err != nil {
		return fmt.Errorf("invalid prometheus_addr %q: %w", c.PrometheusAddr, err)
	}
	if c.PprofAddr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.PprofAddr); err != nil {
		return fmt.Errorf("invalid pprof_addr %q: %w", c.PprofAddr, err)
	}
	return nil
}

/* --------------------------------- Metrics Config Private Helpers -------------------------------- */

func (c *MetricsConfig) hydrateMetricsDefaults() {
	if c.PrometheusAddr == "" {
		c.PrometheusAddr = defaultPrometheusAddr
	}
}
