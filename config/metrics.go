package config

import "strings"

// MetricsConfig controls the Prometheus endpoint served by `bizdesk serve-metrics`.
type MetricsConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"false"`
	Addr    string `env:"ADDR"    envDefault:"127.0.0.1:9464"`
}

// Sanitize disables metrics when no listen address remains.
func (c *MetricsConfig) Sanitize() {
	c.Addr = strings.TrimSpace(c.Addr)
	if c.Addr == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics are served after sanitisation.
func (c *MetricsConfig) IsEnabled() bool {
	return c.Enabled && c.Addr != ""
}
