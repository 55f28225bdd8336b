package config

import "strings"

// MetricsConfig controls the optional StatsD metrics sink.
type MetricsConfig struct {
	// Enabled turns on metric emission. Requires a StatsD address.
	Enabled bool `env:"METRICS_ENABLED" envDefault:"false"`

	// StatsdAddress is the UDP host:port of the StatsD endpoint.
	StatsdAddress string `env:"METRICS_STATSD_ADDR" envDefault:""`

	// Prefix is prepended to every metric name.
	Prefix string `env:"METRICS_PREFIX" envDefault:"postline"`
}

// Sanitize applies guardrails to metrics configuration values.
func (m *MetricsConfig) Sanitize() {
	m.StatsdAddress = strings.TrimSpace(m.StatsdAddress)
	m.Prefix = strings.TrimSpace(m.Prefix)
	if m.StatsdAddress == "" {
		m.Enabled = false
	}
}

// IsEnabled reports whether metrics should be emitted.
func (m *MetricsConfig) IsEnabled() bool {
	return m.Enabled && m.StatsdAddress != ""
}
