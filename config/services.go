package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeDispatcher runs the periodic sweep dispatcher.
	ServiceModeDispatcher ServiceMode = "dispatcher"
	// ServiceModeReaper runs the stuck-job reaper.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeDispatcher,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeDispatcher, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, dispatcher, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// DispatcherConfig contains dispatcher service configuration.
type DispatcherConfig struct {
	// Interval is the sweep tick interval.
	Interval time.Duration `env:"DISPATCHER_INTERVAL" envDefault:"60s"`

	// MediaFetchTimeout bounds downloading the image for a single job.
	MediaFetchTimeout time.Duration `env:"DISPATCHER_MEDIA_FETCH_TIMEOUT" envDefault:"30s"`

	// PublishTimeout bounds the media upload plus post creation for a single job.
	PublishTimeout time.Duration `env:"DISPATCHER_PUBLISH_TIMEOUT" envDefault:"60s"`
}

// Sanitize applies guardrails to dispatcher configuration values.
func (d *DispatcherConfig) Sanitize() {
	if d.Interval <= 0 {
		d.Interval = 60 * time.Second
	}
	if d.MediaFetchTimeout <= 0 {
		d.MediaFetchTimeout = 30 * time.Second
	}
	if d.PublishTimeout <= 0 {
		d.PublishTimeout = 60 * time.Second
	}
}

// ReaperConfig contains reaper service configuration.
type ReaperConfig struct {
	// Interval is how often the reaper scans for stuck jobs.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`

	// ProcessingTimeout is how long a job may sit in processing before it is
	// failed as stuck. Zero disables reaping even when the service is enabled.
	ProcessingTimeout time.Duration `env:"REAPER_PROCESSING_TIMEOUT" envDefault:"15m"`

	// BatchSize caps how many stuck jobs are failed per scan.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"100"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval <= 0 {
		r.Interval = time.Minute
	}
	if r.ProcessingTimeout < 0 {
		r.ProcessingTimeout = 0
	}
	if r.BatchSize < 1 {
		r.BatchSize = 100
	}
}
