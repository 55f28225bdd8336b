package config

import "strings"

// PublisherConfig contains publisher endpoint configuration and optional
// default credentials applied when a submission omits its own.
type PublisherConfig struct {
	// UploadBaseURL is the base URL for the v1.1 media upload API.
	UploadBaseURL string `env:"PUBLISHER_UPLOAD_BASE_URL" envDefault:"https://upload.twitter.com/1.1"`

	// APIBaseURL is the base URL for the v2 post creation API.
	APIBaseURL string `env:"PUBLISHER_API_BASE_URL" envDefault:"https://api.twitter.com/2"`

	// Default credentials. Submissions that carry no credentials fall back to
	// these; they are captured onto the job at submit time.
	APIKey       string `env:"PUBLISHER_API_KEY"       envDefault:""`
	APISecret    string `env:"PUBLISHER_API_SECRET"    envDefault:""`
	AccessToken  string `env:"PUBLISHER_ACCESS_TOKEN"  envDefault:""`
	AccessSecret string `env:"PUBLISHER_ACCESS_SECRET" envDefault:""`
}

// Sanitize applies guardrails to publisher configuration values.
func (p *PublisherConfig) Sanitize() {
	p.UploadBaseURL = strings.TrimRight(strings.TrimSpace(p.UploadBaseURL), "/")
	p.APIBaseURL = strings.TrimRight(strings.TrimSpace(p.APIBaseURL), "/")
}

// HasDefaultCredentials reports whether a complete default credential bundle
// is configured.
func (p *PublisherConfig) HasDefaultCredentials() bool {
	return p.APIKey != "" && p.APISecret != "" && p.AccessToken != "" && p.AccessSecret != ""
}
