// Package alert delivers integrity and error events to webhook endpoints.
package alert

// EventChange and EventError are the dispatchable event types.
const (
	EventChange = "change"
	EventError  = "error"
)

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["change", "error"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"` // "change" or "error"
	File      string `json:"file,omitempty"`
	Entity    string `json:"entity"`
	OldDigest string `json:"old_digest,omitempty"`
	NewDigest string `json:"new_digest,omitempty"`
	Message   string `json:"message,omitempty"`
}
