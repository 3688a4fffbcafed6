package stores

import (
	"time"
)

// Resolution is one stored resolution record. Intent and Plan are JSON
// documents; Plan is always the redacted rendering.
type Resolution struct {
	// ID is the plan ID.
	ID string `json:"id"`

	// AppName is denormalized from the intent for filtering.
	AppName string `json:"app_name"`

	// Intent is the defaulted intent as JSON.
	Intent string `json:"intent"`

	// Plan is the redacted plan document as JSON.
	Plan string `json:"plan"`

	// DescriptorCount is the plan's descriptor total.
	DescriptorCount int `json:"descriptor_count"`

	// SecretGenerated records whether the resolution drew a shared secret.
	// The secret itself is never stored.
	SecretGenerated bool `json:"secret_generated"`

	// PolicyAllowed is the policy verdict, nil when policies did not run.
	PolicyAllowed *bool `json:"policy_allowed,omitempty"`

	// CreatedAt is when the resolution was stored.
	CreatedAt time.Time `json:"created_at"`
}

// EventLevel classifies stored events.
type EventLevel string

const (
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Event is one append-only log entry tied to a resolution.
type Event struct {
	// ID is auto-assigned by the store.
	ID int64 `json:"id"`

	// ResolutionID is the owning resolution.
	ResolutionID string `json:"resolution_id"`

	// Level is the event level.
	Level EventLevel `json:"level"`

	// Message is the event text.
	Message string `json:"message"`

	// Details is optional JSON context.
	Details *string `json:"details,omitempty"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}
