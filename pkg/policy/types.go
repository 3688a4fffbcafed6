package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed but do not
	// block the plan.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block the plan.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Policy is a named rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations the policy emits
	// without an explicit one.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation is a single policy finding against a plan.
type Violation struct {
	// Policy is the name of the policy that fired.
	Policy string `json:"policy"`

	// Descriptor is the descriptor ID the finding concerns, when the rule
	// names one.
	Descriptor string `json:"descriptor,omitempty"`

	// Message is a human-readable finding.
	Message string `json:"message"`

	// Severity is the finding severity level.
	Severity Severity `json:"severity"`

	// Remediation provides a suggested fix.
	Remediation string `json:"remediation,omitempty"`

	// DetectedAt is when the finding was produced.
	DetectedAt time.Time `json:"detected_at"`
}

// Result is the outcome of evaluating all enabled policies against one plan.
type Result struct {
	// Allowed is false when any violation is error or critical severity.
	Allowed bool `json:"allowed"`

	// Violations lists all findings, blocking and advisory alike.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists evaluation problems (a policy that failed to run),
	// distinct from findings.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that ran.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the evaluation happened.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document handed to Rego evaluation.
type Input struct {
	// Plan is the redacted plan document.
	Plan map[string]any `json:"plan"`

	// Context carries evaluation metadata.
	Context *Context `json:"context"`
}

// Context provides evaluation context to policies.
type Context struct {
	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// Operation is what triggered the evaluation ("resolve", "validate").
	Operation string `json:"operation,omitempty"`
}
