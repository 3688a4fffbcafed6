package resolver

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/go-playground/validator/v10"
)

// AuthMode controls how the function endpoint authenticates callers.
type AuthMode string

const (
	// AuthModeNone exposes the endpoint without request signing. Origin
	// verification, if any, uses the shared-secret header scheme.
	AuthModeNone AuthMode = "NONE"

	// AuthModeIAM requires signed requests; the CDN signs via an origin
	// access control instead of carrying a shared secret.
	AuthModeIAM AuthMode = "IAM"
)

// DeployIntent is the user-declared desired deployment configuration. It is
// treated as immutable input: the resolver never mutates caller-supplied
// maps or slices.
type DeployIntent struct {
	// AppName seeds descriptor names. Lowercase DNS-label style.
	AppName string `json:"app_name" validate:"required,min=3,max=48,hostname_rfc1123"`

	// EnableCloudFront fronts the function endpoint with a CDN distribution.
	EnableCloudFront bool `json:"enable_cloudfront"`

	// EnableWAF attaches a web ACL to the CDN. Requires EnableCloudFront.
	EnableWAF bool `json:"enable_waf"`

	// UseIAMAuth switches the endpoint to signed-request auth. Requires
	// EnableCloudFront so the CDN can sign origin requests.
	UseIAMAuth bool `json:"use_iam_auth"`

	// AllowedIPCIDRs are caller-supplied CIDR blocks admitted by the web ACL.
	AllowedIPCIDRs []string `json:"allowed_ip_cidrs" validate:"dive,cidr"`

	// GitHubIPCIDRs is the fixed service IP reference list merged into the
	// allow-list. Defaulted from the compiled-in table; swappable so the
	// ranges can be refreshed without a code change.
	GitHubIPCIDRs []string `json:"github_ip_cidrs" validate:"dive,cidr"`

	// RetentionDays is the log sink retention window. Must be one of the
	// retention values the log store accepts.
	RetentionDays int `json:"retention_days"`

	// UntaggedImageKeepCount bounds how many images the count-based registry
	// lifecycle rules keep.
	UntaggedImageKeepCount int `json:"untagged_image_keep_count" validate:"min=1"`

	// ImageTag is the container image tag supplied by the CI trigger.
	// Empty means "latest".
	ImageTag string `json:"image_tag,omitempty"`

	// MemoryMB is the compute function memory allocation.
	MemoryMB int `json:"memory_mb" validate:"min=128,max=10240"`

	// TimeoutSeconds is the compute function invocation timeout.
	TimeoutSeconds int `json:"timeout_seconds" validate:"min=1,max=900"`

	// Port is the port the containerized application listens on.
	Port int `json:"port" validate:"min=1,max=65535"`

	// EnvironmentVariables are passed through to the compute function.
	// Reserved keys injected by the builder take precedence on collision.
	EnvironmentVariables map[string]string `json:"environment_variables,omitempty"`

	// GitHubRepository ("owner/repo"), when set, emits a CI deploy trust
	// role federated to the OIDC provider referenced by OIDCProviderRef.
	GitHubRepository string `json:"github_repository,omitempty"`

	// OIDCProviderRef identifies the CI OIDC identity provider trusted by
	// the deploy role. Only meaningful with GitHubRepository.
	OIDCProviderRef string `json:"oidc_provider_ref,omitempty"`
}

// Defaults applied by ApplyDefaults.
const (
	DefaultAppName                = "metrics-dashboard"
	DefaultRetentionDays          = 7
	DefaultUntaggedImageKeepCount = 3
	DefaultMemoryMB               = 1024
	DefaultTimeoutSeconds         = 30
	DefaultPort                   = 8080
	DefaultOIDCProviderRef        = "github-actions"
)

// retentionDaysAllowed is the retention value set the log store accepts.
var retentionDaysAllowed = map[int]struct{}{
	1: {}, 3: {}, 5: {}, 7: {}, 14: {}, 30: {}, 60: {}, 90: {},
	120: {}, 150: {}, 180: {}, 365: {}, 400: {}, 545: {}, 731: {},
	1827: {}, 3653: {},
}

// RetentionDaysAllowed returns the allowed retention values in ascending
// order.
func RetentionDaysAllowed() []int {
	out := make([]int, 0, len(retentionDaysAllowed))
	for d := range retentionDaysAllowed {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

// imageTagPattern matches commit-hash tags plus the floating "latest" tag.
var imageTagPattern = regexp.MustCompile(`^([0-9a-f]{1,40}|latest)$`)

// repositoryPattern matches "owner/repo".
var repositoryPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// ApplyDefaults fills zero-valued optional fields. It returns a copy; the
// receiver intent is not modified.
func (in DeployIntent) ApplyDefaults() DeployIntent {
	if in.AppName == "" {
		in.AppName = DefaultAppName
	}
	if in.RetentionDays == 0 {
		in.RetentionDays = DefaultRetentionDays
	}
	if in.UntaggedImageKeepCount == 0 {
		in.UntaggedImageKeepCount = DefaultUntaggedImageKeepCount
	}
	if in.ImageTag == "" {
		in.ImageTag = "latest"
	}
	if in.MemoryMB == 0 {
		in.MemoryMB = DefaultMemoryMB
	}
	if in.TimeoutSeconds == 0 {
		in.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if in.Port == 0 {
		in.Port = DefaultPort
	}
	if len(in.GitHubIPCIDRs) == 0 {
		in.GitHubIPCIDRs = DefaultGitHubCIDRs()
	}
	if in.GitHubRepository != "" && in.OIDCProviderRef == "" {
		in.OIDCProviderRef = DefaultOIDCProviderRef
	}
	return in
}

// structValidator carries the field-level validation rules declared on
// DeployIntent tags.
var structValidator = validator.New()

// Validate checks the intent against the ordered cross-flag constraints and
// then the field rules. It reports the first violation found; these are hard
// preconditions, not independently correctable warnings.
func Validate(intent DeployIntent) error {
	// Cross-flag constraints, in documented order. First violation wins,
	// before any field-level rule.
	if intent.UseIAMAuth && !intent.EnableCloudFront {
		return NewValidationError(ConstraintIAMAuthRequiresCloudFront,
			"IAM endpoint auth requires the CDN distribution to sign origin requests")
	}
	if intent.EnableWAF && !intent.EnableCloudFront {
		return NewValidationError(ConstraintWAFRequiresCloudFront,
			"the web ACL attaches to the CDN distribution and cannot exist without it")
	}
	if _, ok := retentionDaysAllowed[intent.RetentionDays]; !ok {
		return NewValidationError(ConstraintInvalidRetentionDays,
			fmt.Sprintf("retention of %d days is not an accepted log retention value", intent.RetentionDays))
	}

	if err := structValidator.Struct(intent); err != nil {
		return NewValidationError(ConstraintInvalidField, err.Error())
	}
	if intent.ImageTag != "" && !imageTagPattern.MatchString(intent.ImageTag) {
		return NewValidationError(ConstraintInvalidField,
			fmt.Sprintf("image tag %q must match %s", intent.ImageTag, imageTagPattern))
	}
	if intent.GitHubRepository != "" && !repositoryPattern.MatchString(intent.GitHubRepository) {
		return NewValidationError(ConstraintInvalidField,
			fmt.Sprintf("repository %q must be in owner/repo form", intent.GitHubRepository))
	}
	return nil
}

// AuthMode returns the endpoint auth mode implied by the intent.
func (in DeployIntent) AuthMode() AuthMode {
	if in.UseIAMAuth {
		return AuthModeIAM
	}
	return AuthModeNone
}

// NeedsSharedSecret reports whether this intent uses the shared-secret
// header origin verification scheme.
func (in DeployIntent) NeedsSharedSecret() bool {
	return in.EnableCloudFront && !in.UseIAMAuth
}
