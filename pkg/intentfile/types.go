package intentfile

import (
	"time"

	"github.com/openfacade/openfacade/pkg/resolver"
)

// IntentConfig is the file-level shape of a deploy intent. Field names follow
// the file surface, not the resolver API; ToIntent performs the mapping.
type IntentConfig struct {
	AppName                string            `json:"app_name,omitempty"`
	EnableCloudFront       bool              `json:"enable_cloudfront,omitempty"`
	EnableWAF              bool              `json:"enable_waf,omitempty"`
	UseIAMAuth             bool              `json:"use_iam_auth,omitempty"`
	AllowedIPCIDRs         []string          `json:"allowed_ip_cidrs,omitempty"`
	GitHubIPCIDRs          []string          `json:"github_ip_cidrs,omitempty"`
	RetentionDays          int               `json:"retention_days,omitempty"`
	UntaggedImageKeepCount int               `json:"untagged_image_keep_count,omitempty"`
	ImageTag               string            `json:"image_tag,omitempty"`
	MemoryMB               int               `json:"memory_mb,omitempty"`
	TimeoutSeconds         int               `json:"timeout_seconds,omitempty"`
	Port                   int               `json:"port,omitempty"`
	EnvironmentVariables   map[string]string `json:"environment_variables,omitempty"`
	GitHubRepository       string            `json:"github_repository,omitempty"`
	OIDCProviderRef        string            `json:"oidc_provider_ref,omitempty"`

	// EnvScript is a path, relative to the intent file, of a Starlark script
	// whose string globals are merged into EnvironmentVariables. Script values
	// lose to explicit file values on collision.
	EnvScript string `json:"env_script,omitempty"`
}

// ToIntent maps the file shape onto a resolver intent. Defaults are not
// applied here; the resolver owns defaulting.
func (c IntentConfig) ToIntent() resolver.DeployIntent {
	return resolver.DeployIntent{
		AppName:                c.AppName,
		EnableCloudFront:       c.EnableCloudFront,
		EnableWAF:              c.EnableWAF,
		UseIAMAuth:             c.UseIAMAuth,
		AllowedIPCIDRs:         c.AllowedIPCIDRs,
		GitHubIPCIDRs:          c.GitHubIPCIDRs,
		RetentionDays:          c.RetentionDays,
		UntaggedImageKeepCount: c.UntaggedImageKeepCount,
		ImageTag:               c.ImageTag,
		MemoryMB:               c.MemoryMB,
		TimeoutSeconds:         c.TimeoutSeconds,
		Port:                   c.Port,
		EnvironmentVariables:   c.EnvironmentVariables,
		GitHubRepository:       c.GitHubRepository,
		OIDCProviderRef:        c.OIDCProviderRef,
	}
}

// ValidationError is a file-position-aware parse or schema error.
type ValidationError struct {
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Path     string `json:"path,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// ParsedIntent is the result of loading an intent file.
type ParsedIntent struct {
	// SourceFile is the intent file path.
	SourceFile string `json:"source_file"`

	// ParsedAt is when the file was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Config is the decoded intent configuration. Meaningful only when
	// Errors is empty.
	Config IntentConfig `json:"config"`

	// Errors holds parse and schema errors.
	Errors []ValidationError `json:"errors,omitempty"`
}
