package resolver

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the resource type a descriptor represents.
type Kind string

const (
	KindContainerRegistry       Kind = "container_registry"
	KindRegistryLifecyclePolicy Kind = "registry_lifecycle_policy"
	KindComputeFunction         Kind = "compute_function"
	KindFunctionEndpoint        Kind = "function_endpoint"
	KindCdn                     Kind = "cdn"
	KindCdnOriginAccessControl  Kind = "cdn_origin_access_control"
	KindWebAcl                  Kind = "web_acl"
	KindIpAllowList             Kind = "ip_allow_list"
	KindInvokePermission        Kind = "invoke_permission"
	KindTrustRole               Kind = "trust_role"
	KindRolePolicy              Kind = "role_policy"
	KindLogSink                 Kind = "log_sink"
)

// Descriptor is a typed, named node in the resolved plan representing one
// infrastructure resource. References to other descriptors are expressed as
// DependsOn edges plus typed *Ref properties; the result is a DAG, never a
// cycle, since the CDN always depends on the compute endpoint and not vice
// versa.
type Descriptor struct {
	// ID is the stable identifier other descriptors reference.
	ID string `json:"id"`

	// Kind is the resource type.
	Kind Kind `json:"kind"`

	// Name is the cloud-side resource name, derived from the intent's app
	// name.
	Name string `json:"name"`

	// DependsOn lists descriptor IDs that must exist before this one.
	DependsOn []string `json:"depends_on,omitempty"`

	// Properties is the kind-specific property bag. Each kind has one total
	// struct; conditional composition adds or omits whole descriptors rather
	// than leaving optional fields half-filled.
	Properties Properties `json:"properties"`

	// SensitivePaths are dot paths into Properties whose values must be
	// redacted from any human-readable rendering.
	SensitivePaths []string `json:"sensitive_paths,omitempty"`
}

// Properties is implemented by each kind's property struct.
type Properties interface {
	// PropKind returns the descriptor kind the struct belongs to.
	PropKind() Kind
}

// ContainerRegistryProps describe the image registry repository.
type ContainerRegistryProps struct {
	// ImageTagMutability allows CI to re-push the floating "latest" tag.
	ImageTagMutability string `json:"image_tag_mutability"`

	// ScanOnPush enables vulnerability scanning on image push.
	ScanOnPush bool `json:"scan_on_push"`
}

func (ContainerRegistryProps) PropKind() Kind { return KindContainerRegistry }

// RegistryLifecyclePolicyProps carry the compiled expiration rules.
type RegistryLifecyclePolicyProps struct {
	// RegistryRef is the registry descriptor the policy attaches to.
	RegistryRef string `json:"registry_ref"`

	// Rules are applied by the executor in ascending priority order with
	// first-match semantics.
	Rules []LifecycleRule `json:"rules"`
}

func (RegistryLifecyclePolicyProps) PropKind() Kind { return KindRegistryLifecyclePolicy }

// FederatedTrust scopes a trust role to a CI OIDC identity.
type FederatedTrust struct {
	// ProviderRef identifies the OIDC identity provider.
	ProviderRef string `json:"provider_ref"`

	// SubjectPattern restricts which repository identities may assume the
	// role (e.g. "repo:owner/name:*").
	SubjectPattern string `json:"subject_pattern"`
}

// TrustRoleProps describe an assumable role. Exactly one of AssumeService
// and Federated is populated; the builder emits separate descriptors for the
// service-assumed and federated variants.
type TrustRoleProps struct {
	// AssumeService is the service principal allowed to assume the role
	// ("compute" for the execution role, "cdn" for distribution invokes).
	AssumeService string `json:"assume_service,omitempty"`

	// Federated is set for CI deploy roles assumed via OIDC.
	Federated *FederatedTrust `json:"federated,omitempty"`
}

func (TrustRoleProps) PropKind() Kind { return KindTrustRole }

// PolicyStatement is one grant inside a role policy.
type PolicyStatement struct {
	Effect    string   `json:"effect"`
	Actions   []string `json:"actions"`
	Resources []string `json:"resources"`
}

// RolePolicyProps attach permission statements to a trust role.
type RolePolicyProps struct {
	// RoleRef is the trust role descriptor the policy attaches to.
	RoleRef string `json:"role_ref"`

	// Statements are the granted permissions.
	Statements []PolicyStatement `json:"statements"`
}

func (RolePolicyProps) PropKind() Kind { return KindRolePolicy }

// ComputeFunctionProps describe the container-backed compute function.
type ComputeFunctionProps struct {
	// RegistryRef is the registry descriptor the image is pulled from.
	RegistryRef string `json:"registry_ref"`

	// ImageTag selects the image within the registry.
	ImageTag string `json:"image_tag"`

	// RoleRef is the execution trust role descriptor.
	RoleRef string `json:"role_ref"`

	MemoryMB       int `json:"memory_mb"`
	TimeoutSeconds int `json:"timeout_seconds"`

	// Environment is the merged environment: caller variables overlaid with
	// the reserved keys the builder always injects.
	Environment map[string]string `json:"environment"`
}

func (ComputeFunctionProps) PropKind() Kind { return KindComputeFunction }

// FunctionEndpointProps describe the HTTPS endpoint in front of the function.
type FunctionEndpointProps struct {
	// FunctionRef is the compute function descriptor.
	FunctionRef string `json:"function_ref"`

	// AuthMode is IAM when the CDN signs origin requests, NONE otherwise.
	AuthMode AuthMode `json:"auth_mode"`
}

func (FunctionEndpointProps) PropKind() Kind { return KindFunctionEndpoint }

// InvokePermissionProps grant a principal the right to invoke the endpoint.
type InvokePermissionProps struct {
	// FunctionRef is the compute function descriptor.
	FunctionRef string `json:"function_ref"`

	// Principal is "*" for the public endpoint grant or the CDN service
	// principal for distribution-scoped invokes.
	Principal string `json:"principal"`

	// SourceRef scopes the grant to a descriptor (the CDN distribution);
	// empty for the public grant.
	SourceRef string `json:"source_ref,omitempty"`

	// AuthMode mirrors the endpoint auth mode the grant applies to.
	AuthMode AuthMode `json:"auth_mode"`
}

func (InvokePermissionProps) PropKind() Kind { return KindInvokePermission }

// OriginVerificationScheme is how the endpoint confirms a request arrived
// via the CDN rather than directly.
type OriginVerificationScheme string

const (
	// SchemeSharedHeader carries a generated secret in a custom origin
	// header; the application compares it against its environment.
	SchemeSharedHeader OriginVerificationScheme = "shared_header"

	// SchemeSignedRequest signs origin requests via an origin access
	// control; no shared secret exists.
	SchemeSignedRequest OriginVerificationScheme = "signed_request"
)

// CdnProps describe the distribution fronting the endpoint.
type CdnProps struct {
	// OriginRef is the function endpoint descriptor used as origin.
	OriginRef string `json:"origin_ref"`

	// Scheme selects the origin verification mechanism.
	Scheme OriginVerificationScheme `json:"scheme"`

	// CustomHeaders are attached to origin requests. Populated only under
	// the shared-header scheme; carries the secret value.
	CustomHeaders map[string]string `json:"custom_headers,omitempty"`

	// AccessControlRef is the origin access control descriptor. Populated
	// only under the signed-request scheme.
	AccessControlRef string `json:"access_control_ref,omitempty"`

	// WebAclRef attaches a web ACL; empty when WAF is disabled.
	WebAclRef string `json:"web_acl_ref,omitempty"`
}

func (CdnProps) PropKind() Kind { return KindCdn }

// CdnOriginAccessControlProps configure origin request signing.
type CdnOriginAccessControlProps struct {
	// SigningBehavior is "always": every origin request is signed.
	SigningBehavior string `json:"signing_behavior"`

	// SigningProtocol is the signature scheme ("sigv4").
	SigningProtocol string `json:"signing_protocol"`
}

func (CdnOriginAccessControlProps) PropKind() Kind { return KindCdnOriginAccessControl }

// WebAclProps describe the web ACL with its single allow rule.
type WebAclProps struct {
	// DefaultAction is "block": anything not matching the allow rule is
	// rejected.
	DefaultAction string `json:"default_action"`

	// RuleName names the allow rule.
	RuleName string `json:"rule_name"`

	// AllowListRef is the IP allow-list descriptor the rule references.
	AllowListRef string `json:"allow_list_ref"`
}

func (WebAclProps) PropKind() Kind { return KindWebAcl }

// IpAllowListProps carry the deduplicated CIDR set admitted by the web ACL.
type IpAllowListProps struct {
	// CIDRs is the sorted union of caller CIDRs and the service reference
	// list.
	CIDRs []string `json:"cidrs"`
}

func (IpAllowListProps) PropKind() Kind { return KindIpAllowList }

// LogSinkProps describe the function's log group.
type LogSinkProps struct {
	// FunctionRef is the compute function descriptor the sink captures.
	FunctionRef string `json:"function_ref"`

	// RetentionDays is the validated retention window.
	RetentionDays int `json:"retention_days"`
}

func (LogSinkProps) PropKind() Kind { return KindLogSink }

// descriptorJSON is the wire form of Descriptor.
type descriptorJSON struct {
	ID             string          `json:"id"`
	Kind           Kind            `json:"kind"`
	Name           string          `json:"name"`
	DependsOn      []string        `json:"depends_on,omitempty"`
	Properties     json.RawMessage `json:"properties"`
	SensitivePaths []string        `json:"sensitive_paths,omitempty"`
}

// MarshalJSON emits the kind-tagged wire form.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	if d.Properties == nil {
		return nil, fmt.Errorf("descriptor %s has no properties", d.ID)
	}
	if d.Properties.PropKind() != d.Kind {
		return nil, fmt.Errorf("descriptor %s kind %s does not match properties kind %s",
			d.ID, d.Kind, d.Properties.PropKind())
	}
	props, err := json.Marshal(d.Properties)
	if err != nil {
		return nil, err
	}
	return json.Marshal(descriptorJSON{
		ID:             d.ID,
		Kind:           d.Kind,
		Name:           d.Name,
		DependsOn:      d.DependsOn,
		Properties:     props,
		SensitivePaths: d.SensitivePaths,
	})
}

// UnmarshalJSON decodes the kind-tagged wire form back into the typed
// property struct for the descriptor's kind.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var wire descriptorJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	props, err := newProperties(wire.Kind)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(wire.Properties, props); err != nil {
		return fmt.Errorf("descriptor %s: %w", wire.ID, err)
	}

	d.ID = wire.ID
	d.Kind = wire.Kind
	d.Name = wire.Name
	d.DependsOn = wire.DependsOn
	d.SensitivePaths = wire.SensitivePaths
	d.Properties = deref(props)
	return nil
}

// newProperties returns a pointer to the zero property struct for a kind.
func newProperties(kind Kind) (Properties, error) {
	switch kind {
	case KindContainerRegistry:
		return &ContainerRegistryProps{}, nil
	case KindRegistryLifecyclePolicy:
		return &RegistryLifecyclePolicyProps{}, nil
	case KindComputeFunction:
		return &ComputeFunctionProps{}, nil
	case KindFunctionEndpoint:
		return &FunctionEndpointProps{}, nil
	case KindCdn:
		return &CdnProps{}, nil
	case KindCdnOriginAccessControl:
		return &CdnOriginAccessControlProps{}, nil
	case KindWebAcl:
		return &WebAclProps{}, nil
	case KindIpAllowList:
		return &IpAllowListProps{}, nil
	case KindInvokePermission:
		return &InvokePermissionProps{}, nil
	case KindTrustRole:
		return &TrustRoleProps{}, nil
	case KindRolePolicy:
		return &RolePolicyProps{}, nil
	case KindLogSink:
		return &LogSinkProps{}, nil
	default:
		return nil, fmt.Errorf("unknown descriptor kind %q", kind)
	}
}

// deref converts the decoded pointer back to the value form descriptors
// carry.
func deref(p Properties) Properties {
	switch v := p.(type) {
	case *ContainerRegistryProps:
		return *v
	case *RegistryLifecyclePolicyProps:
		return *v
	case *ComputeFunctionProps:
		return *v
	case *FunctionEndpointProps:
		return *v
	case *CdnProps:
		return *v
	case *CdnOriginAccessControlProps:
		return *v
	case *WebAclProps:
		return *v
	case *IpAllowListProps:
		return *v
	case *InvokePermissionProps:
		return *v
	case *TrustRoleProps:
		return *v
	case *RolePolicyProps:
		return *v
	case *LogSinkProps:
		return *v
	default:
		return p
	}
}
