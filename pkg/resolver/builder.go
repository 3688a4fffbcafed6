package resolver

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Stable descriptor IDs. Other descriptors reference these; renaming one is
// a breaking change for any executor state keyed on them.
const (
	idRegistry          = "container-registry"
	idRegistryLifecycle = "registry-lifecycle"
	idExecRole          = "exec-role"
	idExecRolePolicy    = "exec-role-policy"
	idFunction          = "function"
	idEndpoint          = "endpoint"
	idURLInvoke         = "url-invoke"
	idLogSink           = "log-sink"
	idCdn               = "cdn"
	idCdnAccessControl  = "cdn-origin-access-control"
	idCdnServiceRole    = "cdn-service-role"
	idCdnInvoke         = "cdn-invoke"
	idIPAllowList       = "ip-allow-list"
	idWebAcl            = "web-acl"
	idCIDeployRole      = "ci-deploy-role"
	idCIDeployPolicy    = "ci-deploy-role-policy"
)

// Reserved environment keys the builder always injects. They take precedence
// over caller-supplied values on collision; the override is deliberate, not
// a merge error.
const (
	EnvKeyExecWrapper  = "AWS_LAMBDA_EXEC_WRAPPER"
	EnvKeyPort         = "PORT"
	EnvKeyOriginSecret = "ORIGIN_VERIFY_SECRET"

	execWrapperPath = "/opt/bootstrap"
)

// OriginVerifyHeader is the custom origin header carrying the shared secret
// under the shared-header verification scheme.
const OriginVerifyHeader = "x-origin-verify"

// Service principals used in trust roles and invoke permissions.
const (
	principalCompute = "compute"
	principalCdn     = "cdn"
	principalPublic  = "*"
)

// Builder expands a validated intent into the descriptor graph.
type Builder struct {
	logger zerolog.Logger
}

// NewBuilder creates a resource graph builder.
func NewBuilder(logger zerolog.Logger) *Builder {
	return &Builder{
		logger: logger.With().Str("component", "graph-builder").Logger(),
	}
}

// Build expands the intent into a ResolvedPlan. The intent must already be
// validated; the builder re-checks the cross-flag invariants defensively and
// reports an internal-consistency error, not a validation error, if they do
// not hold. secret must be present exactly when the intent uses the
// shared-header scheme.
func (b *Builder) Build(ctx context.Context, intent DeployIntent, secret *SharedSecret) (*ResolvedPlan, error) {
	if err := b.checkInvariants(intent, secret); err != nil {
		return nil, err
	}

	descriptors := b.baseDescriptors(intent, secret)

	if intent.EnableCloudFront {
		descriptors = append(descriptors, b.cdnDescriptors(intent, secret)...)
	}
	if intent.GitHubRepository != "" {
		descriptors = append(descriptors, b.ciDescriptors(intent)...)
	}

	graph, err := BuildGraph(descriptors)
	if err != nil {
		return nil, err
	}
	if !IsTopological(descriptors) {
		return nil, NewInternalError("descriptor sequence is not in dependency order", nil)
	}

	plan := &ResolvedPlan{
		ID:          uuid.New().String(),
		CreatedAt:   time.Now().UTC(),
		Intent:      intent,
		Descriptors: descriptors,
		Graph:       graph,
		Summary:     summarize(descriptors, secret != nil),
	}

	b.logger.Debug().
		Str("plan_id", plan.ID).
		Int("descriptors", len(descriptors)).
		Bool("cdn", intent.EnableCloudFront).
		Bool("waf", intent.EnableWAF).
		Str("auth_mode", string(intent.AuthMode())).
		Msg("Resolved plan built")

	return plan, nil
}

// checkInvariants guards against a caller that skipped Validate or wired the
// secret inconsistently. These are resolver bugs, not user errors.
func (b *Builder) checkInvariants(intent DeployIntent, secret *SharedSecret) error {
	if intent.UseIAMAuth && !intent.EnableCloudFront {
		return NewInternalError("builder received unvalidated intent: IAM auth without CDN", nil)
	}
	if intent.EnableWAF && !intent.EnableCloudFront {
		return NewInternalError("builder received unvalidated intent: WAF without CDN", nil)
	}
	if _, ok := retentionDaysAllowed[intent.RetentionDays]; !ok {
		return NewInternalError(
			fmt.Sprintf("builder received unvalidated intent: retention %d days", intent.RetentionDays), nil)
	}
	if intent.NeedsSharedSecret() != (secret != nil) {
		return NewInternalError("shared secret presence does not match the origin verification scheme", nil)
	}
	return nil
}

// baseDescriptors emits the always-present core: registry, lifecycle policy,
// execution trust role and its policy, the function, its endpoint, the
// public invoke grant, and the log sink.
func (b *Builder) baseDescriptors(intent DeployIntent, secret *SharedSecret) []Descriptor {
	name := intent.AppName

	descriptors := []Descriptor{
		{
			ID:   idRegistry,
			Kind: KindContainerRegistry,
			Name: name,
			Properties: ContainerRegistryProps{
				ImageTagMutability: "MUTABLE",
				ScanOnPush:         true,
			},
		},
		{
			ID:        idRegistryLifecycle,
			Kind:      KindRegistryLifecyclePolicy,
			Name:      name + "-lifecycle",
			DependsOn: []string{idRegistry},
			Properties: RegistryLifecyclePolicyProps{
				RegistryRef: idRegistry,
				Rules:       CompileLifecycleRules(intent.UntaggedImageKeepCount),
			},
		},
		{
			ID:   idExecRole,
			Kind: KindTrustRole,
			Name: name + "-exec",
			Properties: TrustRoleProps{
				AssumeService: principalCompute,
			},
		},
		{
			ID:        idExecRolePolicy,
			Kind:      KindRolePolicy,
			Name:      name + "-exec-logs",
			DependsOn: []string{idExecRole},
			Properties: RolePolicyProps{
				RoleRef: idExecRole,
				Statements: []PolicyStatement{{
					Effect:    "Allow",
					Actions:   []string{"logs:CreateLogStream", "logs:PutLogEvents"},
					Resources: []string{"*"},
				}},
			},
		},
		b.functionDescriptor(intent, secret),
		{
			ID:        idEndpoint,
			Kind:      KindFunctionEndpoint,
			Name:      name + "-url",
			DependsOn: []string{idFunction},
			Properties: FunctionEndpointProps{
				FunctionRef: idFunction,
				AuthMode:    intent.AuthMode(),
			},
		},
		{
			ID:        idURLInvoke,
			Kind:      KindInvokePermission,
			Name:      name + "-url-invoke",
			DependsOn: []string{idEndpoint},
			Properties: InvokePermissionProps{
				FunctionRef: idFunction,
				Principal:   principalPublic,
				AuthMode:    intent.AuthMode(),
			},
		},
		{
			ID:        idLogSink,
			Kind:      KindLogSink,
			Name:      "/app/" + name,
			DependsOn: []string{idFunction},
			Properties: LogSinkProps{
				FunctionRef:   idFunction,
				RetentionDays: intent.RetentionDays,
			},
		},
	}

	return descriptors
}

// functionDescriptor merges the caller environment with the reserved keys
// and, under the shared-header scheme, the origin verification secret. The
// merge is an explicit two-step overlay: the caller map is copied, never
// mutated.
func (b *Builder) functionDescriptor(intent DeployIntent, secret *SharedSecret) Descriptor {
	env := make(map[string]string, len(intent.EnvironmentVariables)+3)
	for k, v := range intent.EnvironmentVariables {
		env[k] = v
	}
	env[EnvKeyExecWrapper] = execWrapperPath
	env[EnvKeyPort] = strconv.Itoa(intent.Port)

	var sensitive []string
	if secret != nil {
		env[EnvKeyOriginSecret] = secret.Value()
		sensitive = []string{"environment." + EnvKeyOriginSecret}
	}

	return Descriptor{
		ID:        idFunction,
		Kind:      KindComputeFunction,
		Name:      intent.AppName,
		DependsOn: []string{idRegistry, idExecRole},
		Properties: ComputeFunctionProps{
			RegistryRef:    idRegistry,
			ImageTag:       intent.ImageTag,
			RoleRef:        idExecRole,
			MemoryMB:       intent.MemoryMB,
			TimeoutSeconds: intent.TimeoutSeconds,
			Environment:    env,
		},
		SensitivePaths: sensitive,
	}
}

// cdnDescriptors emits the distribution and its origin verification wiring:
// either the signed-request set (origin access control, CDN service trust
// role, distribution-scoped invoke grant) or the shared-header secret.
func (b *Builder) cdnDescriptors(intent DeployIntent, secret *SharedSecret) []Descriptor {
	name := intent.AppName
	var descriptors []Descriptor

	cdnDeps := []string{idEndpoint}
	cdn := CdnProps{OriginRef: idEndpoint}

	if intent.UseIAMAuth {
		descriptors = append(descriptors, Descriptor{
			ID:   idCdnAccessControl,
			Kind: KindCdnOriginAccessControl,
			Name: name + "-oac",
			Properties: CdnOriginAccessControlProps{
				SigningBehavior: "always",
				SigningProtocol: "sigv4",
			},
		})
		cdn.Scheme = SchemeSignedRequest
		cdn.AccessControlRef = idCdnAccessControl
		cdnDeps = append(cdnDeps, idCdnAccessControl)
	} else {
		cdn.Scheme = SchemeSharedHeader
		cdn.CustomHeaders = map[string]string{OriginVerifyHeader: secret.Value()}
	}

	if intent.EnableWAF {
		descriptors = append(descriptors,
			Descriptor{
				ID:   idIPAllowList,
				Kind: KindIpAllowList,
				Name: name + "-allowed-ips",
				Properties: IpAllowListProps{
					CIDRs: unionCIDRs(intent.AllowedIPCIDRs, intent.GitHubIPCIDRs),
				},
			},
			Descriptor{
				ID:        idWebAcl,
				Kind:      KindWebAcl,
				Name:      name + "-waf",
				DependsOn: []string{idIPAllowList},
				Properties: WebAclProps{
					DefaultAction: "block",
					RuleName:      "allow-listed-ips",
					AllowListRef:  idIPAllowList,
				},
			},
		)
		cdn.WebAclRef = idWebAcl
		cdnDeps = append(cdnDeps, idWebAcl)
	}

	cdnDescriptor := Descriptor{
		ID:         idCdn,
		Kind:       KindCdn,
		Name:       name + "-cdn",
		DependsOn:  cdnDeps,
		Properties: cdn,
	}
	if cdn.Scheme == SchemeSharedHeader {
		cdnDescriptor.SensitivePaths = []string{"custom_headers." + OriginVerifyHeader}
	}
	descriptors = append(descriptors, cdnDescriptor)

	if !intent.UseIAMAuth {
		return descriptors
	}

	descriptors = append(descriptors,
		Descriptor{
			ID:   idCdnServiceRole,
			Kind: KindTrustRole,
			Name: name + "-cdn-invoke-role",
			Properties: TrustRoleProps{
				AssumeService: principalCdn,
			},
		},
		Descriptor{
			ID:        idCdnInvoke,
			Kind:      KindInvokePermission,
			Name:      name + "-cdn-invoke",
			DependsOn: []string{idEndpoint, idCdn, idCdnServiceRole},
			Properties: InvokePermissionProps{
				FunctionRef: idFunction,
				Principal:   principalCdn,
				SourceRef:   idCdn,
				AuthMode:    AuthModeIAM,
			},
		},
	)

	return descriptors
}

// ciDescriptors emits the CI deploy trust role federated to the OIDC
// provider, plus the policy granting registry push and function update.
func (b *Builder) ciDescriptors(intent DeployIntent) []Descriptor {
	name := intent.AppName
	return []Descriptor{
		{
			ID:   idCIDeployRole,
			Kind: KindTrustRole,
			Name: name + "-ci-deploy",
			Properties: TrustRoleProps{
				Federated: &FederatedTrust{
					ProviderRef:    intent.OIDCProviderRef,
					SubjectPattern: "repo:" + intent.GitHubRepository + ":*",
				},
			},
		},
		{
			ID:        idCIDeployPolicy,
			Kind:      KindRolePolicy,
			Name:      name + "-ci-deploy-policy",
			DependsOn: []string{idCIDeployRole, idRegistry, idFunction},
			Properties: RolePolicyProps{
				RoleRef: idCIDeployRole,
				Statements: []PolicyStatement{
					{
						Effect:    "Allow",
						Actions:   []string{"registry:Push", "registry:Pull", "registry:GetAuthorizationToken"},
						Resources: []string{"ref:" + idRegistry},
					},
					{
						Effect:    "Allow",
						Actions:   []string{"function:UpdateCode", "function:GetConfiguration"},
						Resources: []string{"ref:" + idFunction},
					},
				},
			},
		},
	}
}

// unionCIDRs returns the sorted set union of both CIDR lists, duplicates
// collapsed.
func unionCIDRs(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, c := range a {
		set[c] = struct{}{}
	}
	for _, c := range b {
		set[c] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
