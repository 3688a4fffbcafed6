package resolver

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func buildPlan(t *testing.T, intent DeployIntent) *ResolvedPlan {
	t.Helper()

	intent = intent.ApplyDefaults()
	if err := Validate(intent); err != nil {
		t.Fatalf("Test intent failed validation: %v", err)
	}
	secret, err := GenerateSecretMaterial(intent)
	if err != nil {
		t.Fatalf("Secret generation failed: %v", err)
	}

	plan, err := NewBuilder(zerolog.Nop()).Build(context.Background(), intent, secret)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return plan
}

func TestBuilder_BaselinePlan(t *testing.T) {
	plan := buildPlan(t, validIntent())

	if len(plan.Descriptors) != 8 {
		t.Fatalf("Expected 8 descriptors in the baseline plan, got %d", len(plan.Descriptors))
	}
	if plan.Summary.SecretGenerated {
		t.Error("Baseline plan must not generate a secret")
	}

	wantKinds := map[Kind]int{
		KindContainerRegistry:       1,
		KindRegistryLifecyclePolicy: 1,
		KindTrustRole:               1,
		KindRolePolicy:              1,
		KindComputeFunction:         1,
		KindFunctionEndpoint:        1,
		KindInvokePermission:        1,
		KindLogSink:                 1,
	}
	for kind, want := range wantKinds {
		if got := plan.Summary.ByKind[kind]; got != want {
			t.Errorf("Expected %d %s descriptors, got %d", want, kind, got)
		}
	}
	for _, absent := range []Kind{KindCdn, KindWebAcl, KindIpAllowList, KindCdnOriginAccessControl} {
		if plan.HasKind(absent) {
			t.Errorf("Baseline plan must not contain %s", absent)
		}
	}

	endpoint := plan.Descriptor(idEndpoint)
	if endpoint == nil {
		t.Fatal("Missing endpoint descriptor")
	}
	if props := endpoint.Properties.(FunctionEndpointProps); props.AuthMode != AuthModeNone {
		t.Errorf("Expected endpoint auth %s, got %s", AuthModeNone, props.AuthMode)
	}

	invoke := plan.Descriptor(idURLInvoke)
	if props := invoke.Properties.(InvokePermissionProps); props.Principal != principalPublic {
		t.Errorf("Expected public invoke principal, got %q", props.Principal)
	}
}

func TestBuilder_DependencyOrder(t *testing.T) {
	intent := validIntent()
	intent.EnableCloudFront = true
	intent.EnableWAF = true
	intent.GitHubRepository = "acme/metrics-dashboard"

	plan := buildPlan(t, intent)

	if !IsTopological(plan.Descriptors) {
		t.Error("Descriptor sequence violates dependency order")
	}
	if plan.Graph == nil {
		t.Fatal("Expected plan graph")
	}
	if len(plan.Graph.Nodes) != len(plan.Descriptors) {
		t.Errorf("Graph has %d nodes for %d descriptors",
			len(plan.Graph.Nodes), len(plan.Descriptors))
	}
}

func TestBuilder_FunctionEnvironment(t *testing.T) {
	intent := validIntent()
	intent.Port = 3000
	intent.EnvironmentVariables = map[string]string{
		"APP_MODE": "production",
		"PORT":     "9999", // reserved key, must lose
	}

	plan := buildPlan(t, intent)

	fn := plan.Descriptor(idFunction)
	env := fn.Properties.(ComputeFunctionProps).Environment

	if env[EnvKeyExecWrapper] != execWrapperPath {
		t.Errorf("Expected exec wrapper %q, got %q", execWrapperPath, env[EnvKeyExecWrapper])
	}
	if env[EnvKeyPort] != "3000" {
		t.Errorf("Reserved PORT must win on collision, got %q", env[EnvKeyPort])
	}
	if env["APP_MODE"] != "production" {
		t.Errorf("Caller variable lost: %q", env["APP_MODE"])
	}
	if _, ok := env[EnvKeyOriginSecret]; ok {
		t.Error("Origin secret injected without the shared-header scheme")
	}

	// The caller's map must not have been mutated.
	if intent.EnvironmentVariables["PORT"] != "9999" {
		t.Error("Builder mutated the caller environment map")
	}
}

func TestBuilder_SharedHeaderScheme(t *testing.T) {
	intent := validIntent()
	intent.EnableCloudFront = true

	plan := buildPlan(t, intent)

	if !plan.Summary.SecretGenerated {
		t.Error("Expected a generated secret under the shared-header scheme")
	}

	cdn := plan.Descriptor(idCdn)
	if cdn == nil {
		t.Fatal("Missing CDN descriptor")
	}
	props := cdn.Properties.(CdnProps)
	if props.Scheme != SchemeSharedHeader {
		t.Errorf("Expected scheme %s, got %s", SchemeSharedHeader, props.Scheme)
	}
	headerValue := props.CustomHeaders[OriginVerifyHeader]
	if headerValue == "" {
		t.Fatal("Missing origin verification header")
	}
	if props.AccessControlRef != "" {
		t.Error("Shared-header scheme must not reference an origin access control")
	}

	fn := plan.Descriptor(idFunction)
	envValue := fn.Properties.(ComputeFunctionProps).Environment[EnvKeyOriginSecret]
	if envValue != headerValue {
		t.Error("Header and environment carry different secret material")
	}

	if len(cdn.SensitivePaths) == 0 || len(fn.SensitivePaths) == 0 {
		t.Error("Secret-carrying descriptors must declare sensitive paths")
	}

	for _, absent := range []Kind{KindCdnOriginAccessControl, KindWebAcl, KindIpAllowList} {
		if plan.HasKind(absent) {
			t.Errorf("Plan must not contain %s", absent)
		}
	}

	endpoint := plan.Descriptor(idEndpoint)
	if got := endpoint.Properties.(FunctionEndpointProps).AuthMode; got != AuthModeNone {
		t.Errorf("Expected endpoint auth %s, got %s", AuthModeNone, got)
	}
}

func TestBuilder_SignedRequestScheme(t *testing.T) {
	intent := validIntent()
	intent.EnableCloudFront = true
	intent.UseIAMAuth = true

	plan := buildPlan(t, intent)

	if plan.Summary.SecretGenerated {
		t.Error("Signed-request scheme must not generate a secret")
	}

	cdn := plan.Descriptor(idCdn)
	props := cdn.Properties.(CdnProps)
	if props.Scheme != SchemeSignedRequest {
		t.Errorf("Expected scheme %s, got %s", SchemeSignedRequest, props.Scheme)
	}
	if props.AccessControlRef != idCdnAccessControl {
		t.Errorf("Expected access control ref %q, got %q", idCdnAccessControl, props.AccessControlRef)
	}
	if len(props.CustomHeaders) != 0 {
		t.Error("Signed-request scheme must not carry custom headers")
	}
	if len(cdn.SensitivePaths) != 0 {
		t.Errorf("No sensitive paths expected, got %v", cdn.SensitivePaths)
	}

	oac := plan.Descriptor(idCdnAccessControl)
	if oac == nil {
		t.Fatal("Missing origin access control descriptor")
	}
	oacProps := oac.Properties.(CdnOriginAccessControlProps)
	if oacProps.SigningBehavior != "always" || oacProps.SigningProtocol != "sigv4" {
		t.Errorf("Unexpected signing config: %+v", oacProps)
	}

	fn := plan.Descriptor(idFunction)
	if _, ok := fn.Properties.(ComputeFunctionProps).Environment[EnvKeyOriginSecret]; ok {
		t.Error("Origin secret injected under the signed-request scheme")
	}

	endpoint := plan.Descriptor(idEndpoint)
	if got := endpoint.Properties.(FunctionEndpointProps).AuthMode; got != AuthModeIAM {
		t.Errorf("Expected endpoint auth %s, got %s", AuthModeIAM, got)
	}

	cdnInvoke := plan.Descriptor(idCdnInvoke)
	if cdnInvoke == nil {
		t.Fatal("Missing CDN invoke permission")
	}
	invokeProps := cdnInvoke.Properties.(InvokePermissionProps)
	if invokeProps.Principal != principalCdn || invokeProps.SourceRef != idCdn {
		t.Errorf("Unexpected CDN invoke grant: %+v", invokeProps)
	}
}

func TestBuilder_WebACLAllowList(t *testing.T) {
	intent := validIntent()
	intent.EnableCloudFront = true
	intent.EnableWAF = true
	intent.AllowedIPCIDRs = []string{"203.0.113.0/24", "192.30.252.0/22"} // second duplicates a service range

	plan := buildPlan(t, intent)

	allowList := plan.Descriptor(idIPAllowList)
	if allowList == nil {
		t.Fatal("Missing IP allow-list descriptor")
	}
	cidrs := allowList.Properties.(IpAllowListProps).CIDRs

	// 17 service ranges plus one caller range; the duplicate collapses.
	if len(cidrs) != 18 {
		t.Errorf("Expected 18 CIDRs after union, got %d", len(cidrs))
	}
	seen := make(map[string]bool)
	for _, c := range cidrs {
		if seen[c] {
			t.Errorf("Duplicate CIDR %q survived the union", c)
		}
		seen[c] = true
	}
	if !seen["203.0.113.0/24"] {
		t.Error("Caller CIDR missing from the allow-list")
	}

	acl := plan.Descriptor(idWebAcl)
	aclProps := acl.Properties.(WebAclProps)
	if aclProps.DefaultAction != "block" {
		t.Errorf("Expected default action block, got %q", aclProps.DefaultAction)
	}
	if aclProps.AllowListRef != idIPAllowList {
		t.Errorf("Expected allow-list ref %q, got %q", idIPAllowList, aclProps.AllowListRef)
	}

	cdn := plan.Descriptor(idCdn)
	if got := cdn.Properties.(CdnProps).WebAclRef; got != idWebAcl {
		t.Errorf("Expected CDN web ACL ref %q, got %q", idWebAcl, got)
	}
}

func TestBuilder_FullStackPlan(t *testing.T) {
	intent := validIntent()
	intent.EnableCloudFront = true
	intent.EnableWAF = true
	intent.UseIAMAuth = true
	intent.AllowedIPCIDRs = []string{"203.0.113.0/24"}
	intent.RetentionDays = 90
	intent.UntaggedImageKeepCount = 5

	plan := buildPlan(t, intent)

	// Baseline plus CDN, origin access control, CDN service role, CDN
	// invoke grant, web ACL and IP allow-list.
	if len(plan.Descriptors) != 14 {
		t.Fatalf("Expected 14 descriptors, got %d", len(plan.Descriptors))
	}
	if plan.Summary.SecretGenerated {
		t.Error("Signed-request scheme must not generate a secret")
	}
	if !IsTopological(plan.Descriptors) {
		t.Error("Descriptor sequence violates dependency order")
	}

	for _, present := range []Kind{KindCdn, KindCdnOriginAccessControl, KindWebAcl, KindIpAllowList} {
		if !plan.HasKind(present) {
			t.Errorf("Plan is missing %s", present)
		}
	}

	cdn := plan.Descriptor(idCdn)
	props := cdn.Properties.(CdnProps)
	if props.Scheme != SchemeSignedRequest {
		t.Errorf("Expected scheme %s, got %s", SchemeSignedRequest, props.Scheme)
	}
	if len(props.CustomHeaders) != 0 || len(cdn.SensitivePaths) != 0 {
		t.Error("IAM-fronted CDN must not carry secret material")
	}
	if props.WebAclRef != idWebAcl {
		t.Errorf("Expected CDN web ACL ref %q, got %q", idWebAcl, props.WebAclRef)
	}

	allowList := plan.Descriptor(idIPAllowList)
	if got := len(allowList.Properties.(IpAllowListProps).CIDRs); got != 18 {
		t.Errorf("Expected 18 CIDRs after union, got %d", got)
	}

	endpoint := plan.Descriptor(idEndpoint)
	if got := endpoint.Properties.(FunctionEndpointProps).AuthMode; got != AuthModeIAM {
		t.Errorf("Expected endpoint auth %s, got %s", AuthModeIAM, got)
	}

	role := plan.Descriptor(idCdnServiceRole)
	if role == nil {
		t.Fatal("Missing CDN service role")
	}
	grant := plan.Descriptor(idCdnInvoke)
	if role.Name == grant.Name {
		t.Errorf("Role and invoke grant share the name %q", role.Name)
	}

	sink := plan.Descriptor(idLogSink)
	if got := sink.Properties.(LogSinkProps).RetentionDays; got != 90 {
		t.Errorf("Expected retention 90, got %d", got)
	}
}

func TestBuilder_CIDeployRole(t *testing.T) {
	intent := validIntent()
	intent.GitHubRepository = "acme/metrics-dashboard"

	plan := buildPlan(t, intent)

	// Baseline plus the deploy role and its policy.
	if len(plan.Descriptors) != 10 {
		t.Fatalf("Expected 10 descriptors, got %d", len(plan.Descriptors))
	}

	role := plan.Descriptor(idCIDeployRole)
	if role == nil {
		t.Fatal("Missing CI deploy role")
	}
	trust := role.Properties.(TrustRoleProps)
	if trust.Federated == nil {
		t.Fatal("Expected federated trust")
	}
	if trust.Federated.SubjectPattern != "repo:acme/metrics-dashboard:*" {
		t.Errorf("Unexpected subject pattern %q", trust.Federated.SubjectPattern)
	}
	if trust.Federated.ProviderRef != DefaultOIDCProviderRef {
		t.Errorf("Expected provider ref %q, got %q", DefaultOIDCProviderRef, trust.Federated.ProviderRef)
	}

	policy := plan.Descriptor(idCIDeployPolicy)
	if policy == nil {
		t.Fatal("Missing CI deploy policy")
	}
	if got := policy.Properties.(RolePolicyProps).RoleRef; got != idCIDeployRole {
		t.Errorf("Expected role ref %q, got %q", idCIDeployRole, got)
	}
}

func TestBuilder_LogSinkRetention(t *testing.T) {
	intent := validIntent()
	intent.RetentionDays = 90

	plan := buildPlan(t, intent)

	sink := plan.Descriptor(idLogSink)
	if sink == nil {
		t.Fatal("Missing log sink descriptor")
	}
	if sink.Name != "/app/metrics-dashboard" {
		t.Errorf("Unexpected sink name %q", sink.Name)
	}
	if got := sink.Properties.(LogSinkProps).RetentionDays; got != 90 {
		t.Errorf("Expected retention 90, got %d", got)
	}
}

func TestBuilder_RejectsInconsistentInput(t *testing.T) {
	builder := NewBuilder(zerolog.Nop())
	ctx := context.Background()

	unvalidated := validIntent()
	unvalidated.UseIAMAuth = true // without CDN
	if _, err := builder.Build(ctx, unvalidated, nil); err == nil {
		t.Error("Expected error for unvalidated intent")
	} else if !IsInternal(err) {
		t.Errorf("Expected internal-class error, got: %v", err)
	}

	needsSecret := validIntent()
	needsSecret.EnableCloudFront = true
	if _, err := builder.Build(ctx, needsSecret, nil); err == nil {
		t.Error("Expected error for missing secret under the shared-header scheme")
	}

	noSecret := validIntent()
	secret, err := GenerateSecretMaterial(DeployIntent{EnableCloudFront: true})
	if err != nil {
		t.Fatalf("Secret generation failed: %v", err)
	}
	if _, err := builder.Build(ctx, noSecret, secret); err == nil {
		t.Error("Expected error for a secret outside the shared-header scheme")
	}
}

func TestBuilder_PlanIdentityUniquePerResolution(t *testing.T) {
	a := buildPlan(t, validIntent())
	b := buildPlan(t, validIntent())

	if a.ID == b.ID {
		t.Error("Two resolutions shared a plan ID")
	}
}
