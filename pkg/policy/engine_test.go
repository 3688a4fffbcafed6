package policy

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfacade/openfacade/pkg/resolver"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return e
}

func resolvePlan(t *testing.T, intent resolver.DeployIntent) *resolver.ResolvedPlan {
	t.Helper()
	plan, err := resolver.New(zerolog.Nop()).Resolve(context.Background(), intent)
	if err != nil {
		t.Fatalf("Resolution failed: %v", err)
	}
	return plan
}

func findViolation(result *Result, policy string) *Violation {
	for i := range result.Violations {
		if result.Violations[i].Policy == policy {
			return &result.Violations[i]
		}
	}
	return nil
}

func TestEngine_BuiltinPoliciesCompile(t *testing.T) {
	e := newTestEngine(t)

	policies := e.ListPolicies()
	if len(policies) != len(GetBuiltinPolicies()) {
		t.Errorf("Expected %d built-in policies, got %d", len(GetBuiltinPolicies()), len(policies))
	}
}

func TestEngine_PublicEndpointWarning(t *testing.T) {
	e := newTestEngine(t)

	plan := resolvePlan(t, resolver.DeployIntent{AppName: "bare-service"})
	result, err := e.EvaluatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	v := findViolation(result, "public-endpoint")
	if v == nil {
		t.Fatal("Expected a public-endpoint finding for a bare deployment")
	}
	if v.Severity != SeverityWarning {
		t.Errorf("Expected warning severity, got %s", v.Severity)
	}
	if !result.Allowed {
		t.Error("Warnings must not block the plan")
	}

	// Fronting the endpoint with a CDN clears the finding.
	fronted := resolvePlan(t, resolver.DeployIntent{
		AppName:          "fronted-service",
		EnableCloudFront: true,
	})
	result, err = e.EvaluatePlan(context.Background(), fronted)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if findViolation(result, "public-endpoint") != nil {
		t.Error("Fronted endpoint must not trigger the public-endpoint policy")
	}
}

func TestEngine_CdnWithoutWAFWarning(t *testing.T) {
	e := newTestEngine(t)

	plan := resolvePlan(t, resolver.DeployIntent{
		AppName:          "edge-service",
		EnableCloudFront: true,
	})
	result, err := e.EvaluatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if findViolation(result, "cdn-without-waf") == nil {
		t.Error("Expected a cdn-without-waf finding")
	}

	withWAF := resolvePlan(t, resolver.DeployIntent{
		AppName:          "edge-service",
		EnableCloudFront: true,
		EnableWAF:        true,
	})
	result, err = e.EvaluatePlan(context.Background(), withWAF)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if findViolation(result, "cdn-without-waf") != nil {
		t.Error("WAF-protected distribution must not trigger the policy")
	}
}

func TestEngine_ShortRetentionWarning(t *testing.T) {
	e := newTestEngine(t)

	plan := resolvePlan(t, resolver.DeployIntent{
		AppName:       "short-logs",
		RetentionDays: 3,
	})
	result, err := e.EvaluatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	v := findViolation(result, "short-log-retention")
	if v == nil {
		t.Fatal("Expected a short-log-retention finding for 3-day retention")
	}
	if v.Descriptor != "log-sink" {
		t.Errorf("Expected finding against log-sink, got %q", v.Descriptor)
	}

	longer := resolvePlan(t, resolver.DeployIntent{
		AppName:       "long-logs",
		RetentionDays: 30,
	})
	result, err = e.EvaluatePlan(context.Background(), longer)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if findViolation(result, "short-log-retention") != nil {
		t.Error("30-day retention must not trigger the policy")
	}
}

func TestEngine_PoliciesNeverSeeSecrets(t *testing.T) {
	e := newTestEngine(t)

	plan := resolvePlan(t, resolver.DeployIntent{
		AppName:          "secret-service",
		EnableCloudFront: true,
	})
	secret := planSecret(t, plan)

	leaked := false
	probe := Policy{
		Name:     "secret-probe",
		Severity: SeverityInfo,
		Enabled:  true,
		Rego: `package openfacade.policies.probe

import rego.v1

deny contains violation if {
	some cdn in input.plan.descriptors
	cdn.kind == "cdn"
	violation := cdn.properties.custom_headers["x-origin-verify"]
}
`,
	}
	if err := e.ReplaceLoaded([]Policy{probe}); err != nil {
		t.Fatalf("Failed to load probe policy: %v", err)
	}

	result, err := e.EvaluatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	for _, v := range result.Violations {
		if strings.Contains(v.Message, secret) {
			leaked = true
		}
	}
	if leaked {
		t.Error("Policy input carried unredacted secret material")
	}
}

func planSecret(t *testing.T, plan *resolver.ResolvedPlan) string {
	t.Helper()
	cdn := plan.Descriptor("cdn")
	if cdn == nil {
		t.Fatal("Plan has no CDN descriptor")
	}
	secret := cdn.Properties.(resolver.CdnProps).CustomHeaders[resolver.OriginVerifyHeader]
	if secret == "" {
		t.Fatal("Plan carries no secret")
	}
	return secret
}

func TestEngine_CustomErrorPolicyBlocks(t *testing.T) {
	e := newTestEngine(t)

	blocker := Policy{
		Name:     "no-mutable-tags",
		Severity: SeverityError,
		Enabled:  true,
		Rego: `package openfacade.policies.registry

import rego.v1

deny contains violation if {
	some registry in input.plan.descriptors
	registry.kind == "container_registry"
	registry.properties.image_tag_mutability == "MUTABLE"

	violation := {
		"message": "mutable image tags are not allowed",
		"severity": "error",
		"descriptor": registry.id,
	}
}
`,
	}
	if err := e.ReplaceLoaded([]Policy{blocker}); err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	plan := resolvePlan(t, resolver.DeployIntent{AppName: "blocked-service"})
	result, err := e.EvaluatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if result.Allowed {
		t.Error("Error-severity violation must block the plan")
	}
	if findViolation(result, "no-mutable-tags") == nil {
		t.Error("Expected the custom policy to fire")
	}
}

func TestEngine_DisablePolicy(t *testing.T) {
	e := newTestEngine(t)

	if err := e.DisablePolicy("public-endpoint"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	plan := resolvePlan(t, resolver.DeployIntent{AppName: "bare-service"})
	result, err := e.EvaluatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if findViolation(result, "public-endpoint") != nil {
		t.Error("Disabled policy must not fire")
	}

	if err := e.DisablePolicy("no-such-policy"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestEngine_RejectsBadRego(t *testing.T) {
	e := newTestEngine(t)

	bad := Policy{
		Name:    "broken",
		Enabled: true,
		Rego:    "package openfacade.broken\n\nthis is not rego",
	}
	if err := e.ReplaceLoaded([]Policy{bad}); err == nil {
		t.Error("Expected compile error for invalid Rego")
	}
}
