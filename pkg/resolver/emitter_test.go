package resolver

import (
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func secretPlan(t *testing.T) (*ResolvedPlan, string) {
	t.Helper()

	intent := validIntent()
	intent.EnableCloudFront = true
	plan := buildPlan(t, intent)

	secret := plan.Descriptor(idCdn).Properties.(CdnProps).CustomHeaders[OriginVerifyHeader]
	if secret == "" {
		t.Fatal("Plan carries no secret material")
	}
	return plan, secret
}

func TestEmitter_EmitJSON_CarriesSecretMaterial(t *testing.T) {
	plan, secret := secretPlan(t)

	data, err := NewEmitter().EmitJSON(plan)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !strings.Contains(string(data), secret) {
		t.Error("Machine output must carry the secret material")
	}
}

func TestEmitter_EmitJSON_RoundTrips(t *testing.T) {
	plan, _ := secretPlan(t)

	data, err := NewEmitter().EmitJSON(plan)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	var decoded ResolvedPlan
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Emitted plan does not decode: %v", err)
	}
	if decoded.ID != plan.ID {
		t.Errorf("Plan ID changed across the round trip: %q != %q", decoded.ID, plan.ID)
	}
	if len(decoded.Descriptors) != len(plan.Descriptors) {
		t.Errorf("Descriptor count changed: %d != %d",
			len(decoded.Descriptors), len(plan.Descriptors))
	}

	cdn := decoded.Descriptor(idCdn)
	if cdn == nil {
		t.Fatal("CDN descriptor lost in the round trip")
	}
	if _, ok := cdn.Properties.(CdnProps); !ok {
		t.Errorf("CDN properties decoded as %T", cdn.Properties)
	}
}

func TestEmitter_EmitRedactedJSON_NeverLeaks(t *testing.T) {
	plan, secret := secretPlan(t)

	data, err := NewEmitter().EmitRedactedJSON(plan)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	out := string(data)
	if strings.Contains(out, secret) {
		t.Error("Redacted output leaked the secret")
	}
	if !strings.Contains(out, SecretRedacted) {
		t.Error("Redacted output missing the redaction marker")
	}
}

func TestEmitter_EmitRedactedJSON_RedactsBothConsumers(t *testing.T) {
	plan, _ := secretPlan(t)

	data, err := NewEmitter().EmitRedactedJSON(plan)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Redacted output does not decode: %v", err)
	}

	descriptors := doc["descriptors"].([]any)
	checked := 0
	for _, raw := range descriptors {
		entry := raw.(map[string]any)
		props := entry["properties"].(map[string]any)

		switch entry["id"] {
		case idFunction:
			env := props["environment"].(map[string]any)
			if env[EnvKeyOriginSecret] != SecretRedacted {
				t.Errorf("Environment secret not redacted: %v", env[EnvKeyOriginSecret])
			}
			checked++
		case idCdn:
			headers := props["custom_headers"].(map[string]any)
			if headers[OriginVerifyHeader] != SecretRedacted {
				t.Errorf("Header secret not redacted: %v", headers[OriginVerifyHeader])
			}
			checked++
		}
	}
	if checked != 2 {
		t.Errorf("Expected to check both secret consumers, checked %d", checked)
	}
}

func TestEmitter_EmitYAML_AlwaysRedacted(t *testing.T) {
	plan, secret := secretPlan(t)

	data, err := NewEmitter().EmitYAML(plan)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	out := string(data)
	if strings.Contains(out, secret) {
		t.Error("YAML output leaked the secret")
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("YAML output does not decode: %v", err)
	}
}

func TestEmitter_RedactionPreservesSource(t *testing.T) {
	plan, secret := secretPlan(t)

	if _, err := NewEmitter().EmitRedactedJSON(plan); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	// The plan itself still carries the material for the machine surface.
	after := plan.Descriptor(idCdn).Properties.(CdnProps).CustomHeaders[OriginVerifyHeader]
	if after != secret {
		t.Error("Redaction mutated the plan")
	}
}

func TestEmitter_EmitDOT(t *testing.T) {
	intent := validIntent()
	intent.EnableCloudFront = true
	intent.EnableWAF = true
	plan := buildPlan(t, intent)

	dot, err := NewEmitter().EmitDOT(plan)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !strings.Contains(dot, "digraph ResolvedPlan") {
		t.Error("DOT output missing digraph declaration")
	}
	for _, id := range []string{idRegistry, idFunction, idCdn, idWebAcl} {
		if !strings.Contains(dot, `"`+id+`"`) {
			t.Errorf("DOT output missing node %q", id)
		}
	}
	if !strings.Contains(dot, `"`+idEndpoint+`" -> "`+idCdn+`"`) {
		t.Error("DOT output missing endpoint -> cdn edge")
	}

	secret := plan.Descriptor(idCdn).Properties.(CdnProps).CustomHeaders[OriginVerifyHeader]
	if strings.Contains(dot, secret) {
		t.Error("DOT output leaked the secret")
	}
}

func TestRedactPath_MissingPathIsError(t *testing.T) {
	props := map[string]any{"environment": map[string]any{"PORT": "8080"}}

	if err := redactPath(props, "environment.MISSING"); err == nil {
		t.Error("Expected error for a missing leaf")
	}
	if err := redactPath(props, "no_such.branch"); err == nil {
		t.Error("Expected error for a missing branch")
	}
	if err := redactPath(props, "environment.PORT"); err != nil {
		t.Errorf("Expected no error for a present path, got: %v", err)
	}
	if props["environment"].(map[string]any)["PORT"] != SecretRedacted {
		t.Error("Present path not redacted")
	}
}
