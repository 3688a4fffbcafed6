package resolver

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestGenerateSecretMaterial_OnlyUnderSharedHeaderScheme(t *testing.T) {
	tests := []struct {
		name     string
		cdn, iam bool
		want     bool
	}{
		{"no cdn", false, false, false},
		{"cdn with shared header", true, false, true},
		{"cdn with signed requests", true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := validIntent()
			intent.EnableCloudFront = tt.cdn
			intent.UseIAMAuth = tt.iam

			secret, err := GenerateSecretMaterial(intent)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if (secret != nil) != tt.want {
				t.Errorf("Expected secret=%v, got %v", tt.want, secret != nil)
			}
		})
	}
}

func TestGenerateSecretMaterial_Strength(t *testing.T) {
	intent := validIntent()
	intent.EnableCloudFront = true

	secret, err := GenerateSecretMaterial(intent)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	value := secret.Value()
	if len(value) < 32 {
		t.Errorf("Expected at least 32 characters, got %d", len(value))
	}
	if !strings.ContainsAny(value, secretLower) {
		t.Error("Expected at least one lowercase character")
	}
	if !strings.ContainsAny(value, secretUpper) {
		t.Error("Expected at least one uppercase character")
	}
	if !strings.ContainsAny(value, secretDigits) {
		t.Error("Expected at least one digit")
	}
}

func TestGenerateSecretMaterial_NotDerivedFromIntent(t *testing.T) {
	intent := validIntent()
	intent.EnableCloudFront = true

	a, err := GenerateSecretMaterial(intent)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	b, err := GenerateSecretMaterial(intent)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if a.Value() == b.Value() {
		t.Error("Two resolutions of the same intent produced the same secret")
	}
}

func TestSharedSecret_RedactedRenderings(t *testing.T) {
	intent := validIntent()
	intent.EnableCloudFront = true

	secret, err := GenerateSecretMaterial(intent)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if got := fmt.Sprintf("%v", secret); got != SecretRedacted {
		t.Errorf("Stringer leaked the secret: %q", got)
	}

	data, err := json.Marshal(secret)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if string(data) != `"`+SecretRedacted+`"` {
		t.Errorf("JSON leaked the secret: %s", data)
	}
}
