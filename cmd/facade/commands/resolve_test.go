package commands

import (
	"context"
	"testing"
)

func TestParseEnvFlags(t *testing.T) {
	env, err := parseEnvFlags([]string{"API_URL=https://api.example.com", "DEBUG=true", "EMPTY="})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if env["API_URL"] != "https://api.example.com" {
		t.Errorf("Expected API_URL value, got %q", env["API_URL"])
	}
	if env["DEBUG"] != "true" {
		t.Errorf("Expected DEBUG=true, got %q", env["DEBUG"])
	}
	if v, ok := env["EMPTY"]; !ok || v != "" {
		t.Error("Expected empty value to be preserved")
	}
}

func TestParseEnvFlags_Invalid(t *testing.T) {
	for _, pair := range []string{"NOVALUE", "=value"} {
		if _, err := parseEnvFlags([]string{pair}); err == nil {
			t.Errorf("Expected error for %q", pair)
		}
	}
}

func TestParseEnvFlags_Empty(t *testing.T) {
	env, err := parseEnvFlags(nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if env != nil {
		t.Errorf("Expected nil map for no flags, got %v", env)
	}
}

func TestBuildIntent_FromFlags(t *testing.T) {
	opts := &resolveOptions{
		appName:    "metrics-dashboard",
		cloudfront: true,
		waf:        true,
		allowCIDRs: []string{"203.0.113.0/24"},
		envVars:    []string{"API_URL=https://api.example.com"},
		repository: "acme/metrics-dashboard",
	}

	intent, err := buildIntent(context.Background(), opts)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if intent.AppName != "metrics-dashboard" {
		t.Errorf("Expected app name, got %q", intent.AppName)
	}
	if !intent.EnableCloudFront || !intent.EnableWAF {
		t.Error("Expected CDN and WAF flags set")
	}
	if len(intent.AllowedIPCIDRs) != 1 {
		t.Errorf("Expected 1 allowed CIDR, got %d", len(intent.AllowedIPCIDRs))
	}
	if intent.EnvironmentVariables["API_URL"] != "https://api.example.com" {
		t.Error("Environment variable lost")
	}
	if intent.GitHubRepository != "acme/metrics-dashboard" {
		t.Errorf("Expected repository, got %q", intent.GitHubRepository)
	}
}

func TestBuildIntent_BadEnvFlag(t *testing.T) {
	opts := &resolveOptions{envVars: []string{"BROKEN"}}
	if _, err := buildIntent(context.Background(), opts); err == nil {
		t.Error("Expected error for malformed env flag")
	}
}
