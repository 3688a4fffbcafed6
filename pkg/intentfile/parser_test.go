package intentfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser()
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}
	return p
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
	return path
}

const validIntentFile = `
deploy: {
	app_name:          "metrics-dashboard"
	enable_cloudfront: true
	enable_waf:        true
	allowed_ip_cidrs: ["203.0.113.0/24"]
	retention_days: 30
	memory_mb:      2048
	environment_variables: {
		APP_MODE: "production"
	}
	github_repository: "acme/metrics-dashboard"
}
`

func TestParser_Load(t *testing.T) {
	p := newTestParser(t)
	path := writeFile(t, t.TempDir(), "deploy.cue", validIntentFile)

	intent, err := p.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if intent.AppName != "metrics-dashboard" {
		t.Errorf("Expected app name metrics-dashboard, got %q", intent.AppName)
	}
	if !intent.EnableCloudFront || !intent.EnableWAF {
		t.Error("CDN flags lost in decoding")
	}
	if intent.RetentionDays != 30 {
		t.Errorf("Expected retention 30, got %d", intent.RetentionDays)
	}
	if intent.MemoryMB != 2048 {
		t.Errorf("Expected memory 2048, got %d", intent.MemoryMB)
	}
	if intent.EnvironmentVariables["APP_MODE"] != "production" {
		t.Errorf("Environment lost: %v", intent.EnvironmentVariables)
	}
	if intent.GitHubRepository != "acme/metrics-dashboard" {
		t.Errorf("Expected repository, got %q", intent.GitHubRepository)
	}
}

func TestParser_Load_SchemaViolations(t *testing.T) {
	p := newTestParser(t)
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "unknown field",
			content: `deploy: { app_name: "svc-a", enable_cloudfrnt: true }`,
		},
		{
			name:    "wrong type",
			content: `deploy: { retention_days: "seven" }`,
		},
		{
			name:    "memory below floor",
			content: `deploy: { memory_mb: 64 }`,
		},
		{
			name:    "bad image tag",
			content: `deploy: { image_tag: "Latest" }`,
		},
		{
			name:    "syntax error",
			content: `deploy: { app_name: `,
		},
		{
			name:    "missing deploy block",
			content: `other: { app_name: "svc-a" }`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "bad.cue", tt.content)
			if _, err := p.Load(context.Background(), path); err == nil {
				t.Error("Expected load error")
			}
		})
	}
}

func TestParser_Load_MissingFile(t *testing.T) {
	p := newTestParser(t)
	if _, err := p.Load(context.Background(), filepath.Join(t.TempDir(), "missing.cue")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestParser_ParseInline_ErrorPositions(t *testing.T) {
	p := newTestParser(t)

	parsed, err := p.ParseInline(context.Background(), `deploy: { retention_days: "seven" }`)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(parsed.Errors) == 0 {
		t.Fatal("Expected schema errors")
	}
	if parsed.Errors[0].Severity != "error" {
		t.Errorf("Expected error severity, got %q", parsed.Errors[0].Severity)
	}
}

func TestParser_Load_EnvScript(t *testing.T) {
	p := newTestParser(t)
	dir := t.TempDir()

	writeFile(t, dir, "env.star", `
_suffix = "-" + image_tag
SERVICE_NAME = app_name + _suffix
WORKER_COUNT = 4
DEBUG = False
OVERRIDDEN = "from-script"
`)
	path := writeFile(t, dir, "deploy.cue", `
deploy: {
	app_name:  "svc-a"
	image_tag: "abc123"
	environment_variables: {
		OVERRIDDEN: "from-file"
	}
	env_script: "env.star"
}
`)

	intent, err := p.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	env := intent.EnvironmentVariables
	if env["SERVICE_NAME"] != "svc-a-abc123" {
		t.Errorf("Expected computed service name, got %q", env["SERVICE_NAME"])
	}
	if env["WORKER_COUNT"] != "4" {
		t.Errorf("Expected int coerced to string, got %q", env["WORKER_COUNT"])
	}
	if env["DEBUG"] != "false" {
		t.Errorf("Expected bool coerced to string, got %q", env["DEBUG"])
	}
	if env["OVERRIDDEN"] != "from-file" {
		t.Errorf("File values must win over script values, got %q", env["OVERRIDDEN"])
	}
	if _, ok := env["_suffix"]; ok {
		t.Error("Underscore globals must not leak into the environment")
	}
}

func TestParser_Load_EnvScriptFailure(t *testing.T) {
	p := newTestParser(t)
	dir := t.TempDir()

	writeFile(t, dir, "env.star", `LIST_VALUE = [1, 2, 3]`)
	path := writeFile(t, dir, "deploy.cue", `
deploy: {
	app_name:   "svc-a"
	env_script: "env.star"
}
`)

	if _, err := p.Load(context.Background(), path); err == nil {
		t.Error("Expected error for a non-scalar script global")
	}

	pathMissing := writeFile(t, dir, "deploy2.cue", `
deploy: {
	app_name:   "svc-a"
	env_script: "missing.star"
}
`)
	if _, err := p.Load(context.Background(), pathMissing); err == nil {
		t.Error("Expected error for a missing script")
	}
}

func TestIntentConfig_ToIntent(t *testing.T) {
	config := IntentConfig{
		AppName:       "svc-a",
		UseIAMAuth:    true,
		RetentionDays: 14,
		Port:          3000,
	}

	intent := config.ToIntent()
	if intent.AppName != "svc-a" || !intent.UseIAMAuth || intent.RetentionDays != 14 || intent.Port != 3000 {
		t.Errorf("Mapping lost fields: %+v", intent)
	}
}
