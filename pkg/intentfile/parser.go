package intentfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/openfacade/openfacade/pkg/resolver"
)

// Parser loads deploy intents from CUE files.
type Parser struct {
	ctx       *cue.Context
	schema    cue.Value
	evaluator *StarlarkEvaluator
}

// NewParser creates an intent file parser with the built-in schema compiled.
func NewParser() (*Parser, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(builtinIntentSchema)
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile intent schema: %w", err)
	}

	return &Parser{
		ctx:       ctx,
		schema:    schema,
		evaluator: NewStarlarkEvaluator(30 * time.Second),
	}, nil
}

// Load parses an intent file and returns the deploy intent ready for
// resolution. Schema violations are returned as a single error carrying all
// positions; the optional env script runs after a clean decode.
func (p *Parser) Load(ctx context.Context, path string) (resolver.DeployIntent, error) {
	parsed, err := p.Parse(ctx, path)
	if err != nil {
		return resolver.DeployIntent{}, err
	}
	if len(parsed.Errors) > 0 {
		return resolver.DeployIntent{}, fmt.Errorf("intent file %s: %s", path, formatErrors(parsed.Errors))
	}

	config := parsed.Config
	if config.EnvScript != "" {
		merged, err := p.runEnvScript(ctx, path, config)
		if err != nil {
			return resolver.DeployIntent{}, err
		}
		config.EnvironmentVariables = merged
	}

	return config.ToIntent(), nil
}

// Parse parses a single intent file without running its env script.
func (p *Parser) Parse(ctx context.Context, path string) (*ParsedIntent, error) {
	parsed := &ParsedIntent{
		SourceFile: path,
		ParsedAt:   time.Now(),
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read intent file: %w", err)
	}

	val := p.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		parsed.Errors = convertCUEErrors(err)
		return parsed, nil
	}

	unified := val.Unify(p.schema)
	if err := unified.Validate(); err != nil {
		parsed.Errors = convertCUEErrors(err)
		return parsed, nil
	}

	deployVal := unified.LookupPath(cue.ParsePath("deploy"))
	if !deployVal.Exists() {
		parsed.Errors = append(parsed.Errors, ValidationError{
			File:     path,
			Path:     "deploy",
			Message:  "intent file has no deploy block",
			Severity: "error",
		})
		return parsed, nil
	}

	if err := deployVal.Decode(&parsed.Config); err != nil {
		parsed.Errors = append(parsed.Errors, ValidationError{
			File:     path,
			Path:     "deploy",
			Message:  fmt.Sprintf("failed to decode deploy block: %v", err),
			Severity: "error",
		})
	}
	return parsed, nil
}

// ParseInline parses inline CUE content, used by tests and the validate
// command's stdin mode.
func (p *Parser) ParseInline(ctx context.Context, content string) (*ParsedIntent, error) {
	parsed := &ParsedIntent{
		SourceFile: "inline",
		ParsedAt:   time.Now(),
	}

	val := p.ctx.CompileString(content)
	if err := val.Err(); err != nil {
		parsed.Errors = convertCUEErrors(err)
		return parsed, nil
	}

	unified := val.Unify(p.schema)
	if err := unified.Validate(); err != nil {
		parsed.Errors = convertCUEErrors(err)
		return parsed, nil
	}

	deployVal := unified.LookupPath(cue.ParsePath("deploy"))
	if !deployVal.Exists() {
		parsed.Errors = append(parsed.Errors, ValidationError{
			Path:     "deploy",
			Message:  "intent file has no deploy block",
			Severity: "error",
		})
		return parsed, nil
	}

	if err := deployVal.Decode(&parsed.Config); err != nil {
		parsed.Errors = append(parsed.Errors, ValidationError{
			Path:     "deploy",
			Message:  fmt.Sprintf("failed to decode deploy block: %v", err),
			Severity: "error",
		})
	}
	return parsed, nil
}

// runEnvScript evaluates the intent's Starlark env script and overlays the
// file's explicit environment on top of the script output.
func (p *Parser) runEnvScript(ctx context.Context, intentPath string, config IntentConfig) (map[string]string, error) {
	scriptPath := config.EnvScript
	if !filepath.IsAbs(scriptPath) {
		scriptPath = filepath.Join(filepath.Dir(intentPath), scriptPath)
	}

	script, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read env script: %w", err)
	}

	input := map[string]interface{}{
		"app_name":  config.AppName,
		"image_tag": config.ImageTag,
	}
	scriptEnv, err := p.evaluator.EvaluateEnv(ctx, string(script), input)
	if err != nil {
		return nil, fmt.Errorf("env script %s: %w", scriptPath, err)
	}

	merged := make(map[string]string, len(scriptEnv)+len(config.EnvironmentVariables))
	for k, v := range scriptEnv {
		merged[k] = v
	}
	for k, v := range config.EnvironmentVariables {
		merged[k] = v
	}
	return merged, nil
}

// convertCUEErrors flattens a CUE error into position-aware entries.
func convertCUEErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range errors.Errors(err) {
		entry := ValidationError{
			Message:  errors.Details(e, nil),
			Severity: "error",
		}
		if pos := errors.Positions(e); len(pos) > 0 {
			entry.File = pos[0].Filename()
			entry.Line = pos[0].Line()
			entry.Column = pos[0].Column()
		}
		out = append(out, entry)
	}
	return out
}

func formatErrors(errs []ValidationError) string {
	if len(errs) == 1 {
		return errs[0].Message
	}
	return fmt.Sprintf("%s (and %d more errors)", errs[0].Message, len(errs)-1)
}
