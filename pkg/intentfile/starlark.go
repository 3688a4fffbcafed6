package intentfile

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.starlark.net/starlark"
)

// StarlarkEvaluator runs intent env scripts with a hard timeout.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates an evaluator. A zero timeout falls back to 30s.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkEvaluator{timeout: timeout}
}

// EvaluateEnv executes the script and returns its exported globals as
// environment variables. Globals starting with an underscore are script
// internals and are skipped; everything else must be a string, int, or bool.
func (se *StarlarkEvaluator) EvaluateEnv(ctx context.Context, script string, input map[string]interface{}) (map[string]string, error) {
	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	resultCh := make(chan map[string]string, 1)
	errCh := make(chan error, 1)

	go func() {
		env, err := se.evaluateSync(script, input)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- env
	}()

	select {
	case <-evalCtx.Done():
		return nil, fmt.Errorf("env script timed out after %v", se.timeout)
	case err := <-errCh:
		return nil, err
	case env := <-resultCh:
		return env, nil
	}
}

func (se *StarlarkEvaluator) evaluateSync(script string, input map[string]interface{}) (map[string]string, error) {
	thread := &starlark.Thread{
		Name: "intentfile",
		Print: func(_ *starlark.Thread, msg string) {
			// Scripts produce values, not output.
		},
	}

	predeclared := starlark.StringDict{}
	for key, val := range input {
		sv, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = sv
	}

	globals, err := starlark.ExecFile(thread, "env.star", script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("env script failed: %w", err)
	}

	env := make(map[string]string)
	for name, val := range globals {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		s, err := toEnvString(val)
		if err != nil {
			return nil, fmt.Errorf("global %s: %w", name, err)
		}
		env[name] = s
	}
	return env, nil
}

func toStarlarkValue(v interface{}) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case string:
		return starlark.String(val), nil
	default:
		return nil, fmt.Errorf("unsupported input type: %T", v)
	}
}

func toEnvString(v starlark.Value) (string, error) {
	switch val := v.(type) {
	case starlark.String:
		return string(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return "", fmt.Errorf("integer too large for an environment value")
		}
		return strconv.FormatInt(i, 10), nil
	case starlark.Bool:
		return strconv.FormatBool(bool(val)), nil
	default:
		return "", fmt.Errorf("environment values must be strings, ints, or bools, got %s", v.Type())
	}
}
