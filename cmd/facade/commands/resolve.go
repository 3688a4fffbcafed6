package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfacade/openfacade/pkg/intentfile"
	"github.com/openfacade/openfacade/pkg/policy"
	"github.com/openfacade/openfacade/pkg/resolver"
	"github.com/openfacade/openfacade/pkg/stores"
	"github.com/openfacade/openfacade/pkg/telemetry"
)

// resolveOptions collects the resolve command flags.
type resolveOptions struct {
	intentFile string

	// Direct intent flags, used when no intent file is given.
	appName       string
	cloudfront    bool
	waf           bool
	iamAuth       bool
	allowCIDRs    []string
	retentionDays int
	keepCount     int
	imageTag      string
	memoryMB      int
	timeout       int
	port          int
	envVars       []string
	repository    string
	oidcProvider  string

	githubIPsFile string
	metricsAddr   string

	outFile  string
	format   string
	dotFile  string
	redact   bool
	storeDB  string
	policies []string
	noPolicy bool
	watch    bool
}

func newResolveCommand() *cobra.Command {
	opts := &resolveOptions{}

	cmd := &cobra.Command{
		Use:   "resolve [intent-file]",
		Short: "Resolve a deployment intent into a plan",
		Long: `Resolve a deployment intent into a validated plan of resource descriptors.

The intent comes from a CUE intent file (--file) or directly from flags.
Resolution:
  - Applies defaults and validates cross-flag constraints
  - Generates origin verification secret material when required
  - Builds descriptors in dependency order
  - Evaluates policies over the redacted plan
  - Optionally records the redacted plan in the history store

The JSON output carries the generated secret so deploy pipelines can consume
it; use --redact for output safe to share or archive. YAML output is always
redacted.`,
		Example: `  # Resolve from an intent file
  facade resolve --file deploy.cue --out plan.json

  # Resolve from flags with CDN and WAF
  facade resolve --app metrics-dashboard --cloudfront --waf \
    --allow-cidr 203.0.113.0/24 --out plan.json

  # Redacted YAML for review, plus a DOT graph
  facade resolve --file deploy.cue --format yaml --dot plan.dot

  # Record history and re-resolve on intent file changes
  facade resolve --file deploy.cue --store history.db --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				if opts.intentFile != "" {
					return fmt.Errorf("intent file given both as argument and --file")
				}
				opts.intentFile = args[0]
			}
			if opts.watch && opts.intentFile == "" {
				return fmt.Errorf("--watch requires --file")
			}
			if opts.format != "json" && opts.format != "yaml" {
				return fmt.Errorf("unsupported format: %s (must be 'json' or 'yaml')", opts.format)
			}
			return runResolve(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.intentFile, "file", "f", "", "CUE intent file path")

	cmd.Flags().StringVar(&opts.appName, "app", "", "application name")
	cmd.Flags().BoolVar(&opts.cloudfront, "cloudfront", false, "front the endpoint with a CDN distribution")
	cmd.Flags().BoolVar(&opts.waf, "waf", false, "attach a web ACL to the CDN")
	cmd.Flags().BoolVar(&opts.iamAuth, "iam-auth", false, "require signed requests on the endpoint")
	cmd.Flags().StringSliceVar(&opts.allowCIDRs, "allow-cidr", nil, "CIDR blocks admitted by the web ACL")
	cmd.Flags().IntVar(&opts.retentionDays, "retention-days", 0, "log retention window in days")
	cmd.Flags().IntVar(&opts.keepCount, "keep-count", 0, "untagged images kept by the registry lifecycle")
	cmd.Flags().StringVar(&opts.imageTag, "image-tag", "", "container image tag")
	cmd.Flags().IntVar(&opts.memoryMB, "memory", 0, "function memory in MB")
	cmd.Flags().IntVar(&opts.timeout, "timeout", 0, "function timeout in seconds")
	cmd.Flags().IntVar(&opts.port, "port", 0, "container listen port")
	cmd.Flags().StringArrayVar(&opts.envVars, "env", nil, "environment variable (KEY=VALUE, repeatable)")
	cmd.Flags().StringVar(&opts.repository, "repository", "", "GitHub repository (owner/repo) for the CI deploy role")
	cmd.Flags().StringVar(&opts.oidcProvider, "oidc-provider", "", "OIDC provider reference for the CI deploy role")

	cmd.Flags().StringVar(&opts.githubIPsFile, "github-ips", "", "JSON file overriding the GitHub service IP ranges")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (useful with --watch)")

	cmd.Flags().StringVarP(&opts.outFile, "out", "o", "", "output file path (default stdout)")
	cmd.Flags().StringVar(&opts.format, "format", "json", "output format (json, yaml)")
	cmd.Flags().StringVar(&opts.dotFile, "dot", "", "output DOT graph file (optional)")
	cmd.Flags().BoolVar(&opts.redact, "redact", false, "redact secret material in JSON output")
	cmd.Flags().StringVar(&opts.storeDB, "store", "", "SQLite history database path (optional)")
	cmd.Flags().StringSliceVar(&opts.policies, "policy", nil, "policy files or directories (.rego, .json)")
	cmd.Flags().BoolVar(&opts.noPolicy, "no-policy", false, "skip policy evaluation")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "re-resolve when the intent file changes")

	return cmd
}

func runResolve(ctx context.Context, opts *resolveOptions) error {
	telCfg := telemetry.DefaultConfig()
	if opts.metricsAddr != "" {
		telCfg.Metrics.Enabled = true
		telCfg.Metrics.ListenAddress = opts.metricsAddr
	}
	tel, err := telemetry.NewTelemetry(telCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()
	ctx = tel.WithContext(ctx)
	if err := tel.StartMetricsServer(); err != nil {
		return err
	}

	var engine *policy.Engine
	if !opts.noPolicy {
		var err error
		engine, err = policy.NewEngine(log.Logger)
		if err != nil {
			return fmt.Errorf("failed to create policy engine: %w", err)
		}
		if len(opts.policies) > 0 {
			if err := engine.LoadPolicies(ctx, opts.policies); err != nil {
				return fmt.Errorf("failed to load policies: %w", err)
			}
		}
	}

	var store *stores.SQLiteStore
	if opts.storeDB != "" {
		var err error
		store, err = stores.NewSQLiteStore(stores.Config{Path: opts.storeDB})
		if err != nil {
			return err
		}
		if err := store.Init(ctx); err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
	}

	if err := resolveOnce(ctx, opts, engine, store); err != nil {
		if !opts.watch {
			return err
		}
		// In watch mode a failed resolution is reported, not fatal; the
		// next file change gets another attempt.
		log.Error().Err(err).Msg("Resolution failed")
	}

	if !opts.watch {
		return nil
	}
	return watchIntentFile(ctx, opts, engine, store)
}

// resolveOnce runs one complete resolution: intent, plan, policies, history,
// emission.
func resolveOnce(ctx context.Context, opts *resolveOptions, engine *policy.Engine, store *stores.SQLiteStore) error {
	intent, err := buildIntent(ctx, opts)
	if err != nil {
		return err
	}

	tel := telemetry.FromTelemetryContext(ctx)
	appName := intent.ApplyDefaults().AppName
	rctx := telemetry.WithResolutionContext(ctx, appName)

	planLogger := log.Logger
	if tel != nil {
		planLogger = tel.Logger.Zerolog()
	}
	plan, err := resolver.New(planLogger).Resolve(rctx, intent)
	if err != nil {
		if tel != nil && resolver.IsValidation(err) {
			tel.Metrics.RecordValidationFailure(resolver.ConstraintOf(err))
		}
		telemetry.EndResolutionContext(rctx, appName, "", 0, err)
		return err
	}
	telemetry.EndResolutionContext(rctx, appName, plan.ID, plan.Summary.TotalDescriptors, nil)
	if tel != nil {
		for _, d := range plan.Descriptors {
			tel.Metrics.RecordDescriptor(string(d.Kind))
		}
		tel.Metrics.RecordPlanSize(string(plan.Intent.AuthMode()), plan.Summary.TotalDescriptors)
		if plan.Summary.SecretGenerated {
			tel.Metrics.RecordSecretGenerated()
			_ = tel.Events.PublishSecretGenerated(appName)
		}
	}

	var policyAllowed *bool
	if engine != nil {
		timer := telemetry.NewTimer()
		pctx := ctx
		if tel != nil {
			var span trace.Span
			pctx, span = tel.Tracer.StartPolicySpan(ctx, plan.ID)
			defer span.End()
		}
		result, err := engine.EvaluatePlan(pctx, plan)
		if err != nil {
			return fmt.Errorf("policy evaluation failed: %w", err)
		}
		policyAllowed = &result.Allowed
		if tel != nil {
			decision := "allowed"
			if !result.Allowed {
				decision = "blocked"
			}
			tel.Metrics.RecordPolicyEvaluation(decision, timer.Duration())
			for _, v := range result.Violations {
				tel.Metrics.RecordPolicyViolation(v.Policy, string(v.Severity))
			}
		}
		reportPolicyResult(result)
		if store != nil {
			recordPolicyEvents(ctx, store, plan.ID, result)
		}
		if !result.Allowed {
			if store != nil {
				_ = store.SaveResolution(ctx, plan, policyAllowed)
			}
			return fmt.Errorf("plan blocked by policy (%d violations)", len(result.Violations))
		}
	}

	if store != nil {
		if err := store.SaveResolution(ctx, plan, policyAllowed); err != nil {
			if tel != nil {
				tel.Metrics.RecordStoreError("save")
			}
			return fmt.Errorf("failed to record resolution: %w", err)
		}
		if tel != nil {
			tel.Metrics.RecordStoreOperation("save")
			_ = tel.Events.PublishPlanStored(plan.ID, appName)
		}
		log.Debug().Str("plan_id", plan.ID).Msg("Resolution recorded")
	}

	return emitPlan(ctx, plan, opts)
}

// buildIntent assembles the deploy intent from the intent file or from flags.
func buildIntent(ctx context.Context, opts *resolveOptions) (resolver.DeployIntent, error) {
	var intent resolver.DeployIntent

	if opts.intentFile != "" {
		parser, err := intentfile.NewParser()
		if err != nil {
			return intent, err
		}
		intent, err = parser.Load(ctx, opts.intentFile)
		if err != nil {
			return intent, err
		}
	} else {
		env, err := parseEnvFlags(opts.envVars)
		if err != nil {
			return intent, err
		}
		intent = resolver.DeployIntent{
			AppName:                opts.appName,
			EnableCloudFront:       opts.cloudfront,
			EnableWAF:              opts.waf,
			UseIAMAuth:             opts.iamAuth,
			AllowedIPCIDRs:         opts.allowCIDRs,
			RetentionDays:          opts.retentionDays,
			UntaggedImageKeepCount: opts.keepCount,
			ImageTag:               opts.imageTag,
			MemoryMB:               opts.memoryMB,
			TimeoutSeconds:         opts.timeout,
			Port:                   opts.port,
			EnvironmentVariables:   env,
			GitHubRepository:       opts.repository,
			OIDCProviderRef:        opts.oidcProvider,
		}
	}

	if opts.githubIPsFile != "" {
		cidrs, err := resolver.LoadGitHubCIDRs(opts.githubIPsFile)
		if err != nil {
			return intent, fmt.Errorf("failed to load GitHub IP ranges: %w", err)
		}
		intent.GitHubIPCIDRs = cidrs
	}

	return intent, nil
}

// parseEnvFlags parses repeated KEY=VALUE flags into a map.
func parseEnvFlags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env value %q (expected KEY=VALUE)", pair)
		}
		env[key] = value
	}
	return env, nil
}

// reportPolicyResult logs violations and warnings from a policy run.
func reportPolicyResult(result *policy.Result) {
	for _, w := range result.Warnings {
		log.Warn().Msg(w)
	}
	for _, v := range result.Violations {
		evt := log.Warn()
		if v.Severity == policy.SeverityError || v.Severity == policy.SeverityCritical {
			evt = log.Error()
		}
		evt.
			Str("policy", v.Policy).
			Str("severity", string(v.Severity)).
			Str("descriptor", v.Descriptor).
			Str("remediation", v.Remediation).
			Msg(v.Message)
	}
}

// recordPolicyEvents appends violation events to the history store.
func recordPolicyEvents(ctx context.Context, store *stores.SQLiteStore, planID string, result *policy.Result) {
	for _, v := range result.Violations {
		level := stores.EventLevelWarning
		if v.Severity == policy.SeverityError || v.Severity == policy.SeverityCritical {
			level = stores.EventLevelError
		}
		err := store.AppendEvent(ctx, &stores.Event{
			ResolutionID: planID,
			Level:        level,
			Message:      fmt.Sprintf("%s: %s", v.Policy, v.Message),
			Timestamp:    time.Now(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to record policy event")
		}
	}
}

// emitPlan writes the plan document and the optional DOT graph.
func emitPlan(ctx context.Context, plan *resolver.ResolvedPlan, opts *resolveOptions) error {
	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		_, span := tel.Tracer.StartEmitSpan(ctx, plan.ID, opts.format)
		defer span.End()
	}

	emitter := resolver.NewEmitter()

	var out []byte
	var err error
	switch {
	case opts.format == "yaml":
		out, err = emitter.EmitYAML(plan)
	case opts.redact:
		out, err = emitter.EmitRedactedJSON(plan)
	default:
		out, err = emitter.EmitJSON(plan)
	}
	if err != nil {
		return fmt.Errorf("failed to emit plan: %w", err)
	}

	if opts.outFile != "" {
		if err := os.WriteFile(opts.outFile, out, 0600); err != nil {
			return fmt.Errorf("failed to write plan: %w", err)
		}
		log.Info().Str("path", opts.outFile).Msg("Plan written")
	} else {
		fmt.Print(string(out))
	}

	if opts.dotFile != "" {
		dot, err := emitter.EmitDOT(plan)
		if err != nil {
			return fmt.Errorf("failed to emit graph: %w", err)
		}
		if err := os.WriteFile(opts.dotFile, []byte(dot), 0644); err != nil {
			return fmt.Errorf("failed to write graph: %w", err)
		}
		log.Info().Str("path", opts.dotFile).Msg("Graph written")
	}

	return nil
}

// watchIntentFile re-resolves whenever the intent file changes, until the
// context is cancelled.
func watchIntentFile(ctx context.Context, opts *resolveOptions, engine *policy.Engine, store *stores.SQLiteStore) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory: editors typically replace the file, which drops
	// a watch on the file itself.
	dir := filepath.Dir(opts.intentFile)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target, err := filepath.Abs(opts.intentFile)
	if err != nil {
		return err
	}

	log.Info().Str("file", opts.intentFile).Msg("Watching intent file")

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			changed, err := filepath.Abs(event.Name)
			if err != nil || changed != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, func() {
				log.Info().Str("file", opts.intentFile).Msg("Intent file changed, re-resolving")
				if err := resolveOnce(ctx, opts, engine, store); err != nil {
					log.Error().Err(err).Msg("Resolution failed")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}
