package resolver

import (
	"context"

	"github.com/rs/zerolog"
)

// Resolver runs the full resolution pipeline: defaults, validation, secret
// material, graph build. Each call is independent; there is no shared state
// across resolutions.
type Resolver struct {
	builder *Builder
	logger  zerolog.Logger
}

// New creates a resolver.
func New(logger zerolog.Logger) *Resolver {
	return &Resolver{
		builder: NewBuilder(logger),
		logger:  logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve turns a deploy intent into a resolved plan. Validation runs first
// and short-circuits the resolution; no partial plan is ever returned.
func (r *Resolver) Resolve(ctx context.Context, intent DeployIntent) (*ResolvedPlan, error) {
	intent = intent.ApplyDefaults()

	if err := Validate(intent); err != nil {
		r.logger.Warn().
			Str("constraint", ConstraintOf(err)).
			Msg("Intent rejected")
		return nil, err
	}

	secret, err := GenerateSecretMaterial(intent)
	if err != nil {
		return nil, err
	}

	plan, err := r.builder.Build(ctx, intent, secret)
	if err != nil {
		return nil, err
	}

	r.logger.Info().
		Str("plan_id", plan.ID).
		Int("descriptors", plan.Summary.TotalDescriptors).
		Bool("secret_generated", plan.Summary.SecretGenerated).
		Msg("Resolution complete")

	return plan, nil
}
