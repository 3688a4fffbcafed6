// Package resolver implements the deployment configuration resolver: it turns
// a declarative DeployIntent (feature flags, retention parameters, network
// allow-lists) into a validated ResolvedPlan of typed resource descriptors
// with explicit dependency edges.
//
// The resolution pipeline is Validate -> Secret -> Build -> Emit:
//
//	intent, _ := intentfile.Load(ctx, "deploy.cue")
//	if err := resolver.Validate(intent); err != nil { ... }
//	secret, _ := resolver.GenerateSecretMaterial(intent)
//	plan, _ := resolver.NewBuilder(logger).Build(ctx, intent, secret)
//	out, _ := resolver.NewEmitter().EmitJSON(plan)
//
// The resolver is pure apart from the single random draw used for origin
// verification secrets. It never talks to a cloud API; applying the plan,
// diffing against live state, and state persistence belong to the external
// provisioning executor.
package resolver
