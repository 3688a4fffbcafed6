package resolver

import (
	"time"
)

// ResolvedPlan is the output of one resolution: an ordered set of resource
// descriptors with their dependency graph. No partial plan is ever produced;
// validation failures short-circuit before the first descriptor exists.
type ResolvedPlan struct {
	// ID is the unique identifier for this resolution.
	ID string `json:"id"`

	// CreatedAt is when the plan was resolved.
	CreatedAt time.Time `json:"created_at"`

	// Intent is the defaulted, validated input the plan was resolved from.
	Intent DeployIntent `json:"intent"`

	// Descriptors are in dependency order: every descriptor appears after
	// everything it depends on.
	Descriptors []Descriptor `json:"descriptors"`

	// Graph is the dependency DAG over Descriptors.
	Graph *Graph `json:"graph,omitempty"`

	// Summary provides high-level statistics about the plan.
	Summary PlanSummary `json:"summary"`
}

// PlanSummary provides statistics about a resolved plan.
type PlanSummary struct {
	// TotalDescriptors is the number of descriptors in the plan.
	TotalDescriptors int `json:"total_descriptors"`

	// ByKind counts descriptors per kind.
	ByKind map[Kind]int `json:"by_kind"`

	// SecretGenerated reports whether this resolution drew a shared secret.
	SecretGenerated bool `json:"secret_generated"`
}

// Descriptor returns the descriptor with the given ID, or nil.
func (p *ResolvedPlan) Descriptor(id string) *Descriptor {
	for i := range p.Descriptors {
		if p.Descriptors[i].ID == id {
			return &p.Descriptors[i]
		}
	}
	return nil
}

// ByKind returns all descriptors of the given kind, in plan order.
func (p *ResolvedPlan) ByKind(kind Kind) []Descriptor {
	var out []Descriptor
	for _, d := range p.Descriptors {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// HasKind reports whether the plan contains at least one descriptor of the
// given kind.
func (p *ResolvedPlan) HasKind(kind Kind) bool {
	for _, d := range p.Descriptors {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

func summarize(descriptors []Descriptor, secretGenerated bool) PlanSummary {
	s := PlanSummary{
		TotalDescriptors: len(descriptors),
		ByKind:           make(map[Kind]int),
		SecretGenerated:  secretGenerated,
	}
	for _, d := range descriptors {
		s.ByKind[d.Kind]++
	}
	return s
}
