package resolver

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Emitter renders a resolved plan for its two audiences: machine output that
// carries the secret material for the executor, and human renderings where
// every sensitive path is redacted.
type Emitter struct{}

// NewEmitter creates a plan emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// EmitJSON renders the machine-consumable plan. Secret material is included;
// this output exists so an executor can apply the plan, and must be handled
// accordingly.
func (e *Emitter) EmitJSON(plan *ResolvedPlan) ([]byte, error) {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return nil, NewInternalError("plan serialization failed", err)
	}
	return append(data, '\n'), nil
}

// EmitRedactedJSON renders the plan as JSON with every sensitive path
// replaced by the redaction marker.
func (e *Emitter) EmitRedactedJSON(plan *ResolvedPlan) ([]byte, error) {
	doc, err := e.redactedDocument(plan)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, NewInternalError("plan serialization failed", err)
	}
	return append(data, '\n'), nil
}

// EmitYAML renders the plan as YAML. YAML output is always redacted; it is a
// human surface, never executor input.
func (e *Emitter) EmitYAML(plan *ResolvedPlan) ([]byte, error) {
	doc, err := e.redactedDocument(plan)
	if err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, NewInternalError("plan serialization failed", err)
	}
	return data, nil
}

// RedactedDocument returns the plan as a generic JSON document with every
// sensitive path redacted. Consumers that inspect plans without applying them
// (policy evaluation, history storage) work on this form so secret material
// never crosses their boundary.
func (e *Emitter) RedactedDocument(plan *ResolvedPlan) (map[string]any, error) {
	return e.redactedDocument(plan)
}

// redactedDocument round-trips the plan through JSON into a generic document
// and overwrites every sensitive path. Working on the generic form keeps
// redaction independent of the property struct for each kind.
func (e *Emitter) redactedDocument(plan *ResolvedPlan) (map[string]any, error) {
	data, err := json.Marshal(plan)
	if err != nil {
		return nil, NewInternalError("plan serialization failed", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, NewInternalError("plan serialization failed", err)
	}

	descriptors, _ := doc["descriptors"].([]any)
	for i, raw := range descriptors {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		props, ok := entry["properties"].(map[string]any)
		if !ok {
			continue
		}
		for _, path := range plan.Descriptors[i].SensitivePaths {
			if err := redactPath(props, path); err != nil {
				return nil, NewInternalError(
					fmt.Sprintf("descriptor %s: %v", plan.Descriptors[i].ID, err), nil,
				).WithDescriptor(plan.Descriptors[i].ID)
			}
		}
	}
	return doc, nil
}

// redactPath overwrites the value at a dot path inside a generic property
// map. A path that resolves to nothing is an internal error: a descriptor
// declaring a sensitive path that its properties do not carry means the
// builder and the property struct disagree.
func redactPath(props map[string]any, path string) error {
	segments := strings.Split(path, ".")
	node := props
	for _, seg := range segments[:len(segments)-1] {
		next, ok := node[seg].(map[string]any)
		if !ok {
			return fmt.Errorf("sensitive path %q not present in properties", path)
		}
		node = next
	}
	leaf := segments[len(segments)-1]
	if _, ok := node[leaf]; !ok {
		return fmt.Errorf("sensitive path %q not present in properties", path)
	}
	node[leaf] = SecretRedacted
	return nil
}

// EmitDOT generates a DOT rendering of the plan's dependency graph for
// Graphviz. Nodes are grouped by topological level; output is redaction-safe
// since only IDs and kinds appear.
func (e *Emitter) EmitDOT(plan *ResolvedPlan) (string, error) {
	if plan.Graph == nil {
		return "", NewInternalError("plan has no graph", nil)
	}

	kinds := make(map[string]Kind, len(plan.Descriptors))
	for _, d := range plan.Descriptors {
		kinds[d.ID] = d.Kind
	}

	byLevel := make([][]string, plan.Graph.Depth)
	for id, node := range plan.Graph.Nodes {
		byLevel[node.Level] = append(byLevel[node.Level], id)
	}

	var sb strings.Builder
	sb.WriteString("digraph ResolvedPlan {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, ids := range byLevel {
		sort.Strings(ids)
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")
		for _, id := range ids {
			label := fmt.Sprintf("%s\\n%s", id, kinds[id])
			sb.WriteString(fmt.Sprintf("    %q [label=\"%s\", fillcolor=%q, style=\"filled,rounded\"];\n",
				id, label, kindColor(kinds[id])))
		}
		sb.WriteString("  }\n\n")
	}

	for _, edge := range plan.Graph.Edges {
		sb.WriteString(fmt.Sprintf("  %q -> %q;\n", edge.From, edge.To))
	}

	sb.WriteString("}\n")
	return sb.String(), nil
}

// kindColor returns a fill color per descriptor kind group.
func kindColor(kind Kind) string {
	switch kind {
	case KindContainerRegistry, KindRegistryLifecyclePolicy:
		return "lightyellow"
	case KindComputeFunction, KindFunctionEndpoint, KindLogSink:
		return "lightgreen"
	case KindCdn, KindCdnOriginAccessControl:
		return "lightblue"
	case KindWebAcl, KindIpAllowList:
		return "lightcoral"
	case KindTrustRole, KindRolePolicy, KindInvokePermission:
		return "lightgray"
	default:
		return "white"
	}
}
