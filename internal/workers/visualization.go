package workers

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
)

// Visualization renders the component list as Mermaid diagrams.
type Visualization struct {
	base
}

// NewVisualization creates the visualization worker.
func NewVisualization(opts Options) *Visualization {
	return &Visualization{base: newBase(orchestrator.WorkerVisualization, opts)}
}

// Contract implements orchestrator.Worker.
func (v *Visualization) Contract() orchestrator.Contract {
	return orchestrator.Contract{
		Inputs:    []string{KeySolution, KeyComponents},
		Outputs:   []string{KeyDiagrams},
		Artifacts: []orchestrator.ArtifactKind{orchestrator.ArtifactDiagram},
	}
}

// Run implements orchestrator.Worker.
func (v *Visualization) Run(ctx context.Context, in orchestrator.WorkerInput) (orchestrator.WorkerOutput, error) {
	var comps Components
	if err := v.decode(in, KeyComponents, &comps); err != nil {
		return orchestrator.WorkerOutput{}, err
	}
	if len(comps.Items) == 0 {
		return orchestrator.WorkerOutput{}, v.fatal("no components to draw")
	}

	var sol Solution
	if _, ok := in.Get(KeySolution); ok {
		if err := v.decode(in, KeySolution, &sol); err != nil {
			return orchestrator.WorkerOutput{}, err
		}
	}

	in.Report("rendering diagrams", 30)
	diagrams := []Diagram{
		{Name: "system-architecture", Kind: "system", Mermaid: SystemDiagram(comps.Items)},
		{Name: "data-flow", Kind: "data_flow", Mermaid: DataFlowDiagram(comps.Items)},
		{Name: "infrastructure", Kind: "infrastructure", Mermaid: InfrastructureDiagram(sol.Hosting, comps.Items)},
		{Name: "request-sequence", Kind: "sequence", Mermaid: SequenceDiagram(comps.Items)},
	}

	out := orchestrator.WorkerOutput{
		Writes: []orchestrator.Write{{Key: KeyDiagrams, Value: Diagrams{Items: diagrams}}},
	}
	for _, d := range diagrams {
		out.Artifacts = append(out.Artifacts, orchestrator.ArtifactDraft{
			Kind:    orchestrator.ArtifactDiagram,
			Name:    d.Name + ".mmd",
			Content: d.Mermaid,
		})
	}

	v.logger.Info(ctx, "diagrams rendered", zap.Int("diagrams", len(diagrams)))
	in.Report("diagrams rendered", 100)
	return out, nil
}

// SystemDiagram renders a top-down architecture diagram. Node shapes follow
// the component layer.
func SystemDiagram(cs []Component) string {
	lines := []string{"graph TD"}
	for _, c := range cs {
		lines = append(lines, "    "+node(c))
	}
	for _, c := range cs {
		for _, dep := range c.DependsOn {
			lines = append(lines, fmt.Sprintf("    %s --> %s", c.Name, dep))
		}
	}
	return strings.Join(lines, "\n")
}

// DataFlowDiagram renders a left-to-right data flow diagram.
func DataFlowDiagram(cs []Component) string {
	lines := []string{"graph LR"}
	for _, c := range cs {
		for _, dep := range c.DependsOn {
			lines = append(lines, fmt.Sprintf("    %s -->|data| %s", c.Name, dep))
		}
	}
	if len(lines) == 1 {
		for _, c := range cs {
			lines = append(lines, "    "+c.Name)
		}
	}
	return strings.Join(lines, "\n")
}

// tiers is the top-down deployment order of the layers.
var tiers = []struct {
	layer Layer
	title string
}{
	{LayerEdge, "Edge"},
	{LayerPresentation, "Presentation"},
	{LayerApplication, "Application"},
	{LayerIntegration, "Integration"},
	{LayerData, "Data"},
}

// InfrastructureDiagram groups the components into one subgraph per tier
// inside the hosting platform and links the tiers top-down.
func InfrastructureDiagram(hosting string, cs []Component) string {
	if hosting == "" {
		hosting = "Hosting"
	}
	byLayer := make(map[Layer][]Component)
	for _, c := range cs {
		l := c.Layer
		if !knownLayer(l) {
			l = LayerApplication
		}
		byLayer[l] = append(byLayer[l], c)
	}

	lines := []string{"graph TD", "    Users((Users))", fmt.Sprintf("    subgraph platform [%s]", sanitizeLabel(hosting))}
	var heads []string
	for _, t := range tiers {
		group := byLayer[t.layer]
		if len(group) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("        subgraph %s_tier [%s]", t.layer, t.title))
		for _, c := range group {
			lines = append(lines, "            "+node(c))
		}
		lines = append(lines, "        end")
		heads = append(heads, group[0].Name)
	}
	lines = append(lines, "    end")
	if len(heads) > 0 {
		lines = append(lines, "    Users --> "+heads[0])
	}
	for i := 1; i < len(heads); i++ {
		lines = append(lines, fmt.Sprintf("    %s --> %s", heads[i-1], heads[i]))
	}
	return strings.Join(lines, "\n")
}

// SequenceDiagram traces one user request through the dependency graph,
// starting at the first presentation or edge component. Every call is
// answered before the caller continues with its next dependency.
func SequenceDiagram(cs []Component) string {
	if len(cs) == 0 {
		return "sequenceDiagram"
	}
	byName := make(map[string]Component, len(cs))
	for _, c := range cs {
		byName[c.Name] = c
	}
	entry := cs[0]
	for _, l := range []Layer{LayerEdge, LayerPresentation} {
		if c, ok := firstInLayer(cs, l); ok {
			entry = c
			break
		}
	}

	lines := []string{"sequenceDiagram", "    actor User"}
	for _, c := range cs {
		lines = append(lines, fmt.Sprintf("    participant %s", c.Name))
	}
	lines = append(lines, fmt.Sprintf("    User->>%s: request", entry.Name))

	visited := map[string]bool{entry.Name: true}
	var walk func(c Component)
	walk = func(c Component) {
		for _, dep := range c.DependsOn {
			next, ok := byName[dep]
			if !ok || visited[dep] {
				continue
			}
			visited[dep] = true
			lines = append(lines, fmt.Sprintf("    %s->>%s: %s", c.Name, dep, callVerb(next.Layer)))
			walk(next)
			lines = append(lines, fmt.Sprintf("    %s-->>%s: result", dep, c.Name))
		}
	}
	walk(entry)
	lines = append(lines, fmt.Sprintf("    %s-->>User: response", entry.Name))
	return strings.Join(lines, "\n")
}

func callVerb(l Layer) string {
	switch l {
	case LayerData:
		return "query"
	case LayerIntegration:
		return "sync"
	default:
		return "call"
	}
}

func firstInLayer(cs []Component, l Layer) (Component, bool) {
	for _, c := range cs {
		if c.Layer == l {
			return c, true
		}
	}
	return Component{}, false
}

func knownLayer(l Layer) bool {
	for _, t := range tiers {
		if t.layer == l {
			return true
		}
	}
	return false
}

func sanitizeLabel(s string) string {
	return strings.NewReplacer("(", "", ")", "", "[", "", "]", "", "{", "", "}", "").Replace(s)
}

func node(c Component) string {
	label := c.Name
	if c.Technology != "" {
		label += "<br/>" + c.Technology
	}
	label = sanitizeLabel(label)
	switch c.Layer {
	case LayerPresentation:
		return fmt.Sprintf("%s[%s]", c.Name, label)
	case LayerEdge, LayerApplication:
		return fmt.Sprintf("%s(%s)", c.Name, label)
	case LayerData:
		return fmt.Sprintf("%s[(%s)]", c.Name, label)
	case LayerIntegration:
		return fmt.Sprintf("%s{{%s}}", c.Name, label)
	default:
		return fmt.Sprintf("%s[%s]", c.Name, label)
	}
}
