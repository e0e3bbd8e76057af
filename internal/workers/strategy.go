package workers

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/proposald/internal/extraction"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
)

const referenceLimit = 3

var integrationRule = regexp.MustCompile(`(?i)integrat|interface|connect|sync`)

// Strategy turns requirements into a solution approach and a component list.
// Prior solutions from the global knowledge base are cited as references.
type Strategy struct {
	base
}

// NewStrategy creates the strategy worker.
func NewStrategy(opts Options) *Strategy {
	return &Strategy{base: newBase(orchestrator.WorkerStrategy, opts)}
}

// Contract implements orchestrator.Worker.
func (s *Strategy) Contract() orchestrator.Contract {
	return orchestrator.Contract{
		Inputs:  []string{KeyRequirements, KeySummary},
		Outputs: []string{KeySolution, KeyComponents},
	}
}

// Run implements orchestrator.Worker.
func (s *Strategy) Run(ctx context.Context, in orchestrator.WorkerInput) (orchestrator.WorkerOutput, error) {
	var reqs Requirements
	if err := s.decode(in, KeyRequirements, &reqs); err != nil {
		return orchestrator.WorkerOutput{}, err
	}
	var summary Summary
	if err := s.decode(in, KeySummary, &summary); err != nil {
		return orchestrator.WorkerOutput{}, err
	}

	in.Report("searching prior solutions", 10)
	refs := s.references(ctx, in, summary, reqs)

	in.Report("selecting components", 40)
	tags := tagSet(reqs.Technologies)
	components := selectComponents(reqs, tags)

	sol := Solution{
		Approach:     approach(reqs, tags),
		Architecture: architectureStyle(tags),
		Hosting:      hosting(tags),
		Rationale:    rationale(reqs, components),
		References:   refs,
	}

	narrative, err := s.narrative(ctx, in,
		"You are a solution architect. Justify the proposed architecture in one paragraph.",
		fmt.Sprintf("Need: %s\nApproach: %s\nComponents: %s", summary.Text, sol.Approach, componentNames(components)),
	)
	if err != nil {
		return orchestrator.WorkerOutput{}, err
	}
	sol.Narrative = narrative

	s.logger.Info(ctx, "solution designed",
		zap.String("architecture", sol.Architecture),
		zap.Int("components", len(components)),
		zap.Int("references", len(refs)),
	)
	in.Report("solution designed", 100)

	return orchestrator.WorkerOutput{
		Writes: []orchestrator.Write{
			{Key: KeySolution, Value: sol},
			{Key: KeyComponents, Value: Components{Items: components}},
		},
	}, nil
}

// references looks up the global knowledge base. The lookup is best effort.
func (s *Strategy) references(ctx context.Context, in orchestrator.WorkerInput, summary Summary, reqs Requirements) []string {
	if in.Global == nil {
		return nil
	}
	query := strings.TrimSpace(summary.Text + " " + strings.Join(reqs.Technologies, " "))
	recs, err := in.Global.SearchGlobal(ctx, query, referenceLimit)
	if err != nil {
		s.logger.Warn(ctx, "global knowledge search failed", zap.Error(err))
		return nil
	}
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, fmt.Sprintf("%s: %s", r.Key, clip(r.Text(), 200)))
	}
	return out
}

func tagSet(tags []string) map[string]bool {
	m := make(map[string]bool, len(tags))
	for _, t := range tags {
		m[t] = true
	}
	return m
}

func needsIntegration(reqs Requirements, tags map[string]bool) bool {
	if tags["erp"] || tags["messaging"] {
		return true
	}
	for _, r := range reqs.Items {
		if integrationRule.MatchString(r.Text) {
			return true
		}
	}
	return false
}

func needsIdentity(reqs Requirements, tags map[string]bool) bool {
	if tags["security"] {
		return true
	}
	for _, r := range reqs.Items {
		if strings.Contains(strings.ToLower(r.Text), "log in") || strings.Contains(strings.ToLower(r.Text), "login") {
			return true
		}
	}
	return false
}

func serviceLanguage(tags map[string]bool) string {
	switch {
	case tags["java"]:
		return "Java / Spring Boot"
	case tags["dotnet"]:
		return ".NET"
	case tags["python"]:
		return "Python / FastAPI"
	case tags["typescript"]:
		return "TypeScript / Node.js"
	default:
		return "Go"
	}
}

// selectComponents derives the component list. Order is stable and every
// dependency refers to an earlier or later component of the same list.
func selectComponents(reqs Requirements, tags map[string]bool) []Component {
	client := Component{Name: "WebFrontend", Description: "Browser client for end users", Technology: "React", Layer: LayerPresentation}
	if tags["mobile"] {
		client = Component{Name: "MobileApp", Description: "iOS and Android client", Technology: "React Native", Layer: LayerPresentation}
	}
	client.DependsOn = []string{"APIGateway"}

	gateway := Component{Name: "APIGateway", Description: "Single entry point, routing and rate limiting", Technology: "REST / OpenAPI", Layer: LayerEdge, DependsOn: []string{"CoreService"}}
	core := Component{Name: "CoreService", Description: "Business logic for the requested capabilities", Technology: serviceLanguage(tags), Layer: LayerApplication, DependsOn: []string{"Database"}}
	db := Component{Name: "Database", Description: "System of record", Technology: "PostgreSQL", Layer: LayerData}

	out := []Component{client, gateway}
	if needsIdentity(reqs, tags) {
		out[1].DependsOn = append(out[1].DependsOn, "IdentityProvider")
		out = append(out, Component{Name: "IdentityProvider", Description: "Single sign-on and access control", Technology: "OIDC", Layer: LayerEdge})
	}
	if needsIntegration(reqs, tags) {
		core.DependsOn = append(core.DependsOn, "IntegrationAdapter")
	}
	if tags["data"] || tags["ml"] {
		core.DependsOn = append(core.DependsOn, "AnalyticsPipeline")
	}
	out = append(out, core, db)

	if needsIntegration(reqs, tags) {
		tech := "Connector service"
		if tags["messaging"] {
			tech = "Event bus connectors"
		}
		out = append(out, Component{Name: "IntegrationAdapter", Description: "Connects to the client's existing systems", Technology: tech, Layer: LayerIntegration})
	}
	if tags["data"] || tags["ml"] {
		out = append(out, Component{Name: "AnalyticsPipeline", Description: "Reporting and analytics over operational data", Technology: "ETL + warehouse", Layer: LayerData, DependsOn: []string{"Database"}})
	}
	return out
}

func architectureStyle(tags map[string]bool) string {
	if tags["microservices"] || tags["kubernetes"] {
		return "microservices"
	}
	return "modular monolith"
}

func hosting(tags map[string]bool) string {
	switch {
	case tags["aws"]:
		return "AWS"
	case tags["azure"]:
		return "Azure"
	case tags["gcp"]:
		return "Google Cloud"
	case tags["on_premise"]:
		return "on-premise"
	default:
		return "managed cloud"
	}
}

func approach(reqs Requirements, tags map[string]bool) string {
	s := fmt.Sprintf("A %s delivered iteratively on %s", architectureStyle(tags), hosting(tags))
	if reqs.Domain != "" {
		s += fmt.Sprintf(", focused on the %s domain", reqs.Domain)
	}
	return s + "."
}

func rationale(reqs Requirements, components []Component) []string {
	out := []string{
		fmt.Sprintf("%d requirement(s) are covered by %d component(s).", len(reqs.Items), len(components)),
	}
	for _, r := range reqs.Items {
		switch r.Category {
		case extraction.CategoryNonFunctional:
			out = append(out, "Quality attribute addressed in the design: "+r.Text)
		case extraction.CategoryConstraint:
			out = append(out, "Constraint respected: "+r.Text)
		}
	}
	return out
}

func componentNames(cs []Component) string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}
