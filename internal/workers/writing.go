package workers

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/proposald/internal/extraction"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
)

// Proposal section headings, in document order.
const (
	SectionSummary        = "Executive Summary"
	SectionRequirements   = "Requirements"
	SectionSolution       = "Proposed Solution"
	SectionArchitecture   = "Architecture"
	SectionPlan           = "Plan and Timeline"
	SectionAssumptions    = "Assumptions"
	SectionClarifications = "Clarifications"
)

// Writing assembles the proposal document from the whole session namespace.
type Writing struct {
	base
}

// NewWriting creates the writing worker.
func NewWriting(opts Options) *Writing {
	return &Writing{base: newBase(orchestrator.WorkerWriting, opts)}
}

// Contract implements orchestrator.Worker.
func (w *Writing) Contract() orchestrator.Contract {
	return orchestrator.Contract{
		Inputs:    []string{"analysis.*", "strategy.*", "visualization.*", "planning.*", KeyClarifications},
		Outputs:   []string{KeyProposal},
		Artifacts: []orchestrator.ArtifactKind{orchestrator.ArtifactProposalDocument},
	}
}

type proposalInputs struct {
	reqs     Requirements
	summary  Summary
	solution Solution
	comps    Components
	diagrams Diagrams
	timeline Timeline
	costs    Costs
	risks    Risks
}

// Run implements orchestrator.Worker.
func (w *Writing) Run(ctx context.Context, in orchestrator.WorkerInput) (orchestrator.WorkerOutput, error) {
	var p proposalInputs
	for key, v := range map[string]any{
		KeyRequirements: &p.reqs,
		KeySummary:      &p.summary,
		KeySolution:     &p.solution,
		KeyComponents:   &p.comps,
		KeyDiagrams:     &p.diagrams,
		KeyTimeline:     &p.timeline,
		KeyCosts:        &p.costs,
		KeyRisks:        &p.risks,
	} {
		if err := w.decode(in, key, v); err != nil {
			return orchestrator.WorkerOutput{}, err
		}
	}

	in.Report("drafting proposal", 20)
	intro, err := w.narrative(ctx, in,
		"You are a technical writer. Write a two sentence executive summary for a proposal.",
		fmt.Sprintf("Need: %s\nSolution: %s", p.summary.Text, p.solution.Approach),
	)
	if err != nil {
		return orchestrator.WorkerOutput{}, err
	}

	assumed := in.GapsWithStatus(orchestrator.GapAssumed)
	answered := in.GapsWithStatus(orchestrator.GapAnswered)
	doc := renderProposal(p, intro, assumed, answered)

	w.logger.Info(ctx, "proposal written",
		zap.Int("bytes", len(doc)),
		zap.Int("assumptions", len(assumed)),
		zap.Int("clarifications", len(answered)),
	)
	in.Report("proposal written", 100)

	return orchestrator.WorkerOutput{
		Writes: []orchestrator.Write{{Key: KeyProposal, Value: doc}},
		Artifacts: []orchestrator.ArtifactDraft{
			{Kind: orchestrator.ArtifactProposalDocument, Name: "proposal.md", Content: doc},
		},
	}, nil
}

// renderProposal produces the markdown proposal document.
func renderProposal(p proposalInputs, intro string, assumed, answered []orchestrator.Gap) string {
	var sb strings.Builder
	sb.WriteString("# Technical Proposal\n\n")

	section(&sb, SectionSummary)
	sb.WriteString(p.summary.Text + "\n")
	if intro != "" {
		sb.WriteString("\n" + intro + "\n")
	}
	if p.summary.Narrative != "" {
		sb.WriteString("\n" + p.summary.Narrative + "\n")
	}

	section(&sb, SectionRequirements)
	if p.reqs.Scope != "" {
		fmt.Fprintf(&sb, "Scope: %s\n\n", p.reqs.Scope)
	}
	for _, c := range []struct {
		title string
		cat   extraction.Category
	}{
		{"Functional", extraction.CategoryFunctional},
		{"Non-functional", extraction.CategoryNonFunctional},
		{"Constraints", extraction.CategoryConstraint},
	} {
		var items []string
		for _, r := range p.reqs.Items {
			if r.Category == c.cat {
				items = append(items, fmt.Sprintf("%s: %s", r.ID, r.Text))
			}
		}
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "### %s\n\n%s\n", c.title, bullets(items))
	}
	if len(p.reqs.Items) == 0 {
		sb.WriteString("No explicit requirements were stated.\n")
	}

	section(&sb, SectionSolution)
	sb.WriteString(p.solution.Approach + "\n\n")
	sb.WriteString(bullets(p.solution.Rationale))
	if p.solution.Narrative != "" {
		sb.WriteString("\n" + p.solution.Narrative + "\n")
	}
	if len(p.solution.References) > 0 {
		sb.WriteString("\nPrior work consulted:\n\n" + bullets(p.solution.References))
	}

	section(&sb, SectionArchitecture)
	fmt.Fprintf(&sb, "Style: %s, hosted on %s.\n\n", p.solution.Architecture, p.solution.Hosting)
	sb.WriteString("| Component | Layer | Technology | Purpose |\n|---|---|---|---|\n")
	for _, c := range p.comps.Items {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n", c.Name, c.Layer, c.Technology, c.Description)
	}
	for _, d := range p.diagrams.Items {
		fmt.Fprintf(&sb, "\n```mermaid\n%s\n```\n", d.Mermaid)
	}

	section(&sb, SectionPlan)
	for _, ph := range p.timeline.Phases {
		fmt.Fprintf(&sb, "- Week %d, %s (%d weeks): %s\n", ph.StartWeek, ph.Name, ph.Weeks, strings.Join(ph.Deliverables, ", "))
	}
	fmt.Fprintf(&sb, "\nTotal duration: %d weeks. Team of %d.\n", p.timeline.TotalWeeks, p.costs.TeamSize)
	fmt.Fprintf(&sb, "Estimated cost: %s including %s contingency.\n", money(p.costs.Total, p.costs.Currency), money(p.costs.Contingency, p.costs.Currency))
	fmt.Fprintf(&sb, "Overall risk: %s (score %.1f).\n", p.risks.Overall, p.risks.Score)

	section(&sb, SectionAssumptions)
	if len(assumed) == 0 {
		sb.WriteString("None.\n")
	}
	for _, g := range assumed {
		fmt.Fprintf(&sb, "- **%s**: %s Assumed: %s\n", g.Topic, g.Question, g.Resolution)
	}

	section(&sb, SectionClarifications)
	if len(answered) == 0 {
		sb.WriteString("None.\n")
	}
	for _, g := range answered {
		fmt.Fprintf(&sb, "- **%s**: %s Answer: %s\n", g.Topic, g.Question, g.Resolution)
	}
	return sb.String()
}

func section(sb *strings.Builder, title string) {
	fmt.Fprintf(sb, "\n## %s\n\n", title)
}
