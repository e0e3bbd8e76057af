package workers

import (
	"github.com/fyrsmithlabs/proposald/internal/extraction"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
)

// Record keys written and read by the standard workers.
const (
	KeyInputDocument  = orchestrator.InputDocumentKey
	KeyClarifications = orchestrator.ClarificationKeyPrefix + "*"

	KeyRequirements = "analysis.requirements"
	KeySummary      = "analysis.summary"

	KeySolution   = "strategy.solution"
	KeyComponents = "strategy.components"

	KeyDiagrams = "visualization.diagrams"

	KeyTimeline = "planning.timeline"
	KeyCosts    = "planning.costs"
	KeyRisks    = "planning.risks"

	KeyProposal = "proposal.document"
)

// Requirements is the value of analysis.requirements.
type Requirements struct {
	Items        []extraction.Requirement `json:"items"`
	Budget       []string                 `json:"budget,omitempty"`
	Timeline     []string                 `json:"timeline,omitempty"`
	Scope        string                   `json:"scope,omitempty"`
	Technologies []string                 `json:"technologies,omitempty"`
	Domain       string                   `json:"domain,omitempty"`
}

// Summary is the value of analysis.summary.
type Summary struct {
	Text           string            `json:"text"`
	StructureScore int               `json:"structure_score"`
	Missing        []string          `json:"missing,omitempty"`
	Clarified      map[string]string `json:"clarified,omitempty"`
	Narrative      string            `json:"narrative,omitempty"`
}

// Solution is the value of strategy.solution.
type Solution struct {
	Approach     string   `json:"approach"`
	Architecture string   `json:"architecture"`
	Hosting      string   `json:"hosting"`
	Rationale    []string `json:"rationale"`
	References   []string `json:"references,omitempty"`
	Narrative    string   `json:"narrative,omitempty"`
}

// Layer places a component in the architecture.
type Layer string

const (
	LayerPresentation Layer = "presentation"
	LayerEdge         Layer = "edge"
	LayerApplication  Layer = "application"
	LayerIntegration  Layer = "integration"
	LayerData         Layer = "data"
)

// Component is one building block of the proposed solution.
type Component struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Technology  string   `json:"technology"`
	Layer       Layer    `json:"layer"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

// Components is the value of strategy.components.
type Components struct {
	Items []Component `json:"items"`
}

// Diagram is one Mermaid diagram.
type Diagram struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Mermaid string `json:"mermaid"`
}

// Diagrams is the value of visualization.diagrams.
type Diagrams struct {
	Items []Diagram `json:"items"`
}

// PlanPhase is one delivery phase of the project plan.
type PlanPhase struct {
	Name         string   `json:"name"`
	StartWeek    int      `json:"start_week"`
	Weeks        int      `json:"weeks"`
	Deliverables []string `json:"deliverables"`
}

// Timeline is the value of planning.timeline.
type Timeline struct {
	Phases     []PlanPhase `json:"phases"`
	TotalWeeks int         `json:"total_weeks"`
}

// Costs is the value of planning.costs.
type Costs struct {
	Currency     string   `json:"currency"`
	HourlyRate   float64  `json:"hourly_rate"`
	HoursPerWeek float64  `json:"hours_per_week"`
	TeamSize     int      `json:"team_size"`
	Weeks        int      `json:"weeks"`
	Labor        float64  `json:"labor"`
	Contingency  float64  `json:"contingency"`
	Total        float64  `json:"total"`
	TenderBudget []string `json:"tender_budget,omitempty"`
}

// Level grades risk probability, impact and overall exposure.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

func (l Level) weight() int {
	switch l {
	case LevelHigh:
		return 3
	case LevelMedium:
		return 2
	default:
		return 1
	}
}

// Risk is one identified project risk.
type Risk struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Probability Level  `json:"probability"`
	Impact      Level  `json:"impact"`
	Mitigation  string `json:"mitigation"`
}

// Risks is the value of planning.risks.
type Risks struct {
	Items   []Risk  `json:"items"`
	Score   float64 `json:"score"`
	Overall Level   `json:"overall"`
}
