package workers

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
)

// Cost model constants.
const (
	HourlyRate      = 75.0
	HoursPerWeek    = 40.0
	ContingencyRate = 0.2
	Currency        = "USD"

	maxTeamSize       = 8
	longProjectWeeks  = 20
	complexScopeItems = 12
)

// Risk score thresholds on the 0-100 scale.
const (
	riskMediumAbove = 40.0
	riskHighAbove   = 70.0
)

// Planning derives a timeline, a cost estimate and a risk assessment.
type Planning struct {
	base
}

// NewPlanning creates the planning worker.
func NewPlanning(opts Options) *Planning {
	return &Planning{base: newBase(orchestrator.WorkerPlanning, opts)}
}

// Contract implements orchestrator.Worker.
func (p *Planning) Contract() orchestrator.Contract {
	return orchestrator.Contract{
		Inputs:    []string{KeyComponents, KeyRequirements},
		Outputs:   []string{KeyTimeline, KeyCosts, KeyRisks},
		Artifacts: []orchestrator.ArtifactKind{orchestrator.ArtifactProjectPlan},
	}
}

// Run implements orchestrator.Worker.
func (p *Planning) Run(ctx context.Context, in orchestrator.WorkerInput) (orchestrator.WorkerOutput, error) {
	var comps Components
	if err := p.decode(in, KeyComponents, &comps); err != nil {
		return orchestrator.WorkerOutput{}, err
	}
	var reqs Requirements
	if err := p.decode(in, KeyRequirements, &reqs); err != nil {
		return orchestrator.WorkerOutput{}, err
	}
	if len(comps.Items) == 0 {
		return orchestrator.WorkerOutput{}, p.fatal("no components to plan")
	}

	in.Report("building timeline", 20)
	timeline := BuildTimeline(comps.Items)

	in.Report("estimating costs", 50)
	team := TeamSize(len(comps.Items))
	costs := EstimateCosts(team, timeline.TotalWeeks)
	costs.TenderBudget = reqs.Budget

	in.Report("assessing risks", 80)
	risks := AssessRisks(timeline, team, reqs)

	plan := renderPlan(timeline, costs, risks)

	p.logger.Info(ctx, "plan ready",
		zap.Int("weeks", timeline.TotalWeeks),
		zap.Int("team_size", team),
		zap.Float64("total_cost", costs.Total),
		zap.String("risk", string(risks.Overall)),
	)
	in.Report("plan ready", 100)

	return orchestrator.WorkerOutput{
		Writes: []orchestrator.Write{
			{Key: KeyTimeline, Value: timeline},
			{Key: KeyCosts, Value: costs},
			{Key: KeyRisks, Value: risks},
		},
		Artifacts: []orchestrator.ArtifactDraft{
			{Kind: orchestrator.ArtifactProjectPlan, Name: "project-plan.md", Content: plan},
		},
	}, nil
}

// BuildTimeline lays out the delivery phases back to back.
func BuildTimeline(cs []Component) Timeline {
	integration := false
	names := make([]string, 0, len(cs))
	for _, c := range cs {
		names = append(names, c.Name)
		if c.Layer == LayerIntegration {
			integration = true
		}
	}

	testWeeks := 2
	if integration {
		testWeeks++
	}
	phases := []PlanPhase{
		{Name: "Discovery", Weeks: 2, Deliverables: []string{"Confirmed requirements", "Backlog"}},
		{Name: "Design", Weeks: 2 + (len(cs)+2)/3, Deliverables: []string{"Architecture decision records", "UX prototypes"}},
		{Name: "Implementation", Weeks: 2 * len(cs), Deliverables: names},
		{Name: "Integration and Testing", Weeks: testWeeks, Deliverables: []string{"Test reports", "Acceptance sign-off"}},
		{Name: "Deployment", Weeks: 1, Deliverables: []string{"Production release", "Handover"}},
	}

	week := 1
	total := 0
	for i := range phases {
		phases[i].StartWeek = week
		week += phases[i].Weeks
		total += phases[i].Weeks
	}
	return Timeline{Phases: phases, TotalWeeks: total}
}

// TeamSize grows with the number of components.
func TeamSize(components int) int {
	size := 2 + (components+1)/2
	if size > maxTeamSize {
		size = maxTeamSize
	}
	return size
}

// EstimateCosts prices labor and adds the contingency.
func EstimateCosts(teamSize, weeks int) Costs {
	labor := float64(teamSize) * HourlyRate * HoursPerWeek * float64(weeks)
	contingency := labor * ContingencyRate
	return Costs{
		Currency:     Currency,
		HourlyRate:   HourlyRate,
		HoursPerWeek: HoursPerWeek,
		TeamSize:     teamSize,
		Weeks:        weeks,
		Labor:        labor,
		Contingency:  contingency,
		Total:        labor + contingency,
	}
}

// AssessRisks scores identified risks as the mean of probability times
// impact over the 3x3 maximum, on a 0-100 scale.
func AssessRisks(t Timeline, teamSize int, reqs Requirements) Risks {
	var items []Risk
	if t.TotalWeeks > longProjectWeeks {
		items = append(items, Risk{Category: "timeline", Description: "Long project duration",
			Probability: LevelMedium, Impact: LevelHigh, Mitigation: "Break delivery into increments with regular checkpoints"})
	}
	if teamSize < 3 {
		items = append(items, Risk{Category: "team", Description: "Small team size",
			Probability: LevelHigh, Impact: LevelMedium, Mitigation: "Reserve additional capacity or extend the timeline"})
	}
	if len(reqs.Items) > complexScopeItems {
		items = append(items, Risk{Category: "scope", Description: "Complex project scope",
			Probability: LevelMedium, Impact: LevelHigh, Mitigation: "Agile delivery with scope reviews every iteration"})
	}
	if len(reqs.Budget) == 0 {
		items = append(items, Risk{Category: "budget", Description: "Budget not stated in the tender",
			Probability: LevelMedium, Impact: LevelMedium, Mitigation: "Agree a budget envelope before design starts"})
	}
	items = append(items, Risk{Category: "technology", Description: "Integration complexity",
		Probability: LevelMedium, Impact: LevelMedium, Mitigation: "Early prototyping and proof of concept"})

	sum := 0
	for _, r := range items {
		sum += r.Probability.weight() * r.Impact.weight()
	}
	score := float64(sum) / float64(len(items)*9) * 100
	score = math.Round(score*10) / 10

	return Risks{Items: items, Score: score, Overall: riskLevel(score)}
}

func riskLevel(score float64) Level {
	switch {
	case score > riskHighAbove:
		return LevelHigh
	case score > riskMediumAbove:
		return LevelMedium
	default:
		return LevelLow
	}
}

func renderPlan(t Timeline, c Costs, r Risks) string {
	var sb strings.Builder
	sb.WriteString("# Project Plan\n\n## Timeline\n\n")
	sb.WriteString("| Phase | Start week | Weeks | Deliverables |\n|---|---|---|---|\n")
	for _, p := range t.Phases {
		fmt.Fprintf(&sb, "| %s | %d | %d | %s |\n", p.Name, p.StartWeek, p.Weeks, strings.Join(p.Deliverables, ", "))
	}
	fmt.Fprintf(&sb, "\nTotal duration: %d weeks\n\n", t.TotalWeeks)

	sb.WriteString("## Costs\n\n")
	fmt.Fprintf(&sb, "- Team: %d people at %.0f %s/h, %.0f h/week for %d weeks\n", c.TeamSize, c.HourlyRate, c.Currency, c.HoursPerWeek, c.Weeks)
	fmt.Fprintf(&sb, "- Labor: %s\n", money(c.Labor, c.Currency))
	fmt.Fprintf(&sb, "- Contingency (%.0f%%): %s\n", ContingencyRate*100, money(c.Contingency, c.Currency))
	fmt.Fprintf(&sb, "- Total: %s\n", money(c.Total, c.Currency))
	if len(c.TenderBudget) > 0 {
		fmt.Fprintf(&sb, "- Tender budget: %s\n", strings.Join(c.TenderBudget, "; "))
	}

	fmt.Fprintf(&sb, "\n## Risks\n\nOverall: %s (score %.1f)\n\n", r.Overall, r.Score)
	for _, it := range r.Items {
		fmt.Fprintf(&sb, "- %s (%s probability, %s impact): %s\n", it.Description, it.Probability, it.Impact, it.Mitigation)
	}
	return sb.String()
}

func money(v float64, currency string) string {
	whole := int64(math.Round(v))
	s := fmt.Sprintf("%d", whole)
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	return string(out) + " " + currency
}
