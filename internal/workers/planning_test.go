package workers

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/proposald/internal/extraction"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
)

func sixComponents() []Component {
	return []Component{
		{Name: "WebFrontend", Layer: LayerPresentation},
		{Name: "APIGateway", Layer: LayerEdge},
		{Name: "IdentityProvider", Layer: LayerEdge},
		{Name: "CoreService", Layer: LayerApplication},
		{Name: "Database", Layer: LayerData},
		{Name: "IntegrationAdapter", Layer: LayerIntegration},
	}
}

func TestBuildTimeline(t *testing.T) {
	tl := BuildTimeline(sixComponents())

	type row struct {
		Name      string
		StartWeek int
		Weeks     int
	}
	var got []row
	for _, p := range tl.Phases {
		got = append(got, row{p.Name, p.StartWeek, p.Weeks})
	}
	want := []row{
		{"Discovery", 1, 2},
		{"Design", 3, 4},
		{"Implementation", 7, 12},
		{"Integration and Testing", 19, 3},
		{"Deployment", 22, 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("timeline mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 22, tl.TotalWeeks)
	assert.Len(t, tl.Phases[2].Deliverables, 6)
}

func TestTeamSize(t *testing.T) {
	assert.Equal(t, 3, TeamSize(1))
	assert.Equal(t, 5, TeamSize(6))
	assert.Equal(t, 8, TeamSize(20))
}

func TestEstimateCosts(t *testing.T) {
	c := EstimateCosts(5, 22)
	assert.Equal(t, 330000.0, c.Labor)
	assert.Equal(t, 66000.0, c.Contingency)
	assert.Equal(t, 396000.0, c.Total)
	assert.Equal(t, "USD", c.Currency)
}

func TestAssessRisks(t *testing.T) {
	long := Timeline{TotalWeeks: 22}
	r := AssessRisks(long, 5, Requirements{Budget: []string{"$120,000"}, Items: make([]extraction.Requirement, 6)})
	require.Len(t, r.Items, 2)
	assert.Equal(t, "timeline", r.Items[0].Category)
	assert.Equal(t, "technology", r.Items[1].Category)
	assert.Equal(t, 55.6, r.Score)
	assert.Equal(t, LevelMedium, r.Overall)

	short := Timeline{TotalWeeks: 8}
	r = AssessRisks(short, 2, Requirements{})
	require.Len(t, r.Items, 3)
	assert.Equal(t, []string{"team", "budget", "technology"}, []string{r.Items[0].Category, r.Items[1].Category, r.Items[2].Category})
	assert.Equal(t, 51.9, r.Score)
}

func TestRiskLevel(t *testing.T) {
	assert.Equal(t, LevelLow, riskLevel(40))
	assert.Equal(t, LevelMedium, riskLevel(40.1))
	assert.Equal(t, LevelMedium, riskLevel(70))
	assert.Equal(t, LevelHigh, riskLevel(70.1))
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "0 USD", money(0, "USD"))
	assert.Equal(t, "999 USD", money(999, "USD"))
	assert.Equal(t, "396,000 USD", money(396000, "USD"))
	assert.Equal(t, "1,234,567 EUR", money(1234567.4, "EUR"))
}

func TestPlanning_Run(t *testing.T) {
	in := input(
		record(t, KeyComponents, Components{Items: sixComponents()}),
		record(t, KeyRequirements, Requirements{Budget: []string{"$120,000"}}),
	)

	out, err := NewPlanning(Options{}).Run(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out.Writes, 3)

	var costs Costs
	decodeWrite(t, out, KeyCosts, &costs)
	assert.Equal(t, 396000.0, costs.Total)
	assert.Equal(t, []string{"$120,000"}, costs.TenderBudget)

	require.Len(t, out.Artifacts, 1)
	plan := out.Artifacts[0]
	assert.Equal(t, orchestrator.ArtifactProjectPlan, plan.Kind)
	assert.Contains(t, plan.Content, "# Project Plan")
	assert.Contains(t, plan.Content, "- Total: 396,000 USD")
	assert.Contains(t, plan.Content, "- Tender budget: $120,000")
	assert.Contains(t, plan.Content, "Total duration: 22 weeks")
}

func TestPlanning_MissingComponents(t *testing.T) {
	in := input(record(t, KeyRequirements, Requirements{}))

	_, err := NewPlanning(Options{}).Run(context.Background(), in)
	var werr *orchestrator.WorkerError
	require.True(t, errors.As(err, &werr))
	assert.False(t, werr.Retryable)
}
