package workers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
)

func TestWriting_SectionOrder(t *testing.T) {
	in := upstream(t, portalTender)

	out, err := NewWriting(Options{}).Run(context.Background(), in)
	require.NoError(t, err)

	var doc string
	decodeWrite(t, out, KeyProposal, &doc)
	require.True(t, strings.HasPrefix(doc, "# Technical Proposal\n"))

	last := -1
	for _, s := range []string{SectionSummary, SectionRequirements, SectionSolution, SectionArchitecture, SectionPlan, SectionAssumptions, SectionClarifications} {
		idx := strings.Index(doc, "\n## "+s+"\n")
		require.Greater(t, idx, last, s)
		last = idx
	}

	assert.Contains(t, doc, "### Functional")
	assert.Contains(t, doc, "### Constraints")
	assert.Contains(t, doc, "```mermaid\ngraph TD")
	assert.Contains(t, doc, "396,000 USD")
	assert.Contains(t, doc, "## Assumptions\n\nNone.\n")
	assert.Contains(t, doc, "## Clarifications\n\nNone.\n")

	require.Len(t, out.Artifacts, 1)
	assert.Equal(t, orchestrator.ArtifactProposalDocument, out.Artifacts[0].Kind)
	assert.Equal(t, "proposal.md", out.Artifacts[0].Name)
	assert.Equal(t, doc, out.Artifacts[0].Content)
}

func TestWriting_AssumptionsAndClarifications(t *testing.T) {
	in := upstream(t, portalTender)
	in.Gaps = []orchestrator.Gap{
		{ID: "g1", Topic: "stakeholders", Question: "Who signs off?", Status: orchestrator.GapAnswered, Resolution: "The CFO."},
		{ID: "g2", Topic: "integration", Question: "Which systems?", Status: orchestrator.GapAssumed, Resolution: orchestrator.BudgetExhaustedJustification},
		{ID: "g3", Topic: "security", Question: "Any standards?", Status: orchestrator.GapOpen},
	}

	out, err := NewWriting(Options{}).Run(context.Background(), in)
	require.NoError(t, err)

	var doc string
	decodeWrite(t, out, KeyProposal, &doc)
	assert.Contains(t, doc, "- **integration**: Which systems? Assumed: clarification budget exhausted\n")
	assert.Contains(t, doc, "- **stakeholders**: Who signs off? Answer: The CFO.\n")
	assert.NotContains(t, doc, "Any standards?")
	assert.NotContains(t, doc, "None.")
}

func TestWriting_ModelIntro(t *testing.T) {
	in := upstream(t, portalTender)
	model := &MockModel{}
	model.On("Invoke", mock.Anything, mock.Anything).Return("We will deliver the portal in 22 weeks.", nil).Once()

	out, err := NewWriting(Options{Model: model}).Run(context.Background(), in)
	require.NoError(t, err)

	var doc string
	decodeWrite(t, out, KeyProposal, &doc)
	assert.Contains(t, doc, "We will deliver the portal in 22 weeks.")
	model.AssertExpectations(t)
}

func TestWriting_MissingInputs(t *testing.T) {
	in := upstream(t, portalTender)
	delete(in.Records, KeyRisks)

	_, err := NewWriting(Options{}).Run(context.Background(), in)
	var werr *orchestrator.WorkerError
	require.True(t, errors.As(err, &werr))
	assert.False(t, werr.Retryable)
}
