package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateInit, StateAnalyzing, true},
		{StateAnalyzing, StateAwaitingClarification, true},
		{StateAnalyzing, StateDesigningSolution, true},
		{StateAwaitingClarification, StateAnalyzing, true},
		{StateAwaitingClarification, StateDesigningSolution, true},
		{StateDesigningSolution, StateVisualizingPlanning, true},
		{StateVisualizingPlanning, StateWriting, true},
		{StateWriting, StateCompleted, true},
		{StateWriting, StateFailed, true},
		{StateInit, StateDesigningSolution, false},
		{StateAnalyzing, StateWriting, false},
		{StateDesigningSolution, StateWriting, false},
		{StateDesigningSolution, StateAnalyzing, false},
		{StateCompleted, StateFailed, false},
		{StateFailed, StateAnalyzing, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestCheckTransition_Terminal(t *testing.T) {
	assert.ErrorIs(t, checkTransition(StateCompleted, StateFailed), ErrSessionTerminal)
	assert.ErrorIs(t, checkTransition(StateAnalyzing, StateWriting), ErrInvalidTransition)
	assert.NoError(t, checkTransition(StateDesigningSolution, StateFailed))
}

func TestEveryWorkingStateCanFail(t *testing.T) {
	for from := range transitions {
		assert.True(t, CanTransition(from, StateFailed), string(from))
	}
}

func TestClarificationKey(t *testing.T) {
	assert.Equal(t, "clarification.budget", ClarificationKey("budget"))
	assert.Equal(t, "clarification.success_criteria", ClarificationKey("Success Criteria"))
	assert.Equal(t, "clarification.sla-99", ClarificationKey("SLA-99"))
	assert.Equal(t, "clarification.general", ClarificationKey(""))
}

func TestPhaseProgress(t *testing.T) {
	invs := []WorkerInvocation{
		{WorkerName: WorkerAnalysis, Status: InvocationSucceeded},
		{WorkerName: WorkerAnalysis, Status: InvocationSucceeded},
		{WorkerName: WorkerStrategy, Status: InvocationFailed},
	}
	done, rest := phaseProgress(invs)
	assert.Equal(t, []string{WorkerAnalysis}, done)
	assert.Equal(t, []string{WorkerStrategy, WorkerVisualization, WorkerPlanning, WorkerWriting}, rest)
}
