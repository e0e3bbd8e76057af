package orchestrator

import "fmt"

// transitions lists the allowed successors of each state. Failed is reachable
// from every non-terminal state through cancellation.
var transitions = map[State][]State{
	StateInit:                  {StateAnalyzing, StateFailed},
	StateAnalyzing:             {StateAwaitingClarification, StateDesigningSolution, StateFailed},
	StateAwaitingClarification: {StateAnalyzing, StateDesigningSolution, StateFailed},
	StateDesigningSolution:     {StateVisualizingPlanning, StateFailed},
	StateVisualizingPlanning:   {StateWriting, StateFailed},
	StateWriting:               {StateCompleted, StateFailed},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to State) error {
	if from.Terminal() {
		return ErrSessionTerminal
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Canonical phase names.
const (
	PhaseAnalysis              = "analysis"
	PhaseStrategy              = "strategy"
	PhaseVisualizationPlanning = "visualization_planning"
	PhaseWriting               = "writing"
)

// Canonical worker names. Progress is measured against this list.
const (
	WorkerAnalysis      = "analysis"
	WorkerStrategy      = "strategy"
	WorkerVisualization = "visualization"
	WorkerPlanning      = "planning"
	WorkerWriting       = "writing"
)

var workerOrder = []string{WorkerAnalysis, WorkerStrategy, WorkerVisualization, WorkerPlanning, WorkerWriting}

// phaseFor maps a working state to the phase it runs.
var phaseFor = map[State]string{
	StateAnalyzing:           PhaseAnalysis,
	StateDesigningSolution:   PhaseStrategy,
	StateVisualizingPlanning: PhaseVisualizationPlanning,
	StateWriting:             PhaseWriting,
}

// StandardPhases returns the phase layout of the proposal workflow.
func StandardPhases() []PhaseSpec {
	return []PhaseSpec{
		{Name: PhaseAnalysis, Workers: []string{WorkerAnalysis}, Mode: Sequential},
		{Name: PhaseStrategy, Workers: []string{WorkerStrategy}, Mode: Sequential},
		{Name: PhaseVisualizationPlanning, Workers: []string{WorkerVisualization, WorkerPlanning}, Mode: Concurrent},
		{Name: PhaseWriting, Workers: []string{WorkerWriting}, Mode: Sequential},
	}
}

// nextStep describes the operator-facing next action for a state.
func nextStep(s State, openGaps int) string {
	switch s {
	case StateInit:
		return "start analysis"
	case StateAnalyzing:
		return "analyzing the request"
	case StateAwaitingClarification:
		if openGaps > 0 {
			return fmt.Sprintf("answer %d open question(s)", openGaps)
		}
		return "resume the workflow"
	case StateDesigningSolution:
		return "designing the solution"
	case StateVisualizingPlanning:
		return "producing diagrams and project plan"
	case StateWriting:
		return "writing the proposal"
	case StateCompleted:
		return "proposal ready"
	default:
		return "none"
	}
}
