package orchestrator

import (
	"time"

	"github.com/fyrsmithlabs/proposald/internal/knowledge"
)

// State is a node of the session state machine.
type State string

const (
	// StateInit is the state of a session that has not started analysis.
	StateInit State = "init"

	// StateAnalyzing runs the analysis worker.
	StateAnalyzing State = "analyzing"

	// StateAwaitingClarification suspends the session until every gap is resolved.
	StateAwaitingClarification State = "awaiting_clarification"

	// StateDesigningSolution runs the strategy worker.
	StateDesigningSolution State = "designing_solution"

	// StateVisualizingPlanning runs visualization and planning concurrently.
	StateVisualizingPlanning State = "visualizing_planning"

	// StateWriting runs the writing worker.
	StateWriting State = "writing"

	// StateCompleted is terminal: the proposal document was produced.
	StateCompleted State = "completed"

	// StateFailed is terminal: a phase failed or the session was cancelled.
	StateFailed State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// GapStatus is the lifecycle status of a gap.
type GapStatus string

const (
	GapOpen     GapStatus = "open"
	GapAnswered GapStatus = "answered"
	GapAssumed  GapStatus = "assumed"
)

// GapPriority orders gaps for presentation to the operator.
type GapPriority string

const (
	PriorityHigh   GapPriority = "high"
	PriorityMedium GapPriority = "medium"
	PriorityLow    GapPriority = "low"
)

func (p GapPriority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Gap is a missing-information item raised by a worker.
type Gap struct {
	ID         string      `json:"gap_id"`
	SessionID  string      `json:"session_id"`
	RaisedBy   string      `json:"raised_by"`
	Topic      string      `json:"topic"`
	Question   string      `json:"question"`
	Priority   GapPriority `json:"priority"`
	Status     GapStatus   `json:"status"`
	Resolution string      `json:"resolution,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty"`
}

// InvocationStatus is the lifecycle status of a worker invocation.
type InvocationStatus string

const (
	InvocationPending   InvocationStatus = "pending"
	InvocationRetrying  InvocationStatus = "retrying"
	InvocationSucceeded InvocationStatus = "succeeded"
	InvocationFailed    InvocationStatus = "failed"
	InvocationCancelled InvocationStatus = "cancelled"
)

// Terminal reports whether the invocation has finished.
func (s InvocationStatus) Terminal() bool {
	return s == InvocationSucceeded || s == InvocationFailed || s == InvocationCancelled
}

// WorkerInvocation records one dispatch of a worker, across all its attempts.
type WorkerInvocation struct {
	ID            string           `json:"invocation_id"`
	WorkerName    string           `json:"worker_name"`
	SessionID     string           `json:"session_id"`
	Phase         string           `json:"phase"`
	InputSnapshot []knowledge.Ref  `json:"input_snapshot"`
	Output        []knowledge.Ref  `json:"output,omitempty"`
	Status        InvocationStatus `json:"status"`
	AttemptCount  int              `json:"attempt_count"`
	Error         string           `json:"error,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    *time.Time       `json:"finished_at,omitempty"`
}

// ArtifactKind categorizes produced deliverables.
type ArtifactKind string

const (
	ArtifactDiagram          ArtifactKind = "diagram"
	ArtifactProjectPlan      ArtifactKind = "project_plan"
	ArtifactProposalDocument ArtifactKind = "proposal_document"
)

// Artifact is a deliverable produced by a successful worker invocation.
type Artifact struct {
	ID           string       `json:"artifact_id"`
	Kind         ArtifactKind `json:"kind"`
	Name         string       `json:"name"`
	SessionID    string       `json:"session_id"`
	Content      string       `json:"content"`
	ProducedBy   string       `json:"produced_by"`
	InvocationID string       `json:"invocation_id"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Outcome is the terminal result of a session.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// TerminalResult describes how a session ended.
type TerminalResult struct {
	Outcome     Outcome   `json:"outcome"`
	FailedPhase string    `json:"failed_phase,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	ArtifactID  string    `json:"artifact_id,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Session identifies one end-to-end workflow run.
type Session struct {
	ID                  string          `json:"session_id"`
	OwnerID             string          `json:"owner_id"`
	State               State           `json:"phase"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	ClarificationRounds int             `json:"clarification_rounds"`
	Result              *TerminalResult `json:"terminal_result,omitempty"`
}

// Transition is one recorded state change.
type Transition struct {
	SessionID string    `json:"session_id"`
	From      State     `json:"from_state"`
	To        State     `json:"to_state"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Status is a point-in-time view of a session for operators.
type Status struct {
	Session         Session            `json:"session"`
	CompletedPhases []string           `json:"completed_phases"`
	RemainingPhases []string           `json:"remaining_phases"`
	Progress        int                `json:"progress"`
	NextStep        string             `json:"next_step"`
	OpenGaps        []Gap              `json:"open_gaps"`
	Gaps            []Gap              `json:"gaps"`
	Invocations     []WorkerInvocation `json:"invocations"`
	Artifacts       []Artifact         `json:"artifacts"`
	Records         []knowledge.Ref    `json:"records"`
	Transitions     []Transition       `json:"transitions"`
}

// StartInput is the operator request that creates a session.
type StartInput struct {
	OwnerID  string `json:"owner_id"`
	Content  string `json:"content"`
	Filename string `json:"filename,omitempty"`
}
