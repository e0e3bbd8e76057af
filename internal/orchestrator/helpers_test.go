package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/fyrsmithlabs/proposald/internal/knowledge"
	"github.com/fyrsmithlabs/proposald/internal/logging"
)

// MockWorker is a testify mock implementation of Worker.
type MockWorker struct {
	mock.Mock
	name     string
	contract Contract
}

func NewMockWorker(name string, contract Contract) *MockWorker {
	return &MockWorker{name: name, contract: contract}
}

func (m *MockWorker) Name() string       { return m.name }
func (m *MockWorker) Contract() Contract { return m.contract }

func (m *MockWorker) Run(ctx context.Context, in WorkerInput) (WorkerOutput, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(WorkerOutput), args.Error(1)
}

// MockEmitter is a testify mock implementation of TraceEmitter.
type MockEmitter struct {
	mock.Mock
}

func (m *MockEmitter) EmitTransition(ctx context.Context, t Transition) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

// funcWorker is a Worker backed by a function.
type funcWorker struct {
	name     string
	contract Contract
	run      func(ctx context.Context, in WorkerInput) (WorkerOutput, error)
}

func (w *funcWorker) Name() string       { return w.name }
func (w *funcWorker) Contract() Contract { return w.contract }
func (w *funcWorker) Run(ctx context.Context, in WorkerInput) (WorkerOutput, error) {
	return w.run(ctx, in)
}

func fastRetry() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}
}

func testConfig() Config {
	return Config{
		MaxClarificationRounds: 5,
		WorkerTimeout:          time.Second,
		Retry:                  fastRetry(),
	}
}

func newTestStore() *knowledge.Store {
	return knowledge.NewStore(knowledge.NewMemoryRepository())
}

func newTestWorkspace(t *testing.T, sessionID string) *Workspace {
	t.Helper()
	d := newDispatcher(logging.NewNop())
	t.Cleanup(func() { _ = d.close(context.Background()) })
	return &Workspace{
		SessionID: sessionID,
		Knowledge: newTestStore(),
		Gaps:      NewGapTracker(nil, nil),
		Journal:   newJournal(),
		Progress:  newProgressHub(d, time.Now, nil),
	}
}

// pipeline builds the five standard workers with overridable behaviour.
type pipeline struct {
	mu sync.Mutex

	// gapTopics are reported by analysis until a clarification record exists.
	gapTopics []string

	analysisRuns int
	lastAnalysis WorkerInput

	strategy      func(ctx context.Context, in WorkerInput) (WorkerOutput, error)
	visualization func(ctx context.Context, in WorkerInput) (WorkerOutput, error)
	planning      func(ctx context.Context, in WorkerInput) (WorkerOutput, error)
	writing       func(ctx context.Context, in WorkerInput) (WorkerOutput, error)
}

func (p *pipeline) workers() []Worker {
	orDefault := func(fn, def func(context.Context, WorkerInput) (WorkerOutput, error)) func(context.Context, WorkerInput) (WorkerOutput, error) {
		if fn != nil {
			return fn
		}
		return def
	}
	return []Worker{
		&funcWorker{
			name:     WorkerAnalysis,
			contract: Contract{Inputs: []string{InputDocumentKey, "clarification.*"}, Outputs: []string{"analysis.requirements", "analysis.summary"}},
			run:      p.runAnalysis,
		},
		&funcWorker{
			name:     WorkerStrategy,
			contract: Contract{Inputs: []string{"analysis.*"}, Outputs: []string{"strategy.solution", "strategy.components"}},
			run: orDefault(p.strategy, func(ctx context.Context, in WorkerInput) (WorkerOutput, error) {
				return WorkerOutput{Writes: []Write{
					{Key: "strategy.solution", Value: "web platform"},
					{Key: "strategy.components", Value: []string{"api", "ui"}},
				}}, nil
			}),
		},
		&funcWorker{
			name:     WorkerVisualization,
			contract: Contract{Inputs: []string{"strategy.components"}, Outputs: []string{"visualization.diagrams"}, Artifacts: []ArtifactKind{ArtifactDiagram}},
			run: orDefault(p.visualization, func(ctx context.Context, in WorkerInput) (WorkerOutput, error) {
				return WorkerOutput{
					Writes:    []Write{{Key: "visualization.diagrams", Value: "graph TD; api-->ui"}},
					Artifacts: []ArtifactDraft{{Kind: ArtifactDiagram, Name: "system", Content: "graph TD; api-->ui"}},
				}, nil
			}),
		},
		&funcWorker{
			name:     WorkerPlanning,
			contract: Contract{Inputs: []string{"strategy.components", "analysis.requirements"}, Outputs: []string{"planning.timeline"}, Artifacts: []ArtifactKind{ArtifactProjectPlan}},
			run: orDefault(p.planning, func(ctx context.Context, in WorkerInput) (WorkerOutput, error) {
				return WorkerOutput{
					Writes:    []Write{{Key: "planning.timeline", Value: "12 weeks"}},
					Artifacts: []ArtifactDraft{{Kind: ArtifactProjectPlan, Name: "plan", Content: "12 weeks"}},
				}, nil
			}),
		},
		&funcWorker{
			name:     WorkerWriting,
			contract: Contract{Inputs: []string{"analysis.*", "strategy.*", "visualization.*", "planning.*"}, Outputs: []string{"proposal.document"}, Artifacts: []ArtifactKind{ArtifactProposalDocument}},
			run: orDefault(p.writing, func(ctx context.Context, in WorkerInput) (WorkerOutput, error) {
				return WorkerOutput{
					Writes:    []Write{{Key: "proposal.document", Value: "# Proposal"}},
					Artifacts: []ArtifactDraft{{Kind: ArtifactProposalDocument, Name: "proposal.md", Content: "# Proposal"}},
				}, nil
			}),
		},
	}
}

func (p *pipeline) runAnalysis(ctx context.Context, in WorkerInput) (WorkerOutput, error) {
	p.mu.Lock()
	p.analysisRuns++
	p.lastAnalysis = in
	topics := append([]string(nil), p.gapTopics...)
	p.mu.Unlock()

	out := WorkerOutput{Writes: []Write{
		{Key: "analysis.requirements", Value: []string{"must support SSO"}},
		{Key: "analysis.summary", Value: "portal rebuild"},
	}}
	for _, topic := range topics {
		if _, answered := in.Get(ClarificationKey(topic)); answered {
			continue
		}
		out.Gaps = append(out.Gaps, GapReport{Topic: topic, Question: "Please specify the " + topic, Priority: PriorityHigh})
	}
	return out, nil
}

func (p *pipeline) analysisCalls() (int, WorkerInput) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.analysisRuns, p.lastAnalysis
}

func newTestOrchestrator(t *testing.T, p *pipeline, opts ...Option) *Orchestrator {
	t.Helper()
	return newTestOrchestratorWithConfig(t, testConfig(), p, opts...)
}

func newTestOrchestratorWithConfig(t *testing.T, cfg Config, p *pipeline, opts ...Option) *Orchestrator {
	t.Helper()
	o := New(newTestStore(), cfg, opts...)
	t.Cleanup(func() { _ = o.Close(context.Background()) })
	for _, w := range p.workers() {
		if err := o.RegisterWorker(w); err != nil {
			t.Fatalf("register worker: %v", err)
		}
	}
	for _, spec := range StandardPhases() {
		if err := o.RegisterPhase(spec); err != nil {
			t.Fatalf("register phase: %v", err)
		}
	}
	return o
}

func statesOf(ts []Transition) []State {
	out := make([]State, 0, len(ts)+1)
	for i, tr := range ts {
		if i == 0 {
			out = append(out, tr.From)
		}
		out = append(out, tr.To)
	}
	return out
}

func invocationsOf(st Status, worker string) []WorkerInvocation {
	var out []WorkerInvocation
	for _, inv := range st.Invocations {
		if inv.WorkerName == worker {
			out = append(out, inv)
		}
	}
	return out
}
