package workers

import (
	"fmt"

	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
)

// Standard returns the five built-in workers in phase order.
func Standard(opts Options) ([]orchestrator.Worker, error) {
	analysis, err := NewAnalysis(opts)
	if err != nil {
		return nil, err
	}
	return []orchestrator.Worker{
		analysis,
		NewStrategy(opts),
		NewVisualization(opts),
		NewPlanning(opts),
		NewWriting(opts),
	}, nil
}

// Register installs the standard workers and phases on o. Key schema
// conflicts between concurrent workers surface here, before any session.
func Register(o *orchestrator.Orchestrator, opts Options) error {
	ws, err := Standard(opts)
	if err != nil {
		return err
	}
	for _, w := range ws {
		if err := o.RegisterWorker(w); err != nil {
			return fmt.Errorf("register worker %s: %w", w.Name(), err)
		}
	}
	for _, p := range orchestrator.StandardPhases() {
		if err := o.RegisterPhase(p); err != nil {
			return fmt.Errorf("register phase %s: %w", p.Name, err)
		}
	}
	return nil
}
