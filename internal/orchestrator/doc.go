// Package orchestrator runs multi-agent proposal workflows.
//
// # Overview
//
// A session moves through a fixed state machine:
//
//	Init → Analyzing ⇄ AwaitingClarification → DesigningSolution
//	     → VisualizingPlanning → Writing → Completed
//
// Any non-terminal state may move to Failed, either because a phase failed
// or because the operator cancelled the session.
//
// # Key Components
//
// ## Orchestrator
//
// The Orchestrator owns sessions. Start creates one and Advance performs a
// single step: it runs the phase bound to the current state and evaluates
// the exit condition. Advance on a blocked or terminal session is a no-op,
// so operators may poll it freely.
//
// ## Scheduler
//
// The Scheduler dispatches phases. A phase is one or more workers run
// sequentially (declaration order, read-after-write visible) or concurrently
// (joined; output keys must be disjoint, checked at registration). Each
// dispatch is a WorkerInvocation retried with exponential backoff while the
// worker reports retryable errors.
//
// ## Gaps and clarification
//
// Workers report gaps for missing information. While any gap is open the
// session waits in AwaitingClarification. RequestClarification presents the
// open gaps and consumes a round; after the round cap the remaining gaps are
// assumed with BudgetExhaustedJustification. SubmitClarification stores the
// answer as a clarification.<topic> record and re-runs analysis once the last
// gap closes.
//
// ## Events
//
// Every transition is sent to TraceEmitters and every invocation update to
// the progress hub. External sinks are fed from a bounded background queue
// and never block a session.
//
// # Usage
//
//	o := orchestrator.New(store, orchestrator.DefaultConfig(),
//	    orchestrator.WithLogger(logger),
//	)
//	for _, w := range workers {
//	    _ = o.RegisterWorker(w)
//	}
//	for _, p := range orchestrator.StandardPhases() {
//	    if err := o.RegisterPhase(p); err != nil {
//	        return err
//	    }
//	}
//	sess, err := o.Start(ctx, orchestrator.StartInput{Content: tender})
//	sess, err = o.RunUntilBlocked(ctx, sess.ID)
package orchestrator
