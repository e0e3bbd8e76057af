package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/proposald/internal/knowledge"
	"github.com/fyrsmithlabs/proposald/internal/logging"
)

// Mode selects how the workers of a phase are executed.
type Mode string

const (
	// Sequential runs workers in declaration order; later workers see earlier writes.
	Sequential Mode = "sequential"

	// Concurrent runs workers in parallel and joins on all of them.
	Concurrent Mode = "concurrent"
)

// PhaseSpec declares a group of workers run as one scheduling unit.
type PhaseSpec struct {
	Name    string
	Workers []string
	Mode    Mode

	// BestEffort phases record failures but still count as succeeded (degraded).
	BestEffort bool
}

// PhaseResult aggregates the invocations of one phase run.
type PhaseResult struct {
	Phase       string             `json:"phase"`
	Succeeded   bool               `json:"succeeded"`
	Degraded    bool               `json:"degraded,omitempty"`
	Cancelled   bool               `json:"cancelled,omitempty"`
	Invocations []WorkerInvocation `json:"invocations"`
	Failures    []WorkerInvocation `json:"failures,omitempty"`
}

// Reason returns a human-readable description of the first failure.
func (r PhaseResult) Reason() string {
	if len(r.Failures) == 0 {
		if r.Cancelled {
			return "cancelled"
		}
		return ""
	}
	f := r.Failures[0]
	return (&PhaseError{Phase: r.Phase, Worker: f.WorkerName, Err: errors.New(f.Error)}).Error()
}

// Workspace is the session-scoped handle threaded through every phase run.
type Workspace struct {
	SessionID string
	Knowledge *knowledge.Store
	Gaps      *GapTracker
	Journal   *Journal
	Progress  *ProgressHub
}

// SearchGlobal implements GlobalSearcher.
func (w *Workspace) SearchGlobal(ctx context.Context, query string, limit int) ([]knowledge.Record, error) {
	return w.Knowledge.Search(ctx, knowledge.GlobalNamespace, query, limit)
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Retry         RetryPolicy
	WorkerTimeout time.Duration
	Logger        *logging.Logger
	Tracer        trace.Tracer
	Metrics       *Metrics
	Now           func() time.Time
}

// Scheduler dispatches phases of registered workers.
type Scheduler struct {
	mu      sync.RWMutex
	workers map[string]Worker
	phases  map[string]PhaseSpec

	retry   RetryPolicy
	timeout time.Duration
	logger  *logging.Logger
	tracer  trace.Tracer
	metrics *Metrics
	now     func() time.Time
}

// NewScheduler creates a Scheduler with no workers or phases.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	s := &Scheduler{
		workers: make(map[string]Worker),
		phases:  make(map[string]PhaseSpec),
		retry:   opts.Retry,
		timeout: opts.WorkerTimeout,
		logger:  opts.Logger,
		tracer:  opts.Tracer,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if s.timeout <= 0 {
		s.timeout = 2 * time.Minute
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer(instrumentationName)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RegisterWorker adds a worker. Names must be unique.
func (s *Scheduler) RegisterWorker(w Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.workers[w.Name()]; dup {
		return fmt.Errorf("worker %q already registered", w.Name())
	}
	for _, k := range w.Contract().Outputs {
		if err := knowledge.ValidateKey(k); err != nil {
			return fmt.Errorf("worker %q declares invalid output key %q: %w", w.Name(), k, err)
		}
	}
	s.workers[w.Name()] = w
	return nil
}

// RegisterPhase validates and adds a phase. Workers in a concurrent phase
// must declare disjoint output keys, otherwise *KeySchemaConflictError.
func (s *Scheduler) RegisterPhase(spec PhaseSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if spec.Name == "" || len(spec.Workers) == 0 {
		return fmt.Errorf("phase requires a name and at least one worker")
	}
	if spec.Mode == "" {
		spec.Mode = Sequential
	}
	if spec.Mode != Sequential && spec.Mode != Concurrent {
		return fmt.Errorf("phase %s: unknown mode %q", spec.Name, spec.Mode)
	}
	if _, dup := s.phases[spec.Name]; dup {
		return fmt.Errorf("phase %q already registered", spec.Name)
	}

	owners := make(map[string][]string)
	for _, name := range spec.Workers {
		w, ok := s.workers[name]
		if !ok {
			return fmt.Errorf("phase %s: %w: %s", spec.Name, ErrWorkerNotRegistered, name)
		}
		for _, k := range w.Contract().Outputs {
			owners[k] = append(owners[k], name)
		}
	}

	if spec.Mode == Concurrent {
		keys := make([]string, 0, len(owners))
		for k := range owners {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if len(owners[k]) > 1 {
				return &KeySchemaConflictError{Phase: spec.Name, Key: k, Workers: owners[k]}
			}
		}
	}

	s.phases[spec.Name] = spec
	return nil
}

// Phase returns a registered phase.
func (s *Scheduler) Phase(name string) (PhaseSpec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.phases[name]
	return p, ok
}

// RunPhase dispatches every worker of the named phase and waits for all of
// them. Worker errors never escape; they are reported through the result.
func (s *Scheduler) RunPhase(ctx context.Context, name string, ws *Workspace) (PhaseResult, error) {
	s.mu.RLock()
	spec, ok := s.phases[name]
	workers := make([]Worker, 0, len(spec.Workers))
	for _, wn := range spec.Workers {
		workers = append(workers, s.workers[wn])
	}
	s.mu.RUnlock()
	if !ok {
		return PhaseResult{}, fmt.Errorf("%w: %s", ErrPhaseNotRegistered, name)
	}

	ctx, span := s.tracer.Start(ctx, "phase."+name, trace.WithAttributes(
		attribute.String("session.id", ws.SessionID),
		attribute.String("phase", name),
		attribute.String("mode", string(spec.Mode)),
	))
	defer span.End()
	ctx = logging.WithPhase(ctx, name)

	var invs []WorkerInvocation
	if spec.Mode == Concurrent {
		invs = s.runConcurrent(ctx, spec, workers, ws)
	} else {
		invs = s.runSequential(ctx, spec, workers, ws)
	}

	res := PhaseResult{Phase: name, Invocations: invs, Succeeded: true}
	for _, inv := range invs {
		switch inv.Status {
		case InvocationFailed:
			res.Failures = append(res.Failures, inv)
		case InvocationCancelled:
			res.Cancelled = true
		}
	}
	if len(invs) < len(workers) && ctx.Err() != nil {
		res.Cancelled = true
	}
	switch {
	case res.Cancelled:
		res.Succeeded = false
	case len(res.Failures) > 0 && spec.BestEffort:
		res.Degraded = true
	case len(res.Failures) > 0:
		res.Succeeded = false
	}

	span.SetAttributes(
		attribute.Bool("succeeded", res.Succeeded),
		attribute.Bool("degraded", res.Degraded),
		attribute.Int("failures", len(res.Failures)),
	)
	if !res.Succeeded {
		span.SetStatus(codes.Error, res.Reason())
	}
	s.logger.Info(ctx, "phase finished",
		zap.Bool("succeeded", res.Succeeded),
		zap.Bool("degraded", res.Degraded),
		zap.Bool("cancelled", res.Cancelled),
		zap.Int("invocations", len(invs)),
	)
	return res, nil
}

func (s *Scheduler) runSequential(ctx context.Context, spec PhaseSpec, workers []Worker, ws *Workspace) []WorkerInvocation {
	out := make([]WorkerInvocation, 0, len(workers))
	for _, w := range workers {
		if ctx.Err() != nil {
			break
		}
		inv := s.invoke(ctx, spec.Name, w, ws)
		out = append(out, inv)
		if inv.Status != InvocationSucceeded && !spec.BestEffort {
			break
		}
	}
	return out
}

// runConcurrent waits for every worker to reach a terminal status, even when
// a sibling fails, so the next phase never starts while one is still running.
func (s *Scheduler) runConcurrent(ctx context.Context, spec PhaseSpec, workers []Worker, ws *Workspace) []WorkerInvocation {
	out := make([]WorkerInvocation, len(workers))
	var g errgroup.Group
	for i, w := range workers {
		i, w := i, w
		g.Go(func() error {
			out[i] = s.invoke(ctx, spec.Name, w, ws)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// invoke runs one worker with retries and commits its output on success.
func (s *Scheduler) invoke(ctx context.Context, phase string, w Worker, ws *Workspace) WorkerInvocation {
	contract := w.Contract()
	started := s.now()

	records, refs, err := s.readView(ctx, ws, contract)
	inv := ws.Journal.start(WorkerInvocation{
		ID:            uuid.NewString(),
		WorkerName:    w.Name(),
		SessionID:     ws.SessionID,
		Phase:         phase,
		InputSnapshot: refs,
		Status:        InvocationPending,
		StartedAt:     started.UTC(),
	})
	snap := ws.Journal.snapshot(inv)

	ctx = logging.WithWorker(ctx, w.Name())
	ctx = logging.WithInvocationID(ctx, inv.ID)
	ctx, span := s.tracer.Start(ctx, "worker."+w.Name(), trace.WithAttributes(
		attribute.String("session.id", ws.SessionID),
		attribute.String("worker", w.Name()),
		attribute.String("invocation.id", inv.ID),
	))
	defer span.End()

	ws.Progress.publish(ProgressEvent{SessionID: ws.SessionID, InvocationID: inv.ID, Worker: w.Name(), Phase: phase, Kind: ProgressDispatched})

	if err != nil {
		return s.finish(ctx, ws, inv, InvocationFailed, fmt.Errorf("read inputs: %w", err), started, span)
	}

	reporter := invocationReporter{hub: ws.Progress, inv: snap}
	attempt := 0
	var lastErr *WorkerError

	op := func() (WorkerOutput, error) {
		attempt++
		ws.Journal.update(inv, func(i *WorkerInvocation) { i.AttemptCount = attempt })
		ws.Progress.publish(ProgressEvent{SessionID: ws.SessionID, InvocationID: inv.ID, Worker: w.Name(), Phase: phase, Kind: ProgressAttempt, Attempt: attempt})

		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		out, runErr := runAttempt(attemptCtx, w, WorkerInput{
			SessionID: ws.SessionID,
			Records:   records,
			Gaps:      ws.Gaps.All(ws.SessionID),
			Global:    ws,
			Progress:  reporter,
			Attempt:   attempt,
		})
		if runErr == nil {
			if verr := out.validate(contract); verr != nil {
				lastErr = &WorkerError{Worker: w.Name(), Retryable: false, Err: verr}
				return out, backoff.Permanent(lastErr)
			}
			return out, nil
		}
		if ctx.Err() != nil {
			return out, backoff.Permanent(ctx.Err())
		}
		lastErr = classify(w.Name(), runErr, ctx, attemptCtx)
		if !lastErr.Retryable {
			return out, backoff.Permanent(lastErr)
		}
		return out, lastErr
	}

	notify := func(err error, next time.Duration) {
		ws.Journal.update(inv, func(i *WorkerInvocation) { i.Status = InvocationRetrying })
		ws.Progress.publish(ProgressEvent{SessionID: ws.SessionID, InvocationID: inv.ID, Worker: w.Name(), Phase: phase, Kind: ProgressRetrying, Attempt: attempt, Message: err.Error()})
		s.metrics.recordRetry(ctx, w.Name())
		s.logger.Warn(ctx, "worker attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	}

	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(s.retry.newBackOff()),
		backoff.WithMaxTries(s.retry.maxTries()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	span.SetAttributes(attribute.Int("attempts", attempt))

	if ctx.Err() != nil {
		return s.finish(ctx, ws, inv, InvocationCancelled, ctx.Err(), started, span)
	}
	if err != nil {
		if lastErr != nil {
			err = lastErr
		}
		return s.finish(ctx, ws, inv, InvocationFailed, err, started, span)
	}

	written, err := s.commit(ctx, ws, w.Name(), inv.ID, out)
	if err != nil {
		return s.finish(ctx, ws, inv, InvocationFailed, fmt.Errorf("commit output: %w", err), started, span)
	}
	ws.Journal.update(inv, func(i *WorkerInvocation) { i.Output = written })
	return s.finish(ctx, ws, inv, InvocationSucceeded, nil, started, span)
}

type attemptResult struct {
	out WorkerOutput
	err error
}

// runAttempt returns when the worker does or when ctx expires, whichever is
// first. A worker still running at the deadline is abandoned and whatever it
// returns later is dropped.
func runAttempt(ctx context.Context, w Worker, in WorkerInput) (WorkerOutput, error) {
	done := make(chan attemptResult, 1)
	go func() {
		out, err := w.Run(ctx, in)
		done <- attemptResult{out: out, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil && ctx.Err() != nil {
			return WorkerOutput{}, fmt.Errorf("worker %s finished after its deadline: %w", w.Name(), ctx.Err())
		}
		return r.out, r.err
	case <-ctx.Done():
		return WorkerOutput{}, fmt.Errorf("worker %s abandoned: %w", w.Name(), ctx.Err())
	}
}

// readView loads the current version of every key matching the worker's
// declared inputs.
func (s *Scheduler) readView(ctx context.Context, ws *Workspace, c Contract) (map[string]knowledge.Record, []knowledge.Ref, error) {
	all, err := ws.Knowledge.List(ctx, ws.SessionID)
	if err != nil {
		return nil, nil, err
	}
	records := make(map[string]knowledge.Record)
	refs := make([]knowledge.Ref, 0)
	for _, rec := range all {
		if c.inputMatches(rec.Key) {
			records[rec.Key] = rec
			refs = append(refs, rec.Ref())
		}
	}
	return records, refs, nil
}

// commit persists writes, gaps and artifacts of a successful run.
func (s *Scheduler) commit(ctx context.Context, ws *Workspace, worker, invocationID string, out WorkerOutput) ([]knowledge.Ref, error) {
	written := make([]knowledge.Ref, 0, len(out.Writes))
	for _, w := range out.Writes {
		v, err := ws.Knowledge.Save(ctx, ws.SessionID, w.Key, w.Value, worker)
		if err != nil {
			return written, err
		}
		written = append(written, knowledge.Ref{Key: w.Key, Version: v})
	}
	for _, g := range out.Gaps {
		ws.Gaps.Report(ctx, ws.SessionID, worker, g.Topic, g.Question, g.Priority)
	}
	for _, a := range out.Artifacts {
		ws.Journal.addArtifact(Artifact{
			ID:           uuid.NewString(),
			Kind:         a.Kind,
			Name:         a.Name,
			SessionID:    ws.SessionID,
			Content:      a.Content,
			ProducedBy:   worker,
			InvocationID: invocationID,
			CreatedAt:    s.now().UTC(),
		})
	}
	return written, nil
}

func (s *Scheduler) finish(ctx context.Context, ws *Workspace, inv *WorkerInvocation, status InvocationStatus, err error, started time.Time, span trace.Span) WorkerInvocation {
	now := s.now().UTC()
	applied := ws.Journal.update(inv, func(i *WorkerInvocation) {
		i.Status = status
		i.FinishedAt = &now
		if err != nil {
			i.Error = err.Error()
		}
	})
	final := ws.Journal.snapshot(inv)
	if !applied {
		// already cancelled by the orchestrator
		status = final.Status
	}

	kind := ProgressSucceeded
	switch status {
	case InvocationFailed:
		kind = ProgressFailed
	case InvocationCancelled:
		kind = ProgressCancelled
	}
	ev := ProgressEvent{SessionID: ws.SessionID, InvocationID: final.ID, Worker: final.WorkerName, Phase: final.Phase, Kind: kind, Attempt: final.AttemptCount}
	if err != nil {
		ev.Message = err.Error()
	}
	ws.Progress.publish(ev)

	s.metrics.recordInvocation(ctx, final.WorkerName, status, s.now().Sub(started))
	if status != InvocationSucceeded {
		span.SetStatus(codes.Error, final.Error)
		if err != nil {
			span.RecordError(err)
		}
		s.logger.Warn(ctx, "worker invocation did not succeed",
			zap.String("status", string(status)),
			zap.Int("attempts", final.AttemptCount),
			zap.String("error", final.Error),
		)
	} else {
		s.logger.Info(ctx, "worker invocation succeeded", zap.Int("attempts", final.AttemptCount))
	}
	return final
}
