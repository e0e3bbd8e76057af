package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/proposald/internal/knowledge"
	"github.com/fyrsmithlabs/proposald/internal/logging"
)

const (
	// InputDocumentKey holds the initiating content of a session.
	InputDocumentKey = "input.document"

	// ClarificationKeyPrefix prefixes the records holding operator answers.
	ClarificationKeyPrefix = "clarification."

	// OperatorIdentity is the written_by value of operator supplied records.
	OperatorIdentity = "operator"

	cancelReason     = "cancelled by operator"
	finalizerTimeout = 30 * time.Second
)

// Scrubber removes secrets from operator supplied text before it is stored.
type Scrubber interface {
	Scrub(text string) string
}

// Finalizer runs after a session reaches a terminal state. Failures are
// logged and never change the session outcome.
type Finalizer interface {
	Finalize(ctx context.Context, st Status) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTracer sets the tracer used for phase and invocation spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithMetrics sets the workflow instruments.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithTraceEmitter adds a transition sink.
func WithTraceEmitter(e TraceEmitter) Option {
	return func(o *Orchestrator) { o.emitters = append(o.emitters, e) }
}

// WithProgressSink adds a progress event sink.
func WithProgressSink(s ProgressSink) Option {
	return func(o *Orchestrator) { o.sinks = append(o.sinks, s) }
}

// WithFinalizer adds a terminal state hook.
func WithFinalizer(f Finalizer) Option {
	return func(o *Orchestrator) { o.finalizers = append(o.finalizers, f) }
}

// WithScrubber sets the secret scrubber applied to input and answers.
func WithScrubber(s Scrubber) Option {
	return func(o *Orchestrator) { o.scrubber = s }
}

// WithInputValidator adds a check run by Start before a session exists.
func WithInputValidator(fn func(StartInput) error) Option {
	return func(o *Orchestrator) { o.validate = fn }
}

// Orchestrator owns the session lifecycle. It composes the Scheduler, the
// GapTracker and the ClarificationLoop over a shared knowledge store.
type Orchestrator struct {
	cfg       Config
	knowledge *knowledge.Store
	scheduler *Scheduler
	gaps      *GapTracker
	clarify   *ClarificationLoop
	progress  *ProgressHub
	dispatch  *dispatcher

	emitters   []TraceEmitter
	sinks      []ProgressSink
	finalizers []Finalizer
	scrubber   Scrubber
	validate   func(StartInput) error

	logger  *logging.Logger
	tracer  trace.Tracer
	metrics *Metrics
	now     func() time.Time

	mu        sync.RWMutex
	sessions  map[string]*sessionEntry
	evictions map[string]*time.Timer
	closed    bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
	finalizing sync.WaitGroup
	closeOnce  sync.Once
}

type sessionEntry struct {
	// runMu serializes state machine steps of one session.
	runMu sync.Mutex

	mu                sync.Mutex
	session           Session
	transitions       []Transition
	pendingReanalysis bool

	ctx     context.Context
	cancel  context.CancelFunc
	journal *Journal
}

// New creates an Orchestrator over store. Workers and phases must be
// registered before the first Start.
func New(store *knowledge.Store, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg.withDefaults(),
		knowledge: store,
		sessions:  make(map[string]*sessionEntry),
		evictions: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer(instrumentationName)
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(nil, o.logger)
	}

	o.baseCtx, o.baseCancel = context.WithCancel(context.Background())
	o.dispatch = newDispatcher(o.logger)
	o.progress = newProgressHub(o.dispatch, o.now, o.sinks)
	o.gaps = NewGapTracker(o.now, o.metrics)
	o.clarify = NewClarificationLoop(o.gaps, o.cfg.MaxClarificationRounds)
	o.scheduler = NewScheduler(SchedulerOptions{
		Retry:         o.cfg.Retry,
		WorkerTimeout: o.cfg.WorkerTimeout,
		Logger:        o.logger,
		Tracer:        o.tracer,
		Metrics:       o.metrics,
		Now:           o.now,
	})
	return o
}

// RegisterWorker adds a specialist worker.
func (o *Orchestrator) RegisterWorker(w Worker) error {
	return o.scheduler.RegisterWorker(w)
}

// RegisterPhase adds a phase. Concurrent phases with overlapping output keys
// are rejected with *KeySchemaConflictError.
func (o *Orchestrator) RegisterPhase(spec PhaseSpec) error {
	return o.scheduler.RegisterPhase(spec)
}

// Gaps returns the gap tracker.
func (o *Orchestrator) Gaps() *GapTracker { return o.gaps }

// Knowledge returns the knowledge store.
func (o *Orchestrator) Knowledge() *knowledge.Store { return o.knowledge }

// Start validates the input, creates a session and moves it to Analyzing.
func (o *Orchestrator) Start(ctx context.Context, in StartInput) (Session, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.start")
	defer span.End()

	if strings.TrimSpace(in.Content) == "" {
		return Session{}, &InvalidInputError{Reason: "content is empty"}
	}
	if o.validate != nil {
		if err := o.validate(in); err != nil {
			var ie *InvalidInputError
			if errors.As(err, &ie) {
				return Session{}, err
			}
			return Session{}, &InvalidInputError{Reason: "content rejected", Err: err}
		}
	}
	for _, phase := range phaseFor {
		if _, ok := o.scheduler.Phase(phase); !ok {
			return Session{}, fmt.Errorf("%w: %s", ErrPhaseNotRegistered, phase)
		}
	}

	owner := in.OwnerID
	if owner == "" {
		owner = OperatorIdentity
	}
	now := o.now().UTC()
	e := &sessionEntry{
		session: Session{
			ID:        uuid.NewString(),
			OwnerID:   owner,
			State:     StateInit,
			CreatedAt: now,
			UpdatedAt: now,
		},
		journal: newJournal(),
	}
	e.ctx, e.cancel = context.WithCancel(o.baseCtx)
	id := e.session.ID
	ctx = logging.WithSessionID(ctx, id)
	span.SetAttributes(attribute.String("session.id", id))

	if _, err := o.knowledge.Save(ctx, id, InputDocumentKey, o.scrub(in.Content), OperatorIdentity); err != nil {
		e.cancel()
		return Session{}, fmt.Errorf("store input document: %w", err)
	}

	o.mu.Lock()
	o.sessions[id] = e
	o.mu.Unlock()
	o.metrics.sessionStarted(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := o.transitionLocked(ctx, e, StateAnalyzing, "session started"); err != nil {
		return Session{}, err
	}
	o.logger.Info(ctx, "session started", zap.String("owner_id", owner), zap.String("filename", in.Filename))
	return e.session, nil
}

// Advance evaluates the exit condition of the current state and performs at
// most one transition, running the phase of a working state first. Calling
// it on a state whose exit condition is unmet, or on a terminal state, is a
// no-op.
func (o *Orchestrator) Advance(ctx context.Context, sessionID string) (Session, error) {
	e, err := o.entry(sessionID)
	if err != nil {
		return Session{}, err
	}
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return o.step(logging.WithSessionID(ctx, sessionID), e)
}

// RunUntilBlocked advances until the session is terminal or awaiting
// clarification with open gaps.
func (o *Orchestrator) RunUntilBlocked(ctx context.Context, sessionID string) (Session, error) {
	for {
		before, err := o.Session(sessionID)
		if err != nil {
			return Session{}, err
		}
		after, err := o.Advance(ctx, sessionID)
		if err != nil {
			return after, err
		}
		if after.State.Terminal() || after.State == before.State {
			return after, nil
		}
	}
}

func (o *Orchestrator) step(ctx context.Context, e *sessionEntry) (Session, error) {
	e.mu.Lock()
	state := e.session.State
	if state.Terminal() {
		defer e.mu.Unlock()
		return e.session, nil
	}

	switch state {
	case StateInit:
		defer e.mu.Unlock()
		err := o.transitionLocked(ctx, e, StateAnalyzing, "session started")
		return e.session, err
	case StateAwaitingClarification:
		defer e.mu.Unlock()
		if o.gaps.HasOpenGaps(e.session.ID) {
			return e.session, nil
		}
		if e.pendingReanalysis {
			e.pendingReanalysis = false
			err := o.transitionLocked(ctx, e, StateAnalyzing, "clarifications received")
			return e.session, err
		}
		err := o.transitionLocked(ctx, e, StateDesigningSolution, "all gaps resolved")
		return e.session, err
	}
	phase, ok := phaseFor[state]
	e.mu.Unlock()
	if !ok {
		return Session{}, fmt.Errorf("%w: no phase for state %s", ErrInvalidTransition, state)
	}

	res, runErr := o.runPhase(ctx, e, phase)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.State != state {
		// cancelled while the phase was running
		return e.session, nil
	}
	if runErr != nil {
		return e.session, runErr
	}
	if !res.Succeeded {
		err := o.failLocked(ctx, e, phase, res.Reason())
		return e.session, err
	}

	reason := "phase " + phase + " succeeded"
	if res.Degraded {
		reason = "phase " + phase + " degraded: " + res.Reason()
	}

	var err error
	switch state {
	case StateAnalyzing:
		if o.gaps.HasOpenGaps(e.session.ID) {
			err = o.transitionLocked(ctx, e, StateAwaitingClarification, "open gaps reported")
		} else {
			err = o.transitionLocked(ctx, e, StateDesigningSolution, reason)
		}
	case StateDesigningSolution:
		err = o.transitionLocked(ctx, e, StateVisualizingPlanning, reason)
	case StateVisualizingPlanning:
		err = o.transitionLocked(ctx, e, StateWriting, reason)
	case StateWriting:
		doc, found := latestArtifact(e.journal.Artifacts(), ArtifactProposalDocument)
		if !found {
			err = o.failLocked(ctx, e, phase, "writing produced no proposal document")
			break
		}
		err = o.completeLocked(ctx, e, doc.ID)
	}
	return e.session, err
}

// runPhase runs a phase under a context cancelled by either the session or
// the caller. A caller cancellation leaves the state untouched.
func (o *Orchestrator) runPhase(ctx context.Context, e *sessionEntry, phase string) (PhaseResult, error) {
	runCtx, cancel := context.WithCancel(e.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	runCtx = trace.ContextWithSpan(runCtx, trace.SpanFromContext(ctx))
	runCtx = logging.WithSessionID(runCtx, e.session.ID)

	ws := &Workspace{
		SessionID: e.session.ID,
		Knowledge: o.knowledge,
		Gaps:      o.gaps,
		Journal:   e.journal,
		Progress:  o.progress,
	}
	res, err := o.scheduler.RunPhase(runCtx, phase, ws)
	if err != nil {
		return res, err
	}
	if res.Cancelled && e.ctx.Err() == nil && ctx.Err() != nil {
		return res, ctx.Err()
	}
	return res, nil
}

// ClarificationRequest is the set of gaps presented to the operator in one round.
type ClarificationRequest struct {
	SessionID string `json:"session_id"`
	Round     int    `json:"round"`
	MaxRounds int    `json:"max_rounds"`
	Gaps      []Gap  `json:"gaps"`
	Forced    []Gap  `json:"forced,omitempty"`
	State     State  `json:"state"`
}

// RequestClarification presents the open gaps of a session awaiting
// clarification, consuming one round. Once the round budget is spent the
// remaining gaps are assumed with BudgetExhaustedJustification and the
// session moves on.
func (o *Orchestrator) RequestClarification(ctx context.Context, sessionID string) (ClarificationRequest, error) {
	e, err := o.entry(sessionID)
	if err != nil {
		return ClarificationRequest{}, err
	}
	ctx = logging.WithSessionID(ctx, sessionID)
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.Lock()
	if e.session.State.Terminal() {
		e.mu.Unlock()
		return ClarificationRequest{}, ErrSessionTerminal
	}
	if e.session.State != StateAwaitingClarification {
		e.mu.Unlock()
		return ClarificationRequest{}, ErrNotAwaitingClarification
	}
	presented, forced := o.clarify.Request(ctx, sessionID)
	e.session.ClarificationRounds = o.clarify.Rounds(sessionID)
	req := ClarificationRequest{
		SessionID: sessionID,
		Round:     e.session.ClarificationRounds,
		MaxRounds: o.clarify.MaxRounds(),
		Gaps:      presented,
		Forced:    forced,
		State:     e.session.State,
	}
	e.mu.Unlock()

	if len(forced) > 0 {
		o.logger.Warn(ctx, "clarification budget exhausted, assuming open gaps",
			zap.Int("forced", len(forced)),
			zap.Int("rounds", req.Round),
		)
	}
	if len(presented) == 0 {
		s, err := o.step(ctx, e)
		req.State = s.State
		if err != nil {
			return req, err
		}
	}
	return req, nil
}

// SubmitClarification answers a gap. The answer is stored as a
// clarification record. When the last open gap closes the analysis phase is
// re-run with the answers in its input.
func (o *Orchestrator) SubmitClarification(ctx context.Context, sessionID, gapID, answer string) (Session, error) {
	e, err := o.entry(sessionID)
	if err != nil {
		return Session{}, err
	}
	ctx = logging.WithSessionID(ctx, sessionID)
	if strings.TrimSpace(answer) == "" {
		return Session{}, ErrEmptyResolution
	}
	e.runMu.Lock()
	defer e.runMu.Unlock()

	gap, err := o.gaps.Get(gapID)
	if err != nil || gap.SessionID != sessionID {
		return Session{}, ErrGapNotFound
	}
	if err := o.checkAwaiting(e); err != nil {
		return Session{}, err
	}
	if gap.Status != GapOpen {
		return Session{}, ErrGapNotOpen
	}

	answer = o.scrub(answer)
	value := map[string]string{
		"gap_id":   gap.ID,
		"topic":    gap.Topic,
		"question": gap.Question,
		"answer":   answer,
	}
	if _, err := o.knowledge.Save(ctx, sessionID, ClarificationKey(gap.Topic), value, OperatorIdentity); err != nil {
		return Session{}, fmt.Errorf("store clarification: %w", err)
	}

	e.mu.Lock()
	if e.session.State != StateAwaitingClarification {
		defer e.mu.Unlock()
		return e.session, ErrNotAwaitingClarification
	}
	if _, err := o.clarify.Submit(ctx, gapID, answer); err != nil {
		e.mu.Unlock()
		return Session{}, err
	}
	e.pendingReanalysis = true
	e.mu.Unlock()
	o.logger.Info(ctx, "clarification submitted", zap.String("gap_id", gapID), zap.String("topic", gap.Topic))

	if o.gaps.HasOpenGaps(sessionID) {
		return o.Session(sessionID)
	}
	s, err := o.step(ctx, e)
	if err != nil || s.State != StateAnalyzing {
		return s, err
	}
	return o.step(ctx, e)
}

func (o *Orchestrator) checkAwaiting(e *sessionEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.State.Terminal() {
		return ErrSessionTerminal
	}
	if e.session.State != StateAwaitingClarification {
		return ErrNotAwaitingClarification
	}
	return nil
}

// Cancel moves a non-terminal session to Failed and stops its running workers.
func (o *Orchestrator) Cancel(ctx context.Context, sessionID string) (Session, error) {
	e, err := o.entry(sessionID)
	if err != nil {
		return Session{}, err
	}
	ctx = logging.WithSessionID(ctx, sessionID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.State.Terminal() {
		return e.session, ErrSessionTerminal
	}
	phase := string(e.session.State)
	if p, ok := phaseFor[e.session.State]; ok {
		phase = p
	}
	e.cancel()
	if n := e.journal.cancelInFlight(o.now().UTC()); n > 0 {
		o.logger.Info(ctx, "cancelled in-flight invocations", zap.Int("count", n))
	}
	err = o.failLocked(ctx, e, phase, cancelReason)
	return e.session, err
}

// Session returns the current session snapshot.
func (o *Orchestrator) Session(sessionID string) (Session, error) {
	e, err := o.entry(sessionID)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return copySession(e.session), nil
}

// Sessions returns every session, oldest first.
func (o *Orchestrator) Sessions() []Session {
	o.mu.RLock()
	entries := make([]*sessionEntry, 0, len(o.sessions))
	for _, e := range o.sessions {
		entries = append(entries, e)
	}
	o.mu.RUnlock()

	out := make([]Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, copySession(e.session))
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Status returns a point-in-time view of a session.
func (o *Orchestrator) Status(ctx context.Context, sessionID string) (Status, error) {
	e, err := o.entry(sessionID)
	if err != nil {
		return Status{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return o.statusLocked(ctx, e)
}

// Artifact returns one artifact of a session.
func (o *Orchestrator) Artifact(sessionID, artifactID string) (Artifact, error) {
	e, err := o.entry(sessionID)
	if err != nil {
		return Artifact{}, err
	}
	for _, a := range e.journal.Artifacts() {
		if a.ID == artifactID {
			return a, nil
		}
	}
	return Artifact{}, ErrArtifactNotFound
}

// ProgressEvents returns the progress events of a session after seq.
func (o *Orchestrator) ProgressEvents(sessionID string, after uint64) ([]ProgressEvent, error) {
	if _, err := o.entry(sessionID); err != nil {
		return nil, err
	}
	return o.progress.Events(sessionID, after), nil
}

// SubscribeProgress pushes future progress events of a session.
func (o *Orchestrator) SubscribeProgress(sessionID string) (<-chan ProgressEvent, func(), error) {
	if _, err := o.entry(sessionID); err != nil {
		return nil, nil, err
	}
	ch, stop := o.progress.Subscribe(sessionID)
	return ch, stop, nil
}

// Close stops running phases, waits for finalizers and flushes event sinks.
func (o *Orchestrator) Close(ctx context.Context) error {
	var err error
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.closed = true
		for id, t := range o.evictions {
			t.Stop()
			delete(o.evictions, id)
		}
		o.mu.Unlock()
		o.baseCancel()

		done := make(chan struct{})
		go func() {
			o.finalizing.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("waiting for finalizers: %w", ctx.Err())
		}
		err = errors.Join(err, o.dispatch.close(ctx))
	})
	return err
}

func (o *Orchestrator) entry(sessionID string) (*sessionEntry, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return e, nil
}

func (o *Orchestrator) scrub(text string) string {
	if o.scrubber == nil {
		return text
	}
	return o.scrubber.Scrub(text)
}

// transitionLocked records a state change. e.mu must be held.
func (o *Orchestrator) transitionLocked(ctx context.Context, e *sessionEntry, to State, reason string) error {
	from := e.session.State
	if err := checkTransition(from, to); err != nil {
		return err
	}
	now := o.now().UTC()
	t := Transition{
		SessionID: e.session.ID,
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: now,
	}
	e.session.State = to
	e.session.UpdatedAt = now
	e.transitions = append(e.transitions, t)

	o.metrics.recordTransition(ctx, from, to)
	trace.SpanFromContext(ctx).AddEvent("session.transition", trace.WithAttributes(
		attribute.String("session.id", t.SessionID),
		attribute.String("from_state", string(from)),
		attribute.String("to_state", string(to)),
	))
	o.logger.Info(ctx, "session transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason),
	)
	for _, em := range o.emitters {
		em := em
		o.dispatch.submit(func(ctx context.Context) error {
			return em.EmitTransition(ctx, t)
		})
	}

	if to.Terminal() {
		o.metrics.sessionFinished(ctx)
		o.finalizeAsync(ctx, e)
	}
	return nil
}

func (o *Orchestrator) failLocked(ctx context.Context, e *sessionEntry, phase, reason string) error {
	e.session.Result = &TerminalResult{
		Outcome:     OutcomeFailed,
		FailedPhase: phase,
		Reason:      reason,
		FinishedAt:  o.now().UTC(),
	}
	return o.transitionLocked(ctx, e, StateFailed, reason)
}

func (o *Orchestrator) completeLocked(ctx context.Context, e *sessionEntry, artifactID string) error {
	e.session.Result = &TerminalResult{
		Outcome:    OutcomeCompleted,
		ArtifactID: artifactID,
		FinishedAt: o.now().UTC(),
	}
	return o.transitionLocked(ctx, e, StateCompleted, "proposal document produced")
}

// finalizeAsync runs the finalizers of a terminal session in the background
// and schedules its eviction once they are done.
func (o *Orchestrator) finalizeAsync(ctx context.Context, e *sessionEntry) {
	id := e.session.ID
	if len(o.finalizers) == 0 {
		o.scheduleEviction(id)
		return
	}
	st, err := o.statusLocked(context.WithoutCancel(ctx), e)
	if err != nil {
		o.logger.Warn(ctx, "cannot build status for finalizers", zap.Error(err))
		o.scheduleEviction(id)
		return
	}
	o.finalizing.Add(1)
	go func() {
		defer o.finalizing.Done()
		for _, f := range o.finalizers {
			fctx, cancel := context.WithTimeout(logging.WithSessionID(context.Background(), id), finalizerTimeout)
			if err := f.Finalize(fctx, st); err != nil {
				o.logger.Warn(fctx, "session finalizer failed", zap.Error(err))
			}
			cancel()
		}
		o.scheduleEviction(id)
	}()
}

func (o *Orchestrator) scheduleEviction(id string) {
	if o.cfg.Retention < 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.evictions[id] = time.AfterFunc(o.cfg.Retention, func() { o.evict(id) })
}

// evict forgets a terminal session together with its gaps, clarification
// rounds and progress log. Knowledge records are kept.
func (o *Orchestrator) evict(id string) {
	o.mu.Lock()
	e, ok := o.sessions[id]
	delete(o.sessions, id)
	delete(o.evictions, id)
	o.mu.Unlock()
	if !ok {
		return
	}

	e.cancel()
	o.gaps.forget(id)
	o.clarify.forget(id)
	o.progress.forget(id)
	o.logger.Debug(logging.WithSessionID(context.Background(), id), "session evicted")
}

// statusLocked builds a Status. e.mu must be held.
func (o *Orchestrator) statusLocked(ctx context.Context, e *sessionEntry) (Status, error) {
	id := e.session.ID
	recs, err := o.knowledge.List(ctx, id)
	if err != nil {
		return Status{}, fmt.Errorf("list records: %w", err)
	}
	refs := make([]knowledge.Ref, 0, len(recs))
	for _, r := range recs {
		refs = append(refs, r.Ref())
	}

	invs := e.journal.Invocations()
	completed, remaining := phaseProgress(invs)
	open := o.gaps.Open(id)
	if open == nil {
		open = []Gap{}
	}

	return Status{
		Session:         copySession(e.session),
		CompletedPhases: completed,
		RemainingPhases: remaining,
		Progress:        len(completed) * 100 / len(workerOrder),
		NextStep:        nextStep(e.session.State, len(open)),
		OpenGaps:        open,
		Gaps:            o.gaps.All(id),
		Invocations:     invs,
		Artifacts:       e.journal.Artifacts(),
		Records:         refs,
		Transitions:     append([]Transition(nil), e.transitions...),
	}, nil
}

// phaseProgress splits the canonical workers into those with a succeeded
// invocation and the rest.
func phaseProgress(invs []WorkerInvocation) (completed, remaining []string) {
	done := make(map[string]bool)
	for _, inv := range invs {
		if inv.Status == InvocationSucceeded {
			done[inv.WorkerName] = true
		}
	}
	completed = []string{}
	remaining = []string{}
	for _, w := range workerOrder {
		if done[w] {
			completed = append(completed, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	return completed, remaining
}

func latestArtifact(arts []Artifact, kind ArtifactKind) (Artifact, bool) {
	for i := len(arts) - 1; i >= 0; i-- {
		if arts[i].Kind == kind {
			return arts[i], true
		}
	}
	return Artifact{}, false
}

func copySession(s Session) Session {
	if s.Result != nil {
		r := *s.Result
		s.Result = &r
	}
	return s
}

// ClarificationKey returns the record key holding the answer for topic.
func ClarificationKey(topic string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(topic) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return ClarificationKeyPrefix + "general"
	}
	return ClarificationKeyPrefix + b.String()
}
