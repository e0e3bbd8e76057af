package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GapTracker accumulates gaps per session. While a session is live its gaps
// are never deleted; they only move from open to answered or assumed.
type GapTracker struct {
	mu      sync.RWMutex
	bySess  map[string][]*Gap
	byID    map[string]*Gap
	now     func() time.Time
	metrics *Metrics
}

// NewGapTracker creates an empty tracker.
func NewGapTracker(now func() time.Time, metrics *Metrics) *GapTracker {
	if now == nil {
		now = time.Now
	}
	return &GapTracker{
		bySess:  make(map[string][]*Gap),
		byID:    make(map[string]*Gap),
		now:     now,
		metrics: metrics,
	}
}

// forget drops every gap of an evicted session.
func (t *GapTracker) forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, g := range t.bySess[sessionID] {
		delete(t.byID, g.ID)
	}
	delete(t.bySess, sessionID)
}

// Report creates an open gap for (session, topic), or updates the question of
// the existing open gap. Re-reporting a resolved topic leaves it resolved.
// The second return value is true when a new gap was created.
func (t *GapTracker) Report(ctx context.Context, sessionID, raisedBy, topic, question string, priority GapPriority) (Gap, bool) {
	if priority == "" {
		priority = PriorityMedium
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, g := range t.bySess[sessionID] {
		if g.Topic != topic {
			continue
		}
		if g.Status == GapOpen {
			g.Question = question
			g.Priority = priority
		}
		return *g, false
	}

	g := &Gap{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		RaisedBy:  raisedBy,
		Topic:     topic,
		Question:  question,
		Priority:  priority,
		Status:    GapOpen,
		CreatedAt: t.now().UTC(),
	}
	t.bySess[sessionID] = append(t.bySess[sessionID], g)
	t.byID[g.ID] = g
	t.metrics.recordGap(ctx, GapOpen)
	return *g, true
}

// Resolve moves an open gap to answered or assumed. Both modes require a
// non-empty resolution so that every assumption is traceable.
func (t *GapTracker) Resolve(ctx context.Context, gapID, resolution string, mode GapStatus) (Gap, error) {
	if mode != GapAnswered && mode != GapAssumed {
		return Gap{}, fmt.Errorf("invalid resolution mode %q", mode)
	}
	if strings.TrimSpace(resolution) == "" {
		return Gap{}, ErrEmptyResolution
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	g, ok := t.byID[gapID]
	if !ok {
		return Gap{}, ErrGapNotFound
	}
	if g.Status != GapOpen {
		return *g, ErrGapNotOpen
	}
	now := t.now().UTC()
	g.Status = mode
	g.Resolution = resolution
	g.ResolvedAt = &now
	t.metrics.recordGap(ctx, mode)
	return *g, nil
}

// AssumeAll force-resolves every open gap of a session as assumed.
func (t *GapTracker) AssumeAll(ctx context.Context, sessionID, justification string) []Gap {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	var out []Gap
	for _, g := range t.bySess[sessionID] {
		if g.Status != GapOpen {
			continue
		}
		g.Status = GapAssumed
		g.Resolution = justification
		g.ResolvedAt = &now
		t.metrics.recordGap(ctx, GapAssumed)
		out = append(out, *g)
	}
	return out
}

// HasOpenGaps reports whether any gap of the session is open.
func (t *GapTracker) HasOpenGaps(sessionID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, g := range t.bySess[sessionID] {
		if g.Status == GapOpen {
			return true
		}
	}
	return false
}

// Open returns the open gaps of a session, high priority first.
func (t *GapTracker) Open(sessionID string) []Gap {
	t.mu.RLock()
	var out []Gap
	for _, g := range t.bySess[sessionID] {
		if g.Status == GapOpen {
			out = append(out, *g)
		}
	}
	t.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.rank() < out[j].Priority.rank()
	})
	return out
}

// All returns every gap of a session in creation order.
func (t *GapTracker) All(sessionID string) []Gap {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Gap, 0, len(t.bySess[sessionID]))
	for _, g := range t.bySess[sessionID] {
		out = append(out, *g)
	}
	return out
}

// Get returns a gap by id.
func (t *GapTracker) Get(gapID string) (Gap, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.byID[gapID]
	if !ok {
		return Gap{}, ErrGapNotFound
	}
	return *g, nil
}
