package orchestrator

import (
	"context"
	"sync"
	"time"
)

// ProgressKind classifies a progress event.
type ProgressKind string

const (
	ProgressDispatched ProgressKind = "dispatched"
	ProgressAttempt    ProgressKind = "attempt"
	ProgressRetrying   ProgressKind = "retrying"
	ProgressUpdate     ProgressKind = "update"
	ProgressSucceeded  ProgressKind = "succeeded"
	ProgressFailed     ProgressKind = "failed"
	ProgressCancelled  ProgressKind = "cancelled"
)

// ProgressEvent is an immutable intermediate update tied to a worker invocation.
type ProgressEvent struct {
	Seq          uint64       `json:"seq"`
	SessionID    string       `json:"session_id"`
	InvocationID string       `json:"invocation_id"`
	Worker       string       `json:"worker"`
	Phase        string       `json:"phase"`
	Kind         ProgressKind `json:"kind"`
	Message      string       `json:"message,omitempty"`
	Percent      int          `json:"percent,omitempty"`
	Attempt      int          `json:"attempt,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}

// ProgressSink receives progress events pushed by the hub.
type ProgressSink interface {
	PublishProgress(ctx context.Context, ev ProgressEvent) error
}

const subscriberBuffer = 64

// ProgressHub keeps the progress log of every session for polling and fans
// events out to subscribers and sinks.
type ProgressHub struct {
	mu     sync.Mutex
	seq    uint64
	events map[string][]ProgressEvent
	subs   map[string]map[chan ProgressEvent]struct{}

	dispatch *dispatcher
	sinks    []ProgressSink
	now      func() time.Time
}

func newProgressHub(d *dispatcher, now func() time.Time, sinks []ProgressSink) *ProgressHub {
	return &ProgressHub{
		events:   make(map[string][]ProgressEvent),
		subs:     make(map[string]map[chan ProgressEvent]struct{}),
		dispatch: d,
		sinks:    sinks,
		now:      now,
	}
}

func (h *ProgressHub) publish(ev ProgressEvent) ProgressEvent {
	h.mu.Lock()
	h.seq++
	ev.Seq = h.seq
	ev.Timestamp = h.now().UTC()
	h.events[ev.SessionID] = append(h.events[ev.SessionID], ev)
	for ch := range h.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
			// slow subscriber; polling still has the full log
		}
	}
	h.mu.Unlock()

	for _, sink := range h.sinks {
		sink := sink
		h.dispatch.submit(func(ctx context.Context) error {
			return sink.PublishProgress(ctx, ev)
		})
	}
	return ev
}

// Events returns the events of a session with Seq greater than after.
func (h *ProgressHub) Events(sessionID string, after uint64) []ProgressEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []ProgressEvent
	for _, ev := range h.events[sessionID] {
		if ev.Seq > after {
			out = append(out, ev)
		}
	}
	return out
}

// forget drops the event log of an evicted session. Open subscriptions are
// left to their owners.
func (h *ProgressHub) forget(sessionID string) {
	h.mu.Lock()
	delete(h.events, sessionID)
	h.mu.Unlock()
}

// Subscribe returns a channel receiving future events of a session and a
// function that ends the subscription.
func (h *ProgressHub) Subscribe(sessionID string) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, subscriberBuffer)
	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan ProgressEvent]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[sessionID], ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// invocationReporter adapts the hub to the ProgressReporter of one invocation.
type invocationReporter struct {
	hub *ProgressHub
	inv WorkerInvocation
}

func (r invocationReporter) Report(message string, percent int) {
	r.hub.publish(ProgressEvent{
		SessionID:    r.inv.SessionID,
		InvocationID: r.inv.ID,
		Worker:       r.inv.WorkerName,
		Phase:        r.inv.Phase,
		Kind:         ProgressUpdate,
		Message:      message,
		Percent:      percent,
	})
}
