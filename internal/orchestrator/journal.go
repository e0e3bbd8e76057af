package orchestrator

import (
	"sync"
	"time"
)

// Journal holds the invocations and artifacts of one session. It is written
// concurrently by the workers of a concurrent phase.
type Journal struct {
	mu          sync.RWMutex
	invocations []*WorkerInvocation
	artifacts   []Artifact
}

func newJournal() *Journal {
	return &Journal{}
}

func (j *Journal) start(inv WorkerInvocation) *WorkerInvocation {
	j.mu.Lock()
	defer j.mu.Unlock()
	p := &inv
	j.invocations = append(j.invocations, p)
	return p
}

// update mutates an invocation under the journal lock. Terminal invocations
// are frozen so a late result cannot overwrite a cancellation.
func (j *Journal) update(inv *WorkerInvocation, fn func(*WorkerInvocation)) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if inv.Status.Terminal() {
		return false
	}
	fn(inv)
	return true
}

func (j *Journal) snapshot(inv *WorkerInvocation) WorkerInvocation {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return copyInvocation(inv)
}

func (j *Journal) addArtifact(a Artifact) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.artifacts = append(j.artifacts, a)
}

// cancelInFlight marks every non-terminal invocation as cancelled.
func (j *Journal) cancelInFlight(now time.Time) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for _, inv := range j.invocations {
		if inv.Status.Terminal() {
			continue
		}
		inv.Status = InvocationCancelled
		inv.Error = "session cancelled"
		inv.FinishedAt = &now
		n++
	}
	return n
}

// Invocations returns a copy of all invocations in dispatch order.
func (j *Journal) Invocations() []WorkerInvocation {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]WorkerInvocation, len(j.invocations))
	for i, inv := range j.invocations {
		out[i] = copyInvocation(inv)
	}
	return out
}

// Artifacts returns a copy of all committed artifacts.
func (j *Journal) Artifacts() []Artifact {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]Artifact(nil), j.artifacts...)
}

func copyInvocation(inv *WorkerInvocation) WorkerInvocation {
	c := *inv
	c.InputSnapshot = append(c.InputSnapshot[:0:0], inv.InputSnapshot...)
	c.Output = append(c.Output[:0:0], inv.Output...)
	if inv.FinishedAt != nil {
		t := *inv.FinishedAt
		c.FinishedAt = &t
	}
	return c
}
