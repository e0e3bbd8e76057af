package orchestrator

import (
	"context"
	"sync"
)

// ClarificationLoop bounds the operator question/answer cycle. Every request
// while gaps are open consumes one round; once the cap is reached the next
// request force-assumes the remaining gaps instead of presenting them again.
type ClarificationLoop struct {
	gaps      *GapTracker
	maxRounds int

	mu     sync.Mutex
	rounds map[string]int
}

// NewClarificationLoop creates a loop over gaps with the given round cap.
func NewClarificationLoop(gaps *GapTracker, maxRounds int) *ClarificationLoop {
	if maxRounds < 1 {
		maxRounds = 1
	}
	return &ClarificationLoop{
		gaps:      gaps,
		maxRounds: maxRounds,
		rounds:    make(map[string]int),
	}
}

// Request returns the open gaps of a session for operator presentation.
// When the round budget is spent the open gaps are resolved as assumed and
// returned as forced; presented is empty in that case.
func (c *ClarificationLoop) Request(ctx context.Context, sessionID string) (presented []Gap, forced []Gap) {
	open := c.gaps.Open(sessionID)
	if len(open) == 0 {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rounds[sessionID] >= c.maxRounds {
		return nil, c.gaps.AssumeAll(ctx, sessionID, BudgetExhaustedJustification)
	}
	c.rounds[sessionID]++
	return open, nil
}

// Submit resolves a gap as answered by the operator.
func (c *ClarificationLoop) Submit(ctx context.Context, gapID, answer string) (Gap, error) {
	return c.gaps.Resolve(ctx, gapID, answer, GapAnswered)
}

// Rounds returns the number of rounds consumed by a session.
func (c *ClarificationLoop) Rounds(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rounds[sessionID]
}

func (c *ClarificationLoop) forget(sessionID string) {
	c.mu.Lock()
	delete(c.rounds, sessionID)
	c.mu.Unlock()
}

// MaxRounds returns the round cap.
func (c *ClarificationLoop) MaxRounds() int { return c.maxRounds }
