package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/proposald/internal/knowledge"
)

// Contract declares the record keys a worker reads and writes.
//
// Input patterns may end in ".*" to read every key under a prefix. Output
// keys are exact; writing any other key fails the invocation.
type Contract struct {
	Inputs    []string
	Outputs   []string
	Artifacts []ArtifactKind
}

// Worker is a specialist capability unit.
type Worker interface {
	// Name returns the unique worker identity, used as written_by on records.
	Name() string

	// Contract returns the statically declared input and output keys.
	Contract() Contract

	// Run performs the work. Returned errors may be *WorkerError or carry a
	// Retryable() bool method; anything else is treated as non-retryable.
	Run(ctx context.Context, in WorkerInput) (WorkerOutput, error)
}

// GlobalSearcher looks up organisation-wide knowledge.
type GlobalSearcher interface {
	SearchGlobal(ctx context.Context, query string, limit int) ([]knowledge.Record, error)
}

// ProgressReporter receives intermediate updates from a running worker.
type ProgressReporter interface {
	Report(message string, percent int)
}

// WorkerInput is the read view handed to a worker.
//
// Gaps is a snapshot of every gap of the session at dispatch time. Workers
// read it; only the clarification loop mutates gaps.
type WorkerInput struct {
	SessionID string
	Records   map[string]knowledge.Record
	Gaps      []Gap
	Global    GlobalSearcher
	Progress  ProgressReporter
	Attempt   int
}

// Get returns the record for key if it was part of the read view.
func (in WorkerInput) Get(key string) (knowledge.Record, bool) {
	rec, ok := in.Records[key]
	return rec, ok
}

// Decode unmarshals the record for key into v.
func (in WorkerInput) Decode(key string, v any) error {
	rec, ok := in.Records[key]
	if !ok {
		return fmt.Errorf("%w: input %s", knowledge.ErrNotFound, key)
	}
	return rec.Decode(v)
}

// Matching returns the records whose keys match pattern, sorted by key.
func (in WorkerInput) Matching(pattern string) []knowledge.Record {
	var out []knowledge.Record
	for k, rec := range in.Records {
		if knowledge.MatchKey(pattern, k) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// GapsWithStatus returns the gaps of the snapshot in the given status.
func (in WorkerInput) GapsWithStatus(status GapStatus) []Gap {
	var out []Gap
	for _, g := range in.Gaps {
		if g.Status == status {
			out = append(out, g)
		}
	}
	return out
}

// Report forwards a progress update. Safe to call without a reporter.
func (in WorkerInput) Report(message string, percent int) {
	if in.Progress != nil {
		in.Progress.Report(message, percent)
	}
}

// Write is one record produced by a worker.
type Write struct {
	Key   string
	Value any
}

// GapReport is a missing-information flag raised by a worker.
type GapReport struct {
	Topic    string
	Question string
	Priority GapPriority
}

// ArtifactDraft is a deliverable produced by a worker before it is committed.
type ArtifactDraft struct {
	Kind    ArtifactKind
	Name    string
	Content string
}

// WorkerOutput is the result of a successful run.
type WorkerOutput struct {
	Writes    []Write
	Gaps      []GapReport
	Artifacts []ArtifactDraft
}

// validate checks the output against the worker's contract.
func (o WorkerOutput) validate(c Contract) error {
	declared := make(map[string]bool, len(c.Outputs))
	for _, k := range c.Outputs {
		declared[k] = true
	}
	for _, w := range o.Writes {
		if !declared[w.Key] {
			return fmt.Errorf("%w: %s", ErrUndeclaredOutput, w.Key)
		}
	}
	for _, g := range o.Gaps {
		if g.Topic == "" {
			return fmt.Errorf("gap reported without topic")
		}
	}
	return nil
}

// inputMatches reports whether key is covered by any input pattern.
func (c Contract) inputMatches(key string) bool {
	for _, p := range c.Inputs {
		if knowledge.MatchKey(p, key) {
			return true
		}
	}
	return false
}
