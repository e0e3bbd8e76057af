package workers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/proposald/internal/knowledge"
	"github.com/fyrsmithlabs/proposald/internal/llm"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
)

const portalTender = `Executive Summary
Acme Corp needs a new customer portal.
The system must allow customers to log in with SSO.
The portal shall export invoices as PDF.
Response time should stay under 2 seconds for 500 concurrent users.
The total cost must not exceed $120,000.
Delivery deadline: end of Q3 2025.
Scope: customer self-service and invoice history.
The portal needs to integrate with the SAP ERP through its REST API.
All data must be encrypted at rest.
Success will be measured by a 30% drop in support tickets.
The project sponsor is the Head of Customer Service.`

const sparseTender = "We want a mobile app for field technicians."

// MockModel is a testify mock of llm.Model.
type MockModel struct {
	mock.Mock
}

func (m *MockModel) Name() string { return "mock/test" }

func (m *MockModel) Invoke(ctx context.Context, p llm.Prompt) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

// fakeGlobal serves canned global knowledge results.
type fakeGlobal struct {
	records []knowledge.Record
	err     error
	queries []string
}

func (f *fakeGlobal) SearchGlobal(ctx context.Context, query string, limit int) ([]knowledge.Record, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.records) > limit {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func record(t *testing.T, key string, v any) knowledge.Record {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return knowledge.Record{SessionID: "s1", Key: key, Value: raw, Version: 1, WrittenBy: "test", WrittenAt: time.Now()}
}

func input(recs ...knowledge.Record) orchestrator.WorkerInput {
	m := make(map[string]knowledge.Record, len(recs))
	for _, r := range recs {
		m[r.Key] = r
	}
	return orchestrator.WorkerInput{SessionID: "s1", Records: m, Attempt: 1}
}

// withOutputs adds a worker's writes to in, mimicking the commit step.
func withOutputs(t *testing.T, in orchestrator.WorkerInput, out orchestrator.WorkerOutput) orchestrator.WorkerInput {
	t.Helper()
	for _, w := range out.Writes {
		in.Records[w.Key] = record(t, w.Key, w.Value)
	}
	return in
}

// upstream runs analysis, strategy, visualization and planning over text.
func upstream(t *testing.T, text string) orchestrator.WorkerInput {
	t.Helper()
	ctx := context.Background()
	in := input(record(t, KeyInputDocument, text))

	a, err := NewAnalysis(Options{})
	require.NoError(t, err)
	for _, w := range []orchestrator.Worker{a, NewStrategy(Options{}), NewVisualization(Options{}), NewPlanning(Options{})} {
		out, err := w.Run(ctx, in)
		require.NoError(t, err, w.Name())
		in = withOutputs(t, in, out)
	}
	return in
}

func decodeWrite(t *testing.T, out orchestrator.WorkerOutput, key string, v any) {
	t.Helper()
	for _, w := range out.Writes {
		if w.Key == key {
			raw, err := json.Marshal(w.Value)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(raw, v))
			return
		}
	}
	t.Fatalf("no write for %s", key)
}
