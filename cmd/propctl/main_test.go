package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	apihttp "github.com/fyrsmithlabs/proposald/internal/http"
	"github.com/fyrsmithlabs/proposald/internal/knowledge"
	"github.com/fyrsmithlabs/proposald/internal/logging"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
	"github.com/fyrsmithlabs/proposald/internal/workers"
)

const completeTender = `Executive Summary
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

// newTestAPI serves the real HTTP API over a loopback listener.
func newTestAPI(t *testing.T) string {
	t.Helper()
	o := orchestrator.New(knowledge.NewStore(knowledge.NewMemoryRepository()), orchestrator.Config{
		MaxClarificationRounds: 5,
		WorkerTimeout:          time.Second,
		Retry: orchestrator.RetryPolicy{
			MaxRetries:      1,
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
			Multiplier:      2,
		},
	})
	require.NoError(t, workers.Register(o, workers.Options{}))
	t.Cleanup(func() { _ = o.Close(context.Background()) })

	s, err := apihttp.NewServer(o, logging.NewNop(), &apihttp.Config{Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Echo())
	t.Cleanup(ts.Close)
	return ts.URL
}

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, server, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	args = append([]string{"--server", server}, args...)
	code := run(args, strings.NewReader(stdin), &out, &errOut)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func startJSON(t *testing.T, server, tender string) (orchestrator.Session, int) {
	t.Helper()
	res := runCLI(t, server, tender, "start", "-", "--owner", "bids", "-o", "json")
	require.Empty(t, res.stderr)
	var resp apihttp.SessionResponse
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp), res.stdout)
	return resp.Session, res.code
}

func TestExitFor(t *testing.T) {
	tests := []struct {
		state orchestrator.State
		code  int
	}{
		{orchestrator.StateFailed, exitFailed},
		{orchestrator.StateAwaitingClarification, exitInProgress},
		{orchestrator.StateWriting, exitInProgress},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			err := exitFor(tt.state)
			var ee *exitError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, tt.code, ee.code)
		})
	}
	assert.NoError(t, exitFor(orchestrator.StateCompleted))
}

func TestReadInput(t *testing.T) {
	t.Run("stdin", func(t *testing.T) {
		content, name, err := readInput(strings.NewReader("tender"), []string{"-"})
		require.NoError(t, err)
		assert.Equal(t, "tender", content)
		assert.Empty(t, name)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rfp.md")
		require.NoError(t, os.WriteFile(path, []byte("tender"), 0o600))
		content, name, err := readInput(nil, []string{path})
		require.NoError(t, err)
		assert.Equal(t, "tender", content)
		assert.Equal(t, "rfp.md", name)
	})

	t.Run("blank", func(t *testing.T) {
		_, _, err := readInput(strings.NewReader("  \n"), nil)
		assert.EqualError(t, err, "no content to submit")
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := readInput(nil, []string{filepath.Join(t.TempDir(), "nope")})
		assert.Error(t, err)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "a b", truncate("a\n  b", 10))
	assert.Equal(t, "Zü...", truncate("Zürich Ost", 5))
	assert.True(t, utf8.ValidString(truncate(strings.Repeat("ü", 80), 50)))
}

func TestStart_Completes(t *testing.T) {
	server := newTestAPI(t)

	res := runCLI(t, server, completeTender, "start", "--owner", "bids")
	assert.Equal(t, exitCompleted, res.code, res.stderr)
	assert.Contains(t, res.stdout, "completed")
	assert.Contains(t, res.stdout, "bids")

	sess, code := startJSON(t, server, completeTender)
	assert.Equal(t, exitCompleted, code)
	require.NotNil(t, sess.Result)

	res = runCLI(t, server, "", "proposal", sess.ID)
	assert.Equal(t, exitCompleted, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Executive Summary")

	res = runCLI(t, server, "", "status", sess.ID)
	assert.Equal(t, exitCompleted, res.code)
	assert.Contains(t, res.stdout, "100%")
	assert.Contains(t, res.stdout, "Artifacts")

	res = runCLI(t, server, "", "artifacts", sess.ID, "-o", "json")
	require.Equal(t, exitCompleted, res.code, res.stderr)
	var arts []orchestrator.Artifact
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &arts))
	require.NotEmpty(t, arts)

	res = runCLI(t, server, "", "artifacts", sess.ID, sess.Result.ArtifactID)
	assert.Equal(t, exitCompleted, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Executive Summary")

	res = runCLI(t, server, "", "progress", sess.ID)
	assert.Equal(t, exitCompleted, res.code, res.stderr)
	assert.Contains(t, res.stdout, "WORKER")
}

func TestClarificationLoop(t *testing.T) {
	server := newTestAPI(t)

	sess, code := startJSON(t, server, sparseTender)
	require.Equal(t, exitInProgress, code)
	require.Equal(t, orchestrator.StateAwaitingClarification, sess.State)

	res := runCLI(t, server, "", "proposal", sess.ID)
	assert.Equal(t, exitInProgress, res.code)

	res = runCLI(t, server, "", "gaps", sess.ID, "-o", "json")
	require.Equal(t, exitCompleted, res.code, res.stderr)
	var req orchestrator.ClarificationRequest
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &req))
	assert.Equal(t, 1, req.Round)
	require.NotEmpty(t, req.Gaps)

	var last result
	for _, g := range req.Gaps {
		last = runCLI(t, server, "", "answer", sess.ID, g.ID, "Yes,", "covered.")
	}
	assert.Equal(t, exitCompleted, last.code, last.stderr)
	assert.Contains(t, last.stdout, "completed")

	res = runCLI(t, server, "", "answer", sess.ID, req.Gaps[0].ID, "again")
	assert.Equal(t, exitFailed, res.code)
	assert.Contains(t, res.stderr, "status 409")
}

func TestCancel(t *testing.T) {
	server := newTestAPI(t)
	sess, _ := startJSON(t, server, sparseTender)

	res := runCLI(t, server, "", "cancel", sess.ID)
	assert.Equal(t, exitCompleted, res.code, res.stderr)
	assert.Contains(t, res.stdout, "failed")

	res = runCLI(t, server, "", "status", sess.ID)
	assert.Equal(t, exitFailed, res.code)

	res = runCLI(t, server, "", "proposal", sess.ID)
	assert.Equal(t, exitFailed, res.code)
	assert.Contains(t, res.stdout, "Reason")
}

func TestOutputFormats(t *testing.T) {
	server := newTestAPI(t)
	sess, _ := startJSON(t, server, completeTender)

	res := runCLI(t, server, "", "status", sess.ID, "-o", "yaml")
	require.Equal(t, exitCompleted, res.code, res.stderr)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(res.stdout), &doc))
	session, ok := doc["session"].(map[string]any)
	require.True(t, ok, res.stdout)
	assert.Equal(t, sess.ID, session["session_id"])

	res = runCLI(t, server, "", "list", "--owner", "bids")
	assert.Equal(t, exitCompleted, res.code, res.stderr)
	assert.Contains(t, res.stdout, sess.ID)

	res = runCLI(t, server, "", "status", sess.ID, "-o", "xml")
	assert.Equal(t, exitFailed, res.code)
	assert.Contains(t, res.stderr, "unsupported output format")
}

func TestKnowledge(t *testing.T) {
	server := newTestAPI(t)

	res := runCLI(t, server, "Daily rate for senior engineers is 950 EUR.", "learn", "pricing.daily-rate", "-")
	require.Equal(t, exitCompleted, res.code, res.stderr)
	assert.Contains(t, res.stdout, "pricing.daily-rate")

	res = runCLI(t, server, "", "search", "daily", "rate")
	require.Equal(t, exitCompleted, res.code, res.stderr)
	assert.Contains(t, res.stdout, "pricing.daily-rate")

	res = runCLI(t, server, "", "search", "nothing-matches-this")
	require.Equal(t, exitCompleted, res.code, res.stderr)
	assert.Contains(t, res.stdout, "no matches")
}

func TestErrors(t *testing.T) {
	server := newTestAPI(t)

	res := runCLI(t, server, "", "status", "missing")
	assert.Equal(t, exitFailed, res.code)
	assert.Contains(t, res.stderr, "status 404")

	res = runCLI(t, server, "", "start")
	assert.Equal(t, exitFailed, res.code)
	assert.Contains(t, res.stderr, "no content to submit")

	res = runCLI(t, server, "", "archive")
	assert.Equal(t, exitFailed, res.code)
	assert.Contains(t, res.stderr, "archive is not enabled")

	res = runCLI(t, "http://127.0.0.1:1", "", "health")
	assert.Equal(t, exitFailed, res.code)
	assert.Contains(t, res.stderr, "failed to send request")
}

func TestHealth(t *testing.T) {
	server := newTestAPI(t)
	res := runCLI(t, server, "", "health")
	assert.Equal(t, exitCompleted, res.code, res.stderr)
	assert.Contains(t, res.stdout, "ok")
}
