package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/proposald/internal/knowledge"
	"github.com/fyrsmithlabs/proposald/internal/logging"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
	"github.com/fyrsmithlabs/proposald/internal/workers"
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

func newTestServer(t *testing.T) (*Server, *orchestrator.Orchestrator) {
	t.Helper()
	o := orchestrator.New(knowledge.NewStore(knowledge.NewMemoryRepository()), orchestrator.Config{
		MaxClarificationRounds: 2,
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

	s, err := NewServer(&Config{Logger: logging.NewNop()}, o)
	require.NoError(t, err)
	return s, o
}

func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	st, ct := mcp.NewInMemoryTransports()
	ss, err := s.MCP().Connect(ctx, st, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

// call invokes a tool and decodes its JSON text result into out.
func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any, out any) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.False(t, res.IsError, "%s failed: %s", name, resultText(res))
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), out))
}

// callFails invokes a tool that is expected to fail and returns the message.
func callFails(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return err.Error()
	}
	require.True(t, res.IsError, "%s unexpectedly succeeded: %s", name, resultText(res))
	return resultText(res)
}

func resultText(res *mcp.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestNewServer(t *testing.T) {
	t.Run("requires orchestrator", func(t *testing.T) {
		_, err := NewServer(nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "orchestrator is required")
	})

	t.Run("registers every tool", func(t *testing.T) {
		s, _ := newTestServer(t)
		names := make([]string, 0)
		for _, tool := range s.Registry().List("") {
			names = append(names, tool.Name)
		}
		assert.ElementsMatch(t, []string{
			"start_session", "check_workflow_status", "advance_session", "cancel_session", "list_sessions",
			"request_clarification", "submit_clarification",
			"get_artifact",
			"search_knowledge", "add_knowledge",
			"tool_search", "tool_list",
		}, names)
	})
}

func TestServer_ListTools(t *testing.T) {
	s, _ := newTestServer(t)
	cs := connect(t, s)

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, res.Tools, s.Registry().Count())
}

func TestServer_CompleteWorkflow(t *testing.T) {
	s, _ := newTestServer(t)
	cs := connect(t, s)

	var started sessionOutput
	call(t, cs, "start_session", map[string]any{"owner_id": "bids", "content": portalTender}, &started)
	assert.Equal(t, string(orchestrator.StateCompleted), started.Session.State)
	assert.Equal(t, "bids", started.Session.OwnerID)
	assert.Empty(t, started.OpenGaps)
	require.NotEmpty(t, started.Session.ArtifactID)

	var status statusOutput
	call(t, cs, "check_workflow_status", map[string]any{"session_id": started.Session.SessionID}, &status)
	assert.Equal(t, 100, status.Progress)
	assert.Empty(t, status.RemainingPhases)
	assert.Len(t, status.Artifacts, 6)

	var doc getArtifactOutput
	call(t, cs, "get_artifact", map[string]any{"session_id": started.Session.SessionID}, &doc)
	assert.Equal(t, string(orchestrator.ArtifactProposalDocument), doc.Kind)
	assert.Contains(t, doc.Content, "## Executive Summary")

	var listed listSessionsOutput
	call(t, cs, "list_sessions", map[string]any{"owner_id": "bids"}, &listed)
	assert.Equal(t, 1, listed.Count)
}

func TestServer_ClarificationLoop(t *testing.T) {
	s, _ := newTestServer(t)
	cs := connect(t, s)

	var started sessionOutput
	call(t, cs, "start_session", map[string]any{"content": sparseTender}, &started)
	require.Equal(t, string(orchestrator.StateAwaitingClarification), started.Session.State)
	require.NotEmpty(t, started.OpenGaps)
	sid := started.Session.SessionID

	msg := callFails(t, cs, "submit_clarification", map[string]any{"session_id": sid, "gap_id": started.OpenGaps[0].GapID, "answer": ""})
	assert.Contains(t, msg, orchestrator.ErrEmptyResolution.Error())

	var req clarificationOutput
	call(t, cs, "request_clarification", map[string]any{"session_id": sid}, &req)
	assert.Equal(t, 1, req.Round)
	assert.Equal(t, 2, req.MaxRounds)
	assert.Empty(t, req.Forced)
	require.Len(t, req.Gaps, len(started.OpenGaps))

	var after sessionOutput
	for _, g := range req.Gaps {
		call(t, cs, "submit_clarification", map[string]any{"session_id": sid, "gap_id": g.GapID, "answer": "Confirmed by the client."}, &after)
	}
	assert.Equal(t, string(orchestrator.StateCompleted), after.Session.State)
	assert.Equal(t, 1, after.Session.ClarificationRounds)
}

func TestServer_ClarificationBudgetExhausted(t *testing.T) {
	s, _ := newTestServer(t)
	cs := connect(t, s)

	var started sessionOutput
	call(t, cs, "start_session", map[string]any{"content": sparseTender}, &started)
	sid := started.Session.SessionID

	var req clarificationOutput
	for round := 1; round <= 2; round++ {
		call(t, cs, "request_clarification", map[string]any{"session_id": sid}, &req)
		assert.Equal(t, round, req.Round)
		assert.NotEmpty(t, req.Gaps)
	}
	call(t, cs, "request_clarification", map[string]any{"session_id": sid}, &req)
	assert.Empty(t, req.Gaps)
	assert.NotEmpty(t, req.Forced)
	assert.Equal(t, string(orchestrator.StateCompleted), req.State)
	for _, g := range req.Forced {
		assert.Equal(t, string(orchestrator.GapAssumed), g.Status)
		assert.Equal(t, orchestrator.BudgetExhaustedJustification, g.Resolution)
	}
}

func TestServer_Cancel(t *testing.T) {
	s, _ := newTestServer(t)
	cs := connect(t, s)

	var started sessionOutput
	call(t, cs, "start_session", map[string]any{"content": sparseTender}, &started)

	var cancelled sessionOutput
	call(t, cs, "cancel_session", map[string]any{"session_id": started.Session.SessionID}, &cancelled)
	assert.Equal(t, string(orchestrator.StateFailed), cancelled.Session.State)
	assert.Equal(t, string(orchestrator.OutcomeFailed), cancelled.Session.Outcome)

	msg := callFails(t, cs, "cancel_session", map[string]any{"session_id": started.Session.SessionID})
	assert.Contains(t, msg, orchestrator.ErrSessionTerminal.Error())

	msg = callFails(t, cs, "get_artifact", map[string]any{"session_id": started.Session.SessionID})
	assert.Contains(t, msg, orchestrator.ErrArtifactNotFound.Error())
}

func TestServer_Errors(t *testing.T) {
	s, _ := newTestServer(t)
	cs := connect(t, s)

	msg := callFails(t, cs, "start_session", map[string]any{"content": "  "})
	assert.Contains(t, msg, "invalid input")

	msg = callFails(t, cs, "check_workflow_status", map[string]any{"session_id": "missing"})
	assert.Contains(t, msg, orchestrator.ErrSessionNotFound.Error())

	msg = callFails(t, cs, "check_workflow_status", map[string]any{"session_id": ""})
	assert.Contains(t, msg, "session_id is required")
}

func TestServer_Knowledge(t *testing.T) {
	s, _ := newTestServer(t)
	cs := connect(t, s)

	var added addKnowledgeOutput
	call(t, cs, "add_knowledge", map[string]any{"key": "reference.portal", "content": "Customer portal for Globex"}, &added)
	assert.Equal(t, 1, added.Version)
	call(t, cs, "add_knowledge", map[string]any{"key": "reference.portal", "content": "Customer portal for Globex, phase two"}, &added)
	assert.Equal(t, 2, added.Version)

	var found searchKnowledgeOutput
	call(t, cs, "search_knowledge", map[string]any{"query": "globex"}, &found)
	require.Equal(t, 1, found.Count)
	assert.Equal(t, "reference.portal", found.Results[0].Key)
	assert.Equal(t, 2, found.Results[0].Version)
	assert.Equal(t, orchestrator.OperatorIdentity, found.Results[0].WrittenBy)
}

func TestServer_ToolSearch(t *testing.T) {
	s, _ := newTestServer(t)
	cs := connect(t, s)

	var out toolSearchOutput
	call(t, cs, "tool_search", map[string]any{"query": "clarification"}, &out)
	require.NotEmpty(t, out.Results)
	assert.Equal(t, s.Registry().Count(), out.TotalTools)
	for _, r := range out.Results[:2] {
		assert.Equal(t, 2, r.Score)
	}

	var listed toolListOutput
	call(t, cs, "tool_list", map[string]any{"category": "knowledge"}, &listed)
	assert.Equal(t, 2, listed.Count)
}
