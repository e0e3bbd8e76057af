package http

import (
	"github.com/fyrsmithlabs/proposald/internal/knowledge"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
	"github.com/fyrsmithlabs/proposald/internal/telemetry"
)

// StartRequest is the request body for POST /api/v1/sessions.
type StartRequest struct {
	OwnerID  string `json:"owner_id"`
	Content  string `json:"content"`
	Filename string `json:"filename,omitempty"`
}

// AnswerRequest is the request body for POST /api/v1/sessions/:id/gaps/:gap_id/answer.
type AnswerRequest struct {
	Answer string `json:"answer"`
}

// KnowledgeRequest is the request body for POST /api/v1/knowledge.
type KnowledgeRequest struct {
	Key     string `json:"key"`
	Content string `json:"content"`
}

// SessionResponse wraps a session snapshot.
type SessionResponse struct {
	Session orchestrator.Session `json:"session"`
}

// SessionsResponse lists sessions.
type SessionsResponse struct {
	Sessions []orchestrator.Session `json:"sessions"`
}

// ProposalResponse is the response body for GET /api/v1/sessions/:id/proposal.
type ProposalResponse struct {
	SessionID string                       `json:"session_id"`
	State     orchestrator.State           `json:"state"`
	NextStep  string                       `json:"next_step,omitempty"`
	Result    *orchestrator.TerminalResult `json:"result,omitempty"`
	Document  *orchestrator.Artifact       `json:"document,omitempty"`
}

// ProgressResponse lists progress events.
type ProgressResponse struct {
	Events []orchestrator.ProgressEvent `json:"events"`
}

// RecordsResponse lists record versions or search hits.
type RecordsResponse struct {
	Records []knowledge.Record `json:"records"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"`
	Sessions  int                     `json:"sessions"`
	Telemetry *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
