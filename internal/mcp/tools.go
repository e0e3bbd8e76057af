package mcp

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/proposald/internal/knowledge"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
)

const defaultKnowledgeLimit = 5

type sessionView struct {
	SessionID           string `json:"session_id" jsonschema:"Session identifier"`
	OwnerID             string `json:"owner_id,omitempty" jsonschema:"Owner of the session"`
	State               string `json:"state" jsonschema:"Current workflow state"`
	ClarificationRounds int    `json:"clarification_rounds" jsonschema:"Clarification rounds consumed"`
	Outcome             string `json:"outcome,omitempty" jsonschema:"completed or failed once terminal"`
	FailedPhase         string `json:"failed_phase,omitempty" jsonschema:"Phase that failed"`
	Reason              string `json:"reason,omitempty" jsonschema:"Failure reason"`
	ArtifactID          string `json:"artifact_id,omitempty" jsonschema:"Proposal document artifact once completed"`
	UpdatedAt           string `json:"updated_at" jsonschema:"RFC 3339 time of the last change"`
}

func toSessionView(s orchestrator.Session) sessionView {
	v := sessionView{
		SessionID:           s.ID,
		OwnerID:             s.OwnerID,
		State:               string(s.State),
		ClarificationRounds: s.ClarificationRounds,
		UpdatedAt:           s.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if r := s.Result; r != nil {
		v.Outcome = string(r.Outcome)
		v.FailedPhase = r.FailedPhase
		v.Reason = r.Reason
		v.ArtifactID = r.ArtifactID
	}
	return v
}

type gapView struct {
	GapID      string `json:"gap_id" jsonschema:"Gap identifier used to answer it"`
	Topic      string `json:"topic" jsonschema:"Missing-information topic"`
	Question   string `json:"question" jsonschema:"Question for the operator"`
	Priority   string `json:"priority" jsonschema:"high, medium or low"`
	Status     string `json:"status" jsonschema:"open, answered or assumed"`
	Resolution string `json:"resolution,omitempty" jsonschema:"Answer or assumption text"`
}

func toGapViews(gaps []orchestrator.Gap) []gapView {
	out := make([]gapView, 0, len(gaps))
	for _, g := range gaps {
		out = append(out, gapView{
			GapID:      g.ID,
			Topic:      g.Topic,
			Question:   g.Question,
			Priority:   string(g.Priority),
			Status:     string(g.Status),
			Resolution: g.Resolution,
		})
	}
	return out
}

type artifactView struct {
	ArtifactID string `json:"artifact_id" jsonschema:"Artifact identifier"`
	Kind       string `json:"kind" jsonschema:"diagram, project_plan or proposal_document"`
	Name       string `json:"name" jsonschema:"Artifact name"`
	ProducedBy string `json:"produced_by" jsonschema:"Worker that produced it"`
}

// ===== SESSION TOOLS =====

type startSessionInput struct {
	OwnerID  string `json:"owner_id,omitempty" jsonschema:"Owner of the new session"`
	Content  string `json:"content" jsonschema:"Full text of the client request or tender"`
	Filename string `json:"filename,omitempty" jsonschema:"Original file name of the document"`
}

type sessionIDInput struct {
	SessionID string `json:"session_id" jsonschema:"Session identifier"`
}

type sessionOutput struct {
	Session  sessionView `json:"session" jsonschema:"Session snapshot"`
	NextStep string      `json:"next_step" jsonschema:"What the operator should do next"`
	OpenGaps []gapView   `json:"open_gaps" jsonschema:"Gaps waiting for an answer"`
}

type statusOutput struct {
	Session         sessionView    `json:"session" jsonschema:"Session snapshot"`
	Progress        int            `json:"progress" jsonschema:"Percent of phases completed"`
	CompletedPhases []string       `json:"completed_phases" jsonschema:"Phases already completed"`
	RemainingPhases []string       `json:"remaining_phases" jsonschema:"Phases still to run"`
	NextStep        string         `json:"next_step" jsonschema:"What the operator should do next"`
	OpenGaps        []gapView      `json:"open_gaps" jsonschema:"Gaps waiting for an answer"`
	Artifacts       []artifactView `json:"artifacts" jsonschema:"Artifacts produced so far"`
}

type listSessionsInput struct {
	OwnerID string `json:"owner_id,omitempty" jsonschema:"Only list sessions of this owner"`
}

type listSessionsOutput struct {
	Sessions []sessionView `json:"sessions" jsonschema:"Sessions known to the server"`
	Count    int           `json:"count" jsonschema:"Number of sessions returned"`
}

func (s *Server) registerSessionTools() error {
	if err := addTool(s, &ToolMetadata{
		Name:        "start_session",
		Description: "Start a proposal workflow from a client request document and run it until it needs input or finishes",
		Category:    CategorySession,
		Keywords:    []string{"rfp", "tender", "create", "new"},
	}, func(ctx context.Context, in startSessionInput) (sessionOutput, error) {
		sess, err := s.orch.Start(ctx, orchestrator.StartInput{OwnerID: in.OwnerID, Content: in.Content, Filename: in.Filename})
		if err != nil {
			return sessionOutput{}, err
		}
		if _, err := s.orch.RunUntilBlocked(ctx, sess.ID); err != nil {
			return sessionOutput{}, err
		}
		return s.sessionOutput(ctx, sess.ID)
	}); err != nil {
		return err
	}

	if err := addTool(s, &ToolMetadata{
		Name:        "check_workflow_status",
		Description: "Report the state, progress, open gaps and artifacts of a proposal session",
		Category:    CategorySession,
		Keywords:    []string{"progress", "poll", "state"},
	}, func(ctx context.Context, in sessionIDInput) (statusOutput, error) {
		if err := required("session_id", in.SessionID); err != nil {
			return statusOutput{}, err
		}
		st, err := s.orch.Status(ctx, in.SessionID)
		if err != nil {
			return statusOutput{}, err
		}
		out := statusOutput{
			Session:         toSessionView(st.Session),
			Progress:        st.Progress,
			CompletedPhases: append([]string{}, st.CompletedPhases...),
			RemainingPhases: append([]string{}, st.RemainingPhases...),
			NextStep:        st.NextStep,
			OpenGaps:        toGapViews(st.OpenGaps),
			Artifacts:       make([]artifactView, 0, len(st.Artifacts)),
		}
		for _, a := range st.Artifacts {
			out.Artifacts = append(out.Artifacts, artifactView{
				ArtifactID: a.ID,
				Kind:       string(a.Kind),
				Name:       a.Name,
				ProducedBy: a.ProducedBy,
			})
		}
		return out, nil
	}); err != nil {
		return err
	}

	if err := addTool(s, &ToolMetadata{
		Name:        "advance_session",
		Description: "Run a session forward until it blocks on clarification or reaches a terminal state",
		Category:    CategorySession,
		Keywords:    []string{"continue", "resume", "run"},
	}, func(ctx context.Context, in sessionIDInput) (sessionOutput, error) {
		if err := required("session_id", in.SessionID); err != nil {
			return sessionOutput{}, err
		}
		if _, err := s.orch.RunUntilBlocked(ctx, in.SessionID); err != nil {
			return sessionOutput{}, err
		}
		return s.sessionOutput(ctx, in.SessionID)
	}); err != nil {
		return err
	}

	if err := addTool(s, &ToolMetadata{
		Name:        "cancel_session",
		Description: "Cancel a running proposal session; it ends in the failed state",
		Category:    CategorySession,
		Keywords:    []string{"stop", "abort"},
	}, func(ctx context.Context, in sessionIDInput) (sessionOutput, error) {
		if err := required("session_id", in.SessionID); err != nil {
			return sessionOutput{}, err
		}
		if _, err := s.orch.Cancel(ctx, in.SessionID); err != nil {
			return sessionOutput{}, err
		}
		return s.sessionOutput(ctx, in.SessionID)
	}); err != nil {
		return err
	}

	return addTool(s, &ToolMetadata{
		Name:        "list_sessions",
		Description: "List proposal sessions held by the server",
		Category:    CategorySession,
	}, func(_ context.Context, in listSessionsInput) (listSessionsOutput, error) {
		out := listSessionsOutput{Sessions: []sessionView{}}
		for _, sess := range s.orch.Sessions() {
			if in.OwnerID == "" || sess.OwnerID == in.OwnerID {
				out.Sessions = append(out.Sessions, toSessionView(sess))
			}
		}
		out.Count = len(out.Sessions)
		return out, nil
	})
}

func (s *Server) sessionOutput(ctx context.Context, sessionID string) (sessionOutput, error) {
	st, err := s.orch.Status(ctx, sessionID)
	if err != nil {
		return sessionOutput{}, err
	}
	return sessionOutput{
		Session:  toSessionView(st.Session),
		NextStep: st.NextStep,
		OpenGaps: toGapViews(st.OpenGaps),
	}, nil
}

// ===== CLARIFICATION TOOLS =====

type clarificationOutput struct {
	SessionID string    `json:"session_id" jsonschema:"Session identifier"`
	Round     int       `json:"round" jsonschema:"Clarification round just consumed"`
	MaxRounds int       `json:"max_rounds" jsonschema:"Round budget of the session"`
	Gaps      []gapView `json:"gaps" jsonschema:"Open gaps to answer, highest priority first"`
	Forced    []gapView `json:"forced" jsonschema:"Gaps assumed because the round budget ran out"`
	State     string    `json:"state" jsonschema:"Workflow state after the request"`
}

type submitClarificationInput struct {
	SessionID string `json:"session_id" jsonschema:"Session identifier"`
	GapID     string `json:"gap_id" jsonschema:"Gap to answer"`
	Answer    string `json:"answer" jsonschema:"Answer text"`
}

func (s *Server) registerClarificationTools() error {
	if err := addTool(s, &ToolMetadata{
		Name:        "request_clarification",
		Description: "Present the open gaps of a session awaiting clarification; consumes one clarification round",
		Category:    CategoryClarification,
		Keywords:    []string{"gaps", "questions", "missing"},
	}, func(ctx context.Context, in sessionIDInput) (clarificationOutput, error) {
		if err := required("session_id", in.SessionID); err != nil {
			return clarificationOutput{}, err
		}
		req, err := s.orch.RequestClarification(ctx, in.SessionID)
		if err != nil {
			return clarificationOutput{}, err
		}
		if len(req.Gaps) == 0 {
			sess, err := s.orch.RunUntilBlocked(ctx, in.SessionID)
			if err != nil {
				return clarificationOutput{}, err
			}
			req.State = sess.State
		}
		return clarificationOutput{
			SessionID: req.SessionID,
			Round:     req.Round,
			MaxRounds: req.MaxRounds,
			Gaps:      toGapViews(req.Gaps),
			Forced:    toGapViews(req.Forced),
			State:     string(req.State),
		}, nil
	}); err != nil {
		return err
	}

	return addTool(s, &ToolMetadata{
		Name:        "submit_clarification",
		Description: "Answer an open gap; once the last gap is answered the workflow continues",
		Category:    CategoryClarification,
		Keywords:    []string{"answer", "respond"},
	}, func(ctx context.Context, in submitClarificationInput) (sessionOutput, error) {
		if err := required("session_id", in.SessionID); err != nil {
			return sessionOutput{}, err
		}
		if err := required("gap_id", in.GapID); err != nil {
			return sessionOutput{}, err
		}
		sess, err := s.orch.SubmitClarification(ctx, in.SessionID, in.GapID, in.Answer)
		if err != nil {
			return sessionOutput{}, err
		}
		if sess.State != orchestrator.StateAwaitingClarification {
			if _, err := s.orch.RunUntilBlocked(ctx, in.SessionID); err != nil {
				return sessionOutput{}, err
			}
		}
		return s.sessionOutput(ctx, in.SessionID)
	})
}

// ===== ARTIFACT TOOLS =====

type getArtifactInput struct {
	SessionID  string `json:"session_id" jsonschema:"Session identifier"`
	ArtifactID string `json:"artifact_id,omitempty" jsonschema:"Artifact to fetch; defaults to the proposal document"`
}

type getArtifactOutput struct {
	ArtifactID string `json:"artifact_id" jsonschema:"Artifact identifier"`
	Kind       string `json:"kind" jsonschema:"diagram, project_plan or proposal_document"`
	Name       string `json:"name" jsonschema:"Artifact name"`
	ProducedBy string `json:"produced_by" jsonschema:"Worker that produced it"`
	Content    string `json:"content" jsonschema:"Artifact body"`
}

func (s *Server) registerArtifactTools() error {
	return addTool(s, &ToolMetadata{
		Name:        "get_artifact",
		Description: "Fetch a produced artifact; without artifact_id returns the final proposal document",
		Category:    CategoryArtifact,
		Keywords:    []string{"proposal", "document", "diagram", "plan", "download"},
	}, func(ctx context.Context, in getArtifactInput) (getArtifactOutput, error) {
		if err := required("session_id", in.SessionID); err != nil {
			return getArtifactOutput{}, err
		}
		id := in.ArtifactID
		if id == "" {
			sess, err := s.orch.Session(in.SessionID)
			if err != nil {
				return getArtifactOutput{}, err
			}
			if sess.Result == nil || sess.Result.ArtifactID == "" {
				return getArtifactOutput{}, orchestrator.ErrArtifactNotFound
			}
			id = sess.Result.ArtifactID
		}
		a, err := s.orch.Artifact(in.SessionID, id)
		if err != nil {
			return getArtifactOutput{}, err
		}
		return getArtifactOutput{
			ArtifactID: a.ID,
			Kind:       string(a.Kind),
			Name:       a.Name,
			ProducedBy: a.ProducedBy,
			Content:    a.Content,
		}, nil
	})
}

// ===== KNOWLEDGE TOOLS =====

type searchKnowledgeInput struct {
	Query string `json:"query" jsonschema:"Text to look for in the shared knowledge base"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum results (default 5)"`
}

type knowledgeHit struct {
	Key       string `json:"key" jsonschema:"Record key"`
	Version   int    `json:"version" jsonschema:"Record version"`
	WrittenBy string `json:"written_by" jsonschema:"Writer identity"`
	Content   string `json:"content" jsonschema:"Record text"`
}

type searchKnowledgeOutput struct {
	Query   string         `json:"query" jsonschema:"Search query used"`
	Results []knowledgeHit `json:"results" jsonschema:"Matching records"`
	Count   int            `json:"count" jsonschema:"Number of results"`
}

type addKnowledgeInput struct {
	Key     string `json:"key" jsonschema:"Record key, for example reference.portal"`
	Content string `json:"content" jsonschema:"Text to store"`
}

type addKnowledgeOutput struct {
	Key     string `json:"key" jsonschema:"Record key"`
	Version int    `json:"version" jsonschema:"New version number"`
}

func (s *Server) registerKnowledgeTools() error {
	if err := addTool(s, &ToolMetadata{
		Name:        "search_knowledge",
		Description: "Search organisation-wide knowledge such as past proposals and reference projects",
		Category:    CategoryKnowledge,
		Keywords:    []string{"reference", "past", "find"},
	}, func(ctx context.Context, in searchKnowledgeInput) (searchKnowledgeOutput, error) {
		if err := required("query", in.Query); err != nil {
			return searchKnowledgeOutput{}, err
		}
		limit := in.Limit
		if limit <= 0 {
			limit = defaultKnowledgeLimit
		}
		recs, err := s.orch.Knowledge().Search(ctx, knowledge.GlobalNamespace, in.Query, limit)
		if err != nil {
			return searchKnowledgeOutput{}, err
		}
		out := searchKnowledgeOutput{Query: in.Query, Results: make([]knowledgeHit, 0, len(recs))}
		for _, r := range recs {
			out.Results = append(out.Results, knowledgeHit{
				Key:       r.Key,
				Version:   r.Version,
				WrittenBy: r.WrittenBy,
				Content:   r.Text(),
			})
		}
		out.Count = len(out.Results)
		return out, nil
	}); err != nil {
		return err
	}

	return addTool(s, &ToolMetadata{
		Name:        "add_knowledge",
		Description: "Store a new version of an organisation-wide knowledge record",
		Category:    CategoryKnowledge,
		Keywords:    []string{"save", "remember", "reference"},
	}, func(ctx context.Context, in addKnowledgeInput) (addKnowledgeOutput, error) {
		if err := required("key", in.Key); err != nil {
			return addKnowledgeOutput{}, err
		}
		if err := required("content", in.Content); err != nil {
			return addKnowledgeOutput{}, err
		}
		v, err := s.orch.Knowledge().Save(ctx, knowledge.GlobalNamespace, in.Key, in.Content, orchestrator.OperatorIdentity)
		if err != nil {
			return addKnowledgeOutput{}, err
		}
		return addKnowledgeOutput{Key: in.Key, Version: v}, nil
	})
}
