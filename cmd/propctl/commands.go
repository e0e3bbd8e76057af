package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	apihttp "github.com/fyrsmithlabs/proposald/internal/http"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
	"github.com/fyrsmithlabs/proposald/internal/store"
)

func newStartCmd(o *options) *cobra.Command {
	var (
		owner    string
		filename string
		async    bool
	)
	cmd := &cobra.Command{
		Use:   "start [file|-]",
		Short: "Start a proposal session from a tender document",
		Long: `Start a proposal session from a tender document read from a file or stdin.

The server runs the workflow until it completes, fails or needs answers.
With --async it returns as soon as the session exists.

Examples:
  # Start from a file
  propctl start tender.md

  # Start from stdin
  cat tender.txt | propctl start - --owner bids`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, name, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if filename == "" {
				filename = name
			}

			path := "/api/v1/sessions"
			if async {
				path += "?async=true"
			}
			var resp apihttp.SessionResponse
			req := apihttp.StartRequest{OwnerID: owner, Content: content, Filename: filename}
			if _, err := o.client().do(cmd.Context(), http.MethodPost, path, req, &resp); err != nil {
				return err
			}

			p, err := o.printer(cmd)
			if err != nil {
				return err
			}
			if err := p.emit(resp, func() { p.session(resp.Session) }); err != nil {
				return err
			}
			return exitFor(resp.Session.State)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner identity recorded on the session")
	cmd.Flags().StringVar(&filename, "filename", "", "document name (defaults to the file's base name)")
	cmd.Flags().BoolVar(&async, "async", false, "return immediately and run the workflow in the background")
	return cmd
}

func newStatusCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show the state, gaps and artifacts of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var st orchestrator.Status
			if _, err := o.client().do(cmd.Context(), http.MethodGet, sessionPath(args[0]), nil, &st); err != nil {
				return err
			}
			p, err := o.printer(cmd)
			if err != nil {
				return err
			}
			if err := p.emit(st, func() { p.status(st) }); err != nil {
				return err
			}
			return exitFor(st.Session.State)
		},
	}
}

func newListCmd(o *options) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/sessions"
			if owner != "" {
				path += "?" + url.Values{"owner_id": {owner}}.Encode()
			}
			var resp apihttp.SessionsResponse
			if _, err := o.client().do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
				return err
			}
			p, err := o.printer(cmd)
			if err != nil {
				return err
			}
			return p.emit(resp, func() { p.sessions(resp.Sessions) })
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only sessions of this owner")
	return cmd
}

func newAdvanceCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "advance <session-id>",
		Short: "Perform a single workflow step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sessionAction(cmd, o, sessionPath(args[0], "advance"), nil, true)
		},
	}
}

func newCancelCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Cancel a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sessionAction(cmd, o, sessionPath(args[0], "cancel"), nil, false)
		},
	}
}

func newAnswerCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "answer <session-id> <gap-id> <answer...>",
		Short: "Answer an open clarification gap",
		Long: `Answer an open clarification gap. Once the last gap is answered the
server re-runs analysis and continues the workflow.

Examples:
  propctl answer 3f1c... 9a2e... "Budget is capped at 120k EUR"

  # Read the answer from stdin
  propctl answer 3f1c... 9a2e... - < answer.txt`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			answer := strings.Join(args[2:], " ")
			if answer == "-" {
				text, _, err := readInput(cmd.InOrStdin(), nil)
				if err != nil {
					return err
				}
				answer = text
			}
			req := apihttp.AnswerRequest{Answer: answer}
			return sessionAction(cmd, o, sessionPath(args[0], "gaps", args[1], "answer"), req, true)
		},
	}
}

// sessionAction posts to a session endpoint that replies with a session.
func sessionAction(cmd *cobra.Command, o *options, path string, body any, exitCode bool) error {
	var resp apihttp.SessionResponse
	if _, err := o.client().do(cmd.Context(), http.MethodPost, path, body, &resp); err != nil {
		return err
	}
	p, err := o.printer(cmd)
	if err != nil {
		return err
	}
	if err := p.emit(resp, func() { p.session(resp.Session) }); err != nil {
		return err
	}
	if exitCode {
		return exitFor(resp.Session.State)
	}
	return nil
}

func newGapsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "gaps <session-id>",
		Short: "Request a clarification round and list the open gaps",
		Long: `Request a clarification round. Each call consumes one round; once the
round budget is spent the remaining gaps are assumed and the workflow
continues.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req orchestrator.ClarificationRequest
			if _, err := o.client().do(cmd.Context(), http.MethodPost, sessionPath(args[0], "clarifications"), nil, &req); err != nil {
				return err
			}
			p, err := o.printer(cmd)
			if err != nil {
				return err
			}
			return p.emit(req, func() { p.clarification(req) })
		},
	}
}

func newArtifactsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "artifacts <session-id> [artifact-id]",
		Short: "List the artifacts of a session or print one",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.printer(cmd)
			if err != nil {
				return err
			}
			c := o.client()

			if len(args) == 1 {
				var st orchestrator.Status
				if _, err := c.do(cmd.Context(), http.MethodGet, sessionPath(args[0]), nil, &st); err != nil {
					return err
				}
				arts := st.Artifacts
				if arts == nil {
					arts = []orchestrator.Artifact{}
				}
				return p.emit(arts, func() { p.artifacts(arts) })
			}

			path := sessionPath(args[0], "artifacts", args[1])
			if p.format == formatTable {
				var content string
				if _, err := c.do(cmd.Context(), http.MethodGet, path+"?raw=true", nil, &content); err != nil {
					return err
				}
				fmt.Fprint(p.w, content)
				return nil
			}
			var art orchestrator.Artifact
			if _, err := c.do(cmd.Context(), http.MethodGet, path, nil, &art); err != nil {
				return err
			}
			return p.emit(art, nil)
		},
	}
}

func newProposalCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "proposal <session-id>",
		Short: "Print the proposal document of a completed session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, data, err := o.client().send(cmd.Context(), http.MethodGet, sessionPath(args[0], "proposal"), nil)
			if err != nil {
				return err
			}
			switch status {
			case http.StatusOK, http.StatusAccepted, http.StatusUnprocessableEntity:
			default:
				return decodeError(status, data)
			}

			var resp apihttp.ProposalResponse
			if err := json.Unmarshal(data, &resp); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			p, err := o.printer(cmd)
			if err != nil {
				return err
			}
			err = p.emit(resp, func() {
				switch {
				case resp.Document != nil:
					fmt.Fprint(p.w, resp.Document.Content)
				case resp.Result != nil && resp.Result.Reason != "":
					p.field("State", styleState(resp.State))
					p.field("Reason", resp.Result.Reason)
				default:
					p.field("State", styleState(resp.State))
					if resp.NextStep != "" {
						p.field("Next step", resp.NextStep)
					}
				}
			})
			if err != nil {
				return err
			}
			return exitFor(resp.State)
		},
	}
}

func newProgressCmd(o *options) *cobra.Command {
	var after uint64
	cmd := &cobra.Command{
		Use:   "progress <session-id>",
		Short: "List worker progress events of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := sessionPath(args[0], "progress")
			if after > 0 {
				path += "?after=" + strconv.FormatUint(after, 10)
			}
			var resp apihttp.ProgressResponse
			if _, err := o.client().do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
				return err
			}
			p, err := o.printer(cmd)
			if err != nil {
				return err
			}
			return p.emit(resp, func() { p.progress(resp.Events) })
		},
	}
	cmd.Flags().Uint64Var(&after, "after", 0, "only events with a greater sequence number")
	return cmd
}

func newSearchCmd(o *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search organisation-wide knowledge",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"q": {strings.Join(args, " ")}}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			var resp apihttp.RecordsResponse
			if _, err := o.client().do(cmd.Context(), http.MethodGet, "/api/v1/knowledge/search?"+q.Encode(), nil, &resp); err != nil {
				return err
			}
			p, err := o.printer(cmd)
			if err != nil {
				return err
			}
			return p.emit(resp, func() { p.records(resp.Records) })
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results (server default when 0)")
	return cmd
}

func newLearnCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "learn <key> [file|-]",
		Short: "Add an entry to organisation-wide knowledge",
		Long: `Add an entry to organisation-wide knowledge. Workers consult these
entries when designing solutions. Saving an existing key adds a version.

Examples:
  propctl learn pricing.daily-rate rates.md`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, _, err := readInput(cmd.InOrStdin(), args[1:])
			if err != nil {
				return err
			}
			var rec json.RawMessage
			req := apihttp.KnowledgeRequest{Key: args[0], Content: content}
			if _, err := o.client().do(cmd.Context(), http.MethodPost, "/api/v1/knowledge", req, &rec); err != nil {
				return err
			}
			var out struct {
				Key     string `json:"key"`
				Version int    `json:"version"`
			}
			if err := json.Unmarshal(rec, &out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			p, err := o.printer(cmd)
			if err != nil {
				return err
			}
			return p.emit(rec, func() {
				p.field("Key", out.Key)
				p.field("Version", out.Version)
			})
		},
	}
}

func newArchiveCmd(o *options) *cobra.Command {
	var (
		owner   string
		outcome string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "List finished sessions from the archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if owner != "" {
				q.Set("owner_id", owner)
			}
			if outcome != "" {
				q.Set("outcome", outcome)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			path := "/api/v1/archive"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			var list []store.Summary
			if _, err := o.client().do(cmd.Context(), http.MethodGet, path, nil, &list); err != nil {
				return err
			}
			p, err := o.printer(cmd)
			if err != nil {
				return err
			}
			return p.emit(list, func() { p.archive(list) })
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only sessions of this owner")
	cmd.Flags().StringVar(&outcome, "outcome", "", "completed or failed")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of sessions")
	return cmd
}

func newHealthCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check proposald server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp apihttp.HealthResponse
			if _, err := o.client().do(cmd.Context(), http.MethodGet, "/health", nil, &resp); err != nil {
				return err
			}
			p, err := o.printer(cmd)
			if err != nil {
				return err
			}
			return p.emit(resp, func() {
				p.field("Server Status", resp.Status)
				p.field("Live sessions", resp.Sessions)
			})
		},
	}
}
