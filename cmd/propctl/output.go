package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/proposald/internal/knowledge"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
	"github.com/fyrsmithlabs/proposald/internal/store"
)

// Output formats accepted by --output.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	waitingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

// printer renders API payloads in the selected format.
type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) (*printer, error) {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return &printer{w: w, format: format}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q (want table, json or yaml)", format)
	}
}

// emit writes v as JSON or YAML, or calls render for table output.
func (p *printer) emit(v any, render func()) error {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		return p.yaml(v)
	default:
		render()
		return nil
	}
}

// yaml re-encodes v through its JSON form so keys match the API.
func (p *printer) yaml(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func (p *printer) newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(p.w)
	tw.SetStyle(table.StyleLight)
	return tw
}

func (p *printer) title(s string) {
	fmt.Fprintln(p.w, titleStyle.Render(s))
}

func (p *printer) field(label string, value any) {
	fmt.Fprintf(p.w, "%s %v\n", labelStyle.Render(label+":"), value)
}

func styleState(s orchestrator.State) string {
	switch s {
	case orchestrator.StateCompleted:
		return completedStyle.Render(string(s))
	case orchestrator.StateFailed:
		return failedStyle.Render(string(s))
	case orchestrator.StateAwaitingClarification:
		return waitingStyle.Render(string(s))
	default:
		return string(s)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

func (p *printer) session(s orchestrator.Session) {
	p.field("Session", s.ID)
	p.field("Owner", s.OwnerID)
	p.field("State", styleState(s.State))
	p.field("Clarification rounds", s.ClarificationRounds)
	p.field("Updated", formatTime(s.UpdatedAt))
	if r := s.Result; r != nil {
		p.field("Outcome", r.Outcome)
		if r.FailedPhase != "" {
			p.field("Failed phase", r.FailedPhase)
		}
		if r.Reason != "" {
			p.field("Reason", r.Reason)
		}
		if r.ArtifactID != "" {
			p.field("Proposal", r.ArtifactID)
		}
	}
}

func (p *printer) sessions(list []orchestrator.Session) {
	if len(list) == 0 {
		fmt.Fprintln(p.w, dimStyle.Render("no sessions"))
		return
	}
	tw := p.newTable()
	tw.AppendHeader(table.Row{"ID", "Owner", "State", "Rounds", "Updated"})
	for _, s := range list {
		tw.AppendRow(table.Row{s.ID, s.OwnerID, styleState(s.State), s.ClarificationRounds, formatTime(s.UpdatedAt)})
	}
	tw.Render()
}

func (p *printer) status(st orchestrator.Status) {
	p.session(st.Session)
	p.field("Progress", fmt.Sprintf("%d%%", st.Progress))
	if len(st.CompletedPhases) > 0 {
		p.field("Completed phases", strings.Join(st.CompletedPhases, ", "))
	}
	if len(st.RemainingPhases) > 0 {
		p.field("Remaining phases", strings.Join(st.RemainingPhases, ", "))
	}
	if st.NextStep != "" {
		p.field("Next step", st.NextStep)
	}
	if len(st.Gaps) > 0 {
		fmt.Fprintln(p.w)
		p.title("Gaps")
		p.gaps(st.Gaps)
	}
	if len(st.Invocations) > 0 {
		fmt.Fprintln(p.w)
		p.title("Invocations")
		tw := p.newTable()
		tw.AppendHeader(table.Row{"Worker", "Phase", "Status", "Attempts", "Error"})
		for _, inv := range st.Invocations {
			tw.AppendRow(table.Row{inv.WorkerName, inv.Phase, inv.Status, inv.AttemptCount, truncate(inv.Error, 60)})
		}
		tw.Render()
	}
	if len(st.Artifacts) > 0 {
		fmt.Fprintln(p.w)
		p.title("Artifacts")
		p.artifacts(st.Artifacts)
	}
}

func (p *printer) gaps(gaps []orchestrator.Gap) {
	tw := p.newTable()
	tw.AppendHeader(table.Row{"ID", "Priority", "Topic", "Status", "Question", "Resolution"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, WidthMax: 50},
		{Number: 6, WidthMax: 40},
	})
	for _, g := range gaps {
		tw.AppendRow(table.Row{g.ID, g.Priority, g.Topic, g.Status, g.Question, g.Resolution})
	}
	tw.Render()
}

func (p *printer) clarification(req orchestrator.ClarificationRequest) {
	p.field("Session", req.SessionID)
	p.field("Round", fmt.Sprintf("%d/%d", req.Round, req.MaxRounds))
	p.field("State", styleState(req.State))
	if len(req.Gaps) > 0 {
		fmt.Fprintln(p.w)
		p.title("Open gaps")
		p.gaps(req.Gaps)
	}
	if len(req.Forced) > 0 {
		fmt.Fprintln(p.w)
		p.title("Assumed (" + orchestrator.BudgetExhaustedJustification + ")")
		p.gaps(req.Forced)
	}
}

func (p *printer) artifacts(arts []orchestrator.Artifact) {
	tw := p.newTable()
	tw.AppendHeader(table.Row{"ID", "Kind", "Name", "Produced by", "Created"})
	for _, a := range arts {
		tw.AppendRow(table.Row{a.ID, a.Kind, a.Name, a.ProducedBy, formatTime(a.CreatedAt)})
	}
	tw.Render()
}

func (p *printer) records(recs []knowledge.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(p.w, dimStyle.Render("no matches"))
		return
	}
	tw := p.newTable()
	tw.AppendHeader(table.Row{"Key", "Version", "Written by", "Content"})
	for _, r := range recs {
		tw.AppendRow(table.Row{r.Key, r.Version, r.WrittenBy, truncate(r.Text(), 70)})
	}
	tw.Render()
}

func (p *printer) progress(events []orchestrator.ProgressEvent) {
	if len(events) == 0 {
		fmt.Fprintln(p.w, dimStyle.Render("no progress events"))
		return
	}
	tw := p.newTable()
	tw.AppendHeader(table.Row{"Seq", "Worker", "Phase", "Kind", "Message", "%"})
	for _, e := range events {
		tw.AppendRow(table.Row{e.Seq, e.Worker, e.Phase, e.Kind, truncate(e.Message, 50), e.Percent})
	}
	tw.Render()
}

func (p *printer) archive(list []store.Summary) {
	if len(list) == 0 {
		fmt.Fprintln(p.w, dimStyle.Render("no archived sessions"))
		return
	}
	tw := p.newTable()
	tw.AppendHeader(table.Row{"ID", "Owner", "Outcome", "Rounds", "Finished", "Reason"})
	for _, s := range list {
		tw.AppendRow(table.Row{s.SessionID, s.OwnerID, s.Outcome, s.Rounds, formatTime(s.FinishedAt), truncate(s.Reason, 50)})
	}
	tw.Render()
}
