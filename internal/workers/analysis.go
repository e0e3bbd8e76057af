package workers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/proposald/internal/extraction"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
)

// clarification mirrors the record the orchestrator stores for an answer.
type clarification struct {
	GapID    string `json:"gap_id"`
	Topic    string `json:"topic"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Analysis extracts requirements from the input document and flags missing
// information as gaps. Clarification answers are merged into its input on
// re-analysis.
type Analysis struct {
	base
	analyzer *extraction.Analyzer
}

// NewAnalysis creates the analysis worker.
func NewAnalysis(opts Options) (*Analysis, error) {
	analyzer := opts.Analyzer
	if analyzer == nil {
		var err error
		analyzer, err = extraction.NewAnalyzer(extraction.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("create analyzer: %w", err)
		}
	}
	return &Analysis{base: newBase(orchestrator.WorkerAnalysis, opts), analyzer: analyzer}, nil
}

// Contract implements orchestrator.Worker.
func (a *Analysis) Contract() orchestrator.Contract {
	return orchestrator.Contract{
		Inputs:  []string{KeyInputDocument, KeyClarifications},
		Outputs: []string{KeyRequirements, KeySummary},
	}
}

// Run implements orchestrator.Worker.
func (a *Analysis) Run(ctx context.Context, in orchestrator.WorkerInput) (orchestrator.WorkerOutput, error) {
	doc, ok := in.Get(KeyInputDocument)
	if !ok {
		return orchestrator.WorkerOutput{}, a.fatal("missing %s", KeyInputDocument)
	}
	text := strings.TrimSpace(doc.Text())
	if text == "" {
		return orchestrator.WorkerOutput{}, a.fatal("input document is empty")
	}

	answered := make(map[string]string)
	for _, rec := range in.Matching(KeyClarifications) {
		var c clarification
		if err := rec.Decode(&c); err != nil || c.Topic == "" {
			a.logger.Warn(ctx, "skipping malformed clarification", zap.String("key", rec.Key))
			continue
		}
		answered[c.Topic] = c.Answer
	}

	in.Report("extracting requirements", 10)
	res := a.analyzer.Analyze(text, answered)

	reqs := Requirements{
		Items:        res.Requirements,
		Budget:       res.Budget,
		Timeline:     res.Timeline,
		Scope:        res.Scope,
		Technologies: res.Technologies,
		Domain:       res.Domain,
	}
	summary := Summary{
		Text:           summarize(text, res),
		StructureScore: res.Structure.Score,
	}
	if len(answered) > 0 {
		summary.Clarified = answered
	}

	gaps := make([]orchestrator.GapReport, 0, len(res.Missing))
	for _, m := range res.Missing {
		summary.Missing = append(summary.Missing, m.Topic)
		gaps = append(gaps, orchestrator.GapReport{
			Topic:    m.Topic,
			Question: m.Question,
			Priority: orchestrator.GapPriority(m.Priority),
		})
	}

	narrative, err := a.narrative(ctx, in,
		"You are a bid analyst. Summarise the client's need in three sentences.",
		text+clarificationBlock(answered),
	)
	if err != nil {
		return orchestrator.WorkerOutput{}, err
	}
	summary.Narrative = narrative

	a.logger.Info(ctx, "analysis complete",
		zap.Int("requirements", len(reqs.Items)),
		zap.Int("missing", len(gaps)),
		zap.Int("clarified", len(answered)),
	)
	in.Report("analysis complete", 100)

	return orchestrator.WorkerOutput{
		Writes: []orchestrator.Write{
			{Key: KeyRequirements, Value: reqs},
			{Key: KeySummary, Value: summary},
		},
		Gaps: gaps,
	}, nil
}

func summarize(text string, res extraction.Result) string {
	first := text
	if i := strings.IndexAny(first, ".\n"); i > 0 {
		first = first[:i]
	}
	first = clip(strings.TrimSpace(first), 160)

	counts := fmt.Sprintf("%d functional, %d non-functional and %d constraint requirement(s)",
		len(res.ByCategory(extraction.CategoryFunctional)),
		len(res.ByCategory(extraction.CategoryNonFunctional)),
		len(res.ByCategory(extraction.CategoryConstraint)),
	)
	s := fmt.Sprintf("%s. The request contains %s", first, counts)
	if res.Domain != "" {
		s += fmt.Sprintf(" in the %s domain", res.Domain)
	}
	return s + "."
}

func clarificationBlock(answered map[string]string) string {
	if len(answered) == 0 {
		return ""
	}
	topics := make([]string, 0, len(answered))
	for t := range answered {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	var sb strings.Builder
	sb.WriteString("\n\nClarifications:\n")
	for _, t := range topics {
		fmt.Fprintf(&sb, "- %s: %s\n", t, answered[t])
	}
	return sb.String()
}
