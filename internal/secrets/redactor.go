package secrets

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/proposald/internal/logging"
)

// Finding describes one redacted secret without its value.
type Finding struct {
	RuleID string `json:"rule_id"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Length int    `json:"length"`
}

// Result is the outcome of a redaction pass.
type Result struct {
	Content  string         `json:"-"`
	Findings []Finding      `json:"findings,omitempty"`
	ByRule   map[string]int `json:"by_rule,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// HasFindings reports whether anything was redacted.
func (r Result) HasFindings() bool { return len(r.Findings) > 0 }

// Redactor removes secrets from text.
type Redactor struct {
	mu        sync.Mutex
	detector  *detect.Detector
	rules     []Rule
	allowlist *Allowlist
	logger    *logging.Logger
}

// NewRedactor builds a redactor over the default gitleaks configuration.
// allowlist may be nil.
func NewRedactor(allowlist *Allowlist, logger *logging.Logger) (*Redactor, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("load gitleaks rules: %w", err)
	}
	if allowlist != nil && len(allowlist.compiled) > 0 {
		applyAllowlist(&d.Config, allowlist)
	}
	return &Redactor{
		detector:  d,
		rules:     ProseRules(),
		allowlist: allowlist,
		logger:    logger,
	}, nil
}

func applyAllowlist(cfg *config.Config, a *Allowlist) {
	al := &config.Allowlist{Description: "proposald allowlist"}
	for _, re := range a.compiled {
		al.Regexes = append(al.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	cfg.Allowlists = append(cfg.Allowlists, al)
}

type span struct {
	start, end int
	ruleID     string
}

// Redact detects and replaces secrets in content.
func (r *Redactor) Redact(content string) Result {
	started := time.Now()
	res := Result{Content: content, ByRule: map[string]int{}}
	if strings.TrimSpace(content) == "" {
		return res
	}

	var spans []span
	r.mu.Lock()
	found := r.detector.DetectString(content)
	r.mu.Unlock()
	for _, f := range found {
		if f.Secret == "" || r.allowlist.Allowed(f.Secret) {
			continue
		}
		for off := 0; ; {
			i := strings.Index(content[off:], f.Secret)
			if i < 0 {
				break
			}
			start := off + i
			spans = append(spans, span{start: start, end: start + len(f.Secret), ruleID: f.RuleID})
			off = start + len(f.Secret)
		}
	}
	for _, rule := range r.rules {
		for _, m := range rule.Pattern.FindAllStringSubmatchIndex(content, -1) {
			start, end := m[0], m[1]
			if len(m) >= 4 && m[2] >= 0 {
				start, end = m[2], m[3]
			}
			if r.allowlist.Allowed(content[start:end]) {
				continue
			}
			spans = append(spans, span{start: start, end: end, ruleID: rule.ID})
		}
	}

	merged := mergeSpans(spans)
	for _, s := range merged {
		res.Findings = append(res.Findings, Finding{RuleID: s.ruleID, Start: s.start, End: s.end, Length: s.end - s.start})
		res.ByRule[s.ruleID]++
	}

	var sb strings.Builder
	last := 0
	for _, s := range merged {
		sb.WriteString(content[last:s.start])
		sb.WriteString("[REDACTED:" + s.ruleID + "]")
		last = s.end
	}
	sb.WriteString(content[last:])
	res.Content = sb.String()
	res.Duration = time.Since(started)
	return res
}

// Scrub returns text with secrets redacted. Rule counts are logged, never
// the values.
func (r *Redactor) Scrub(text string) string {
	res := r.Redact(text)
	if res.HasFindings() {
		r.logger.Warn(context.Background(), "secrets redacted from submitted text",
			zap.Int("findings", len(res.Findings)),
			zap.Any("by_rule", res.ByRule),
			zap.Duration("duration", res.Duration),
		)
	}
	return res.Content
}

// mergeSpans sorts spans and folds overlapping ones. The earliest span's
// rule id wins.
func mergeSpans(spans []span) []span {
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})
	merged := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start < last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// Noop leaves text untouched. Used when redaction is disabled.
type Noop struct{}

// Scrub returns text unchanged.
func (Noop) Scrub(text string) string { return text }
