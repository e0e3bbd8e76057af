package extraction

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Analyzer extracts requirements and missing information using pattern matching.
type Analyzer struct {
	patterns  []*compiledPattern
	topics    []*compiledTopic
	minWeight float64
	tags      *DefaultTagExtractor
}

// compiledPattern holds a pre-compiled regex pattern.
type compiledPattern struct {
	Pattern
	regex *regexp.Regexp
}

type compiledTopic struct {
	Topic
	regex *regexp.Regexp
}

var (
	sentenceSplit = regexp.MustCompile(`[.!?](\s+|$)|\n+`)
	bulletPrefix  = regexp.MustCompile(`^\s*([-*•]|\d+[.)])\s*`)

	constraintRule    = regexp.MustCompile(`(?i)budget|deadline|not exceed|no later than|within \d|limited to|must use|must run on|complian|comply|regulat|licen[cs]|\bcost`)
	nonFunctionalRule = regexp.MustCompile(`(?i)performan|availab|uptime|latency|response time|scalab|\bscale\b|secur|reliab|usab|accessib|maintainab|encrypt|99[.,]\d|concurrent users|throughput`)

	budgetPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)budget[:\s]+([^.\n]+)`),
		regexp.MustCompile(`(\$\s?[\d,]+(?:\.\d+)?\s*[kKmM]?)`),
		regexp.MustCompile(`(?i)([\d,]+(?:\.\d+)?\s*[kKmM]?\s*(?:USD|EUR|GBP))\b`),
	}
	timelinePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)deadline[:\s]+([^.\n]+)`),
		regexp.MustCompile(`(?i)timeline[:\s]+([^.\n]+)`),
		regexp.MustCompile(`(?i)duration[:\s]+([^.\n]+)`),
		regexp.MustCompile(`(?i)(\d+\s*(?:weeks?|months?|days?))\b`),
	}
	scopePattern = regexp.MustCompile(`(?i)(?:scope|objective|goal)s?[:\s]+([^.\n]+)`)

	summaryRule   = regexp.MustCompile(`(?i)executive\s+summary|overview|introduction|background`)
	reqRule       = regexp.MustCompile(`(?i)requirement|specification|\bscope\b`)
	technicalRule = regexp.MustCompile(`(?i)technical|technology|architecture|platform|system`)
	timelineRule  = regexp.MustCompile(`(?i)timeline|schedule|deadline|duration`)
	budgetRule    = regexp.MustCompile(`(?i)budget|cost|price|financial`)
)

// NewAnalyzer creates a new heuristic analyzer.
func NewAnalyzer(cfg Config) (*Analyzer, error) {
	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	topics := cfg.Topics
	if len(topics) == 0 {
		topics = DefaultTopics()
	}

	compiled := make([]*compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			// Skip invalid patterns
			continue
		}
		compiled = append(compiled, &compiledPattern{Pattern: p, regex: re})
	}
	if len(compiled) == 0 {
		return nil, fmt.Errorf("no valid requirement patterns")
	}

	compiledTopics := make([]*compiledTopic, 0, len(topics))
	for _, t := range topics {
		re, err := regexp.Compile(t.Regex)
		if err != nil {
			return nil, fmt.Errorf("topic %s: %w", t.Name, err)
		}
		compiledTopics = append(compiledTopics, &compiledTopic{Topic: t, regex: re})
	}

	minWeight := cfg.MinWeight
	if minWeight == 0 {
		minWeight = 0.5
	}

	return &Analyzer{
		patterns:  compiled,
		topics:    compiledTopics,
		minWeight: minWeight,
		tags:      NewTagExtractor(cfg.TagRules),
	}, nil
}

// Analyze extracts requirements, constraints and missing topics from text.
// answered maps topic names to clarification answers.
func (a *Analyzer) Analyze(text string, answered map[string]string) Result {
	full := withAnswers(text, answered)

	res := Result{
		Requirements: a.requirements(full),
		Budget:       collect(full, budgetPatterns),
		Timeline:     collect(full, timelinePatterns),
		Scope:        scope(full),
		Structure:    structure(text),
	}
	res.Technologies = a.tags.ExtractTags(full)
	res.Domain = ExtractDomain(res.Technologies)

	for _, t := range a.topics {
		if _, ok := answered[t.Name]; ok {
			continue
		}
		if t.regex.MatchString(full) {
			continue
		}
		res.Missing = append(res.Missing, Missing{
			Topic:    t.Name,
			Question: t.Question,
			Priority: t.Priority,
		})
	}
	return res
}

// withAnswers appends clarification answers as labelled sentences, in topic order.
func withAnswers(text string, answered map[string]string) string {
	if len(answered) == 0 {
		return text
	}
	topics := make([]string, 0, len(answered))
	for t := range answered {
		topics = append(topics, t)
	}
	sort.Strings(topics)

	var b strings.Builder
	b.WriteString(text)
	for _, t := range topics {
		answer := strings.TrimSpace(answered[t])
		if answer == "" {
			continue
		}
		label := capitalizeFirst(strings.ReplaceAll(t, "_", " "))
		fmt.Fprintf(&b, "\n%s: %s", label, strings.TrimRight(answer, "."))
	}
	return b.String()
}

func (a *Analyzer) requirements(text string) []Requirement {
	var out []Requirement
	seen := make(map[string]bool)
	for _, s := range splitSentences(text) {
		match := a.findBestMatch(s)
		if match == nil || match.Weight < a.minWeight {
			continue
		}
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Requirement{
			ID:       fmt.Sprintf("REQ-%03d", len(out)+1),
			Text:     s,
			Category: classify(s),
			Pattern:  match.Name,
			Weight:   match.Weight,
		})
	}
	return out
}

// findBestMatch finds the pattern with highest weight that matches the content.
func (a *Analyzer) findBestMatch(content string) *compiledPattern {
	var best *compiledPattern
	var bestWeight float64

	for _, p := range a.patterns {
		if p.regex.MatchString(content) && p.Weight > bestWeight {
			best = p
			bestWeight = p.Weight
		}
	}
	return best
}

func splitSentences(text string) []string {
	parts := sentenceSplit.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(bulletPrefix.ReplaceAllString(p, ""))
		if len(p) < 8 {
			continue
		}
		out = append(out, p)
	}
	return out
}

func classify(sentence string) Category {
	switch {
	case constraintRule.MatchString(sentence):
		return CategoryConstraint
	case nonFunctionalRule.MatchString(sentence):
		return CategoryNonFunctional
	default:
		return CategoryFunctional
	}
}

func collect(text string, patterns []*regexp.Regexp) []string {
	var out []string
	seen := make(map[string]bool)
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			v := strings.TrimSpace(m[1])
			if v == "" || seen[strings.ToLower(v)] {
				continue
			}
			seen[strings.ToLower(v)] = true
			out = append(out, v)
		}
	}
	return out
}

func scope(text string) string {
	var parts []string
	for _, m := range scopePattern.FindAllStringSubmatch(text, -1) {
		if v := strings.TrimSpace(m[1]); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "; ")
}

func structure(text string) Structure {
	s := Structure{
		HasSummary:      summaryRule.MatchString(text),
		HasRequirements: reqRule.MatchString(text),
		HasTechnical:    technicalRule.MatchString(text),
		HasTimeline:     timelineRule.MatchString(text),
		HasBudget:       budgetRule.MatchString(text),
	}
	if s.HasSummary {
		s.Score += 20
	}
	if s.HasRequirements {
		s.Score += 25
	}
	if s.HasTechnical {
		s.Score += 25
	}
	if s.HasTimeline {
		s.Score += 15
	}
	if s.HasBudget {
		s.Score += 15
	}
	return s
}

// capitalizeFirst capitalizes the first letter of a string.
func capitalizeFirst(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
