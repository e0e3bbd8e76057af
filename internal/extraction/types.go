package extraction

// Category classifies a requirement.
type Category string

const (
	CategoryFunctional    Category = "functional"
	CategoryNonFunctional Category = "non_functional"
	CategoryConstraint    Category = "constraint"
)

// Priority ranks missing information.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Pattern represents a requirement detection pattern.
type Pattern struct {
	Name   string  `json:"name"`
	Regex  string  `json:"regex"`
	Weight float64 `json:"weight"`
}

// Topic is a subject a complete tender is expected to cover.
type Topic struct {
	Name     string   `json:"name"`
	Regex    string   `json:"regex"`
	Question string   `json:"question"`
	Priority Priority `json:"priority"`
}

// Requirement is one sentence recognised as a requirement.
type Requirement struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Category Category `json:"category"`
	Pattern  string   `json:"pattern"`
	Weight   float64  `json:"weight"`
}

// Missing is a topic the document does not cover.
type Missing struct {
	Topic    string   `json:"topic"`
	Question string   `json:"question"`
	Priority Priority `json:"priority"`
}

// Structure summarises which standard tender sections are present.
type Structure struct {
	HasSummary      bool `json:"has_summary"`
	HasRequirements bool `json:"has_requirements"`
	HasTechnical    bool `json:"has_technical"`
	HasTimeline     bool `json:"has_timeline"`
	HasBudget       bool `json:"has_budget"`
	Score           int  `json:"score"`
}

// Result is the outcome of analysing one document.
type Result struct {
	Requirements []Requirement `json:"requirements"`
	Budget       []string      `json:"budget,omitempty"`
	Timeline     []string      `json:"timeline,omitempty"`
	Scope        string        `json:"scope,omitempty"`
	Technologies []string      `json:"technologies,omitempty"`
	Domain       string        `json:"domain,omitempty"`
	Missing      []Missing     `json:"missing,omitempty"`
	Structure    Structure     `json:"structure"`
}

// ByCategory returns the requirements of category c in document order.
func (r Result) ByCategory(c Category) []Requirement {
	var out []Requirement
	for _, req := range r.Requirements {
		if req.Category == c {
			out = append(out, req)
		}
	}
	return out
}

// Config holds analyzer configuration.
type Config struct {
	Patterns  []Pattern `json:"patterns,omitempty"`
	Topics    []Topic   `json:"topics,omitempty"`
	MinWeight float64   `json:"min_weight"`
	TagRules  map[string][]string
}

// DefaultConfig returns the default analyzer configuration.
func DefaultConfig() Config {
	return Config{
		Patterns:  DefaultPatterns(),
		Topics:    DefaultTopics(),
		MinWeight: 0.5,
	}
}

// DefaultPatterns returns the default requirement detection patterns.
func DefaultPatterns() []Pattern {
	return []Pattern{
		// Normative language
		{Name: "shall", Regex: `(?i)\bshall\b`, Weight: 1.0},
		{Name: "must", Regex: `(?i)\bmust\b`, Weight: 1.0},
		{Name: "required", Regex: `(?i)\b(is|are) required\b|\brequire[sd]?\b`, Weight: 0.9},
		{Name: "need_to", Regex: `(?i)\bneeds? to\b`, Weight: 0.8},
		{Name: "should", Regex: `(?i)\bshould\b`, Weight: 0.7},

		// Softer phrasing
		{Name: "expected", Regex: `(?i)\b(is|are) expected to\b`, Weight: 0.6},
		{Name: "would_like", Regex: `(?i)\bwe would like\b|\bwe want\b`, Weight: 0.5},
		{Name: "nice_to_have", Regex: `(?i)\bnice to have\b|\bideally\b`, Weight: 0.3},
	}
}

// DefaultTopics returns the topics checked for missing information.
func DefaultTopics() []Topic {
	return []Topic{
		{Name: "budget", Regex: `(?i)budget|cost|price|financial|\$\s?\d|\d\s*(usd|eur|gbp)\b`,
			Question: "What is the budget or cost ceiling for this project?", Priority: PriorityHigh},
		{Name: "timeline", Regex: `(?i)deadline|timeline|duration|schedule|\d+\s*(weeks?|months?)\b`,
			Question: "What is the expected timeline or delivery deadline?", Priority: PriorityHigh},
		{Name: "scope", Regex: `(?i)\bscope\b|objective|\bgoals?\b|deliverables?`,
			Question: "What is in scope for this engagement and what are the main deliverables?", Priority: PriorityHigh},
		{Name: "integration", Regex: `(?i)integrat|\bapis?\b|interface|connect`,
			Question: "Which existing systems must the solution integrate with?", Priority: PriorityMedium},
		{Name: "security", Regex: `(?i)security|authenticat|authoriz|encrypt|compliance|gdpr|hipaa`,
			Question: "What security and compliance requirements apply?", Priority: PriorityMedium},
		{Name: "success_criteria", Regex: `(?i)success|criteria|metrics?\b|\bkpis?\b`,
			Question: "How will the success of the project be measured?", Priority: PriorityLow},
		{Name: "stakeholders", Regex: `(?i)stakeholder|contact person|sponsor|product owner`,
			Question: "Who are the stakeholders and the decision makers?", Priority: PriorityLow},
	}
}
