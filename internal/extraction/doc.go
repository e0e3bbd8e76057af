// Package extraction finds requirements and missing information in tender
// documents using pattern matching.
//
// # Architecture
//
// The main components are:
//   - Analyzer: weighted requirement patterns, constraint extraction and
//     missing-topic detection
//   - Pattern: a configurable regex with a weight and a category
//   - Topic: a subject every complete tender covers (budget, timeline, ...)
//   - TagExtractor: technology and domain tags
//
// # Usage
//
//	analyzer, err := extraction.NewAnalyzer(extraction.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	result := analyzer.Analyze(text, map[string]string{"budget": "about 80k EUR"})
//	for _, m := range result.Missing {
//	    fmt.Printf("%s (%s): %s\n", m.Topic, m.Priority, m.Question)
//	}
//
// Topics present in the answered map are never reported missing; their
// answers are appended to the text before extraction so that constraints
// supplied through clarification are picked up like any other sentence.
//
// # Scoring
//
// Every Requirement carries the weight of the pattern that matched it. A
// sentence matching several patterns keeps the heaviest one. Requirements
// below Config.MinWeight are dropped.
//
// The document structure score follows a fixed rubric: summary 20,
// requirements 25, technical content 25, timeline 15, budget 15.
package extraction
