package extraction

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultTagRules maps technology tags to keywords that indicate them.
var DefaultTagRules = map[string][]string{
	// Languages
	"golang":     {"golang", "go language"},
	"python":     {"python", "django", "flask", "fastapi"},
	"typescript": {"typescript", "node.js", "nodejs"},
	"java":       {"java", "spring boot", "kotlin"},
	"dotnet":     {"c#", "asp.net", "dotnet"},

	// Infrastructure
	"kubernetes": {"kubernetes", "k8s", "helm", "openshift"},
	"docker":     {"docker", "container", "containers", "containerised", "containerized"},
	"aws":        {"aws", "amazon web services", "s3", "ec2", "lambda"},
	"azure":      {"azure"},
	"gcp":        {"gcp", "google cloud", "bigquery", "gke"},
	"on_premise": {"on-premise", "on-prem", "on premise", "data centre", "data center"},

	// Architecture
	"api":           {"api", "apis", "restful", "grpc", "graphql", "endpoint"},
	"database":      {"database", "sql", "postgres", "postgresql", "mysql", "mongodb", "oracle"},
	"frontend":      {"frontend", "web portal", "user interface", "react", "angular", "vue"},
	"mobile":        {"mobile", "ios", "android", "app store"},
	"microservices": {"microservice", "microservices", "service mesh"},
	"data":          {"data warehouse", "analytics", "etl", "reporting", "dashboard", "dashboards"},
	"ml":            {"machine learning", "ml", "ai", "model training", "llm"},
	"erp":           {"erp", "sap", "crm", "salesforce"},
	"messaging":     {"kafka", "rabbitmq", "nats", "message queue", "event-driven"},

	// Qualities
	"security":    {"security", "authentication", "sso", "encryption", "gdpr", "hipaa"},
	"performance": {"performance", "latency", "throughput", "concurrent users"},
}

// DefaultTagExtractor implements keyword matching on word boundaries.
type DefaultTagExtractor struct {
	rules map[string][]*regexp.Regexp
}

// NewTagExtractor creates a new tag extractor with the given rules.
func NewTagExtractor(rules map[string][]string) *DefaultTagExtractor {
	if len(rules) == 0 {
		rules = DefaultTagRules
	}
	compiled := make(map[string][]*regexp.Regexp, len(rules))
	for tag, keywords := range rules {
		for _, kw := range keywords {
			re, err := regexp.Compile(`(?i)(^|[^\w])` + regexp.QuoteMeta(strings.ToLower(kw)) + `($|[^\w])`)
			if err != nil {
				continue
			}
			compiled[tag] = append(compiled[tag], re)
		}
	}
	return &DefaultTagExtractor{rules: compiled}
}

// ExtractTags returns the sorted tags whose keywords appear in content.
func (t *DefaultTagExtractor) ExtractTags(content string) []string {
	result := make([]string, 0)
	for tag, patterns := range t.rules {
		for _, re := range patterns {
			if re.MatchString(content) {
				result = append(result, tag)
				break // Found one match, move to next tag
			}
		}
	}
	sort.Strings(result)
	return result
}

// ExtractDomain tries to determine the dominant solution domain from tags.
func ExtractDomain(tags []string) string {
	// Priority order for domain detection
	domains := []string{
		"ml", "data", "erp", "mobile", "microservices",
		"frontend", "api", "database",
		"kubernetes", "aws", "azure", "gcp", "on_premise",
	}

	tagSet := make(map[string]bool)
	for _, t := range tags {
		tagSet[t] = true
	}

	for _, domain := range domains {
		if tagSet[domain] {
			return domain
		}
	}

	// Default to first tag if any
	if len(tags) > 0 {
		return tags[0]
	}

	return ""
}
