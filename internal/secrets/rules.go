package secrets

import "regexp"

// Rule is a prose credential pattern. When the pattern has a capture
// group only the group is redacted, keeping the label readable.
type Rule struct {
	ID      string
	Pattern *regexp.Regexp
}

// ProseRules catch credentials written out in documents, which the
// gitleaks rule set tunes away as low entropy.
func ProseRules() []Rule {
	return []Rule{
		{ID: "prose-password", Pattern: regexp.MustCompile(`(?i)\b(?:password|passwd|pwd|passphrase)\s*(?:is|[:=])\s*['"]?([^\s'"]{6,})`)},
		{ID: "prose-api-key", Pattern: regexp.MustCompile(`(?i)\b(?:api[_ -]?key|access[_ -]?token|secret[_ -]?key|client[_ -]?secret)\s*(?:is|[:=])\s*['"]?([A-Za-z0-9_\-./+=]{12,})`)},
		{ID: "connection-string", Pattern: regexp.MustCompile(`(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqps?|sqlserver)://[^\s:/@]+:([^\s@]+)@`)},
		{ID: "bearer-token", Pattern: regexp.MustCompile(`(?i)\bbearer\s+([A-Za-z0-9_\-.=]{20,})`)},
		{ID: "private-key", Pattern: regexp.MustCompile(`-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----[\s\S]*?-----END (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`)},
	}
}
