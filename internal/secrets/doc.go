// Package secrets redacts credentials from operator supplied text.
//
// Tender documents and clarification answers are pasted by people, and
// sometimes carry API keys or connection strings. A Redactor runs the
// gitleaks rule set over the text, then a small set of prose rules for
// credentials written as "password: ..." lines, and replaces every match
// with a [REDACTED:rule-id] marker. Findings never hold the secret value.
//
// An optional TOML allowlist, in the gitleaks format, exempts known
// placeholders:
//
//	[allowlist]
//	regexes = ['''example-key-[0-9]+''']
package secrets
