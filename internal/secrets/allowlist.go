package secrets

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Allowlist holds content patterns exempt from redaction.
type Allowlist struct {
	Regexes  []string
	compiled []*regexp.Regexp
}

// LoadAllowlist reads a gitleaks style allowlist file. A missing file or an
// empty path yields an empty allowlist.
func LoadAllowlist(path string) (*Allowlist, error) {
	if path == "" {
		return &Allowlist{}, nil
	}
	var file struct {
		Allowlist struct {
			Regexes []string `toml:"regexes"`
		} `toml:"allowlist"`
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Allowlist{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}
	return NewAllowlist(file.Allowlist.Regexes...)
}

// NewAllowlist compiles the given content patterns.
func NewAllowlist(patterns ...string) (*Allowlist, error) {
	a := &Allowlist{Regexes: patterns}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRegex, p, err)
		}
		a.compiled = append(a.compiled, re)
	}
	return a, nil
}

// Allowed reports whether match is exempt.
func (a *Allowlist) Allowed(match string) bool {
	if a == nil {
		return false
	}
	for _, re := range a.compiled {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}
