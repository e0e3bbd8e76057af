package ingest

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFile lists glob patterns, one per line, of inbox files that never
// start a session. Lines starting with # are comments.
const IgnoreFile = ".inboxignore"

// defaultIgnore covers hidden files, editor backups and partial downloads.
var defaultIgnore = []string{".*", "*~", "*.swp", "*.tmp", "*.part", "*.crdownload"}

// ignoreList matches inbox file names against base-name glob patterns.
type ignoreList struct {
	patterns []string
}

// loadIgnore reads IgnoreFile from dir. The defaults always apply; a
// missing file is not an error.
func loadIgnore(dir string) (*ignoreList, error) {
	patterns := append([]string(nil), defaultIgnore...)

	file, err := os.Open(filepath.Join(dir, IgnoreFile))
	if errors.Is(err, fs.ErrNotExist) {
		return &ignoreList{patterns: patterns}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if p := parseIgnoreLine(scanner.Text()); p != "" {
			patterns = append(patterns, p)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return &ignoreList{patterns: dedupe(patterns)}, nil
}

// parseIgnoreLine returns the pattern on line, or "" for blanks and
// comments. The inbox is flat, so leading and trailing slashes are dropped.
func parseIgnoreLine(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	line = strings.Trim(line, "/")
	if _, err := filepath.Match(line, ""); err != nil {
		return ""
	}
	return line
}

// Match reports whether path's base name matches any pattern.
func (l *ignoreList) Match(path string) bool {
	if l == nil {
		return false
	}
	name := filepath.Base(path)
	for _, p := range l.patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

func dedupe(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	out := patterns[:0]
	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
