package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Forever is the Duration written as "forever". It is only meaningful for
// orchestrator.session_retention, where it keeps finished sessions in memory
// until shutdown.
const Forever Duration = -1

const foreverText = "forever"

// Duration is a time.Duration read from YAML or the environment. Besides Go
// duration strings it accepts a bare integer as seconds, so
// PROPOSALD_ORCHESTRATOR_WORKER_TIMEOUT=90 and worker_timeout: 90s agree.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.ToLower(strings.TrimSpace(string(text)))
	if raw == foreverText {
		*d = Forever
		return nil
	}

	parsed, err := parseDuration(raw)
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", raw)
	}
	*d = Duration(parsed)
	return nil
}

func parseDuration(raw string) (time.Duration, error) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func (d Duration) String() string {
	if d == Forever {
		return foreverText
	}
	return d.Duration().String()
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Duration returns the value as a time.Duration. Forever comes back as a
// negative duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret holds the model provider credential. Every rendering of it, be it
// fmt, JSON, YAML or a dumped config, shows a placeholder; Value is the
// only way to the credential itself.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) masked() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) String() string { return s.masked() }

func (s Secret) GoString() string { return "Secret(" + redacted + ")" }

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.masked()) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(s.masked()), nil }

// UnmarshalText takes the raw credential. Surrounding whitespace, which
// usually comes from a key pasted into an env file, is dropped.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(strings.TrimSpace(string(text)))
	return nil
}

func (s Secret) Value() string { return string(s) }

func (s Secret) IsSet() bool { return s != "" }
