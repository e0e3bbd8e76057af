package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"
)

// GlobalNamespace is the namespace for organisation-wide knowledge.
const GlobalNamespace = "global"

var (
	// ErrNotFound is returned when no record exists for a namespace/key.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidKey is returned for empty or malformed record keys.
	ErrInvalidKey = errors.New("invalid record key")

	// ErrInvalidNamespace is returned for empty or malformed namespaces.
	ErrInvalidNamespace = errors.New("invalid namespace")
)

var (
	keyPattern       = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_-]+)*$`)
	namespacePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)
)

// Record is one version of a keyed value inside a namespace.
type Record struct {
	SessionID string          `json:"session_id"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Version   int             `json:"version"`
	WrittenBy string          `json:"written_by"`
	WrittenAt time.Time       `json:"written_at"`
}

// Decode unmarshals the record value into v.
func (r Record) Decode(v any) error {
	return json.Unmarshal(r.Value, v)
}

// Text renders the value for display and matching. JSON strings are unquoted.
func (r Record) Text() string {
	var s string
	if err := json.Unmarshal(r.Value, &s); err == nil {
		return s
	}
	return string(r.Value)
}

// Ref identifies a specific record version.
type Ref struct {
	Key     string `json:"key"`
	Version int    `json:"version"`
}

// Ref returns the key/version pair of r.
func (r Record) Ref() Ref {
	return Ref{Key: r.Key, Version: r.Version}
}

// Repository persists record versions. Implementations must assign versions
// atomically so concurrent appends to one key never share a version.
type Repository interface {
	// Append stores rec with version = current version + 1 and returns it.
	Append(ctx context.Context, rec Record) (Record, error)

	// Latest returns the current version of a key or ErrNotFound.
	Latest(ctx context.Context, namespace, key string) (Record, error)

	// History returns every version of a key, oldest first.
	History(ctx context.Context, namespace, key string) ([]Record, error)

	// List returns the current version of every key in a namespace, sorted by key.
	List(ctx context.Context, namespace string) ([]Record, error)

	Close() error
}

// ValidateKey checks a record key such as "analysis.requirements".
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return ErrInvalidKey
	}
	return nil
}

// ValidateNamespace checks a session id or the global namespace.
func ValidateNamespace(ns string) error {
	if !namespacePattern.MatchString(ns) {
		return ErrInvalidNamespace
	}
	return nil
}

// MatchKey reports whether key matches pattern. A pattern ending in ".*"
// matches every key under that prefix.
func MatchKey(pattern, key string) bool {
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(key, prefix+".")
	}
	return pattern == key
}
