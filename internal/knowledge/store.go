package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/proposald/internal/logging"
)

const defaultSearchLimit = 10

// Store is the knowledge store adapter used by the orchestrator and workers.
type Store struct {
	repo   Repository
	index  *GlobalIndex
	now    func() time.Time
	logger *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithGlobalIndex enables similarity search over the global namespace.
func WithGlobalIndex(idx *GlobalIndex) Option {
	return func(s *Store) { s.index = idx }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a Store over repo.
func NewStore(repo Repository, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		now:    time.Now,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save appends a new version of key in namespace and returns its version.
// value is JSON encoded; json.RawMessage values are stored as-is.
func (s *Store) Save(ctx context.Context, namespace, key string, value any, writtenBy string) (int, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return 0, err
	}
	if err := ValidateKey(key); err != nil {
		return 0, fmt.Errorf("%w: %q", err, key)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return 0, fmt.Errorf("encode value for %s: %w", key, err)
	}

	rec, err := s.repo.Append(ctx, Record{
		SessionID: namespace,
		Key:       key,
		Value:     raw,
		WrittenBy: writtenBy,
		WrittenAt: s.now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("save %s/%s: %w", namespace, key, err)
	}

	if namespace == GlobalNamespace && s.index != nil {
		// The record is durable already; a stale index only degrades ranking.
		if err := s.index.Upsert(ctx, key, rec.Text(), rec.Version); err != nil {
			s.logger.Warn(ctx, "global index update failed", zap.String("key", key), zap.Error(err))
		}
	}

	s.logger.Debug(ctx, "record saved",
		zap.String("namespace", namespace),
		zap.String("key", key),
		zap.Int("version", rec.Version),
		zap.String("written_by", writtenBy),
	)
	return rec.Version, nil
}

// Get returns the current version of key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, namespace, key string) (Record, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return Record{}, err
	}
	return s.repo.Latest(ctx, namespace, key)
}

// History returns every version of key, oldest first.
func (s *Store) History(ctx context.Context, namespace, key string) ([]Record, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, namespace, key)
}

// List returns the current version of every key in namespace.
func (s *Store) List(ctx context.Context, namespace string) ([]Record, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, namespace)
}

// Search finds records in namespace matching query. The global namespace is
// ranked by similarity when an index is configured; otherwise records whose
// key or text contains query (case-insensitive) are returned in key order.
func (s *Store) Search(ctx context.Context, namespace, query string, limit int) ([]Record, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	if namespace == GlobalNamespace && s.index != nil && query != "" {
		return s.searchIndex(ctx, query, limit)
	}

	all, err := s.repo.List(ctx, namespace)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	out := make([]Record, 0, limit)
	for _, rec := range all {
		if needle == "" ||
			strings.Contains(strings.ToLower(rec.Key), needle) ||
			strings.Contains(strings.ToLower(rec.Text()), needle) {
			out = append(out, rec)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) searchIndex(ctx context.Context, query string, limit int) ([]Record, error) {
	hits, err := s.index.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(hits))
	for _, h := range hits {
		rec, err := s.repo.Latest(ctx, GlobalNamespace, h.Key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Reindex rebuilds the global index from the repository.
func (s *Store) Reindex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	recs, err := s.repo.List(ctx, GlobalNamespace)
	if err != nil {
		return 0, err
	}
	for _, rec := range recs {
		if err := s.index.Upsert(ctx, rec.Key, rec.Text(), rec.Version); err != nil {
			return 0, err
		}
	}
	return len(recs), nil
}

// Close releases the repository.
func (s *Store) Close() error {
	return s.repo.Close()
}
