package knowledge

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/proposald/internal/db"
)

func repositories(t *testing.T) map[string]Repository {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "knowledge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	sqliteRepo, err := NewSQLiteRepository(context.Background(), conn)
	require.NoError(t, err)

	return map[string]Repository{
		"memory": NewMemoryRepository(),
		"sqlite": sqliteRepo,
	}
}

func rec(ns, key, value, by string) Record {
	raw, _ := json.Marshal(value)
	return Record{
		SessionID: ns,
		Key:       key,
		Value:     raw,
		WrittenBy: by,
		WrittenAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRepository_Contract(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := repo.Latest(ctx, "s1", "analysis.summary")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = repo.History(ctx, "s1", "analysis.summary")
			assert.ErrorIs(t, err, ErrNotFound)

			first, err := repo.Append(ctx, rec("s1", "analysis.summary", "v1", "analysis"))
			require.NoError(t, err)
			assert.Equal(t, 1, first.Version)

			second, err := repo.Append(ctx, rec("s1", "analysis.summary", "v2", "analysis"))
			require.NoError(t, err)
			assert.Equal(t, 2, second.Version)

			_, err = repo.Append(ctx, rec("s1", "analysis.requirements", "reqs", "analysis"))
			require.NoError(t, err)
			_, err = repo.Append(ctx, rec("s2", "analysis.summary", "other session", "analysis"))
			require.NoError(t, err)

			latest, err := repo.Latest(ctx, "s1", "analysis.summary")
			require.NoError(t, err)
			assert.Equal(t, "v2", latest.Text())
			assert.Equal(t, 2, latest.Version)

			history, err := repo.History(ctx, "s1", "analysis.summary")
			require.NoError(t, err)
			got := make([]Ref, len(history))
			for i, h := range history {
				got[i] = h.Ref()
			}
			want := []Ref{{Key: "analysis.summary", Version: 1}, {Key: "analysis.summary", Version: 2}}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("history mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, "v1", history[0].Text(), "older versions are never rewritten")

			list, err := repo.List(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "analysis.requirements", list[0].Key)
			assert.Equal(t, "analysis.summary", list[1].Key)
			assert.Equal(t, 2, list[1].Version)

			empty, err := repo.List(ctx, "nobody")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestRepository_ConcurrentAppendsGetDistinctVersions(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const writers = 20

			var wg sync.WaitGroup
			versions := make(chan int, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					r, err := repo.Append(ctx, rec("s1", "planning.timeline", "t", "planning"))
					if assert.NoError(t, err) {
						versions <- r.Version
					}
				}()
			}
			wg.Wait()
			close(versions)

			seen := map[int]bool{}
			for v := range versions {
				assert.False(t, seen[v], "version %d assigned twice", v)
				seen[v] = true
			}
			assert.Len(t, seen, writers)
		})
	}
}

func TestMatchKey(t *testing.T) {
	assert.True(t, MatchKey("clarification.*", "clarification.budget"))
	assert.False(t, MatchKey("clarification.*", "clarification"))
	assert.False(t, MatchKey("clarification.*", "analysis.summary"))
	assert.True(t, MatchKey("analysis.summary", "analysis.summary"))
	assert.False(t, MatchKey("analysis.summary", "analysis.summary2"))
}
