package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/proposald/internal/db"
	"github.com/fyrsmithlabs/proposald/internal/knowledge"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
	"github.com/fyrsmithlabs/proposald/internal/workers"
)

func newArchive(t *testing.T) *Archive {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	a, err := NewArchive(context.Background(), conn)
	require.NoError(t, err)
	return a
}

func terminal(id, owner string, outcome orchestrator.Outcome, finished time.Time) orchestrator.Status {
	return orchestrator.Status{
		Session: orchestrator.Session{
			ID:        id,
			OwnerID:   owner,
			State:     orchestrator.StateCompleted,
			CreatedAt: finished.Add(-time.Minute),
			Result:    &orchestrator.TerminalResult{Outcome: outcome, ArtifactID: id + "-doc", FinishedAt: finished},
		},
		Artifacts: []orchestrator.Artifact{
			{ID: id + "-doc", Kind: orchestrator.ArtifactProposalDocument, Name: "proposal.md", SessionID: id, Content: "# Technical Proposal", ProducedBy: "writing", CreatedAt: finished},
		},
	}
}

func TestArchive_SaveAndGet(t *testing.T) {
	a := newArchive(t)
	ctx := context.Background()
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, a.Save(ctx, terminal("s1", "bids", orchestrator.OutcomeCompleted, at)))
	// saving again is an upsert
	require.NoError(t, a.Finalize(ctx, terminal("s1", "bids", orchestrator.OutcomeCompleted, at)))

	st, err := a.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "bids", st.Session.OwnerID)
	require.NotNil(t, st.Session.Result)
	assert.Equal(t, orchestrator.OutcomeCompleted, st.Session.Result.Outcome)

	art, err := a.Artifact(ctx, "s1", "s1-doc")
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ArtifactProposalDocument, art.Kind)
	assert.Equal(t, "# Technical Proposal", art.Content)
	assert.True(t, at.Equal(art.CreatedAt))

	_, err = a.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = a.Artifact(ctx, "s1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchive_RejectsNonTerminal(t *testing.T) {
	a := newArchive(t)
	err := a.Save(context.Background(), orchestrator.Status{Session: orchestrator.Session{ID: "s1"}})
	assert.Error(t, err)
}

func TestArchive_List(t *testing.T) {
	a := newArchive(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, a.Save(ctx, terminal("s1", "bids", orchestrator.OutcomeCompleted, base)))
	require.NoError(t, a.Save(ctx, terminal("s2", "bids", orchestrator.OutcomeFailed, base.Add(time.Hour))))
	require.NoError(t, a.Save(ctx, terminal("s3", "sales", orchestrator.OutcomeCompleted, base.Add(2*time.Hour))))

	all, err := a.List(ctx, Filter{})
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, s := range all {
		ids = append(ids, s.SessionID)
	}
	assert.Equal(t, []string{"s3", "s2", "s1"}, ids)

	bids, err := a.List(ctx, Filter{OwnerID: "bids", Outcome: orchestrator.OutcomeCompleted})
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, "s1", bids[0].SessionID)

	limited, err := a.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "s3", limited[0].SessionID)

	none, err := a.List(ctx, Filter{OwnerID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestArchive_AsFinalizer(t *testing.T) {
	a := newArchive(t)
	o := orchestrator.New(knowledge.NewStore(knowledge.NewMemoryRepository()), orchestrator.DefaultConfig(),
		orchestrator.WithFinalizer(a),
	)
	require.NoError(t, workers.Register(o, workers.Options{}))
	ctx := context.Background()

	sess, err := o.Start(ctx, orchestrator.StartInput{OwnerID: "bids", Content: "We need a portal."})
	require.NoError(t, err)
	_, err = o.Cancel(ctx, sess.ID)
	require.NoError(t, err)
	require.NoError(t, o.Close(ctx))

	st, err := a.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, st.Session.Result)
	assert.Equal(t, orchestrator.OutcomeFailed, st.Session.Result.Outcome)
}
