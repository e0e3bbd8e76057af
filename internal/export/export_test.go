package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
)

func completedStatus(id string) orchestrator.Status {
	return orchestrator.Status{
		Session: orchestrator.Session{
			ID:      id,
			OwnerID: "bids",
			State:   orchestrator.StateCompleted,
			Result:  &orchestrator.TerminalResult{Outcome: orchestrator.OutcomeCompleted, ArtifactID: "a3"},
		},
		Artifacts: []orchestrator.Artifact{
			{ID: "a1", Kind: orchestrator.ArtifactDiagram, Name: "system-architecture.mmd", Content: "graph TD"},
			{ID: "a2", Kind: orchestrator.ArtifactProjectPlan, Name: "project-plan.md", Content: "# Project Plan"},
			{ID: "a3", Kind: orchestrator.ArtifactProposalDocument, Name: "draft.md", Content: "# Technical Proposal"},
		},
	}
}

func TestGitExporter_InitAndCommit(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "proposals")
	g, err := NewGitExporter(Config{RepoPath: dir, AuthorName: "Bid Desk", AuthorEmail: "bids@example.com"}, nil)
	require.NoError(t, err)
	g.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }

	hash, err := g.Export(context.Background(), completedStatus("s1"))
	require.NoError(t, err)
	require.False(t, hash.IsZero())

	data, err := os.ReadFile(filepath.Join(dir, "s1", "proposal.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Technical Proposal", string(data))
	assert.FileExists(t, filepath.Join(dir, "s1", "project-plan.md"))
	assert.FileExists(t, filepath.Join(dir, "s1", "system-architecture.mmd"))

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	commit, err := repo.CommitObject(hash)
	require.NoError(t, err)
	assert.Equal(t, "Bid Desk", commit.Author.Name)
	assert.Contains(t, commit.Message, "Add proposal for session s1")
	assert.Contains(t, commit.Message, "Owner: bids")

	// re-exporting unchanged content commits nothing
	again, err := g.Export(context.Background(), completedStatus("s1"))
	require.NoError(t, err)
	assert.True(t, again.IsZero())
}

func TestGitExporter_ReopensExistingRepo(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	g, err := NewGitExporter(Config{RepoPath: dir}, nil)
	require.NoError(t, err)
	require.NoError(t, g.Finalize(context.Background(), completedStatus("s2")))

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	commit, err := repo.CommitObject(head.Hash())
	require.NoError(t, err)
	assert.Equal(t, defaultAuthorName, commit.Author.Name)
}

func TestGitExporter_SkipsFailedSessions(t *testing.T) {
	dir := t.TempDir()
	g, err := NewGitExporter(Config{RepoPath: dir}, nil)
	require.NoError(t, err)

	st := completedStatus("s3")
	st.Session.Result = &orchestrator.TerminalResult{Outcome: orchestrator.OutcomeFailed, Reason: "boom"}
	require.NoError(t, g.Finalize(context.Background(), st))
	assert.NoDirExists(t, filepath.Join(dir, "s3"))
}

func TestNewGitExporter_RequiresPath(t *testing.T) {
	_, err := NewGitExporter(Config{}, nil)
	assert.Error(t, err)
}
