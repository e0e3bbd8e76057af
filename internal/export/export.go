// Package export commits finished proposals to a git repository.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/proposald/internal/logging"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
)

const (
	defaultAuthorName  = "proposald"
	defaultAuthorEmail = "proposald@localhost"
)

// Config configures a GitExporter.
type Config struct {
	RepoPath    string
	AuthorName  string
	AuthorEmail string
}

// GitExporter writes the artifacts of completed sessions to
// <repo>/<session_id>/ and commits them. It implements
// orchestrator.Finalizer.
type GitExporter struct {
	cfg    Config
	logger *logging.Logger
	now    func() time.Time

	mu   sync.Mutex
	repo *git.Repository
}

// NewGitExporter opens the repository at cfg.RepoPath, initializing it when
// the directory holds none.
func NewGitExporter(cfg Config, logger *logging.Logger) (*GitExporter, error) {
	if cfg.RepoPath == "" {
		return nil, errors.New("export repo path is required")
	}
	if cfg.AuthorName == "" {
		cfg.AuthorName = defaultAuthorName
	}
	if cfg.AuthorEmail == "" {
		cfg.AuthorEmail = defaultAuthorEmail
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	repo, err := git.PlainOpen(cfg.RepoPath)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.MkdirAll(cfg.RepoPath, 0o755); err != nil {
			return nil, fmt.Errorf("create export repo dir: %w", err)
		}
		repo, err = git.PlainInit(cfg.RepoPath, false)
	}
	if err != nil {
		return nil, fmt.Errorf("open export repo %s: %w", cfg.RepoPath, err)
	}
	return &GitExporter{cfg: cfg, logger: logger.Named("export"), now: time.Now, repo: repo}, nil
}

// Finalize implements orchestrator.Finalizer. Failed sessions are skipped.
func (g *GitExporter) Finalize(ctx context.Context, st orchestrator.Status) error {
	res := st.Session.Result
	if res == nil || res.Outcome != orchestrator.OutcomeCompleted {
		return nil
	}
	hash, err := g.Export(ctx, st)
	if err != nil {
		return err
	}
	if !hash.IsZero() {
		g.logger.Info(ctx, "proposal exported",
			zap.String("commit", hash.String()),
			zap.String("repo", g.cfg.RepoPath),
		)
	}
	return nil
}

// Export writes every artifact of the session, with the proposal document
// as proposal.md, and commits the result. A zero hash means nothing changed.
func (g *GitExporter) Export(ctx context.Context, st orchestrator.Status) (plumbing.Hash, error) {
	files := exportFiles(st)
	if len(files) == 0 {
		return plumbing.ZeroHash, errors.New("session has no artifacts to export")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	wt, err := g.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}
	dir := filepath.Join(g.cfg.RepoPath, st.Session.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("create session dir: %w", err)
	}
	for name, content := range files {
		if err := ctx.Err(); err != nil {
			return plumbing.ZeroHash, err
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return plumbing.ZeroHash, fmt.Errorf("write %s: %w", name, err)
		}
		if _, err := wt.Add(path.Join(st.Session.ID, name)); err != nil {
			return plumbing.ZeroHash, fmt.Errorf("stage %s: %w", name, err)
		}
	}

	status, err := wt.Status()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("worktree status: %w", err)
	}
	if status.IsClean() {
		return plumbing.ZeroHash, nil
	}

	msg := fmt.Sprintf("Add proposal for session %s", st.Session.ID)
	if st.Session.OwnerID != "" {
		msg += "\n\nOwner: " + st.Session.OwnerID
	}
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: g.cfg.AuthorName, Email: g.cfg.AuthorEmail, When: g.now()},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit: %w", err)
	}
	return hash, nil
}

// exportFiles maps file names to contents. Only the latest artifact of a
// name is kept.
func exportFiles(st orchestrator.Status) map[string]string {
	files := make(map[string]string)
	for _, a := range st.Artifacts {
		name := filepath.Base(a.Name)
		if a.Kind == orchestrator.ArtifactProposalDocument {
			name = "proposal.md"
		}
		if name == "" || name == "." || name == string(filepath.Separator) {
			continue
		}
		files[name] = a.Content
	}
	return files
}
