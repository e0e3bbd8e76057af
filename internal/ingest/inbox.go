package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/proposald/internal/logging"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
)

// InboxOwner is the owner id of sessions started from the inbox.
const InboxOwner = "inbox"

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize inbox watcher")

// SessionStarter is the slice of the orchestrator the inbox drives.
type SessionStarter interface {
	Start(ctx context.Context, in orchestrator.StartInput) (orchestrator.Session, error)
	RunUntilBlocked(ctx context.Context, sessionID string) (orchestrator.Session, error)
}

// Started describes a session created from an inbox file.
type Started struct {
	Path    string
	Session orchestrator.Session
	Err     error
}

// Inbox watches a directory and starts a session for every supported
// document that appears in it. Each path is ingested at most once.
type Inbox struct {
	dir     string
	starter SessionStarter
	logger  *logging.Logger
	watcher *fsnotify.Watcher
	ignore  *ignoreList
	results chan Started

	mu   sync.Mutex
	seen map[string]bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewInbox creates a watcher over dir. The directory is created if missing.
func NewInbox(dir string, starter SessionStarter, logger *logging.Logger) (*Inbox, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox dir: %w", err)
	}
	ignore, err := loadIgnore(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", IgnoreFile, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	return &Inbox{
		dir:     dir,
		starter: starter,
		logger:  logger.Named("inbox"),
		watcher: watcher,
		ignore:  ignore,
		results: make(chan Started, 16),
		seen:    make(map[string]bool),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start ingests the documents already present, then watches for new ones
// in a background goroutine. Call Stop to release the watcher.
func (b *Inbox) Start(ctx context.Context) error {
	if err := b.watcher.Add(b.dir); err != nil {
		return fmt.Errorf("watch %s: %w", b.dir, err)
	}

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		b.ingest(ctx, filepath.Join(b.dir, name))
	}

	go b.loop(ctx)
	b.logger.Info(ctx, "inbox watching", zap.String("dir", b.dir), zap.Int("existing", len(names)))
	return nil
}

// Results delivers one entry per ingested document.
func (b *Inbox) Results() <-chan Started {
	return b.results
}

// Stop halts the watcher and waits for the event loop to exit.
func (b *Inbox) Stop() {
	b.stopOnce.Do(func() {
		close(b.stop)
		_ = b.watcher.Close()
	})
	<-b.done
}

func (b *Inbox) loop(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-b.stop:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				b.ingest(ctx, ev.Name)
			}
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.logger.Warn(ctx, "inbox watcher error", zap.Error(err))
		}
	}
}

// ingest starts a session for path unless it was already handled or is
// ignored. Files that are still empty are left for a later write event.
func (b *Inbox) ingest(ctx context.Context, path string) {
	if b.ignore.Match(path) {
		b.logger.Debug(ctx, "ignoring inbox file", zap.String("file", filepath.Base(path)))
		return
	}

	b.mu.Lock()
	if b.seen[path] {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	if !Supported(path) {
		b.mu.Lock()
		b.seen[path] = true
		b.mu.Unlock()
		b.logger.Warn(ctx, "skipping unsupported inbox file", zap.String("file", filepath.Base(path)))
		return
	}

	in, err := Load(path, InboxOwner)
	if errors.Is(err, ErrEmptyDocument) {
		return
	}

	b.mu.Lock()
	if b.seen[path] {
		b.mu.Unlock()
		return
	}
	b.seen[path] = true
	b.mu.Unlock()

	res := Started{Path: path, Err: err}
	if err == nil {
		res.Session, res.Err = b.run(ctx, in)
	}
	if res.Err != nil {
		b.logger.Warn(ctx, "inbox document rejected", zap.String("file", filepath.Base(path)), zap.Error(res.Err))
	} else {
		b.logger.Info(ctx, "inbox session started",
			zap.String("file", filepath.Base(path)),
			zap.String("session.id", res.Session.ID),
			zap.String("state", string(res.Session.State)),
		)
	}

	select {
	case b.results <- res:
	default:
		b.logger.Warn(ctx, "inbox results full, dropping notification", zap.String("file", filepath.Base(path)))
	}
}

func (b *Inbox) run(ctx context.Context, in orchestrator.StartInput) (orchestrator.Session, error) {
	sess, err := b.starter.Start(ctx, in)
	if err != nil {
		return orchestrator.Session{}, err
	}
	return b.starter.RunUntilBlocked(ctx, sess.ID)
}
