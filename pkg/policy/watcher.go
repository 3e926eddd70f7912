package policy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/blackboard/pkg/logger"
)

// Watcher is an Authorizer backed by a rules file that is reloaded whenever
// the file changes on disk. A reload that fails to parse keeps the previous
// rules in force.
type Watcher struct {
	path    string
	rules   atomic.Pointer[RuleSet]
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	// reloaded receives a value after every reload attempt. Tests use it to
	// wait for the watcher to catch up.
	reloaded chan error
}

// NewWatcher loads path and begins watching its directory. Editors usually
// replace files by rename, so watching the file itself would lose track of
// it after the first save.
func NewWatcher(path string, log *slog.Logger) (*Watcher, error) {
	rs, err := LoadRules(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating rules watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching rules dir: %w", err)
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		watcher:  fw,
		logger:   logger.OrNop(log),
		reloaded: make(chan error, 1),
	}
	w.rules.Store(rs)
	return w, nil
}

// Run processes file events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.notify(w.reload())
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("policy rules watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() error {
	rs, err := LoadRules(w.path)
	if err != nil {
		w.logger.Warn("keeping previous policy rules", "path", w.path, "error", err)
		return err
	}
	w.rules.Store(rs)
	w.logger.Info("reloaded policy rules", "path", w.path, "name", rs.Name)
	return nil
}

// notify keeps only the latest outcome when nobody is listening.
func (w *Watcher) notify(err error) {
	for {
		select {
		case w.reloaded <- err:
			return
		default:
		}
		select {
		case <-w.reloaded:
		default:
		}
	}
}

// Reloaded reports each reload attempt's outcome.
func (w *Watcher) Reloaded() <-chan error {
	return w.reloaded
}

// Rules returns the rules currently in force.
func (w *Watcher) Rules() *RuleSet {
	return w.rules.Load()
}

// Authorize delegates to the current rules.
func (w *Watcher) Authorize(ctx context.Context, intent CommitIntent) (Decision, error) {
	return w.rules.Load().Authorize(ctx, intent)
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
