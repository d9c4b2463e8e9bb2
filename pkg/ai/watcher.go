package ai

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/larder/pkg/observability"
)

// PromptWatcher serves a prompt read from a file and reloads it whenever
// the file changes. A failed reload keeps the previous prompt.
type PromptWatcher struct {
	path    string
	logger  *observability.Logger
	watcher *fsnotify.Watcher

	mu     sync.RWMutex
	prompt string
}

// NewPromptWatcher loads path and starts watching its directory. Editors
// often replace files by rename, so the directory is watched rather than
// the file.
func NewPromptWatcher(path string, logger *observability.Logger) (*PromptWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	pw := &PromptWatcher{path: abs, logger: logger}
	if err := pw.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	pw.watcher = watcher
	return pw, nil
}

// Prompt returns the current prompt
func (pw *PromptWatcher) Prompt() string {
	pw.mu.RLock()
	defer pw.mu.RUnlock()
	return pw.prompt
}

func (pw *PromptWatcher) reload() error {
	b, err := os.ReadFile(pw.path)
	if err != nil {
		return fmt.Errorf("failed to read prompt file: %w", err)
	}
	prompt := strings.TrimSpace(string(b))
	if prompt == "" {
		return fmt.Errorf("prompt file %s is empty", pw.path)
	}
	pw.mu.Lock()
	pw.prompt = prompt
	pw.mu.Unlock()
	return nil
}

// Run processes file events until ctx is done or the watcher is closed
func (pw *PromptWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != pw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := pw.reload(); err != nil {
				pw.logger.WithError(err).Warn("Keeping previous AI prompt")
				continue
			}
			pw.logger.WithField("path", pw.path).Info("Reloaded AI prompt")
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			pw.logger.WithError(err).Warn("Prompt watcher error")
		}
	}
}

// Close stops watching
func (pw *PromptWatcher) Close() error {
	return pw.watcher.Close()
}
