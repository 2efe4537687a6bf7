package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadDebounce is how long the reloader waits after the last change.
var ReloadDebounce = 500 * time.Millisecond

// Reloader watches the policy file and the kill-switch token directory
// and triggers hot-reload.
type Reloader struct {
	watcher *fsnotify.Watcher
	reload  func() error
	logger  *slog.Logger
	files   map[string]bool
	dirs    map[string]bool
}

// NewReloader creates a watcher for the server's policy file and token
// directory.
func NewReloader(server *Server) (*Reloader, error) {
	var dirs []string
	if tokens := server.store.Tokens(); tokens != nil {
		dirs = append(dirs, tokens.Dir())
	}
	return newReloader(server.ReloadPolicy, server.logger, []string{server.store.Path()}, dirs)
}

// newReloader watches files through their parent directory so editors
// that replace the file by rename are still seen. Every change in dirs
// counts.
func newReloader(reload func() error, logger *slog.Logger, files, dirs []string) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	r := &Reloader{
		watcher: watcher,
		reload:  reload,
		logger:  logger,
		files:   make(map[string]bool),
		dirs:    make(map[string]bool),
	}
	watched := make(map[string]bool)
	add := func(dir string) error {
		if watched[dir] {
			return nil
		}
		if _, err := os.Stat(dir); err != nil {
			return nil
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %q: %w", dir, err)
		}
		watched[dir] = true
		return nil
	}

	for _, f := range files {
		if f == "" {
			continue
		}
		f = filepath.Clean(f)
		if err := add(filepath.Dir(f)); err != nil {
			watcher.Close()
			return nil, err
		}
		r.files[f] = true
	}
	for _, d := range dirs {
		if d == "" {
			continue
		}
		d = filepath.Clean(d)
		if err := add(d); err != nil {
			watcher.Close()
			return nil, err
		}
		r.dirs[d] = true
	}
	return r, nil
}

func (r *Reloader) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Clean(event.Name)
	return r.files[name] || r.dirs[filepath.Dir(name)]
}

// Run watches for file changes and reloads policy. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if !r.relevant(event) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(ReloadDebounce, func() {
				if err := r.reload(); err != nil {
					r.logger.Error("hot-reload failed, keeping previous policy", "error", err)
				} else {
					r.logger.Info("hot-reload: policy reloaded", "trigger", event.Name)
				}
			})

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("file watcher error", "error", err)
		}
	}
}
