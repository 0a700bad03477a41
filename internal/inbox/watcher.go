// Package inbox imports documents dropped into a directory, either as they
// arrive or on a cron schedule.
package inbox

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ArrivalCallback receives the files that arrived during one debounce window
type ArrivalCallback func(paths []string)

// Watcher monitors a directory for new or rewritten documents
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	callback ArrivalCallback
	debounce time.Duration
	log      logrus.FieldLogger

	pending map[string]struct{}
	timer   *time.Timer
	mu      sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a watcher for dir
func NewWatcher(dir string, callback ArrivalCallback, log logrus.FieldLogger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Watcher{
		watcher:  watcher,
		dir:      dir,
		callback: callback,
		debounce: 2 * time.Second,
		log:      log.WithField("inbox", dir),
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce sets how long the watcher waits for more files before
// handing a batch to the callback.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Start begins watching for file changes
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.log.WithError(err).Warn("Inbox watch error")
			}
		}
	}()
}

// Stop stops watching and drops any pending batch
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
	w.watcher.Close()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	if !IsCandidate(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[event.Name] = struct{}{}

	// Reset or start debounce timer
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if w.callback == nil || len(pending) == 0 {
		return
	}

	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	w.callback(paths)
}

// IsCandidate reports whether a file name looks like a finished document.
// Hidden files and editor or download temp files are ignored.
func IsCandidate(path string) bool {
	base := filepath.Base(path)
	if base == "" || strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	for _, suffix := range []string{"~", ".tmp", ".part", ".crdownload", ".swp"} {
		if strings.HasSuffix(base, suffix) {
			return false
		}
	}
	return true
}
