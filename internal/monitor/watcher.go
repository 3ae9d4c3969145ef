package monitor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDefault coalesces editor write bursts into one recheck.
const debounceDefault = 200 * time.Millisecond

// Watcher reacts to file-system writes in the monitored directories and
// hands changed Go files to its handler. It supplements the poll loop;
// the loop remains the source of truth when fsnotify is unavailable.
type Watcher struct {
	dirs     []string
	handler  func(path string)
	debounce time.Duration
}

// NewWatcher creates a Watcher over dirs invoking handler per changed file.
func NewWatcher(dirs []string, handler func(path string)) *Watcher {
	return &Watcher{
		dirs:     dirs,
		handler:  handler,
		debounce: debounceDefault,
	}
}

// Run watches until ctx is cancelled. Paths that pass debounce flush
// together on a single timer; one goroutine services all of them.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	for _, dir := range w.dirs {
		if err := watcher.Add(dir); err != nil {
			return err
		}
	}

	var mu sync.Mutex
	ready := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !strings.HasSuffix(event.Name, ".go") {
				continue
			}
			mu.Lock()
			ready[event.Name] = true
			mu.Unlock()
			timer.Reset(w.debounce)

		case <-timer.C:
			mu.Lock()
			paths := make([]string, 0, len(ready))
			for p := range ready {
				paths = append(paths, p)
			}
			ready = make(map[string]bool)
			mu.Unlock()
			for _, p := range paths {
				w.handler(p)
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}
