// Package monitor runs the background integrity loop. On a fixed interval
// it re-hashes every registered protected entity from the file system,
// diffs against the stored digest, and appends change records plus
// notifications. An optional file watcher triggers an immediate recheck
// of a changed file between ticks.
package monitor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nkarpov/codesentry/internal/model"
	"github.com/nkarpov/codesentry/internal/store"
)

// DefaultInterval is the poll interval when none is configured.
const DefaultInterval = 5 * time.Second

// stopTimeout bounds how long Stop waits for the loop to finish its
// current cycle before giving up and returning anyway.
const stopTimeout = 5 * time.Second

// Monitor owns the poll loop and the one-shot integrity check path.
type Monitor struct {
	sess   *store.Session
	notify chan model.ChangeRecord

	// opMu serializes session use between the loop goroutine and
	// synchronous CheckFile callers. Never held while sleeping.
	opMu sync.Mutex

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Monitor persisting through its own store session.
func New(sess *store.Session) *Monitor {
	return &Monitor{
		sess:   sess,
		notify: make(chan model.ChangeRecord, 64),
	}
}

// Notifications exposes change events for the display layer. Sends never
// block the monitor; events are dropped when no consumer keeps up.
func (m *Monitor) Notifications() <-chan model.ChangeRecord {
	return m.notify
}

// Start launches the background loop. A second Start while active is a
// success no-op. watchDirs, when non-empty, additionally arms a file
// watcher that rechecks changed files immediately.
func (m *Monitor) Start(interval time.Duration, watchDirs []string) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.active = true

	go m.run(ctx, interval, watchDirs)
	return nil
}

// Stop signals the loop to exit after its current cycle and joins with a
// bounded timeout. Timeout expiry logs a warning but still returns.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.active = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(stopTimeout):
		fmt.Fprintf(os.Stderr, "monitor: loop did not stop within %s\n", stopTimeout)
	}
}

// Active reports whether the loop is running.
func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// run is the loop body: one cycle per tick until cancelled.
func (m *Monitor) run(ctx context.Context, interval time.Duration, watchDirs []string) {
	defer close(m.done)

	if len(watchDirs) > 0 {
		w := NewWatcher(watchDirs, func(path string) {
			if _, err := m.CheckFile(ctx, path); err != nil {
				fmt.Fprintf(os.Stderr, "monitor: recheck %s: %v\n", path, err)
			}
		})
		go func() {
			if err := w.Run(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "monitor: file watcher: %v\n", err)
			}
		}()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cycle(ctx)
		}
	}
}

// cycle re-verifies every registered entity. A failure on one entity is
// logged and must not abort the check of the others.
func (m *Monitor) cycle(ctx context.Context) {
	m.opMu.Lock()
	entities, err := m.sess.Entities(ctx)
	m.opMu.Unlock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "monitor: load entities: %v\n", err)
		return
	}

	for _, e := range entities {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := m.verify(ctx, e); err != nil {
			fmt.Fprintf(os.Stderr, "monitor: verify %s in %s: %v\n", e.DisplayName(), e.FilePath, err)
		}
	}
}
