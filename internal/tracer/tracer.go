// Package tracer reconstructs live call stacks from instrumentation
// events and records caller→callee edges and error context. The tracer is
// an explicit context object with an attach/detach lifecycle; it is owned
// by one coordinator and injected where tracing is started.
//
// Instrumented code delivers three notifications: OnCall, OnReturn, and
// OnPanic. Every OnCall must be mirrored by an OnReturn on the same
// goroutine, including calls the tracer chooses to ignore; the Enter
// helper arranges this automatically. Tracing never raises into the
// traced program: every internal failure is logged and absorbed.
package tracer

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nkarpov/codesentry/internal/model"
)

// Recorder persists what the tracer observes. *store.Session satisfies it.
type Recorder interface {
	InsertEdge(ctx context.Context, e model.CallEdge) error
	InsertError(ctx context.Context, r model.ErrorRecord) error
}

// Event is one instrumentation notification from the running program.
type Event struct {
	Goroutine uint64 // traced goroutine identity
	Function  string // qualified function name
	Module    string // owning package import path
	File      string // source file of the function
	Line      int    // best-known line for error context
	Args      string // optional argument summary
}

// frame is one live entry on a goroutine's call stack.
type frame struct {
	fn   string
	file string
}

// gstack tracks one goroutine: its active frames plus the depth of an
// ignored subtree. While suppressed is non-zero, nested calls are counted
// but not traced, so an ignored call hides its children as well.
type gstack struct {
	frames     []frame
	suppressed int
}

// Tracer receives call/return/panic events and records edges and errors.
type Tracer struct {
	rec Recorder

	mu     sync.Mutex
	active bool
	filter []string
	stacks map[uint64]*gstack
}

// New creates a detached Tracer persisting through rec.
func New(rec Recorder) *Tracer {
	return &Tracer{
		rec:    rec,
		stacks: make(map[uint64]*gstack),
	}
}

// Start attaches the tracer. moduleFilter restricts tracing to packages
// with one of the given import-path prefixes; empty means trace
// everything except system frames. Restarting resets all stacks.
func (t *Tracer) Start(moduleFilter []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filter = append([]string(nil), moduleFilter...)
	t.stacks = make(map[uint64]*gstack)
	t.active = true
}

// Stop detaches the tracer. Events arriving after Stop are dropped.
func (t *Tracer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
	t.stacks = make(map[uint64]*gstack)
}

// Active reports whether the tracer is attached.
func (t *Tracer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// StackDepth returns the live frame count for one goroutine.
func (t *Tracer) StackDepth(gid uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.stacks[gid]; ok {
		return len(st.frames)
	}
	return 0
}

// OnCall handles a function-entered event. The current top of the
// goroutine's stack becomes the caller; an edge is recorded only when a
// caller exists (top-level entries have nothing to attribute to).
func (t *Tracer) OnCall(ev Event) {
	defer t.absorb("call")

	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	st := t.stack(ev.Goroutine)
	if st.suppressed > 0 {
		st.suppressed++
		t.mu.Unlock()
		return
	}
	if t.excluded(ev) {
		st.suppressed = 1
		t.mu.Unlock()
		return
	}

	var caller frame
	hasCaller := len(st.frames) > 0
	if hasCaller {
		caller = st.frames[len(st.frames)-1]
	}
	st.frames = append(st.frames, frame{fn: ev.Function, file: ev.File})
	t.mu.Unlock()

	if !hasCaller {
		return
	}
	edge := model.CallEdge{
		Caller:     caller.fn,
		Callee:     ev.Function,
		CallerFile: caller.file,
		CalleeFile: ev.File,
		Module:     ev.Module,
		Args:       ev.Args,
		Time:       time.Now(),
	}
	if err := t.rec.InsertEdge(context.Background(), edge); err != nil {
		fmt.Fprintf(os.Stderr, "tracer: record edge %s->%s: %v\n", edge.Caller, edge.Callee, err)
	}
}

// OnReturn handles a function-returned event. Popping an empty stack is a
// defensive no-op, not an error.
func (t *Tracer) OnReturn(ev Event) {
	defer t.absorb("return")

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	st := t.stack(ev.Goroutine)
	if st.suppressed > 0 {
		st.suppressed--
		return
	}
	if n := len(st.frames); n > 0 {
		st.frames = st.frames[:n-1]
	}
}

// OnPanic handles an exception event. The function at the top of the
// goroutine's stack (falling back to the event frame) is attributed as
// failing. The panic value is observed, never intercepted; the traced
// program's unwinding is expected to deliver the matching OnReturn.
func (t *Tracer) OnPanic(ev Event, recovered any) {
	defer t.absorb("panic")

	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	st := t.stack(ev.Goroutine)
	if st.suppressed > 0 {
		t.mu.Unlock()
		return
	}
	failing := ev.Function
	if n := len(st.frames); n > 0 {
		failing = st.frames[n-1].fn
	}
	trace := renderStack(st.frames, ev)
	t.mu.Unlock()

	rec := model.ErrorRecord{
		Function:   failing,
		Kind:       fmt.Sprintf("%T", recovered),
		Message:    fmt.Sprint(recovered),
		StackTrace: trace,
		Context:    sourceWindow(ev.File, ev.Line, 3),
		Time:       time.Now(),
	}
	if err := t.rec.InsertError(context.Background(), rec); err != nil {
		fmt.Fprintf(os.Stderr, "tracer: record error in %s: %v\n", failing, err)
	}
}

// stack returns the tracking state for gid, creating it on first use.
// Caller holds t.mu.
func (t *Tracer) stack(gid uint64) *gstack {
	st, ok := t.stacks[gid]
	if !ok {
		st = &gstack{}
		t.stacks[gid] = st
	}
	return st
}

// excluded reports whether an event falls outside tracing: system frames
// and the instrumentation machinery are always excluded; a configured
// module filter excludes everything without a matching prefix.
// Caller holds t.mu.
func (t *Tracer) excluded(ev Event) bool {
	if ev.Function == "" {
		return true
	}
	if ev.Module == "runtime" || strings.HasPrefix(ev.Module, "runtime/") {
		return true
	}
	if strings.HasSuffix(ev.Module, "internal/tracer") {
		return true
	}
	if len(t.filter) == 0 {
		return false
	}
	for _, prefix := range t.filter {
		if strings.HasPrefix(ev.Module, prefix) {
			return false
		}
	}
	return true
}

// absorb catches any internal failure at the event boundary so that
// tracing can never crash the program it observes.
func (t *Tracer) absorb(event string) {
	if r := recover(); r != nil {
		fmt.Fprintf(os.Stderr, "tracer: internal failure handling %s event: %v\n", event, r)
	}
}

// renderStack formats the live frames innermost-first.
func renderStack(frames []frame, ev Event) string {
	var b strings.Builder
	if len(frames) == 0 {
		fmt.Fprintf(&b, "  at %s (%s)\n", ev.Function, ev.File)
		return b.String()
	}
	for i := len(frames) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "  at %s (%s)\n", frames[i].fn, frames[i].file)
	}
	return b.String()
}
