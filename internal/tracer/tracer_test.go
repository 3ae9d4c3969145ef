package tracer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nkarpov/codesentry/internal/model"
)

// memRecorder collects records in memory and can be told to fail.
type memRecorder struct {
	mu     sync.Mutex
	edges  []model.CallEdge
	errs   []model.ErrorRecord
	broken bool
}

func (m *memRecorder) InsertEdge(ctx context.Context, e model.CallEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broken {
		return errors.New("storage unavailable")
	}
	m.edges = append(m.edges, e)
	return nil
}

func (m *memRecorder) InsertError(ctx context.Context, r model.ErrorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broken {
		return errors.New("storage unavailable")
	}
	m.errs = append(m.errs, r)
	return nil
}

func (m *memRecorder) edgePairs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.edges {
		out = append(out, e.Caller+"->"+e.Callee)
	}
	return out
}

func ev(gid uint64, fn string) Event {
	return Event{Goroutine: gid, Function: fn, Module: "app/core", File: "/src/app.go"}
}

func TestCallSequenceRecordsEdges(t *testing.T) {
	rec := &memRecorder{}
	tr := New(rec)
	tr.Start(nil)

	tr.OnCall(ev(1, "A"))
	tr.OnCall(ev(1, "B"))
	tr.OnCall(ev(1, "C"))
	tr.OnReturn(ev(1, "C"))
	tr.OnReturn(ev(1, "B"))
	tr.OnReturn(ev(1, "A"))

	got := rec.edgePairs()
	want := []string{"A->B", "B->C"}
	if len(got) != len(want) {
		t.Fatalf("expected edges %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("edge %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if d := tr.StackDepth(1); d != 0 {
		t.Errorf("expected empty stack after returns, got depth %d", d)
	}
}

func TestTopLevelCallProducesNoEdge(t *testing.T) {
	rec := &memRecorder{}
	tr := New(rec)
	tr.Start(nil)

	tr.OnCall(ev(1, "main"))
	if len(rec.edgePairs()) != 0 {
		t.Errorf("top-level entry must not produce an edge, got %v", rec.edgePairs())
	}
}

func TestReturnOnEmptyStackIsNoOp(t *testing.T) {
	rec := &memRecorder{}
	tr := New(rec)
	tr.Start(nil)

	tr.OnReturn(ev(1, "phantom"))
	tr.OnCall(ev(1, "A"))
	tr.OnCall(ev(1, "B"))
	if got := rec.edgePairs(); len(got) != 1 || got[0] != "A->B" {
		t.Errorf("expected [A->B] after defensive pop, got %v", got)
	}
}

func TestPanicAttributedToTopOfStack(t *testing.T) {
	rec := &memRecorder{}
	tr := New(rec)
	tr.Start(nil)

	tr.OnCall(ev(1, "A"))
	tr.OnCall(ev(1, "B"))
	tr.OnCall(ev(1, "C"))
	tr.OnPanic(ev(1, "C"), errors.New("division by zero"))

	if len(rec.errs) != 1 {
		t.Fatalf("expected 1 error record, got %d", len(rec.errs))
	}
	r := rec.errs[0]
	if r.Function != "C" {
		t.Errorf("expected failure attributed to C, got %s", r.Function)
	}
	if r.Message != "division by zero" {
		t.Errorf("unexpected message %q", r.Message)
	}
	if !strings.Contains(r.StackTrace, "at C") || !strings.Contains(r.StackTrace, "at A") {
		t.Errorf("stack trace missing frames:\n%s", r.StackTrace)
	}
}

func TestPanicWithEmptyStackFallsBackToEventFrame(t *testing.T) {
	rec := &memRecorder{}
	tr := New(rec)
	tr.Start(nil)

	tr.OnPanic(ev(7, "Orphan"), "boom")
	if len(rec.errs) != 1 || rec.errs[0].Function != "Orphan" {
		t.Fatalf("expected fallback attribution to Orphan, got %+v", rec.errs)
	}
}

func TestModuleFilterSuppressesSubtree(t *testing.T) {
	rec := &memRecorder{}
	tr := New(rec)
	tr.Start([]string{"app/"})

	other := Event{Goroutine: 1, Function: "Lib", Module: "vendorlib", File: "/x.go"}
	inner := Event{Goroutine: 1, Function: "Inner", Module: "app/core", File: "/src/app.go"}

	tr.OnCall(ev(1, "A"))
	tr.OnCall(other) // filtered: no deeper tracing inside
	tr.OnCall(inner) // child of an ignored call, also ignored
	tr.OnReturn(inner)
	tr.OnReturn(other)
	tr.OnCall(ev(1, "B")) // traced again after the ignored subtree
	tr.OnReturn(ev(1, "B"))
	tr.OnReturn(ev(1, "A"))

	got := rec.edgePairs()
	if len(got) != 1 || got[0] != "A->B" {
		t.Errorf("expected only [A->B], got %v", got)
	}
}

func TestSystemFramesAlwaysExcluded(t *testing.T) {
	rec := &memRecorder{}
	tr := New(rec)
	tr.Start(nil)

	tr.OnCall(ev(1, "A"))
	tr.OnCall(Event{Goroutine: 1, Function: "gcBgMarkWorker", Module: "runtime"})
	tr.OnReturn(Event{Goroutine: 1, Function: "gcBgMarkWorker", Module: "runtime"})
	tr.OnReturn(ev(1, "A"))

	if len(rec.edgePairs()) != 0 {
		t.Errorf("runtime frames must never produce edges, got %v", rec.edgePairs())
	}
}

func TestPerGoroutineStacks(t *testing.T) {
	rec := &memRecorder{}
	tr := New(rec)
	tr.Start(nil)

	tr.OnCall(ev(1, "A"))
	tr.OnCall(ev(2, "X")) // other goroutine: top-level there, no caller
	tr.OnCall(ev(1, "B"))
	tr.OnCall(ev(2, "Y"))

	got := rec.edgePairs()
	want := map[string]bool{"A->B": true, "X->Y": true}
	if len(got) != 2 {
		t.Fatalf("expected 2 edges, got %v", got)
	}
	for _, p := range got {
		if !want[p] {
			t.Errorf("unexpected cross-goroutine attribution %s", p)
		}
	}
}

func TestRecursionKeepsAttribution(t *testing.T) {
	rec := &memRecorder{}
	tr := New(rec)
	tr.Start(nil)

	tr.OnCall(ev(1, "fib"))
	tr.OnCall(ev(1, "fib"))
	tr.OnCall(ev(1, "fib"))
	tr.OnReturn(ev(1, "fib"))
	tr.OnReturn(ev(1, "fib"))
	tr.OnReturn(ev(1, "fib"))

	got := rec.edgePairs()
	if len(got) != 2 {
		t.Fatalf("expected 2 recursive edges, got %v", got)
	}
	for _, p := range got {
		if p != "fib->fib" {
			t.Errorf("expected fib->fib, got %s", p)
		}
	}
	if d := tr.StackDepth(1); d != 0 {
		t.Errorf("expected empty stack after recursion unwound, got %d", d)
	}
}

func TestPersistenceFailureDoesNotPropagate(t *testing.T) {
	rec := &memRecorder{broken: true}
	tr := New(rec)
	tr.Start(nil)

	tr.OnCall(ev(1, "A"))
	tr.OnCall(ev(1, "B")) // edge write fails; must not panic
	tr.OnPanic(ev(1, "B"), "boom")
	tr.OnReturn(ev(1, "B"))
	tr.OnReturn(ev(1, "A"))

	if d := tr.StackDepth(1); d != 0 {
		t.Errorf("stack corrupted by persistence failure, depth %d", d)
	}
}

func TestStopDropsEvents(t *testing.T) {
	rec := &memRecorder{}
	tr := New(rec)
	tr.Start(nil)
	tr.OnCall(ev(1, "A"))
	tr.Stop()
	tr.OnCall(ev(1, "B"))
	tr.OnCall(ev(1, "C"))

	if len(rec.edgePairs()) != 0 {
		t.Errorf("expected no edges after stop, got %v", rec.edgePairs())
	}
	if tr.Active() {
		t.Error("expected inactive after stop")
	}
}

func TestSplitFuncName(t *testing.T) {
	cases := []struct {
		full, module, name string
	}{
		{"github.com/acme/app/core.Process", "github.com/acme/app/core", "Process"},
		{"github.com/acme/app/core.(*Worker).Run", "github.com/acme/app/core", "Worker.Run"},
		{"main.main", "main", "main"},
	}
	for _, c := range cases {
		module, name := splitFuncName(c.full)
		if module != c.module || name != c.name {
			t.Errorf("splitFuncName(%q) = %q, %q; want %q, %q", c.full, module, name, c.module, c.name)
		}
	}
}
