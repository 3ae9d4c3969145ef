package tracer_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/nkarpov/codesentry/internal/model"
	"github.com/nkarpov/codesentry/internal/tracer"
)

// collector is an in-memory Recorder for instrumentation tests.
type collector struct {
	mu    sync.Mutex
	edges []model.CallEdge
	errs  []model.ErrorRecord
}

func (c *collector) InsertEdge(ctx context.Context, e model.CallEdge) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edges = append(c.edges, e)
	return nil
}

func (c *collector) InsertError(ctx context.Context, r model.ErrorRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, r)
	return nil
}

func TestEnterRecordsNestedCalls(t *testing.T) {
	rec := &collector{}
	tr := tracer.New(rec)
	tr.Start(nil)

	middle := func() {
		defer tr.Enter()()
	}
	outer := func() {
		defer tr.Enter()()
		middle()
	}
	outer()

	if len(rec.edges) != 1 {
		t.Fatalf("expected 1 edge from nested closures, got %d", len(rec.edges))
	}
	e := rec.edges[0]
	if e.Caller == "" || e.Callee == "" || e.Caller == e.Callee {
		t.Errorf("malformed edge %s->%s", e.Caller, e.Callee)
	}
	if !strings.Contains(e.Module, "internal/tracer_test") {
		t.Errorf("expected test module in edge, got %q", e.Module)
	}
}

func TestEnterRecordsPanicAndRethrows(t *testing.T) {
	rec := &collector{}
	tr := tracer.New(rec)
	tr.Start(nil)

	boom := func() {
		defer tr.Enter()()
		panic(fmt.Errorf("empty input"))
	}

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("panic must be re-raised, not swallowed")
			}
		}()
		boom()
	}()

	if len(rec.errs) != 1 {
		t.Fatalf("expected 1 error record, got %d", len(rec.errs))
	}
	if rec.errs[0].Message != "empty input" {
		t.Errorf("unexpected message %q", rec.errs[0].Message)
	}
	if rec.errs[0].StackTrace == "" {
		t.Error("expected non-empty stack trace")
	}
}

func TestEnterConcurrentGoroutines(t *testing.T) {
	rec := &collector{}
	tr := tracer.New(rec)
	tr.Start(nil)

	leaf := func() {
		defer tr.Enter()()
	}
	root := func() {
		defer tr.Enter()()
		leaf()
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			root()
		}()
	}
	wg.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.edges) != 8 {
		t.Fatalf("expected 8 edges (one per goroutine), got %d", len(rec.edges))
	}
	for _, e := range rec.edges {
		if e.Caller == e.Callee {
			t.Errorf("self-edge from cross-goroutine confusion: %s", e.Caller)
		}
	}
}
