package graph

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nkarpov/codesentry/internal/model"
	"github.com/nkarpov/codesentry/internal/store"
)

func newTestBuilder(t *testing.T) (*Builder, *store.Session) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "graph.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	sess, err := st.Session(context.Background())
	if err != nil {
		t.Fatalf("failed to open session: %v", err)
	}
	return NewBuilder(sess), sess
}

func seedEdges(t *testing.T, sess *store.Session, pairs ...[2]string) {
	t.Helper()
	for _, p := range pairs {
		err := sess.InsertEdge(context.Background(), model.CallEdge{
			Caller: p[0],
			Callee: p[1],
			Module: "app",
			Time:   time.Now(),
		})
		if err != nil {
			t.Fatalf("failed to insert edge %v: %v", p, err)
		}
	}
}

func nodeIDs(g *model.Graph) map[string]model.Node {
	out := make(map[string]model.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		out[n.ID] = n
	}
	return out
}

func TestDepthBoundStopsExpansion(t *testing.T) {
	b, sess := newTestBuilder(t)
	seedEdges(t, sess, [2]string{"X", "Y"}, [2]string{"Y", "Z"})

	g, err := b.Build(context.Background(), Options{Root: "X", Depth: 1, Direction: Callees})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	nodes := nodeIDs(g)
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes at depth 1, got %d: %v", len(nodes), g.Nodes)
	}
	if _, ok := nodes["X"]; !ok {
		t.Error("missing root X")
	}
	if _, ok := nodes["Y"]; !ok {
		t.Error("missing direct callee Y")
	}
	if _, ok := nodes["Z"]; ok {
		t.Error("Z is beyond the depth bound and must be absent")
	}
	if len(g.Edges) != 1 || g.Edges[0].Source != "X" || g.Edges[0].Target != "Y" {
		t.Errorf("expected single edge X->Y, got %v", g.Edges)
	}
	if !nodes["X"].Center {
		t.Error("root must be marked as center")
	}
	if nodes["Y"].Center {
		t.Error("non-root must not be marked as center")
	}
	if nodes["Y"].Depth != 1 {
		t.Errorf("expected Y at depth 1, got %d", nodes["Y"].Depth)
	}
}

func TestRepeatedCallsCollapseToOneEdge(t *testing.T) {
	b, sess := newTestBuilder(t)
	seedEdges(t, sess,
		[2]string{"A", "B"}, [2]string{"A", "B"}, [2]string{"A", "B"})

	g, err := b.Build(context.Background(), Options{Root: "A", Depth: 2, Direction: Callees})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(g.Edges) != 1 {
		t.Errorf("expected deduplicated edge set, got %v", g.Edges)
	}
}

func TestCallerDirection(t *testing.T) {
	b, sess := newTestBuilder(t)
	seedEdges(t, sess, [2]string{"A", "C"}, [2]string{"B", "C"}, [2]string{"Root", "A"})

	g, err := b.Build(context.Background(), Options{Root: "C", Depth: 1, Direction: Callers})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	nodes := nodeIDs(g)
	for _, want := range []string{"A", "B", "C"} {
		if _, ok := nodes[want]; !ok {
			t.Errorf("missing node %s", want)
		}
	}
	if _, ok := nodes["Root"]; ok {
		t.Error("Root is two hops away and must be absent at depth 1")
	}
	for _, e := range g.Edges {
		if e.Target != "C" {
			t.Errorf("caller traversal produced non-incoming edge %v", e)
		}
	}
}

func TestBothDirections(t *testing.T) {
	b, sess := newTestBuilder(t)
	seedEdges(t, sess, [2]string{"Up", "Mid"}, [2]string{"Mid", "Down"})

	g, err := b.Build(context.Background(), Options{Root: "Mid", Depth: 1, Direction: Both})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(g.Nodes) != 3 {
		t.Errorf("expected Up, Mid, Down, got %v", g.Nodes)
	}
	if len(g.Edges) != 2 {
		t.Errorf("expected both edges, got %v", g.Edges)
	}
}

func TestGlobalGraphWithWeights(t *testing.T) {
	b, sess := newTestBuilder(t)
	seedEdges(t, sess,
		[2]string{"A", "B"}, [2]string{"A", "B"}, [2]string{"B", "C"})

	g, err := b.Build(context.Background(), Options{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(g.Nodes) != 3 {
		t.Errorf("expected 3 nodes, got %v", g.Nodes)
	}
	weights := map[string]int{}
	for _, e := range g.Edges {
		weights[e.Source+"->"+e.Target] = e.Weight
	}
	if weights["A->B"] != 2 || weights["B->C"] != 1 {
		t.Errorf("unexpected edge weights: %v", weights)
	}
}

func TestUnknownRootYieldsLoneNode(t *testing.T) {
	b, sess := newTestBuilder(t)
	seedEdges(t, sess, [2]string{"A", "B"})

	g, err := b.Build(context.Background(), Options{Root: "Ghost", Depth: 2, Direction: Both})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(g.Nodes) != 1 || g.Nodes[0].ID != "Ghost" {
		t.Errorf("expected only the root node, got %v", g.Nodes)
	}
	if len(g.Edges) != 0 {
		t.Errorf("expected no edges, got %v", g.Edges)
	}
}

func TestCycleTerminates(t *testing.T) {
	b, sess := newTestBuilder(t)
	seedEdges(t, sess, [2]string{"A", "B"}, [2]string{"B", "A"})

	g, err := b.Build(context.Background(), Options{Root: "A", Depth: 5, Direction: Callees})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(g.Nodes) != 2 {
		t.Errorf("expected 2 nodes in cycle, got %v", g.Nodes)
	}
	if len(g.Edges) != 2 {
		t.Errorf("expected both cycle edges, got %v", g.Edges)
	}
}

func TestDefaultDepthAndDirection(t *testing.T) {
	b, sess := newTestBuilder(t)
	seedEdges(t, sess,
		[2]string{"A", "B"}, [2]string{"B", "C"},
		[2]string{"C", "D"}, [2]string{"P", "A"})

	// Zero options: depth 2, both directions.
	g, err := b.Build(context.Background(), Options{Root: "A"})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	nodes := nodeIDs(g)
	if _, ok := nodes["P"]; !ok {
		t.Error("caller P missing: default direction must cover both")
	}
	if _, ok := nodes["C"]; !ok {
		t.Error("C at depth 2 should be included")
	}
	if _, ok := nodes["D"]; ok {
		t.Error("D at depth 3 should be outside the default bound")
	}
}

func TestSimplifyKeepsStarSpokes(t *testing.T) {
	b, sess := newTestBuilder(t)
	// Every spoke touches a third of the hub's edges, which clears the
	// default importance cutoff.
	seedEdges(t, sess,
		[2]string{"Hub", "A"}, [2]string{"Hub", "B"}, [2]string{"Hub", "Leaf"})

	g, err := b.Build(context.Background(), Options{
		Root: "Hub", Depth: 3, Direction: Both, Simplify: true,
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	nodes := nodeIDs(g)
	for _, want := range []string{"Hub", "A", "B", "Leaf"} {
		if _, ok := nodes[want]; !ok {
			t.Errorf("node %s pruned despite importance 1/3", want)
		}
	}
	if len(g.Edges) != 3 {
		t.Errorf("expected all 3 edges kept, got %d", len(g.Edges))
	}
}

func TestSimplifyPrunesLowImportanceNodes(t *testing.T) {
	b, sess := newTestBuilder(t)
	// Hub holds four edges; its plain spokes score 1/4 and fall below the
	// cutoff, while Mid scores 2/4 and stays.
	seedEdges(t, sess,
		[2]string{"Hub", "A"}, [2]string{"Hub", "B"}, [2]string{"Hub", "C"},
		[2]string{"Hub", "Mid"}, [2]string{"Mid", "End"})

	g, err := b.Build(context.Background(), Options{
		Root: "Hub", Depth: 3, Direction: Both, Simplify: true,
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	nodes := nodeIDs(g)
	if _, ok := nodes["Hub"]; !ok {
		t.Error("root must survive pruning")
	}
	if _, ok := nodes["Mid"]; !ok {
		t.Error("Mid at importance 0.5 should survive")
	}
	for _, gone := range []string{"A", "B", "C", "End"} {
		if _, ok := nodes[gone]; ok {
			t.Errorf("node %s at importance 0.25 should be pruned", gone)
		}
	}
	for _, e := range g.Edges {
		if !((e.Source == "Hub" || e.Source == "Mid") && (e.Target == "Hub" || e.Target == "Mid")) {
			t.Errorf("edge touching pruned node survived: %v", e)
		}
	}
}

func TestCacheHitAndEviction(t *testing.T) {
	b, sess := newTestBuilder(t)
	seedEdges(t, sess, [2]string{"A", "B"})

	ctx := context.Background()
	opts := Options{Root: "A", Depth: 2, Direction: Callees}

	if _, err := b.Build(ctx, opts); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if _, err := b.Build(ctx, opts); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	hits, misses := b.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("expected 1 hit / 1 miss, got %d / %d", hits, misses)
	}

	// Different options are a different identity.
	if _, err := b.Build(ctx, Options{Root: "A", Depth: 3, Direction: Callees}); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	hits, misses = b.Stats()
	if hits != 1 || misses != 2 {
		t.Errorf("expected depth change to miss, got %d / %d", hits, misses)
	}

	// Fill past capacity; the first entry is evicted.
	for d := 10; d < 10+cacheCapacity; d++ {
		if _, err := b.Build(ctx, Options{Root: "A", Depth: d, Direction: Callees}); err != nil {
			t.Fatalf("build failed: %v", err)
		}
	}
	_, missesBefore := b.Stats()
	if _, err := b.Build(ctx, opts); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	_, missesAfter := b.Stats()
	if missesAfter != missesBefore+1 {
		t.Error("expected the oldest entry to have been evicted")
	}
}

func TestInvalidateDropsRootEntries(t *testing.T) {
	b, sess := newTestBuilder(t)
	seedEdges(t, sess, [2]string{"A", "B"})

	ctx := context.Background()
	if _, err := b.Build(ctx, Options{Root: "A", Depth: 2, Direction: Callees}); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if _, err := b.Build(ctx, Options{Root: "B", Depth: 2, Direction: Callers}); err != nil {
		t.Fatalf("build failed: %v", err)
	}

	b.Invalidate("A")

	if _, err := b.Build(ctx, Options{Root: "A", Depth: 2, Direction: Callees}); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if _, err := b.Build(ctx, Options{Root: "B", Depth: 2, Direction: Callers}); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	hits, misses := b.Stats()
	if hits != 1 {
		t.Errorf("expected B to still be cached, got %d hits", hits)
	}
	if misses != 3 {
		t.Errorf("expected A to rebuild after invalidation, got %d misses", misses)
	}
}

func TestAnnotationsReflectStoreFacts(t *testing.T) {
	b, sess := newTestBuilder(t)
	ctx := context.Background()
	seedEdges(t, sess, [2]string{"Safe", "Flagged"})

	err := sess.UpsertEntity(ctx, model.ProtectedEntity{
		Kind:     model.KindFunction,
		FilePath: "/src/app.go",
		Name:     "Flagged",
		Digest:   "abc",
		Origin:   model.OriginMarker,
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	err = sess.InsertError(ctx, model.ErrorRecord{
		Function: "Flagged", Kind: "panic", Message: "boom", Time: time.Now(),
	})
	if err != nil {
		t.Fatalf("insert error failed: %v", err)
	}
	err = sess.InsertChange(ctx, model.ChangeRecord{
		FilePath: "/src/app.go", Name: "Flagged",
		ChangeKind: model.ChangeKindModified,
		OldDigest:  "abc", NewDigest: "def", Time: time.Now(),
	})
	if err != nil {
		t.Fatalf("insert change failed: %v", err)
	}

	g, err := b.Build(ctx, Options{Root: "Safe", Depth: 1, Direction: Callees})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	nodes := nodeIDs(g)

	flagged := nodes["Flagged"]
	if !flagged.Protected || !flagged.Changed || !flagged.HasErrors {
		t.Errorf("expected Flagged fully annotated, got %+v", flagged)
	}
	if flagged.Module != "app" {
		t.Errorf("expected module from recorded edge, got %q", flagged.Module)
	}
	safe := nodes["Safe"]
	if safe.Protected || safe.Changed || safe.HasErrors {
		t.Errorf("expected Safe unannotated, got %+v", safe)
	}
}
