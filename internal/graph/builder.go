// Package graph assembles call graphs from recorded call edges. Graphs are
// built by bounded breadth-first traversal around a root function, or
// globally when no root is given, and annotated with protection, change and
// error facts from the store.
package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/nkarpov/codesentry/internal/model"
	"github.com/nkarpov/codesentry/internal/store"
)

// Direction selects which adjacency a traversal follows.
type Direction string

const (
	Callees Direction = "callees"
	Callers Direction = "callers"
	Both    Direction = "both"
)

const (
	// DefaultDepth bounds traversals when the caller passes zero.
	DefaultDepth = 2

	// defaultMinImportance is the pruning cutoff applied when Simplify is
	// requested without an explicit value. Importance is a node's incident
	// edge count normalized by the highest count in the graph.
	defaultMinImportance = 0.3
)

// Options describe one graph request. The zero Root means the full graph of
// every recorded edge.
type Options struct {
	Root          string
	Depth         int
	Direction     Direction
	Simplify      bool
	MinImportance float64
}

func (o Options) normalized() Options {
	if o.Depth <= 0 {
		o.Depth = DefaultDepth
	}
	if o.Direction == "" {
		o.Direction = Both
	}
	if o.Simplify && o.MinImportance <= 0 {
		o.MinImportance = defaultMinImportance
	}
	return o
}

// key is the cache identity of a request. Two requests that differ in any
// option are distinct cache entries.
func (o Options) key() string {
	return fmt.Sprintf("%s|%d|%s|%t|%g", o.Root, o.Depth, o.Direction, o.Simplify, o.MinImportance)
}

// Builder turns recorded call edges into renderable graphs, caching recent
// results until traced data or protection state changes.
type Builder struct {
	sess  *store.Session
	cache *cache
}

func NewBuilder(sess *store.Session) *Builder {
	return &Builder{sess: sess, cache: newCache(cacheCapacity)}
}

// Build returns the graph for opts, from cache when a previous identical
// request is still valid.
func (b *Builder) Build(ctx context.Context, opts Options) (*model.Graph, error) {
	opts = opts.normalized()

	if g, ok := b.cache.get(opts.key()); ok {
		return g, nil
	}

	var (
		g   *model.Graph
		err error
	)
	if opts.Root == "" {
		g, err = b.global(ctx, opts)
	} else {
		g, err = b.traverse(ctx, opts)
	}
	if err != nil {
		return nil, err
	}

	if opts.Simplify {
		prune(g, opts)
	}
	if err := b.annotate(ctx, g, opts.Root); err != nil {
		return nil, err
	}

	b.cache.put(opts.key(), opts.Root, g)
	return g, nil
}

// Invalidate drops cached graphs rooted at fn, plus all global graphs,
// which may contain any function.
func (b *Builder) Invalidate(fn string) {
	b.cache.invalidate(fn)
	b.cache.invalidate("")
}

// InvalidateAll empties the cache.
func (b *Builder) InvalidateAll() {
	b.cache.clear()
}

// traverse runs a breadth-first walk from the root. Nodes discovered at
// opts.Depth are included but not expanded further.
func (b *Builder) traverse(ctx context.Context, opts Options) (*model.Graph, error) {
	type item struct {
		name  string
		depth int
	}

	g := &model.Graph{}
	depths := map[string]int{opts.Root: 0}
	seenEdge := map[[2]string]bool{}

	queue := []item{{name: opts.Root, depth: 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= opts.Depth {
			continue
		}

		if opts.Direction == Callees || opts.Direction == Both {
			callees, err := b.sess.Callees(ctx, cur.name)
			if err != nil {
				return nil, fmt.Errorf("graph: expand callees of %s: %w", cur.name, err)
			}
			for _, next := range callees {
				addEdge(g, seenEdge, cur.name, next)
				if enqueue(depths, next, cur.depth+1) {
					queue = append(queue, item{name: next, depth: cur.depth + 1})
				}
			}
		}
		if opts.Direction == Callers || opts.Direction == Both {
			callers, err := b.sess.Callers(ctx, cur.name)
			if err != nil {
				return nil, fmt.Errorf("graph: expand callers of %s: %w", cur.name, err)
			}
			for _, next := range callers {
				addEdge(g, seenEdge, next, cur.name)
				if enqueue(depths, next, cur.depth+1) {
					queue = append(queue, item{name: next, depth: cur.depth + 1})
				}
			}
		}
	}

	names := make([]string, 0, len(depths))
	for name := range depths {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if depths[names[i]] != depths[names[j]] {
			return depths[names[i]] < depths[names[j]]
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		g.Nodes = append(g.Nodes, model.Node{ID: name, Label: name, Depth: depths[name]})
	}
	return g, nil
}

// global builds the graph of every recorded edge, with edge weights equal
// to observed invocation counts.
func (b *Builder) global(ctx context.Context, _ Options) (*model.Graph, error) {
	edges, err := b.sess.DistinctEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: load edges: %w", err)
	}

	g := &model.Graph{Edges: edges}
	seen := map[string]bool{}
	for _, e := range edges {
		for _, name := range []string{e.Source, e.Target} {
			if !seen[name] {
				seen[name] = true
				g.Nodes = append(g.Nodes, model.Node{ID: name, Label: name})
			}
		}
	}
	return g, nil
}

// addEdge records the edge once per distinct (source, target) pair.
func addEdge(g *model.Graph, seen map[[2]string]bool, source, target string) {
	key := [2]string{source, target}
	if seen[key] {
		return
	}
	seen[key] = true
	g.Edges = append(g.Edges, model.GraphEdge{Source: source, Target: target, Weight: 1})
}

// enqueue records the depth of a newly discovered node and reports whether
// it still needs expansion.
func enqueue(depths map[string]int, name string, depth int) bool {
	if _, ok := depths[name]; ok {
		return false
	}
	depths[name] = depth
	return true
}

// prune drops unimportant nodes after traversal. A node's importance is
// its incident edge count divided by the highest count in the graph, so
// the cutoff adapts to how connected the graph is. The root is always
// kept.
func prune(g *model.Graph, opts Options) {
	degree := map[string]int{}
	for _, e := range g.Edges {
		degree[e.Source]++
		degree[e.Target]++
	}
	maxDegree := 1
	for _, d := range degree {
		if d > maxDegree {
			maxDegree = d
		}
	}

	keep := map[string]bool{}
	var nodes []model.Node
	for _, n := range g.Nodes {
		importance := float64(degree[n.ID]) / float64(maxDegree)
		if n.ID == opts.Root || importance >= opts.MinImportance {
			keep[n.ID] = true
			nodes = append(nodes, n)
		}
	}
	var edges []model.GraphEdge
	for _, e := range g.Edges {
		if keep[e.Source] && keep[e.Target] {
			edges = append(edges, e)
		}
	}
	g.Nodes = nodes
	g.Edges = edges
}

// annotate attaches store facts and sizing to every node.
func (b *Builder) annotate(ctx context.Context, g *model.Graph, root string) error {
	degree := map[string]int{}
	for _, e := range g.Edges {
		degree[e.Source] += e.Weight
		degree[e.Target] += e.Weight
	}

	for i := range g.Nodes {
		n := &g.Nodes[i]
		facts, err := b.sess.FunctionFacts(ctx, n.ID)
		if err != nil {
			return fmt.Errorf("graph: annotate %s: %w", n.ID, err)
		}
		n.Module = facts.Module
		n.Protected = facts.Protected
		n.Changed = facts.Changed
		n.HasErrors = facts.HasErrors
		n.Center = n.ID == root && root != ""
		n.Size = float64(10 + degree[n.ID])
	}
	return nil
}
