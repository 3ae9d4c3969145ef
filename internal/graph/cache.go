package graph

import (
	"container/list"
	"sync"

	"github.com/nkarpov/codesentry/internal/model"
)

// cacheCapacity bounds the number of cached graph results. Graph builds are
// cheap enough that a small window covers the interactive access pattern.
const cacheCapacity = 10

type cacheEntry struct {
	key   string
	root  string
	graph *model.Graph
}

// cache is a small LRU keyed by the full request options. Lookups refresh
// recency; inserting past capacity evicts the least recently used entry.
type cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
	hits     int
	misses   int
}

func newCache(capacity int) *cache {
	return &cache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func (c *cache) get(key string) (*model.Graph, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).graph, true
}

func (c *cache) put(key, root string, g *model.Graph) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).graph = g
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, root: root, graph: g})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// invalidate drops every entry built for the given root.
func (c *cache) invalidate(root string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*cacheEntry).root == root {
			c.order.Remove(el)
			delete(c.entries, el.Value.(*cacheEntry).key)
		}
		el = next
	}
}

func (c *cache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.entries = make(map[string]*list.Element)
}

func (c *cache) stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Stats reports cache hit and miss counts since construction.
func (b *Builder) Stats() (hits, misses int) {
	return b.cache.stats()
}
