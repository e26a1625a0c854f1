package components

import (
	"container/list"
	"sync"

	"github.com/google/uuid"
)

// idCache is a bounded LRU mapping (collection, source-id) keys to canonical
// ids, used by reference resolution. Per-worker, flushed between full-sync
// runs to bound staleness.
type idCache struct {
	mu    sync.Mutex
	max   int
	items map[string]*list.Element
	order *list.List
}

type idCacheEntry struct {
	key string
	id  uuid.UUID
}

func newIDCache(max int) *idCache {
	if max <= 0 {
		max = 10000
	}
	return &idCache{max: max, items: make(map[string]*list.Element), order: list.New()}
}

func (c *idCache) get(key string) (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return uuid.Nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*idCacheEntry).id, true
}

func (c *idCache) put(key string, id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*idCacheEntry).id = id
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&idCacheEntry{key: key, id: id})
	if c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*idCacheEntry).key)
	}
}

func (c *idCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}
