// ABOUTME: TTL-bounded, size-bounded set of recently claimed job ids.
// ABOUTME: Used by the bridge dispatcher to skip jobs it has already taken.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type claim struct {
	at   time.Time
	elem *list.Element
}

// Cache remembers claimed keys for a fixed window. The oldest claim is
// evicted when the cache is full; expired claims are swept once a minute.
type Cache struct {
	mu       sync.Mutex
	claims   map[string]*claim
	order    *list.List // oldest at front
	ttl      time.Duration
	capacity int
	now      func() time.Time

	done   chan struct{}
	closed bool
}

// New returns a Cache that keeps claims for ttl and holds at most capacity
// keys. Close must be called to stop the sweeper.
func New(ttl time.Duration, capacity int) *Cache {
	return newCache(ttl, capacity, time.Now)
}

func newCache(ttl time.Duration, capacity int, now func() time.Time) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	c := &Cache{
		claims:   make(map[string]*claim),
		order:    list.New(),
		ttl:      ttl,
		capacity: capacity,
		now:      now,
		done:     make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Claim marks key as taken. It reports false when the key was already
// claimed inside the window, in which case the caller must not process it.
func (c *Cache) Claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if cl, ok := c.claims[key]; ok {
		if now.Sub(cl.at) < c.ttl {
			return false
		}
		cl.at = now
		c.order.MoveToBack(cl.elem)
		return true
	}

	if len(c.claims) >= c.capacity {
		c.evictOldestLocked()
	}
	c.claims[key] = &claim{at: now, elem: c.order.PushBack(key)}
	return true
}

// Seen reports whether key holds a live claim.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cl, ok := c.claims[key]
	return ok && c.now().Sub(cl.at) < c.ttl
}

// Release drops a claim so the key can be claimed again.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.claims[key]; ok {
		c.order.Remove(cl.elem)
		delete(c.claims, key)
	}
}

// Len returns the number of keys held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.claims)
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.claims, key)
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep drops every expired claim.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for e := c.order.Front(); e != nil; {
		next := e.Next()
		key, _ := e.Value.(string)
		if cl, ok := c.claims[key]; ok && now.Sub(cl.at) >= c.ttl {
			c.order.Remove(e)
			delete(c.claims, key)
		}
		e = next
	}
}

// Close stops the sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.done)
	}
}
