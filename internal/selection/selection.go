// Package selection holds the id of the session the operator is viewing.
//
// The value lives in one cell that is readable without locks from any
// goroutine, so event handlers always see the latest selection. Listeners are
// notified synchronously, in the same call that changed the value.
package selection

import (
	"sync"
	"sync/atomic"
)

// Listener is called with the previous and the new selection.
type Listener func(prev, next string)

type Cell struct {
	current atomic.Pointer[string]
	gen     atomic.Uint64

	mu        sync.Mutex
	listeners map[uint64]Listener
	nextID    uint64
}

func New() *Cell {
	c := &Cell{listeners: make(map[uint64]Listener)}
	empty := ""
	c.current.Store(&empty)
	return c
}

// Current returns the selected session id, "" when nothing is open.
func (c *Cell) Current() string {
	return *c.current.Load()
}

// Is reports whether id is the selected session.
func (c *Cell) Is(id string) bool {
	return id != "" && c.Current() == id
}

// Generation increases on every Set, including re-selecting the same id.
func (c *Cell) Generation() uint64 {
	return c.gen.Load()
}

// Set stores id, bumps the generation and notifies listeners.
// It returns the new generation.
func (c *Cell) Set(id string) uint64 {
	v := id
	prev := *c.current.Swap(&v)
	g := c.gen.Add(1)

	c.mu.Lock()
	ls := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.mu.Unlock()

	for _, l := range ls {
		l(prev, id)
	}
	return g
}

// Clear deselects.
func (c *Cell) Clear() {
	c.Set("")
}

// Subscribe registers l and returns its unsubscribe func.
func (c *Cell) Subscribe(l Listener) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}
