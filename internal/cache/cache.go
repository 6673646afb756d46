// Package cache is the on-device store of the last known record for each access code.
// Writes go to disk before they return; the last Put wins.
package cache

import (
	"slices"
	"sync"
	"time"

	"github.com/celerix-dev/nestsync/pkg/schema"
)

// Entry is what the cache keeps for one code.
type Entry struct {
	Record schema.UserRecord `json:"record"`
	// Pending lists top-level fields written locally and not yet confirmed by the remote store.
	Pending   []string  `json:"pending,omitempty"`
	Revision  uint64    `json:"revision"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasPending reports whether some local write has not reached the remote store.
func (e Entry) HasPending() bool {
	return len(e.Pending) > 0
}

// MarkPending adds fields to the pending set, keeping it sorted and free of duplicates.
func (e *Entry) MarkPending(fields ...string) {
	for _, f := range fields {
		if !slices.Contains(e.Pending, f) {
			e.Pending = append(e.Pending, f)
		}
	}
	slices.Sort(e.Pending)
}

// ClearPending drops fields from the pending set.
func (e *Entry) ClearPending(fields ...string) {
	e.Pending = slices.DeleteFunc(e.Pending, func(f string) bool {
		return slices.Contains(fields, f)
	})
	if len(e.Pending) == 0 {
		e.Pending = nil
	}
}

func (e Entry) clone() Entry {
	out := e
	out.Record = e.Record.Clone()
	out.Pending = slices.Clone(e.Pending)
	return out
}

// Cache is a thread-safe map of entries backed by a Persistence.
type Cache struct {
	mu        sync.RWMutex
	data      map[string]Entry
	persister *Persistence
	now       func() time.Time
}

// Open loads every entry found by p and returns a cache writing through to it.
func Open(p *Persistence) (*Cache, error) {
	data, err := p.LoadAll()
	if err != nil {
		return nil, err
	}
	return New(data, p), nil
}

// New initializes a cache with existing entries. A nil persister keeps everything in memory.
func New(initial map[string]Entry, p *Persistence) *Cache {
	if initial == nil {
		initial = make(map[string]Entry)
	}
	return &Cache{
		data:      initial,
		persister: p,
		now:       time.Now,
	}
}

// Get returns a copy of the entry for code.
func (c *Cache) Get(code string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[code]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Put stores e for code and persists it before returning.
func (c *Cache) Put(code string, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store(code, e)
}

// Update applies fn to the current entry for code under the cache lock and stores the result.
// fn receives the zero Entry and false when code is not cached. If fn returns an error
// nothing is written.
func (c *Cache) Update(code string, fn func(e Entry, ok bool) (Entry, error)) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.data[code]
	if ok {
		current = current.clone()
	}
	next, err := fn(current, ok)
	if err != nil {
		return Entry{}, err
	}
	if err := c.store(code, next); err != nil {
		return Entry{}, err
	}
	return next.clone(), nil
}

// store must be called while holding c.mu.
func (c *Cache) store(code string, e Entry) error {
	e = e.clone()
	e.UpdatedAt = c.now().UTC()
	if c.persister != nil {
		if err := c.persister.Save(code, e); err != nil {
			return err
		}
	}
	c.data[code] = e
	return nil
}

// Delete forgets code.
func (c *Cache) Delete(code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.persister != nil {
		if err := c.persister.Remove(code); err != nil {
			return err
		}
	}
	delete(c.data, code)
	return nil
}

// Codes lists the cached codes in sorted order.
func (c *Cache) Codes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := make([]string, 0, len(c.data))
	for code := range c.data {
		list = append(list, code)
	}
	slices.Sort(list)
	return list
}
