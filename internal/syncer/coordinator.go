// Package syncer decides, per access code, whether reads and writes go to the remote record
// store or to the local cache, and reconciles the two.
//
// Writes land in the cache first and are pushed later; the cache is only overwritten by a
// successful remote read, so a read never reverts a write that has not propagated yet.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/celerix-dev/nestsync/internal/cache"
	"github.com/celerix-dev/nestsync/internal/logging"
	"github.com/celerix-dev/nestsync/pkg/schema"
	"github.com/celerix-dev/nestsync/pkg/sdk/remote"
)

var errEntryGone = errors.New("cache entry gone")

// Coordinator owns the read and write paths between a Cache and a RecordStore.
type Coordinator struct {
	cache  *cache.Cache
	remote remote.RecordStore

	mu     sync.Mutex
	states map[string]State

	// pushMu serializes pushes so two flushes never race on the same pending set.
	pushMu sync.Mutex
}

func New(c *cache.Cache, r remote.RecordStore) *Coordinator {
	return &Coordinator{
		cache:  c,
		remote: r,
		states: make(map[string]State),
	}
}

func (c *Coordinator) setState(code string, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s == StateUnknown {
		delete(c.states, code)
		return
	}
	c.states[code] = s
}

// State reports the sync state of code. Codes never touched in this process report
// StateUnsyncedLocalOnly if the cache holds pending writes for them.
func (c *Coordinator) State(code string) State {
	c.mu.Lock()
	s, ok := c.states[code]
	c.mu.Unlock()
	if ok {
		return s
	}
	if e, cached := c.cache.Get(code); cached && e.HasPending() {
		return StateUnsyncedLocalOnly
	}
	return StateUnknown
}

// Cached returns the cached record for code.
func (c *Coordinator) Cached(code string) (schema.UserRecord, bool) {
	e, ok := c.cache.Get(code)
	if !ok {
		return schema.UserRecord{}, false
	}
	return e.Record, true
}

// Seed stores a record freshly confirmed by the remote store, such as the empty record
// returned when a code is issued.
func (c *Coordinator) Seed(rec schema.UserRecord) error {
	if err := c.cache.Put(rec.Code, cache.Entry{Record: rec.Clone()}); err != nil {
		return fmt.Errorf("seed cache: %w", err)
	}
	c.setState(rec.Code, StateSynced)
	return nil
}

// Login reads the record for code: pending local writes are pushed first, then the remote
// answer decides.
func (c *Coordinator) Login(ctx context.Context, code string) (schema.UserRecord, error) {
	if e, ok := c.cache.Get(code); ok && e.HasPending() {
		// Failure is logged by Push; the fetch below decides what to return.
		_ = c.Push(ctx, code)
	}

	res := c.remote.FetchByCode(ctx, code)
	cached, ok := c.cache.Get(code)
	d := resolveLogin(res, cached, ok)

	switch d.action {
	case overwriteCache:
		entry, err := c.cache.Update(code, func(cur cache.Entry, ok bool) (cache.Entry, error) {
			next := cache.Entry{Record: d.record.Clone(), Revision: cur.Revision}
			if ok && cur.HasPending() {
				// Unconfirmed writes stay on top of the remote copy; log entries
				// another device added meanwhile are kept in front of ours.
				next.Record.Apply(next.Record.Rebase(cur.Record.Select(cur.Pending)))
				next.Pending = cur.Pending
			}
			return next, nil
		})
		if err != nil {
			logging.Error("failed to refresh cache", err, logging.Fields{"code": code})
			c.setState(code, StateSynced)
			return d.record, nil
		}
		if entry.HasPending() {
			c.setState(code, StateUnsyncedLocalOnly)
		} else {
			c.setState(code, StateSynced)
		}
		return entry.Record, nil

	case evictCache:
		if ok {
			logging.Info("evicting cached record unknown to the store", logging.Fields{"code": code})
			if err := c.cache.Delete(code); err != nil {
				logging.Error("failed to evict cache entry", err, logging.Fields{"code": code})
			}
		}
		c.setState(code, StateUnknown)
		return schema.UserRecord{}, d.err
	}

	c.setState(code, d.state)
	if d.err != nil {
		logging.Warn("record store unreachable and nothing cached", logging.Fields{"code": code, "error": d.err.Error()})
		return schema.UserRecord{}, d.err
	}
	logging.Warn("record store unreachable, serving cached record", logging.Fields{"code": code, "error": errString(res.Err)})
	return d.record, nil
}

// Stage validates p and merges it into the cached record, marking its fields pending.
// It never touches the network. Event log and growth record partials must keep every entry
// already cached.
func (c *Coordinator) Stage(code string, p schema.Partial) (schema.UserRecord, error) {
	return c.Modify(code, func(schema.UserRecord) (schema.Partial, error) {
		return p, nil
	})
}

// Modify stages the partial fn derives from the current cached record. fn runs under the
// cache lock, so read-append-write helpers cannot lose a concurrent write.
func (c *Coordinator) Modify(code string, fn func(current schema.UserRecord) (schema.Partial, error)) (schema.UserRecord, error) {
	if err := schema.ValidateCode(code); err != nil {
		return schema.UserRecord{}, err
	}

	entry, err := c.cache.Update(code, func(e cache.Entry, ok bool) (cache.Entry, error) {
		if !ok {
			e.Record = schema.NewUserRecord(code)
		}
		p, err := fn(e.Record)
		if err != nil {
			return e, err
		}
		if err := p.Validate(); err != nil {
			return e, err
		}
		if err := schema.CheckAppendOnly(e.Record, p); err != nil {
			return e, err
		}
		e.Record.Apply(p)
		e.MarkPending(p.Fields()...)
		e.Revision++
		return e, nil
	})
	if err != nil {
		return schema.UserRecord{}, err
	}
	c.setState(code, StateUnsyncedLocalOnly)
	return entry.Record, nil
}

// Push sends the pending fields of code to the remote store. On failure the pending set is
// left in place for the next Push or Login; the error is logged and returned for callers that
// count outcomes.
func (c *Coordinator) Push(ctx context.Context, code string) error {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()

	entry, ok := c.cache.Get(code)
	if !ok || !entry.HasPending() {
		return nil
	}

	if err := c.remote.UpdateFields(ctx, code, entry.Record.Select(entry.Pending)); err != nil {
		fields := logging.Fields{"code": code, "fields": entry.Pending, "error": err.Error()}
		switch {
		case errors.Is(err, remote.ErrUnreachable):
			logging.Warn("remote write failed, kept in cache", fields)
			c.setState(code, StateRemoteUnreachable)
		case errors.Is(err, remote.ErrNotFound):
			logging.Warn("remote write rejected, code unknown to the store", fields)
		default:
			logging.Error("remote write rejected", err, logging.Fields{"code": code, "fields": entry.Pending})
		}
		return err
	}

	updated, err := c.cache.Update(code, func(cur cache.Entry, ok bool) (cache.Entry, error) {
		if !ok {
			return cur, errEntryGone
		}
		if cur.Revision == entry.Revision {
			cur.ClearPending(entry.Pending...)
		}
		return cur, nil
	})
	if errors.Is(err, errEntryGone) {
		return nil
	}
	if err != nil {
		logging.Error("failed to clear pending fields", err, logging.Fields{"code": code})
		return err
	}

	if updated.HasPending() {
		c.setState(code, StateUnsyncedLocalOnly)
	} else {
		c.setState(code, StateSynced)
	}
	logging.Debug("pushed pending fields", logging.Fields{"code": code, "fields": entry.Pending})
	return nil
}

// SyncPending pushes every cached code with pending fields and returns how many were pushed.
func (c *Coordinator) SyncPending(ctx context.Context) (int, error) {
	var (
		pushed int
		errs   []error
	)
	for _, code := range c.cache.Codes() {
		if err := ctx.Err(); err != nil {
			return pushed, err
		}
		e, ok := c.cache.Get(code)
		if !ok || !e.HasPending() {
			continue
		}
		if err := c.Push(ctx, code); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", code, err))
			continue
		}
		pushed++
	}
	return pushed, errors.Join(errs...)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
