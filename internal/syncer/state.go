package syncer

import (
	"github.com/celerix-dev/nestsync/internal/cache"
	"github.com/celerix-dev/nestsync/pkg/schema"
	"github.com/celerix-dev/nestsync/pkg/sdk/remote"
)

// State is the sync state of one code as seen by this device.
type State int

const (
	StateUnknown State = iota
	// StateUnsyncedLocalOnly means the cache holds writes the remote store has not confirmed.
	StateUnsyncedLocalOnly
	StateSynced
	// StateRemoteUnreachable means the last attempt to reach the store failed and the
	// session is running on cached data.
	StateRemoteUnreachable
)

func (s State) String() string {
	switch s {
	case StateUnsyncedLocalOnly:
		return "unsynced-local-only"
	case StateSynced:
		return "synced"
	case StateRemoteUnreachable:
		return "remote-unreachable"
	}
	return "unknown"
}

type cacheAction int

const (
	keepCache cacheAction = iota
	overwriteCache
	evictCache
)

// loginDecision is what Login does with one fetch outcome.
type loginDecision struct {
	record schema.UserRecord
	found  bool
	state  State
	action cacheAction
	err    error
}

// resolveLogin maps a fetch outcome and the cached entry to the login result.
// Remote wins when it answers; a NotFound is final even if the cache knows the code; only an
// unreachable store falls back to the cache.
func resolveLogin(res remote.FetchResult, cached cache.Entry, ok bool) loginDecision {
	switch res.Outcome {
	case remote.Found:
		return loginDecision{record: res.Record, found: true, state: StateSynced, action: overwriteCache}
	case remote.NotFound:
		return loginDecision{state: StateUnknown, action: evictCache, err: remote.ErrNotFound}
	}
	if ok {
		return loginDecision{record: cached.Record, found: true, state: StateRemoteUnreachable, action: keepCache}
	}
	err := res.Err
	if err == nil {
		err = remote.ErrUnreachable
	}
	return loginDecision{state: StateRemoteUnreachable, action: keepCache, err: err}
}
