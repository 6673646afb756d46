// Package remote talks to the hosted record store: one table of user records keyed by access
// code and one shared community message feed.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/celerix-dev/nestsync/pkg/schema"
)

var (
	// ErrNotFound is returned when the store has no record for the code.
	ErrNotFound = errors.New("code not found")
	// ErrUnreachable wraps every transport failure, timeout or server-side error.
	ErrUnreachable = errors.New("record store unreachable")
	// ErrDuplicate is returned when an insert collides with an existing key.
	ErrDuplicate = errors.New("already exists")
)

// DefaultPageSize caps the number of messages returned by ListRecentMessages.
const DefaultPageSize = 50

// DefaultTimeout bounds every request to the store.
const DefaultTimeout = 10 * time.Second

// Outcome is the result class of a fetch.
type Outcome int

const (
	Found Outcome = iota
	NotFound
	Unreachable
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case NotFound:
		return "not-found"
	case Unreachable:
		return "unreachable"
	}
	return "unknown"
}

// FetchResult keeps "no such code" apart from "could not ask".
// Record is set only for Found, Err only for Unreachable.
type FetchResult struct {
	Outcome Outcome
	Record  schema.UserRecord
	Err     error
}

func FoundResult(rec schema.UserRecord) FetchResult {
	return FetchResult{Outcome: Found, Record: rec}
}

func NotFoundResult() FetchResult {
	return FetchResult{Outcome: NotFound}
}

func UnreachableResult(err error) FetchResult {
	if !errors.Is(err, ErrUnreachable) {
		err = errors.Join(ErrUnreachable, err)
	}
	return FetchResult{Outcome: Unreachable, Err: err}
}

// RecordStore is the remote side of the sync: get/update/insert by code plus the message feed.
// Implementations never retry internally.
type RecordStore interface {
	FetchByCode(ctx context.Context, code string) FetchResult
	// UpdateFields merges only the fields present in p into the remote row.
	UpdateFields(ctx context.Context, code string, p schema.Partial) error
	// InsertNew creates an empty row for code, failing with ErrDuplicate if it exists.
	InsertNew(ctx context.Context, code string) (schema.UserRecord, error)
	// ListRecentMessages returns messages inside the trailing window, oldest first, capped
	// at the page size.
	ListRecentMessages(ctx context.Context, window time.Duration) ([]schema.CommunityMessage, error)
	AppendMessage(ctx context.Context, msg schema.CommunityMessage) error
	Ping(ctx context.Context) error
}

// ErrOffline is the cause reported by Offline.
var ErrOffline = errors.New("no record store configured")

// Offline is the RecordStore used when no remote URL is configured. Every call is unreachable,
// so the session runs purely on the local cache.
type Offline struct{}

func (Offline) FetchByCode(context.Context, string) FetchResult {
	return UnreachableResult(ErrOffline)
}

func (Offline) UpdateFields(context.Context, string, schema.Partial) error {
	return errors.Join(ErrUnreachable, ErrOffline)
}

func (Offline) InsertNew(context.Context, string) (schema.UserRecord, error) {
	return schema.UserRecord{}, errors.Join(ErrUnreachable, ErrOffline)
}

func (Offline) ListRecentMessages(context.Context, time.Duration) ([]schema.CommunityMessage, error) {
	return nil, errors.Join(ErrUnreachable, ErrOffline)
}

func (Offline) AppendMessage(context.Context, schema.CommunityMessage) error {
	return errors.Join(ErrUnreachable, ErrOffline)
}

func (Offline) Ping(context.Context) error {
	return errors.Join(ErrUnreachable, ErrOffline)
}
