package sdk

import (
	"context"
	"errors"

	"github.com/celerix-dev/nestsync/internal/syncer"
	"github.com/celerix-dev/nestsync/pkg/schema"
	"github.com/celerix-dev/nestsync/pkg/sdk/remote"
)

var (
	// ErrNotFound is returned when the remote store does not know a code. The local cache
	// never masks it.
	ErrNotFound = remote.ErrNotFound
	// ErrUnreachable is returned when the remote store cannot be reached and nothing usable
	// is cached.
	ErrUnreachable = remote.ErrUnreachable
	// ErrDuplicate is returned when an id or code already exists.
	ErrDuplicate = remote.ErrDuplicate
	// ErrNotLoaded is returned by append helpers for a code with no cached record.
	ErrNotLoaded = errors.New("record not loaded, log in first")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)

// State is the sync state of one code.
type State = syncer.State

const (
	StateUnknown           = syncer.StateUnknown
	StateUnsyncedLocalOnly = syncer.StateUnsyncedLocalOnly
	StateSynced            = syncer.StateSynced
	StateRemoteUnreachable = syncer.StateRemoteUnreachable
)

// --- Functional Interfaces ---

// RecordReader resolves an access code to its record.
type RecordReader interface {
	Login(ctx context.Context, code string) (schema.UserRecord, error)
}

// RecordWriter stages local-first writes.
type RecordWriter interface {
	Save(ctx context.Context, code string, p schema.Partial) error
	AppendEvent(ctx context.Context, code string, e schema.LogEntry) (schema.LogEntry, error)
	AddGrowthRecord(ctx context.Context, code string, g schema.GrowthRecord) (schema.GrowthRecord, error)
}

// Signup issues new access codes.
type Signup interface {
	GenerateCode(ctx context.Context) (string, error)
}

// Community reads and posts to the shared message feed.
type Community interface {
	ListRecentMessages(ctx context.Context) ([]schema.CommunityMessage, error)
	PostMessage(ctx context.Context, msg schema.CommunityMessage) (schema.CommunityMessage, error)
}

// --- Composite Interface ---

// NestSync is everything a front end needs from the persistence layer.
type NestSync interface {
	RecordReader
	RecordWriter
	Signup
	Community

	CheckConnection(ctx context.Context) ConnectionStatus
	SyncPending(ctx context.Context) (int, error)
	State(code string) State
	Close(ctx context.Context) error
}

var _ NestSync = (*Session)(nil)
