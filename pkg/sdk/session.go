// Package sdk is the local-first persistence layer of nestsync. A Session answers reads from
// the remote record store when it can and from the on-disk cache when it cannot, and applies
// writes to the cache at once while pushing them to the store in the background.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/celerix-dev/nestsync/internal/cache"
	"github.com/celerix-dev/nestsync/internal/debounce"
	"github.com/celerix-dev/nestsync/internal/logging"
	"github.com/celerix-dev/nestsync/internal/syncer"
	"github.com/celerix-dev/nestsync/pkg/schema"
	"github.com/celerix-dev/nestsync/pkg/sdk/remote"
)

const (
	// DefaultDebounce is the quiet interval before a saved record is pushed.
	DefaultDebounce = time.Second
	// DefaultMessageWindow is how far back the community feed reaches.
	DefaultMessageWindow = 24 * time.Hour

	maxCodeAttempts = 5
)

// Options tunes a Session. Zero values take the defaults.
type Options struct {
	// Debounce is the quiet interval before a save is pushed. Negative pushes at once.
	Debounce      time.Duration
	MessageWindow time.Duration
	// Now is used for message and event timestamps. Defaults to time.Now.
	Now func() time.Time
}

// ConnectionStatus is the result of a CheckConnection probe.
type ConnectionStatus struct {
	Online    bool
	Err       error
	CheckedAt time.Time
}

// Session is the facade the front end talks to.
type Session struct {
	coord     *syncer.Coordinator
	remote    remote.RecordStore
	debouncer *debounce.Debouncer
	window    time.Duration
	now       func() time.Time

	mu     sync.Mutex
	closed bool
}

// NewSession wires a Session over an open cache and a record store.
func NewSession(c *cache.Cache, rs remote.RecordStore, opts Options) *Session {
	if opts.Debounce < 0 {
		opts.Debounce = 0
	} else if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.MessageWindow <= 0 {
		opts.MessageWindow = DefaultMessageWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Session{
		coord:  syncer.New(c, rs),
		remote: rs,
		window: opts.MessageWindow,
		now:    opts.Now,
	}
	s.debouncer = debounce.New(opts.Debounce, s.push)
	return s
}

// push is the debounced remote write. Push logs its own failures and keeps the fields pending.
func (s *Session) push(ctx context.Context, code string) {
	_ = s.coord.Push(ctx, code)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func normalize(code string) (string, error) {
	code = schema.NormalizeCode(code)
	if err := schema.ValidateCode(code); err != nil {
		return "", err
	}
	return code, nil
}

// GenerateCode issues a fresh access code with an empty record. A collision with an existing
// code is retried with a new one; an unreachable store fails the signup.
func (s *Session) GenerateCode(ctx context.Context) (string, error) {
	if s.isClosed() {
		return "", ErrClosed
	}
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := schema.NewCode()
		if err != nil {
			return "", err
		}

		rec, err := s.remote.InsertNew(ctx, code)
		if errors.Is(err, remote.ErrDuplicate) {
			logging.Debug("generated code already taken", logging.Fields{"attempt": attempt})
			continue
		}
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}

		if err := s.coord.Seed(rec); err != nil {
			logging.Error("failed to cache new record", err, logging.Fields{"code": code})
		}
		logging.Info("issued access code", logging.Fields{"code": code})
		return code, nil
	}
	return "", fmt.Errorf("generate code: %d collisions in a row: %w", maxCodeAttempts, ErrDuplicate)
}

// Login resolves code to its record. The remote copy wins when the store answers; a code the
// store does not know fails with ErrNotFound even if it is cached; when the store is
// unreachable the cached copy is returned.
func (s *Session) Login(ctx context.Context, code string) (schema.UserRecord, error) {
	code, err := normalize(code)
	if err != nil {
		return schema.UserRecord{}, err
	}
	// A debounced write for this code goes out before the read so the read cannot revert it.
	s.debouncer.Flush(ctx, code)
	return s.coord.Login(ctx, code)
}

// Save merges p into the cached record right away and schedules the remote write. Only
// validation errors are returned; remote failures are logged and retried on the next save or
// login.
func (s *Session) Save(ctx context.Context, code string, p schema.Partial) error {
	if s.isClosed() {
		return ErrClosed
	}
	code, err := normalize(code)
	if err != nil {
		return err
	}
	if _, err := s.coord.Stage(code, p); err != nil {
		return err
	}
	s.debouncer.Trigger(code)
	return nil
}

// AppendEvent adds e to the event log of code. A missing id or timestamp is filled in.
func (s *Session) AppendEvent(ctx context.Context, code string, e schema.LogEntry) (schema.LogEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	err := s.modify(code, func(cur schema.UserRecord) (schema.Partial, error) {
		events := append(slices.Clone(cur.EventLog), e)
		return schema.Partial{EventLog: events}, nil
	})
	return e, err
}

// AddGrowthRecord inserts g into the growth records of code, keeping them sorted by date.
func (s *Session) AddGrowthRecord(ctx context.Context, code string, g schema.GrowthRecord) (schema.GrowthRecord, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	err := s.modify(code, func(cur schema.UserRecord) (schema.Partial, error) {
		return schema.Partial{GrowthRecords: schema.InsertGrowthRecord(cur.GrowthRecords, g)}, nil
	})
	return g, err
}

func (s *Session) modify(code string, fn func(schema.UserRecord) (schema.Partial, error)) error {
	if s.isClosed() {
		return ErrClosed
	}
	code, err := normalize(code)
	if err != nil {
		return err
	}
	if _, ok := s.coord.Cached(code); !ok {
		return ErrNotLoaded
	}
	if _, err := s.coord.Modify(code, fn); err != nil {
		return err
	}
	s.debouncer.Trigger(code)
	return nil
}

// ListRecentMessages returns the community feed of the configured window, oldest first.
func (s *Session) ListRecentMessages(ctx context.Context) ([]schema.CommunityMessage, error) {
	msgs, err := s.remote.ListRecentMessages(ctx, s.window)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// PostMessage appends msg to the community feed and returns it as stored.
func (s *Session) PostMessage(ctx context.Context, msg schema.CommunityMessage) (schema.CommunityMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now().UTC()
	}
	if err := msg.Validate(); err != nil {
		return schema.CommunityMessage{}, err
	}
	if err := s.remote.AppendMessage(ctx, msg); err != nil {
		return schema.CommunityMessage{}, fmt.Errorf("post message: %w", err)
	}
	return msg, nil
}

// CheckConnection probes the record store.
func (s *Session) CheckConnection(ctx context.Context) ConnectionStatus {
	err := s.remote.Ping(ctx)
	if err != nil {
		logging.Warn("record store check failed", logging.Fields{"error": err.Error()})
	}
	return ConnectionStatus{Online: err == nil, Err: err, CheckedAt: s.now()}
}

// SyncPending pushes every cached write the store has not confirmed yet and returns how many
// codes were brought in sync.
func (s *Session) SyncPending(ctx context.Context) (int, error) {
	s.debouncer.FlushAll(ctx)
	n, err := s.coord.SyncPending(ctx)
	if err != nil {
		logging.Warn("some cached writes are still pending", logging.Fields{"pushed": n, "error": err.Error()})
	}
	return n, err
}

// State reports the sync state of code.
func (s *Session) State(code string) State {
	return s.coord.State(schema.NormalizeCode(code))
}

// Flush runs every scheduled remote write now.
func (s *Session) Flush(ctx context.Context) {
	s.debouncer.FlushAll(ctx)
}

// Close flushes scheduled writes. Writes after Close fail with ErrClosed.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.debouncer.Stop(ctx)
	return nil
}
