// Package testkit runs a real nestsync-stored handler for client-side tests.
package testkit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/nestsync/internal/api"
	"github.com/celerix-dev/nestsync/internal/server"
	"github.com/celerix-dev/nestsync/internal/store"
	"github.com/celerix-dev/nestsync/pkg/schema"
)

// ErrNetworkDown is returned by a Switch that is offline.
var ErrNetworkDown = errors.New("network is down")

// Switch is an http.RoundTripper that can simulate losing connectivity.
type Switch struct {
	mu      sync.Mutex
	offline bool
	next    http.RoundTripper
}

func (s *Switch) SetOnline(online bool) {
	s.mu.Lock()
	s.offline = !online
	s.mu.Unlock()
}

func (s *Switch) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	offline := s.offline
	s.mu.Unlock()
	if offline {
		return nil, ErrNetworkDown
	}
	return s.next.RoundTrip(req)
}

// StoreServer is an httptest.Server serving the API over a temporary sqlite database.
type StoreServer struct {
	*httptest.Server
	Store  *store.Store
	Switch *Switch

	mu       sync.Mutex
	requests map[string]int
}

func NewStoreServer(t testing.TB) *StoreServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(context.Background(), store.DriverSQLite, filepath.Join(t.TempDir(), "stored.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	s := &StoreServer{Store: st, requests: make(map[string]int)}
	router := server.NewRouter(&api.Handler{Store: st})
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.Method]++
		s.mu.Unlock()
		router.ServeHTTP(w, r)
	}))
	s.Switch = &Switch{next: s.Server.Client().Transport}

	t.Cleanup(func() {
		s.Server.Close()
		st.Close()
	})
	return s
}

// HTTPClient returns a client whose connectivity follows s.Switch.
func (s *StoreServer) HTTPClient() *http.Client {
	return &http.Client{Transport: s.Switch}
}

// SetOnline toggles connectivity for clients built with HTTPClient.
func (s *StoreServer) SetOnline(online bool) {
	s.Switch.SetOnline(online)
}

// Requests counts requests with the given method that reached the server.
func (s *StoreServer) Requests(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method]
}

// Record reads a row straight from the database.
func (s *StoreServer) Record(t testing.TB, code string) schema.UserRecord {
	t.Helper()
	rec, err := s.Store.Get(context.Background(), code)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", code, err)
	}
	return rec
}

// Seed writes p into the row for code, creating the row if needed.
func (s *StoreServer) Seed(t testing.TB, code string, p schema.Partial) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.Store.Insert(ctx, code); err != nil && !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("Failed to insert %s: %v", code, err)
	}
	if p.IsEmpty() {
		return
	}
	if _, err := s.Store.Update(ctx, code, p); err != nil {
		t.Fatalf("Failed to seed %s: %v", code, err)
	}
}
