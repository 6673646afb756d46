package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/nestsync/internal/store"
	"github.com/celerix-dev/nestsync/pkg/schema"
)

func setupTestRouter(t *testing.T) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := store.Open(context.Background(), store.DriverSQLite, filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h := &Handler{Store: s, MaxPageSize: 50}
	r := gin.New()
	h.Register(r)
	return r, h
}

func do(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			json.NewEncoder(&buf).Encode(b)
		}
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := do(r, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestCreateAndGetUser(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := do(r, "POST", "/users", map[string]string{"code": "ABC234"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	w = do(r, "GET", "/users/ABC234", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var raw map[string]any
	json.Unmarshal(w.Body.Bytes(), &raw)
	if raw["profile"] != nil {
		t.Errorf("Expected null profile, got %v", raw["profile"])
	}
	if _, ok := raw["eventLog"].([]any); !ok {
		t.Errorf("Expected eventLog array, got %v", raw["eventLog"])
	}
	if _, ok := raw["createdAt"].(string); !ok {
		t.Errorf("Expected createdAt string, got %v", raw["createdAt"])
	}
}

func TestCreateUserConflictAndValidation(t *testing.T) {
	r, _ := setupTestRouter(t)

	do(r, "POST", "/users", map[string]string{"code": "ABC234"})
	if w := do(r, "POST", "/users", map[string]string{"code": "ABC234"}); w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
	if w := do(r, "POST", "/users", map[string]string{"code": "bad"}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if w := do(r, "POST", "/users", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for missing code, got %d", w.Code)
	}
}

func TestGetUnknownUser(t *testing.T) {
	r, _ := setupTestRouter(t)

	if w := do(r, "GET", "/users/ZZZ999", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestUpdateUser(t *testing.T) {
	r, _ := setupTestRouter(t)
	do(r, "POST", "/users", map[string]string{"code": "ABC234"})

	profile := map[string]any{"name": "Ana", "birthDate": "2024-01-10T00:00:00Z", "gender": "girl"}
	if w := do(r, "PATCH", "/users/ABC234", map[string]any{"profile": profile}); w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	growth := []map[string]any{
		{"id": "g2", "date": "2024-03-01T00:00:00Z", "weight": 5.5, "ageInMonths": 2},
		{"id": "g1", "date": "2024-02-01T00:00:00Z", "weight": 4.5, "ageInMonths": 1},
	}
	w := do(r, "PATCH", "/users/ABC234", map[string]any{"growthRecords": growth})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var rec schema.UserRecord
	json.Unmarshal(w.Body.Bytes(), &rec)
	if rec.Profile == nil || rec.Profile.Name != "Ana" {
		t.Errorf("Profile was overwritten: %+v", rec.Profile)
	}
	if len(rec.GrowthRecords) != 2 || rec.GrowthRecords[0].ID != "g1" {
		t.Errorf("Growth records not sorted: %+v", rec.GrowthRecords)
	}
}

func TestUpdateUserErrors(t *testing.T) {
	r, _ := setupTestRouter(t)
	do(r, "POST", "/users", map[string]string{"code": "ABC234"})

	if w := do(r, "PATCH", "/users/ABC234", "invalid"); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid json, got %d", w.Code)
	}
	if w := do(r, "PATCH", "/users/ABC234", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for empty update, got %d", w.Code)
	}
	if w := do(r, "PATCH", "/users/ZZZ999", map[string]any{"eventLog": []any{}}); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestUpdateUserEventLogIsAppendOnly(t *testing.T) {
	r, _ := setupTestRouter(t)
	do(r, "POST", "/users", map[string]string{"code": "ABC234"})

	event := map[string]any{"id": "e1", "type": "feeding", "timestamp": "2024-02-01T08:00:00Z"}
	if w := do(r, "PATCH", "/users/ABC234", map[string]any{"eventLog": []any{event}}); w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := do(r, "PATCH", "/users/ABC234", map[string]any{"eventLog": []any{}}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 when dropping events, got %d", w.Code)
	}

	w := do(r, "GET", "/users/ABC234", nil)
	var rec schema.UserRecord
	json.Unmarshal(w.Body.Bytes(), &rec)
	if len(rec.EventLog) != 1 {
		t.Errorf("Event log was rewritten: %+v", rec.EventLog)
	}
}

func TestMessages(t *testing.T) {
	r, h := setupTestRouter(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h.Now = func() time.Time { return now }
	h.MaxPageSize = 3

	for i := 0; i < 6; i++ {
		msg := schema.CommunityMessage{
			ID:          fmt.Sprintf("m%d", i),
			AuthorLabel: "Mae",
			Text:        "bom dia",
			Timestamp:   now.Add(-time.Duration(i) * 10 * time.Hour),
		}
		if w := do(r, "POST", "/messages", msg); w.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
		}
	}

	w := do(r, "GET", "/messages", nil)
	var msgs []schema.CommunityMessage
	json.Unmarshal(w.Body.Bytes(), &msgs)
	// Default window is 24h: m0 (0h), m1 (10h), m2 (20h).
	if len(msgs) != 3 || msgs[0].ID != "m2" || msgs[2].ID != "m0" {
		t.Errorf("Unexpected feed: %+v", msgs)
	}

	w = do(r, "GET", "/messages?windowHours=100&limit=2", nil)
	json.Unmarshal(w.Body.Bytes(), &msgs)
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m0" {
		t.Errorf("Unexpected feed: %+v", msgs)
	}

	w = do(r, "GET", "/messages?windowHours=100&limit=500", nil)
	json.Unmarshal(w.Body.Bytes(), &msgs)
	if len(msgs) != 3 {
		t.Errorf("Limit must be capped at the page size, got %d", len(msgs))
	}

	if w := do(r, "GET", "/messages?windowHours=-1", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestPostInvalidMessage(t *testing.T) {
	r, _ := setupTestRouter(t)

	if w := do(r, "POST", "/messages", map[string]any{"id": "m1"}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}
