package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/claude/grouplift/internal/models"
	"github.com/claude/grouplift/internal/rotation"
)

// newTestServer creates an httptest server that routes requests to handler functions
// keyed by path. Verifies the HTTP client sends correct paths and query params.
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

// TestLoadWorkoutDefinition verifies the workout is fetched by id and
// decoded.
func TestLoadWorkoutDefinition(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/workouts/7": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, models.WorkoutDefinition{ID: 7, Name: "Push", Exercises: []models.ExerciseDefinition{
				{ID: 1, Name: "Bench Press", Sets: 3},
			}})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL, "")
	def, err := client.LoadWorkoutDefinition(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Name != "Push" || len(def.Exercises) != 1 {
		t.Errorf("def = %+v, want Push with one exercise", def)
	}
}

// TestLoadWorkoutDefinitionNotFound verifies a 404 maps to ErrNotFound.
func TestLoadWorkoutDefinitionNotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	defer ts.Close()

	_, err := NewHTTPClient(ts.URL, "").LoadWorkoutDefinition(context.Background(), 99)
	if !errors.Is(err, rotation.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// TestQuerySessionSets verifies the time range, exercise filter and dev
// user header are sent.
func TestQuerySessionSets(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/history/sets": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("exercise_id"); got != "5" {
				t.Errorf("exercise_id=%q, want 5", got)
			}
			if got := r.URL.Query().Get("start"); got != "2026-01-01T00:00:00Z" {
				t.Errorf("start=%q", got)
			}
			if got := r.Header.Get("X-Dev-User"); got != "alice" {
				t.Errorf("X-Dev-User=%q, want alice", got)
			}
			writeTestJSON(t, w, []models.SessionSetRow{{ExerciseID: 5, Reps: 8, WeightKg: 60}})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL, "alice")
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows, err := client.QuerySessionSets(context.Background(), 0, 5, start, start.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Reps != 8 {
		t.Errorf("rows = %+v", rows)
	}
}

// TestSessions verifies live session lookups and that a missing session
// reports false.
func TestSessions(t *testing.T) {
	active := int64(2)
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/sessions": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, []rotation.View{{ID: "123456", State: rotation.StateActive}})
		},
		"/api/v1/sessions/123456": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, rotation.View{ID: "123456", ActiveParticipantID: &active})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL, "")
	if views := client.ListSessions(context.Background()); len(views) != 1 {
		t.Fatalf("got %d sessions, want 1", len(views))
	}
	view, ok := client.GetSession(context.Background(), "123456")
	if !ok || view.ActiveParticipantID == nil || *view.ActiveParticipantID != 2 {
		t.Errorf("view = %+v, ok = %v", view, ok)
	}
	if _, ok := client.GetSession(context.Background(), "654321"); ok {
		t.Error("expected missing session")
	}
}

// TestServerError verifies non-200 responses surface as errors.
func TestServerError(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/history/sets": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
	})
	defer ts.Close()

	now := time.Now()
	if _, err := NewHTTPClient(ts.URL, "").QuerySessionSets(context.Background(), 0, 0, now, now); err == nil {
		t.Fatal("expected error")
	}
}
