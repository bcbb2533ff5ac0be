package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/claude/grouplift/internal/live"
	"github.com/claude/grouplift/internal/models"
	"github.com/claude/grouplift/internal/rotation"
	"github.com/claude/grouplift/internal/sessions"
	"github.com/claude/grouplift/internal/storage"
)

// fakeStore is an in-memory Store for handler tests.
type fakeStore struct {
	mu        sync.Mutex
	users     map[string]models.User
	workouts  map[int64]models.WorkoutDefinition
	exercises map[int64]models.ExerciseDefinition
	sets      []models.SessionSetRow
	pingErr   error

	lastQueryUser     int64
	lastQueryExercise int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: map[string]models.User{
			"local": {ID: 1, Login: "local", DisplayName: "Local Dev User"},
			"alice": {ID: 2, Login: "alice", DisplayName: "Alice"},
			"bob":   {ID: 3, Login: "bob", DisplayName: "Bob"},
		},
		workouts: map[int64]models.WorkoutDefinition{
			1: {ID: 1, Name: "Push", Exercises: []models.ExerciseDefinition{
				{ID: 10, Name: "Bench Press", Sets: 1},
			}},
		},
		exercises: map[int64]models.ExerciseDefinition{},
	}
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) GetOrCreateUser(_ context.Context, login, displayName string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[login]; ok {
		return u.ID, nil
	}
	u := models.User{ID: int64(len(f.users) + 1), Login: login, DisplayName: displayName}
	f.users[login] = u
	return u.ID, nil
}

func (f *fakeStore) GetUser(_ context.Context, id int64) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, rotation.ErrNotFound
}

func (f *fakeStore) GetUsers(ctx context.Context, ids []int64) ([]models.User, error) {
	var out []models.User
	for _, id := range ids {
		if u, err := f.GetUser(ctx, id); err == nil {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) LoadWorkoutDefinition(_ context.Context, id int64) (models.WorkoutDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	def, ok := f.workouts[id]
	if !ok {
		return models.WorkoutDefinition{}, rotation.ErrNotFound
	}
	return def, nil
}

func (f *fakeStore) ListWorkouts(context.Context) ([]models.WorkoutDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WorkoutDefinition
	for _, w := range f.workouts {
		out = append(out, w)
	}
	return out, nil
}

func (f *fakeStore) CreateExercise(_ context.Context, ex models.ExerciseDefinition) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ex.ID = int64(100 + len(f.exercises))
	f.exercises[ex.ID] = ex
	return ex.ID, nil
}

func (f *fakeStore) CreateWorkout(_ context.Context, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.workouts {
		if w.Name == name {
			return 0, storage.ErrExists
		}
	}
	id := int64(len(f.workouts) + 1)
	f.workouts[id] = models.WorkoutDefinition{ID: id, Name: name}
	return id, nil
}

func (f *fakeStore) AddExercisesToWorkout(_ context.Context, workoutID int64, inputs []models.WorkoutExerciseInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.workouts[workoutID]
	if !ok {
		return rotation.ErrNotFound
	}
	for _, in := range inputs {
		ex, ok := f.exercises[in.ExerciseID]
		if !ok {
			return rotation.ErrNotFound
		}
		ex.Sets, ex.Reps = in.Sets, in.Reps
		w.Exercises = append(w.Exercises, ex)
	}
	f.workouts[workoutID] = w
	return nil
}

func (f *fakeStore) QuerySessionSets(_ context.Context, userID, exerciseID int64, _, _ time.Time) ([]models.SessionSetRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQueryUser, f.lastQueryExercise = userID, exerciseID
	var out []models.SessionSetRow
	for _, s := range f.sets {
		if s.UserID == userID && (exerciseID == 0 || s.ExerciseID == exerciseID) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) CountArchivedSessions(context.Context, int64) (int, error) {
	return 1, nil
}

type captureArchiver struct {
	mu    sync.Mutex
	views []rotation.View
}

func (a *captureArchiver) Enqueue(_ context.Context, v rotation.View) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.views = append(a.views, v)
	return nil
}

type testEnv struct {
	srv      *Server
	store    *fakeStore
	svc      *sessions.Service
	archiver *captureArchiver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newFakeStore()
	archiver := &captureArchiver{}
	svc := sessions.NewService(rotation.NewRegistry(), store, store, archiver, log)
	hub := live.NewHub(10, 8, log)
	svc.SetNotifier(hub)
	return &testEnv{
		srv:      New(store, svc, hub, "secret", log),
		store:    store,
		svc:      svc,
		archiver: archiver,
	}
}

func (e *testEnv) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(devUserHeader, user)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) rotation.View {
	t.Helper()
	var v rotation.View
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}

func startSession(t *testing.T, e *testEnv, participants []int64) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/sessions", "alice", map[string]any{
		"workout_id":   1,
		"participants": participants,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp["session_id"]) != 6 {
		t.Fatalf("session_id = %q, want 6 digits", resp["session_id"])
	}
	return resp["session_id"]
}

// TestHandleMeDefault verifies the /api/v1/me endpoint returns the dev user
// identity when no Tailscale middleware is active.
func TestHandleMeDefault(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	ctx := context.WithValue(req.Context(), userInfoKey, UserInfo{Login: "local", DisplayName: "Local Dev User"})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	s.handleMe(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var info UserInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if info.Login != "local" {
		t.Errorf("login = %q, want %q", info.Login, "local")
	}
	if info.DisplayName != "Local Dev User" {
		t.Errorf("display_name = %q, want %q", info.DisplayName, "Local Dev User")
	}
}

// TestHandleMeDevHeader verifies the dev identity picks up X-Dev-User.
func TestHandleMeDevHeader(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/me", "alice", nil)

	var info UserInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if info.Login != "alice" {
		t.Errorf("login = %q, want %q", info.Login, "alice")
	}
}

// TestSessionLifecycle runs a two-person session over HTTP until it
// finishes and is handed to the archiver.
func TestSessionLifecycle(t *testing.T) {
	e := newTestEnv(t)
	id := startSession(t, e, []int64{2, 3})

	rec := e.do(t, http.MethodGet, "/api/v1/sessions/"+id, "bob", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	view := decodeView(t, rec)
	if view.ActiveParticipantID == nil || *view.ActiveParticipantID != 2 {
		t.Fatalf("active participant = %v, want 2", view.ActiveParticipantID)
	}

	// Bob is not up yet.
	rec = e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/sets", "bob", map[string]any{"reps": 5, "weight": 60})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("out-of-turn status = %d, want 403", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/sets", "alice", map[string]any{"reps": 5, "weight": 60})
	if rec.Code != http.StatusOK {
		t.Fatalf("alice set status = %d, body = %s", rec.Code, rec.Body)
	}
	view = decodeView(t, rec)
	if *view.ActiveParticipantID != 3 {
		t.Errorf("active participant = %d, want 3", *view.ActiveParticipantID)
	}

	rec = e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/sets", "bob", map[string]any{"reps": 8, "weight": 40})
	if rec.Code != http.StatusOK {
		t.Fatalf("bob set status = %d, body = %s", rec.Code, rec.Body)
	}
	view = decodeView(t, rec)
	if view.State != rotation.StateFinished {
		t.Errorf("state = %q, want finished", view.State)
	}

	rec = e.do(t, http.MethodGet, "/api/v1/sessions/"+id, "bob", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("finished session status = %d, want 404", rec.Code)
	}

	e.svc.Close(context.Background())
	e.archiver.mu.Lock()
	defer e.archiver.mu.Unlock()
	if len(e.archiver.views) != 1 || e.archiver.views[0].ID != id {
		t.Errorf("archived = %+v, want session %s", e.archiver.views, id)
	}
}

func TestStartSessionDefaultsToCaller(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/api/v1/sessions", "bob", map[string]any{"workout_id": 1})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)

	view, ok := e.svc.GetSession(context.Background(), resp["session_id"])
	if !ok {
		t.Fatal("session not registered")
	}
	if len(view.Participants) != 1 || view.Participants[0].ID != 3 {
		t.Errorf("participants = %+v, want only bob", view.Participants)
	}
}

func TestStartSessionErrors(t *testing.T) {
	e := newTestEnv(t)
	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing workout", map[string]any{"participants": []int64{2}}, http.StatusBadRequest},
		{"unknown workout", map[string]any{"workout_id": 99, "participants": []int64{2}}, http.StatusNotFound},
		{"unknown participant", map[string]any{"workout_id": 1, "participants": []int64{2, 42}}, http.StatusNotFound},
		{"duplicate participant", map[string]any{"workout_id": 1, "participants": []int64{2, 2}}, http.StatusBadRequest},
		{"zero participant", map[string]any{"workout_id": 1, "participants": []int64{2, 0}}, http.StatusBadRequest},
		{"negative participant", map[string]any{"workout_id": 1, "participants": []int64{-3}}, http.StatusBadRequest},
		{"malformed", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/v1/sessions", "alice", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestCompleteSetValidation(t *testing.T) {
	e := newTestEnv(t)
	id := startSession(t, e, []int64{2, 3})

	rec := e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/sets", "alice", map[string]any{"reps": 5})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing weight status = %d, want 400", rec.Code)
	}
	rec = e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/sets", "alice", map[string]any{"reps": -1, "weight": 10})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative reps status = %d, want 400", rec.Code)
	}
	rec = e.do(t, http.MethodPost, "/api/v1/sessions/000000/sets", "alice", map[string]any{"reps": 5, "weight": 10})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", rec.Code)
	}
}

func TestSkipAndLeave(t *testing.T) {
	e := newTestEnv(t)
	id := startSession(t, e, []int64{2, 3})

	rec := e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/skip", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("skip status = %d, body = %s", rec.Code, rec.Body)
	}
	view := decodeView(t, rec)
	if *view.ActiveParticipantID != 3 {
		t.Errorf("active after skip = %d, want 3", *view.ActiveParticipantID)
	}

	rec = e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/leave", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("leave status = %d, body = %s", rec.Code, rec.Body)
	}
	view = decodeView(t, rec)
	if view.HasParticipant(2) {
		t.Error("alice still an active participant after leaving")
	}

	rec = e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/leave", "bob", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("last leave status = %d", rec.Code)
	}
	view = decodeView(t, rec)
	if view.State != rotation.StateAbandoned {
		t.Errorf("state = %q, want abandoned", view.State)
	}
}

func TestEditSet(t *testing.T) {
	e := newTestEnv(t)
	id := startSession(t, e, []int64{2, 3})
	e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/sets", "alice", map[string]any{"reps": 5, "weight": 60})

	rec := e.do(t, http.MethodPatch, "/api/v1/sessions/"+id+"/sets", "alice", map[string]any{
		"exercise_id": 10, "set_number": 1, "reps": 6,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("edit status = %d, body = %s", rec.Code, rec.Body)
	}
	p, _ := decodeView(t, rec).Participant(2)
	if len(p.Logs) != 1 || p.Logs[0].Reps[0] != 6 || p.Logs[0].Weight[0] != 60 {
		t.Errorf("logs = %+v, want reps 6 weight 60", p.Logs)
	}

	rec = e.do(t, http.MethodPatch, "/api/v1/sessions/"+id+"/sets", "alice", map[string]any{
		"exercise_id": 10, "set_number": 2, "reps": 6,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unrecorded set status = %d, want 400", rec.Code)
	}
	rec = e.do(t, http.MethodPatch, "/api/v1/sessions/"+id+"/sets", "alice", map[string]any{"exercise_id": 10})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing set_number status = %d, want 400", rec.Code)
	}
}

func TestListSessions(t *testing.T) {
	e := newTestEnv(t)
	startSession(t, e, []int64{2})
	startSession(t, e, []int64{3})

	rec := e.do(t, http.MethodGet, "/api/v1/sessions", "", nil)
	var views []rotation.View
	if err := json.NewDecoder(rec.Body).Decode(&views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 2 {
		t.Errorf("got %d sessions, want 2", len(views))
	}
}

func TestCatalogRequiresAPIKey(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/api/v1/workouts", "", map[string]any{"name": "Pull"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestCreateWorkoutWithExercises(t *testing.T) {
	e := newTestEnv(t)
	post := func(path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		json.NewEncoder(&buf).Encode(body)
		req := httptest.NewRequest(http.MethodPost, path, &buf)
		req.Header.Set("X-API-Key", "secret")
		rec := httptest.NewRecorder()
		e.srv.ServeHTTP(rec, req)
		return rec
	}

	rec := post("/api/v1/exercises", models.ExerciseDefinition{Name: "Row"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create exercise status = %d, body = %s", rec.Code, rec.Body)
	}
	var ex map[string]int64
	json.NewDecoder(rec.Body).Decode(&ex)

	rec = post("/api/v1/workouts", map[string]any{
		"name":      "Pull",
		"exercises": []map[string]any{{"exercise_id": ex["exercise_id"], "sets": 3}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create workout status = %d, body = %s", rec.Code, rec.Body)
	}
	var wk map[string]int64
	json.NewDecoder(rec.Body).Decode(&wk)

	def, err := e.store.LoadWorkoutDefinition(context.Background(), wk["workout_id"])
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(def.Exercises) != 1 || def.Exercises[0].Sets != 3 {
		t.Errorf("exercises = %+v, want one with 3 sets", def.Exercises)
	}

	rec = post("/api/v1/workouts", map[string]any{"name": "Pull"})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate workout status = %d, want 409", rec.Code)
	}

	rec = post("/api/v1/workouts/999/exercises", []map[string]any{{"exercise_id": ex["exercise_id"]}})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown workout status = %d, want 404", rec.Code)
	}
}

func TestGetWorkout(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/api/v1/workouts/1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var def models.WorkoutDefinition
	json.NewDecoder(rec.Body).Decode(&def)
	if def.Name != "Push" {
		t.Errorf("name = %q, want Push", def.Name)
	}

	if rec := e.do(t, http.MethodGet, "/api/v1/workouts/abc", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}
}

func TestProgressUsesCaller(t *testing.T) {
	e := newTestEnv(t)
	day := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	e.store.sets = []models.SessionSetRow{
		{UserID: 2, ExerciseID: 10, ExerciseName: "Bench Press", FinishedAt: day, SetNumber: 1, Reps: 5, WeightKg: 100},
		{UserID: 3, ExerciseID: 10, ExerciseName: "Bench Press", FinishedAt: day, SetNumber: 1, Reps: 5, WeightKg: 50},
	}

	rec := e.do(t, http.MethodGet, "/api/v1/progress?start=2026-03-01&end=2026-03-31&exercise_id=10", "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp struct {
		Sessions int     `json:"sessions"`
		VolumeKg float64 `json:"volume_kg"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.VolumeKg != 500 {
		t.Errorf("volume = %v, want 500", resp.VolumeKg)
	}
	if e.store.lastQueryUser != 2 || e.store.lastQueryExercise != 10 {
		t.Errorf("query user/exercise = %d/%d, want 2/10", e.store.lastQueryUser, e.store.lastQueryExercise)
	}

	if rec := e.do(t, http.MethodGet, "/api/v1/history/sets?start=nope", "alice", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad start status = %d, want 400", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	if rec := e.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	e.store.pingErr = context.DeadlineExceeded
	if rec := e.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestLiveUnknownSession(t *testing.T) {
	e := newTestEnv(t)
	if rec := e.do(t, http.MethodGet, "/api/v1/sessions/123456/live", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestMCPDisabled(t *testing.T) {
	e := newTestEnv(t)
	if rec := e.do(t, http.MethodPost, "/mcp", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestParseTimeRange(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?start=2026-01-01&end=2026-01-31", nil)
	start, end, err := parseTimeRange(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !start.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", start)
	}
	if !end.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %v, want end of Jan 31", end)
	}

	req = httptest.NewRequest(http.MethodGet, "/?start=2026-02-01&end=2026-01-01", nil)
	if _, _, err := parseTimeRange(req); err == nil {
		t.Error("expected error for end before start")
	}
}
