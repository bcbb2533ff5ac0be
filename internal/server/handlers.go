package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/claude/grouplift/internal/analytics"
	"github.com/claude/grouplift/internal/models"
	"github.com/claude/grouplift/internal/rotation"
	"github.com/claude/grouplift/internal/storage"
)

type startSessionRequest struct {
	WorkoutID    int64   `json:"workout_id"`
	Participants []int64 `json:"participants"`
}

type completeSetRequest struct {
	Reps   *int     `json:"reps"`
	Weight *float64 `json:"weight"`
}

type editSetRequest struct {
	ExerciseID int64    `json:"exercise_id"`
	SetNumber  int      `json:"set_number"`
	Reps       *int     `json:"reps"`
	Weight     *float64 `json:"weight"`
}

type createWorkoutRequest struct {
	Name      string                        `json:"name"`
	Exercises []models.WorkoutExerciseInput `json:"exercises"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.WorkoutID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "workout_id required"})
		return
	}
	for _, pid := range req.Participants {
		if pid <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid participant id %d", pid)})
			return
		}
	}
	participants := req.Participants
	if len(participants) == 0 {
		// Solo session for the caller.
		participants = []int64{userIDFromContext(r)}
	}

	id, err := s.sessions.StartSession(r.Context(), req.WorkoutID, participants)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.ListSessions(r.Context()))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, ok := s.sessions.GetSession(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCompleteSet(w http.ResponseWriter, r *http.Request) {
	var req completeSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.Reps == nil || req.Weight == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reps and weight are required"})
		return
	}
	if *req.Reps < 0 || *req.Weight < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reps and weight must not be negative"})
		return
	}

	view, err := s.sessions.CompleteSet(r.Context(), chi.URLParam(r, "id"), userIDFromContext(r), *req.Reps, *req.Weight)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleEditSet(w http.ResponseWriter, r *http.Request) {
	var req editSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.ExerciseID <= 0 || req.SetNumber < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exercise_id and set_number are required"})
		return
	}
	if (req.Reps != nil && *req.Reps < 0) || (req.Weight != nil && *req.Weight < 0) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reps and weight must not be negative"})
		return
	}

	view, err := s.sessions.EditSet(r.Context(), chi.URLParam(r, "id"), userIDFromContext(r), req.ExerciseID, req.SetNumber, req.Reps, req.Weight)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.Skip(r.Context(), chi.URLParam(r, "id"), userIDFromContext(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.Leave(r.Context(), chi.URLParam(r, "id"), userIDFromContext(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.sessions.GetSession(r.Context(), id); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	s.hub.ServeSession(w, r, id, func() (rotation.View, bool) {
		return s.sessions.GetSession(r.Context(), id)
	})
}

func (s *Server) handleListWorkouts(w http.ResponseWriter, r *http.Request) {
	workouts, err := s.store.ListWorkouts(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workouts)
}

func (s *Server) handleGetWorkout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	def, err := s.store.LoadWorkoutDefinition(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleCreateWorkout(w http.ResponseWriter, r *http.Request) {
	var req createWorkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name required"})
		return
	}

	id, err := s.store.CreateWorkout(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(req.Exercises) > 0 {
		if err := s.store.AddExercisesToWorkout(r.Context(), id, req.Exercises); err != nil {
			s.writeError(w, err)
			return
		}
	}
	s.log.Info("workout created", "workout_id", id, "name", req.Name, "exercises", len(req.Exercises))
	writeJSON(w, http.StatusCreated, map[string]int64{"workout_id": id})
}

func (s *Server) handleCreateExercise(w http.ResponseWriter, r *http.Request) {
	var ex models.ExerciseDefinition
	if err := json.NewDecoder(r.Body).Decode(&ex); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if ex.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name required"})
		return
	}

	id, err := s.store.CreateExercise(r.Context(), ex)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"exercise_id": id})
}

func (s *Server) handleAddWorkoutExercises(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var inputs []models.WorkoutExerciseInput
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if len(inputs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no exercises given"})
		return
	}
	for _, in := range inputs {
		if in.ExerciseID <= 0 || in.Sets < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid exercise entry"})
			return
		}
	}

	if err := s.store.AddExercisesToWorkout(r.Context(), id, inputs); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"added": len(inputs)})
}

func (s *Server) handleHistorySets(w http.ResponseWriter, r *http.Request) {
	sets, ok := s.querySets(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sets)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sets, ok := s.querySets(w, r)
	if !ok {
		return
	}
	sessions, err := s.store.CountArchivedSessions(r.Context(), userIDFromContext(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":    sessions,
		"volume_kg":   analytics.Volume(sets),
		"progression": analytics.Progression(sets),
	})
}

// querySets reads the caller's archived sets for the request's time range
// and optional exercise_id filter.
func (s *Server) querySets(w http.ResponseWriter, r *http.Request) ([]models.SessionSetRow, bool) {
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return nil, false
	}
	var exerciseID int64
	if v := r.URL.Query().Get("exercise_id"); v != "" {
		exerciseID, err = strconv.ParseInt(v, 10, 64)
		if err != nil || exerciseID <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid exercise_id"})
			return nil, false
		}
	}

	sets, err := s.store.QuerySessionSets(r.Context(), userIDFromContext(r), exerciseID, start, end)
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return sets, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ID"})
		return 0, false
	}
	return id, true
}

// writeError maps domain errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, rotation.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, rotation.ErrPermission):
		status = http.StatusForbidden
	case errors.Is(err, rotation.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, rotation.ErrFinished), errors.Is(err, storage.ErrExists):
		status = http.StatusConflict
	case errors.Is(err, rotation.ErrRegistryFull):
		status = http.StatusServiceUnavailable
	default:
		s.log.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseTimeRange(r *http.Request) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" {
		// Default: last 90 days
		end = time.Now()
		start = end.AddDate(0, 0, -90)
		return
	}

	start, err = parseDate(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start: %w", err)
	}

	if endStr == "" {
		end = time.Now()
	} else {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			end, err = time.Parse("2006-01-02", endStr)
			if err != nil {
				return time.Time{}, time.Time{}, fmt.Errorf("invalid end: %w", err)
			}
			// End of day for date-only
			end = end.Add(24 * time.Hour)
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end before start")
	}
	return
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
