package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/grouplift/internal/analytics"
	"github.com/claude/grouplift/internal/rotation"
)

// defaultTimeRange returns start/end defaulting to the last 90 days.
func defaultTimeRange(startStr, endStr string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -90)
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// --- Tool definitions ---

var toolListActiveSessions = mcp.NewTool("list_active_sessions",
	mcp.WithDescription("List live group sessions with participants, whose turn it is, and the active exercise."),
)

var toolGetSession = mcp.NewTool("get_session",
	mcp.WithDescription("Get the full state of one live session: exercises with completed rounds, and every participant's recorded reps and weights."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Six-digit session join code")),
)

var toolGetWorkout = mcp.NewTool("get_workout",
	mcp.WithDescription("Get a workout definition with its ordered exercises and set/rep targets."),
	mcp.WithNumber("workout_id", mcp.Required(), mcp.Description("Workout ID")),
)

var toolGetExerciseHistory = mcp.NewTool("get_exercise_history",
	mcp.WithDescription("Archived sets of the authenticated user with the estimated 1RM progression per exercise."),
	mcp.WithNumber("exercise_id", mcp.Description("Restrict to one exercise. Defaults to all.")),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 90 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
)

var toolEstimateOneRepMax = mcp.NewTool("estimate_one_rep_max",
	mcp.WithDescription("Estimate a one-rep max from a set using the Epley formula."),
	mcp.WithNumber("weight", mcp.Required(), mcp.Description("Weight lifted")),
	mcp.WithNumber("reps", mcp.Required(), mcp.Description("Repetitions performed")),
)

// --- Tool handlers ---

type sessionSummary struct {
	SessionID           string    `json:"session_id"`
	WorkoutID           int64     `json:"workout_id"`
	Name                string    `json:"name"`
	Participants        []string  `json:"participants"`
	ActiveParticipantID *int64    `json:"active_participant_id,omitempty"`
	ActiveExerciseID    *int64    `json:"active_exercise_id,omitempty"`
	StartedAt           time.Time `json:"started_at"`
}

func summarize(views []rotation.View) []sessionSummary {
	out := make([]sessionSummary, 0, len(views))
	for _, v := range views {
		s := sessionSummary{
			SessionID:           v.ID,
			WorkoutID:           v.WorkoutID,
			Name:                v.Name,
			ActiveParticipantID: v.ActiveParticipantID,
			ActiveExerciseID:    v.ActiveExerciseID,
			StartedAt:           v.StartedAt,
		}
		for _, p := range v.Participants {
			if !p.Left {
				s.Participants = append(s.Participants, p.Name)
			}
		}
		out = append(out, s)
	}
	return out
}

func (h *handlers) listActiveSessions(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(summarize(h.live.ListSessions(ctx)))
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id parameter is required"), nil
	}

	view, ok := h.live.GetSession(ctx, id)
	if !ok {
		return mcp.NewToolResultError("session not found: " + id), nil
	}

	result, err := mcp.NewToolResultJSON(view)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireFloat("workout_id")
	if err != nil {
		return mcp.NewToolResultError("workout_id parameter is required"), nil
	}

	def, err := h.ds.LoadWorkoutDefinition(ctx, int64(id))
	if errors.Is(err, rotation.ErrNotFound) {
		return mcp.NewToolResultError("workout not found"), nil
	}
	if err != nil {
		h.log.Error("mcp get_workout", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(def)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getExerciseHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid, ok := UserIDFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError("no authenticated user"), nil
	}

	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}
	exerciseID := int64(req.GetFloat("exercise_id", 0))

	sets, err := h.ds.QuerySessionSets(ctx, uid, exerciseID, start, end)
	if err != nil {
		h.log.Error("mcp get_exercise_history", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"sets":        sets,
		"progression": analytics.Progression(sets),
		"volume":      analytics.Volume(sets),
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) estimateOneRepMax(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	weight, err := req.RequireFloat("weight")
	if err != nil {
		return mcp.NewToolResultError("weight parameter is required"), nil
	}
	reps, err := req.RequireFloat("reps")
	if err != nil {
		return mcp.NewToolResultError("reps parameter is required"), nil
	}

	result, err := mcp.NewToolResultJSON(map[string]float64{
		"weight":      weight,
		"reps":        reps,
		"one_rep_max": analytics.EstimateOneRepMax(weight, int(reps)),
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
