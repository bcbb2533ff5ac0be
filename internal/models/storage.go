package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultSets is used for exercises stored without a target set count.
const DefaultSets = 4

// ExerciseDefinition is one entry of a workout's ordered exercise list.
// It is read-only for the lifetime of a session.
type ExerciseDefinition struct {
	ID          int64  `json:"exercise_id" yaml:"-"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
	Sets        int    `json:"sets" yaml:"sets"`
	Reps        *int   `json:"reps,omitempty" yaml:"reps"`
	TimeBased   bool   `json:"time_based" yaml:"time_based"`
}

// TargetSets returns Sets, falling back to DefaultSets when unset.
func (e ExerciseDefinition) TargetSets() int {
	if e.Sets <= 0 {
		return DefaultSets
	}
	return e.Sets
}

// WorkoutDefinition is a named, ordered list of exercises.
type WorkoutDefinition struct {
	ID        int64                `json:"workout_id"`
	Name      string               `json:"name"`
	Exercises []ExerciseDefinition `json:"exercises"`
}

// WorkoutExerciseInput attaches an existing exercise to a workout with
// workout-specific set/rep targets.
type WorkoutExerciseInput struct {
	ExerciseID int64 `json:"exercise_id"`
	Sets       int   `json:"sets"`
	Reps       *int  `json:"reps,omitempty"`
}

// User is a row of the users table.
type User struct {
	ID          int64  `json:"user_id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// SessionSetRow is one archived set, joined with its session and exercise.
type SessionSetRow struct {
	SessionID    uuid.UUID `json:"session_id"`
	WorkoutName  string    `json:"workout_name"`
	FinishedAt   time.Time `json:"finished_at"`
	UserID       int64     `json:"user_id"`
	ExerciseID   int64     `json:"exercise_id"`
	ExerciseName string    `json:"exercise_name"`
	TimeBased    bool      `json:"time_based"`
	SetNumber    int       `json:"set_number"`
	Reps         int       `json:"reps"`
	WeightKg     float64   `json:"weight_kg"`
}
