package rotation

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a session.
type State string

const (
	StateActive    State = "active"
	StateFinished  State = "finished"
	StateAbandoned State = "abandoned"
)

// View is a serializable snapshot of a session. Version starts at 1 and
// grows with every successful mutation, so of two views of one session the
// higher version is the newer.
type View struct {
	ID                  string            `json:"session_id"`
	Key                 uuid.UUID         `json:"archive_key"`
	WorkoutID           int64             `json:"workout_id"`
	Name                string            `json:"name"`
	State               State             `json:"state"`
	Version             int64             `json:"version"`
	Exercises           []ExerciseView    `json:"exercises"`
	Participants        []ParticipantView `json:"participants"`
	ActiveParticipantID *int64            `json:"active_participant_id,omitempty"`
	ActiveExerciseID    *int64            `json:"active_exercise_id,omitempty"`
	StartedAt           time.Time         `json:"started_at"`
	FinishedAt          *time.Time        `json:"finished_at,omitempty"`
}

// ExerciseView describes one exercise of the session and how many rounds
// of it the group has completed.
type ExerciseView struct {
	ID            int64  `json:"exercise_id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	TargetSets    int    `json:"target_sets"`
	TargetReps    *int   `json:"target_reps,omitempty"`
	TimeBased     bool   `json:"time_based"`
	CompletedSets int    `json:"completed_sets"`
}

// ParticipantView is a participant and their recorded sets. Left is set
// for participants who left before the session ended.
type ParticipantView struct {
	ID   int64         `json:"user_id"`
	Name string        `json:"name"`
	Left bool          `json:"left,omitempty"`
	Logs []ExerciseLog `json:"logs"`
}

// ExerciseLog holds the recorded sets of one exercise. Reps and Weight
// have exactly SetsCompleted entries.
type ExerciseLog struct {
	ExerciseID    int64     `json:"exercise_id"`
	SetsCompleted int       `json:"sets_completed"`
	Reps          []int     `json:"reps"`
	Weight        []float64 `json:"weight"`
}

// Participant returns the view of one participant.
func (v View) Participant(id int64) (ParticipantView, bool) {
	for _, p := range v.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return ParticipantView{}, false
}

// HasParticipant reports whether id is a current (not departed) participant.
func (v View) HasParticipant(id int64) bool {
	p, ok := v.Participant(id)
	return ok && !p.Left
}
