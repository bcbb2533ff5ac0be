package rotation

import (
	"fmt"
	"slices"

	"github.com/claude/grouplift/internal/models"
)

// ExerciseProgress is one participant's record for one exercise.
// Slots at index >= SetsCompleted hold zero values and carry no meaning.
type ExerciseProgress struct {
	ExerciseID int64

	reps      []int
	weight    []float64
	completed int
}

func newExerciseProgress(def models.ExerciseDefinition) *ExerciseProgress {
	target := def.TargetSets()
	return &ExerciseProgress{
		ExerciseID: def.ID,
		reps:       make([]int, target),
		weight:     make([]float64, target),
	}
}

// Target returns the number of set slots.
func (p *ExerciseProgress) Target() int { return len(p.reps) }

// SetsCompleted returns how many slots have been recorded.
func (p *ExerciseProgress) SetsCompleted() int { return p.completed }

// RecordSet writes the next free slot and increments the completed count.
func (p *ExerciseProgress) RecordSet(reps int, weight float64) error {
	if p.completed >= len(p.reps) {
		return fmt.Errorf("exercise %d: all %d sets recorded: %w", p.ExerciseID, len(p.reps), ErrInvalidArgument)
	}
	p.reps[p.completed] = reps
	p.weight[p.completed] = weight
	p.completed++
	return nil
}

// RecordSetAt writes slot index without touching the completed count.
func (p *ExerciseProgress) RecordSetAt(index, reps int, weight float64) error {
	if index < 0 || index >= len(p.reps) {
		return fmt.Errorf("exercise %d: set index %d out of range: %w", p.ExerciseID, index, ErrInvalidArgument)
	}
	p.reps[index] = reps
	p.weight[index] = weight
	return nil
}

// EditSet overwrites an already recorded slot. Nil fields are left as is.
func (p *ExerciseProgress) EditSet(index int, reps *int, weight *float64) error {
	if index < 0 || index >= p.completed {
		return fmt.Errorf("exercise %d: set %d not recorded: %w", p.ExerciseID, index+1, ErrInvalidArgument)
	}
	if reps != nil {
		p.reps[index] = *reps
	}
	if weight != nil {
		p.weight[index] = *weight
	}
	return nil
}

// Log returns the recorded sets, truncated to the completed count.
func (p *ExerciseProgress) Log() ExerciseLog {
	return ExerciseLog{
		ExerciseID:    p.ExerciseID,
		SetsCompleted: p.completed,
		Reps:          slices.Clone(p.reps[:p.completed]),
		Weight:        slices.Clone(p.weight[:p.completed]),
	}
}
