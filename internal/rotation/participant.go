package rotation

import "github.com/claude/grouplift/internal/models"

// Participant is a member of a live session and their recorded sets.
type Participant struct {
	ID   int64
	Name string

	progress map[int64]*ExerciseProgress
	order    []int64
}

func newParticipant(u models.User) *Participant {
	name := u.DisplayName
	if name == "" {
		name = u.Login
	}
	return &Participant{
		ID:       u.ID,
		Name:     name,
		progress: make(map[int64]*ExerciseProgress),
	}
}

// Progress returns the participant's record for an exercise, if any.
func (p *Participant) Progress(exerciseID int64) (*ExerciseProgress, bool) {
	ep, ok := p.progress[exerciseID]
	return ep, ok
}

func (p *Participant) ensureProgress(def models.ExerciseDefinition) *ExerciseProgress {
	if ep, ok := p.progress[def.ID]; ok {
		return ep
	}
	ep := newExerciseProgress(def)
	p.progress[def.ID] = ep
	p.order = append(p.order, def.ID)
	return ep
}

// Logs returns one entry per exercise the participant has touched,
// in the order they were first recorded.
func (p *Participant) Logs() []ExerciseLog {
	logs := make([]ExerciseLog, 0, len(p.order))
	for _, id := range p.order {
		logs = append(logs, p.progress[id].Log())
	}
	return logs
}
