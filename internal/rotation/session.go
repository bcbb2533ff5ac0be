package rotation

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claude/grouplift/internal/models"
)

// Effect names one consequence of a session mutation.
type Effect string

const (
	EffectSetRecorded         Effect = "set_recorded"
	EffectTurnSkipped         Effect = "turn_skipped"
	EffectParticipantLeft     Effect = "participant_left"
	EffectParticipantAdvanced Effect = "participant_advanced"
	EffectRoundCompleted      Effect = "round_completed"
	EffectExerciseAdvanced    Effect = "exercise_advanced"
	EffectFinished            Effect = "finished"
	EffectAbandoned           Effect = "abandoned"
)

// Transition is the result of a mutation: the effects it caused, in order,
// and the session view after it.
type Transition struct {
	Effects []Effect
	View    View
}

// Has reports whether e is among the transition's effects.
func (t Transition) Has(e Effect) bool {
	for _, got := range t.Effects {
		if got == e {
			return true
		}
	}
	return false
}

// Finished reports whether the mutation finished the session.
func (t Transition) Finished() bool { return t.Has(EffectFinished) }

// Abandoned reports whether the last participant left.
func (t Transition) Abandoned() bool { return t.Has(EffectAbandoned) }

// Option configures a Session.
type Option func(*Session)

// WithClock overrides time.Now for started/finished timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is one live group workout. Participants rotate fastest: every
// participant completes one set of the active exercise before anyone does
// the next set, and the exercise advances after its target number of
// rounds. All methods are safe for concurrent use.
type Session struct {
	id        string
	key       uuid.UUID
	workoutID int64
	name      string
	defs      []models.ExerciseDefinition

	mu           sync.Mutex
	exercises    *Sequencer[models.ExerciseDefinition]
	participants *Sequencer[*Participant]
	departed     []*Participant
	rounds       map[int64]int
	state        State
	version      int64
	startedAt    time.Time
	finishedAt   time.Time
	now          func() time.Time

	// effects collects hook output for the mutation in progress.
	effects []Effect
}

// NewSession builds a session over def with the given participants in turn
// order. Exercises without a target set count get models.DefaultSets.
func NewSession(id string, def models.WorkoutDefinition, users []models.User, opts ...Option) (*Session, error) {
	if len(def.Exercises) == 0 {
		return nil, fmt.Errorf("workout %d has no exercises: %w", def.ID, ErrInvalidArgument)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("session needs at least one participant: %w", ErrInvalidArgument)
	}

	defs := make([]models.ExerciseDefinition, len(def.Exercises))
	seenEx := make(map[int64]bool, len(def.Exercises))
	for i, ex := range def.Exercises {
		if seenEx[ex.ID] {
			return nil, fmt.Errorf("exercise %d listed twice: %w", ex.ID, ErrInvalidArgument)
		}
		seenEx[ex.ID] = true
		ex.Sets = ex.TargetSets()
		defs[i] = ex
	}

	members := make([]*Participant, len(users))
	seen := make(map[int64]bool, len(users))
	for i, u := range users {
		if seen[u.ID] {
			return nil, fmt.Errorf("participant %d listed twice: %w", u.ID, ErrInvalidArgument)
		}
		seen[u.ID] = true
		members[i] = newParticipant(u)
	}

	s := &Session{
		id:        id,
		key:       uuid.New(),
		workoutID: def.ID,
		name:      def.Name,
		defs:      defs,
		rounds:    make(map[int64]int, len(defs)),
		state:     StateActive,
		version:   1,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startedAt = s.now()

	s.exercises = NewSequencer(defs, Hooks[models.ExerciseDefinition]{
		OnAdvance: func(models.ExerciseDefinition, int) {
			s.effects = append(s.effects, EffectExerciseAdvanced)
		},
		OnWrap: func(models.ExerciseDefinition, int) {
			s.finish()
		},
	})
	s.participants = NewSequencer(members, Hooks[*Participant]{
		OnAdvance: func(*Participant, int) {
			s.effects = append(s.effects, EffectParticipantAdvanced)
		},
		OnWrap: func(*Participant, int) {
			s.roundCompleted()
		},
	})
	return s, nil
}

// ID returns the join code.
func (s *Session) ID() string { return s.id }

// Key returns the archive key, unique across all sessions ever created.
func (s *Session) Key() uuid.UUID { return s.key }

// WorkoutID returns the id of the workout definition the session runs.
func (s *Session) WorkoutID() int64 { return s.workoutID }

// StartedAt returns the construction time.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// CompleteSet records a set for the active exercise on behalf of the active
// participant and moves the turn on. The session is unchanged on error.
func (s *Session) CompleteSet(callerID int64, reps int, weight float64) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.activeParticipant(callerID)
	if err != nil {
		return Transition{}, err
	}
	ex, ok := s.exercises.Current()
	if !ok {
		return Transition{}, fmt.Errorf("session %s: no active exercise: %w", s.id, ErrNotFound)
	}
	if err := p.ensureProgress(ex).RecordSet(reps, weight); err != nil {
		return Transition{}, fmt.Errorf("session %s: %w", s.id, err)
	}

	s.effects = append(s.effects[:0], EffectSetRecorded)
	s.participants.Advance()
	return s.transition(), nil
}

// Skip passes the active participant's turn without recording a set.
// The rotation moves exactly as it does for CompleteSet.
func (s *Session) Skip(callerID int64) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.activeParticipant(callerID); err != nil {
		return Transition{}, err
	}
	s.effects = append(s.effects[:0], EffectTurnSkipped)
	s.participants.Advance()
	return s.transition(), nil
}

// Leave removes a participant from the rotation. Their recorded sets stay
// in the view. If the leaver closed out the round, the round counts as
// completed. When nobody is left the session is abandoned.
func (s *Session) Leave(callerID int64) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return Transition{}, fmt.Errorf("session %s: %w", s.id, ErrFinished)
	}
	p, ok := s.participants.Find(func(p *Participant) bool { return p.ID == callerID })
	if !ok {
		return Transition{}, fmt.Errorf("session %s: participant %d: %w", s.id, callerID, ErrNotFound)
	}
	active, _ := s.participants.Current()

	s.effects = append(s.effects[:0], EffectParticipantLeft)
	_, wrapped := s.participants.RemoveIf(func(q *Participant) bool { return q.ID == callerID })
	s.departed = append(s.departed, p)

	switch {
	case s.participants.Len() == 0:
		s.state = StateAbandoned
		s.finishedAt = s.now()
		s.effects = append(s.effects, EffectAbandoned)
	case wrapped:
		s.roundCompleted()
	case active == p:
		s.effects = append(s.effects, EffectParticipantAdvanced)
	}
	return s.transition(), nil
}

// EditSet corrects an already recorded set. Any participant may edit their
// own sets regardless of whose turn it is. setNumber is one-indexed.
func (s *Session) EditSet(callerID, exerciseID int64, setNumber int, reps *int, weight *float64) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return View{}, fmt.Errorf("session %s: %w", s.id, ErrFinished)
	}
	p, ok := s.participants.Find(func(p *Participant) bool { return p.ID == callerID })
	if !ok {
		return View{}, fmt.Errorf("session %s: participant %d: %w", s.id, callerID, ErrNotFound)
	}
	if !s.hasExercise(exerciseID) {
		return View{}, fmt.Errorf("session %s: exercise %d: %w", s.id, exerciseID, ErrNotFound)
	}
	ep, ok := p.Progress(exerciseID)
	if !ok {
		return View{}, fmt.Errorf("session %s: no sets recorded for exercise %d: %w", s.id, exerciseID, ErrNotFound)
	}
	if err := ep.EditSet(setNumber-1, reps, weight); err != nil {
		return View{}, fmt.Errorf("session %s: %w", s.id, err)
	}
	s.version++
	return s.view(), nil
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) activeParticipant(callerID int64) (*Participant, error) {
	if s.state != StateActive {
		return nil, fmt.Errorf("session %s: %w", s.id, ErrFinished)
	}
	p, ok := s.participants.Current()
	if !ok {
		return nil, fmt.Errorf("session %s: no participants: %w", s.id, ErrNotFound)
	}
	if p.ID != callerID {
		return nil, fmt.Errorf("session %s: participant %d is not up: %w", s.id, callerID, ErrPermission)
	}
	return p, nil
}

func (s *Session) roundCompleted() {
	s.effects = append(s.effects, EffectRoundCompleted)
	ex, ok := s.exercises.Current()
	if !ok {
		return
	}
	s.rounds[ex.ID]++
	if s.rounds[ex.ID] >= ex.Sets {
		s.exercises.Advance()
	}
}

func (s *Session) finish() {
	s.state = StateFinished
	s.finishedAt = s.now()
	s.effects = append(s.effects, EffectFinished)
}

func (s *Session) hasExercise(id int64) bool {
	for _, d := range s.defs {
		if d.ID == id {
			return true
		}
	}
	return false
}

func (s *Session) transition() Transition {
	effects := make([]Effect, len(s.effects))
	copy(effects, s.effects)
	s.effects = s.effects[:0]
	s.version++
	return Transition{Effects: effects, View: s.view()}
}

func (s *Session) view() View {
	v := View{
		ID:        s.id,
		Key:       s.key,
		WorkoutID: s.workoutID,
		Name:      s.name,
		State:     s.state,
		Version:   s.version,
		StartedAt: s.startedAt,
	}
	if !s.finishedAt.IsZero() {
		t := s.finishedAt
		v.FinishedAt = &t
	}

	v.Exercises = make([]ExerciseView, len(s.defs))
	for i, d := range s.defs {
		v.Exercises[i] = ExerciseView{
			ID:            d.ID,
			Name:          d.Name,
			Description:   d.Description,
			TargetSets:    d.Sets,
			TargetReps:    d.Reps,
			TimeBased:     d.TimeBased,
			CompletedSets: s.rounds[d.ID],
		}
	}

	members := s.participants.Items()
	v.Participants = make([]ParticipantView, 0, len(members)+len(s.departed))
	for _, p := range members {
		v.Participants = append(v.Participants, ParticipantView{ID: p.ID, Name: p.Name, Logs: p.Logs()})
	}
	for _, p := range s.departed {
		v.Participants = append(v.Participants, ParticipantView{ID: p.ID, Name: p.Name, Left: true, Logs: p.Logs()})
	}

	if s.state == StateActive {
		if p, ok := s.participants.Current(); ok {
			id := p.ID
			v.ActiveParticipantID = &id
		}
		if ex, ok := s.exercises.Current(); ok {
			id := ex.ID
			v.ActiveExerciseID = &id
		}
	}
	return v
}
