// Package sessions connects the rotation engine to storage, archival and
// live notification.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/claude/grouplift/internal/models"
	"github.com/claude/grouplift/internal/observability"
	"github.com/claude/grouplift/internal/rotation"
)

// WorkoutLoader reads workout definitions.
type WorkoutLoader interface {
	LoadWorkoutDefinition(ctx context.Context, workoutID int64) (models.WorkoutDefinition, error)
}

// UserDirectory resolves user ids to identities.
type UserDirectory interface {
	GetUsers(ctx context.Context, ids []int64) ([]models.User, error)
}

// Archiver accepts finished sessions for durable archival.
type Archiver interface {
	Enqueue(ctx context.Context, view rotation.View) error
}

// Notifier is told about every session change.
type Notifier interface {
	SessionUpdated(view rotation.View)
}

// Service runs live sessions for the HTTP and MCP layers.
type Service struct {
	registry *rotation.Registry
	workouts WorkoutLoader
	users    UserDirectory
	archiver Archiver
	notifier Notifier
	log      *slog.Logger

	// archiveRetry builds the retry policy for one spool hand-off.
	archiveRetry  func() backoff.BackOff
	archiving     sync.WaitGroup
	stopArchiving context.CancelFunc
	archiveCtx    context.Context
}

func defaultArchiveRetry() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// NewService creates a Service. archiver may be nil, in which case
// finished sessions are only logged.
func NewService(registry *rotation.Registry, workouts WorkoutLoader, users UserDirectory, archiver Archiver, log *slog.Logger) *Service {
	archiveCtx, stop := context.WithCancel(context.Background())
	return &Service{
		registry:      registry,
		workouts:      workouts,
		users:         users,
		archiver:      archiver,
		log:           log,
		archiveRetry:  defaultArchiveRetry,
		archiveCtx:    archiveCtx,
		stopArchiving: stop,
	}
}

// SetNotifier registers the live update fan-out.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// StartSession creates a session for workoutID with the participants in
// the given turn order and returns its join code.
func (s *Service) StartSession(ctx context.Context, workoutID int64, participantIDs []int64) (string, error) {
	if len(participantIDs) == 0 {
		return "", fmt.Errorf("no participants: %w", rotation.ErrInvalidArgument)
	}

	def, err := s.workouts.LoadWorkoutDefinition(ctx, workoutID)
	if err != nil {
		return "", fmt.Errorf("loading workout %d: %w", workoutID, err)
	}
	users, err := s.resolveUsers(ctx, participantIDs)
	if err != nil {
		return "", err
	}

	sess, err := s.registry.Add(func(id string) (*rotation.Session, error) {
		return rotation.NewSession(id, def, users)
	})
	if err != nil {
		observability.RecordMutation("start", outcome(err))
		return "", fmt.Errorf("starting session: %w", err)
	}

	observability.RecordMutation("start", "ok")
	observability.RecordSessionStarted(s.registry.Len())
	s.log.Info("session started",
		"session_id", sess.ID(),
		"workout_id", workoutID,
		"participants", len(users),
	)
	s.notify(sess.View())
	return sess.ID(), nil
}

// resolveUsers returns the users for ids in the order given.
func (s *Service) resolveUsers(ctx context.Context, ids []int64) ([]models.User, error) {
	found, err := s.users.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving participants: %w", err)
	}
	byID := make(map[int64]models.User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	users := make([]models.User, len(ids))
	for i, id := range ids {
		u, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("participant %d: %w", id, rotation.ErrNotFound)
		}
		users[i] = u
	}
	return users, nil
}

// CompleteSet records a set for the caller, who must be the active
// participant, and advances the rotation.
func (s *Service) CompleteSet(ctx context.Context, sessionID string, callerID int64, reps int, weight float64) (rotation.View, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return rotation.View{}, err
	}
	tr, err := sess.CompleteSet(callerID, reps, weight)
	return s.apply(ctx, "complete_set", tr, err)
}

// Skip passes the caller's turn.
func (s *Service) Skip(ctx context.Context, sessionID string, callerID int64) (rotation.View, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return rotation.View{}, err
	}
	tr, err := sess.Skip(callerID)
	return s.apply(ctx, "skip", tr, err)
}

// Leave removes the caller from the session.
func (s *Service) Leave(ctx context.Context, sessionID string, callerID int64) (rotation.View, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return rotation.View{}, err
	}
	tr, err := sess.Leave(callerID)
	return s.apply(ctx, "leave", tr, err)
}

// EditSet corrects one of the caller's recorded sets. setNumber is
// one-indexed.
func (s *Service) EditSet(ctx context.Context, sessionID string, callerID, exerciseID int64, setNumber int, reps *int, weight *float64) (rotation.View, error) {
	sess, err := s.lookup(sessionID)
	if err != nil {
		return rotation.View{}, err
	}
	view, err := sess.EditSet(callerID, exerciseID, setNumber, reps, weight)
	observability.RecordMutation("edit_set", outcome(err))
	if err != nil {
		return rotation.View{}, err
	}
	s.notify(view)
	return view, nil
}

// GetSession returns the view of a registered session.
func (s *Service) GetSession(_ context.Context, sessionID string) (rotation.View, bool) {
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		return rotation.View{}, false
	}
	return sess.View(), true
}

// ListSessions returns the views of all registered sessions, oldest first.
func (s *Service) ListSessions(_ context.Context) []rotation.View {
	list := s.registry.List()
	views := make([]rotation.View, len(list))
	for i, sess := range list {
		views[i] = sess.View()
	}
	return views
}

// Close waits for in-flight archive hand-offs. Hand-offs still retrying
// when ctx is done are abandoned and their sessions logged as dropped.
func (s *Service) Close(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.archiving.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.stopArchiving()
		<-done
	}
}

func (s *Service) lookup(sessionID string) (*rotation.Session, error) {
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, rotation.ErrNotFound)
	}
	return sess, nil
}

// apply consumes the effects of a mutation: deregistration, archival and
// notification.
func (s *Service) apply(ctx context.Context, op string, tr rotation.Transition, err error) (rotation.View, error) {
	observability.RecordMutation(op, outcome(err))
	if err != nil {
		return rotation.View{}, err
	}
	view := tr.View

	switch {
	case tr.Finished():
		s.registry.Remove(view.ID)
		s.endMetrics(view)
		s.log.Info("session finished", "session_id", view.ID, "archive_key", view.Key)
		s.archive(ctx, view)
	case tr.Abandoned():
		s.registry.Remove(view.ID)
		s.endMetrics(view)
		s.log.Info("session abandoned", "session_id", view.ID)
	}

	s.notify(view)
	return view, nil
}

// archive hands a finished session to the archiver without blocking the
// caller, retrying until the hand-off succeeds or Close gives up on it. The
// request context is detached so a closed connection does not cancel the
// hand-off.
func (s *Service) archive(ctx context.Context, view rotation.View) {
	if s.archiver == nil {
		s.log.Warn("no archiver configured, finished session dropped", "session_id", view.ID)
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.archiving.Add(1)
	go func() {
		defer s.archiving.Done()
		enqueue := func() error { return s.archiver.Enqueue(ctx, view) }
		retry := func(err error, wait time.Duration) {
			s.log.Warn("enqueue finished session failed, retrying",
				"session_id", view.ID, "archive_key", view.Key, "retry_in", wait, "error", err)
		}
		policy := backoff.WithContext(s.archiveRetry(), s.archiveCtx)
		if err := backoff.RetryNotify(enqueue, policy, retry); err != nil {
			s.log.Error("finished session dropped", "session_id", view.ID, "archive_key", view.Key, "error", err)
		}
	}()
}

func (s *Service) endMetrics(view rotation.View) {
	ended := view.StartedAt
	if view.FinishedAt != nil {
		ended = *view.FinishedAt
	}
	observability.RecordSessionEnded(string(view.State), view.StartedAt, ended, s.registry.Len())
}

func (s *Service) notify(view rotation.View) {
	if s.notifier != nil {
		s.notifier.SessionUpdated(view)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, rotation.ErrNotFound):
		return "not_found"
	case errors.Is(err, rotation.ErrPermission):
		return "permission"
	case errors.Is(err, rotation.ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, rotation.ErrFinished):
		return "finished"
	default:
		return "error"
	}
}
