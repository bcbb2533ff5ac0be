//go:build integration

package storage

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/claude/grouplift/internal/models"
	"github.com/claude/grouplift/internal/rotation"
)

func setupDB(t *testing.T, ctx context.Context) *DB {
	t.Helper()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("grouplift"),
		postgrescontainer.WithUsername("grouplift"),
		postgrescontainer.WithPassword("grouplift"),
		postgrescontainer.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	_, file, _, _ := runtime.Caller(0)
	migrations := filepath.Join(filepath.Dir(file), "..", "..", "migrations")
	require.NoError(t, RunMigrations(connStr, migrations))

	db, err := New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestWorkoutDefinitionRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t, ctx)

	squat, err := db.CreateExercise(ctx, models.ExerciseDefinition{Name: "Squat", Description: "Back squat"})
	require.NoError(t, err)
	plank, err := db.CreateExercise(ctx, models.ExerciseDefinition{Name: "Plank", TimeBased: true})
	require.NoError(t, err)
	again, err := db.CreateExercise(ctx, models.ExerciseDefinition{Name: "Squat"})
	require.NoError(t, err)
	require.Equal(t, squat, again)

	wid, err := db.CreateWorkout(ctx, "Legs")
	require.NoError(t, err)
	_, err = db.CreateWorkout(ctx, "Legs")
	require.ErrorIs(t, err, ErrExists)

	reps := 5
	require.NoError(t, db.AddExercisesToWorkout(ctx, wid, []models.WorkoutExerciseInput{{ExerciseID: squat, Sets: 3, Reps: &reps}}))
	// Second append continues the sequence after the first.
	require.NoError(t, db.AddExercisesToWorkout(ctx, wid, []models.WorkoutExerciseInput{{ExerciseID: plank}}))

	def, err := db.LoadWorkoutDefinition(ctx, wid)
	require.NoError(t, err)
	require.Equal(t, "Legs", def.Name)
	require.Len(t, def.Exercises, 2)
	require.Equal(t, "Squat", def.Exercises[0].Name)
	require.Equal(t, 3, def.Exercises[0].Sets)
	require.Equal(t, &reps, def.Exercises[0].Reps)
	require.Equal(t, "Plank", def.Exercises[1].Name)
	require.Equal(t, models.DefaultSets, def.Exercises[1].Sets)
	require.True(t, def.Exercises[1].TimeBased)

	err = db.AddExercisesToWorkout(ctx, wid, []models.WorkoutExerciseInput{{ExerciseID: squat}})
	require.ErrorIs(t, err, ErrExists)
	err = db.AddExercisesToWorkout(ctx, 9999, []models.WorkoutExerciseInput{{ExerciseID: squat}})
	require.ErrorIs(t, err, rotation.ErrNotFound)
	_, err = db.LoadWorkoutDefinition(ctx, 9999)
	require.ErrorIs(t, err, rotation.ErrNotFound)

	id, ok, err := db.FindWorkoutByName(ctx, "Legs")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, wid, id)
}

// TestArchiveSessionIsIdempotent archives a played session twice and
// expects one copy of every set.
func TestArchiveSessionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t, ctx)

	ex, err := db.CreateExercise(ctx, models.ExerciseDefinition{Name: "Bench"})
	require.NoError(t, err)
	wid, err := db.CreateWorkout(ctx, "Push")
	require.NoError(t, err)
	require.NoError(t, db.AddExercisesToWorkout(ctx, wid, []models.WorkoutExerciseInput{{ExerciseID: ex, Sets: 2}}))

	a, err := db.GetOrCreateUser(ctx, "alice@example.com", "Alice")
	require.NoError(t, err)
	b, err := db.GetOrCreateUser(ctx, "bob@example.com", "Bob")
	require.NoError(t, err)
	users, err := db.GetUsers(ctx, []int64{b, a, 424242})
	require.NoError(t, err)
	require.Len(t, users, 2)

	def, err := db.LoadWorkoutDefinition(ctx, wid)
	require.NoError(t, err)
	s, err := rotation.NewSession("123456", def, users)
	require.NoError(t, err)
	var tr rotation.Transition
	for range 4 {
		v := s.View()
		tr, err = s.CompleteSet(*v.ActiveParticipantID, 5, 80)
		require.NoError(t, err)
	}
	require.True(t, tr.Finished())

	require.NoError(t, db.ArchiveSession(ctx, tr.View))
	require.NoError(t, db.ArchiveSession(ctx, tr.View))

	rows, err := db.QuerySessionSets(ctx, a, 0, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Bench", rows[0].ExerciseName)
	require.Equal(t, tr.View.Key, rows[0].SessionID)

	n, err := db.CountArchivedSessions(ctx, b)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
