package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/claude/grouplift/internal/models"
	"github.com/claude/grouplift/internal/rotation"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// LoadWorkoutDefinition returns a workout with its exercises in sequence
// order.
func (db *DB) LoadWorkoutDefinition(ctx context.Context, workoutID int64) (models.WorkoutDefinition, error) {
	def := models.WorkoutDefinition{ID: workoutID}
	err := db.Pool.QueryRow(ctx, `SELECT name FROM workouts WHERE id = $1`, workoutID).Scan(&def.Name)
	if err != nil {
		return models.WorkoutDefinition{}, notFound(err, "workout", workoutID)
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT e.id, e.name, e.description, e.time_based, we.sets, we.reps
		 FROM workout_exercises we
		 JOIN exercises e ON e.id = we.exercise_id
		 WHERE we.workout_id = $1
		 ORDER BY we.sequence`, workoutID)
	if err != nil {
		return models.WorkoutDefinition{}, fmt.Errorf("querying exercises of workout %d: %w", workoutID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var ex models.ExerciseDefinition
		if err := rows.Scan(&ex.ID, &ex.Name, &ex.Description, &ex.TimeBased, &ex.Sets, &ex.Reps); err != nil {
			return models.WorkoutDefinition{}, fmt.Errorf("scanning workout exercise: %w", err)
		}
		def.Exercises = append(def.Exercises, ex)
	}
	return def, rows.Err()
}

// ListWorkouts returns all workouts without their exercises.
func (db *DB) ListWorkouts(ctx context.Context) ([]models.WorkoutDefinition, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id, name FROM workouts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying workouts: %w", err)
	}
	defer rows.Close()

	var result []models.WorkoutDefinition
	for rows.Next() {
		var w models.WorkoutDefinition
		if err := rows.Scan(&w.ID, &w.Name); err != nil {
			return nil, fmt.Errorf("scanning workout: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// FindWorkoutByName returns the id of the workout with the given name.
func (db *DB) FindWorkoutByName(ctx context.Context, name string) (int64, bool, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `SELECT id FROM workouts WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("querying workout %q: %w", name, err)
	}
	return id, true, nil
}

// CreateExercise inserts an exercise and returns its id. If an exercise
// with the same name exists its description and time_based flag are
// updated instead.
func (db *DB) CreateExercise(ctx context.Context, ex models.ExerciseDefinition) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO exercises (name, description, time_based)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
			SET description = COALESCE(NULLIF($2, ''), exercises.description),
			    time_based = $3
		RETURNING id
	`, ex.Name, ex.Description, ex.TimeBased).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting exercise %q: %w", ex.Name, err)
	}
	return id, nil
}

// CreateWorkout inserts an empty workout and returns its id.
func (db *DB) CreateWorkout(ctx context.Context, name string) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `INSERT INTO workouts (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("workout %q: %w", name, ErrExists)
	}
	if err != nil {
		return 0, fmt.Errorf("inserting workout %q: %w", name, err)
	}
	return id, nil
}

// AddExercisesToWorkout appends exercises to the end of a workout. The
// workout row is locked so concurrent appends get consecutive sequences.
func (db *DB) AddExercisesToWorkout(ctx context.Context, workoutID int64, inputs []models.WorkoutExerciseInput) error {
	if len(inputs) == 0 {
		return nil
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked int64
	if err := tx.QueryRow(ctx, `SELECT id FROM workouts WHERE id = $1 FOR UPDATE`, workoutID).Scan(&locked); err != nil {
		return notFound(err, "workout", workoutID)
	}

	var last int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM workout_exercises WHERE workout_id = $1`, workoutID,
	).Scan(&last); err != nil {
		return fmt.Errorf("querying last sequence: %w", err)
	}

	query := `INSERT INTO workout_exercises (workout_id, exercise_id, sequence, sets, reps) VALUES `
	args := make([]any, 0, len(inputs)*5)
	valueStrings := make([]string, 0, len(inputs))
	for i, in := range inputs {
		base := i * 5
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		sets := in.Sets
		if sets <= 0 {
			sets = models.DefaultSets
		}
		args = append(args, workoutID, in.ExerciseID, last+i+1, sets, in.Reps)
	}
	query += strings.Join(valueStrings, ",")

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("exercise already in workout %d: %w", workoutID, ErrExists)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("unknown exercise for workout %d: %w", workoutID, rotation.ErrNotFound)
		}
		return fmt.Errorf("inserting workout exercises: %w", err)
	}
	return tx.Commit(ctx)
}
