package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/claude/grouplift/internal/models"
	"github.com/claude/grouplift/internal/rotation"
)

// ArchiveSession stores a finished session and every recorded set in one
// transaction. Archiving the same archive key again is a no-op.
func (db *DB) ArchiveSession(ctx context.Context, view rotation.View) error {
	if view.FinishedAt == nil {
		return fmt.Errorf("session %s has not finished: %w", view.ID, rotation.ErrInvalidArgument)
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", view.ID, err)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO sessions (id, join_code, workout_id, name, started_at, finished_at, raw_json)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (id) DO NOTHING`,
		view.Key, view.ID, view.WorkoutID, view.Name, view.StartedAt, *view.FinishedAt, raw)
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", view.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	if err := insertParticipants(ctx, tx, view); err != nil {
		return err
	}
	if err := insertSessionSets(ctx, tx, view); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertParticipants(ctx context.Context, tx pgx.Tx, view rotation.View) error {
	if len(view.Participants) == 0 {
		return nil
	}
	query := `INSERT INTO session_participants (session_id, user_id, position, left_early) VALUES `
	args := make([]any, 0, len(view.Participants)*4)
	valueStrings := make([]string, 0, len(view.Participants))
	for i, p := range view.Participants {
		base := i * 4
		valueStrings = append(valueStrings, fmt.Sprintf("($%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4))
		args = append(args, view.Key, p.ID, i+1, p.Left)
	}
	query += strings.Join(valueStrings, ",")

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting session participants: %w", err)
	}
	return nil
}

func insertSessionSets(ctx context.Context, tx pgx.Tx, view rotation.View) error {
	query := `INSERT INTO session_sets (session_id, user_id, exercise_id, set_number, reps, weight_kg) VALUES `
	var (
		args         []any
		valueStrings []string
	)
	n := 0
	for _, p := range view.Participants {
		for _, log := range p.Logs {
			for i := range log.SetsCompleted {
				base := n * 6
				valueStrings = append(valueStrings, fmt.Sprintf(
					"($%d,$%d,$%d,$%d,$%d,$%d)",
					base+1, base+2, base+3, base+4, base+5, base+6,
				))
				args = append(args, view.Key, p.ID, log.ExerciseID, i+1, log.Reps[i], log.Weight[i])
				n++
			}
		}
	}
	if n == 0 {
		return nil
	}
	query += strings.Join(valueStrings, ",") + " ON CONFLICT DO NOTHING"

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting session sets: %w", err)
	}
	return nil
}

// QuerySessionSets returns a user's archived sets finished in [start, end),
// newest session first. exerciseID 0 matches every exercise.
func (db *DB) QuerySessionSets(ctx context.Context, userID, exerciseID int64, start, end time.Time) ([]models.SessionSetRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT s.id, s.name, s.finished_at, ss.user_id, ss.exercise_id, e.name, e.time_based,
		 ss.set_number, ss.reps, ss.weight_kg
		 FROM session_sets ss
		 JOIN sessions s ON s.id = ss.session_id
		 JOIN exercises e ON e.id = ss.exercise_id
		 WHERE ss.user_id = $1 AND ($2::bigint = 0 OR ss.exercise_id = $2::bigint)
		   AND s.finished_at >= $3 AND s.finished_at < $4
		 ORDER BY s.finished_at DESC, e.name ASC, ss.set_number ASC`,
		userID, exerciseID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying session sets: %w", err)
	}
	defer rows.Close()

	var result []models.SessionSetRow
	for rows.Next() {
		var r models.SessionSetRow
		if err := rows.Scan(&r.SessionID, &r.WorkoutName, &r.FinishedAt, &r.UserID, &r.ExerciseID,
			&r.ExerciseName, &r.TimeBased, &r.SetNumber, &r.Reps, &r.WeightKg); err != nil {
			return nil, fmt.Errorf("scanning session set: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// CountArchivedSessions returns how many finished sessions the user took
// part in.
func (db *DB) CountArchivedSessions(ctx context.Context, userID int64) (int, error) {
	var n int
	err := db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM session_participants WHERE user_id = $1`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return n, nil
}
