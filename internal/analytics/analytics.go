// Package analytics derives progress figures from archived sets.
package analytics

import (
	"sort"
	"time"

	"github.com/claude/grouplift/internal/models"
)

// EstimateOneRepMax returns the Epley estimate w * (1 + reps/30).
// A single rep is its own max; zero or negative reps estimate nothing.
func EstimateOneRepMax(weight float64, reps int) float64 {
	switch {
	case reps <= 0:
		return 0
	case reps == 1:
		return weight
	}
	return weight * (1 + float64(reps)/30)
}

// Point is one chart sample.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Dedupe collapses points that fall on the same UTC day into the one with
// the highest value and returns them in time order.
func Dedupe(points []Point) []Point {
	best := make(map[time.Time]Point, len(points))
	for _, p := range points {
		day := p.Time.UTC().Truncate(24 * time.Hour)
		if cur, ok := best[day]; !ok || p.Value > cur.Value {
			best[day] = p
		}
	}

	out := make([]Point, 0, len(best))
	for _, p := range best {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// Series is the estimated 1RM history of one exercise.
type Series struct {
	ExerciseID   int64   `json:"exercise_id"`
	ExerciseName string  `json:"exercise_name"`
	Points       []Point `json:"points"`
	Best         float64 `json:"best"`
}

// Progression builds one deduplicated 1RM series per exercise. Time-based
// exercises are skipped since reps hold a duration there. Series are
// ordered by exercise name.
func Progression(sets []models.SessionSetRow) []Series {
	byExercise := make(map[int64]*Series)
	raw := make(map[int64][]Point)
	for _, s := range sets {
		if s.TimeBased {
			continue
		}
		est := EstimateOneRepMax(s.WeightKg, s.Reps)
		if est <= 0 {
			continue
		}
		if _, ok := byExercise[s.ExerciseID]; !ok {
			byExercise[s.ExerciseID] = &Series{ExerciseID: s.ExerciseID, ExerciseName: s.ExerciseName}
		}
		raw[s.ExerciseID] = append(raw[s.ExerciseID], Point{Time: s.FinishedAt, Value: est})
	}

	out := make([]Series, 0, len(byExercise))
	for id, series := range byExercise {
		series.Points = Dedupe(raw[id])
		for _, p := range series.Points {
			series.Best = max(series.Best, p.Value)
		}
		out = append(out, *series)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExerciseName != out[j].ExerciseName {
			return out[i].ExerciseName < out[j].ExerciseName
		}
		return out[i].ExerciseID < out[j].ExerciseID
	})
	return out
}

// Volume sums reps * weight over sets, skipping time-based exercises.
func Volume(sets []models.SessionSetRow) float64 {
	var total float64
	for _, s := range sets {
		if s.TimeBased {
			continue
		}
		total += float64(s.Reps) * s.WeightKg
	}
	return total
}
