package analytics

import (
	"testing"
	"time"

	"github.com/claude/grouplift/internal/models"
)

// TestEstimateOneRepMax checks the Epley formula and its edge cases.
func TestEstimateOneRepMax(t *testing.T) {
	tests := []struct {
		weight float64
		reps   int
		want   float64
	}{
		{100, 0, 0},
		{100, -3, 0},
		{100, 1, 100},
		{100, 10, 100 * (1 + 10.0/30)},
		{60, 30, 120},
		{0, 5, 0},
	}
	for _, tt := range tests {
		got := EstimateOneRepMax(tt.weight, tt.reps)
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("EstimateOneRepMax(%v, %d) = %v, want %v", tt.weight, tt.reps, got, tt.want)
		}
	}
}

// TestDedupeKeepsBestPerDay checks that samples on the same day collapse
// to the highest one and the output is time ordered.
func TestDedupeKeepsBestPerDay(t *testing.T) {
	day1 := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	in := []Point{
		{Time: day2, Value: 90},
		{Time: day1, Value: 100},
		{Time: day1.Add(3 * time.Hour), Value: 110},
		{Time: day2.Add(time.Hour), Value: 80},
	}

	got := Dedupe(in)
	if len(got) != 2 {
		t.Fatalf("expected 2 points, got %d", len(got))
	}
	if got[0].Value != 110 || !got[0].Time.Equal(day1.Add(3*time.Hour)) {
		t.Errorf("day 1: got %+v", got[0])
	}
	if got[1].Value != 90 || !got[1].Time.Equal(day2) {
		t.Errorf("day 2: got %+v", got[1])
	}
	if len(Dedupe(nil)) != 0 {
		t.Error("expected empty result for nil input")
	}
}

func TestProgression(t *testing.T) {
	d1 := time.Date(2026, 4, 1, 18, 0, 0, 0, time.UTC)
	d2 := d1.Add(48 * time.Hour)
	sets := []models.SessionSetRow{
		{ExerciseID: 1, ExerciseName: "Squat", FinishedAt: d1, Reps: 5, WeightKg: 100},
		{ExerciseID: 1, ExerciseName: "Squat", FinishedAt: d1, Reps: 3, WeightKg: 110},
		{ExerciseID: 1, ExerciseName: "Squat", FinishedAt: d2, Reps: 1, WeightKg: 130},
		{ExerciseID: 2, ExerciseName: "Bench", FinishedAt: d2, Reps: 8, WeightKg: 60},
		{ExerciseID: 3, ExerciseName: "Plank", FinishedAt: d2, Reps: 60, TimeBased: true},
		{ExerciseID: 4, ExerciseName: "Dips", FinishedAt: d2, Reps: 0, WeightKg: 20},
	}

	got := Progression(sets)
	if len(got) != 2 {
		t.Fatalf("expected 2 series, got %d: %+v", len(got), got)
	}
	if got[0].ExerciseName != "Bench" || got[1].ExerciseName != "Squat" {
		t.Fatalf("unexpected order: %s, %s", got[0].ExerciseName, got[1].ExerciseName)
	}
	squat := got[1]
	if len(squat.Points) != 2 {
		t.Fatalf("expected 2 squat points, got %d", len(squat.Points))
	}
	if want := 110 * (1 + 3.0/30); squat.Points[0].Value != want {
		t.Errorf("day 1 best = %v, want %v", squat.Points[0].Value, want)
	}
	if squat.Best != 130 {
		t.Errorf("best = %v, want 130", squat.Best)
	}
}

func TestVolume(t *testing.T) {
	sets := []models.SessionSetRow{
		{Reps: 5, WeightKg: 100},
		{Reps: 8, WeightKg: 50},
		{Reps: 60, TimeBased: true},
	}
	if got := Volume(sets); got != 900 {
		t.Errorf("Volume = %v, want 900", got)
	}
}
