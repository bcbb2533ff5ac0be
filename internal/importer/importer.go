// Package importer loads exercise and workout definitions from YAML
// catalog files into the database.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/claude/grouplift/internal/models"
)

// Store is the catalog write surface of storage.DB.
type Store interface {
	CreateExercise(ctx context.Context, ex models.ExerciseDefinition) (int64, error)
	FindWorkoutByName(ctx context.Context, name string) (int64, bool, error)
	CreateWorkout(ctx context.Context, name string) (int64, error)
	AddExercisesToWorkout(ctx context.Context, workoutID int64, inputs []models.WorkoutExerciseInput) error
}

// Catalog is the on-disk format:
//
//	exercises:
//	  - name: Bench Press
//	    sets: 4
//	    reps: 8
//	workouts:
//	  - name: Push
//	    exercises:
//	      - name: Bench Press
//	        sets: 3
type Catalog struct {
	Exercises []models.ExerciseDefinition `yaml:"exercises"`
	Workouts  []CatalogWorkout            `yaml:"workouts"`
}

type CatalogWorkout struct {
	Name      string         `yaml:"name"`
	Exercises []CatalogEntry `yaml:"exercises"`
}

// CatalogEntry references an exercise by name. Zero Sets and nil Reps fall
// back to the exercise's own targets.
type CatalogEntry struct {
	Name string `yaml:"name"`
	Sets int    `yaml:"sets"`
	Reps *int   `yaml:"reps"`
}

// Stats tracks import progress.
type Stats struct {
	FilesProcessed int
	FilesErrored   int

	ExercisesUpserted int
	WorkoutsInserted  int
	WorkoutsSkipped   int
}

// Importer reads catalog files and writes them through a Store.
type Importer struct {
	db     Store
	log    *slog.Logger
	dryRun bool
	stats  Stats

	exercises map[string]models.ExerciseDefinition
}

// New creates a new Importer.
func New(db Store, log *slog.Logger, dryRun bool) *Importer {
	return &Importer{db: db, log: log, dryRun: dryRun, exercises: map[string]models.ExerciseDefinition{}}
}

// Import processes a single catalog file, or every .yaml/.yml file in a
// directory in lexical order. Exercises from earlier files may be used by
// workouts in later ones.
func (imp *Importer) Import(ctx context.Context, path string) (*Stats, error) {
	files, err := catalogFiles(path)
	if err != nil {
		return &imp.stats, err
	}

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return &imp.stats, fmt.Errorf("reading %s: %w", f, err)
		}
		var cat Catalog
		if err := yaml.Unmarshal(data, &cat); err != nil {
			imp.log.Warn("parse failed", "file", f, "error", err)
			imp.stats.FilesErrored++
			continue
		}
		if err := imp.importCatalog(ctx, cat); err != nil {
			return &imp.stats, fmt.Errorf("importing %s: %w", filepath.Base(f), err)
		}
		imp.stats.FilesProcessed++
	}
	return &imp.stats, nil
}

func catalogFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("catalog path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var files []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func (imp *Importer) importCatalog(ctx context.Context, cat Catalog) error {
	for _, ex := range cat.Exercises {
		if ex.Name == "" {
			return fmt.Errorf("exercise without a name")
		}
		if !imp.dryRun {
			id, err := imp.db.CreateExercise(ctx, ex)
			if err != nil {
				return err
			}
			ex.ID = id
		}
		imp.exercises[ex.Name] = ex
		imp.stats.ExercisesUpserted++
	}

	for _, w := range cat.Workouts {
		if err := imp.importWorkout(ctx, w); err != nil {
			return fmt.Errorf("workout %q: %w", w.Name, err)
		}
	}
	return nil
}

// importWorkout creates a workout unless one with the same name exists.
// Existing workouts are left untouched so re-running a catalog is safe.
func (imp *Importer) importWorkout(ctx context.Context, w CatalogWorkout) error {
	if w.Name == "" {
		return fmt.Errorf("workout without a name")
	}
	inputs, err := imp.resolveEntries(w.Exercises)
	if err != nil {
		return err
	}

	if imp.dryRun {
		imp.stats.WorkoutsInserted++
		return nil
	}

	if _, exists, err := imp.db.FindWorkoutByName(ctx, w.Name); err != nil {
		return err
	} else if exists {
		imp.log.Info("workout exists, skipping", "workout", w.Name)
		imp.stats.WorkoutsSkipped++
		return nil
	}

	id, err := imp.db.CreateWorkout(ctx, w.Name)
	if err != nil {
		return err
	}
	if err := imp.db.AddExercisesToWorkout(ctx, id, inputs); err != nil {
		return err
	}
	imp.log.Info("workout created", "workout", w.Name, "workout_id", id, "exercises", len(inputs))
	imp.stats.WorkoutsInserted++
	return nil
}

func (imp *Importer) resolveEntries(entries []CatalogEntry) ([]models.WorkoutExerciseInput, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no exercises")
	}
	inputs := make([]models.WorkoutExerciseInput, 0, len(entries))
	for _, e := range entries {
		ex, ok := imp.exercises[e.Name]
		if !ok {
			return nil, fmt.Errorf("unknown exercise %q", e.Name)
		}
		in := models.WorkoutExerciseInput{ExerciseID: ex.ID, Sets: e.Sets, Reps: e.Reps}
		if in.Sets == 0 {
			in.Sets = ex.Sets
		}
		if in.Reps == nil {
			in.Reps = ex.Reps
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}
