package mcp

import (
	"context"
	"time"

	"github.com/claude/grouplift/internal/models"
	"github.com/claude/grouplift/internal/rotation"
	"github.com/claude/grouplift/internal/sessions"
	"github.com/claude/grouplift/internal/storage"
)

// DataSource abstracts the archive store for MCP tools.
type DataSource interface {
	LoadWorkoutDefinition(ctx context.Context, workoutID int64) (models.WorkoutDefinition, error)
	QuerySessionSets(ctx context.Context, userID, exerciseID int64, start, end time.Time) ([]models.SessionSetRow, error)
}

// SessionSource exposes the live sessions of this process.
type SessionSource interface {
	ListSessions(ctx context.Context) []rotation.View
	GetSession(ctx context.Context, sessionID string) (rotation.View, bool)
}

// Compile-time checks.
var (
	_ DataSource    = (*storage.DB)(nil)
	_ SessionSource = (*sessions.Service)(nil)
)
