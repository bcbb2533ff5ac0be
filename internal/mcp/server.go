package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the user ID injected by the transport layer.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, live SessionSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("GroupLift", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("GroupLift group workout server. Inspect live sessions, workout definitions, and archived set history. History is scoped to the authenticated user."),
	)

	h := &handlers{ds: ds, live: live, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolListActiveSessions, Handler: h.listActiveSessions},
		server.ServerTool{Tool: toolGetSession, Handler: h.getSession},
		server.ServerTool{Tool: toolGetWorkout, Handler: h.getWorkout},
		server.ServerTool{Tool: toolGetExerciseHistory, Handler: h.getExerciseHistory},
		server.ServerTool{Tool: toolEstimateOneRepMax, Handler: h.estimateOneRepMax},
	)

	s.AddResources(
		server.ServerResource{Resource: resActiveSessions, Handler: h.activeSessions},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds   DataSource
	live SessionSource
	log  *slog.Logger
}

var resActiveSessions = mcp.NewResource(
	"grouplift://active_sessions",
	"Active Sessions",
	mcp.WithResourceDescription("All live group sessions with whose turn it is and the active exercise"),
	mcp.WithMIMEType("application/json"),
)
