package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/client/local"

	"github.com/claude/grouplift/internal/live"
	"github.com/claude/grouplift/internal/mcp"
	"github.com/claude/grouplift/internal/models"
	"github.com/claude/grouplift/internal/sessions"
	"github.com/claude/grouplift/internal/storage"
)

// Store is the persistence surface the HTTP layer needs.
type Store interface {
	UserResolver
	Ping(ctx context.Context) error
	GetUser(ctx context.Context, id int64) (models.User, error)
	GetUsers(ctx context.Context, ids []int64) ([]models.User, error)
	LoadWorkoutDefinition(ctx context.Context, workoutID int64) (models.WorkoutDefinition, error)
	ListWorkouts(ctx context.Context) ([]models.WorkoutDefinition, error)
	CreateExercise(ctx context.Context, ex models.ExerciseDefinition) (int64, error)
	CreateWorkout(ctx context.Context, name string) (int64, error)
	AddExercisesToWorkout(ctx context.Context, workoutID int64, inputs []models.WorkoutExerciseInput) error
	QuerySessionSets(ctx context.Context, userID, exerciseID int64, start, end time.Time) ([]models.SessionSetRow, error)
	CountArchivedSessions(ctx context.Context, userID int64) (int, error)
}

// Compile-time check: *storage.DB satisfies Store.
var _ Store = (*storage.DB)(nil)

// Server holds dependencies for HTTP handlers.
type Server struct {
	store    Store
	sessions *sessions.Service
	hub      *live.Hub
	log      *slog.Logger
	apiKey   string
	router   chi.Router

	identity func(http.Handler) http.Handler
	mcp      http.Handler
}

// New creates a new Server using the dev identity until SetTailscale is
// called.
func New(store Store, svc *sessions.Service, hub *live.Hub, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		store:    store,
		sessions: svc,
		hub:      hub,
		log:      log,
		apiKey:   apiKey,
		identity: DevIdentity(store),
	}
	s.routes()
	return s
}

// SetTailscale switches caller identification to Tailscale WhoIs.
func (s *Server) SetTailscale(lc *local.Client) {
	s.identity = TailscaleIdentity(lc, s.store)
}

// SetMCP mounts an MCP server at /mcp over streamable HTTP.
func (s *Server) SetMCP(m *mcpserver.MCPServer) {
	s.mcp = mcpserver.NewStreamableHTTPServer(m,
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return mcp.WithUserID(ctx, userIDFromContext(r))
		}),
	)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.identity(next).ServeHTTP(w, r)
	})
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if s.mcp == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "MCP not enabled"})
		return
	}
	s.mcp.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(RequestLogging(s.log))
	r.Use(CORS)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.identify)

		r.Get("/api/v1/me", s.handleMe)

		r.Route("/api/v1/sessions", func(r chi.Router) {
			r.Post("/", s.handleStartSession)
			r.Get("/", s.handleListSessions)
			r.Get("/{id}", s.handleGetSession)
			r.Post("/{id}/sets", s.handleCompleteSet)
			r.Patch("/{id}/sets", s.handleEditSet)
			r.Post("/{id}/skip", s.handleSkip)
			r.Post("/{id}/leave", s.handleLeave)
			r.Get("/{id}/live", s.handleLive)
		})

		r.Get("/api/v1/workouts", s.handleListWorkouts)
		r.Get("/api/v1/workouts/{id}", s.handleGetWorkout)
		r.Get("/api/v1/history/sets", s.handleHistorySets)
		r.Get("/api/v1/progress", s.handleProgress)

		r.HandleFunc("/mcp", s.handleMCP)
	})

	// Catalog administration (API key required)
	r.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Post("/api/v1/workouts", s.handleCreateWorkout)
		r.Post("/api/v1/exercises", s.handleCreateExercise)
		r.Post("/api/v1/workouts/{id}/exercises", s.handleAddWorkoutExercises)
	})

	s.router = r
}
