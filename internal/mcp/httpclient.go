package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/claude/grouplift/internal/models"
	"github.com/claude/grouplift/internal/rotation"
)

// HTTPClient implements DataSource and SessionSource by calling the
// GroupLift REST API. Used for remote MCP mode where the binary runs
// locally (stdio) but sessions live on the remote server (accessed over
// Tailscale). The server scopes history to the caller, so user ids passed
// in are ignored.
type HTTPClient struct {
	baseURL    string
	devUser    string
	httpClient *http.Client
}

// Compile-time checks.
var (
	_ DataSource    = (*HTTPClient)(nil)
	_ SessionSource = (*HTTPClient)(nil)
)

var errNotFound = errors.New("httpclient: not found")

// NewHTTPClient creates an HTTPClient targeting the given base URL. devUser
// is sent as X-Dev-User when non-empty, for servers running without
// Tailscale.
func NewHTTPClient(baseURL, devUser string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		devUser:    devUser,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	if c.devUser != "" {
		req.Header.Set("X-Dev-User", c.devUser)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", path, errNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}

	return body, nil
}

func timeParams(start, end time.Time) url.Values {
	v := url.Values{}
	v.Set("start", start.Format(time.RFC3339))
	v.Set("end", end.Format(time.RFC3339))
	return v
}

func (c *HTTPClient) LoadWorkoutDefinition(ctx context.Context, workoutID int64) (models.WorkoutDefinition, error) {
	body, err := c.get(ctx, "/api/v1/workouts/"+strconv.FormatInt(workoutID, 10), nil)
	if errors.Is(err, errNotFound) {
		return models.WorkoutDefinition{}, fmt.Errorf("workout %d: %w", workoutID, rotation.ErrNotFound)
	}
	if err != nil {
		return models.WorkoutDefinition{}, err
	}
	var def models.WorkoutDefinition
	if err := json.Unmarshal(body, &def); err != nil {
		return models.WorkoutDefinition{}, fmt.Errorf("httpclient: decode workout: %w", err)
	}
	return def, nil
}

func (c *HTTPClient) QuerySessionSets(ctx context.Context, _, exerciseID int64, start, end time.Time) ([]models.SessionSetRow, error) {
	params := timeParams(start, end)
	if exerciseID > 0 {
		params.Set("exercise_id", strconv.FormatInt(exerciseID, 10))
	}
	body, err := c.get(ctx, "/api/v1/history/sets", params)
	if err != nil {
		return nil, err
	}
	var rows []models.SessionSetRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("httpclient: decode sets: %w", err)
	}
	return rows, nil
}

// ListSessions returns nil when the server cannot be reached; the MCP
// tools report an empty list in that case.
func (c *HTTPClient) ListSessions(ctx context.Context) []rotation.View {
	body, err := c.get(ctx, "/api/v1/sessions", nil)
	if err != nil {
		return nil
	}
	var views []rotation.View
	if err := json.Unmarshal(body, &views); err != nil {
		return nil
	}
	return views
}

func (c *HTTPClient) GetSession(ctx context.Context, sessionID string) (rotation.View, bool) {
	body, err := c.get(ctx, "/api/v1/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return rotation.View{}, false
	}
	var view rotation.View
	if err := json.Unmarshal(body, &view); err != nil {
		return rotation.View{}, false
	}
	return view, true
}
