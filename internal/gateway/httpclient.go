package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/claude/utegym/internal/models"
)

// StatusError is a non-2xx response from the server.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Path, e.Code, e.Body)
}

// HTTPClient implements Gateway and ReferenceSource over the Utegym REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	userID     string
	httpClient *http.Client
	attempts   int
	backoff    time.Duration
}

var (
	_ Gateway         = (*HTTPClient)(nil)
	_ ReferenceSource = (*HTTPClient)(nil)
)

// NewHTTPClient creates a client for the server at baseURL. userID may be
// empty for guests.
func NewHTTPClient(baseURL, apiKey, userID string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		userID:     userID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		attempts:   3,
		backoff:    time.Second,
	}
}

// WithRetry sets the number of attempts and the base backoff between them.
func (c *HTTPClient) WithRetry(attempts int, backoff time.Duration) *HTTPClient {
	if attempts < 1 {
		attempts = 1
	}
	c.attempts = attempts
	c.backoff = backoff
	return c
}

type idResponse struct {
	ID string `json:"id"`
}

func (c *HTTPClient) CreateSession(ctx context.Context, p WorkoutPayload) (string, error) {
	var resp idResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", nil, p, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *HTTPClient) FinishSession(ctx context.Context, sessionID string, p WorkoutPayload) error {
	return c.do(ctx, http.MethodPatch, "/api/v1/sessions/"+url.PathEscape(sessionID), nil, p, nil)
}

func (c *HTTPClient) LogCompletedWorkout(ctx context.Context, p WorkoutPayload) (string, error) {
	var resp idResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/workouts/complete", nil, p, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *HTTPClient) InsertWorkout(ctx context.Context, h WorkoutHeader) (string, error) {
	var resp idResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/workouts", nil, h, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *HTTPClient) InsertExerciseLogs(ctx context.Context, workoutID string, rows []models.ExerciseLogRow) error {
	return c.do(ctx, http.MethodPut, "/api/v1/workouts/"+url.PathEscape(workoutID)+"/logs", nil, rows, nil)
}

func (c *HTTPClient) ListGyms(ctx context.Context, f GymFilter) ([]models.Gym, error) {
	params := url.Values{}
	if f.Search != "" {
		params.Set("q", f.Search)
	}
	if f.Municipality != "" {
		params.Set("municipality", f.Municipality)
	}
	var gyms []models.Gym
	if err := c.do(ctx, http.MethodGet, "/api/v1/gyms", params, nil, &gyms); err != nil {
		return nil, err
	}
	return gyms, nil
}

func (c *HTTPClient) ListExercises(ctx context.Context, f ExerciseFilter) ([]models.Exercise, error) {
	params := url.Values{}
	if f.GymID != "" {
		params.Set("gym_id", f.GymID)
	}
	if f.Search != "" {
		params.Set("q", f.Search)
	}
	if len(f.EquipmentKeys) > 0 {
		params.Set("equipment", strings.Join(f.EquipmentKeys, ","))
	}
	var exercises []models.Exercise
	if err := c.do(ctx, http.MethodGet, "/api/v1/exercises", params, nil, &exercises); err != nil {
		return nil, err
	}
	return exercises, nil
}

func (c *HTTPClient) ListMethods(ctx context.Context) ([]models.Method, error) {
	var methods []models.Method
	if err := c.do(ctx, http.MethodGet, "/api/v1/methods", nil, nil, &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

func (c *HTTPClient) ListWorkouts(ctx context.Context, f WorkoutFilter) ([]models.WorkoutRow, error) {
	params := url.Values{}
	if !f.Start.IsZero() {
		params.Set("start", f.Start.Format(time.RFC3339))
	}
	if !f.End.IsZero() {
		params.Set("end", f.End.Format(time.RFC3339))
	}
	var workouts []models.WorkoutRow
	if err := c.do(ctx, http.MethodGet, "/api/v1/workouts", params, nil, &workouts); err != nil {
		return nil, err
	}
	return workouts, nil
}

// Ping checks that the server is reachable.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v1/healthz", nil, nil, nil)
}

// do sends one request, retrying transport errors and 5xx responses with
// exponential backoff. Writes are safe to retry because they are keyed by
// the run's client key.
func (c *HTTPClient) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway: marshal %s: %w", path, err)
		}
	}

	var lastErr error
	for attempt := range c.attempts {
		if attempt > 0 {
			wait := c.backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return fmt.Errorf("gateway: %s: %w", path, ctx.Err())
			case <-time.After(wait):
			}
		}

		respBody, err := c.roundTrip(ctx, method, u, data)
		if err == nil {
			if out == nil || len(respBody) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("gateway: decode %s: %w", path, err)
			}
			return nil
		}
		lastErr = err

		var se *StatusError
		if errors.As(err, &se) {
			se.Path = path
			if se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden {
				return fmt.Errorf("gateway: %w: %w", ErrUnauthorized, err)
			}
			if se.Code < 500 {
				return fmt.Errorf("gateway: %w", err)
			}
		}
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("gateway: %s after %d attempts: %w", path, c.attempts, lastErr)
}

func (c *HTTPClient) roundTrip(ctx context.Context, method, u string, data []byte) ([]byte, error) {
	var reader io.Reader
	if data != nil {
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
