// Package roomapi is the REST client for the game server: it pulls
// authoritative room snapshots and dispatches user actions. The realtime
// engine only consumes its success/failure outcomes.
package roomapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client talks to the game server's JSON API
type Client struct {
	baseURL  string
	client   *http.Client
	playerID string
}

// NewClient creates a client for the given base URL, e.g. http://localhost:8080
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetTimeout overrides the request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// SetPlayerID sets the participant identity sent as the X-Player-ID header
// on every subsequent request.
func (c *Client) SetPlayerID(id string) {
	c.playerID = id
}

// APIError is a structured error response from the server
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %s (http %d): %s", e.Code, e.StatusCode, e.Message)
}

// Well-known server error codes
const (
	CodeRoomNotFound        = "ROOM_NOT_FOUND"
	CodeRoomFull            = "ROOM_FULL"
	CodeGameAlreadyStarted  = "GAME_ALREADY_STARTED"
	CodeGameNotStarted      = "GAME_NOT_STARTED"
	CodeInsufficientPlayers = "INSUFFICIENT_PLAYERS"
	CodePlayerNotFound      = "PLAYER_NOT_FOUND"
	CodeInvalidNickname     = "INVALID_NICKNAME"
)

// IsCode reports whether err is an APIError carrying the given server code
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// do performs a JSON request. A non-2xx response is decoded into an
// APIError so callers can branch on the server's error code.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.playerID != "" {
		req.Header.Set("X-Player-ID", c.playerID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "UNKNOWN_ERROR"
			apiErr.Message = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
