// Package client talks to a running rapport server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/model"
	"github.com/lazypower/rapport/internal/scheduler"
)

const (
	defaultServerURL = "http://127.0.0.1:37778"
	httpTimeout      = 10 * time.Second
)

// Client is a thin JSON client for the rapport API.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for serverURL. An empty URL falls back to RAPPORT_URL,
// then to http://127.0.0.1:37778.
func New(serverURL string) *Client {
	if serverURL == "" {
		serverURL = os.Getenv("RAPPORT_URL")
	}
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: strings.TrimRight(serverURL, "/"),
	}
}

// URL returns the server base URL.
func (c *Client) URL() string {
	return c.serverURL
}

// Post sends a POST request with a JSON body and returns the response body.
func (c *Client) Post(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Get sends a GET request and returns the response body.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return data, &StatusError{Method: method, Path: path, Status: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

// StatusError is returned for 4xx and 5xx responses.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

func errorMessage(data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(data))
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.Get(ctx, "/api/health")
	return err == nil
}

// InteractionRequest is the body of a logged interaction. Zero quality asks
// the server to rate it.
type InteractionRequest struct {
	Type      model.InteractionType `json:"type,omitempty"`
	Timestamp *time.Time            `json:"timestamp,omitempty"`
	Duration  *float64              `json:"duration,omitempty"`
	Notes     *string               `json:"notes,omitempty"`
	Quality   float64               `json:"quality,omitempty"`
}

// LoggedInteraction is the server's reply to LogInteraction.
type LoggedInteraction struct {
	model.Interaction
	Signals engine.Signals `json:"signals"`
}

// LogInteraction records an interaction for contactID.
func (c *Client) LogInteraction(ctx context.Context, contactID string, req InteractionRequest) (*LoggedInteraction, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode interaction: %w", err)
	}
	data, err := c.Post(ctx, "/api/contacts/"+contactID+"/interactions", body)
	if err != nil {
		return nil, err
	}
	var out LoggedInteraction
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode interaction: %w", err)
	}
	return &out, nil
}

// Evaluate asks the server to run one cycle now.
func (c *Client) Evaluate(ctx context.Context, dryRun bool) ([]scheduler.Reminder, error) {
	path := "/api/evaluate"
	if dryRun {
		path += "?dry_run=true"
	}
	data, err := c.Post(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Reminders []scheduler.Reminder `json:"reminders"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode reminders: %w", err)
	}
	return out.Reminders, nil
}
