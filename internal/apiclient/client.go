// Package apiclient is a thin typed client for the platform REST API:
// the seed fetch a board view performs before its socket is live, plus
// task CRUD. Once connected, the realtime layer is the source of truth.
package apiclient

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

	"github.com/gosuda/boardsync/internal/protocol"
	"github.com/gosuda/boardsync/internal/session"
)

// Sentinels for the response classes callers branch on. Use errors.As
// with *APIError for the exact status.
var (
	ErrUnauthorized = errors.New("apiclient: unauthorized")
	ErrNotFound     = errors.New("apiclient: not found")
)

// APIError is a non-2xx API response.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apiclient: status %d: %s", e.Status, e.Detail)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// Client calls the platform API with bearer auth from a session source.
type Client struct {
	base   *url.URL
	tokens session.Source
	http   *http.Client
}

// New returns a Client for the API at base, e.g. "https://api.example.com".
func New(base string, tokens session.Source) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("apiclient.New: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("apiclient: base URL must be http(s)")
	}
	return &Client{
		base:   u,
		tokens: tokens,
		http:   &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// ListTasks fetches a board's tasks, the usual seed for a reconciler.
func (c *Client) ListTasks(ctx context.Context, boardID string) ([]protocol.Task, error) {
	var env struct {
		Tasks []protocol.Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, c.endpoint("api", "v1", "boards", boardID, "tasks"), nil, &env); err != nil {
		return nil, err
	}
	return env.Tasks, nil
}

// CreateTask creates a task on the board and returns it as stored, with
// the server-assigned id when the request left it empty.
func (c *Client) CreateTask(ctx context.Context, boardID string, task protocol.Task) (protocol.Task, error) {
	var env struct {
		Task protocol.Task `json:"task"`
	}
	if err := c.do(ctx, http.MethodPost, c.endpoint("api", "v1", "boards", boardID, "tasks"), task, &env); err != nil {
		return protocol.Task{}, err
	}
	return env.Task, nil
}

// MoveTask changes a task's status and returns the updated task.
func (c *Client) MoveTask(ctx context.Context, boardID, taskID string, status protocol.Status) (protocol.Task, error) {
	body := struct {
		Status protocol.Status `json:"status"`
	}{status}
	var env struct {
		Task protocol.Task `json:"task"`
	}
	if err := c.do(ctx, http.MethodPatch, c.endpoint("api", "v1", "boards", boardID, "tasks", taskID), body, &env); err != nil {
		return protocol.Task{}, err
	}
	return env.Task, nil
}

// DeleteTask removes a task from the board.
func (c *Client) DeleteTask(ctx context.Context, boardID, taskID string) error {
	return c.do(ctx, http.MethodDelete, c.endpoint("api", "v1", "boards", boardID, "tasks", taskID), nil, nil)
}

// endpoint joins escaped path segments onto the base URL.
func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.base.JoinPath(escaped...).String()
}

func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apiclient: encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}

	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("apiclient: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Detail: strings.TrimSpace(string(detail))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("apiclient: decode response: %w", err)
	}
	return nil
}
