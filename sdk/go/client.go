package tasktracksdk

import (
	"bytes"
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
)

// Client is a minimal tasktrack HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Task mirrors the stored task record.
type Task struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	DueDate    string `json:"due_date"`
	Priority   string `json:"priority"`
	Category   string `json:"category"`
	Completed  bool   `json:"completed"`
	Recurrence string `json:"recurrence,omitempty"`
}

// NewTask is the create payload; empty optional fields use server defaults.
type NewTask struct {
	Name       string `json:"name"`
	DueDate    string `json:"due_date"`
	Priority   string `json:"priority,omitempty"`
	Category   string `json:"category,omitempty"`
	Recurrence string `json:"recurrence,omitempty"`
}

// TaskPatch only sends non-nil fields.
type TaskPatch struct {
	Name       *string `json:"name,omitempty"`
	DueDate    *string `json:"due_date,omitempty"`
	Priority   *string `json:"priority,omitempty"`
	Category   *string `json:"category,omitempty"`
	Completed  *bool   `json:"completed,omitempty"`
	Recurrence *string `json:"recurrence,omitempty"`
}

// ListParams maps onto the list query string.
type ListParams struct {
	Sort     string
	Category string
	Pending  bool
}

// Event represents a journal entry.
type Event struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts"`
	Type      string `json:"type"`
	TaskID    *int   `json:"task_id,omitempty"`
	SessionID string `json:"session_id"`
	Payload   string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// NextDue is the computed next occurrence of a task.
type NextDue struct {
	TaskID      int    `json:"task_id"`
	Recurring   bool   `json:"recurring"`
	NextDueDate string `json:"next_due_date"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type taskList struct {
	Items []Task `json:"items"`
}

func (c *Client) CreateTask(ctx context.Context, t NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", t, &resp)
	return resp, err
}

func (c *Client) GetTask(ctx context.Context, id int) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("tasks/%d", id), nil, &resp)
	return resp, err
}

func (c *Client) UpdateTask(ctx context.Context, id int, patch TaskPatch) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("tasks/%d", id), patch, &resp)
	return resp, err
}

func (c *Client) DeleteTask(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("tasks/%d", id), nil, nil)
}

// ListTasks returns tasks filtered and sorted server-side.
func (c *Client) ListTasks(ctx context.Context, p ListParams) ([]Task, error) {
	q := url.Values{}
	if p.Sort != "" {
		q.Set("sort", p.Sort)
	}
	if p.Category != "" {
		q.Set("category", p.Category)
	}
	if p.Pending {
		q.Set("pending", "true")
	}
	return c.tasks(ctx, http.MethodGet, withQuery("tasks", q))
}

func (c *Client) Search(ctx context.Context, keyword string) ([]Task, error) {
	return c.tasks(ctx, http.MethodGet, withQuery("tasks/search", url.Values{"q": {keyword}}))
}

func (c *Client) Overdue(ctx context.Context) ([]Task, error) {
	return c.tasks(ctx, http.MethodGet, "tasks/overdue")
}

func (c *Client) CompleteAll(ctx context.Context) ([]Task, error) {
	return c.tasks(ctx, http.MethodPost, "tasks/complete-all")
}

// Archive moves completed tasks to the archive file and returns them.
func (c *Client) Archive(ctx context.Context) ([]Task, error) {
	var resp struct {
		Archived []Task `json:"archived"`
	}
	err := c.do(ctx, http.MethodPost, "tasks/archive", nil, &resp)
	return resp.Archived, err
}

// Export writes the CSV export server-side and returns its path.
func (c *Client) Export(ctx context.Context) (string, error) {
	var resp struct {
		Path string `json:"path"`
	}
	err := c.do(ctx, http.MethodPost, "tasks/export", nil, &resp)
	return resp.Path, err
}

func (c *Client) NextDue(ctx context.Context, id int) (NextDue, error) {
	var resp NextDue
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("tasks/%d/next-due", id), nil, &resp)
	return resp, err
}

// Undo reverts the server's last mutation; false means nothing to undo.
func (c *Client) Undo(ctx context.Context) (bool, error) {
	var resp struct {
		Undone bool `json:"undone"`
	}
	err := c.do(ctx, http.MethodPost, "undo", nil, &resp)
	return resp.Undone, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// Event fetches one journal event by id.
func (c *Client) Event(ctx context.Context, id int64) (Event, error) {
	var resp Event
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("events/%d", id), nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp, err
}

func (c *Client) tasks(ctx context.Context, method, endpoint string) ([]Task, error) {
	var resp taskList
	err := c.do(ctx, method, endpoint, nil, &resp)
	return resp.Items, err
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
