package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tickit-notes/tickit/internal/note"
)

// DefaultBaseURL is the Todoist REST API v1 root.
const DefaultBaseURL = "https://api.todoist.com/api/v1/"

// maxPages bounds a single List call.
const maxPages = 1000

// TokenSource supplies the bearer token for each request. An empty token is
// reported as ErrAuth without touching the network.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() string {
	return string(t)
}

// Config holds client settings.
type Config struct {
	// BaseURL of the API (default: DefaultBaseURL)
	BaseURL string

	// Timeout per request (default: 30s). Ignored when HTTPClient is set.
	Timeout time.Duration

	// PageSize for task listing (default: 200)
	PageSize int

	// Owner is recorded on notes whose payload carries no user_id.
	Owner string

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:  DefaultBaseURL,
		Timeout:  30 * time.Second,
		PageSize: 200,
		Owner:    "remote",
	}
}

// User is the account behind a token.
type User struct {
	ID    string
	Name  string
	Email string
}

// Client talks to the Todoist API. It implements Gateway.
type Client struct {
	base     *url.URL
	http     *http.Client
	tokens   TokenSource
	pageSize int
	owner    string
}

var _ Gateway = (*Client)(nil)

// NewClient creates a client that authenticates with tokens.
func NewClient(tokens TokenSource, config *Config) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token source cannot be nil")
	}
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaults.BaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = defaults.Timeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	pageSize := config.PageSize
	if pageSize <= 0 {
		pageSize = defaults.PageSize
	}
	owner := config.Owner
	if owner == "" {
		owner = defaults.Owner
	}

	return &Client{
		base:     base,
		http:     httpClient,
		tokens:   tokens,
		pageSize: pageSize,
		owner:    owner,
	}, nil
}

// List implements Gateway.List, following next_cursor until exhausted.
func (c *Client) List(ctx context.Context) ([]*note.Note, error) {
	var notes []*note.Note
	cursor := ""

	for page := 0; page < maxPages; page++ {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(c.pageSize))
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var resp taskPage
		if err := c.do(ctx, http.MethodGet, "tasks", query, nil, &resp); err != nil {
			return nil, fmt.Errorf("failed to list tasks: %w", err)
		}

		for i := range resp.Results {
			n, err := toNote(&resp.Results[i], c.owner)
			if err != nil {
				return nil, fmt.Errorf("failed to map task: %w", err)
			}
			notes = append(notes, n)
		}

		if resp.NextCursor == nil || *resp.NextCursor == "" {
			return notes, nil
		}
		cursor = *resp.NextCursor
	}

	return nil, fmt.Errorf("failed to list tasks: more than %d pages", maxPages)
}

// Create implements Gateway.Create.
func (c *Client) Create(ctx context.Context, n *note.Note) (*note.Note, error) {
	var t task
	if err := c.do(ctx, http.MethodPost, "tasks", nil, toRequest(n, false), &t); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	created, err := toNote(&t, c.owner)
	if err != nil {
		return nil, fmt.Errorf("failed to map created task: %w", err)
	}
	return created, nil
}

// Update implements Gateway.Update.
func (c *Client) Update(ctx context.Context, id string, n *note.Note) (*note.Note, error) {
	var t task
	if err := c.do(ctx, http.MethodPost, "tasks/"+id, nil, toRequest(n, true), &t); err != nil {
		return nil, fmt.Errorf("failed to update task %s: %w", id, err)
	}
	updated, err := toNote(&t, c.owner)
	if err != nil {
		return nil, fmt.Errorf("failed to map updated task: %w", err)
	}
	return updated, nil
}

// Delete implements Gateway.Delete.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "tasks/"+id, nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// FetchUser returns the account the token belongs to.
func (c *Client) FetchUser(ctx context.Context) (*User, error) {
	var u userResponse
	if err := c.do(ctx, http.MethodGet, "user", nil, nil, &u); err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return &User{ID: u.ID, Name: u.FullName, Email: u.Email}, nil
}

// do sends one request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	token := c.tokens.Token()
	if token == "" {
		return fmt.Errorf("%w: no access token", ErrAuth)
	}

	u := c.base.ResolveReference(&url.URL{Path: path})
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RemoteError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrNetwork, err)
	}
	return nil
}
