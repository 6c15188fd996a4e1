package tabichan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// REST API endpoints.
const (
	// DefaultBaseURL is the production REST API.
	DefaultBaseURL = "https://tourism-api.podtech-ai.com/v1"
	// AlternativeBaseURL is the fallback REST API.
	AlternativeBaseURL = "https://tabichan.podtech-ai.com/v1"
)

const (
	pollInterval    = 10 * time.Second
	maxPollAttempts = 30 // 5 minutes at the default interval
)

// Per-call timeouts, matching the service's latency profile.
const (
	startChatTimeout = 3 * time.Second
	pollTimeout      = 5 * time.Second
	imageTimeout     = 30 * time.Second
)

// Client communicates with the Tabichan REST API: start a chat task, poll it
// to completion, fetch itinerary images. It works independently of the
// WebSocket client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	pollEvery time.Duration
}

// NewClient creates a REST client. If apiKey is empty the TABICHAN_API_KEY
// environment variable is used, and a TABICHAN_BASE_URL environment variable
// overrides the default endpoint.
func NewClient(apiKey string) (*Client, error) {
	creds, err := credentialsFromEnv()
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		apiKey = creds.APIKey
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := DefaultBaseURL
	if creds.BaseURL != "" {
		baseURL = creds.BaseURL
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{},
		pollEvery:  pollInterval,
	}, nil
}

// BaseURL returns the configured REST endpoint.
func (c *Client) BaseURL() string { return c.baseURL }

// SetBaseURL replaces the REST endpoint.
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

// StartChat submits a planning query and returns the backend task id to
// poll for the result.
func (c *Client) StartChat(ctx context.Context, query, userID string, opts ChatOptions) (string, error) {
	if userID == "" {
		return "", ErrMissingUserID
	}
	country := opts.Country
	if country == "" {
		country = CountryJapan
	}
	history := opts.History
	if history == nil {
		history = []HistoryEntry{}
	}
	inputs := opts.AdditionalInputs
	if inputs == nil {
		inputs = map[string]any{}
	}

	req := startChatRequest{
		UserQuery:        query,
		UserID:           userID,
		Country:          country,
		History:          history,
		AdditionalInputs: inputs,
	}
	var resp startChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/chat", startChatTimeout, req, &resp); err != nil {
		return "", err
	}
	return resp.TaskID, nil
}

// PollChat fetches the current status of a chat task.
func (c *Client) PollChat(ctx context.Context, taskID string) (*PollResponse, error) {
	path := "/chat/poll?task_id=" + url.QueryEscape(taskID)
	var resp PollResponse
	if err := c.doJSON(ctx, http.MethodGet, path, pollTimeout, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WaitForChat polls a chat task at a fixed interval until it completes and
// returns the result payload. A failed task returns *ChatFailedError, a
// status outside the known set returns *UnexpectedStatusError, and
// exhausting the attempt ceiling returns ErrPollTimeout. A task already
// completed on the first poll returns without sleeping.
func (c *Client) WaitForChat(ctx context.Context, taskID string) (json.RawMessage, error) {
	for attempt := 1; attempt <= maxPollAttempts; attempt++ {
		poll, err := c.PollChat(ctx, taskID)
		if err != nil {
			return nil, fmt.Errorf("poll chat: %w", err)
		}

		switch poll.Status {
		case StatusCompleted:
			return poll.Result, nil
		case StatusRunning:
			slog.Debug("generation still running", "task_id", taskID, "attempt", attempt, "max", maxPollAttempts)
		case StatusFailed:
			return nil, &ChatFailedError{TaskID: taskID, Reason: poll.Error}
		default:
			return nil, &UnexpectedStatusError{TaskID: taskID, Status: poll.Status}
		}

		if attempt < maxPollAttempts {
			select {
			case <-time.After(c.pollEvery):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, ErrPollTimeout
}

// GetImage fetches a location image by id and returns its base64 payload.
func (c *Client) GetImage(ctx context.Context, id string, country Country) (string, error) {
	if country == "" {
		country = CountryJapan
	}
	path := "/image?id=" + url.QueryEscape(id) + "&country=" + url.QueryEscape(string(country))
	var resp imageResponse
	if err := c.doJSON(ctx, http.MethodGet, path, imageTimeout, nil, &resp); err != nil {
		return "", err
	}
	return resp.Base64, nil
}

// doJSON sends an authed request and decodes the JSON response into dest.
// Responses are requested gzip-encoded and decompressed explicitly:
// itinerary payloads are large, and setting Accept-Encoding ourselves lets
// the faster gzip reader handle them.
func (c *Client) doJSON(ctx context.Context, method, path string, timeout time.Duration, reqBody, dest any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("X-Request-Id", uuid.NewString())
	req.Header.Set("Accept-Encoding", "gzip")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	reader := io.Reader(resp.Body)
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("gzip response: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(reader)
		return fmt.Errorf("tabichan returned %d: %s", resp.StatusCode, string(b))
	}

	if dest != nil {
		if err := json.NewDecoder(reader).Decode(dest); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
