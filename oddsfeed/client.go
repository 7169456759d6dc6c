package oddsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultBaseURL is the default API base URL
	DefaultBaseURL = "https://api.oddsvendor.example.com/v2"

	// DefaultTimeout is the default HTTP client timeout
	DefaultTimeout = 30 * time.Second
)

// Client represents the odds vendor API client
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client

	mu            sync.Mutex
	requestCount  int64
	lastRequestAt time.Time
}

// Config holds the configuration for the API client
type Config struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
}

// NewClient creates a new odds vendor API client
func NewClient(apiToken string) *Client {
	return NewClientWithConfig(Config{
		BaseURL:  DefaultBaseURL,
		APIToken: apiToken,
		Timeout:  DefaultTimeout,
	})
}

// NewClientWithConfig creates a new client with custom configuration
func NewClientWithConfig(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	return &Client{
		baseURL:  config.BaseURL,
		apiToken: config.APIToken,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// GetEventsParams holds the filters for a GetEvents call
type GetEventsParams struct {
	LeagueIDs    []string
	EventIDs     []string
	BookmakerIDs []string
	OddIDs       []string
	Live         *bool
	Started      *bool
	Finalized    *bool
	Limit        int
	Cursor       string
}

// GetEventsResponse is the envelope returned by the events endpoint
type GetEventsResponse struct {
	Data       []Event `json:"data"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// GetEvents fetches events with their current markets and statuses
func (c *Client) GetEvents(ctx context.Context, params GetEventsParams) (*GetEventsResponse, error) {
	values := url.Values{}
	if len(params.LeagueIDs) > 0 {
		values.Set("league_ids", strings.Join(params.LeagueIDs, ","))
	}
	if len(params.EventIDs) > 0 {
		values.Set("event_ids", strings.Join(params.EventIDs, ","))
	}
	if len(params.BookmakerIDs) > 0 {
		values.Set("bookmaker_ids", strings.Join(params.BookmakerIDs, ","))
	}
	if len(params.OddIDs) > 0 {
		values.Set("odd_ids", strings.Join(params.OddIDs, ","))
	}
	if params.Live != nil {
		values.Set("live", strconv.FormatBool(*params.Live))
	}
	if params.Started != nil {
		values.Set("started", strconv.FormatBool(*params.Started))
	}
	if params.Finalized != nil {
		values.Set("finalized", strconv.FormatBool(*params.Finalized))
	}
	if params.Limit > 0 {
		values.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Cursor != "" {
		values.Set("cursor", params.Cursor)
	}

	body, err := c.get(ctx, "/events", values)
	if err != nil {
		return nil, err
	}

	var response GetEventsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal events response: %w", err)
	}
	return &response, nil
}

// Usage returns the number of requests made and the time of the last one
func (c *Client) Usage() (int64, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestCount, c.lastRequestAt
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	if params != nil {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Accept", "application/json")

	c.mu.Lock()
	c.requestCount++
	c.lastRequestAt = time.Now()
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr APIError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
			return nil, &apiErr
		}
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// get performs a GET request
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	return c.doRequest(ctx, http.MethodGet, endpoint, params)
}

// APIError represents an error returned by the vendor API
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}
