// Package qaboard provides a Go SDK for the Q&A dashboard API.
//
// Besides plain REST calls, it keeps a live, paginated view of the question
// list: a Feed loads pages on demand, and a Hub multiplexes the realtime
// channel whose change notifications the Feed reconciles into its window.
//
// Example:
//
//	client := qaboard.NewClient("", qaboard.WithBaseURL("http://localhost:8000"))
//
//	feed := client.NewFeed(&qaboard.FeedOptions{PageSize: 20})
//	if err := feed.FetchFirstPage(ctx); err != nil {
//		// retry later; the window is untouched
//	}
//	detach := feed.Attach(client.Realtime())
//	defer detach()
//
//	feed.LoadMore(ctx) // when the user scrolls to the end
package qaboard

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
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

type Client struct {
	token          string
	baseURL        string
	wsURL          string
	httpClient     *http.Client
	limiter        *rate.Limiter
	logger         *log.Logger
	reconnectDelay time.Duration
	dialer         Dialer

	hubMu sync.Mutex
	hub   *Hub
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithWSURL overrides the realtime endpoint derived from the base URL.
func WithWSURL(url string) ClientOption {
	return func(c *Client) { c.wsURL = url }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithRateLimit caps REST requests at rps per second with the given burst.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithReconnectDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.reconnectDelay = d }
}

// WithDialer replaces the websocket dialer used by Realtime.
func WithDialer(d Dialer) ClientOption {
	return func(c *Client) { c.dialer = d }
}

// NewClient creates a new client. token is optional and only needed for
// admin operations such as UpdateStatus.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = discardLogger()
	}
	return c
}

// SetToken sets or updates the bearer token.
func (c *Client) SetToken(token string) {
	c.token = token
}

// BaseURL returns the REST base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// WSURL returns the realtime endpoint.
func (c *Client) WSURL() string {
	if c.wsURL != "" {
		return c.wsURL
	}
	base := strings.Replace(c.baseURL, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + "/ws"
}

// Realtime returns the client's Hub, creating it on first use. The Hub is
// shared by every caller of the same Client; its connection opens with the
// first subscriber.
func (c *Client) Realtime() *Hub {
	c.hubMu.Lock()
	defer c.hubMu.Unlock()
	if c.hub == nil {
		c.hub = NewHub(&RealtimeConfig{
			URL:            c.WSURL(),
			ReconnectDelay: c.reconnectDelay,
			Dialer:         c.dialer,
			Logger:         c.logger,
		})
	}
	return c.hub
}

// Close disconnects the realtime channel if it was ever opened.
func (c *Client) Close() error {
	c.hubMu.Lock()
	hub := c.hub
	c.hubMu.Unlock()
	if hub == nil {
		return nil
	}
	return hub.Close()
}

// NewFeed creates a Feed paged through this client.
func (c *Client) NewFeed(opts *FeedOptions) *Feed {
	o := FeedOptions{Logger: c.logger}
	if opts != nil {
		o.PageSize = opts.PageSize
		if opts.Logger != nil {
			o.Logger = opts.Logger
		}
	}
	return NewFeed(c, &o)
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return nil, apiErr
	}
	return data, nil
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// ============================================================================
// Questions API
// ============================================================================

// FetchPage implements Pager over GET /questions/.
func (c *Client) FetchPage(ctx context.Context, pageSize int, cursor *Cursor) (*Page, error) {
	q := url.Values{}
	if pageSize > 0 {
		q.Set("limit", strconv.Itoa(pageSize))
	}
	if cursor != nil {
		q.Set("cursor", string(*cursor))
	}
	data, err := c.doRequest(ctx, http.MethodGet, "/questions/", nil, q)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Page](data)
}

// SubmitQuestion posts a new question. Anyone may submit.
func (c *Client) SubmitQuestion(ctx context.Context, message string) (*Question, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: question cannot be blank", ErrInvalidInput)
	}
	data, err := c.doRequest(ctx, http.MethodPost, "/questions/", map[string]string{"message": message}, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Question](data)
}

// AnswerQuestion attaches an answer to question id.
func (c *Client) AnswerQuestion(ctx context.Context, id int, answer string) (*Question, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, fmt.Errorf("%w: answer cannot be blank", ErrInvalidInput)
	}
	path := "/questions/" + strconv.Itoa(id) + "/answer"
	data, err := c.doRequest(ctx, http.MethodPost, path, map[string]string{"answer": answer}, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Question](data)
}

// UpdateStatus changes the status of question id. Requires an admin token.
func (c *Client) UpdateStatus(ctx context.Context, id int, status Status) (*Question, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidInput, status)
	}
	path := "/questions/" + strconv.Itoa(id) + "/status"
	data, err := c.doRequest(ctx, http.MethodPatch, path, map[string]Status{"status": status}, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Question](data)
}
