// Package client talks to the room service over HTTP. A *Client is both the
// event log and the room registry of a remote peer.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/playperu/mergeclash/internal/api"
	"github.com/playperu/mergeclash/internal/eventlog"
	"github.com/playperu/mergeclash/internal/mergeclash"
)

// StatusError is a non-2xx answer from the service. A 404 matches
// eventlog.ErrRoomNotFound with errors.Is.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("room service: %d %s: %s", e.Code, http.StatusText(e.Code), e.Message)
}

func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusNotFound {
		return eventlog.ErrRoomNotFound
	}
	return nil
}

type Client struct {
	base *url.URL
	// reads retries idempotent requests; writes never retries, so a publish
	// that timed out after reaching the server is not logged twice.
	reads  *retryablehttp.Client
	writes *retryablehttp.Client
	logger *slog.Logger
}

type Option func(*Client)

func WithRetries(n int) Option {
	return func(c *Client) {
		c.reads.RetryMax = n
	}
}

// WithRetryWait bounds the jittered wait between read attempts.
func WithRetryWait(min, max time.Duration) Option {
	return func(c *Client) {
		c.reads.RetryWaitMin = min
		c.reads.RetryWaitMax = max
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.reads.HTTPClient = hc
		c.writes.HTTPClient = hc
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
		c.reads.Logger = logger
		c.writes.Logger = logger
	}
}

func newRetryable(retries int) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Backoff = retryablehttp.LinearJitterBackoff
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil
	// Hand the last response back instead of a generic error, so callers
	// see the service's message.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc
}

func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing address: %w", err)
	}
	if base.Scheme == "" {
		base.Scheme = "http"
	}
	c := &Client{
		base:   base,
		reads:  newRetryable(3),
		writes: newRetryable(0),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) CreateRoom(ctx context.Context, req api.CreateRoomRequest) (api.RoomResponse, error) {
	var out api.RoomResponse
	err := c.do(ctx, c.writes, http.MethodPost, "/api/rooms", nil, req, &out)
	return out, err
}

func (c *Client) JoinRoom(ctx context.Context, code, nickname string) (api.RoomResponse, error) {
	var out api.RoomResponse
	err := c.do(ctx, c.writes, http.MethodPost, "/api/rooms/"+code+"/join", nil, api.JoinRoomRequest{Nickname: nickname}, &out)
	return out, err
}

func (c *Client) GetRoom(ctx context.Context, code string) (mergeclash.Room, error) {
	var out api.StatusResponse
	err := c.do(ctx, c.reads, http.MethodGet, "/api/rooms/"+code+"/status", nil, nil, &out)
	return out.Room, err
}

// SetStatus is retried: the service treats a repeated status as a no-op.
func (c *Client) SetStatus(ctx context.Context, code string, status mergeclash.RoomStatus) error {
	return c.do(ctx, c.reads, http.MethodPatch, "/api/rooms/"+code+"/status", nil, api.SetStatusRequest{Status: status}, nil)
}

func (c *Client) Append(ctx context.Context, roomCode, senderID string, kind eventlog.Kind, payload json.RawMessage) (eventlog.Event, error) {
	var out api.EventResponse
	req := api.AppendEventRequest{SenderID: senderID, Kind: kind, Payload: payload}
	err := c.do(ctx, c.writes, http.MethodPost, "/api/rooms/"+roomCode+"/events", nil, req, &out)
	return out.Event, err
}

func (c *Client) Query(ctx context.Context, roomCode string, q eventlog.Query) ([]eventlog.Event, error) {
	params := url.Values{}
	if !q.After.IsZero() {
		params.Set(api.ParamAfter, q.After.UTC().Format(api.TimeFormat))
	}
	if q.ExcludeSender != "" {
		params.Set(api.ParamSenderID, q.ExcludeSender)
	}
	if q.Limit > 0 {
		params.Set(api.ParamLimit, strconv.Itoa(q.Limit))
	}
	var out api.EventsResponse
	err := c.do(ctx, c.reads, http.MethodGet, "/api/rooms/"+roomCode+"/events", params, nil, &out)
	return out.Events, err
}

func (c *Client) do(ctx context.Context, rc *retryablehttp.Client, method, path string, params url.Values, in, out any) error {
	u := c.base.JoinPath(path)
	u.RawQuery = params.Encode()

	var body any
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		body = data
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := rc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		var e api.ErrorResponse
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = string(bytes.TrimSpace(data))
		}
		c.logger.Debug("room service request failed", "method", method, "path", path, "status", res.StatusCode, "error", e.Error)
		return &StatusError{Code: res.StatusCode, Message: e.Error}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response body: %w", err)
		}
	}
	return nil
}
