package challenge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/playperu/mergeclash/internal/mergeclash"
)

// Remote asks an external ticket generation service for a batch:
// POST {url} {"topic": ..., "count": ...} answered with a JSON ticket list.
// Generation is slow and idempotent, so failed requests are retried.
type Remote struct {
	url    string
	client *retryablehttp.Client
}

type RemoteOption func(*retryablehttp.Client)

func WithRetries(n int) RemoteOption {
	return func(c *retryablehttp.Client) {
		c.RetryMax = n
	}
}

// WithRetryWait bounds the jittered wait between attempts.
func WithRetryWait(min, max time.Duration) RemoteOption {
	return func(c *retryablehttp.Client) {
		c.RetryWaitMin = min
		c.RetryWaitMax = max
	}
}

func WithRemoteLogger(logger *slog.Logger) RemoteOption {
	return func(c *retryablehttp.Client) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

func NewRemote(url string, opts ...RemoteOption) *Remote {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Backoff = retryablehttp.LinearJitterBackoff
	client.HTTPClient.Timeout = time.Minute
	client.Logger = nil
	for _, opt := range opts {
		opt(client)
	}
	return &Remote{url: url, client: client}
}

type generateRequest struct {
	Topic mergeclash.Topic `json:"topic"`
	Count int              `json:"count"`
}

func (r *Remote) Generate(ctx context.Context, topic mergeclash.Topic, count int) ([]mergeclash.Ticket, error) {
	body, err := json.Marshal(generateRequest{Topic: topic, Count: count})
	if err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting tickets: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("ticket service: %s: %s", res.Status, bytes.TrimSpace(msg))
	}

	var tickets []mergeclash.Ticket
	if err := json.NewDecoder(res.Body).Decode(&tickets); err != nil {
		return nil, fmt.Errorf("decoding tickets: %w", err)
	}
	for i := range tickets {
		if tickets[i].Topic == "" {
			tickets[i].Topic = topic
		}
	}
	return tickets, nil
}
