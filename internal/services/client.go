package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracksync/internal/ratelimit"
	"github.com/desertthunder/tracksync/internal/shared"
)

// client performs JSON requests against one API through a rate limited, retrying executor.
type client struct {
	service    string
	baseURL    string
	httpClient *http.Client
	exec       *ratelimit.Executor
	logger     *log.Logger
	headers    func(h http.Header) error
}

// do sends one request and decodes a 2xx body into result. Non-2xx responses become [*shared.APIError].
func (c *client) do(ctx context.Context, method, endpoint string, body, result any) error {
	label := method + " " + endpoint
	return c.exec.Do(ctx, label, func(ctx context.Context) error {
		return c.once(ctx, method, endpoint, body, result)
	})
}

func (c *client) once(ctx context.Context, method, endpoint string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.headers != nil {
		if err := c.headers(req.Header); err != nil {
			return err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", shared.ErrServiceUnavailable, method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := shared.NewAPIError(c.service, method, endpoint, resp.StatusCode, data)
		apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		c.logger.Debug("api error", "method", method, "endpoint", endpoint, "status", resp.StatusCode, "body", apiErr.Body)
		return apiErr
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil && err != io.EOF {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
