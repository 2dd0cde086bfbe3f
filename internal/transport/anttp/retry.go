package anttp

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// retryDo executes req up to attempts times with exponential backoff.
// Retries on network errors, HTTP 429 and HTTP 5xx responses; other 4xx
// responses are returned as is. The body is buffered and replayed on each
// attempt. Backoff and rate limiting both honour req's context.
func (c *Client) retryDo(req *http.Request, attempts int) (*http.Response, error) {
	ctx := req.Context()

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
	}

	attempts = max(attempts, 1)
	var lastErr error
	backoff := c.backoff

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying remote request",
				"method", req.Method, "path", req.URL.Path, "attempt", attempt+1, "backoff", backoff)
			if err := sleepCtx(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}

		// The last response is returned unread so the caller can report it.
		if !isRetryableStatus(resp.StatusCode) || attempt == attempts-1 {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	return nil, lastErr
}

// isRetryableStatus returns true for HTTP status codes that should be retried.
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
