package alert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	requestTimeout = 5 * time.Second
	maxAttempts    = 3
	maxRetryAfter  = 30 * time.Second
)

var (
	httpClient = &http.Client{Timeout: requestTimeout}
	retryDelay = time.Second
)

// errPermanent marks a response that retrying cannot fix.
var errPermanent = errors.New("permanent")

// Send posts an alert event to a webhook endpoint. 5xx responses and
// 429 are retried with linear backoff, a Retry-After header on 429 is
// honored up to maxRetryAfter. Cancelling ctx aborts pending retries.
func Send(ctx context.Context, cfg Config, event Event) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	var lastErr error
	wait := time.Duration(0)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("webhook delivery cancelled: %w", ctx.Err())
			case <-t.C:
			}
		}

		var retryAfter time.Duration
		retryAfter, lastErr = post(ctx, cfg, body)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, errPermanent) {
			return lastErr
		}
		wait = time.Duration(attempt) * retryDelay
		if retryAfter > wait {
			wait = retryAfter
		}
	}

	return fmt.Errorf("webhook failed after %d attempts: %w", maxAttempts, lastErr)
}

// post makes one delivery attempt and returns any server-requested
// delay before the next one.
func post(ctx context.Context, cfg Config, body []byte) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w: %w", errPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return 0, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return parseRetryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("webhook rate limited: HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return 0, fmt.Errorf("webhook rejected: HTTP %d: %w", resp.StatusCode, errPermanent)
	default:
		return 0, fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
	}
}

// parseRetryAfter reads a delay in seconds. HTTP dates and values
// above maxRetryAfter are ignored.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		return 0
	}
	return d
}
