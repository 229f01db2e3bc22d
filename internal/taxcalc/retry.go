package taxcalc

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rezonia/fiscal-xml/internal/metrics"
	"github.com/rezonia/fiscal-xml/internal/model"
)

// maxErrorBody bounds how much of an error response is kept in StatusError
const maxErrorBody = 512

// StatusError is a non-2xx response from the service
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status may succeed on a later attempt:
// 429 and 5xx are, every other 4xx is terminal
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

var errMalformedResponse = errors.New("malformed response")

// call posts payload to path and decodes the JSON response into out. Network
// errors, timeouts, 429 and 5xx are retried with a 2^attempt backoff; other
// failures end the call at once. Every failure is an *model.IntegrationError.
func (c *Client) call(ctx context.Context, op, path string, payload, out any) error {
	start := time.Now()

	body, err := json.Marshal(payload)
	if err != nil {
		return model.NewIntegrationError(op, 0, 0, err)
	}

	cacheKey := cacheKey(op, body)
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, cacheKey); ok && json.Unmarshal(cached, out) == nil {
			c.metrics.ObserveTaxCall(op, metrics.OutcomeCacheHit, 0)
			return nil
		}
	}

	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return c.fail(op, attempt, lastStatus, err, start)
		}

		raw, status, err := c.post(ctx, path, body)
		if status != 0 {
			lastStatus = status
		}
		if err == nil {
			if err := json.Unmarshal(raw, out); err != nil {
				return c.fail(op, attempt+1, status, fmt.Errorf("%w: %v", errMalformedResponse, err), start)
			}
			if c.cache != nil {
				c.cache.Set(ctx, cacheKey, raw, c.cacheTTL)
			}
			c.metrics.ObserveTaxCall(op, metrics.OutcomeOK, time.Since(start))
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return c.fail(op, attempt+1, lastStatus, err, start)
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return c.fail(op, attempt+1, se.StatusCode, err, start)
		}

		if attempt < c.maxAttempts-1 {
			wait := c.backoffUnit * time.Duration(1<<attempt)
			c.log.Warn("tax service request failed, retrying",
				zap.String("operation", op),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", c.maxAttempts),
				zap.Int("status", status),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
			c.metrics.IncRetry(op)
			if err := c.sleep(ctx, wait); err != nil {
				return c.fail(op, attempt+1, lastStatus, err, start)
			}
		}
	}

	return c.fail(op, c.maxAttempts, lastStatus, lastErr, start)
}

func (c *Client) fail(op string, attempts, status int, cause error, start time.Time) error {
	c.metrics.ObserveTaxCall(op, metrics.OutcomeError, time.Since(start))
	c.log.Error("tax service request failed",
		zap.String("operation", op),
		zap.Int("attempts", attempts),
		zap.Int("status", status),
		zap.Error(cause),
	)
	return model.NewIntegrationError(op, attempts, status, cause)
}

// post performs one attempt. The status is 0 when no response was received.
func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return nil, resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
	}
	return raw, resp.StatusCode, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func cacheKey(op string, body []byte) string {
	sum := sha256.Sum256(body)
	return "fiscalxml:taxcalc:" + op + ":" + hex.EncodeToString(sum[:])
}
