package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/surfsense/surfsense-backend/internal/pkg/httpx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

// apiError carries the upstream status so httpx can classify retryability.
type apiError struct {
	Source     string
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300]
	}
	return fmt.Sprintf("%s http %d: %s", e.Source, e.StatusCode, body)
}

func (e *apiError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// restClient is the shared HTTP layer for adapters: JSON in/out, rate-limit
// back-off honoring Retry-After, bounded retries.
type restClient struct {
	source     string
	log        *logger.Logger
	httpClient *http.Client
	maxRetries int
}

func newRESTClient(source string, log *logger.Logger) *restClient {
	return &restClient{
		source:     source,
		log:        log.With("connector", source),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxRetries: 4,
	}
}

func (c *restClient) doOnce(ctx context.Context, method, url string, headers map[string]string, body any) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &apiError{Source: c.source, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

// getJSON / postJSON retry transient upstream failures the same way the
// OpenAI client does; per-source rate limits surface as 429 with
// Retry-After, which the back-off honors.
func (c *restClient) getJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	return c.do(ctx, http.MethodGet, url, headers, nil, out)
}

func (c *restClient) postJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	return c.do(ctx, http.MethodPost, url, headers, body, out)
}

func (c *restClient) do(ctx context.Context, method, url string, headers map[string]string, body, out any) error {
	backoff := 500 * time.Millisecond

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, url, headers, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("%s decode error: %w", c.source, uErr)
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 30*time.Second))
		c.log.Warn("upstream request retrying",
			"url", url,
			"attempt", attempt+1,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}
