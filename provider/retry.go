package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultRetries    = 2
	defaultRetryDelay = 750 * time.Millisecond
)

// Do issues the request with bounded backoff, rebuilding the body for each
// attempt. Only connection failures and 5xx responses are retried; anything
// below 500 is returned for terminal handling. The response body is fully
// read so callers never hold the connection open.
func Do(ctx context.Context, client *http.Client, method, url string, payload []byte, headers map[string]string) (int, []byte, error) {
	var lastErr error
	for attempt := 0; attempt <= defaultRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(defaultRetryDelay * time.Duration(attempt)):
			}
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return 0, nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}
		if resp.StatusCode >= http.StatusInternalServerError && attempt < defaultRetries {
			lastErr = fmt.Errorf("provider: server error: status=%d", resp.StatusCode)
			continue
		}
		return resp.StatusCode, body, nil
	}
	return 0, nil, fmt.Errorf("provider: request failed after %d attempts: %w", defaultRetries+1, lastErr)
}
