package alert

import (
	"bytes"
	"fmt"
	"net/http"
	"time"
)

const (
	sendTimeout  = 5 * time.Second
	sendAttempts = 3
)

var client = &http.Client{Timeout: sendTimeout}

// Send formats the event for cfg and posts it to the configured webhook.
// Transport failures and 5xx responses are retried with a linear backoff;
// a 4xx means the endpoint rejected the payload and stops the delivery.
func Send(cfg AlertConfig, event AlertEvent) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("alert: format payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < sendAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * time.Second)
		}

		status, err := post(cfg, body)
		switch {
		case err != nil:
			lastErr = err
		case status >= 200 && status < 300:
			return nil
		case status >= 400 && status < 500:
			return fmt.Errorf("alert: endpoint rejected event: HTTP %d", status)
		default:
			lastErr = fmt.Errorf("alert: endpoint error: HTTP %d", status)
		}
	}

	return fmt.Errorf("alert: delivery failed after %d attempts: %w", sendAttempts, lastErr)
}

// post performs one delivery attempt. The request body reader cannot be
// reused, so each attempt builds its own request.
func post(cfg AlertConfig, body []byte) (int, error) {
	req, err := http.NewRequest(http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("alert: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
