package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	primaryTimeout   = 10 * time.Second
	geocodingTimeout = 5 * time.Second
)

// errInvokeTimeout marks an upstream call that did not complete within its
// bound. Distinct from other network failures so the dispatcher can map it
// to its own error kind.
var errInvokeTimeout = errors.New("upstream request timed out")

// upstreamHTTPError carries a non-success upstream status through to the
// caller instead of swallowing it.
type upstreamHTTPError struct {
	Status     int
	StatusText string
}

func (e *upstreamHTTPError) Error() string {
	return fmt.Sprintf("upstream responded %d %s", e.Status, e.StatusText)
}

// upstreamInvoker performs a single GET against an upstream API. One attempt
// per invocation; retry is the caller's business.
type upstreamInvoker struct {
	client    *http.Client
	userAgent string
}

func newUpstreamInvoker(serverName, version string) *upstreamInvoker {
	return &upstreamInvoker{
		client:    &http.Client{},
		userAgent: fmt.Sprintf("%s/%s", serverName, version),
	}
}

// invoke calls rawURL with params encoded as the query string and authHeaders
// forwarded verbatim. The response body is JSON-decoded into a generic value.
func (u *upstreamInvoker) invoke(ctx context.Context, rawURL string, params map[string]any, authHeaders map[string]string, timeout time.Duration) (any, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	query := target.Query()
	for key, value := range params {
		query.Set(key, paramValue(value))
	}
	target.RawQuery = query.Encode()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", u.userAgent)
	for key, value := range authHeaders {
		req.Header.Set(key, value)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w after %s", errInvokeTimeout, timeout)
		}
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &upstreamHTTPError{Status: resp.StatusCode, StatusText: http.StatusText(resp.StatusCode)}
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode upstream response: %w", err)
	}
	return payload, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// paramValue renders a JSON-decoded parameter for the query string. Floats
// that are whole numbers print without a trailing ".0" so defaults like
// forecast_days survive a config round-trip.
func paramValue(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		if value == float64(int64(value)) {
			return fmt.Sprintf("%d", int64(value))
		}
		return fmt.Sprintf("%v", value)
	default:
		return fmt.Sprintf("%v", value)
	}
}
