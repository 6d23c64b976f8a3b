package health

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodyBytes bounds how much of a probe response is read
const maxBodyBytes = 1 << 20

// HTTPChecker performs HTTP-based health checks
type HTTPChecker struct {
	// URL is the full HTTP URL to check (e.g., "http://10.0.1.12:5000/health")
	URL string

	// Method is the HTTP method to use (default: GET)
	Method string

	// Headers are custom HTTP headers to include in the request
	Headers map[string]string

	// Body is sent with the request when non-empty
	Body []byte

	// ExpectedStatusMin is the minimum acceptable HTTP status code (default: 200)
	ExpectedStatusMin int

	// ExpectedStatusMax is the maximum acceptable HTTP status code (default: 399)
	ExpectedStatusMax int

	// ExpectedField, when set, must be a top-level field of the JSON body
	ExpectedField string

	// ExpectedValue, when set, must equal the string form of ExpectedField
	ExpectedValue string

	// Client is the HTTP client to use (allows custom configuration)
	Client *http.Client
}

// NewHTTPChecker creates a new HTTP health checker
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		URL:               url,
		Method:            http.MethodGet,
		Headers:           make(map[string]string),
		ExpectedStatusMin: 200,
		ExpectedStatusMax: 399,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Check performs the HTTP health check
func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	var body io.Reader
	if len(h.Body) > 0 {
		body = bytes.NewReader(h.Body)
	}

	req, err := http.NewRequestWithContext(ctx, h.Method, h.URL, body)
	if err != nil {
		return failed(start, fmt.Sprintf("failed to create request: %v", err))
	}

	for key, value := range h.Headers {
		req.Header.Set(key, value)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return failed(start, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	message := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if resp.StatusCode < h.ExpectedStatusMin || resp.StatusCode > h.ExpectedStatusMax {
		return failed(start, fmt.Sprintf("%s (expected %d-%d)", message, h.ExpectedStatusMin, h.ExpectedStatusMax))
	}

	if h.ExpectedField != "" {
		if err := h.matchBody(resp.Body); err != nil {
			return failed(start, fmt.Sprintf("%s: %v", message, err))
		}
	}

	return Result{
		Healthy:   true,
		Message:   message,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

func (h *HTTPChecker) matchBody(r io.Reader) error {
	var doc map[string]any
	if err := json.NewDecoder(io.LimitReader(r, maxBodyBytes)).Decode(&doc); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}

	value, ok := doc[h.ExpectedField]
	if !ok {
		return fmt.Errorf("field %q missing from response", h.ExpectedField)
	}
	if h.ExpectedValue != "" && fmt.Sprint(value) != h.ExpectedValue {
		return fmt.Errorf("field %q is %q, expected %q", h.ExpectedField, fmt.Sprint(value), h.ExpectedValue)
	}
	return nil
}

// Type returns the health check type
func (h *HTTPChecker) Type() CheckType {
	return CheckTypeHTTP
}

// WithMethod sets the HTTP method
func (h *HTTPChecker) WithMethod(method string) *HTTPChecker {
	h.Method = method
	return h
}

// WithHeader adds a custom HTTP header
func (h *HTTPChecker) WithHeader(key, value string) *HTTPChecker {
	h.Headers[key] = value
	return h
}

// WithJSONBody sets a JSON request body
func (h *HTTPChecker) WithJSONBody(body []byte) *HTTPChecker {
	h.Body = body
	h.Headers["Content-Type"] = "application/json"
	return h
}

// WithStatusRange sets the expected status code range
func (h *HTTPChecker) WithStatusRange(min, max int) *HTTPChecker {
	h.ExpectedStatusMin = min
	h.ExpectedStatusMax = max
	return h
}

// WithField requires a JSON field in the response body. An empty value
// only checks presence.
func (h *HTTPChecker) WithField(field, value string) *HTTPChecker {
	h.ExpectedField = field
	h.ExpectedValue = value
	return h
}

// WithTimeout sets the HTTP client timeout
func (h *HTTPChecker) WithTimeout(timeout time.Duration) *HTTPChecker {
	if timeout > 0 {
		h.Client.Timeout = timeout
	}
	return h
}
