package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apihttp "github.com/fyrsmithlabs/proposald/internal/http"
)

// apiError is a non-2xx reply from the proposald server.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

// client talks to the proposald HTTP API.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// send performs the request and returns the status code and raw body.
// Transport failures are the only error; callers interpret the status.
func (c *client) send(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	target := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request to %s: %w", target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, data, nil
}

// do sends the request and decodes a 2xx reply into out. A *string out
// receives the body verbatim.
func (c *client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	status, data, err := c.send(ctx, method, path, body)
	if err != nil {
		return status, err
	}
	if status >= http.StatusBadRequest {
		return status, decodeError(status, data)
	}
	if out == nil {
		return status, nil
	}
	if s, ok := out.(*string); ok {
		*s = string(data)
		return status, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return status, fmt.Errorf("failed to decode response: %w", err)
	}
	return status, nil
}

func decodeError(status int, data []byte) error {
	var e apihttp.ErrorResponse
	if err := json.Unmarshal(data, &e); err != nil || e.Error == "" {
		e.Error = strings.TrimSpace(string(data))
	}
	return &apiError{Status: status, Message: e.Error}
}

// sessionPath builds /api/v1/sessions/<id>[/<elem>...] with escaped segments.
func sessionPath(id string, elems ...string) string {
	var b strings.Builder
	b.WriteString("/api/v1/sessions/")
	b.WriteString(url.PathEscape(id))
	for _, e := range elems {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(e))
	}
	return b.String()
}
