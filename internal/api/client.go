// Package api is the JSON request helper the order editor talks to the
// restaurant server through. Every request carries the page's CSRF token.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	headerCSRF     = "X-CSRFToken"
	maxErrorBody   = 64 << 10
	defaultTimeout = 15 * time.Second
)

// TransportError means the request never produced an HTTP response.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("api: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError is a non-success response. Message is the server's own
// explanation when the body had one.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// MessageOr returns the server message of err when it is a ServerError that
// carries one, and fallback otherwise.
func MessageOr(err error, fallback string) string {
	var se *ServerError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return fallback
}

// Client sends JSON requests relative to a base URL.
type Client struct {
	baseURL string
	http    *http.Client

	mu   sync.RWMutex
	csrf string
}

// New creates a client. A nil httpClient gets a 15 second timeout.
func New(baseURL, csrfToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		csrf:    csrfToken,
	}
}

// SetCSRFToken replaces the token sent with every request.
func (c *Client) SetCSRFToken(token string) {
	c.mu.Lock()
	c.csrf = token
	c.mu.Unlock()
}

// CSRFToken returns the token currently in use.
func (c *Client) CSRFToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.csrf
}

// Do sends body as JSON (when non-nil) and decodes a successful response
// into out (when non-nil).
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerCSRF, c.CSRFToken())

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ServerError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode %s %s: %w", method, path, err)
	}
	return nil
}

// LoadCSRFToken fetches an HTML page and adopts the token found in it.
func (c *Client) LoadCSRFToken(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return "", &TransportError{Method: http.MethodGet, Path: path, Err: err}
	}
	req.Header.Set("Accept", "text/html")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &TransportError{Method: http.MethodGet, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &ServerError{Status: resp.StatusCode}
	}

	token, err := CSRFTokenFromPage(resp.Body)
	if err != nil {
		return "", err
	}
	c.SetCSRFToken(token)
	return token, nil
}

// errorMessage pulls "message" or "error" out of a JSON error body, falling
// back to the trimmed body text.
func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, "{") {
		return ""
	}
	return text
}
