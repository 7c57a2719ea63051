// internal/infra/api/client.go
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

	"github.com/sirupsen/logrus"
)

var (
	// ErrTransport wraps failures where no HTTP response was received.
	ErrTransport = errors.New("network request failed")
	// ErrSessionExpired is returned on 401; the local session has already
	// been cleared when the caller sees it.
	ErrSessionExpired = errors.New("session expired")
)

// AppError is an application-level failure reported by the backend.
type AppError struct {
	Status  int
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("backend error (%d): %s", e.Status, e.Message)
}

// Envelope is the backend's response wrapper.
type Envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Session supplies the bearer token and is cleared on 401.
type Session interface {
	Token(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// Client is the single chokepoint for backend calls.
type Client struct {
	baseURL string // origin + API root, no trailing slash
	http    *http.Client
	session Session
	log     *logrus.Entry
}

func NewClient(baseURL string, httpClient *http.Client, session Session, log *logrus.Entry) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		session: session,
		log:     log,
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends a JSON request authenticated with the stored session token and
// decodes the envelope's data into out (if non-nil).
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	token := ""
	if c.session != nil {
		t, err := c.session.Token(ctx)
		if err == nil {
			token = t
		}
	}
	return c.do(ctx, method, path, token, body, out)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body for %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.log.WithFields(logrus.Fields{"method": method, "path": path}).Warn("Backend rejected the session, clearing it")
		if c.session != nil {
			if err := c.session.Clear(ctx); err != nil {
				c.log.WithError(err).Error("Failed to clear session after 401")
			}
		}
		return ErrSessionExpired
	}

	return decode(resp.StatusCode, respBody, out)
}

func decode(status int, body []byte, out any) error {
	ok := status >= 200 && status < 300

	var env Envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Success != nil {
		if !*env.Success {
			msg := env.Message
			if msg == "" {
				msg = http.StatusText(status)
			}
			return &AppError{Status: status, Message: msg}
		}
		if !ok {
			return &AppError{Status: status, Message: firstNonEmpty(env.Message, http.StatusText(status))}
		}
		if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
			if err := json.Unmarshal(env.Data, out); err != nil {
				return fmt.Errorf("failed to decode response data: %w", err)
			}
		}
		return nil
	}

	if !ok {
		return &AppError{Status: status, Message: http.StatusText(status)}
	}
	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Replay posts a stored body with the token captured when it was queued.
// It returns the HTTP status; err is non-nil only on transport failure.
func (c *Client) Replay(ctx context.Context, endpoint, token, idempotencyKey string, body json.RawMessage) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build replay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// Ping checks connectivity. Any HTTP response counts as online.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/test", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	resp.Body.Close()
	return nil
}
