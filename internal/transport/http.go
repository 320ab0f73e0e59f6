// Package transport delivers queued operations to the remote REST service.
//
// Verbs map onto HTTP methods against <base>/<resource>:
//
//	create  -> POST
//	replace -> PUT
//	delete  -> DELETE
//
// The payload is sent as canonical JSON. Every request carries the
// operation ID in an Idempotency-Key header so the remote side can discard
// redeliveries. Any 2xx response confirms delivery.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/initiative/internal/queue"
	"github.com/roach88/initiative/internal/value"
)

// DefaultTimeout bounds one delivery request.
const DefaultTimeout = 15 * time.Second

// StatusError reports a non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// HTTP implements queue.Transport over net/http.
type HTTP struct {
	base   *url.URL
	token  string
	client *http.Client
	logger *slog.Logger
}

var _ queue.Transport = (*HTTP)(nil)

// Option configures an HTTP transport.
type Option func(*HTTP)

// WithToken sends "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option {
	return func(h *HTTP) {
		h.token = token
	}
}

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(h *HTTP) {
		h.client = c
	}
}

// WithTimeout sets the per-request timeout on the default client.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTP) {
		if d > 0 {
			h.client = &http.Client{Timeout: d}
		}
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(h *HTTP) {
		h.logger = l
	}
}

// NewHTTP creates a transport rooted at baseURL.
func NewHTTP(baseURL string, opts ...Option) (*HTTP, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}

	h := &HTTP{
		base:   u,
		client: &http.Client{Timeout: DefaultTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Method returns the HTTP method used for verb.
func Method(verb queue.Verb) (string, error) {
	switch verb {
	case queue.VerbCreate:
		return http.MethodPost, nil
	case queue.VerbReplace:
		return http.MethodPut, nil
	case queue.VerbDelete:
		return http.MethodDelete, nil
	}
	return "", fmt.Errorf("unknown verb %q", verb)
}

// Deliver implements queue.Transport.
func (h *HTTP) Deliver(ctx context.Context, op queue.Operation) error {
	method, err := Method(op.Verb)
	if err != nil {
		return err
	}

	target := h.base.JoinPath(strings.Split(strings.Trim(op.Resource, "/"), "/")...)

	var body io.Reader
	if _, isNull := op.Payload.(value.Null); op.Payload != nil && !isNull {
		b, err := value.MarshalCanonical(op.Payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", op.ID)
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		h.logger.Debug("operation delivered", "op_id", op.ID, "method", method, "url", target.String(), "status", resp.StatusCode)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{
		Method:     method,
		URL:        target.String(),
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(snippet)),
	}
}
