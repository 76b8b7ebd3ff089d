package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vayureader/vayu-cli/internal/domain"
)

const (
	maxResponseBytes     = 1 << 20
	maxErrorMessageBytes = 200
)

// StatusError is returned for every non-2xx response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
}

// Is matches domain.ErrAuthorizationFailure for 401 and 403.
func (e *StatusError) Is(target error) bool {
	if target != domain.ErrAuthorizationFailure {
		return false
	}
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Gateway issues requests against one backend service through a shared Transport.
type Gateway struct {
	baseURL *url.URL
	client  *http.Client
}

func New(baseURL string, transport http.RoundTripper, timeout time.Duration) (*Gateway, error) {
	parsed, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Gateway{
		baseURL: parsed,
		client:  &http.Client{Transport: transport, Timeout: timeout},
	}, nil
}

func (g *Gateway) Client() *http.Client {
	return g.client
}

func (g *Gateway) BaseURL() string {
	return g.baseURL.String()
}

// Resolve joins path (which may carry a query string) onto the base URL.
// A leading slash is ignored so the base path prefix is kept.
func (g *Gateway) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("api path is required")
	}

	ref, err := url.Parse(strings.TrimLeft(strings.TrimSpace(path), "/"))
	if err != nil {
		return "", fmt.Errorf("parse api path: %w", err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return "", fmt.Errorf("api path %q must be relative to %s", path, g.baseURL)
	}
	return g.baseURL.ResolveReference(ref).String(), nil
}

func (g *Gateway) NewRequest(ctx context.Context, method string, path string, body any) (*http.Request, error) {
	endpoint, err := g.Resolve(path)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Do sends req and converts non-2xx responses into *StatusError. On success
// the caller owns the response body.
func (g *Gateway) Do(req *http.Request) (*http.Response, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Redacted(), err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer func() { _ = resp.Body.Close() }()
		return nil, &StatusError{
			Method:     req.Method,
			URL:        req.URL.Redacted(),
			StatusCode: resp.StatusCode,
			Message:    readErrorMessage(resp.Body),
		}
	}

	return resp, nil
}

// DoJSON sends body as JSON and decodes a 2xx response into out. A nil out
// discards the response body.
func (g *Gateway) DoJSON(ctx context.Context, method string, path string, body any, out any) error {
	req, err := g.NewRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := g.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

type errorEnvelope struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxResponseBytes))
	if err != nil || len(raw) == 0 {
		return ""
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}

	return truncateMessage(strings.TrimSpace(string(raw)), maxErrorMessageBytes)
}

// truncateMessage cuts text to at most limit bytes without splitting a rune.
func truncateMessage(text string, limit int) string {
	text = strings.ToValidUTF8(text, "\uFFFD")
	if len(text) <= limit {
		return text
	}

	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func parseBaseURL(baseURL string) (*url.URL, error) {
	if baseURL == "" {
		return nil, errors.New("api base url is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New("api base url must use http or https")
	}
	if parsed.Host == "" {
		return nil, errors.New("api base url host is required")
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	return parsed, nil
}
