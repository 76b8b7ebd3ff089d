package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/vayureader/vayu-cli/internal/ports"
	"golang.org/x/sync/singleflight"
)

const (
	loginPathMarker = "/api/auth/login/"
	requestIDHeader = "X-Request-ID"
	unauthorizedKey = "unauthorized"
)

// Transport attaches the stored bearer token to outbound requests and reacts
// to 401/403 responses by signing the user out.
type Transport struct {
	base      http.RoundTripper
	tokens    ports.TokenStore
	navigator ports.Navigator
	log       *slog.Logger

	handler atomic.Pointer[handlerSlot]
	flight  singleflight.Group
}

type handlerSlot struct {
	handler ports.UnauthorizedHandler
}

type Option func(*Transport)

// WithBase replaces http.DefaultTransport as the underlying round tripper.
func WithBase(base http.RoundTripper) Option {
	return func(t *Transport) {
		if base != nil {
			t.base = base
		}
	}
}

func WithUnauthorizedHandler(h ports.UnauthorizedHandler) Option {
	return func(t *Transport) {
		t.RegisterUnauthorizedHandler(h)
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(t *Transport) {
		if log != nil {
			t.log = log
		}
	}
}

var (
	_ http.RoundTripper           = (*Transport)(nil)
	_ ports.UnauthorizedRegistrar = (*Transport)(nil)
)

func NewTransport(tokens ports.TokenStore, navigator ports.Navigator, opts ...Option) *Transport {
	t := &Transport{
		base:      http.DefaultTransport,
		tokens:    tokens,
		navigator: navigator,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RegisterUnauthorizedHandler replaces the current handler. nil removes it.
func (t *Transport) RegisterUnauthorizedHandler(h ports.UnauthorizedHandler) {
	if h == nil {
		t.handler.Store(nil)
		return
	}
	t.handler.Store(&handlerSlot{handler: h})
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	outbound := req.Clone(req.Context())

	if outbound.Header.Get(requestIDHeader) == "" {
		outbound.Header.Set(requestIDHeader, uuid.NewString())
	}

	if !strings.Contains(outbound.URL.Path, loginPathMarker) {
		t.authorize(outbound)
	}

	resp, err := t.base.RoundTrip(outbound)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		t.log.Info("gateway.unauthorized",
			"status", resp.StatusCode,
			"method", outbound.Method,
			"path", outbound.URL.Path,
			"request_id", outbound.Header.Get(requestIDHeader),
		)
		t.unauthorized(req.Context())
	}

	return resp, nil
}

func (t *Transport) authorize(req *http.Request) {
	if t.tokens == nil {
		return
	}

	token, err := t.tokens.Token(req.Context())
	if err != nil {
		t.log.Warn("gateway.token_read_failed", "error", err)
		return
	}
	if token == "" {
		return
	}

	req.Header.Set("Authorization", "Bearer "+token)
}

// unauthorized runs the sign-out and navigation cycle once for every burst of
// concurrent 401/403 responses. Navigation only follows a sign-out that ended
// a live session, so later stragglers of the same burst stay quiet.
func (t *Transport) unauthorized(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	_, _, _ = t.flight.Do(unauthorizedKey, func() (any, error) {
		var ended bool
		if slot := t.handler.Load(); slot != nil {
			ended = slot.handler.HandleUnauthorized(ctx)
		} else {
			ended = t.clearStoredSession(ctx)
		}

		if ended && t.navigator != nil {
			t.navigator.NavigateToLogin()
		}
		return nil, nil
	})
}

// clearStoredSession is the fallback when no handler is registered. It
// reports a session as ended when a token was stored or could not be read.
func (t *Transport) clearStoredSession(ctx context.Context) bool {
	if t.tokens == nil {
		return false
	}

	token, err := t.tokens.Token(ctx)
	if err != nil {
		t.log.Warn("gateway.fallback_token_read_failed", "error", err)
	}
	if clearErr := t.tokens.Clear(ctx); clearErr != nil {
		t.log.Warn("gateway.fallback_clear_failed", "error", clearErr)
	}

	return err != nil || token != ""
}
