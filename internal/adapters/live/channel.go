package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/vayureader/vayu-cli/internal/domain"
	"gopkg.in/cenkalti/backoff.v1"
)

const (
	EventsPath        = "/api/events"
	defaultRetryDelay = 3 * time.Second
)

// Channel subscribes to the server-sent document events feed. Requests on
// this channel never carry credentials.
type Channel struct {
	url        string
	httpClient *http.Client
	retryDelay time.Duration
	log        *slog.Logger
}

type Option func(*Channel)

// WithHTTPClient sets the client used for the stream. It must not carry a
// request timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Channel) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryDelay sets the pause before reopening a stream the server closed.
func WithRetryDelay(delay time.Duration) Option {
	return func(c *Channel) {
		if delay > 0 {
			c.retryDelay = delay
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Channel) {
		if log != nil {
			c.log = log
		}
	}
}

func NewChannel(baseURL string, opts ...Option) (*Channel, error) {
	endpoint, err := eventsURL(baseURL)
	if err != nil {
		return nil, err
	}

	c := &Channel{
		url:        endpoint,
		httpClient: &http.Client{},
		retryDelay: defaultRetryDelay,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Channel) URL() string {
	return c.url
}

// Subscribe opens the stream in the background and delivers every decodable
// document event to listener, one at a time, until the subscription is
// closed or ctx is done.
func (c *Channel) Subscribe(ctx context.Context, listener func(domain.LiveEvent)) (*Subscription, error) {
	if listener == nil {
		return nil, errors.New("live event listener is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		sub.setErr(c.run(streamCtx, listener))
	}()

	return sub, nil
}

func (c *Channel) run(ctx context.Context, listener func(domain.LiveEvent)) error {
	for {
		client := c.newClient(ctx)
		err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
			c.dispatch(msg, listener)
		})

		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrStreamFailure, err)
		}

		c.log.Info("live.stream_closed", "url", c.url, "retry_in", c.retryDelay)
		timer := time.NewTimer(c.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (c *Channel) newClient(ctx context.Context) *sse.Client {
	client := sse.NewClient(c.url)
	client.Connection = c.httpClient

	strategy := backoff.NewExponentialBackOff()
	strategy.MaxElapsedTime = 0
	client.ReconnectStrategy = backoff.WithContext(strategy, ctx)
	client.ReconnectNotify = func(err error, next time.Duration) {
		c.log.Warn("live.stream_failure",
			"error", fmt.Errorf("%w: %w", domain.ErrStreamFailure, err),
			"retry_in", next,
		)
	}
	client.OnConnect(func(*sse.Client) {
		c.log.Debug("live.connected", "url", c.url)
	})
	client.OnDisconnect(func(*sse.Client) {
		c.log.Warn("live.disconnected", "url", c.url)
	})

	return client
}

func (c *Channel) dispatch(msg *sse.Event, listener func(domain.LiveEvent)) {
	event, ok, err := decodeEvent(string(msg.Event), msg.Data)
	if err != nil {
		c.log.Warn("live.event_decode_failed", "event", string(msg.Event), "error", err)
		return
	}
	if !ok {
		return
	}

	listener(event)
}

// decodeEvent reports ok=false for event names outside the document feed.
func decodeEvent(name string, data []byte) (domain.LiveEvent, bool, error) {
	eventType, known := domain.ParseLiveEventType(name)
	if !known {
		return domain.LiveEvent{}, false, nil
	}

	event := domain.LiveEvent{Type: eventType}
	if len(strings.TrimSpace(string(data))) == 0 {
		return event, true, nil
	}

	if err := json.Unmarshal(data, &event.Data); err != nil {
		return domain.LiveEvent{}, false, fmt.Errorf("decode %s payload: %w", name, err)
	}
	return event, true, nil
}

func eventsURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", errors.New("live base url is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse live base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("live base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("live base url host is required")
	}

	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}

	// Relative to the base path so a service mounted under a prefix keeps it.
	endpoint, err := parsed.Parse(strings.TrimPrefix(EventsPath, "/"))
	if err != nil {
		return "", fmt.Errorf("parse live events path: %w", err)
	}
	return endpoint.String(), nil
}

// Subscription is the handle for one open stream.
type Subscription struct {
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// Close stops the stream and waits for the delivery goroutine to exit.
// Calling it more than once is safe.
func (s *Subscription) Close() {
	s.closeOnce.Do(s.cancel)
	<-s.done
}

func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the stream, or nil when it was closed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
