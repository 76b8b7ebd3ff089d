package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vayureader/vayu-cli/internal/domain"
	"github.com/vayureader/vayu-cli/internal/ports"
)

var ErrEmptyToken = errors.New("token is required")

// SessionService drives the Initializing -> Authenticated/Unauthenticated
// lifecycle on top of a TokenStore and a SessionClock.
//
// Transitions are serialized by ops and hold it across storage I/O: sign-in
// finishes its write before the clock is armed, and sign-out finishes its
// clear before the in-memory state changes. Listeners and the expiry clock
// are always driven after ops is released.
type SessionService struct {
	store ports.TokenStore
	clock ports.Clock
	timer *SessionClock
	log   *slog.Logger

	ops sync.Mutex

	mu         sync.RWMutex
	state      domain.AuthState
	generation uint64
	listeners  map[int]func(domain.Session)
	nextID     int
}

var _ ports.UnauthorizedHandler = (*SessionService)(nil)

func NewSessionService(store ports.TokenStore, clock ports.Clock, log *slog.Logger) *SessionService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &SessionService{
		store:     store,
		clock:     clock,
		timer:     NewSessionClock(clock),
		log:       log,
		state:     domain.Initializing{},
		listeners: map[int]func(domain.Session){},
	}
}

// Session returns the current snapshot.
func (s *SessionService) Session() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Session{State: s.state}
}

// Subscribe registers fn for every state change and returns its unsubscribe func.
func (s *SessionService) Subscribe(fn func(domain.Session)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Hydrate restores the session from the token store. Read failures, missing
// tokens, tokens without a decodable exp claim and expired tokens all end in
// Unauthenticated with the store cleared.
func (s *SessionService) Hydrate(ctx context.Context) domain.Session {
	s.ops.Lock()

	credential, err := s.store.Load(ctx)
	if err != nil {
		s.log.Warn("session.hydrate_read_failed", "error", err)
		credential = domain.Credential{}
	}

	expiresAt, reason := s.validateStored(credential)
	if reason != "" {
		s.log.Info("session.hydrate_unauthenticated", "reason", reason)
		if err := s.store.Clear(ctx); err != nil {
			s.log.Warn("session.hydrate_cleanup_failed", "error", err)
		}
		snapshot, _ := s.setState(domain.Unauthenticated{})
		s.ops.Unlock()
		s.notify(snapshot)
		return snapshot
	}

	snapshot, gen := s.setState(domain.Authenticated{
		Token:     credential.Token,
		User:      credential.User,
		ExpiresAt: &expiresAt,
	})
	s.ops.Unlock()

	s.log.Info("session.hydrated", "expires_at", expiresAt.UTC().Format(time.RFC3339))
	s.notify(snapshot)
	s.arm(gen, &expiresAt)

	return s.Session()
}

func (s *SessionService) validateStored(credential domain.Credential) (time.Time, string) {
	if !credential.HasToken() {
		return time.Time{}, "no stored token"
	}

	expiresAt, err := domain.TokenExpiry(credential.Token)
	if err != nil {
		return time.Time{}, err.Error()
	}
	if !expiresAt.After(s.clock.Now()) {
		return time.Time{}, "stored token expired"
	}

	return expiresAt, ""
}

// SignIn persists the credential and then arms the expiry clock. A token
// whose exp claim cannot be decoded is accepted as non-expiring.
func (s *SessionService) SignIn(ctx context.Context, token string, user *domain.User) error {
	if strings.TrimSpace(token) == "" {
		return ErrEmptyToken
	}

	var expiresAt *time.Time
	if exp, err := domain.TokenExpiry(token); err != nil {
		s.log.Info("session.sign_in_without_expiry", "error", err)
	} else {
		expiresAt = &exp
	}

	s.ops.Lock()
	if err := s.store.Save(ctx, domain.Credential{Token: token, User: user, ExpiresAt: expiresAt}); err != nil {
		s.ops.Unlock()
		return fmt.Errorf("sign in: %w", err)
	}

	snapshot, gen := s.setState(domain.Authenticated{Token: token, User: user, ExpiresAt: expiresAt})
	s.ops.Unlock()

	s.log.Info("session.signed_in", "user", user.DisplayName())
	s.notify(snapshot)
	s.arm(gen, expiresAt)

	return nil
}

// SignOut is a no-op when already unauthenticated. A store clear failure is
// returned but the in-memory session is dropped regardless.
func (s *SessionService) SignOut(ctx context.Context) error {
	_, err := s.signOut(ctx, "user", nil)
	return err
}

// HandleUnauthorized signs out after the gateway saw a 401/403 and reports
// whether a session was actually ended. A failed store clear still counts:
// the in-memory session is gone either way.
func (s *SessionService) HandleUnauthorized(ctx context.Context) bool {
	changed, err := s.signOut(context.WithoutCancel(ctx), "unauthorized", nil)
	if err != nil {
		s.log.Warn("session.unauthorized_sign_out_failed", "error", err)
	}
	if changed {
		s.log.Info("session.revoked_by_server")
	}
	return changed
}

// Attach registers the service as the gateway's unauthorized handler.
func (s *SessionService) Attach(registrar ports.UnauthorizedRegistrar) {
	registrar.RegisterUnauthorizedHandler(s)
}

// Close cancels the pending expiry timer without touching stored state.
func (s *SessionService) Close() {
	s.timer.Stop()
}

func (s *SessionService) ExpiryArmed() bool {
	return s.timer.Armed()
}

func (s *SessionService) signOut(ctx context.Context, reason string, onlyGeneration *uint64) (bool, error) {
	s.ops.Lock()

	s.mu.RLock()
	_, unauthenticated := s.state.(domain.Unauthenticated)
	stale := onlyGeneration != nil && *onlyGeneration != s.generation
	s.mu.RUnlock()

	if unauthenticated || stale {
		s.ops.Unlock()
		return false, nil
	}

	s.timer.Stop()
	clearErr := s.store.Clear(ctx)
	snapshot, _ := s.setState(domain.Unauthenticated{})
	s.ops.Unlock()

	s.log.Info("session.signed_out", "reason", reason)
	s.notify(snapshot)

	return true, clearErr
}

func (s *SessionService) arm(gen uint64, expiresAt *time.Time) {
	s.mu.RLock()
	current := gen == s.generation
	s.mu.RUnlock()
	if !current {
		return
	}

	s.timer.Schedule(expiresAt, func() {
		if _, err := s.signOut(context.Background(), "expired", &gen); err != nil {
			s.log.Warn("session.expiry_sign_out_failed", "error", err)
		}
	})
}

func (s *SessionService) setState(state domain.AuthState) (domain.Session, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
	s.generation++
	return domain.Session{State: state}, s.generation
}

func (s *SessionService) notify(snapshot domain.Session) {
	s.mu.RLock()
	listeners := make([]func(domain.Session), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}
