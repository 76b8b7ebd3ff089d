package domain

import "time"

// AuthState is one of Initializing, Authenticated or Unauthenticated.
// The interface is sealed so a type switch over the three variants is exhaustive.
type AuthState interface {
	authState()
	Name() string
}

type Initializing struct{}

type Unauthenticated struct{}

// Authenticated holds the only state in which a token and user exist.
// A nil ExpiresAt means the token carries no usable expiry claim.
type Authenticated struct {
	Token     string
	User      *User
	ExpiresAt *time.Time
}

func (Initializing) authState()    {}
func (Unauthenticated) authState() {}
func (Authenticated) authState()   {}

func (Initializing) Name() string    { return "initializing" }
func (Unauthenticated) Name() string { return "unauthenticated" }
func (Authenticated) Name() string   { return "authenticated" }

// Session is the snapshot handed to commands and listeners.
type Session struct {
	State AuthState
}

func (s Session) Initializing() bool {
	_, ok := s.State.(Initializing)
	return ok || s.State == nil
}

func (s Session) Authenticated() bool {
	_, ok := s.State.(Authenticated)
	return ok
}

func (s Session) Token() string {
	if auth, ok := s.State.(Authenticated); ok {
		return auth.Token
	}
	return ""
}

func (s Session) User() *User {
	if auth, ok := s.State.(Authenticated); ok {
		return auth.User
	}
	return nil
}

func (s Session) ExpiresAt() *time.Time {
	if auth, ok := s.State.(Authenticated); ok {
		return auth.ExpiresAt
	}
	return nil
}

func (s Session) StateName() string {
	if s.State == nil {
		return Initializing{}.Name()
	}
	return s.State.Name()
}

// Remaining reports how long the session stays valid. ok is false when the
// session is not authenticated or has no expiry.
func (s Session) Remaining(now time.Time) (remaining time.Duration, ok bool) {
	exp := s.ExpiresAt()
	if exp == nil {
		return 0, false
	}
	remaining = exp.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}
