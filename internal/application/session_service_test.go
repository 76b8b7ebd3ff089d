package application

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vayureader/vayu-cli/internal/adapters/secrets/file"
	"github.com/vayureader/vayu-cli/internal/adapters/tokenstore"
	"github.com/vayureader/vayu-cli/internal/domain"
	"github.com/vayureader/vayu-cli/internal/ports"
	portmocks "github.com/vayureader/vayu-cli/internal/ports/mocks"
)

func fakeJWT(t *testing.T, claims map[string]any) string {
	t.Helper()

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func tokenExpiringAt(t *testing.T, at time.Time) string {
	t.Helper()
	return fakeJWT(t, map[string]any{"sub": "u-1", "exp": at.Unix()})
}

type sessionFixture struct {
	secrets *file.Store
	store   *tokenstore.Store
	clock   *fakeClock
	service *SessionService
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	secrets := file.NewStore(t.TempDir())
	store := tokenstore.NewStore(secrets, nil)
	clock := newFakeClock(clockEpoch)
	service := NewSessionService(store, clock, nil)
	t.Cleanup(service.Close)

	return &sessionFixture{secrets: secrets, store: store, clock: clock, service: service}
}

func (f *sessionFixture) seed(t *testing.T, credential domain.Credential) {
	t.Helper()
	require.NoError(t, f.store.Save(context.Background(), credential))
}

func (f *sessionFixture) assertStoreEmpty(t *testing.T) {
	t.Helper()

	for _, key := range []string{tokenstore.KeyToken, tokenstore.KeyUser, tokenstore.KeyExpiresAt} {
		_, err := f.secrets.Get(context.Background(), key)
		assert.ErrorIs(t, err, domain.ErrSecretNotFound, key)
	}
}

func TestSessionServiceStartsInitializing(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	assert.True(t, f.service.Session().Initializing())
	assert.Equal(t, "initializing", f.service.Session().StateName())
}

func TestSessionServiceHydrateRestoresOnlyUnexpiredTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		offset      time.Duration
		wantRestore bool
	}{
		{name: "an hour left", offset: time.Hour, wantRestore: true},
		{name: "one second left", offset: time.Second, wantRestore: true},
		{name: "expiring now", offset: 0, wantRestore: false},
		{name: "expired a second ago", offset: -time.Second, wantRestore: false},
		{name: "expired yesterday", offset: -24 * time.Hour, wantRestore: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newSessionFixture(t)
			user := &domain.User{Name: "Asha", PhoneNumber: "+919800000000"}
			token := tokenExpiringAt(t, clockEpoch.Add(tt.offset))
			f.seed(t, domain.Credential{Token: token, User: user})

			session := f.service.Hydrate(context.Background())

			if !tt.wantRestore {
				assert.Equal(t, "unauthenticated", session.StateName())
				assert.False(t, f.service.ExpiryArmed())
				f.assertStoreEmpty(t)
				return
			}

			require.True(t, session.Authenticated())
			assert.Equal(t, token, session.Token())
			assert.Equal(t, user, session.User())
			require.NotNil(t, session.ExpiresAt())
			assert.True(t, session.ExpiresAt().Equal(clockEpoch.Add(tt.offset)))
			assert.True(t, f.service.ExpiryArmed())
		})
	}
}

func TestSessionServiceHydrateFailsClosedOnUndecodableTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{name: "no exp claim", token: func(t *testing.T) string { return fakeJWT(t, map[string]any{"sub": "u-1"}) }},
		{name: "string exp claim", token: func(t *testing.T) string { return fakeJWT(t, map[string]any{"exp": "9999999999"}) }},
		{name: "two segments", token: func(*testing.T) string { return "header.payload" }},
		{name: "payload not base64", token: func(*testing.T) string { return "header.!!!.sig" }},
		{name: "zero exp", token: func(*testing.T) string { return "header.eyJleHAiOjB9.sig" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newSessionFixture(t)
			f.seed(t, domain.Credential{Token: tt.token(t), User: &domain.User{Name: "Asha"}})

			session := f.service.Hydrate(context.Background())

			assert.Equal(t, "unauthenticated", session.StateName())
			assert.Nil(t, session.User())
			assert.Empty(t, session.Token())
			f.assertStoreEmpty(t)
		})
	}
}

func TestSessionServiceHydrateWithEmptyStore(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	session := f.service.Hydrate(context.Background())

	assert.Equal(t, "unauthenticated", session.StateName())
	assert.False(t, f.service.ExpiryArmed())
}

func TestSessionServiceHydrateTreatsReadFailureAsEmpty(t *testing.T) {
	t.Parallel()

	store := portmocks.NewMockTokenStore(t)
	store.EXPECT().Load(mock.Anything).Return(domain.Credential{}, fmt.Errorf("load: %w", domain.ErrStorageFailure)).Once()
	store.EXPECT().Clear(mock.Anything).Return(nil).Once()

	service := NewSessionService(store, newFakeClock(clockEpoch), nil)
	session := service.Hydrate(context.Background())

	assert.Equal(t, "unauthenticated", session.StateName())
}

func TestSessionServiceSignInAuthenticatesAndArmsClock(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	f.service.Hydrate(context.Background())

	user := &domain.User{Name: "Asha", PhoneNumber: "+919800000000"}
	expiresAt := clockEpoch.Add(time.Hour)
	token := tokenExpiringAt(t, expiresAt)

	require.NoError(t, f.service.SignIn(context.Background(), token, user))

	session := f.service.Session()
	require.True(t, session.Authenticated())
	assert.Equal(t, token, session.Token())
	assert.Equal(t, user, session.User())
	require.NotNil(t, session.ExpiresAt())
	assert.True(t, session.ExpiresAt().Equal(expiresAt))
	assert.True(t, f.service.ExpiryArmed())
	assert.Equal(t, []time.Time{expiresAt}, f.clock.Pending())

	stored, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, token, stored.Token)
	assert.Equal(t, user, stored.User)
}

func TestSessionServiceSignInWithoutExpiryIsNonExpiring(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	token := fakeJWT(t, map[string]any{"sub": "u-1"})

	require.NoError(t, f.service.SignIn(context.Background(), token, nil))

	session := f.service.Session()
	assert.True(t, session.Authenticated())
	assert.Nil(t, session.ExpiresAt())
	assert.False(t, f.service.ExpiryArmed())

	f.clock.Advance(365 * 24 * time.Hour)
	assert.True(t, f.service.Session().Authenticated())
}

func TestSessionServiceSignInWithPastExpirySignsOutImmediately(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	token := tokenExpiringAt(t, clockEpoch.Add(-time.Minute))

	require.NoError(t, f.service.SignIn(context.Background(), token, &domain.User{Name: "Asha"}))

	assert.Equal(t, "unauthenticated", f.service.Session().StateName())
	f.assertStoreEmpty(t)
}

func TestSessionServiceSignInRejectsEmptyToken(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	err := f.service.SignIn(context.Background(), "  ", nil)

	require.ErrorIs(t, err, ErrEmptyToken)
	assert.True(t, f.service.Session().Initializing())
}

func TestSessionServiceSignInStorageFailureLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	store := portmocks.NewMockTokenStore(t)
	store.EXPECT().Load(mock.Anything).Return(domain.Credential{}, nil).Once()
	store.EXPECT().Clear(mock.Anything).Return(nil).Once()
	store.EXPECT().Save(mock.Anything, mock.Anything).
		Return(fmt.Errorf("save token: %w: %w", domain.ErrStorageFailure, errors.New("disk full"))).Once()

	clock := newFakeClock(clockEpoch)
	service := NewSessionService(store, clock, nil)
	service.Hydrate(context.Background())

	err := service.SignIn(context.Background(), tokenExpiringAt(t, clockEpoch.Add(time.Hour)), nil)

	require.ErrorIs(t, err, domain.ErrStorageFailure)
	assert.Equal(t, "unauthenticated", service.Session().StateName())
	assert.False(t, service.ExpiryArmed())
	assert.Empty(t, clock.Pending())
}

func TestSessionServiceSignOutClearsEverything(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	token := tokenExpiringAt(t, clockEpoch.Add(time.Hour))
	require.NoError(t, f.service.SignIn(context.Background(), token, &domain.User{Name: "Asha"}))

	require.NoError(t, f.service.SignOut(context.Background()))

	session := f.service.Session()
	assert.Equal(t, "unauthenticated", session.StateName())
	assert.Nil(t, session.User())
	assert.False(t, f.service.ExpiryArmed())
	assert.Empty(t, f.clock.Pending())
	f.assertStoreEmpty(t)
}

func TestSessionServiceSignOutIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	require.NoError(t, f.service.SignIn(context.Background(), tokenExpiringAt(t, clockEpoch.Add(time.Hour)), nil))

	var transitions atomic.Int32
	unsubscribe := f.service.Subscribe(func(domain.Session) { transitions.Add(1) })
	defer unsubscribe()

	require.NoError(t, f.service.SignOut(context.Background()))
	require.NoError(t, f.service.SignOut(context.Background()))

	assert.Equal(t, int32(1), transitions.Load())
}

func TestSessionServiceSignOutReturnsClearFailure(t *testing.T) {
	t.Parallel()

	store := portmocks.NewMockTokenStore(t)
	store.EXPECT().Save(mock.Anything, mock.Anything).Return(nil).Once()
	store.EXPECT().Clear(mock.Anything).Return(fmt.Errorf("clear: %w", domain.ErrStorageFailure)).Once()

	service := NewSessionService(store, newFakeClock(clockEpoch), nil)
	require.NoError(t, service.SignIn(context.Background(), tokenExpiringAt(t, clockEpoch.Add(time.Hour)), nil))

	err := service.SignOut(context.Background())

	require.ErrorIs(t, err, domain.ErrStorageFailure)
	assert.Equal(t, "unauthenticated", service.Session().StateName())
}

func TestSessionServiceExpiryFiresSignOut(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	expiresAt := clockEpoch.Add(10 * time.Minute)
	require.NoError(t, f.service.SignIn(context.Background(), tokenExpiringAt(t, expiresAt), &domain.User{Name: "Asha"}))

	var seen []string
	unsubscribe := f.service.Subscribe(func(s domain.Session) { seen = append(seen, s.StateName()) })
	defer unsubscribe()

	f.clock.Advance(9 * time.Minute)
	assert.True(t, f.service.Session().Authenticated())

	f.clock.Advance(time.Minute)
	assert.Equal(t, "unauthenticated", f.service.Session().StateName())
	assert.Equal(t, []string{"unauthenticated"}, seen)
	f.assertStoreEmpty(t)
}

func TestSessionServiceReSignInReplacesExpiry(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	first := clockEpoch.Add(10 * time.Minute)
	second := clockEpoch.Add(2 * time.Hour)

	require.NoError(t, f.service.SignIn(context.Background(), tokenExpiringAt(t, first), nil))
	require.NoError(t, f.service.SignIn(context.Background(), tokenExpiringAt(t, second), nil))

	assert.Equal(t, []time.Time{second}, f.clock.Pending())

	f.clock.Advance(time.Hour)
	assert.True(t, f.service.Session().Authenticated())

	f.clock.Advance(time.Hour)
	assert.Equal(t, "unauthenticated", f.service.Session().StateName())
}

func TestSessionServiceConcurrentUnauthorizedTransitionsOnce(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	require.NoError(t, f.service.SignIn(context.Background(), tokenExpiringAt(t, clockEpoch.Add(time.Hour)), nil))

	var transitions, ended atomic.Int32
	unsubscribe := f.service.Subscribe(func(domain.Session) { transitions.Add(1) })
	defer unsubscribe()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.service.HandleUnauthorized(context.Background()) {
				ended.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), transitions.Load())
	assert.Equal(t, int32(1), ended.Load())
	assert.Equal(t, "unauthenticated", f.service.Session().StateName())
	f.assertStoreEmpty(t)
}

func TestSessionServiceHandleUnauthorizedIgnoresCanceledContext(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	require.NoError(t, f.service.SignIn(context.Background(), tokenExpiringAt(t, clockEpoch.Add(time.Hour)), nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, f.service.HandleUnauthorized(ctx))

	assert.Equal(t, "unauthenticated", f.service.Session().StateName())
	f.assertStoreEmpty(t)
	assert.False(t, f.service.HandleUnauthorized(context.Background()))
}

func TestSessionServiceUnsubscribeStopsNotifications(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)

	calls := 0
	unsubscribe := f.service.Subscribe(func(domain.Session) { calls++ })
	f.service.Hydrate(context.Background())
	unsubscribe()

	require.NoError(t, f.service.SignIn(context.Background(), tokenExpiringAt(t, clockEpoch.Add(time.Hour)), nil))
	assert.Equal(t, 1, calls)
}

type registrarFunc func(ports.UnauthorizedHandler)

func (f registrarFunc) RegisterUnauthorizedHandler(h ports.UnauthorizedHandler) { f(h) }

func TestSessionServiceAttachRegistersItself(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)

	var registered ports.UnauthorizedHandler
	f.service.Attach(registrarFunc(func(h ports.UnauthorizedHandler) { registered = h }))

	assert.Same(t, f.service, registered)
}
