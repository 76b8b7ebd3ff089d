package cmd

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vayureader/vayu-cli/internal/domain"
)

const testPhone = "+919800000000"

func TestVersionPrintsBuildVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", stdout)
}

func TestStatusWithoutStoredSession(t *testing.T) {
	stdout, _, err := executeCLI(t, t.TempDir(), "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "state: unauthenticated")
	assert.Contains(t, stdout, "Not signed in")
}

func TestLoginRequestSendsCode(t *testing.T) {
	backend := newFakeBackend(t)
	home := t.TempDir()
	backend.configure(t)

	stdout, _, err := executeCLI(t, home, "login", "request", "--name", "Asha", "--phone", testPhone)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Code sent to "+testPhone)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, []string{"Asha:" + testPhone}, backend.otpRequests)
}

func TestLoginRequestRequiresFlags(t *testing.T) {
	_, _, err := executeCLI(t, t.TempDir(), "login", "request", "--name", "Asha")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag(s) \"phone\" not set")
}

func TestLoginVerifyStoresSessionAndStatusShowsIt(t *testing.T) {
	backend := newFakeBackend(t)
	home := t.TempDir()
	backend.configure(t)

	stdout, _, err := executeCLI(t, home, "login", "verify", "--phone", testPhone, "--otp", "123456")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Signed in as Asha")
	assert.Contains(t, stdout, "Session expires at")

	token, err := os.ReadFile(filepath.Join(home, ".vayu", "secrets", "vayureader", "session", "token"))
	require.NoError(t, err)
	assert.Equal(t, backend.token, string(token))

	stdout, _, err = executeCLI(t, home, "status", "--json")
	require.NoError(t, err)

	var status statusOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &status))
	assert.Equal(t, "authenticated", status.State)
	assert.Equal(t, &domain.User{Name: "Asha", PhoneNumber: testPhone}, status.User)
	require.NotNil(t, status.RemainingSeconds)
	assert.InDelta(t, 3600, *status.RemainingSeconds, 60)
	assert.NotContains(t, stdout, backend.token)
}

func TestLoginVerifyRejectsWrongCode(t *testing.T) {
	backend := newFakeBackend(t)
	home := t.TempDir()
	backend.configure(t)

	_, _, err := executeCLI(t, home, "login", "verify", "--phone", testPhone, "--otp", "000000")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOTPVerification)
	assert.Contains(t, err.Error(), "Invalid OTP")
	assert.NoFileExists(t, filepath.Join(home, ".vayu", "secrets", "vayureader", "session", "token"))
}

func TestLogoutRemovesStoredSession(t *testing.T) {
	backend := newFakeBackend(t)
	home := t.TempDir()
	backend.configure(t)
	signInViaCLI(t, home)

	stdout, _, err := executeCLI(t, home, "logout")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Signed out.")

	sessionDir := filepath.Join(home, ".vayu", "secrets", "vayureader", "session")
	for _, name := range []string{"token", "user", "expires_at"} {
		assert.NoFileExists(t, filepath.Join(sessionDir, name))
	}

	stdout, _, err = executeCLI(t, home, "logout")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Not signed in.")
}

func TestStatusDropsExpiredStoredSession(t *testing.T) {
	home := t.TempDir()
	sessionDir := filepath.Join(home, ".vayu", "secrets", "vayureader", "session")
	require.NoError(t, os.MkdirAll(sessionDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(sessionDir, "token"), []byte(fakeJWT(time.Now().Add(-time.Minute))), 0o600))

	stdout, _, err := executeCLI(t, home, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "state: unauthenticated")
	assert.NoFileExists(t, filepath.Join(sessionDir, "token"))
}

func TestPDFsListSendsBearerToken(t *testing.T) {
	backend := newFakeBackend(t)
	home := t.TempDir()
	backend.configure(t)
	signInViaCLI(t, home)

	stdout, _, err := executeCLI(t, home, "pdfs", "list", "--page", "2", "--search", "purana")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"title": "Vayu Purana"`)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, "Bearer "+backend.token, backend.lastAuthorization)
	assert.Equal(t, "page=2&search=purana", backend.lastQuery)
}

func TestUnauthorizedResponseSignsOutAndPrintsLoginHint(t *testing.T) {
	backend := newFakeBackend(t)
	home := t.TempDir()
	backend.configure(t)
	signInViaCLI(t, home)

	backend.mu.Lock()
	backend.revoked = true
	backend.mu.Unlock()

	_, stderr, err := executeCLI(t, home, "dictionary", "search", "wind")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthorizationFailure)
	assert.Equal(t, 1, strings.Count(stderr, "Session ended. Sign in again"))
	assert.NoFileExists(t, filepath.Join(home, ".vayu", "secrets", "vayureader", "session", "token"))

	stdout, _, err := executeCLI(t, home, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "state: unauthenticated")
}

func TestAPIGetUsesSelectedBase(t *testing.T) {
	backend := newFakeBackend(t)
	home := t.TempDir()
	backend.configure(t)

	stdout, _, err := executeCLI(t, home, "api", "get", "/api/abbreviations?search=ISRO", "--base", "abbreviation")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"short": "ISRO"`)

	_, _, err = executeCLI(t, home, "api", "get", "/api/pdfs", "--base", "billing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown base \"billing\"")
}

func TestConfigSetShowAndPath(t *testing.T) {
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".vayu", "config.toml")+"\n", stdout)

	_, _, err = executeCLI(t, home, "config", "set", "log.level", "debug")
	require.NoError(t, err)

	stdout, _, err = executeCLI(t, home, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "level = 'debug'")
	assert.Contains(t, stdout, "backend = 'file'")

	_, _, err = executeCLI(t, home, "config", "set", "nope", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
}

func TestWatchPrintsLiveEvents(t *testing.T) {
	backend := newFakeBackend(t)
	home := t.TempDir()
	backend.configure(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stdout, _, err := executeCLIContext(t, ctx, home, "watch", "--max-events", "2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "connected")
	assert.Contains(t, stdout, "PDF_ADDED")
	assert.Contains(t, stdout, `"Vayu Purana" id=p1`)
	assert.Contains(t, stdout, "PDF_DELETED")
	assert.NotContains(t, stdout, "PDF_UPDATED")
}

func TestWatchRefreshRefetchesDocumentList(t *testing.T) {
	backend := newFakeBackend(t)
	home := t.TempDir()
	backend.configure(t)
	signInViaCLI(t, home)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stdout, _, err := executeCLIContext(t, ctx, home, "watch", "--json", "--refresh", "--max-events", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"type":"PDF_ADDED"`)
	assert.Contains(t, stdout, `"title": "Vayu Purana"`)
}

type fakeBackend struct {
	server *httptest.Server
	token  string

	mu                sync.Mutex
	otpRequests       []string
	lastAuthorization string
	lastQuery         string
	revoked           bool
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	b := &fakeBackend{token: fakeJWT(time.Now().Add(time.Hour))}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login/request-otp", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)

		b.mu.Lock()
		b.otpRequests = append(b.otpRequests, body["name"]+":"+body["phone_number"])
		b.mu.Unlock()

		_, _ = w.Write([]byte(`{"message":"OTP sent"}`))
	})
	mux.HandleFunc("/api/auth/login/verify-otp", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)

		if body["otp"] != "123456" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"Invalid OTP"}`))
			return
		}

		_, _ = fmt.Fprintf(w, `{"data":{"token":%q,"user":{"name":"Asha","phone_number":%q}}}`, b.token, body["phone_number"])
	})
	mux.HandleFunc("/api/pdfs", b.authorized(`{"data":[{"_id":"p1","title":"Vayu Purana"}],"total":1}`))
	mux.HandleFunc("/api/dictionary/search", b.authorized(`{"word":"wind"}`))
	mux.HandleFunc("/api/abbreviations", b.authorized(`[{"short":"ISRO"}]`))
	mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, ""+
			"event: connected\ndata: {\"message\":\"connected\"}\n\n"+
			"event: PDF_ADDED\ndata: {\"_id\":\"p1\",\"title\":\"Vayu Purana\"}\n\n"+
			"event: PDF_UPDATED\ndata: {broken\n\n"+
			"event: PDF_DELETED\ndata: {\"_id\":\"p1\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) authorized(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.lastAuthorization = r.Header.Get("Authorization")
		b.lastQuery = r.URL.RawQuery
		revoked := b.revoked
		b.mu.Unlock()

		if revoked || r.Header.Get("Authorization") != "Bearer "+b.token {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"token revoked"}`))
			return
		}
		_, _ = w.Write([]byte(body))
	}
}

func (b *fakeBackend) configure(t *testing.T) {
	t.Helper()

	for _, key := range []string{"VAYU_AUTH_BASE_URL", "VAYU_PDF_BASE_URL", "VAYU_DICTIONARY_BASE_URL", "VAYU_ABBREVIATION_BASE_URL"} {
		t.Setenv(key, b.server.URL)
	}
}

func signInViaCLI(t *testing.T, home string) {
	t.Helper()

	_, _, err := executeCLI(t, home, "login", "verify", "--phone", testPhone, "--otp", "123456")
	require.NoError(t, err)
}

func fakeJWT(expiresAt time.Time) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"sub":"u-1","exp":%d}`, expiresAt.Unix())))
	return header + "." + payload + ".signature"
}

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	return executeCLIContext(t, context.Background(), home, args...)
}

func executeCLIContext(t *testing.T, ctx context.Context, home string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)
	t.Setenv("VAYU_STORAGE_BACKEND", "file")

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}
