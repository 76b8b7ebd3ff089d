package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/viper"
	authadapter "github.com/vayureader/vayu-cli/internal/adapters/auth"
	"github.com/vayureader/vayu-cli/internal/adapters/catalog"
	"github.com/vayureader/vayu-cli/internal/adapters/gateway"
	"github.com/vayureader/vayu-cli/internal/adapters/live"
	statusadapter "github.com/vayureader/vayu-cli/internal/adapters/render/status"
	tomlrepo "github.com/vayureader/vayu-cli/internal/adapters/repo/toml"
	chainstore "github.com/vayureader/vayu-cli/internal/adapters/secrets/chain"
	filestore "github.com/vayureader/vayu-cli/internal/adapters/secrets/file"
	passstore "github.com/vayureader/vayu-cli/internal/adapters/secrets/pass"
	redisstore "github.com/vayureader/vayu-cli/internal/adapters/secrets/redis"
	"github.com/vayureader/vayu-cli/internal/adapters/tokenstore"
	"github.com/vayureader/vayu-cli/internal/application"
	"github.com/vayureader/vayu-cli/internal/domain"
	"github.com/vayureader/vayu-cli/internal/logging"
	"github.com/vayureader/vayu-cli/internal/ports"
)

const (
	baseAuth         = "auth"
	basePDF          = "pdf"
	baseDictionary   = "dictionary"
	baseAbbreviation = "abbreviation"
)

type app struct {
	settings       domain.Settings
	settingsRepo   ports.SettingsRepository
	log            *slog.Logger
	tokens         ports.TokenStore
	session        *application.SessionService
	transport      *gateway.Transport
	gateways       map[string]*gateway.Gateway
	otp            authadapter.OTPFlowAdapter
	catalog        catalog.Client
	live           *live.Channel
	navigator      *loginNavigator
	statusRenderer func(domain.Session, statusadapter.RenderOptions) (string, error)
	now            func() time.Time

	hydrateOnce sync.Once
	closers     []func() error
}

func wireApp() (*app, error) {
	repo, err := tomlrepo.NewRepository(viper.New())
	if err != nil {
		return nil, fmt.Errorf("wire settings repository: %w", err)
	}

	settings, err := repo.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	log := logging.NewLogger(settings.LogLevel, settings.LogFormat, os.Stderr)

	secretStore, closeSecrets, err := wireSecretStore(settings)
	if err != nil {
		return nil, err
	}

	tokens := tokenstore.NewStore(secretStore, log.With("component", "tokenstore"))
	session := application.NewSessionService(tokens, ports.SystemClock{}, log.With("component", "session"))
	navigator := &loginNavigator{out: os.Stderr}

	transport := gateway.NewTransport(tokens, navigator,
		gateway.WithUnauthorizedHandler(session),
		gateway.WithLogger(log.With("component", "gateway")),
	)

	gateways := map[string]*gateway.Gateway{}
	for name, baseURL := range map[string]string{
		baseAuth:         settings.AuthBaseURL,
		basePDF:          settings.PDFBaseURL,
		baseDictionary:   settings.DictionaryBaseURL,
		baseAbbreviation: settings.AbbreviationBaseURL,
	} {
		g, err := gateway.New(baseURL, transport, settings.HTTPTimeout)
		if err != nil {
			return nil, fmt.Errorf("wire %s gateway: %w", name, err)
		}
		gateways[name] = g
	}

	channel, err := live.NewChannel(settings.PDFBaseURL, live.WithLogger(log.With("component", "live")))
	if err != nil {
		return nil, fmt.Errorf("wire live channel: %w", err)
	}

	a := &app{
		settings:     settings,
		settingsRepo: repo,
		log:          log,
		tokens:       tokens,
		session:      session,
		transport:    transport,
		gateways:     gateways,
		otp: authadapter.OTPFlowAdapter{
			Gateway:        gateways[baseAuth],
			RequestTimeout: settings.HTTPTimeout,
		},
		catalog: catalog.Client{
			PDFs:          gateways[basePDF],
			Dictionary:    gateways[baseDictionary],
			Abbreviations: gateways[baseAbbreviation],
		},
		live:           channel,
		navigator:      navigator,
		statusRenderer: statusadapter.Render,
		now:            time.Now,
	}
	if closeSecrets != nil {
		a.closers = append(a.closers, closeSecrets)
	}
	session.Attach(transport)

	return a, nil
}

func wireSecretStore(settings domain.Settings) (ports.SecretStore, func() error, error) {
	switch settings.Storage.Backend {
	case domain.StorageBackendFile:
		return filestore.NewStore(settings.Storage.Dir), nil, nil
	case domain.StorageBackendPass:
		return passstore.NewStore(), nil, nil
	case domain.StorageBackendRedis:
		store, err := redisstore.Dial(context.Background(), redisstore.Options{
			Addr:     settings.Redis.Addr,
			Password: settings.Redis.Password,
			DB:       settings.Redis.DB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("wire redis secret store: %w", err)
		}
		return store, store.Close, nil
	default:
		store, err := chainstore.NewPassFirstWithFileFallback(settings.Storage.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("wire secret store chain: %w", err)
		}
		return store, nil, nil
	}
}

// currentSession restores the stored session once per process.
func (a *app) currentSession(ctx context.Context) domain.Session {
	a.hydrateOnce.Do(func() {
		a.session.Hydrate(ctx)
	})
	return a.session.Session()
}

func (a *app) gatewayFor(base string) (*gateway.Gateway, error) {
	g, ok := a.gateways[base]
	if !ok {
		return nil, fmt.Errorf("unknown base %q (want auth, pdf, dictionary or abbreviation)", base)
	}
	return g, nil
}

func (a *app) close() {
	a.session.Close()

	var errs []error
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("app.close_failed", "error", err)
	}
}

// loginNavigator is the CLI's login entry point: it tells the user how to
// sign in again, at most once per process.
type loginNavigator struct {
	mu   sync.Mutex
	out  io.Writer
	once sync.Once
}

var _ ports.Navigator = (*loginNavigator)(nil)

func (n *loginNavigator) setOutput(out io.Writer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.out = out
}

func (n *loginNavigator) NavigateToLogin() {
	n.once.Do(func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		_, _ = fmt.Fprintln(n.out, "Session ended. Sign in again with: vayu login request --name <name> --phone <phone>")
	})
}
