package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"github.com/vayureader/vayu-cli/internal/domain"
	"github.com/vayureader/vayu-cli/internal/ports"
)

const (
	configName      = "config"
	configType      = "toml"
	configFile      = "config.toml"
	configDirName   = ".vayu"
	envPrefix       = "VAYU"
	configFileMode  = 0o600
	configDirMode   = 0o700
	tempFilePattern = ".config-*.toml.tmp"
)

const (
	KeyAuthBaseURL         = "auth.base_url"
	KeyPDFBaseURL          = "pdf.base_url"
	KeyDictionaryBaseURL   = "dictionary.base_url"
	KeyAbbreviationBaseURL = "abbreviation.base_url"
	KeyStorageBackend      = "storage.backend"
	KeyStorageDir          = "storage.dir"
	KeyRedisAddr           = "redis.addr"
	KeyRedisPassword       = "redis.password"
	KeyRedisDB             = "redis.db"
	KeyHTTPTimeout         = "http.timeout"
	KeyLogLevel            = "log.level"
	KeyLogFormat           = "log.format"
)

var ErrUnknownKey = errors.New("unknown config key")

// Repository loads settings through viper (file, then VAYU_* environment) and
// writes the config file with go-toml.
type Repository struct {
	cfg       *viper.Viper
	configDir string
	path      string
	mu        *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.SettingsRepository = (*Repository)(nil)

// NewRepository uses ~/.vayu as the config directory.
func NewRepository(cfg *viper.Viper) (*Repository, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	return NewRepositoryInDir(cfg, filepath.Join(homeDir, configDirName))
}

func NewRepositoryInDir(cfg *viper.Viper, configDir string) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}
	if strings.TrimSpace(configDir) == "" {
		return nil, errors.New("config directory is empty")
	}

	configDir, err := normalizePath(configDir)
	if err != nil {
		return nil, err
	}

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(configDir)
	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()
	for key, value := range defaults(configDir) {
		cfg.SetDefault(key, value)
	}

	path := filepath.Join(configDir, configFile)
	return &Repository{cfg: cfg, configDir: configDir, path: path, mu: lockForPath(path)}, nil
}

func (r *Repository) Path() string {
	return r.path
}

// Load returns the effective settings. A missing config file is not an error.
func (r *Repository) Load(ctx context.Context) (domain.Settings, error) {
	if err := ctx.Err(); err != nil {
		return domain.Settings{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.cfg.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return domain.Settings{}, fmt.Errorf("read config file: %w", err)
		}
	}

	version := r.cfg.GetInt("version")
	if err := (fileSchema{Version: version}).validateVersion(); err != nil {
		return domain.Settings{}, err
	}

	timeout, err := parseTimeout(r.cfg.GetString(KeyHTTPTimeout))
	if err != nil {
		return domain.Settings{}, err
	}

	backend := domain.StorageBackend(strings.ToLower(r.cfg.GetString(KeyStorageBackend)))
	if !backend.Valid() {
		return domain.Settings{}, fmt.Errorf("invalid %s %q", KeyStorageBackend, backend)
	}

	storageDir, err := expandHome(r.cfg.GetString(KeyStorageDir))
	if err != nil {
		return domain.Settings{}, err
	}

	return domain.Settings{
		AuthBaseURL:         r.cfg.GetString(KeyAuthBaseURL),
		PDFBaseURL:          r.cfg.GetString(KeyPDFBaseURL),
		DictionaryBaseURL:   r.cfg.GetString(KeyDictionaryBaseURL),
		AbbreviationBaseURL: r.cfg.GetString(KeyAbbreviationBaseURL),
		Storage: domain.StorageSettings{
			Backend: backend,
			Dir:     storageDir,
		},
		Redis: domain.RedisSettings{
			Addr:     r.cfg.GetString(KeyRedisAddr),
			Password: r.cfg.GetString(KeyRedisPassword),
			DB:       r.cfg.GetInt(KeyRedisDB),
		},
		HTTPTimeout: timeout,
		LogLevel:    strings.ToLower(r.cfg.GetString(KeyLogLevel)),
		LogFormat:   strings.ToLower(r.cfg.GetString(KeyLogFormat)),
	}, nil
}

// Set validates value for key and persists it to the config file.
func (r *Repository) Set(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)
	if err := validateValue(key, value); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}
	if err := file.set(key, value); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return r.writeSchema(file)
}

// Keys lists every supported config key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(defaults("")))
	for key := range defaults("") {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Encode renders settings in config file layout.
func Encode(settings domain.Settings) ([]byte, error) {
	file := fileSchema{
		Version:      currentSchemaVersion,
		Auth:         serviceSchema{BaseURL: settings.AuthBaseURL},
		PDF:          serviceSchema{BaseURL: settings.PDFBaseURL},
		Dictionary:   serviceSchema{BaseURL: settings.DictionaryBaseURL},
		Abbreviation: serviceSchema{BaseURL: settings.AbbreviationBaseURL},
		Storage:      storageSchema{Backend: string(settings.Storage.Backend), Dir: settings.Storage.Dir},
		Redis:        redisSchema{Addr: settings.Redis.Addr, DB: settings.Redis.DB},
		HTTP:         httpSchema{Timeout: settings.HTTPTimeout.String()},
		Log:          logSchema{Level: settings.LogLevel, Format: settings.LogFormat},
	}
	if settings.Redis.Password != "" {
		file.Redis.Password = "********"
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return data, nil
}

func defaults(configDir string) map[string]any {
	return map[string]any{
		KeyAuthBaseURL:         "http://localhost:5000",
		KeyPDFBaseURL:          "http://localhost:5001",
		KeyDictionaryBaseURL:   "http://localhost:5002",
		KeyAbbreviationBaseURL: "http://localhost:5003",
		KeyStorageBackend:      string(domain.StorageBackendChain),
		KeyStorageDir:          filepath.Join(configDir, "secrets"),
		KeyRedisAddr:           "localhost:6379",
		KeyRedisPassword:       "",
		KeyRedisDB:             0,
		KeyHTTPTimeout:         "30s",
		KeyLogLevel:            "warn",
		KeyLogFormat:           "text",
	}
}

func validateValue(key string, value string) error {
	switch key {
	case KeyAuthBaseURL, KeyPDFBaseURL, KeyDictionaryBaseURL, KeyAbbreviationBaseURL:
		if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
			return fmt.Errorf("%s must use http or https", key)
		}
	case KeyStorageBackend:
		if !domain.StorageBackend(strings.ToLower(value)).Valid() {
			return fmt.Errorf("%s must be one of chain, file, pass, redis", key)
		}
	case KeyStorageDir, KeyRedisAddr:
		if value == "" {
			return fmt.Errorf("%s must not be empty", key)
		}
	case KeyRedisPassword:
	case KeyRedisDB:
		db, err := strconv.Atoi(value)
		if err != nil || db < 0 {
			return fmt.Errorf("%s must be a non-negative integer", key)
		}
	case KeyHTTPTimeout:
		if _, err := parseTimeout(value); err != nil {
			return err
		}
	case KeyLogLevel:
		switch strings.ToLower(value) {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("%s must be one of debug, info, warn, error", key)
		}
	case KeyLogFormat:
		switch strings.ToLower(value) {
		case "text", "json":
		default:
			return fmt.Errorf("%s must be text or json", key)
		}
	default:
		return fmt.Errorf("%w %q", ErrUnknownKey, key)
	}

	return nil
}

func (s *fileSchema) set(key string, value string) error {
	switch key {
	case KeyAuthBaseURL:
		s.Auth.BaseURL = value
	case KeyPDFBaseURL:
		s.PDF.BaseURL = value
	case KeyDictionaryBaseURL:
		s.Dictionary.BaseURL = value
	case KeyAbbreviationBaseURL:
		s.Abbreviation.BaseURL = value
	case KeyStorageBackend:
		s.Storage.Backend = strings.ToLower(value)
	case KeyStorageDir:
		s.Storage.Dir = value
	case KeyRedisAddr:
		s.Redis.Addr = value
	case KeyRedisPassword:
		s.Redis.Password = value
	case KeyRedisDB:
		db, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		s.Redis.DB = db
	case KeyHTTPTimeout:
		s.HTTP.Timeout = value
	case KeyLogLevel:
		s.Log.Level = strings.ToLower(value)
	case KeyLogFormat:
		s.Log.Format = strings.ToLower(value)
	default:
		return fmt.Errorf("%w %q", ErrUnknownKey, key)
	}
	return nil
}

func parseTimeout(raw string) (time.Duration, error) {
	timeout, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", KeyHTTPTimeout, err)
	}
	if timeout <= 0 {
		return 0, fmt.Errorf("%s must be positive", KeyHTTPTimeout)
	}
	return timeout, nil
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{Version: currentSchemaVersion}, nil
		}
		return fileSchema{}, fmt.Errorf("read config file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode config file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.path), configDirMode); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode config file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}

	if err := tempFile.Chmod(configFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}

	if err := os.Rename(tempName, r.path); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}

	cleanup = false

	return nil
}

func normalizePath(path string) (string, error) {
	expanded, err := expandHome(path)
	if err != nil {
		return "", err
	}

	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~")), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}
