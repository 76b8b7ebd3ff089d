package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/vayureader/vayu-cli/internal/domain"
	"github.com/vayureader/vayu-cli/internal/ports"
)

const (
	KeyToken     = "vayureader/session/token"
	KeyUser      = "vayureader/session/user"
	KeyExpiresAt = "vayureader/session/expires_at"
)

// Store persists a domain.Credential as three independent secret keys.
type Store struct {
	secrets ports.SecretStore
	log     *slog.Logger
}

var _ ports.TokenStore = (*Store)(nil)

func NewStore(secrets ports.SecretStore, log *slog.Logger) *Store {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{secrets: secrets, log: log}
}

// Save writes the token first. A nil user or expiry removes the stored key
// so a record never mixes values from two sign-ins.
func (s *Store) Save(ctx context.Context, credential domain.Credential) error {
	if strings.TrimSpace(credential.Token) == "" {
		return errors.New("token is required")
	}

	if err := s.secrets.Put(ctx, KeyToken, credential.Token); err != nil {
		return storageFailure("save token", err)
	}

	if credential.User != nil {
		encoded, err := json.Marshal(credential.User)
		if err != nil {
			return fmt.Errorf("encode user: %w", err)
		}
		if err := s.secrets.Put(ctx, KeyUser, string(encoded)); err != nil {
			return storageFailure("save user", err)
		}
	} else if err := s.secrets.Delete(ctx, KeyUser); err != nil {
		return storageFailure("drop stale user", err)
	}

	if credential.ExpiresAt != nil {
		value := strconv.FormatInt(credential.ExpiresAt.UnixMilli(), 10)
		if err := s.secrets.Put(ctx, KeyExpiresAt, value); err != nil {
			return storageFailure("save expiry", err)
		}
	} else if err := s.secrets.Delete(ctx, KeyExpiresAt); err != nil {
		return storageFailure("drop stale expiry", err)
	}

	return nil
}

// Load tolerates partial records: any key may be absent. Undecodable user or
// expiry values are logged and treated as absent.
func (s *Store) Load(ctx context.Context) (domain.Credential, error) {
	var credential domain.Credential

	token, err := s.read(ctx, KeyToken)
	if err != nil {
		return domain.Credential{}, err
	}
	credential.Token = token

	rawUser, err := s.read(ctx, KeyUser)
	if err != nil {
		return domain.Credential{}, err
	}
	if rawUser != "" {
		var user domain.User
		if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
			s.log.Warn("tokenstore.user_undecodable", "error", err)
		} else {
			credential.User = &user
		}
	}

	rawExpiry, err := s.read(ctx, KeyExpiresAt)
	if err != nil {
		return domain.Credential{}, err
	}
	if rawExpiry != "" {
		millis, err := strconv.ParseInt(strings.TrimSpace(rawExpiry), 10, 64)
		if err != nil {
			s.log.Warn("tokenstore.expiry_undecodable", "value", rawExpiry, "error", err)
		} else {
			expiresAt := time.UnixMilli(millis)
			credential.ExpiresAt = &expiresAt
		}
	}

	return credential, nil
}

// Clear attempts every key even when an earlier delete fails.
func (s *Store) Clear(ctx context.Context) error {
	var errs []error
	for _, key := range []string{KeyToken, KeyUser, KeyExpiresAt} {
		if err := s.secrets.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return storageFailure("clear session", errors.Join(errs...))
	}
	return nil
}

func (s *Store) Token(ctx context.Context) (string, error) {
	return s.read(ctx, KeyToken)
}

func (s *Store) read(ctx context.Context, key string) (string, error) {
	value, err := s.secrets.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrSecretNotFound) {
			return "", nil
		}
		return "", storageFailure("read "+key, err)
	}
	return value, nil
}

func storageFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageFailure, err)
}
