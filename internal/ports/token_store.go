package ports

import (
	"context"

	"github.com/vayureader/vayu-cli/internal/domain"
)

type TokenStore interface {
	Save(ctx context.Context, credential domain.Credential) error
	Load(ctx context.Context) (domain.Credential, error)
	Clear(ctx context.Context) error
	Token(ctx context.Context) (string, error)
}
