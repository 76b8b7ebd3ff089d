package ports

import (
	"context"

	"github.com/vayureader/vayu-cli/internal/domain"
)

type SettingsRepository interface {
	Load(ctx context.Context) (domain.Settings, error)
	Set(ctx context.Context, key string, value string) error
	Path() string
}
