package ports

import "context"

// SecretStore is a flat key/value secure storage backend. Get reports a
// missing key with an error wrapping domain.ErrSecretNotFound.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}
