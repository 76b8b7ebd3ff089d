package ports

import "context"

// UnauthorizedHandler is invoked when an authenticated request comes back 401/403.
// It reports whether a live session was ended; the gateway only navigates to
// login when it was.
type UnauthorizedHandler interface {
	HandleUnauthorized(ctx context.Context) bool
}

type UnauthorizedHandlerFunc func(ctx context.Context) bool

func (f UnauthorizedHandlerFunc) HandleUnauthorized(ctx context.Context) bool {
	return f(ctx)
}

// UnauthorizedRegistrar holds a single handler. The last registration wins
// and registering nil removes the current handler.
type UnauthorizedRegistrar interface {
	RegisterUnauthorizedHandler(h UnauthorizedHandler)
}
