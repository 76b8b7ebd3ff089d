package domain

import "errors"

var (
	ErrSecretNotFound       = errors.New("secret not found")
	ErrBackendUnavailable   = errors.New("secret backend unavailable")
	ErrStorageFailure       = errors.New("secure storage failure")
	ErrMalformedToken       = errors.New("malformed bearer token")
	ErrAuthorizationFailure = errors.New("authorization failure")
	ErrStreamFailure        = errors.New("live update stream failure")
	ErrOTPVerification      = errors.New("otp verification failed")
)
