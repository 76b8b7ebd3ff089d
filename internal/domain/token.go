package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

type tokenClaims struct {
	Exp json.RawMessage `json:"exp"`
}

// TokenExpiry decodes the exp claim from the payload segment of a bearer token.
// It never verifies a signature. Every failure wraps ErrMalformedToken.
func TokenExpiry(token string) (time.Time, error) {
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return time.Time{}, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(segments))
	}

	payload, err := decodeSegment(segments[1])
	if err != nil {
		return time.Time{}, err
	}

	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: decode payload: %v", ErrMalformedToken, err)
	}
	if len(claims.Exp) == 0 || string(claims.Exp) == "null" {
		return time.Time{}, fmt.Errorf("%w: missing exp claim", ErrMalformedToken)
	}

	var seconds float64
	if err := json.Unmarshal(claims.Exp, &seconds); err != nil {
		return time.Time{}, fmt.Errorf("%w: exp claim is not numeric", ErrMalformedToken)
	}

	millis := seconds * 1000
	if millis >= math.MaxInt64 || millis < math.MinInt64 {
		return time.Time{}, fmt.Errorf("%w: exp claim out of range", ErrMalformedToken)
	}

	return time.UnixMilli(int64(millis)), nil
}

// decodeSegment accepts base64url with or without "=" padding.
// A length of 1 mod 4 cannot come from any byte sequence and is rejected.
func decodeSegment(segment string) ([]byte, error) {
	trimmed := strings.TrimRight(segment, "=")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty payload segment", ErrMalformedToken)
	}
	if len(trimmed)%4 == 1 {
		return nil, fmt.Errorf("%w: payload segment has invalid length %d", ErrMalformedToken, len(trimmed))
	}

	decoded, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: payload segment is not base64url: %v", ErrMalformedToken, err)
	}

	return decoded, nil
}
