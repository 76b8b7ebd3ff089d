package domain

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenExpiry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		token   string
		want    time.Time
		wantErr string
	}{
		{
			name:  "integer seconds",
			token: tokenWithPayload(`{"sub":"u-1","exp":1792310400}`),
			want:  time.Unix(1792310400, 0),
		},
		{
			name:  "fractional seconds",
			token: tokenWithPayload(`{"exp":1700000000.5}`),
			want:  time.UnixMilli(1700000000500),
		},
		{
			name:  "padded payload",
			token: "h." + base64.URLEncoding.EncodeToString([]byte(`{"exp":1792310400}`)) + ".s",
			want:  time.Unix(1792310400, 0),
		},
		{
			name:  "zero exp is the epoch",
			token: "header.eyJleHAiOjB9.sig",
			want:  time.Unix(0, 0),
		},
		{name: "two segments", token: "header.payload", wantErr: "expected 3 segments"},
		{name: "four segments", token: "a.b.c.d", wantErr: "expected 3 segments"},
		{name: "empty payload", token: "header..sig", wantErr: "empty payload segment"},
		{name: "impossible length", token: "header.abcde.sig", wantErr: "invalid length"},
		{name: "not base64", token: "header.@@@@.sig", wantErr: "not base64url"},
		{name: "payload not json", token: tokenWithPayload(`not-json`), wantErr: "decode payload"},
		{name: "missing exp", token: tokenWithPayload(`{"sub":"u-1"}`), wantErr: "missing exp claim"},
		{name: "null exp", token: tokenWithPayload(`{"exp":null}`), wantErr: "missing exp claim"},
		{name: "string exp", token: tokenWithPayload(`{"exp":"1792310400"}`), wantErr: "not numeric"},
		{name: "exp beyond int64 milliseconds", token: tokenWithPayload(`{"exp":1e17}`), wantErr: "out of range"},
		{name: "exp below int64 milliseconds", token: tokenWithPayload(`{"exp":-1e17}`), wantErr: "out of range"},
		{
			name:  "far future exp",
			token: tokenWithPayload(`{"exp":9000000000000000}`),
			want:  time.UnixMilli(9000000000000000000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := TokenExpiry(tt.token)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedToken)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func tokenWithPayload(payload string) string {
	return "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".signature"
}
