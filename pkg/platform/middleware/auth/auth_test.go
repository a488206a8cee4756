package auth

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "registrar/pkg/domain"
	"registrar/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return s.claims, s.err
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	account := id.AccountID(uuid.New())

	var seen id.AccountID
	var seenJTI string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.AccountID(r.Context())
		seenJTI = requestcontext.TokenID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name      string
		header    string
		validator stubValidator
		status    int
	}{
		{"valid token", "Bearer abc", stubValidator{claims: &JWTClaims{Subject: account.String(), JTI: "jti-1"}}, http.StatusNoContent},
		{"missing header", "", stubValidator{}, http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", stubValidator{}, http.StatusUnauthorized},
		{"empty token", "Bearer ", stubValidator{}, http.StatusUnauthorized},
		{"invalid token", "Bearer abc", stubValidator{err: errors.New("bad")}, http.StatusUnauthorized},
		{"non-uuid subject", "Bearer abc", stubValidator{claims: &JWTClaims{Subject: "bob"}}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = id.AccountID{}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			RequireAuth(tt.validator, logger)(next).ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, account, seen)
				assert.Equal(t, "jti-1", seenJTI)
				return
			}
			assert.True(t, seen.IsNil())
			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, "unauthorized", body["error"])
		})
	}
}
