package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "registrar/internal/jwt_token"
	"registrar/internal/platform/config"
)

func TestRun_IssuesValidToken(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "cli-test-key")
	var out bytes.Buffer

	err := run([]string{"-account", "7c9e6679-7425-40de-944b-e07fc1f90ae7", "-ttl", "5m"}, &out)
	require.NoError(t, err)

	cfg := config.Default()
	svc := jwttoken.NewJWTService("cli-test-key", cfg.Auth.Issuer, cfg.Auth.Audience)
	account, err := svc.AccountIDFromToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "7c9e6679-7425-40de-944b-e07fc1f90ae7", account.String())
}

func TestRun_RejectsMissingAccount(t *testing.T) {
	assert.Error(t, run(nil, &bytes.Buffer{}))
}
