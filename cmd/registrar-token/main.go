// Command registrar-token mints a bearer token for an account, for local
// development against a server sharing the same signing key.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	jwttoken "registrar/internal/jwt_token"
	"registrar/internal/platform/config"
	id "registrar/pkg/domain"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("registrar-token", flag.ContinueOnError)
	account := fs.String("account", "", "account UUID the token is issued for")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	accountID, err := id.ParseAccountID(*account)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	token, err := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience).
		GenerateAccessToken(accountID, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
