package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"registrar/pkg/platform/sentinel"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeSerialization       = "40001"
	codeDeadlock            = "40P01"
)

// sqlState extracts the SQLSTATE from either driver's error type.
func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// classify maps driver failures onto sentinel errors. Unrecognised errors are
// wrapped with op and returned unchanged otherwise.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	code := sqlState(err)
	switch {
	case code == codeUniqueViolation:
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrConflict, err)
	case code == codeForeignKeyViolation:
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrInvalidState, err)
	case code == codeSerialization, code == codeDeadlock:
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "57P"):
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
