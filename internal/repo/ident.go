package repo

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// quoteIdent превращает "schema.name" или "name" в безопасный SQL-идентификатор.
func quoteIdent(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}
