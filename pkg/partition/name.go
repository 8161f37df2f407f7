package partition

import (
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Prefix starts every partition name.
const Prefix = "t_"

var namePattern = regexp.MustCompile(`^t_[0-9a-f]{32}$`)

// NameFor derives the partition name of the tenant with the given id. The mapping is
// deterministic and injective, so a name is never shared by two tenants and never changes for
// one tenant.
func NameFor(id uuid.UUID) string {
	return Prefix + hex.EncodeToString(id[:])
}

// Validate rejects any name that NameFor could not have produced.
func Validate(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// SearchPath renders the search_path value binding a connection to name only. Shared tables
// must be schema-qualified while bound.
func SearchPath(name string) (string, error) {
	if err := Validate(name); err != nil {
		return "", err
	}
	return pgx.Identifier{name}.Sanitize(), nil
}
