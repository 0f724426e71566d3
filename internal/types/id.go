// README: Common identifier type used across modules.
package types

import (
	"strings"

	"github.com/google/uuid"
)

// ID is an opaque identifier for users, rides and accounts.
type ID string

func (id ID) String() string { return string(id) }

// NewID returns a random 32 character hex identifier.
func NewID() ID {
	return ID(strings.ReplaceAll(uuid.NewString(), "-", ""))
}
