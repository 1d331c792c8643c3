package access

import (
	"errors"
	"fmt"

	"coffer/internal/asset"
)

// ErrUnauthorized is the authorization-error class. Matchable with errors.Is
// against any *UnauthorizedError.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNullTarget is returned when granting Guardian or Operator to the null
// address.
var ErrNullTarget = errors.New("cannot grant role to null address")

// UnauthorizedError reports a caller lacking the required role for an action.
// Authorization failures are never retried internally and leave no partial
// effect.
type UnauthorizedError struct {
	Caller   asset.Address
	Required Role
	Action   string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: %q requires role %s, caller %s does not hold it",
		e.Action, e.Required, callerLabel(e.Caller))
}

// Is makes errors.Is(err, ErrUnauthorized) match.
func (e *UnauthorizedError) Is(target error) bool { return target == ErrUnauthorized }

func callerLabel(a asset.Address) string {
	if a.IsZero() {
		return "<null>"
	}
	return string(a)
}
