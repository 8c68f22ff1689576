package simplerepo

import "fmt"

// canTransitionState validates a resource state change. Volatile resources
// may be fixed; any non-revoked resource may be revoked. Revocation is
// terminal.
func canTransitionState(from, to State) error {
	switch to {
	case StateFixed:
		if from != StateVolatile {
			return fmt.Errorf("%w: cannot fix resource in state %s", ErrBadArgument, from)
		}
	case StateRevoked:
		if from == StateRevoked {
			return fmt.Errorf("%w: resource is already revoked", ErrBadArgument)
		}
	default:
		return fmt.Errorf("%w: invalid target state %s", ErrBadArgument, to)
	}
	return nil
}
