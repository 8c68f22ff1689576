package simplerepo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionState(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		to      State
		allowed bool
	}{
		{"volatile to fixed", StateVolatile, StateFixed, true},
		{"volatile to revoked", StateVolatile, StateRevoked, true},
		{"fixed to revoked", StateFixed, StateRevoked, true},
		{"fixed to fixed", StateFixed, StateFixed, false},
		{"revoked to fixed", StateRevoked, StateFixed, false},
		{"revoked to revoked", StateRevoked, StateRevoked, false},
		{"fixed back to volatile", StateFixed, StateVolatile, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := canTransitionState(tt.from, tt.to)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrBadArgument)
			}
		})
	}
}
