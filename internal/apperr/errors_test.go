package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	tests := []struct {
		err  error
		kind error
	}{
		{Validation("bad"), ErrValidation},
		{Conflict("taken"), ErrConflict},
		{InsufficientFunds("broke"), ErrInsufficientFunds},
		{NotFound("gone"), ErrNotFound},
		{State("nope"), ErrState},
		{Internal(sql.ErrConnDone), ErrInternal},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, tt.err, tt.kind)
		assert.ErrorIs(t, fmt.Errorf("wrapped: %w", tt.err), tt.kind)
		if tt.kind != ErrValidation {
			assert.NotErrorIs(t, tt.err, ErrValidation)
		}
	}
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil))

	c := Conflict("taken")
	assert.Same(t, c, Wrap(c))

	w := Wrap(sql.ErrTxDone)
	assert.ErrorIs(t, w, ErrInternal)
	assert.ErrorIs(t, w, sql.ErrTxDone)
}

func TestPublic(t *testing.T) {
	assert.Equal(t, "time slot not available", Public(Conflict("time slot not available")))
	assert.Equal(t, "internal error", Public(Internal(errors.New("dial tcp: refused"))))
	assert.Equal(t, "internal error", Public(errors.New("raw")))
}
