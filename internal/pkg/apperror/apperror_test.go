package apperror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrappersKeepKind(t *testing.T) {
	assert.ErrorIs(t, NotFound("cluster %s", "abc"), ErrNotFound)
	assert.Equal(t, "cluster abc: not found", NotFound("cluster %s", "abc").Error())
	assert.ErrorIs(t, InvalidArgument("bad"), ErrInvalidArgument)
	assert.ErrorIs(t, Conflict("dup"), ErrConflict)

	cause := errors.New("connection reset")
	err := Persistence("create cluster", cause)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, Persistence("noop", nil))

	assert.ErrorIs(t, External("scroll", cause), ErrExternalCollaborator)
}
