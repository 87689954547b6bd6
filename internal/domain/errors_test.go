package domain

import (
	"errors"
	"fmt"
	"testing"

	crerrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorKindsSurviveWrapping(t *testing.T) {
	cases := map[error]error{
		Validationf("capacity must be positive, got %d", 0): ErrValidation,
		Conflictf("seat taken"):                              ErrConflict,
		NotFoundf("hold missing"):                            ErrNotFound,
		CapacityExceededf("sold out"):                        ErrCapacityExceeded,
		DestructiveOperationf("live holds"):                  ErrDestructiveOperation,
	}
	for err, kind := range cases {
		assert.True(t, errors.Is(err, kind), "%v", err)
		assert.True(t, crerrors.Is(err, kind), "%v", err)
		assert.ErrorIs(t, fmt.Errorf("reserve: %w", err), kind)
		assert.ErrorIs(t, crerrors.Wrap(err, "reserve"), kind)
		assert.False(t, errors.Is(err, ErrSerializationFailure))
	}

	err := Validationf("capacity must be positive, got %d", 0)
	assert.Equal(t, "capacity must be positive, got 0", err.Error())
	assert.False(t, errors.Is(err, ErrConflict))
}

func TestWithKindStacksKinds(t *testing.T) {
	err := WithKind(Conflictf("transaction aborted"), ErrSerializationFailure)
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, ErrSerializationFailure)
	assert.Equal(t, "transaction aborted", err.Error())
	assert.NoError(t, WithKind(nil, ErrConflict))
}
