package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/d9705996/steward/internal/apperr"
	"github.com/stretchr/testify/assert"
)

var errDuplicate = apperr.New(apperr.ErrAlreadyExists, "duplicate widget")

func TestError_MatchesSpecificAndKind(t *testing.T) {
	err := fmt.Errorf("create widget: %w", errDuplicate)

	assert.ErrorIs(t, err, errDuplicate)
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
	assert.NotErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, apperr.ErrAlreadyExists, apperr.KindOf(err))
}

func TestKindOf_InfrastructureError(t *testing.T) {
	assert.Nil(t, apperr.KindOf(errors.New("connection reset")))
}

func TestValidation_FieldsInMessage(t *testing.T) {
	err := apperr.Validation(map[string]string{
		"name":     "is required",
		"latitude": "must be between -90 and 90",
	})

	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "validation failed (latitude: must be between -90 and 90; name: is required)", err.Error())
	assert.Equal(t, "is required", apperr.FieldsOf(fmt.Errorf("wrap: %w", err))["name"])
}

func TestFieldsOf_NoDomainError(t *testing.T) {
	assert.Nil(t, apperr.FieldsOf(errors.New("boom")))
}
