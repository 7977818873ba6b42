package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ankitchauhan1221/maluk-backend/internal/apperr"
)

func TestKindOf(t *testing.T) {
	err := apperr.New(apperr.KindConflict, "already cancelled")

	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.False(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, apperr.Kind(0), apperr.KindOf(errors.New("plain")))
	assert.Equal(t, apperr.Kind(0), apperr.KindOf(nil))
}

func TestKindSurvivesWrapping(t *testing.T) {
	inner := apperr.New(apperr.KindNotFound, "order not found")
	wrapped := fmt.Errorf("loading order: %w", inner)

	assert.True(t, apperr.IsKind(wrapped, apperr.KindNotFound))
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("connection refused")

	assert.Equal(t, "gateway request failed: connection refused",
		apperr.Wrap(apperr.KindExternalTransient, "gateway request failed", cause).Error())
	assert.Equal(t, "connection refused",
		apperr.Wrap(apperr.KindExternalTransient, "", cause).Error())
	assert.Equal(t, "bad input", apperr.New(apperr.KindValidation, "bad input").Error())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := apperr.Wrap(apperr.KindExternalTransient, "gateway request failed", cause)

	assert.ErrorIs(t, err, cause)
}
