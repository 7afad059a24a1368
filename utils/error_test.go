package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	notFound := fmt.Errorf("revert: %w", NewNotFoundError("version", "2024-10-25T14:30:00.000Z"))
	assert.True(t, IsNotFoundError(notFound))
	assert.True(t, errors.Is(notFound, ErrorRecordNotFound))
	assert.False(t, IsValidationError(notFound))
	assert.Equal(t, `revert: version "2024-10-25T14:30:00.000Z" not found`, notFound.Error())

	required := RequiredError("entityId")
	assert.True(t, IsValidationError(required))
	assert.False(t, IsNotFoundError(required))
	assert.Equal(t, "entityId: is required", required.Error())

	assert.Equal(t, "bad body", NewValidationError("", "bad body").Error())
}
