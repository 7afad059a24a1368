package utils

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type member struct {
	Name string `json:"name" validate:"required"`
}

type profile struct {
	Name    string   `json:"name" validate:"required,max=5"`
	Logo    string   `json:"logo" validate:"omitempty,url"`
	Layout  string   `json:"layout" validate:"omitempty,oneof=grid list"`
	Members []member `json:"members" validate:"dive"`
	Notes   string   `json:"notes"`
}

func TestValidateStructUsesJSONNames(t *testing.T) {
	err := ValidateStruct(&profile{})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "name", ve.Field)
	assert.Equal(t, "is required", ve.Message)

	err = ValidateStruct(&profile{Name: "ok", Layout: "masonry"})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "layout", ve.Field)
	assert.Equal(t, "must be one of: grid list", ve.Message)

	assert.NoError(t, ValidateStruct(&profile{Name: "ok", Logo: "https://x.example/logo.png"}))
}

func TestValidatePartialOnlyChecksPresentFields(t *testing.T) {
	// name is required but absent from the update, so it is not checked
	assert.NoError(t, ValidatePartial(&profile{Notes: "x"}, map[string]any{"notes": "x"}))

	err := ValidatePartial(&profile{Name: ""}, map[string]any{"name": ""})
	assert.True(t, IsValidationError(err))

	err = ValidatePartial(&profile{Logo: "not a url"}, map[string]any{"logo": "not a url"})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "logo", ve.Field)

	err = ValidatePartial(&profile{Members: []member{{Name: "a"}, {}}}, map[string]any{"members": nil})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "members[1].name", ve.Field)

	assert.NoError(t, ValidatePartial("not a struct", map[string]any{"x": 1}))
}

type bindTarget struct {
	EntityID string `binding:"required"`
}

func TestBindingError(t *testing.T) {
	v := validator.New()
	v.SetTagName("binding")
	err := BindingError(v.Struct(bindTarget{}))
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "entityId", ve.Field)
	assert.Equal(t, "is required", ve.Message)

	err = BindingError(errors.New("unexpected EOF"))
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "body", ve.Field)
}

func TestGoFieldToJSON(t *testing.T) {
	assert.Equal(t, "useCaseId", goFieldToJSON("UseCaseID"))
	assert.Equal(t, "id", goFieldToJSON("ID"))
	assert.Equal(t, "fileName", goFieldToJSON("FileName"))
	assert.Equal(t, "", goFieldToJSON(""))
}
