package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pointRequest struct {
	Latitude  float64 `validate:"latitude"`
	Longitude float64 `validate:"longitude"`
	Field     string  `validate:"required,pipeline_field"`
}

func TestValidateStruct_PipelineField(t *testing.T) {
	assert.NoError(t, ValidateStruct(&pointRequest{Latitude: -23.5, Longitude: -46.6, Field: "origin"}))
	assert.NoError(t, ValidateStruct(&pointRequest{Field: "Destination"}))

	err := ValidateStruct(&pointRequest{Field: "stopover"})
	require.Error(t, err)
	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"pointRequest.Field": "failed pipeline_field"}, ve.Errors)
}

func TestValidateStruct_OutOfRangeLatitude(t *testing.T) {
	err := ValidateStruct(&pointRequest{Latitude: 123, Field: "origin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pointRequest.Latitude")
}

func TestValidationError_Error_MultipleFields(t *testing.T) {
	ve := &ValidationError{
		Errors: map[string]string{
			"query": "is required",
			"field": "must be one of origin destination",
		},
	}

	assert.Equal(t, "validation failed: field: must be one of origin destination; query: is required", ve.Error())
}

func TestValidationError_AddError_NilMap(t *testing.T) {
	ve := &ValidationError{Errors: nil}

	ve.AddError("field", "message")

	assert.Equal(t, "message", ve.Errors["field"])
	assert.Equal(t, "validation failed: field: message", ve.Error())
}
