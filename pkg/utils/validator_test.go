package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
)

type sampleRequest struct {
	Name      string `json:"name" validate:"required"`
	Status    string `json:"status" validate:"omitempty,oneof=active revoked"`
	Dimension string `json:"dimension" validate:"omitempty,dimension"`
	Score     int    `json:"score" validate:"gte=0,lte=100"`
}

func TestValidateStruct(t *testing.T) {
	assert.Nil(t, ValidateStruct(sampleRequest{Name: "x", Status: "active", Dimension: "Credit", Score: 10}))

	err := ValidateStruct(sampleRequest{Status: "pending", Dimension: "overall", Score: 101})
	require.NotNil(t, err)
	assert.Equal(t, constants.ErrCodeInvalidRequest, err.Code())

	fields, ok := err.Metadata()["fields"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", fields["name"])
	assert.Equal(t, "must be one of: active revoked", fields["status"])
	assert.Equal(t, "must be a scored risk dimension", fields["dimension"])
	assert.Equal(t, "must be at most 100", fields["score"])
	assert.True(t, errors.IsCode(err, constants.ErrCodeInvalidRequest))
}

func TestValidateNotEmpty(t *testing.T) {
	assert.True(t, ValidateNotEmpty("a"))
	assert.False(t, ValidateNotEmpty("  "))
}
