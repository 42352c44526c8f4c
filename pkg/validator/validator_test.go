package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recoverTokenRequest struct {
	UserID string `json:"userId" validate:"required"`
	Email  string `json:"email" validate:"omitempty,email"`
}

func TestValidateStruct(t *testing.T) {
	require.NoError(t, ValidateStruct(&recoverTokenRequest{UserID: "user-1"}))

	err := ValidateStruct(&recoverTokenRequest{})
	require.Error(t, err)

	ve, ok := err.(ValidationErrors)
	require.True(t, ok)
	require.Len(t, ve, 1)
	require.Equal(t, "userId", ve[0].Field)
	require.Equal(t, "required", ve[0].Tag)
}

func TestMissingFields(t *testing.T) {
	err := ValidateStruct(&recoverTokenRequest{Email: "not-an-email"})
	require.Error(t, err)

	ve, ok := err.(ValidationErrors)
	require.True(t, ok)
	require.Equal(t, []string{"userId"}, ve.MissingFields())
}
