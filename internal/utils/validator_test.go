// internal/utils/validator_test.go
package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quoteInput struct {
	Airport  string `validate:"required,icao"`
	Currency string `validate:"omitempty,currency"`
	Seats    int    `validate:"min=0"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(quoteInput{Airport: "TNCM", Currency: "USD"}))
	assert.NoError(t, ValidateStruct(quoteInput{Airport: "tncm"}))

	err := ValidateStruct(quoteInput{Airport: "SXM", Currency: "usd", Seats: -1})
	require.Error(t, err)

	errs := GetValidationErrors(err)
	require.Len(t, errs, 3)
	assert.Equal(t, "airport", errs[0].Field)
	assert.Equal(t, "icao", errs[0].Tag)
	assert.Equal(t, "Currency must be a three-letter ISO currency code", errs[1].Message)
	assert.Equal(t, "Seats must be at least 0", errs[2].Message)
}

func TestGenerateNumericCode(t *testing.T) {
	code, err := GenerateNumericCode(6)
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9]{6}$`, code)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashBytes([]byte("abc")))
}

func TestJWTRoundTrip(t *testing.T) {
	SetJWTSecret("test-secret")
	SetJWTIssuer("fop-identity")

	token, err := GenerateJWT("officer@caa.example.org", "sxm-caa", "reviewer", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "sxm-caa", claims.TenantID)
	assert.Equal(t, "reviewer", claims.Role)
	assert.Equal(t, "officer@caa.example.org", claims.Subject)

	SetJWTIssuer("someone-else")
	_, err = ValidateJWT(token)
	assert.Error(t, err)
	SetJWTIssuer("fop-identity")
}
