package util

import (
	"bytes"
	"fmt"
	"learnhub_backend/internal/model"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrValidation, http.StatusBadRequest},
		{fmt.Errorf("%w: title is required", ErrValidation), http.StatusBadRequest},
		{ErrNotEnrolled, http.StatusForbidden},
		{ErrQuizLocked, http.StatusForbidden},
		{ErrNotFound, http.StatusNotFound},
		{ErrAlreadyEnrolled, http.StatusConflict},
		{ErrPaymentMismatch, http.StatusConflict},
		{ErrInsufficientPoints, http.StatusUnprocessableEntity},
		{ErrPaymentPending, http.StatusAccepted},
		{fmt.Errorf("%w: timeout", ErrExternalService), http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, StatusFor(c.err), c.err.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("%w: gateway down", ErrExternalService)))
	assert.True(t, IsRetryable(ErrPaymentPending))
	assert.False(t, IsRetryable(ErrPaymentFailed))
	assert.False(t, IsRetryable(ErrValidation))
}

func TestJWT_RoundTrip(t *testing.T) {
	user := &model.User{Email: "a@b.com", Role: model.Admin}
	user.ID = 42

	token, err := GenerateJWT(user, "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, model.Admin, claims.Role)
	assert.True(t, claims.IsAdmin())
	assert.Equal(t, "42", claims.Subject)

	_, err = ParseJWT(token, "other")
	assert.Error(t, err)
}

func TestJWT_RejectsExpiredAndForeignTokens(t *testing.T) {
	user := &model.User{Email: "a@b.com", Role: model.Student}
	user.ID = 1

	expired, err := GenerateJWT(user, "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired, "secret")
	assert.Error(t, err)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:           1,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
	})
	signed, err := foreign.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = ParseJWT(signed, "secret")
	assert.Error(t, err)
}

func TestValidateMimeType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	mime, err := ValidateMimeType(bytes.NewReader(png), []string{MimeImage})
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	_, err = ValidateMimeType(bytes.NewReader([]byte("plain text")), []string{MimeImage, MimeVideo})
	assert.ErrorIs(t, err, ErrInvalidFileType)
}

func TestConv(t *testing.T) {
	id, err := ParseUintParam("17")
	require.NoError(t, err)
	assert.Equal(t, uint(17), id)

	_, err = ParseUintParam("0")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = ParseUintParam("abc")
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, 100.0, Clamp(130, 0, 100))
	assert.Equal(t, 33.33, Round2(100.0/3))
	assert.True(t, HasExtension("Lesson.MP4", AllowedVideoExtensions))
	assert.False(t, HasExtension("lesson.exe", AllowedVideoExtensions))
}
