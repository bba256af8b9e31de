package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/pkg/clock"
	appErrors "github.com/noah-isme/tutor-scheduler-api/pkg/errors"
)

func TestTokenServiceRoundTrip(t *testing.T) {
	clk := clock.NewFixed(time.Date(2025, time.March, 9, 12, 0, 0, 0, time.UTC))
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "tutor-id"}, clk)

	token, err := svc.IssueToken("teacher-1", models.RoleTeacher)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)

	clk.Advance(2 * time.Hour)
	_, err = svc.ValidateToken(token)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestTokenServiceRejectsForeignTokens(t *testing.T) {
	clk := clock.NewFixed(time.Date(2025, time.March, 9, 12, 0, 0, 0, time.UTC))
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "tutor-id"}, clk)

	other := NewTokenService(TokenConfig{Secret: "other", Issuer: "tutor-id"}, clk)
	token, err := other.IssueToken("teacher-1", models.RoleTeacher)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	wrongIssuer := NewTokenService(TokenConfig{Secret: "secret", Issuer: "elsewhere"}, clk)
	token, err = wrongIssuer.IssueToken("teacher-1", models.RoleTeacher)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{UserID: "x", Role: models.RoleAdmin}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(none)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
