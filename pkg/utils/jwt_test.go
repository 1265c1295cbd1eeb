package utils

import (
	"testing"

	"linkshare-backend/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUser() *models.User {
	return &models.User{ID: "u-1", Username: "alice", Role: models.RoleAdmin}
}

func TestGenerateAndValidateTokenPair(t *testing.T) {
	svc := NewJWTService("test-secret")

	access, refresh, expiresIn, err := svc.GenerateTokenPair(testUser())
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)
	assert.Greater(t, expiresIn, int64(0))

	claims, err := svc.ValidateToken(access)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, "access", claims.Type)

	refreshClaims, err := svc.ValidateRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, "refresh", refreshClaims.Type)
}

func TestValidateRefreshTokenRejectsAccessToken(t *testing.T) {
	svc := NewJWTService("test-secret")

	access, _, err := svc.GenerateAccessToken(testUser())
	require.NoError(t, err)

	_, err = svc.ValidateRefreshToken(access)
	assert.Error(t, err)
}

func TestRefreshAccessToken(t *testing.T) {
	svc := NewJWTService("test-secret")

	_, refresh, _, err := svc.GenerateTokenPair(testUser())
	require.NoError(t, err)

	access, expiresIn, err := svc.RefreshAccessToken(refresh)
	require.NoError(t, err)
	assert.Greater(t, expiresIn, int64(0))

	claims, err := svc.ValidateToken(access)
	require.NoError(t, err)
	assert.Equal(t, "access", claims.Type)
	assert.Equal(t, "alice", claims.Username)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	access, _, err := NewJWTService("secret-a").GenerateAccessToken(testUser())
	require.NoError(t, err)

	_, err = NewJWTService("secret-b").ValidateToken(access)
	assert.Error(t, err)
}
