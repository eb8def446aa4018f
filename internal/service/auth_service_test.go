package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lensbook-api/internal/models"
	appErrors "github.com/noah-isme/lensbook-api/pkg/errors"
)

func TestValidateToken(t *testing.T) {
	svc := NewAuthService(zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", Issuer: "identity", Audience: []string{"lensbook"}})
	token, _, err := svc.IssueToken(models.Principal{UserID: "u1", Role: models.RolePhotographer}, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.Principal{UserID: "u1", Role: models.RolePhotographer}, claims.Principal())
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewAuthService(zap.NewNop(), AuthConfig{AccessTokenSecret: "other"})
	token, _, err := issuer.IssueToken(models.Principal{UserID: "u1", Role: models.RoleClient}, time.Hour)
	require.NoError(t, err)

	svc := NewAuthService(zap.NewNop(), AuthConfig{AccessTokenSecret: "secret"})
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := NewAuthService(zap.NewNop(), AuthConfig{AccessTokenSecret: "secret"})
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := svc.IssueToken(models.Principal{UserID: "u1", Role: models.RoleClient}, time.Hour)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestValidateTokenRejectsAudienceAndRole(t *testing.T) {
	issuer := NewAuthService(zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", Audience: []string{"billing"}})
	token, _, err := issuer.IssueToken(models.Principal{UserID: "u1", Role: models.RoleClient}, time.Hour)
	require.NoError(t, err)

	svc := NewAuthService(zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", Audience: []string{"lensbook"}})
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	token, _, err = svc.IssueToken(models.Principal{UserID: "u1", Role: "GUEST"}, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
