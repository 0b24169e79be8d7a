package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, now func() time.Time) *JWTService {
	t.Helper()
	svc, err := NewJWTService(JWTConfig{Secret: "s3cret", Issuer: "pickup", Clock: now})
	require.NoError(t, err)
	return svc
}

func TestJWTService_RoundTrip(t *testing.T) {
	svc := newService(t, nil)

	token, err := svc.GenerateAccessToken("u1", RoleAdmin)
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "pickup", claims.Issuer)
	assert.True(t, claims.IsAdmin())
}

func TestJWTService_Rejects(t *testing.T) {
	issuedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := newService(t, func() time.Time { return issuedAt })
	token, err := svc.GenerateAccessToken("u1", RoleUser)
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later := newService(t, func() time.Time { return issuedAt.Add(time.Hour) })
		_, err := later.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewJWTService(JWTConfig{Secret: "other", Clock: func() time.Time { return issuedAt }})
		require.NoError(t, err)
		_, err = other.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := NewJWTService(JWTConfig{Secret: "s3cret", Issuer: "elsewhere", Clock: func() time.Time { return issuedAt }})
		require.NoError(t, err)
		_, err = other.ValidateAccessToken(token)
		assert.EqualError(t, err, "jwt: invalid issuer")
	})

	t.Run("empty", func(t *testing.T) {
		_, err := svc.ValidateAccessToken("")
		assert.Error(t, err)
	})
}

func TestNewJWTService_RequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	assert.Error(t, err)
}

func TestUserIDContext(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	id, ok := UserIDFromContext(WithUserID(context.Background(), "u9"))
	assert.True(t, ok)
	assert.Equal(t, "u9", id)
}
