package utils

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("s3cret", 42, "DRIVER", 15)
	require.NoError(t, err)

	uid, role, err := ParseAccessToken("s3cret", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), uid)
	assert.Equal(t, "DRIVER", role)
}

func TestParseAccessTokenRejects(t *testing.T) {
	good, err := NewAccessToken("s3cret", 42, "DRIVER", 15)
	require.NoError(t, err)
	expired, err := NewAccessToken("s3cret", 42, "DRIVER", -5)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "42", "role": "ADMIN"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"wrong secret": good.Token,
		"expired":      expired.Token,
		"alg none":     unsigned,
		"garbage":      "not.a.jwt",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			secret := "s3cret"
			if name == "wrong secret" {
				secret = "other"
			}
			_, _, err := ParseAccessToken(secret, raw)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestRefreshTokenAndHash(t *testing.T) {
	a, err := NewRefreshToken(7)
	require.NoError(t, err)
	b, err := NewRefreshToken(7)
	require.NoError(t, err)

	assert.Len(t, a.Raw, 96)
	assert.NotEqual(t, a.Raw, b.Raw)
	assert.Equal(t, HashRefreshRaw(a.Raw), HashRefreshRaw(a.Raw))
	assert.Len(t, HashRefreshRaw(a.Raw), 64)
}

func TestPasswordHash(t *testing.T) {
	h, err := HashPassword("hunter22", 4)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(h, "hunter22"))
	assert.False(t, VerifyPassword(h, "hunter23"))
}
