package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaker_GenerateAndParse(t *testing.T) {
	maker := NewMaker("test-secret", time.Hour)

	tokenStr, err := maker.GenerateToken("uid-1", "user1")
	require.NoError(t, err)
	require.NotEmpty(t, tokenStr)

	claims, err := maker.ParseToken(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", claims.UserUID)
	assert.Equal(t, "user1", claims.Username)
	assert.Equal(t, issuer, claims.Issuer)
}

func TestMaker_ParseToken_Invalid(t *testing.T) {
	maker := NewMaker("test-secret", time.Hour)

	t.Run("expired token", func(t *testing.T) {
		expired := NewMaker("test-secret", -time.Minute)
		tokenStr, err := expired.GenerateToken("uid-1", "user1")
		require.NoError(t, err)

		_, err = maker.ParseToken(tokenStr)
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		foreign := NewMaker("other-secret", time.Hour)
		tokenStr, err := foreign.GenerateToken("uid-1", "user1")
		require.NoError(t, err)

		_, err = maker.ParseToken(tokenStr)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := maker.ParseToken("not-a-jwt")
		assert.Error(t, err)
	})
}

func TestHash(t *testing.T) {
	first := Hash("token-a")
	second := Hash("token-a")
	other := Hash("token-b")

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
	assert.Len(t, first, 64)
	assert.NotContains(t, first, "token-a")
}
