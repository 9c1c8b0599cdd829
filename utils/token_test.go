package authUtils

import (
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken("s3cret", "65f0c1d2e3a4b5c6d7e8f901", time.Hour)
	require.NoError(t, err)

	userID, err := ParseToken("s3cret", token)
	require.NoError(t, err)
	assert.Equal(t, "65f0c1d2e3a4b5c6d7e8f901", userID)
}

func TestGenerateToken_RequiresSecret(t *testing.T) {
	_, err := GenerateToken("", "user", time.Hour)
	assert.Error(t, err)
}

func TestParseToken_Rejects(t *testing.T) {
	valid, err := GenerateToken("s3cret", "user", time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken("s3cret", "user", -time.Minute)
	require.NoError(t, err)
	noClaim, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "other", valid},
		{"expired", "s3cret", expired},
		{"garbage", "s3cret", "not.a.token"},
		{"missing user_id", "s3cret", noClaim},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.secret, tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
