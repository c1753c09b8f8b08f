package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken("secret", "admin", RoleAdmin, time.Hour)
	req.NoError(err)

	claims, err := ParseToken("secret", token)
	req.NoError(err)
	req.Equal(RoleAdmin, claims.Role)
	req.Equal("admin", claims.Subject)
}

func TestParseToken_Rejects(t *testing.T) {
	expired, err := GenerateToken("secret", "admin", RoleAdmin, -time.Minute)
	require.NoError(t, err)
	valid, err := GenerateToken("secret", "admin", RoleAdmin, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name    string
		secret  string
		token   string
		wantErr error
	}{
		{"expired", "secret", expired, jwt.ErrTokenExpired},
		{"wrong secret", "other", valid, jwt.ErrTokenSignatureInvalid},
		{"garbage", "secret", "not-a-token", jwt.ErrTokenMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.secret, tt.token)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
