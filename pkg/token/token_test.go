package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 測試 GenerateJWT / ParseJWT
func TestGenerateAndParseJWT(t *testing.T) {
	tok, err := GenerateJWT("user-1", "member", "test")
	require.NoError(t, err)

	claims, err := ParseJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.MemberID)
	assert.Equal(t, "member", claims.Role)
}

// 測試 ParseJWT 拒絕錯誤 secret
func TestParseJWT_WrongSecret(t *testing.T) {
	tok, err := GenerateJWT("user-1", "member", "test")
	require.NoError(t, err)

	SetSecret("another_secret")
	defer SetSecret("secure_secret_key")

	_, err = ParseJWT(tok)
	assert.Error(t, err)
}

// 測試 ParseJWT 拒絕空 user_id
func TestParseJWT_MissingUserID(t *testing.T) {
	tok, err := GenerateJWT("", "member", "test")
	require.NoError(t, err)

	_, err = ParseJWT(tok)
	assert.Error(t, err)
}
