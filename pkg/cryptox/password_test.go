package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("superpass")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	require.NoError(t, VerifyPassword("superpass", hash))
	require.ErrorIs(t, VerifyPassword("wrong", hash), ErrPasswordMismatch)
}

func TestHashPassword_Salted(t *testing.T) {
	a, err := HashPassword("same")
	require.NoError(t, err)
	b, err := HashPassword("same")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestVerifyPassword_Malformed(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"wrong algorithm", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA"},
		{"wrong version", "$argon2id$v=18$m=1,t=1,p=1$c2FsdA$aGFzaA"},
		{"bad params", "$argon2id$v=19$nope$c2FsdA$aGFzaA"},
		{"bad salt", "$argon2id$v=19$m=1,t=1,p=1$!!!$aGFzaA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, VerifyPassword("pw", tt.hash))
		})
	}
}

func TestSetPepper(t *testing.T) {
	SetPepper("pepper-one")
	t.Cleanup(func() { SetPepper("") })

	hash, err := HashPassword("pw")
	require.NoError(t, err)
	require.NoError(t, VerifyPassword("pw", hash))

	SetPepper("pepper-two")
	require.ErrorIs(t, VerifyPassword("pw", hash), ErrPasswordMismatch)
}
