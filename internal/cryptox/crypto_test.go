package cryptox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastParams = HashParams{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32}

func TestHashPassword_VerifyRoundTrip(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	encoded := HashPassword([]byte("Password1!"), salt, fastParams)
	require.Contains(t, encoded, "$argon2id$v=19$m=1024,t=1,p=1$")

	ok, err := VerifyPassword([]byte("Password1!"), salt, encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword([]byte("password1!"), salt, encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPassword_Deterministic(t *testing.T) {
	a := HashPassword([]byte("secret-password"), "fixed-salt", fastParams)
	b := HashPassword([]byte("secret-password"), "fixed-salt", fastParams)
	require.Equal(t, a, b)

	c := HashPassword([]byte("secret-password"), "other-salt", fastParams)
	require.NotEqual(t, a, c)
}

func TestVerifyPassword_Malformed(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plain",
		"$bcrypt$v=19$m=1,t=1,p=1$AAAA",
		"$argon2id$v=1$m=1,t=1,p=1$AAAA",
		"$argon2id$v=19$m=x$AAAA",
		"$argon2id$v=19$m=1024,t=1,p=1$!!!",
	} {
		_, err := VerifyPassword([]byte("x"), "salt", encoded)
		assert.ErrorIs(t, err, ErrMalformedHash, encoded)
	}
}

func TestNewSalt_Unique(t *testing.T) {
	a, err := NewSalt()
	require.NoError(t, err)
	b, err := NewSalt()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestSealOpen(t *testing.T) {
	type blob struct {
		UserID string `json:"userId"`
		Count  int    `json:"count"`
	}
	key := DeriveKey("secret", "cache")
	require.Len(t, key, 32)

	sealed, err := Seal(blob{UserID: "u1", Count: 3}, key)
	require.NoError(t, err)

	var got blob
	require.NoError(t, Open(sealed, key, &got))
	require.Equal(t, blob{UserID: "u1", Count: 3}, got)

	// wrong key
	require.Error(t, Open(sealed, DeriveKey("other", "cache"), &got))

	// tampered payload
	sealed[len(sealed)-1] ^= 0xff
	require.Error(t, Open(sealed, key, &got))

	// truncated
	require.Error(t, Open([]byte{1, 2}, key, &got))
}

func TestDeriveKey_LabelSeparates(t *testing.T) {
	require.NotEqual(t, DeriveKey("s", "cache"), DeriveKey("s", "token"))
	require.Equal(t, DeriveKey("s", "cache"), DeriveKey("s", "cache"))
}
