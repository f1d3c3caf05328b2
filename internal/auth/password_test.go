package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func fastHasher() *Argon2Hasher {
	return &Argon2Hasher{Params: Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, SaltLen: 16, KeyLen: 32}}
}

func TestArgon2Hasher_RoundTrip(t *testing.T) {
	h := fastHasher()

	encoded, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$"), encoded)

	ok, err := h.Verify(encoded, "correct horse")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(encoded, "battery staple")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon2Hasher_SaltsDiffer(t *testing.T) {
	h := fastHasher()

	a, err := h.Hash("secret")
	require.NoError(t, err)
	b, err := h.Hash("secret")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestArgon2Hasher_VerifyUsesEncodedParams(t *testing.T) {
	encoded, err := fastHasher().Hash("secret")
	require.NoError(t, err)

	// a hasher with different defaults still verifies older hashes
	ok, err := NewArgon2Hasher().Verify(encoded, "secret")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestArgon2Hasher_DefaultParamsFormat(t *testing.T) {
	p := DefaultArgon2Params
	assert.Equal(t, uint32(3), p.Time)
	assert.Equal(t, uint32(65536), p.Memory)
	assert.Equal(t, uint8(4), p.Threads)
	assert.Equal(t, uint32(16), p.SaltLen)
	assert.Equal(t, uint32(32), p.KeyLen)
}

func TestArgon2Hasher_VerifyBcrypt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("legacy-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := fastHasher().Verify(string(hash), "legacy-pass")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = fastHasher().Verify(string(hash), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon2Hasher_VerifyMalformed(t *testing.T) {
	h := fastHasher()

	_, err := h.Verify("plaintext", "plaintext")
	assert.ErrorIs(t, err, ErrUnsupportedHash)

	_, err = h.Verify("$argon2id$v=19$m=8192,t=1,p=1$onlysalt", "x")
	assert.ErrorIs(t, err, ErrUnsupportedHash)

	_, err = h.Verify("$argon2id$v=16$m=8192,t=1,p=1$c2FsdA$a2V5", "x")
	assert.ErrorIs(t, err, ErrUnsupportedHash)

	_, err = h.Verify("$argon2id$v=19$m=8192,t=1,p=1$!!!$a2V5", "x")
	assert.Error(t, err)
}

func TestRandomToken(t *testing.T) {
	tok, err := RandomToken(48)
	require.NoError(t, err)
	assert.Len(t, tok, 64)
	assert.NotContains(t, tok, "=")
	assert.NotContains(t, tok, "+")
	assert.NotContains(t, tok, "/")
}
