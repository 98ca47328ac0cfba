package secret

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString(make([]byte, 32))
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := testKey()
	ciphertext, err := Encrypt("sk-test-12345", key)
	require.NoError(t, err)
	assert.NotEmpty(t, ciphertext)
	assert.NotContains(t, ciphertext, "sk-test-12345")

	plaintext, err := Decrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-12345", plaintext)
}

func TestEncrypt_MissingKey(t *testing.T) {
	_, err := Encrypt("secret", "")
	assert.Error(t, err)
}

func TestDecrypt_WrongKey(t *testing.T) {
	key := testKey()
	ciphertext, err := Encrypt("secret", key)
	require.NoError(t, err)

	otherRaw := make([]byte, 32)
	otherRaw[0] = 1
	otherKey := base64.StdEncoding.EncodeToString(otherRaw)
	_, err = Decrypt(ciphertext, otherKey)
	assert.Error(t, err)
}
