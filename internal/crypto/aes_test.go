package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateMasterKey(t *testing.T) {
	t.Run("Generate master key successfully", func(t *testing.T) {
		key, err := GenerateMasterKey()
		require.NoError(t, err)
		assert.Len(t, key, 32, "Master key should be 32 bytes (256 bits)")
	})

	t.Run("Generate unique keys", func(t *testing.T) {
		key1, err := GenerateMasterKey()
		require.NoError(t, err)

		key2, err := GenerateMasterKey()
		require.NoError(t, err)

		assert.NotEqual(t, key1, key2, "Each generated key should be unique")
	})
}

func TestSealOpen(t *testing.T) {
	key, err := GenerateMasterKey()
	require.NoError(t, err)

	t.Run("Seal and open successfully", func(t *testing.T) {
		plaintext := []byte("pkcs12 container bytes")

		sealed, err := Seal(plaintext, key, "record-1")
		require.NoError(t, err)
		assert.Greater(t, len(sealed), len(plaintext))
		assert.False(t, bytes.Contains(sealed, plaintext))

		opened, err := Open(sealed, key, "record-1")
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	})

	t.Run("Seal produces different ciphertext each time", func(t *testing.T) {
		a, err := Seal([]byte("same"), key, "id")
		require.NoError(t, err)
		b, err := Seal([]byte("same"), key, "id")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("Open with wrong associated data fails", func(t *testing.T) {
		sealed, err := Seal([]byte("data"), key, "record-1")
		require.NoError(t, err)

		_, err = Open(sealed, key, "record-2")
		assert.Error(t, err)
	})

	t.Run("Open with wrong key fails", func(t *testing.T) {
		sealed, err := Seal([]byte("data"), key, "id")
		require.NoError(t, err)

		other, err := GenerateMasterKey()
		require.NoError(t, err)

		_, err = Open(sealed, other, "id")
		assert.Error(t, err)
	})

	t.Run("Open short input fails", func(t *testing.T) {
		_, err := Open([]byte("short"), key, "id")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "ciphertext too short")
	})

	t.Run("Tampered ciphertext fails", func(t *testing.T) {
		sealed, err := Seal([]byte("data"), key, "id")
		require.NoError(t, err)
		sealed[len(sealed)-1] ^= 0xFF

		_, err = Open(sealed, key, "id")
		assert.Error(t, err)
	})
}

func TestDeriveKey(t *testing.T) {
	master, err := GenerateMasterKey()
	require.NoError(t, err)

	t.Run("Derivation is deterministic", func(t *testing.T) {
		a, err := DeriveKey(master, "store")
		require.NoError(t, err)
		b, err := DeriveKey(master, "store")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a, KeySize)
	})

	t.Run("Purpose separates keys", func(t *testing.T) {
		a, err := DeriveKey(master, "store")
		require.NoError(t, err)
		b, err := DeriveKey(master, "other")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
		assert.NotEqual(t, master, a)
	})

	t.Run("Short master key is rejected", func(t *testing.T) {
		_, err := DeriveKey([]byte("short"), "store")
		assert.Error(t, err)
	})
}
