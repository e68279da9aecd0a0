package cache

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSnappyTransform(t *testing.T) {
	tf := SnappyTransform{}
	plain := bytes.Repeat([]byte("meshcache "), 200)

	encoded, err := tf.Encode(plain)
	require.NoError(t, err)
	assert.Less(t, len(encoded), len(plain), "repetitive data compresses")

	decoded, err := tf.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, plain, decoded)

	_, err = tf.Decode([]byte("not snappy data"))
	assert.Error(t, err)
}

func TestEncryptionTransform(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	tf, err := NewEncryptionTransform(key)
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		plain := []byte("secret value")
		sealed, err := tf.Encode(plain)
		require.NoError(t, err)
		assert.NotEqual(t, plain, sealed)

		opened, err := tf.Decode(sealed)
		require.NoError(t, err)
		assert.Equal(t, plain, opened)
	})

	t.Run("rejects tampered ciphertext", func(t *testing.T) {
		sealed, err := tf.Encode([]byte("secret"))
		require.NoError(t, err)
		sealed[len(sealed)-1] ^= 0xff

		_, err = tf.Decode(sealed)
		assert.Error(t, err)
	})

	t.Run("rejects short key", func(t *testing.T) {
		_, err := NewEncryptionTransform([]byte("short"))
		assert.Error(t, err)
	})
}

func TestChainTransform(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	enc, err := NewEncryptionTransform(key)
	require.NoError(t, err)

	chain := ChainTransform{SnappyTransform{}, enc}
	plain := bytes.Repeat([]byte("data"), 100)

	encoded, err := chain.Encode(plain)
	require.NoError(t, err)
	decoded, err := chain.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, plain, decoded)
}

func TestCacheWithTransform(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	c, err := New(testConfig(), client, nil, zap.NewNop(),
		WithTransform(SnappyTransform{}))
	require.NoError(t, err)

	plain := bytes.Repeat([]byte("payload "), 100)
	require.NoError(t, c.Set(ctx, "k", plain, 0))

	// Stored form is transformed, returned form is not.
	c.mu.Lock()
	stored := c.entries["k"].Value
	c.mu.Unlock()
	assert.NotEqual(t, plain, stored)

	value, found := c.Get(ctx, "k")
	require.True(t, found)
	assert.Equal(t, plain, value)
}
