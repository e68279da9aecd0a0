package cache

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/golang/snappy"
	"golang.org/x/crypto/chacha20poly1305"
)

// ValueTransform encodes values on their way into the local store and
// decodes them on the way out. Fingerprints are always computed over the
// logical (untransformed) value, so transforms never affect consistency
// checks.
type ValueTransform interface {
	Encode(value []byte) ([]byte, error)
	Decode(value []byte) ([]byte, error)
}

// SnappyTransform compresses values with snappy block encoding.
type SnappyTransform struct{}

// Encode compresses the value.
func (SnappyTransform) Encode(value []byte) ([]byte, error) {
	return snappy.Encode(nil, value), nil
}

// Decode decompresses the value.
func (SnappyTransform) Decode(value []byte) ([]byte, error) {
	out, err := snappy.Decode(nil, value)
	if err != nil {
		return nil, fmt.Errorf("cache: snappy decode: %w", err)
	}
	return out, nil
}

// EncryptionTransform seals values with ChaCha20-Poly1305. The nonce is
// prepended to the ciphertext.
type EncryptionTransform struct {
	aead cipher.AEAD
}

// NewEncryptionTransform creates a transform from a 32-byte key.
func NewEncryptionTransform(key []byte) (*EncryptionTransform, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("cache: encryption key: %w", err)
	}
	return &EncryptionTransform{aead: aead}, nil
}

// Encode seals the value under a fresh random nonce.
func (t *EncryptionTransform) Encode(value []byte) ([]byte, error) {
	nonce := make([]byte, t.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cache: nonce: %w", err)
	}
	return t.aead.Seal(nonce, nonce, value, nil), nil
}

// Decode opens a sealed value.
func (t *EncryptionTransform) Decode(value []byte) ([]byte, error) {
	if len(value) < t.aead.NonceSize() {
		return nil, fmt.Errorf("cache: ciphertext shorter than nonce")
	}
	nonce, sealed := value[:t.aead.NonceSize()], value[t.aead.NonceSize():]
	out, err := t.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("cache: decrypt: %w", err)
	}
	return out, nil
}

// ChainTransform applies transforms in order on Encode and in reverse on
// Decode (e.g. compress then encrypt).
type ChainTransform []ValueTransform

// Encode runs every transform front to back.
func (c ChainTransform) Encode(value []byte) ([]byte, error) {
	var err error
	for _, t := range c {
		if value, err = t.Encode(value); err != nil {
			return nil, err
		}
	}
	return value, nil
}

// Decode runs every transform back to front.
func (c ChainTransform) Decode(value []byte) ([]byte, error) {
	var err error
	for i := len(c) - 1; i >= 0; i-- {
		if value, err = c[i].Decode(value); err != nil {
			return nil, err
		}
	}
	return value, nil
}
