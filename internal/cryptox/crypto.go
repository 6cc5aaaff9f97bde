// Package cryptox is the content codec of the sync server: it seals file
// bodies with AES-256-GCM, hashes plaintext for conflict comparison and
// generates identifiers and pairing codes.
//
// The codec knows nothing about users or versions. Ciphertext is
// self-describing: the random nonce is stored in front of the sealed data,
// so Decrypt needs nothing but the key.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/dmitrijs2005/gophsync/internal/common"
	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
)

// KeySize is the AES-256 key length expected by NewCodec.
const KeySize = 32

// ErrMissingKey is returned by NewCodec when no key material is configured.
var ErrMissingKey = errors.New("encryption key is not configured")

// DeriveKey stretches a passphrase into a KeySize-byte key with argon2id.
func DeriveKey(passphrase []byte, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// Codec encrypts, decrypts and hashes file bodies with a single key.
// It is safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a codec around key. The key must be 16, 24 or 32 bytes.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) == 0 {
		return nil, ErrMissingKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm init: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext and returns nonce||ciphertext.
func (c *Codec) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	// the nonce slice doubles as the destination prefix
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens data produced by Encrypt. Any failure, including a
// truncated input or a different key, is reported as common.ErrDecryption.
func (c *Codec) Decrypt(data []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(data) < ns+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", common.ErrDecryption)
	}

	plaintext, err := c.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return nil, common.ErrDecryption
	}

	return plaintext, nil
}

// Hash returns the hex-encoded SHA-256 digest of plaintext. It identifies
// content for equality checks only.
func (c *Codec) Hash(plaintext []byte) string {
	return Hash(plaintext)
}

// Hash is the package-level form of Codec.Hash.
func Hash(plaintext []byte) string {
	sum := sha256.Sum256(plaintext)
	return hex.EncodeToString(sum[:])
}

// NewID returns a random, globally unique identifier.
func NewID() string {
	return uuid.NewString()
}

// NewPairingSecret returns a six-digit numeric code suitable for typing on
// a second device.
func NewPairingSecret() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
