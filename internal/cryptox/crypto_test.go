package cryptox

import (
	"bytes"
	"encoding/hex"
	"errors"
	"regexp"
	"testing"

	"github.com/dmitrijs2005/gophsync/internal/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(common.GenerateRandByteArray(KeySize))
	require.NoError(t, err)
	return c
}

func TestDeriveKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveKey(password, salt)
	key2 := DeriveKey(password, salt)

	require.True(t, bytes.Equal(key1, key2))
	assert.Len(t, key1, KeySize)
	assert.Equal(t, "34f7a1c64df63ab1ad5b5ee06e64db5713b35f81839823304db63e8e5e6a6a39", hex.EncodeToString(key1))
}

func TestDeriveKey_DifferentSalts(t *testing.T) {
	key1 := DeriveKey([]byte("secret-password"), []byte("salt-1"))
	key2 := DeriveKey([]byte("secret-password"), []byte("salt-2"))
	assert.False(t, bytes.Equal(key1, key2))
}

func TestNewCodec_MissingKey(t *testing.T) {
	_, err := NewCodec(nil)
	assert.ErrorIs(t, err, ErrMissingKey)

	_, err = NewCodec([]byte{})
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestNewCodec_InvalidKeyLength(t *testing.T) {
	_, err := NewCodec([]byte("short"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMissingKey))
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c := newTestCodec(t)

	for _, in := range [][]byte{[]byte("hello, world"), {}, bytes.Repeat([]byte("x"), 4096)} {
		ct, err := c.Encrypt(in)
		require.NoError(t, err)
		assert.NotEqual(t, in, ct)

		pt, err := c.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, string(in), string(pt))
	}
}

func TestEncrypt_UsesFreshNonce(t *testing.T) {
	c := newTestCodec(t)

	a, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDecrypt_WrongKey(t *testing.T) {
	a := newTestCodec(t)
	b := newTestCodec(t)

	ct, err := a.Encrypt([]byte("private notes"))
	require.NoError(t, err)

	pt, err := b.Decrypt(ct)
	assert.ErrorIs(t, err, common.ErrDecryption)
	assert.Nil(t, pt)
}

func TestDecrypt_Malformed(t *testing.T) {
	c := newTestCodec(t)

	_, err := c.Decrypt([]byte("tiny"))
	assert.ErrorIs(t, err, common.ErrDecryption)

	ct, err := c.Encrypt([]byte("payload"))
	require.NoError(t, err)
	ct[len(ct)-1] ^= 0xff

	_, err = c.Decrypt(ct)
	assert.ErrorIs(t, err, common.ErrDecryption)
}

func TestHash_StableAndContentSensitive(t *testing.T) {
	c := newTestCodec(t)

	assert.Equal(t, c.Hash([]byte("abc")), Hash([]byte("abc")))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", Hash([]byte("abc")))
	assert.NotEqual(t, Hash([]byte("abc")), Hash([]byte("abd")))
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewID()
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestNewPairingSecret_SixDigits(t *testing.T) {
	re := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 50; i++ {
		code, err := NewPairingSecret()
		require.NoError(t, err)
		assert.Regexp(t, re, code)
	}
}
