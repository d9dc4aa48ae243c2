// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package crypto

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"

	josecipher "github.com/go-jose/go-jose/v4/cipher"
	"github.com/hashicorp/secretstorage/internal/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

type aesGcm struct {
	rand io.Reader
}

func (*aesGcm) Transformation() string { return AesGcmNoPadding }
func (*aesGcm) Authenticated() bool    { return true }
func (*aesGcm) Asymmetric() bool       { return false }

func (c *aesGcm) aead(ctx context.Context, op errors.Op, key *Key) (cipher.AEAD, error) {
	if key.Destroyed() {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing key")
	}
	block, err := aes.NewCipher(key.Material)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidParameter))
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Internal))
	}
	return aead, nil
}

func (c *aesGcm) Encrypt(ctx context.Context, key *Key, plaintext []byte) ([]byte, []byte, error) {
	const op = "crypto.(aesGcm).Encrypt"
	aead, err := c.aead(ctx, op, key)
	if err != nil {
		return nil, nil, err
	}
	nonce, err := randomBytes(c.rand, aead.NonceSize())
	if err != nil {
		return nil, nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Encrypt))
	}
	return nonce, aead.Seal(nil, nonce, plaintext, nil), nil
}

func (c *aesGcm) Decrypt(ctx context.Context, key *Key, params, ciphertext []byte) ([]byte, error) {
	const op = "crypto.(aesGcm).Decrypt"
	aead, err := c.aead(ctx, op, key)
	if err != nil {
		return nil, err
	}
	if len(params) != aead.NonceSize() {
		return nil, errors.New(ctx, errors.Format, op, fmt.Sprintf("nonce is %d bytes, expected %d", len(params), aead.NonceSize()))
	}
	pt, err := aead.Open(nil, params, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Decrypt))
	}
	return pt, nil
}

type xchacha struct {
	rand io.Reader
}

func (*xchacha) Transformation() string { return XChaCha20Poly1305 }
func (*xchacha) Authenticated() bool    { return true }
func (*xchacha) Asymmetric() bool       { return false }

func (c *xchacha) aead(ctx context.Context, op errors.Op, key *Key) (cipher.AEAD, error) {
	if key.Destroyed() {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing key")
	}
	aead, err := chacha20poly1305.NewX(key.Material)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidParameter))
	}
	return aead, nil
}

func (c *xchacha) Encrypt(ctx context.Context, key *Key, plaintext []byte) ([]byte, []byte, error) {
	const op = "crypto.(xchacha).Encrypt"
	aead, err := c.aead(ctx, op, key)
	if err != nil {
		return nil, nil, err
	}
	nonce, err := randomBytes(c.rand, aead.NonceSize())
	if err != nil {
		return nil, nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Encrypt))
	}
	return nonce, aead.Seal(nil, nonce, plaintext, nil), nil
}

func (c *xchacha) Decrypt(ctx context.Context, key *Key, params, ciphertext []byte) ([]byte, error) {
	const op = "crypto.(xchacha).Decrypt"
	aead, err := c.aead(ctx, op, key)
	if err != nil {
		return nil, err
	}
	if len(params) != aead.NonceSize() {
		return nil, errors.New(ctx, errors.Format, op, fmt.Sprintf("nonce is %d bytes, expected %d", len(params), aead.NonceSize()))
	}
	pt, err := aead.Open(nil, params, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Decrypt))
	}
	return pt, nil
}

// aesCbc provides confidentiality only; it must be paired with a MAC or
// signature.
type aesCbc struct {
	rand io.Reader
}

func (*aesCbc) Transformation() string { return AesCbcPkcs5Padding }
func (*aesCbc) Authenticated() bool    { return false }
func (*aesCbc) Asymmetric() bool       { return false }

func (c *aesCbc) block(ctx context.Context, op errors.Op, key *Key) (cipher.Block, error) {
	if key.Destroyed() {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing key")
	}
	b, err := aes.NewCipher(key.Material)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidParameter))
	}
	return b, nil
}

func (c *aesCbc) Encrypt(ctx context.Context, key *Key, plaintext []byte) ([]byte, []byte, error) {
	const op = "crypto.(aesCbc).Encrypt"
	block, err := c.block(ctx, op, key)
	if err != nil {
		return nil, nil, err
	}
	iv, err := randomBytes(c.rand, aes.BlockSize)
	if err != nil {
		return nil, nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Encrypt))
	}
	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := make([]byte, len(plaintext)+pad)
	copy(padded, plaintext)
	copy(padded[len(plaintext):], bytes.Repeat([]byte{byte(pad)}, pad))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(padded, padded)
	return iv, padded, nil
}

func (c *aesCbc) Decrypt(ctx context.Context, key *Key, params, ciphertext []byte) ([]byte, error) {
	const op = "crypto.(aesCbc).Decrypt"
	block, err := c.block(ctx, op, key)
	if err != nil {
		return nil, err
	}
	if len(params) != aes.BlockSize {
		return nil, errors.New(ctx, errors.Format, op, fmt.Sprintf("iv is %d bytes, expected %d", len(params), aes.BlockSize))
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New(ctx, errors.Decrypt, op, "ciphertext is not a whole number of blocks")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, params).CryptBlocks(out, ciphertext)
	pad := int(out[len(out)-1])
	if pad == 0 || pad > aes.BlockSize {
		return nil, errors.New(ctx, errors.Decrypt, op, "invalid padding")
	}
	if subtle.ConstantTimeCompare(out[len(out)-pad:], bytes.Repeat([]byte{byte(pad)}, pad)) != 1 {
		return nil, errors.New(ctx, errors.Decrypt, op, "invalid padding")
	}
	return out[:len(out)-pad], nil
}

// aesKeyWrap is the RFC 3394 AES key wrap algorithm.  It carries its own
// integrity check and takes no parameters.
type aesKeyWrap struct{}

func (*aesKeyWrap) Transformation() string { return AesWrap }
func (*aesKeyWrap) Authenticated() bool    { return true }
func (*aesKeyWrap) Asymmetric() bool       { return false }

func (c *aesKeyWrap) Encrypt(ctx context.Context, key *Key, plaintext []byte) ([]byte, []byte, error) {
	const op = "crypto.(aesKeyWrap).Encrypt"
	if key.Destroyed() {
		return nil, nil, errors.New(ctx, errors.InvalidParameter, op, "missing key")
	}
	if len(plaintext) < 16 || len(plaintext)%8 != 0 {
		return nil, nil, errors.New(ctx, errors.InvalidParameter, op, fmt.Sprintf("cannot wrap %d bytes, need a multiple of 8 of at least 16", len(plaintext)))
	}
	block, err := aes.NewCipher(key.Material)
	if err != nil {
		return nil, nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidParameter))
	}
	wrapped, err := josecipher.KeyWrap(block, plaintext)
	if err != nil {
		return nil, nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Encrypt))
	}
	return []byte{}, wrapped, nil
}

func (c *aesKeyWrap) Decrypt(ctx context.Context, key *Key, params, ciphertext []byte) ([]byte, error) {
	const op = "crypto.(aesKeyWrap).Decrypt"
	if key.Destroyed() {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing key")
	}
	if len(params) != 0 {
		return nil, errors.New(ctx, errors.Decrypt, op, "unexpected parameters")
	}
	if len(ciphertext) < 24 || len(ciphertext)%8 != 0 {
		return nil, errors.New(ctx, errors.Decrypt, op, "wrapped key has invalid length")
	}
	block, err := aes.NewCipher(key.Material)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidParameter))
	}
	pt, err := josecipher.KeyUnwrap(block, ciphertext)
	if err != nil {
		return nil, errors.New(ctx, errors.Decrypt, op, "integrity check failed")
	}
	return pt, nil
}

// rsaOaep encrypts with the public half of an RSA key and decrypts with the
// private half.
type rsaOaep struct {
	rand io.Reader
}

func (*rsaOaep) Transformation() string { return RsaOaepSha256 }
func (*rsaOaep) Authenticated() bool    { return true }
func (*rsaOaep) Asymmetric() bool       { return true }

func (c *rsaOaep) Encrypt(ctx context.Context, key *Key, plaintext []byte) ([]byte, []byte, error) {
	const op = "crypto.(rsaOaep).Encrypt"
	priv, err := parseRsa(ctx, key)
	if err != nil {
		return nil, nil, errors.Wrap(ctx, err, op)
	}
	ct, err := rsa.EncryptOAEP(sha256.New(), c.rand, &priv.PublicKey, plaintext, nil)
	if err != nil {
		return nil, nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Encrypt))
	}
	return []byte{}, ct, nil
}

func (c *rsaOaep) Decrypt(ctx context.Context, key *Key, params, ciphertext []byte) ([]byte, error) {
	const op = "crypto.(rsaOaep).Decrypt"
	priv, err := parseRsa(ctx, key)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	if len(params) != 0 {
		return nil, errors.New(ctx, errors.Format, op, "unexpected parameters")
	}
	pt, err := rsa.DecryptOAEP(sha256.New(), nil, priv, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Decrypt))
	}
	return pt, nil
}
