// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package crypto

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/hashicorp/secretstorage/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinSplit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tests := []struct {
		name          string
		first, second []byte
	}{
		{name: "both", first: []byte("params"), second: []byte("ciphertext")},
		{name: "empty-first", first: []byte{}, second: []byte("ciphertext")},
		{name: "empty-second", first: []byte("params"), second: []byte{}},
		{name: "both-empty", first: []byte{}, second: []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			a, b, err := Split(ctx, Join(tt.first, tt.second))
			require.NoError(err)
			assert.Equal(tt.first, a)
			assert.Equal(tt.second, b)
		})
	}

	t.Run("malformed", func(t *testing.T) {
		for _, blob := range [][]byte{nil, {0, 0, 1}, {0, 0, 0, 9, 'a'}, {0xff, 0xff, 0xff, 0xff}} {
			_, _, err := Split(ctx, blob)
			require.Error(t, err)
			assert.True(t, errors.IsFormatError(err), "%x", blob)
		}
	})
}

func TestKey_Destroy(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	material := []byte{1, 2, 3, 4}
	k := NewKey(AesAlgorithm, material)
	material[0] = 9
	assert.Equal(byte(1), k.Material[0])

	c := k.Clone()
	assert.True(k.Equal(c))
	backing := k.Material
	k.Destroy()
	assert.True(k.Destroyed())
	assert.Equal([]byte{0, 0, 0, 0}, backing)
	assert.False(c.Destroyed())
	k.Destroy()

	var nilKey *Key
	nilKey.Destroy()
	assert.True(nilKey.Destroyed())
	DestroyAll(c, nil)
	assert.True(c.Destroyed())
}

func TestCiphers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := TestRegistry(t)
	tests := []struct {
		transformation string
		keyAlgorithm   string
		keySize        int
		authenticated  bool
		asymmetric     bool
		plaintext      []byte
	}{
		{AesGcmNoPadding, AesAlgorithm, 256, true, false, []byte("a secret payload")},
		{AesGcmNoPadding, AesAlgorithm, 128, true, false, []byte{}},
		{AesCbcPkcs5Padding, AesAlgorithm, 256, false, false, []byte("exactly sixteen!")},
		{XChaCha20Poly1305, XChaCha20Algorithm, 256, true, false, []byte("a secret payload")},
		{AesWrap, AesAlgorithm, 256, true, false, make([]byte, 32)},
		{RsaOaepSha256, RsaAlgorithm, 2048, true, true, []byte("a data key")},
	}
	for _, tt := range tests {
		t.Run(tt.transformation, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			c, err := r.Cipher(ctx, tt.transformation)
			require.NoError(err)
			assert.Equal(tt.authenticated, c.Authenticated())
			assert.Equal(tt.asymmetric, c.Asymmetric())

			key := TestKey(t, r, tt.keyAlgorithm, tt.keySize)
			params, ct, err := c.Encrypt(ctx, key, tt.plaintext)
			require.NoError(err)
			pt, err := c.Decrypt(ctx, key, params, ct)
			require.NoError(err)
			assert.Equal(len(tt.plaintext), len(pt))
			assert.Equal(string(tt.plaintext), string(pt))

			if !tt.authenticated {
				return
			}
			tampered := append([]byte{}, ct...)
			tampered[0] ^= 0x01
			_, err = c.Decrypt(ctx, key, params, tampered)
			require.Error(err)
			assert.True(errors.IsSecurityError(err))

			other := TestKey(t, r, tt.keyAlgorithm, tt.keySize)
			_, err = c.Decrypt(ctx, other, params, ct)
			require.Error(err)
			assert.True(errors.IsSecurityError(err))
		})
	}
}

func TestAesKeyWrap_Rfc3394Vector(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	kek, _ := hex.DecodeString("000102030405060708090A0B0C0D0E0F")
	data, _ := hex.DecodeString("00112233445566778899AABBCCDDEEFF")
	want, _ := hex.DecodeString("1FA68B0A8112B447AEF34BD8FB5A7B829D3E862371D2CFE5")

	c := &aesKeyWrap{}
	params, ct, err := c.Encrypt(ctx, NewKey(AesAlgorithm, kek), data)
	require.NoError(err)
	assert.Empty(params)
	assert.Equal(want, ct)

	pt, err := c.Decrypt(ctx, NewKey(AesAlgorithm, kek), nil, want)
	require.NoError(err)
	assert.Equal(data, pt)

	_, _, err = c.Encrypt(ctx, NewKey(AesAlgorithm, kek), []byte("short"))
	assert.True(errors.Match(errors.T(errors.InvalidParameter), err))

	for i := range want {
		tampered := append([]byte{}, want...)
		tampered[i] ^= 0x01
		pt, err := c.Decrypt(ctx, NewKey(AesAlgorithm, kek), nil, tampered)
		assert.Nil(pt)
		assert.True(errors.Match(errors.T(errors.Decrypt), err), "byte %d: %v", i, err)
	}
	_, err = c.Decrypt(ctx, NewKey(AesAlgorithm, kek), []byte{0x01}, want)
	assert.True(errors.IsSecurityError(err))
	_, err = c.Decrypt(ctx, NewKey(AesAlgorithm, kek), nil, want[:16])
	assert.True(errors.IsSecurityError(err))
}

func TestMacs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := TestRegistry(t)
	for _, alg := range []string{HmacSha256, HmacSha384} {
		t.Run(alg, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			m, err := r.Mac(ctx, alg)
			require.NoError(err)
			key := TestKey(t, r, alg, 256)
			tag, err := m.Sum(ctx, key, []byte("data"))
			require.NoError(err)
			require.NoError(m.Verify(ctx, key, []byte("data"), tag))

			err = m.Verify(ctx, key, []byte("Data"), tag)
			assert.True(errors.Match(errors.T(errors.VerificationFailed), err))
			err = m.Verify(ctx, TestKey(t, r, alg, 256), []byte("data"), tag)
			assert.True(errors.IsSecurityError(err))
		})
	}
}

func TestSignatures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := TestRegistry(t)
	tests := []struct {
		algorithm    string
		keyAlgorithm string
		keySize      int
	}{
		{Sha256WithRsa, RsaAlgorithm, 2048},
		{Sha384WithEcdsa, EcAlgorithm, 384},
		{Ed25519Signature, Ed25519Algorithm, 256},
	}
	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			s, err := r.Signature(ctx, tt.algorithm)
			require.NoError(err)
			key := TestKey(t, r, tt.keyAlgorithm, tt.keySize)
			sig, err := s.Sign(ctx, key, []byte("data"))
			require.NoError(err)
			require.NoError(s.Verify(ctx, key, []byte("data"), sig))

			err = s.Verify(ctx, key, []byte("Data"), sig)
			assert.True(errors.Match(errors.T(errors.VerificationFailed), err))

			_, err = s.Sign(ctx, NewKey(tt.keyAlgorithm, []byte("not a key")), []byte("data"))
			assert.True(errors.IsFormatError(err))
		})
	}
}

func TestKeyGenerators(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := TestRegistry(t)
	tests := []struct {
		algorithm string
		size      int
		wantLen   int
		wantErr   bool
	}{
		{algorithm: AesAlgorithm, size: 256, wantLen: 32},
		{algorithm: AesAlgorithm, size: 128, wantLen: 16},
		{algorithm: AesAlgorithm, size: 100, wantErr: true},
		{algorithm: AesAlgorithm, size: 512, wantErr: true},
		{algorithm: HmacSha256, size: 512, wantLen: 64},
		{algorithm: XChaCha20Algorithm, size: 128, wantErr: true},
		{algorithm: RsaAlgorithm, size: 1024, wantErr: true},
		{algorithm: EcAlgorithm, size: 224, wantErr: true},
		{algorithm: EcAlgorithm, size: 256},
	}
	for _, tt := range tests {
		g, err := r.KeyGenerator(ctx, tt.algorithm)
		require.NoError(t, err)
		k, err := g.Generate(ctx, tt.size)
		if tt.wantErr {
			assert.True(t, errors.Match(errors.T(errors.InvalidParameter), err), "%s/%d", tt.algorithm, tt.size)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.algorithm, k.Algorithm)
		if tt.wantLen > 0 {
			assert.Len(t, k.Material, tt.wantLen)
		}
	}
}

func TestRegistry_Unsupported(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := TestRegistry(t, WithoutDefaults())
	_, err := r.Cipher(ctx, AesGcmNoPadding)
	assert.True(t, errors.Match(errors.T(errors.InvalidParameter), err))
	_, err = r.Mac(ctx, HmacSha256)
	assert.Error(t, err)
	_, err = r.Signature(ctx, Sha256WithRsa)
	assert.Error(t, err)
	_, err = r.KeyGenerator(ctx, AesAlgorithm)
	assert.Error(t, err)

	r.RegisterMac(newHmac(HmacSha256))
	_, err = r.Mac(ctx, HmacSha256)
	assert.NoError(t, err)

	b, err := r.RandomBytes(ctx, 16)
	require.NoError(t, err)
	assert.Len(t, b, 16)
}
