// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package keywrap

import (
	"context"
	"testing"

	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapUnwrap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := crypto.TestRegistry(t)
	tests := []struct {
		name           string
		transformation string
		kekAlgorithm   string
		kekSize        int
		keyAlgorithm   string
		keySize        int
	}{
		{name: "gcm-aes", transformation: crypto.AesGcmNoPadding, kekAlgorithm: crypto.AesAlgorithm, kekSize: 256, keyAlgorithm: crypto.AesAlgorithm, keySize: 256},
		{name: "gcm-hmac", transformation: crypto.AesGcmNoPadding, kekAlgorithm: crypto.AesAlgorithm, kekSize: 128, keyAlgorithm: crypto.HmacSha256, keySize: 256},
		{name: "aeswrap", transformation: crypto.AesWrap, kekAlgorithm: crypto.AesAlgorithm, kekSize: 256, keyAlgorithm: crypto.AesAlgorithm, keySize: 128},
		{name: "xchacha-ec", transformation: crypto.XChaCha20Poly1305, kekAlgorithm: crypto.XChaCha20Algorithm, kekSize: 256, keyAlgorithm: crypto.EcAlgorithm, keySize: 384},
		{name: "rsa-oaep", transformation: crypto.RsaOaepSha256, kekAlgorithm: crypto.RsaAlgorithm, kekSize: 2048, keyAlgorithm: crypto.AesAlgorithm, keySize: 256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			kek := crypto.TestKey(t, p, tt.kekAlgorithm, tt.kekSize)
			key := crypto.TestKey(t, p, tt.keyAlgorithm, tt.keySize)

			blob, err := Wrap(ctx, p, kek, key, tt.transformation)
			require.NoError(err)
			got, err := Unwrap(ctx, p, kek, blob, tt.transformation, tt.keyAlgorithm)
			require.NoError(err)
			assert.True(key.Equal(got))

			for i := range blob {
				tampered := append([]byte{}, blob...)
				tampered[i] ^= 0x80
				_, err := Unwrap(ctx, p, kek, tampered, tt.transformation, tt.keyAlgorithm)
				require.Error(err, "byte %d", i)
				assert.True(errors.IsSecurityError(err) || errors.IsFormatError(err), "byte %d: %v", i, err)
			}

			wrongKek := crypto.TestKey(t, p, tt.kekAlgorithm, tt.kekSize)
			_, err = Unwrap(ctx, p, wrongKek, blob, tt.transformation, tt.keyAlgorithm)
			assert.True(errors.Match(errors.T(errors.KeyUnwrap), err))
		})
	}
}

func TestUnwrap_Malformed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := crypto.TestRegistry(t)
	kek := crypto.TestKey(t, p, crypto.AesAlgorithm, 256)

	_, err := Unwrap(ctx, p, kek, []byte{0, 0}, crypto.AesGcmNoPadding, crypto.AesAlgorithm)
	assert.True(t, errors.IsFormatError(err))

	_, err = Unwrap(ctx, p, kek, crypto.Join([]byte("short"), []byte("ct")), crypto.AesGcmNoPadding, crypto.AesAlgorithm)
	assert.True(t, errors.IsFormatError(err))
}

func TestWrap_RejectsUnauthenticatedCipher(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := crypto.TestRegistry(t)
	kek := crypto.TestKey(t, p, crypto.AesAlgorithm, 256)
	key := crypto.TestKey(t, p, crypto.AesAlgorithm, 256)

	_, err := Wrap(ctx, p, kek, key, crypto.AesCbcPkcs5Padding)
	assert.True(t, errors.Match(errors.T(errors.InvalidParameter), err))

	_, err = Wrap(ctx, p, nil, key, crypto.AesGcmNoPadding)
	assert.True(t, errors.Match(errors.T(errors.InvalidParameter), err))
}
