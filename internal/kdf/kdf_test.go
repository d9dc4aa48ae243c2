// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package kdf

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriver_Derive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := NewDeriver()

	t.Run("rfc6070-vector", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		params := Params{Algorithm: Pbkdf2HmacSha1, Iterations: 4096, KeyLength: 20, SaltLength: 8}
		k, err := d.Derive(ctx, []byte("password"), []byte("salt"), params)
		require.NoError(err)
		defer k.Destroy()
		assert.Equal("4b007901b765489abead49d926f721d065a429c1", hex.EncodeToString(k.Material))
	})

	tests := []struct {
		name   string
		params Params
	}{
		{name: "pbkdf2-sha1", params: DefaultParams(PasswordRounds)},
		{name: "pbkdf2-sha256", params: Params{Algorithm: Pbkdf2HmacSha256, Iterations: 1000, KeyLength: 32, SaltLength: 16}},
		{name: "argon2id", params: Params{Algorithm: Argon2id, Iterations: 1, KeyLength: 32, SaltLength: 16, Memory: 1024, Threads: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			p := crypto.TestRegistry(t)
			salt, err := d.Salt(ctx, p, tt.params)
			require.NoError(err)
			assert.Len(salt, tt.params.SaltLength)

			k1, err := d.Derive(ctx, []byte("password"), salt, tt.params)
			require.NoError(err)
			k2, err := d.Derive(ctx, []byte("password"), salt, tt.params)
			require.NoError(err)
			assert.Len(k1.Material, tt.params.KeyLength)
			assert.True(k1.Equal(k2))

			k3, err := d.Derive(ctx, []byte("password2"), salt, tt.params)
			require.NoError(err)
			assert.False(k1.Equal(k3))

			other, err := d.Salt(ctx, p, tt.params)
			require.NoError(err)
			k4, err := d.Derive(ctx, []byte("password"), other, tt.params)
			require.NoError(err)
			assert.False(k1.Equal(k4))
			crypto.DestroyAll(k1, k2, k3, k4)
		})
	}
}

func TestDeriver_Invalid(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := NewDeriver()
	valid := DefaultParams(PasswordRounds)
	tests := []struct {
		name     string
		password []byte
		salt     []byte
		params   Params
	}{
		{name: "no-password", salt: []byte("saltsalt"), params: valid},
		{name: "no-salt", password: []byte("pw"), params: valid},
		{name: "no-rounds", password: []byte("pw"), salt: []byte("saltsalt"), params: Params{Algorithm: Pbkdf2HmacSha1, KeyLength: 32, SaltLength: 32}},
		{name: "unknown-algorithm", password: []byte("pw"), salt: []byte("saltsalt"), params: Params{Algorithm: "scrypt", Iterations: 1, KeyLength: 32, SaltLength: 32}},
		{name: "argon-no-memory", password: []byte("pw"), salt: []byte("saltsalt"), params: Params{Algorithm: Argon2id, Iterations: 1, KeyLength: 32, SaltLength: 16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Derive(ctx, tt.password, tt.salt, tt.params)
			assert.True(t, errors.Match(errors.T(errors.InvalidParameter), err))
		})
	}
}

func TestDeriver_ContextCancelledWhileWaiting(t *testing.T) {
	t.Parallel()
	d := NewDeriver(WithMaxConcurrent(1))
	require.NoError(t, d.pool.Acquire(context.Background()))
	defer d.pool.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := d.Derive(ctx, []byte("pw"), []byte("saltsalt"), DefaultParams(1))
	require.Error(t, err)
}
