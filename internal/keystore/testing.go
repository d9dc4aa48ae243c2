// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package keystore

import (
	"context"
	"crypto/rand"
	"testing"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	"github.com/hashicorp/secretstorage/internal/kv"
	"github.com/stretchr/testify/require"
)

// TestRootWrapper returns an aead wrapper with a random key, suitable as the
// root of a KMS keystore.
func TestRootWrapper(t testing.TB) wrapping.Wrapper {
	t.Helper()
	require := require.New(t)
	rootKey := make([]byte, 32)
	n, err := rand.Read(rootKey)
	require.NoError(err)
	require.Equal(n, 32)
	root, err := NewRootWrapper(context.Background(), rootKey, "root")
	require.NoError(err)
	return root
}

// TestKeystore returns a KMS keystore over an in-memory store.
func TestKeystore(t testing.TB, opt ...Option) *Keystore {
	t.Helper()
	ks, err := NewKmsKeystore(context.Background(), TestRootWrapper(t), kv.NewMemoryStore(), opt...)
	require.NoError(t, err)
	return ks
}
