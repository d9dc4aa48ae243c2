// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package secretstorage

import (
	"context"
	"testing"

	"github.com/hashicorp/secretstorage/internal/keywrapper"
	"github.com/hashicorp/secretstorage/internal/kv"
	"github.com/hashicorp/secretstorage/internal/protection"
	"github.com/stretchr/testify/require"
)

// TestStorage returns a SecretStorage for storeId with the default data
// protection spec.  A nil data store gets a fresh memory store.
func TestStorage(t testing.TB, storeId string, w keywrapper.Wrapper, data kv.Store) *SecretStorage {
	t.Helper()
	if data == nil {
		data = kv.TestMemoryStore(t)
	}
	s, err := New(context.Background(), Config{
		StoreId:        storeId,
		DataProtection: protection.DefaultDataProtectionSpec(),
		KeyWrapper:     w,
		DataStorage:    data,
	})
	require.NoError(t, err)
	return s
}
