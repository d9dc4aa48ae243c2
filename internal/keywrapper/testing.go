// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package keywrapper

import (
	"context"
	"testing"

	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/kdf"
	"github.com/hashicorp/secretstorage/internal/kv"
	"github.com/hashicorp/secretstorage/internal/protection"
	"github.com/stretchr/testify/require"
)

// TestPasswordConfig is DefaultPasswordConfig with a low round count.
func TestPasswordConfig() PasswordConfig {
	return PasswordConfig{
		Derivation: kdf.DefaultParams(64),
		KeyWrap:    protection.AesGcmCipher(),
	}
}

// TestPasswordWrapper returns a PasswordWrapper over the given stores using
// TestPasswordConfig.
func TestPasswordWrapper(t testing.TB, config, keys kv.Store, opt ...Option) *PasswordWrapper {
	t.Helper()
	w, err := NewPasswordWrapper(context.Background(), crypto.TestRegistry(t), TestPasswordConfig(), config, keys, opt...)
	require.NoError(t, err)
	return w
}

// TestUnlockedPasswordWrapper returns a PasswordWrapper over fresh memory
// stores with password set and id unlocked.
func TestUnlockedPasswordWrapper(t testing.TB, id, password string) *PasswordWrapper {
	t.Helper()
	w := TestPasswordWrapper(t, kv.TestMemoryStore(t), kv.TestMemoryStore(t))
	require.NoError(t, w.SetPassword(context.Background(), id, password))
	return w
}
