// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package keywrapper

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/errors"
	"github.com/hashicorp/secretstorage/internal/keystore"
	"github.com/hashicorp/secretstorage/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore fails writes to fields with the given suffix while armed.
type backingStore = kv.Store

type failingStore struct {
	backingStore
	suffix string
	armed  bool
}

func (s *failingStore) Store(ctx context.Context, field string, value []byte) error {
	if s.armed && strings.HasSuffix(field, s.suffix) {
		return errors.Wrap(ctx, stderrors.New("disk full"), "keywrapper.failingStore", errors.WithCode(errors.Io))
	}
	return s.backingStore.Store(ctx, field, value)
}

func TestPasswordEditor(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	p := crypto.TestRegistry(t)
	config, keys := kv.TestMemoryStore(t), kv.TestMemoryStore(t)
	encKey := crypto.TestKey(t, p, crypto.AesAlgorithm, 256)
	signKey := crypto.TestKey(t, p, crypto.HmacSha256Algorithm, 256)

	w := TestPasswordWrapper(t, config, keys)
	e := w.PasswordEditor(testId)

	set, err := e.IsPasswordSet(ctx)
	require.NoError(err)
	assert.False(set)
	_, err = e.VerifyPassword(ctx, testPassword)
	assert.True(errors.Match(errors.T(errors.PasswordNotSet), err))
	assert.True(errors.IsNotConfiguredError(err))
	err = e.Unlock(ctx, testPassword)
	assert.True(errors.Match(errors.T(errors.PasswordNotSet), err))
	err = e.ChangePassword(ctx, testPassword, "new")
	assert.True(errors.Match(errors.T(errors.PasswordNotSet), err))
	err = w.StoreDataEncryptionKey(ctx, testId, encKey)
	assert.True(errors.Match(errors.T(errors.PasswordNotSet), err))

	require.Error(e.SetPassword(ctx, ""))
	require.NoError(e.SetPassword(ctx, testPassword))
	unlocked, err := e.IsUnlocked(ctx)
	require.NoError(err)
	assert.True(unlocked)
	err = e.SetPassword(ctx, "other")
	assert.True(errors.Match(errors.T(errors.PasswordAlreadySet), err))

	require.NoError(w.StoreDataEncryptionKey(ctx, testId, encKey))
	require.NoError(w.StoreDataSigningKey(ctx, testId, signKey))

	require.NoError(e.Lock(ctx))
	require.NoError(e.Lock(ctx))
	unlocked, err = e.IsUnlocked(ctx)
	require.NoError(err)
	assert.False(unlocked)
	_, err = w.LoadDataEncryptionKey(ctx, testId, crypto.AesAlgorithm)
	assert.True(errors.Match(errors.T(errors.Locked), err))

	ok, err := e.VerifyPassword(ctx, "wrong")
	require.NoError(err)
	assert.False(ok)
	ok, err = e.VerifyPassword(ctx, testPassword)
	require.NoError(err)
	assert.True(ok)
	unlocked, err = e.IsUnlocked(ctx)
	require.NoError(err)
	assert.False(unlocked, "verifying does not unlock")

	err = e.Unlock(ctx, "wrong")
	assert.True(errors.Match(errors.T(errors.WrongPassword), err))
	assert.True(errors.IsSecurityError(err))
	unlocked, err = e.IsUnlocked(ctx)
	require.NoError(err)
	assert.False(unlocked)

	require.NoError(e.Unlock(ctx, testPassword))
	err = e.ChangePassword(ctx, "wrong", "new")
	assert.True(errors.Match(errors.T(errors.WrongPassword), err))
	require.NoError(e.ChangePassword(ctx, testPassword, "new"))
	unlocked, err = e.IsUnlocked(ctx)
	require.NoError(err)
	assert.True(unlocked)

	// another instance sees only the new password
	w2 := TestPasswordWrapper(t, config, keys)
	err = w2.Unlock(ctx, testId, testPassword)
	assert.True(errors.Match(errors.T(errors.WrongPassword), err))
	require.NoError(w2.Unlock(ctx, testId, "new"))
	got, err := w2.LoadDataEncryptionKey(ctx, testId, crypto.AesAlgorithm)
	require.NoError(err)
	assert.True(encKey.Equal(got))
	got, err = w2.LoadDataSigningKey(ctx, testId, crypto.HmacSha256Algorithm)
	require.NoError(err)
	assert.True(signKey.Equal(got))

	// identities are independent
	other := w2.PasswordEditor("other")
	set, err = other.IsPasswordSet(ctx)
	require.NoError(err)
	assert.False(set)
}

func TestPasswordEditor_ChangePasswordRollback(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	p := crypto.TestRegistry(t)
	config := kv.TestMemoryStore(t)
	keys := &failingStore{backingStore: kv.TestMemoryStore(t), suffix: WrappedSigningKeyField}
	encKey := crypto.TestKey(t, p, crypto.AesAlgorithm, 256)
	signKey := crypto.TestKey(t, p, crypto.HmacSha256Algorithm, 256)

	w := TestPasswordWrapper(t, config, keys)
	require.NoError(w.SetPassword(ctx, testId, testPassword))
	require.NoError(w.StoreDataEncryptionKey(ctx, testId, encKey))
	require.NoError(w.StoreDataSigningKey(ctx, testId, signKey))

	keys.armed = true
	err := w.PasswordEditor(testId).ChangePassword(ctx, testPassword, "new")
	require.Error(err)
	assert.True(errors.IsIoError(err))
	keys.armed = false

	w2 := TestPasswordWrapper(t, config, keys)
	err = w2.Unlock(ctx, testId, "new")
	assert.True(errors.Match(errors.T(errors.WrongPassword), err))
	require.NoError(w2.Unlock(ctx, testId, testPassword))
	got, err := w2.LoadDataEncryptionKey(ctx, testId, crypto.AesAlgorithm)
	require.NoError(err)
	assert.True(encKey.Equal(got))
	got, err = w2.LoadDataSigningKey(ctx, testId, crypto.HmacSha256Algorithm)
	require.NoError(err)
	assert.True(signKey.Equal(got))
}

func TestPasswordWrapper_KeyProtectionPersists(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	p := crypto.TestRegistry(t)
	config, keys := kv.TestMemoryStore(t), kv.TestMemoryStore(t)
	encKey := crypto.TestKey(t, p, crypto.AesAlgorithm, 128)

	legacy := LegacyPasswordConfig()
	legacy.Derivation.Iterations = 64
	w, err := NewPasswordWrapper(ctx, p, legacy, config, keys)
	require.NoError(err)
	require.NoError(w.SetPassword(ctx, testId, testPassword))
	require.NoError(w.StoreDataEncryptionKey(ctx, testId, encKey))

	// a wrapper configured with newer defaults still reads the old keys
	w = TestPasswordWrapper(t, config, keys)
	require.NoError(w.Unlock(ctx, testId, testPassword))
	got, err := w.LoadDataEncryptionKey(ctx, testId, crypto.AesAlgorithm)
	require.NoError(err)
	assert.True(encKey.Equal(got))

	desc, err := config.Load(ctx, kv.Field(testId, KeyProtectionField))
	require.NoError(err)
	kp, err := unmarshalKeyProtection(ctx, desc)
	require.NoError(err)
	assert.Equal(crypto.AesWrap, kp.Transformation)
	assert.Equal(16, kp.Derivation.KeyLength)

	// changing the password upgrades to the configured protection
	require.NoError(w.PasswordEditor(testId).ChangePassword(ctx, testPassword, "new"))
	desc, err = config.Load(ctx, kv.Field(testId, KeyProtectionField))
	require.NoError(err)
	kp, err = unmarshalKeyProtection(ctx, desc)
	require.NoError(err)
	assert.Equal(TestPasswordConfig().KeyWrap.Transformation, kp.Transformation)
	assert.Equal(TestPasswordConfig().Derivation, kp.Derivation)
	got, err = w.LoadDataEncryptionKey(ctx, testId, crypto.AesAlgorithm)
	require.NoError(err)
	assert.True(encKey.Equal(got))

	require.NoError(config.Store(ctx, kv.Field(testId, KeyProtectionField), []byte("garbage")))
	err = w.Unlock(ctx, testId, "new")
	assert.True(errors.IsFormatError(err))
}

func TestSignedPasswordWrapper_DeviceBinding(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	p := crypto.TestRegistry(t)
	config, keys := kv.TestMemoryStore(t), kv.TestMemoryStore(t)
	ks := keystore.TestKeystore(t)
	encKey := crypto.TestKey(t, p, crypto.AesAlgorithm, 256)

	w, err := NewSignedPasswordWrapper(ctx, p, ks, TestPasswordConfig(), config, keys)
	require.NoError(err)
	require.NoError(w.SetPassword(ctx, testId, testPassword))
	require.NoError(w.StoreDataEncryptionKey(ctx, testId, encKey))

	ok, err := ks.HasKey(ctx, "id::DEVICE_BINDING")
	require.NoError(err)
	assert.True(ok)
	alias, err := config.Load(ctx, kv.Field(testId, DeviceBindingField))
	require.NoError(err)
	assert.Equal("id::DEVICE_BINDING", string(alias))

	// a plain password wrapper cannot read device bound state
	plain := TestPasswordWrapper(t, config, keys)
	err = plain.Unlock(ctx, testId, testPassword)
	assert.True(errors.Match(errors.T(errors.WrongPassword), err))

	// neither can another device
	elsewhere, err := NewSignedPasswordWrapper(ctx, p, keystore.TestKeystore(t), TestPasswordConfig(), config, keys)
	require.NoError(err)
	err = elsewhere.Unlock(ctx, testId, testPassword)
	require.Error(err)
	assert.True(errors.IsNotFoundError(err))

	require.NoError(w.PasswordEditor(testId).ChangePassword(ctx, testPassword, "new"))
	w, err = NewSignedPasswordWrapper(ctx, p, ks, TestPasswordConfig(), config, keys)
	require.NoError(err)
	require.NoError(w.Unlock(ctx, testId, "new"))
	got, err := w.LoadDataEncryptionKey(ctx, testId, crypto.AesAlgorithm)
	require.NoError(err)
	assert.True(encKey.Equal(got))

	require.NoError(w.EraseConfig(ctx, testId))
	ok, err = ks.HasKey(ctx, "id::DEVICE_BINDING")
	require.NoError(err)
	assert.False(ok)
	set, err := w.PasswordEditor(testId).IsPasswordSet(ctx)
	require.NoError(err)
	assert.False(set)
}

func TestObfuscationWrapper_Editor(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	p := crypto.TestRegistry(t)
	config, keys := kv.TestMemoryStore(t), kv.TestMemoryStore(t)

	w, err := NewObfuscationWrapper(ctx, p, TestPasswordConfig(), config, keys)
	require.NoError(err)
	editor, err := w.Editor(ctx, testId)
	require.NoError(err)
	e, ok := editor.(*NoParamsEditor)
	require.True(ok)

	unlocked, err := e.IsUnlocked(ctx)
	require.NoError(err)
	assert.False(unlocked)
	require.NoError(e.Unlock(ctx))
	unlocked, err = e.IsUnlocked(ctx)
	require.NoError(err)
	assert.True(unlocked)

	// the fixed password is an ordinary password
	ok, err = w.PasswordEditor(testId).VerifyPassword(ctx, DefaultObfuscationPassword)
	require.NoError(err)
	assert.True(ok)

	require.NoError(e.Lock(ctx))
	encKey := crypto.TestKey(t, p, crypto.AesAlgorithm, 256)
	require.NoError(w.StoreDataEncryptionKey(ctx, testId, encKey))
	unlocked, err = e.IsUnlocked(ctx)
	require.NoError(err)
	assert.True(unlocked, "key operations unlock")
}

func TestKeystoreWrapper_Presence(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	p := crypto.TestRegistry(t)
	config, keys := kv.TestMemoryStore(t), kv.TestMemoryStore(t)
	encKey := crypto.TestKey(t, p, crypto.AesAlgorithm, 256)

	present := true
	var gated []string
	ks := keystore.TestKeystore(t, keystore.WithPresence(func(_ context.Context, alias string) error {
		gated = append(gated, alias)
		if !present {
			return stderrors.New("user cancelled")
		}
		return nil
	}))
	w, err := NewKeystoreWrapper(ctx, p, ks, PresenceKeystoreProtectionSpec(), config, keys)
	require.NoError(err)

	editor, err := w.Editor(ctx, testId)
	require.NoError(err)
	unlocked, err := editor.IsUnlocked(ctx)
	require.NoError(err)
	assert.False(unlocked)

	require.NoError(w.StoreDataEncryptionKey(ctx, testId, encKey))
	unlocked, err = editor.IsUnlocked(ctx)
	require.NoError(err)
	assert.True(unlocked)

	present = false
	_, err = w.LoadDataEncryptionKey(ctx, testId, crypto.AesAlgorithm)
	assert.True(errors.Match(errors.T(errors.PresenceRequired), err))
	present = true
	got, err := w.LoadDataEncryptionKey(ctx, testId, crypto.AesAlgorithm)
	require.NoError(err)
	assert.True(encKey.Equal(got))

	// the signing key is gated as well
	present = false
	err = w.StoreDataSigningKey(ctx, testId, encKey)
	assert.True(errors.Match(errors.T(errors.PresenceRequired), err))
	assert.Contains(gated, kv.Field(testId, KeystoreSigningKeyField))
	assert.Contains(gated, kv.Field(testId, KeystoreEncryptionKeyField))
}
