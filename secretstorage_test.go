// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package secretstorage

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/errors"
	"github.com/hashicorp/secretstorage/internal/keystore"
	"github.com/hashicorp/secretstorage/internal/keywrapper"
	"github.com/hashicorp/secretstorage/internal/kv"
	"github.com/hashicorp/secretstorage/internal/protection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testStoreId  = "id"
	testPassword = "password"
)

// failingStore fails every operation with an I/O error while armed.
type backingStore = kv.Store

type failingStore struct {
	backingStore
	armed bool
}

func (s *failingStore) fail(ctx context.Context) error {
	return errors.Wrap(ctx, stderrors.New("disk unavailable"), "secretstorage.failingStore", errors.WithCode(errors.Io))
}

func (s *failingStore) Store(ctx context.Context, field string, value []byte) error {
	if s.armed {
		return s.fail(ctx)
	}
	return s.backingStore.Store(ctx, field, value)
}

func (s *failingStore) Load(ctx context.Context, field string) ([]byte, error) {
	if s.armed {
		return nil, s.fail(ctx)
	}
	return s.backingStore.Load(ctx, field)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w := keywrapper.TestUnlockedPasswordWrapper(t, testStoreId, testPassword)

	cases := []struct {
		name    string
		cfg     Config
		wantErr []string
	}{
		{
			name:    "empty",
			cfg:     Config{},
			wantErr: []string{"missing store id", "missing key wrapper", "missing data protection spec"},
		},
		{
			name: "delimiter",
			cfg: Config{
				StoreId:        "a::b",
				KeyWrapper:     w,
				DataProtection: protection.DefaultDataProtectionSpec(),
			},
			wantErr: []string{`store id "a::b" contains "::"`},
		},
		{
			name: "hardware",
			cfg: Config{
				StoreId:    testStoreId,
				KeyWrapper: w,
				DataProtection: protection.Spec{
					Cipher:    protection.KeystoreCipher(),
					Integrity: protection.HmacSha256Integrity(),
				},
			},
			wantErr: []string{"data protection must use software cipher and integrity"},
		},
		{
			name: "incomplete-spec",
			cfg: Config{
				StoreId:        testStoreId,
				KeyWrapper:     w,
				DataProtection: protection.Spec{Cipher: protection.AesGcmCipher()},
			},
			wantErr: []string{"missing encryption key algorithm", "unknown integrity kind"},
		},
		{
			name: "valid",
			cfg: Config{
				StoreId:        testStoreId,
				KeyWrapper:     w,
				DataProtection: protection.LegacyDataProtectionSpec(),
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			err := tc.cfg.Validate(ctx)
			if len(tc.wantErr) == 0 {
				require.NoError(err)
				return
			}
			require.Error(err)
			assert.True(errors.Match(errors.T(errors.InvalidConfiguration), err))
			for _, want := range tc.wantErr {
				assert.Contains(err.Error(), want)
			}
			_, err = New(ctx, tc.cfg)
			assert.Error(err)
		})
	}
}

func TestSecretStorage_StoreLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	specs := map[string]protection.Spec{
		"default": protection.DefaultDataProtectionSpec(),
		"legacy":  protection.LegacyDataProtectionSpec(),
		"signed":  protection.SignedDataProtectionSpec(),
	}
	for name, spec := range specs {
		t.Run(name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			config, keys, data := kv.TestMemoryStore(t), kv.TestMemoryStore(t), kv.TestMemoryStore(t)
			open := func() *SecretStorage {
				w := keywrapper.TestPasswordWrapper(t, config, keys)
				s, err := New(ctx, Config{StoreId: testStoreId, DataProtection: spec, KeyWrapper: w, DataStorage: data})
				require.NoError(err)
				return s
			}

			s := open()
			editor, err := s.Editor(ctx)
			require.NoError(err)
			pe, ok := editor.(*keywrapper.PasswordEditor)
			require.True(ok)
			require.NoError(pe.SetPassword(ctx, testPassword))

			require.NoError(s.Store(ctx, "secret", []byte("value")))
			require.NoError(s.Store(ctx, "empty", nil))
			ok, err = s.KeyWrapper().DataKeysExist(ctx, testStoreId)
			require.NoError(err)
			assert.True(ok)

			// a fresh instance is locked until unlocked
			s = open()
			_, err = s.Load(ctx, "secret")
			assert.True(errors.Match(errors.T(errors.Locked), err))
			editor, err = s.Editor(ctx)
			require.NoError(err)
			pe = editor.(*keywrapper.PasswordEditor)
			err = pe.Unlock(ctx, "password2")
			assert.True(errors.Match(errors.T(errors.WrongPassword), err))
			require.NoError(pe.Unlock(ctx, testPassword))

			got, err := s.Load(ctx, "secret")
			require.NoError(err)
			assert.Equal([]byte("value"), got)
			got, err = s.Load(ctx, "empty")
			require.NoError(err)
			assert.Empty(got)

			ids, err := s.Entries(ctx)
			require.NoError(err)
			assert.Equal([]string{"empty", "secret"}, ids)

			ok, err = s.Exists(ctx, "secret")
			require.NoError(err)
			assert.True(ok)
			require.NoError(s.Delete(ctx, "secret"))
			ok, err = s.Exists(ctx, "secret")
			require.NoError(err)
			assert.False(ok)
			_, err = s.Load(ctx, "secret")
			assert.True(errors.IsNotFoundError(err))

			_, err = s.Load(ctx, "")
			assert.True(errors.Match(errors.T(errors.InvalidParameter), err))
		})
	}
}

func TestSecretStorage_Tamper(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	data := kv.TestMemoryStore(t)
	s := TestStorage(t, testStoreId, keywrapper.TestUnlockedPasswordWrapper(t, testStoreId, testPassword), data)

	require.NoError(s.Store(ctx, "secret", []byte("value")))
	field := kv.Field(testStoreId, "secret")
	blob, err := data.Load(ctx, field)
	require.NoError(err)

	for i := range blob {
		for bit := 0; bit < 8; bit++ {
			tampered := append([]byte(nil), blob...)
			tampered[i] ^= 1 << bit
			require.NoError(data.Store(ctx, field, tampered))
			pt, err := s.Load(ctx, "secret")
			require.Error(err, "byte %d bit %d", i, bit)
			assert.Nil(pt)
			assert.True(errors.IsSecurityError(err), "byte %d bit %d: %v", i, bit, err)

			pt, res := s.LoadValue(ctx, "secret")
			assert.Nil(pt)
			assert.Equal(SecurityError, res)
		}
	}
}

func TestSecretStorage_Results(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	data := &failingStore{backingStore: kv.TestMemoryStore(t)}
	s := TestStorage(t, testStoreId, keywrapper.TestUnlockedPasswordWrapper(t, testStoreId, testPassword), data)

	assert.Equal(Success, s.StoreValue(ctx, "secret", []byte("value")))
	pt, res := s.LoadValue(ctx, "secret")
	assert.Equal(Success, res)
	assert.Equal([]byte("value"), pt)

	data.armed = true
	assert.Equal(IoError, s.StoreValue(ctx, "secret", []byte("value")))
	_, res = s.LoadValue(ctx, "secret")
	assert.Equal(IoError, res)
	data.armed = false

	editor, err := s.Editor(ctx)
	require.NoError(err)
	require.NoError(editor.Lock(ctx))
	assert.Equal(SecurityError, s.StoreValue(ctx, "secret", []byte("value")))

	assert.Equal("success", Success.String())
	assert.Equal("io error", IoError.String())
	assert.Equal("security error", SecurityError.String())
	assert.Equal("unknown", Result(7).String())
}

func TestSecretStorage_Rewrap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := crypto.TestRegistry(t)

	t.Run("moves-keys", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		keys, data := kv.TestMemoryStore(t), kv.TestMemoryStore(t)
		password := keywrapper.TestPasswordWrapper(t, kv.TestMemoryStore(t), keys)
		require.NoError(password.SetPassword(ctx, testStoreId, testPassword))
		s := TestStorage(t, testStoreId, password, data)
		require.NoError(s.Store(ctx, "secret", []byte("value")))
		before, err := data.Load(ctx, kv.Field(testStoreId, "secret"))
		require.NoError(err)

		ks := keystore.TestKeystore(t)
		keystoreConfig := kv.TestMemoryStore(t)
		factory := func(ctx context.Context) (keywrapper.Wrapper, error) {
			return keywrapper.NewKeystoreWrapper(ctx, p, ks, keywrapper.KeystoreProtectionSpec(), keystoreConfig, keys)
		}
		require.NoError(s.Rewrap(ctx, factory))
		_, ok := s.KeyWrapper().(*keywrapper.KeystoreWrapper)
		assert.True(ok)

		after, err := data.Load(ctx, kv.Field(testStoreId, "secret"))
		require.NoError(err)
		assert.Equal(before, after, "entries are not rewritten")

		// a new instance over the keystore wrapper decrypts
		w, err := factory(ctx)
		require.NoError(err)
		got, err := TestStorage(t, testStoreId, w, data).Load(ctx, "secret")
		require.NoError(err)
		assert.Equal([]byte("value"), got)

		// the password no longer unlocks the data keys
		_, err = password.LoadDataEncryptionKey(ctx, testStoreId, crypto.AesAlgorithm)
		assert.Error(err)
	})

	t.Run("factory-failure", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		w := keywrapper.TestUnlockedPasswordWrapper(t, testStoreId, testPassword)
		s := TestStorage(t, testStoreId, w, nil)
		require.NoError(s.Store(ctx, "secret", []byte("value")))

		err := s.Rewrap(ctx, func(ctx context.Context) (keywrapper.Wrapper, error) {
			return nil, errors.New(ctx, errors.PresenceRequired, "test", "user cancelled")
		})
		require.Error(err)
		assert.True(errors.IsSecurityError(err))
		assert.Equal(SecurityError, s.RewrapValues(ctx, func(context.Context) (keywrapper.Wrapper, error) { return nil, nil }))
		assert.Same(w, s.KeyWrapper())

		got, err := s.Load(ctx, "secret")
		require.NoError(err)
		assert.Equal([]byte("value"), got)
	})

	t.Run("commit-failure", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		keys := &failingStore{backingStore: kv.TestMemoryStore(t)}
		w := keywrapper.TestPasswordWrapper(t, kv.TestMemoryStore(t), keys)
		require.NoError(w.SetPassword(ctx, testStoreId, testPassword))
		s := TestStorage(t, testStoreId, w, nil)
		require.NoError(s.Store(ctx, "secret", []byte("value")))

		newConfig := kv.TestMemoryStore(t)
		res := s.RewrapValues(ctx, func(ctx context.Context) (keywrapper.Wrapper, error) {
			nw, err := keywrapper.NewObfuscationWrapper(ctx, p, keywrapper.TestPasswordConfig(), newConfig, keys)
			if err != nil {
				return nil, err
			}
			keys.armed = true
			return nw, nil
		})
		assert.Equal(IoError, res)
		keys.armed = false
		assert.Same(w, s.KeyWrapper())

		got, err := s.Load(ctx, "secret")
		require.NoError(err)
		assert.Equal([]byte("value"), got)
	})

	t.Run("no-keys", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := TestStorage(t, testStoreId, keywrapper.TestUnlockedPasswordWrapper(t, testStoreId, testPassword), nil)
		var obf *keywrapper.ObfuscationWrapper
		require.NoError(s.Rewrap(ctx, func(ctx context.Context) (keywrapper.Wrapper, error) {
			var err error
			obf, err = keywrapper.NewObfuscationWrapper(ctx, p, keywrapper.TestPasswordConfig(), kv.TestMemoryStore(t), kv.TestMemoryStore(t))
			return obf, err
		}))
		assert.Same(obf, s.KeyWrapper())
		editor, err := s.Editor(ctx)
		require.NoError(err)
		_, ok := editor.(*keywrapper.NoParamsEditor)
		assert.True(ok)

		require.NoError(s.Store(ctx, "secret", []byte("value")))
		got, err := s.Load(ctx, "secret")
		require.NoError(err)
		assert.Equal([]byte("value"), got)

		assert.Error(s.Rewrap(ctx, nil))
	})
}

func TestSecretStorage_CopyTo(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	p := crypto.TestRegistry(t)

	// both storages share one data store
	data := kv.TestMemoryStore(t)
	src := TestStorage(t, "src", keywrapper.TestUnlockedPasswordWrapper(t, "src", testPassword), data)
	obf, err := keywrapper.NewObfuscationWrapper(ctx, p, keywrapper.TestPasswordConfig(), kv.TestMemoryStore(t), kv.TestMemoryStore(t))
	require.NoError(err)
	dst, err := New(ctx, Config{
		StoreId:        "dst",
		DataProtection: protection.SignedDataProtectionSpec(),
		KeyWrapper:     obf,
		DataStorage:    data,
	})
	require.NoError(err)

	values := map[string]string{"a": "1", "b": "2", "c": "3"}
	for k, v := range values {
		require.NoError(src.Store(ctx, k, []byte(v)))
	}
	require.NoError(src.CopyTo(ctx, dst))

	ids, err := dst.Entries(ctx)
	require.NoError(err)
	assert.Equal([]string{"a", "b", "c"}, ids)
	for k, v := range values {
		got, err := dst.Load(ctx, k)
		require.NoError(err)
		assert.Equal([]byte(v), got)

		a, err := data.Load(ctx, kv.Field("src", k))
		require.NoError(err)
		b, err := data.Load(ctx, kv.Field("dst", k))
		require.NoError(err)
		assert.NotEqual(a, b)
	}

	assert.Equal(SecurityError, src.CopyValuesTo(ctx, src))
	assert.Error(src.CopyTo(ctx, nil))

	editor, err := src.Editor(ctx)
	require.NoError(err)
	require.NoError(editor.Lock(ctx))
	assert.Equal(SecurityError, src.CopyValuesTo(ctx, dst))
}
