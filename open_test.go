// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package secretstorage

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/secretstorage/internal/config"
	"github.com/hashicorp/secretstorage/internal/errors"
	"github.com/hashicorp/secretstorage/internal/keywrapper"
	"github.com/hashicorp/secretstorage/internal/kv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_FileStorage(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	dir := t.TempDir()
	for _, d := range []string{"data", "keys", "config"} {
		require.NoError(os.MkdirAll(filepath.Join(dir, d), 0o700))
	}
	path := filepath.Join(dir, "secretstorage.hcl")
	require.NoError(os.WriteFile(path, []byte(fmt.Sprintf(`
identity        = "app"
data_protection = "legacy"
disable_mlock   = true

storage "data" {
  type = "file"
  path = "%[1]s/data"
}
storage "keys" {
  type = "file"
  path = "%[1]s/keys"
}
storage "config" {
  type = "file"
  path = "%[1]s/config"
}

key_wrapper "obfuscation" {
  rounds = 64
}
`, dir)), 0o600))

	s, err := Open(ctx, path)
	require.NoError(err)
	_, ok := s.KeyWrapper().(*keywrapper.ObfuscationWrapper)
	require.True(ok)
	assert.Equal("app", s.StoreId())
	require.NoError(s.Store(ctx, "secret", []byte("value")))
	require.NoError(s.Close(ctx))

	_, err = os.Stat(filepath.Join(dir, "data", url.QueryEscape("app::secret")))
	require.NoError(err)

	s, err = Open(ctx, path)
	require.NoError(err)
	got, err := s.Load(ctx, "secret")
	require.NoError(err)
	assert.Equal([]byte("value"), got)

	_, err = Open(ctx, filepath.Join(dir, "missing.hcl"))
	assert.True(errors.Match(errors.T(errors.InvalidConfiguration), err))
}

func TestFromConfig_KmsKeystore(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	rootKey := make([]byte, 32)
	_, err := rand.Read(rootKey)
	require.NoError(err)
	dbUrl := kv.TestSqliteUrl(t)

	c, err := config.Parse(fmt.Sprintf(`
identity        = "app"
data_protection = "signed"
disable_mlock   = true

storage "data" {
  type = "sqlite"
  url  = "%[1]s"
}
storage "keys" {
  type = "sqlite"
  url  = "%[1]s"
}
storage "keystore" {
  type = "sqlite"
  url  = "%[1]s"
}

key_wrapper "keystore" {}

keystore "kms" {
  root_key = "%[2]s"
}
`, dbUrl, base64.StdEncoding.EncodeToString(rootKey)))
	require.NoError(err)

	r := prometheus.NewRegistry()
	open := func() *SecretStorage {
		s, err := FromConfig(ctx, c, WithRegisterer(r))
		require.NoError(err)
		t.Cleanup(func() { _ = s.Close(ctx) })
		return s
	}
	s := open()
	_, ok := s.KeyWrapper().(*keywrapper.KeystoreWrapper)
	require.True(ok)
	require.NoError(s.Store(ctx, "secret", []byte("value")))

	got, err := open().Load(ctx, "secret")
	require.NoError(err)
	assert.Equal([]byte("value"), got)

	n, err := testutil.GatherAndCount(r, "secretstorage_storage_data_keys_generated_total")
	require.NoError(err)
	assert.Equal(1, n)
}

func TestFromConfig_KeystorePresence(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	rootKey := make([]byte, 32)
	_, err := rand.Read(rootKey)
	require.NoError(err)

	c, err := config.Parse(fmt.Sprintf(`
identity      = "app"
disable_mlock = true
storage "keystore" { type = "memory" }
key_wrapper "keystore" {
  presence_required = true
}
keystore "kms" {
  root_key = "%s"
}
`, base64.StdEncoding.EncodeToString(rootKey)))
	require.NoError(err)

	var gated []string
	s, err := FromConfig(ctx, c, WithPresence(func(_ context.Context, alias string) error {
		gated = append(gated, alias)
		return nil
	}))
	require.NoError(err)
	require.NoError(s.Store(ctx, "secret", []byte("value")))
	got, err := s.Load(ctx, "secret")
	require.NoError(err)
	assert.Equal([]byte("value"), got)
	assert.Contains(gated, kv.Field("app", keywrapper.KeystoreEncryptionKeyField))
	assert.Contains(gated, kv.Field("app", keywrapper.KeystoreSigningKeyField))
}

func TestFromConfig_Password(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()

	c, err := config.Parse(`
identity      = "app"
disable_mlock = true
key_wrapper "password" {
  rounds        = 64
  kdf_algorithm = "PBKDF2WithHmacSHA256"
}
`)
	require.NoError(err)
	s, err := FromConfig(ctx, c)
	require.NoError(err)
	editor, err := s.Editor(ctx)
	require.NoError(err)
	pe, ok := editor.(*keywrapper.PasswordEditor)
	require.True(ok)
	require.NoError(pe.SetPassword(ctx, testPassword))
	require.NoError(s.Store(ctx, "secret", []byte("value")))
	got, err := s.Load(ctx, "secret")
	require.NoError(err)
	assert.Equal([]byte("value"), got)
}

func TestFromConfig_Invalid(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, err := FromConfig(ctx, nil)
	assert.True(t, errors.Match(errors.T(errors.InvalidParameter), err))

	c, err := config.Parse(`key_wrapper "signed_password" {}`)
	require.NoError(t, err)
	_, err = FromConfig(ctx, c)
	assert.True(t, errors.Match(errors.T(errors.InvalidConfiguration), err))

	c, err = config.Parse(`
identity = "app"
disable_mlock = true
key_wrapper "keystore" {}
keystore "kms" { root_key = "c2hvcnQ=" }
storage "keystore" { type = "memory" }
`)
	require.NoError(t, err)
	_, err = FromConfig(ctx, c)
	assert.True(t, errors.Match(errors.T(errors.InvalidParameter), err))
}
