// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/secretstorage/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
identity        = "app"
data_protection = "signed"
disable_mlock   = "true"

storage "data" {
  type = "file"
  path = "/var/lib/app/data"
}

storage "keys" {
  type      = "sqlite"
  url       = "file:/var/lib/app/keys.db"
  namespace = "keys"
}

storage "keystore" {
  type = "memory"
}

key_wrapper "signed_password" {
  rounds            = "8192"
  kdf_algorithm     = "PBKDF2WithHmacSHA256"
  presence_required = true
}

keystore "kms" {
  root_key    = "env://SECRETSTORAGE_TEST_ROOT_KEY"
  root_key_id = "root"
}
`

func TestParse(t *testing.T) {
	t.Setenv("SECRETSTORAGE_TEST_ROOT_KEY", "cm9vdA==")
	assert, require := assert.New(t), require.New(t)

	c, err := Parse(fullConfig)
	require.NoError(err)
	want := &Config{
		Identity:       "app",
		DataProtection: DataProtectionSigned,
		DisableMlock:   true,
		Storages: []*Storage{
			{Purpose: PurposeData, Type: StorageFile, Path: "/var/lib/app/data"},
			{Purpose: PurposeKeys, Type: StorageSqlite, Url: "file:/var/lib/app/keys.db", Namespace: "keys"},
			{Purpose: PurposeKeystore, Type: StorageMemory},
		},
		KeyWrapper: &KeyWrapper{
			Kind:             WrapperSignedPassword,
			KdfAlgorithm:     "PBKDF2WithHmacSHA256",
			Rounds:           8192,
			PresenceRequired: true,
		},
		Keystore: &Keystore{
			Type:      KeystoreKms,
			RootKey:   "cm9vdA==",
			RootKeyId: "root",
		},
	}
	assert.Empty(cmp.Diff(want, c))
	require.NoError(c.Validate(context.Background()))

	sanitized := c.Sanitized()
	assert.NotContains(sanitized["keystore"], "root_key")
	assert.Equal("app", sanitized["identity"])
}

func TestParse_Defaults(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	c, err := Parse(`
identity = "app"
key_wrapper "obfuscation" {}
`)
	require.NoError(err)
	assert.Equal(DataProtectionDefault, c.DataProtection)
	assert.False(c.DisableMlock)
	assert.Nil(c.Keystore)
	assert.Nil(c.Storage(PurposeData))
	require.NoError(c.Validate(context.Background()))
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   string
	}{
		{name: "syntax", in: `identity = `},
		{name: "two-wrappers", in: "key_wrapper \"password\" {}\nkey_wrapper \"obfuscation\" {}"},
		{name: "bad-mlock", in: `disable_mlock = "perhaps"`},
		{name: "bad-rounds", in: `key_wrapper "password" { rounds = "many" }`},
		{name: "missing-file", in: `keystore "keyring" { file_password = "file:///nonexistent/secretstorage/password" }`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.in)
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, err := Parse(`
data_protection = "unknown"

storage "data" { type = "file" }
storage "data" { type = "sqlite" }
storage "elsewhere" { type = "tape" }

key_wrapper "keystore" { rounds = -1 }

keystore "kms" {}
`)
	require.NoError(t, err)
	err = c.Validate(ctx)
	require.Error(t, err)
	assert.True(t, errors.Match(errors.T(errors.InvalidConfiguration), err))
	for _, want := range []string{
		"missing identity",
		`unknown data_protection "unknown"`,
		`storage "data": file storage requires path`,
		`storage "data": sqlite storage requires url`,
		`duplicate storage "data"`,
		`unknown storage purpose "elsewhere"`,
		`unknown type "tape"`,
		"rounds must be positive",
		"kms keystore requires root_key",
		`kms keystore requires a "keystore" storage block`,
	} {
		assert.Contains(t, err.Error(), want)
	}

	c, err = Parse(`
identity = "app"
key_wrapper "signed_password" {}
`)
	require.NoError(t, err)
	err = c.Validate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `key_wrapper "signed_password" requires a keystore block`)

	for name, storages := range map[string]string{
		"same-path": `
storage "data" {
  type = "file"
  path = "/var/lib/app/store"
}
storage "keys" {
  type = "file"
  path = "/var/lib/app/store/"
}`,
		"same-namespace": `
storage "data" {
  type      = "sqlite"
  url       = "file:/var/lib/app/store.db"
  namespace = "shared"
}
storage "keys" {
  type      = "sqlite"
  url       = "file:/var/lib/app/store.db"
  namespace = "shared"
}`,
	} {
		c, err := Parse("identity = \"app\"\nkey_wrapper \"password\" {}\n" + storages)
		require.NoError(t, err, name)
		err = c.Validate(ctx)
		require.Error(t, err, name)
		assert.Contains(t, err.Error(), `storage "data" and "keys" must not share a backend`, name)
	}

	c, err = Parse(`
identity = "app"
key_wrapper "password" {}
storage "data" {
  type = "sqlite"
  url  = "file:/var/lib/app/store.db"
}
storage "keys" {
  type = "sqlite"
  url  = "file:/var/lib/app/store.db"
}
`)
	require.NoError(t, err)
	assert.NoError(t, c.Validate(ctx))
}

func TestLoadFile_ApplyEnv(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	dir := t.TempDir()
	require.NoError(os.WriteFile(filepath.Join(dir, "password"), []byte("hunter2\n"), 0o600))
	path := filepath.Join(dir, "secretstorage.hcl")
	require.NoError(os.WriteFile(path, []byte(`
identity = "app"
key_wrapper "keystore" {}
keystore "keyring" {
  backend       = "file"
  file_dir      = "`+dir+`"
  file_password = "file://`+filepath.Join(dir, "password")+`"
}
`), 0o600))

	c, err := LoadFile(path)
	require.NoError(err)
	assert.Equal("hunter2", c.Keystore.FilePassword)

	t.Setenv("SECRETSTORAGE_IDENTITY", "other")
	t.Setenv("SECRETSTORAGE_DISABLE_MLOCK", "1")
	t.Setenv("SECRETSTORAGE_KEYRING_BACKEND", "pass")
	require.NoError(c.ApplyEnv())
	assert.Equal("other", c.Identity)
	assert.True(c.DisableMlock)
	assert.Equal("pass", c.Keystore.Backend)
	assert.Equal("hunter2", c.Keystore.FilePassword)

	t.Setenv("SECRETSTORAGE_DISABLE_MLOCK", "sometimes")
	assert.Error(c.ApplyEnv())

	_, err = LoadFile(filepath.Join(dir, "missing.hcl"))
	assert.Error(err)
}
