// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package config parses secret storage configuration files.
//
//	identity        = "app"
//	data_protection = "default"
//	disable_mlock   = true
//
//	storage "data" {
//	  type = "file"
//	  path = "/var/lib/app/data"
//	}
//
//	storage "keys" {
//	  type      = "sqlite"
//	  url       = "file:/var/lib/app/keys.db"
//	  namespace = "keys"
//	}
//
//	key_wrapper "signed_password" {
//	  rounds = 8192
//	}
//
//	keystore "keyring" {
//	  backend  = "file"
//	  file_dir = "/var/lib/app/keyring"
//	  file_password = "env://APP_KEYRING_PASSWORD"
//	}
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"github.com/hashicorp/hcl"
	"github.com/hashicorp/hcl/hcl/ast"
	"github.com/hashicorp/secretstorage/internal/errors"
	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/mapstructure"
)

// EnvPrefix prefixes the environment overrides, e.g. SECRETSTORAGE_IDENTITY.
const EnvPrefix = "SECRETSTORAGE"

// Data protection names.
const (
	DataProtectionDefault = "default"
	DataProtectionLegacy  = "legacy"
	DataProtectionSigned  = "signed"
)

// Storage purposes.
const (
	PurposeData     = "data"
	PurposeKeys     = "keys"
	PurposeConfig   = "config"
	PurposeKeystore = "keystore"
)

// Storage types.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageSqlite = "sqlite"
)

// Key wrapper kinds.
const (
	WrapperPassword       = "password"
	WrapperSignedPassword = "signed_password"
	WrapperObfuscation    = "obfuscation"
	WrapperKeystore       = "keystore"
)

// Keystore types.
const (
	KeystoreKms     = "kms"
	KeystoreKeyring = "keyring"
)

// Config is a parsed configuration file.
type Config struct {
	Identity       string `hcl:"identity"`
	DataProtection string `hcl:"data_protection"`

	DisableMlock    bool `hcl:"-"`
	DisableMlockRaw any  `hcl:"disable_mlock"`

	Storages   []*Storage  `hcl:"-"`
	KeyWrapper *KeyWrapper `hcl:"-"`
	Keystore   *Keystore   `hcl:"-"`
}

// Storage is a storage block.  The block label is its purpose.
type Storage struct {
	Purpose   string `mapstructure:"-"`
	Type      string `mapstructure:"type"`
	Path      string `mapstructure:"path"`
	Url       string `mapstructure:"url"`
	Namespace string `mapstructure:"namespace"`
}

// KeyWrapper is the key_wrapper block.  The block label is its kind.  Unset
// fields keep the kind's defaults.
type KeyWrapper struct {
	Kind             string `mapstructure:"-"`
	KdfAlgorithm     string `mapstructure:"kdf_algorithm"`
	Rounds           int    `mapstructure:"rounds"`
	KeyWrap          string `mapstructure:"key_wrap"`
	PresenceRequired bool   `mapstructure:"presence_required"`
}

// Keystore is the keystore block.  The block label is its type.
type Keystore struct {
	Type string `mapstructure:"-"`

	// keyring
	Backend      string `mapstructure:"backend"`
	ServiceName  string `mapstructure:"service_name"`
	FileDir      string `mapstructure:"file_dir"`
	FilePassword string `mapstructure:"file_password"`
	PassPrefix   string `mapstructure:"pass_prefix"`

	// kms; RootKey is base64 encoded
	RootKey   string `mapstructure:"root_key"`
	RootKeyId string `mapstructure:"root_key_id"`
}

// New returns an empty config.
func New() *Config {
	return &Config{}
}

// LoadFile loads the configuration from the given file.
func LoadFile(path string) (*Config, error) {
	d, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(d))
}

// Parse parses HCL configuration.  Values given as file:// or env:// URLs
// are resolved.
func Parse(d string) (*Config, error) {
	obj, err := hcl.Parse(d)
	if err != nil {
		return nil, err
	}

	result := New()
	if err := hcl.DecodeObject(result, obj); err != nil {
		return nil, err
	}

	list, ok := obj.Node.(*ast.ObjectList)
	if !ok {
		return nil, fmt.Errorf("error parsing: file doesn't contain a root object")
	}
	if o := list.Filter("storage"); len(o.Items) > 0 {
		for _, item := range o.Items {
			s := new(Storage)
			if err := decodeBlock(item, "storage", &s.Purpose, s); err != nil {
				return nil, err
			}
			result.Storages = append(result.Storages, s)
		}
	}
	if o := list.Filter("key_wrapper"); len(o.Items) > 0 {
		if len(o.Items) > 1 {
			return nil, fmt.Errorf("only one key_wrapper block is permitted")
		}
		kw := new(KeyWrapper)
		if err := decodeBlock(o.Items[0], "key_wrapper", &kw.Kind, kw); err != nil {
			return nil, err
		}
		result.KeyWrapper = kw
	}
	if o := list.Filter("keystore"); len(o.Items) > 0 {
		if len(o.Items) > 1 {
			return nil, fmt.Errorf("only one keystore block is permitted")
		}
		ks := new(Keystore)
		if err := decodeBlock(o.Items[0], "keystore", &ks.Type, ks); err != nil {
			return nil, err
		}
		for _, v := range []*string{&ks.FilePassword, &ks.RootKey} {
			if *v, err = resolve(*v); err != nil {
				return nil, err
			}
		}
		result.Keystore = ks
	}

	if result.DisableMlockRaw != nil {
		if result.DisableMlock, err = parseutil.ParseBool(result.DisableMlockRaw); err != nil {
			return nil, fmt.Errorf("error parsing disable_mlock: %w", err)
		}
		result.DisableMlockRaw = nil
	}
	if result.DataProtection == "" {
		result.DataProtection = DataProtectionDefault
	}
	return result, nil
}

// decodeBlock decodes a labelled block into out, storing the label in label.
func decodeBlock(item *ast.ObjectItem, name string, label *string, out any) error {
	if len(item.Keys) != 1 {
		return fmt.Errorf("%s block requires exactly one label", name)
	}
	l, ok := item.Keys[0].Token.Value().(string)
	if !ok || l == "" {
		return fmt.Errorf("%s block label must be a string", name)
	}
	var m map[string]any
	if err := hcl.DecodeObject(&m, item.Val); err != nil {
		return fmt.Errorf("error decoding %s %q: %w", name, l, err)
	}
	if err := mapstructure.WeakDecode(m, out); err != nil {
		return fmt.Errorf("error decoding %s %q: %w", name, l, err)
	}
	*label = strings.ToLower(l)
	return nil
}

// resolve reads file:// and env:// values, returning anything else as is.
func resolve(v string) (string, error) {
	if v == "" {
		return v, nil
	}
	parsed, err := parseutil.ParsePath(v)
	if err != nil {
		if errors.Is(err, parseutil.ErrNotAUrl) {
			return v, nil
		}
		return "", err
	}
	return strings.TrimSpace(parsed), nil
}

type envOverrides struct {
	Identity        string `envconfig:"IDENTITY"`
	DisableMlock    string `envconfig:"DISABLE_MLOCK"`
	KeyringBackend  string `envconfig:"KEYRING_BACKEND"`
	KeyringPassword string `envconfig:"KEYRING_PASSWORD"`
	KmsRootKey      string `envconfig:"KMS_ROOT_KEY"`
}

// ApplyEnv overrides values from SECRETSTORAGE_* environment variables.
// Keystore overrides only apply when a keystore block is present.
func (c *Config) ApplyEnv() error {
	var e envOverrides
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return err
	}
	if e.Identity != "" {
		c.Identity = e.Identity
	}
	if e.DisableMlock != "" {
		b, err := parseutil.ParseBool(e.DisableMlock)
		if err != nil {
			return fmt.Errorf("error parsing %s_DISABLE_MLOCK: %w", EnvPrefix, err)
		}
		c.DisableMlock = b
	}
	if c.Keystore != nil {
		if e.KeyringBackend != "" {
			c.Keystore.Backend = e.KeyringBackend
		}
		if e.KeyringPassword != "" {
			c.Keystore.FilePassword = e.KeyringPassword
		}
		if e.KmsRootKey != "" {
			c.Keystore.RootKey = e.KmsRootKey
		}
	}
	return nil
}

// Storage returns the storage block for purpose, or nil.
func (c *Config) Storage(purpose string) *Storage {
	for _, s := range c.Storages {
		if s.Purpose == purpose {
			return s
		}
	}
	return nil
}

// backend identifies where a storage block persists its fields, or "" for
// memory storage.
func (s *Storage) backend() string {
	switch s.Type {
	case StorageFile:
		if s.Path == "" {
			return ""
		}
		return "file:" + filepath.Clean(s.Path)
	case StorageSqlite:
		if s.Url == "" {
			return ""
		}
		ns := s.Namespace
		if ns == "" {
			ns = s.Purpose
		}
		return "sqlite:" + s.Url + "#" + ns
	}
	return ""
}

// Validate reports every problem with the config at once.
func (c *Config) Validate(ctx context.Context) error {
	const op = "config.(Config).Validate"
	var merr *multierror.Error
	if c.Identity == "" {
		merr = multierror.Append(merr, fmt.Errorf("missing identity"))
	}
	if !slices.Contains([]string{DataProtectionDefault, DataProtectionLegacy, DataProtectionSigned}, c.DataProtection) {
		merr = multierror.Append(merr, fmt.Errorf("unknown data_protection %q", c.DataProtection))
	}

	seen := map[string]bool{}
	for _, s := range c.Storages {
		if !slices.Contains([]string{PurposeData, PurposeKeys, PurposeConfig, PurposeKeystore}, s.Purpose) {
			merr = multierror.Append(merr, fmt.Errorf("unknown storage purpose %q", s.Purpose))
		}
		if seen[s.Purpose] {
			merr = multierror.Append(merr, fmt.Errorf("duplicate storage %q", s.Purpose))
		}
		seen[s.Purpose] = true
		switch s.Type {
		case StorageMemory:
		case StorageFile:
			if s.Path == "" {
				merr = multierror.Append(merr, fmt.Errorf("storage %q: file storage requires path", s.Purpose))
			}
		case StorageSqlite:
			if s.Url == "" {
				merr = multierror.Append(merr, fmt.Errorf("storage %q: sqlite storage requires url", s.Purpose))
			}
		default:
			merr = multierror.Append(merr, fmt.Errorf("storage %q: unknown type %q", s.Purpose, s.Type))
		}
	}

	if data, keys := c.Storage(PurposeData), c.Storage(PurposeKeys); data != nil && keys != nil && data.backend() != "" && data.backend() == keys.backend() {
		merr = multierror.Append(merr, fmt.Errorf("storage %q and %q must not share a backend", PurposeData, PurposeKeys))
	}

	needsKeystore := false
	switch {
	case c.KeyWrapper == nil:
		merr = multierror.Append(merr, fmt.Errorf("missing key_wrapper block"))
	default:
		switch c.KeyWrapper.Kind {
		case WrapperPassword, WrapperObfuscation:
		case WrapperSignedPassword, WrapperKeystore:
			needsKeystore = true
		default:
			merr = multierror.Append(merr, fmt.Errorf("unknown key_wrapper %q", c.KeyWrapper.Kind))
		}
		if c.KeyWrapper.Rounds < 0 {
			merr = multierror.Append(merr, fmt.Errorf("key_wrapper rounds must be positive"))
		}
	}

	switch {
	case c.Keystore == nil:
		if needsKeystore {
			merr = multierror.Append(merr, fmt.Errorf("key_wrapper %q requires a keystore block", c.KeyWrapper.Kind))
		}
	case c.Keystore.Type == KeystoreKms:
		if c.Keystore.RootKey == "" {
			merr = multierror.Append(merr, fmt.Errorf("kms keystore requires root_key"))
		}
		if c.Storage(PurposeKeystore) == nil {
			merr = multierror.Append(merr, fmt.Errorf("kms keystore requires a %q storage block", PurposeKeystore))
		}
	case c.Keystore.Type == KeystoreKeyring:
		if c.Keystore.Backend == "" {
			merr = multierror.Append(merr, fmt.Errorf("keyring keystore requires backend"))
		}
	default:
		merr = multierror.Append(merr, fmt.Errorf("unknown keystore %q", c.Keystore.Type))
	}

	if err := merr.ErrorOrNil(); err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidConfiguration))
	}
	return nil
}

// Sanitized returns a copy of the config with all values that are considered
// sensitive stripped.
//
// Specifically, the fields that this method strips are:
// - Keystore.FilePassword
// - Keystore.RootKey
func (c *Config) Sanitized() map[string]any {
	result := map[string]any{
		"identity":        c.Identity,
		"data_protection": c.DataProtection,
		"disable_mlock":   c.DisableMlock,
	}
	storages := make([]map[string]any, 0, len(c.Storages))
	for _, s := range c.Storages {
		storages = append(storages, map[string]any{
			"purpose":   s.Purpose,
			"type":      s.Type,
			"path":      s.Path,
			"url":       s.Url,
			"namespace": s.Namespace,
		})
	}
	result["storages"] = storages
	if c.KeyWrapper != nil {
		result["key_wrapper"] = map[string]any{
			"kind":              c.KeyWrapper.Kind,
			"kdf_algorithm":     c.KeyWrapper.KdfAlgorithm,
			"rounds":            c.KeyWrapper.Rounds,
			"key_wrap":          c.KeyWrapper.KeyWrap,
			"presence_required": c.KeyWrapper.PresenceRequired,
		}
	}
	if c.Keystore != nil {
		result["keystore"] = map[string]any{
			"type":         c.Keystore.Type,
			"backend":      c.Keystore.Backend,
			"service_name": c.Keystore.ServiceName,
			"file_dir":     c.Keystore.FileDir,
			"pass_prefix":  c.Keystore.PassPrefix,
			"root_key_id":  c.Keystore.RootKeyId,
		}
	}
	return result
}
