// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package secretstorage

import (
	"context"
	"encoding/base64"

	"github.com/hashicorp/secretstorage/internal/config"
	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/errors"
	"github.com/hashicorp/secretstorage/internal/kdf"
	"github.com/hashicorp/secretstorage/internal/keystore"
	"github.com/hashicorp/secretstorage/internal/keywrapper"
	"github.com/hashicorp/secretstorage/internal/kv"
	"github.com/hashicorp/secretstorage/internal/protection"
)

// Open loads the configuration file at path, applies SECRETSTORAGE_*
// environment overrides and builds the storage it describes.
func Open(ctx context.Context, path string, opt ...Option) (*SecretStorage, error) {
	const op = "secretstorage.Open"
	c, err := config.LoadFile(path)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidConfiguration), errors.WithMsg("loading config"))
	}
	if err := c.ApplyEnv(); err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidConfiguration), errors.WithMsg("applying environment"))
	}
	return FromConfig(ctx, c, opt...)
}

// FromConfig builds the storage described by c.  Supported options:
// WithLogger, WithRegisterer, WithProvider, WithPresence.
func FromConfig(ctx context.Context, c *config.Config, opt ...Option) (_ *SecretStorage, retErr error) {
	const op = "secretstorage.FromConfig"
	if c == nil {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing config")
	}
	if err := c.Validate(ctx); err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	opts := getOpts(opt...)
	logger := opts.withLogger
	provider := opts.withProvider
	if provider == nil {
		provider = crypto.NewRegistry(crypto.WithLogger(logger))
	}

	b := &builder{}
	defer func() {
		if retErr != nil {
			b.close(ctx)
		}
	}()
	stores := map[string]kv.Store{}
	for _, purpose := range []string{config.PurposeData, config.PurposeKeys, config.PurposeConfig, config.PurposeKeystore} {
		s, err := b.storage(ctx, c.Storage(purpose))
		if err != nil {
			return nil, errors.Wrap(ctx, err, op, errors.WithMsg("opening %s storage", purpose))
		}
		stores[purpose] = s
	}

	var ks keystore.Capability
	if c.Keystore != nil {
		var err error
		if ks, err = newKeystore(ctx, c.Keystore, stores[config.PurposeKeystore], opts); err != nil {
			return nil, errors.Wrap(ctx, err, op)
		}
	}
	w, err := newKeyWrapper(ctx, c.KeyWrapper, provider, ks, stores[config.PurposeConfig], stores[config.PurposeKeys], opts)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}

	s, err := New(ctx, Config{
		StoreId:        c.Identity,
		DataProtection: dataProtection(c.DataProtection),
		KeyWrapper:     w,
		DataStorage:    stores[config.PurposeData],
		Provider:       provider,
		Logger:         logger,
		Registerer:     opts.withRegisterer,
		LockMemory:     !c.DisableMlock,
	})
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	s.closers = b.closers
	return s, nil
}

type builder struct {
	closers []func(context.Context) error
}

func (b *builder) storage(ctx context.Context, s *config.Storage) (kv.Store, error) {
	const op = "secretstorage.(builder).storage"
	if s == nil {
		return kv.NewMemoryStore(), nil
	}
	switch s.Type {
	case config.StorageFile:
		fs, err := kv.NewFileStore(ctx, s.Path)
		if err != nil {
			return nil, errors.Wrap(ctx, err, op)
		}
		return fs, nil
	case config.StorageSqlite:
		ns := s.Namespace
		if ns == "" {
			ns = s.Purpose
		}
		ss, err := kv.OpenSqlite(ctx, kv.WithUrl(s.Url), kv.WithNamespace(ns))
		if err != nil {
			return nil, errors.Wrap(ctx, err, op)
		}
		b.closers = append(b.closers, ss.Close)
		return ss, nil
	default:
		return kv.NewMemoryStore(), nil
	}
}

func (b *builder) close(ctx context.Context) {
	for _, c := range b.closers {
		_ = c(ctx)
	}
}

func newKeystore(ctx context.Context, c *config.Keystore, store kv.Store, opts options) (keystore.Capability, error) {
	const op = "secretstorage.newKeystore"
	ksOpts := []keystore.Option{keystore.WithLogger(opts.withLogger)}
	if opts.withPresence != nil {
		ksOpts = append(ksOpts, keystore.WithPresence(opts.withPresence))
	}
	switch c.Type {
	case config.KeystoreKms:
		key, err := base64.StdEncoding.DecodeString(c.RootKey)
		if err != nil {
			return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidConfiguration), errors.WithMsg("decoding root_key"))
		}
		keyId := c.RootKeyId
		if keyId == "" {
			keyId = "root"
		}
		root, err := keystore.NewRootWrapper(ctx, key, keyId)
		if err != nil {
			return nil, errors.Wrap(ctx, err, op)
		}
		ks, err := keystore.NewKmsKeystore(ctx, root, store, ksOpts...)
		if err != nil {
			return nil, errors.Wrap(ctx, err, op)
		}
		return ks, nil
	default:
		if c.ServiceName != "" {
			ksOpts = append(ksOpts, keystore.WithServiceName(c.ServiceName))
		}
		if c.FileDir != "" {
			ksOpts = append(ksOpts, keystore.WithFileDir(c.FileDir))
		}
		if c.FilePassword != "" {
			ksOpts = append(ksOpts, keystore.WithFilePassword(c.FilePassword))
		}
		if c.PassPrefix != "" {
			ksOpts = append(ksOpts, keystore.WithPassPrefix(c.PassPrefix))
		}
		ks, err := keystore.NewKeyringKeystore(ctx, c.Backend, ksOpts...)
		if err != nil {
			return nil, errors.Wrap(ctx, err, op)
		}
		return ks, nil
	}
}

func newKeyWrapper(ctx context.Context, c *config.KeyWrapper, p crypto.Provider, ks keystore.Capability, cfgStore, keyStore kv.Store, opts options) (keywrapper.Wrapper, error) {
	const op = "secretstorage.newKeyWrapper"
	wOpts := []keywrapper.Option{
		keywrapper.WithLogger(opts.withLogger),
		keywrapper.WithDeriver(kdf.NewDeriver(kdf.WithLogger(opts.withLogger))),
		keywrapper.WithPresenceRequired(c.PresenceRequired),
	}
	var (
		w   keywrapper.Wrapper
		err error
	)
	switch c.Kind {
	case config.WrapperPassword:
		w, err = keywrapper.NewPasswordWrapper(ctx, p, passwordConfig(keywrapper.DefaultPasswordConfig(), c), cfgStore, keyStore, wOpts...)
	case config.WrapperSignedPassword:
		w, err = keywrapper.NewSignedPasswordWrapper(ctx, p, ks, passwordConfig(keywrapper.DefaultSignedPasswordConfig(), c), cfgStore, keyStore, wOpts...)
	case config.WrapperObfuscation:
		w, err = keywrapper.NewObfuscationWrapper(ctx, p, passwordConfig(keywrapper.DefaultPasswordConfig(), c), cfgStore, keyStore, wOpts...)
	default:
		spec := keywrapper.KeystoreProtectionSpec()
		if c.PresenceRequired {
			spec = keywrapper.PresenceKeystoreProtectionSpec()
		}
		w, err = keywrapper.NewKeystoreWrapper(ctx, p, ks, spec, cfgStore, keyStore, wOpts...)
	}
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return w, nil
}

func passwordConfig(base keywrapper.PasswordConfig, c *config.KeyWrapper) keywrapper.PasswordConfig {
	if c.KdfAlgorithm != "" {
		base.Derivation.Algorithm = c.KdfAlgorithm
		if c.KdfAlgorithm == kdf.Argon2id {
			a := kdf.Argon2idParams()
			a.KeyLength = base.Derivation.KeyLength
			base.Derivation = a
		}
	}
	if c.Rounds > 0 {
		base.Derivation.Iterations = c.Rounds
	}
	if c.KeyWrap != "" {
		base.KeyWrap = protection.CipherSpec{Kind: protection.Symmetric, Transformation: c.KeyWrap}
	}
	return base
}

func dataProtection(name string) protection.Spec {
	switch name {
	case config.DataProtectionLegacy:
		return protection.LegacyDataProtectionSpec()
	case config.DataProtectionSigned:
		return protection.SignedDataProtectionSpec()
	default:
		return protection.DefaultDataProtectionSpec()
	}
}
