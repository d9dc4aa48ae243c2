// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package secretstorage stores secrets at rest.  Each entry is encrypted and
// authenticated with a pair of data keys (one for encryption, one for
// integrity) which are themselves protected by a key wrapper: a password, a
// password bound to a device keystore, a fixed obfuscation password, or keys
// that never leave a keystore.
//
// Entries live in the data store under "<storeId>::<id>".  Key wrappers keep
// their wrapped data keys and configuration in their own stores.
//
// A SecretStorage assumes a single owner per store id: callers serialize
// mutating operations (Store, Rewrap, password changes) on the same id.
package secretstorage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-secure-stdlib/mlock"
	"github.com/hashicorp/go-secure-stdlib/strutil"
	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/errors"
	"github.com/hashicorp/secretstorage/internal/keywrapper"
	"github.com/hashicorp/secretstorage/internal/kv"
	"github.com/hashicorp/secretstorage/internal/metric"
	"github.com/hashicorp/secretstorage/internal/protection"
)

// WrapperFactory constructs and initializes the key wrapper a Rewrap moves
// the data keys to, for example by creating a password wrapper and setting
// its password.
type WrapperFactory func(ctx context.Context) (keywrapper.Wrapper, error)

// SecretStorage encrypts, authenticates and persists secrets for one store
// id.
type SecretStorage struct {
	storeId  string
	data     kv.Store
	strategy *protection.Strategy
	logger   hclog.Logger

	mu      sync.RWMutex
	wrapper keywrapper.Wrapper

	closers []func(context.Context) error
}

// New validates cfg and creates a SecretStorage.
func New(ctx context.Context, cfg Config) (*SecretStorage, error) {
	const op = "secretstorage.New"
	if err := cfg.Validate(ctx); err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("secretstorage").With("store_id", cfg.StoreId)
	if cfg.LockMemory {
		if !mlock.Supported() {
			logger.Warn("mlock is not supported on this platform")
		} else if err := mlock.LockMemory(); err != nil {
			return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidConfiguration), errors.WithMsg("failed to lock memory"))
		}
	}
	provider := cfg.Provider
	if provider == nil {
		provider = crypto.NewRegistry(crypto.WithLogger(logger))
	}
	data := cfg.DataStorage
	if data == nil {
		logger.Debug("no data storage configured, entries are kept in memory")
		data = kv.NewMemoryStore()
	}
	strategy, err := protection.NewStrategy(ctx, provider, cfg.DataProtection, protection.WithLogger(logger))
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	metric.InitializeCollectors(cfg.Registerer)
	return &SecretStorage{
		storeId:  cfg.StoreId,
		data:     data,
		strategy: strategy,
		logger:   logger,
		wrapper:  cfg.KeyWrapper,
	}, nil
}

// Close releases the storage backends opened by Open or FromConfig.
func (s *SecretStorage) Close(ctx context.Context) error {
	const op = "secretstorage.(SecretStorage).Close"
	var merr *multierror.Error
	for _, c := range s.closers {
		if err := c(ctx); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	s.closers = nil
	if err := merr.ErrorOrNil(); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	return nil
}

// StoreId returns the identity of this storage.
func (s *SecretStorage) StoreId() string {
	return s.storeId
}

// KeyWrapper returns the active key wrapper.
func (s *SecretStorage) KeyWrapper() keywrapper.Wrapper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wrapper
}

// Editor returns the active key wrapper's editor for this store id.  Callers
// type assert to *keywrapper.PasswordEditor, *keywrapper.NoParamsEditor or
// *keywrapper.KeystoreEditor.
func (s *SecretStorage) Editor(ctx context.Context) (keywrapper.Editor, error) {
	const op = "secretstorage.(SecretStorage).Editor"
	e, err := s.KeyWrapper().Editor(ctx, s.storeId)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return e, nil
}

// Store encrypts and signs plaintext and persists it under id.  The data
// keys are generated on the first store.
func (s *SecretStorage) Store(ctx context.Context, id string, plaintext []byte) (retErr error) {
	const op = "secretstorage.(SecretStorage).Store"
	defer func(start time.Time) { metric.ObserveOperation(metric.OpStore, start, retErr) }(time.Now())
	if id == "" {
		return errors.New(ctx, errors.InvalidParameter, op, "missing id")
	}
	encKey, signKey, err := s.dataKeys(ctx)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	defer crypto.DestroyAll(encKey, signKey)
	blob, err := s.strategy.EncryptAndSign(ctx, encKey, signKey, plaintext)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if err := s.data.Store(ctx, kv.Field(s.storeId, id), blob); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	return nil
}

// Load verifies and decrypts the entry stored under id.
func (s *SecretStorage) Load(ctx context.Context, id string) (_ []byte, retErr error) {
	const op = "secretstorage.(SecretStorage).Load"
	defer func(start time.Time) { metric.ObserveOperation(metric.OpLoad, start, retErr) }(time.Now())
	if id == "" {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing id")
	}
	blob, err := s.data.Load(ctx, kv.Field(s.storeId, id))
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	encKey, signKey, err := s.dataKeys(ctx)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	defer crypto.DestroyAll(encKey, signKey)
	pt, err := s.strategy.VerifyAndDecrypt(ctx, encKey, signKey, blob)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return pt, nil
}

// Exists reports whether an entry is stored under id.
func (s *SecretStorage) Exists(ctx context.Context, id string) (bool, error) {
	const op = "secretstorage.(SecretStorage).Exists"
	ok, err := s.data.Exists(ctx, kv.Field(s.storeId, id))
	if err != nil {
		return false, errors.Wrap(ctx, err, op)
	}
	return ok, nil
}

// Delete removes the entry stored under id.
func (s *SecretStorage) Delete(ctx context.Context, id string) (retErr error) {
	const op = "secretstorage.(SecretStorage).Delete"
	defer func(start time.Time) { metric.ObserveOperation(metric.OpDelete, start, retErr) }(time.Now())
	if err := s.data.Delete(ctx, kv.Field(s.storeId, id)); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	return nil
}

// Entries returns the sorted ids of every entry of this store id.  Entries
// of other store ids sharing the data store are skipped.
func (s *SecretStorage) Entries(ctx context.Context) ([]string, error) {
	const op = "secretstorage.(SecretStorage).Entries"
	fields, err := s.data.Entries(ctx)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	prefix := s.storeId + kv.Delimiter
	ids := make([]string, 0, len(fields))
	for _, f := range fields {
		if id, ok := strings.CutPrefix(f, prefix); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return strutil.RemoveDuplicates(ids, false), nil
}

// CopyTo decrypts every entry and stores it in other, which encrypts it with
// its own data keys.  Entries already copied stay in other when a later
// entry fails.
func (s *SecretStorage) CopyTo(ctx context.Context, other *SecretStorage) (retErr error) {
	const op = "secretstorage.(SecretStorage).CopyTo"
	defer func(start time.Time) { metric.ObserveOperation(metric.OpCopyTo, start, retErr) }(time.Now())
	switch {
	case other == nil:
		return errors.New(ctx, errors.InvalidParameter, op, "missing destination storage")
	case other == s:
		return errors.New(ctx, errors.InvalidParameter, op, "cannot copy a storage to itself")
	}
	ids, err := s.Entries(ctx)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	for _, id := range ids {
		pt, err := s.Load(ctx, id)
		if err != nil {
			return errors.Wrap(ctx, err, op, errors.WithMsg("loading %q", id))
		}
		err = other.Store(ctx, id, pt)
		memguard.WipeBytes(pt)
		if err != nil {
			return errors.Wrap(ctx, err, op, errors.WithMsg("storing %q", id))
		}
	}
	s.logger.Debug("copied entries", "count", len(ids), "destination", other.storeId)
	return nil
}

// Rewrap moves the data keys from the active key wrapper to the one built by
// factory and adopts it.  Entries are not touched.  When no data keys exist
// yet the new wrapper is adopted directly.  On any failure the previous
// wrapper stays active and keeps working.
func (s *SecretStorage) Rewrap(ctx context.Context, factory WrapperFactory) (retErr error) {
	const op = "secretstorage.(SecretStorage).Rewrap"
	defer func(start time.Time) { metric.ObserveOperation(metric.OpRewrap, start, retErr) }(time.Now())
	if factory == nil {
		return errors.New(ctx, errors.InvalidParameter, op, "missing wrapper factory")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.wrapper

	exists, err := old.DataKeysExist(ctx, s.storeId)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if !exists {
		w, err := newWrapper(ctx, op, factory)
		if err != nil {
			return err
		}
		s.wrapper = w
		s.logger.Debug("adopted key wrapper", "rewrapped", false)
		return nil
	}

	spec := s.strategy.Spec()
	encKey, err := old.LoadDataEncryptionKey(ctx, s.storeId, spec.EncryptionKey.Algorithm)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	defer encKey.Destroy()
	signKey, err := old.LoadDataSigningKey(ctx, s.storeId, spec.SigningKey.Algorithm)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	defer signKey.Destroy()

	w, err := newWrapper(ctx, op, factory)
	if err != nil {
		return err
	}
	changes, err := w.StageDataKeys(ctx, s.storeId, encKey, signKey)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if err := kv.Apply(ctx, changes, kv.WithLogger(s.logger)); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	s.wrapper = w
	s.logger.Debug("adopted key wrapper", "rewrapped", true)
	return nil
}

func newWrapper(ctx context.Context, op errors.Op, factory WrapperFactory) (keywrapper.Wrapper, error) {
	w, err := factory(ctx)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithMsg("creating key wrapper"))
	}
	if w == nil {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "wrapper factory returned no wrapper")
	}
	return w, nil
}

// dataKeys loads the data keys, generating and storing both on first use.
// The caller destroys them.
func (s *SecretStorage) dataKeys(ctx context.Context) (encKey, signKey *crypto.Key, _ error) {
	const op = "secretstorage.(SecretStorage).dataKeys"
	w := s.KeyWrapper()
	spec := s.strategy.Spec()
	exists, err := w.DataKeysExist(ctx, s.storeId)
	if err != nil {
		return nil, nil, errors.Wrap(ctx, err, op)
	}
	if exists {
		if encKey, err = w.LoadDataEncryptionKey(ctx, s.storeId, spec.EncryptionKey.Algorithm); err != nil {
			return nil, nil, errors.Wrap(ctx, err, op)
		}
		if signKey, err = w.LoadDataSigningKey(ctx, s.storeId, spec.SigningKey.Algorithm); err != nil {
			encKey.Destroy()
			return nil, nil, errors.Wrap(ctx, err, op)
		}
		return encKey, signKey, nil
	}

	if encKey, err = s.strategy.GenerateEncryptionKey(ctx); err != nil {
		return nil, nil, errors.Wrap(ctx, err, op)
	}
	if signKey, err = s.strategy.GenerateSigningKey(ctx); err != nil {
		encKey.Destroy()
		return nil, nil, errors.Wrap(ctx, err, op)
	}
	changes, err := w.StageDataKeys(ctx, s.storeId, encKey, signKey)
	if err == nil {
		err = kv.Apply(ctx, changes, kv.WithLogger(s.logger))
	}
	if err != nil {
		crypto.DestroyAll(encKey, signKey)
		return nil, nil, errors.Wrap(ctx, err, op)
	}
	metric.DataKeysGenerated()
	s.logger.Debug("generated data keys")
	return encKey, signKey, nil
}
