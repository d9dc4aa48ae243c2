// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package keywrapper protects data keys at rest.  A Wrapper persists each
// identity's data encryption key and data signing key in wrapped form, plus
// whatever configuration it needs to unwrap them again (salts, verification
// tags, keystore references).
//
// Wrapped keys live in a keys store under "<id>::WRAPPED_ENCRYPTION_KEY" and
// "<id>::WRAPPED_SIGNING_KEY"; configuration lives in a config store under
// "<id>::<FIELD>".
package keywrapper

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/errors"
	"github.com/hashicorp/secretstorage/internal/kv"
)

// Persisted field names.
const (
	WrappedEncryptionKeyField = "WRAPPED_ENCRYPTION_KEY"
	WrappedSigningKeyField    = "WRAPPED_SIGNING_KEY"
	EncSaltField              = "ENC_SALT"
	VerificationField         = "VERIFICATION"
	KeyProtectionField        = "KEY_PROTECTION"
	DeviceBindingField        = "DEVICE_BINDING"
)

// Wrapper protects the data keys of identities.
//
// DataKeysExist is true only when both wrapped keys are present.  EraseKeys
// removes only the wrapped keys; EraseConfig removes the wrapper's
// configuration and the wrapped keys, fully resetting the identity.
type Wrapper interface {
	StoreDataEncryptionKey(ctx context.Context, id string, key *crypto.Key) error
	StoreDataSigningKey(ctx context.Context, id string, key *crypto.Key) error
	LoadDataEncryptionKey(ctx context.Context, id, algorithm string) (*crypto.Key, error)
	LoadDataSigningKey(ctx context.Context, id, algorithm string) (*crypto.Key, error)
	DataKeysExist(ctx context.Context, id string) (bool, error)
	EraseKeys(ctx context.Context, id string) error
	EraseConfig(ctx context.Context, id string) error
	Editor(ctx context.Context, id string) (Editor, error)

	// StageDataKeys wraps both keys without persisting them, returning the
	// changes that store them.  Callers commit the changes with kv.Apply so
	// both keys are written or neither is.
	StageDataKeys(ctx context.Context, id string, encKey, signKey *crypto.Key) ([]kv.Change, error)
}

// Editor is the lock state of one identity.  Wrappers return richer editors
// (PasswordEditor, NoParamsEditor, KeystoreEditor); callers type assert.
type Editor interface {
	IsUnlocked(ctx context.Context) (bool, error)
	Lock(ctx context.Context) error
}

// sealer turns a data key into its persisted form and back.
type sealer interface {
	seal(ctx context.Context, id string, key *crypto.Key) ([]byte, error)
	open(ctx context.Context, id string, blob []byte, algorithm string) (*crypto.Key, error)
}

// base is the storage shared by every wrapper.
type base struct {
	keys   kv.Store
	config kv.Store
	logger hclog.Logger
}

func newBase(ctx context.Context, op errors.Op, config, keys kv.Store, name string, opts options) (base, error) {
	switch {
	case keys == nil:
		return base{}, errors.New(ctx, errors.InvalidParameter, op, "missing keys store")
	case config == nil:
		return base{}, errors.New(ctx, errors.InvalidParameter, op, "missing config store")
	}
	return base{
		keys:   keys,
		config: config,
		logger: opts.withLogger.Named(name),
	}, nil
}

func (b *base) store(ctx context.Context, s sealer, id, field string, key *crypto.Key) error {
	const op = "keywrapper.(base).store"
	if id == "" {
		return errors.New(ctx, errors.InvalidParameter, op, "missing identity")
	}
	blob, err := s.seal(ctx, id, key)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if err := b.keys.Store(ctx, kv.Field(id, field), blob); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	return nil
}

func (b *base) stage(ctx context.Context, s sealer, id string, encKey, signKey *crypto.Key) ([]kv.Change, error) {
	const op = "keywrapper.(base).stage"
	if id == "" {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing identity")
	}
	encBlob, err := s.seal(ctx, id, encKey)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	signBlob, err := s.seal(ctx, id, signKey)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	batch := kv.NewBatch().
		Put(kv.Field(id, WrappedEncryptionKeyField), encBlob).
		Put(kv.Field(id, WrappedSigningKeyField), signBlob)
	return []kv.Change{{Store: b.keys, Batch: batch}}, nil
}

func (b *base) load(ctx context.Context, s sealer, id, field, algorithm string) (*crypto.Key, error) {
	const op = "keywrapper.(base).load"
	blob, err := b.loadBlob(ctx, id, field)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	k, err := s.open(ctx, id, blob, algorithm)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return k, nil
}

func (b *base) loadBlob(ctx context.Context, id, field string) ([]byte, error) {
	const op = "keywrapper.(base).loadBlob"
	if id == "" {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing identity")
	}
	blob, err := b.keys.Load(ctx, kv.Field(id, field))
	if err != nil {
		if errors.Match(errors.T(errors.RecordNotFound), err) {
			return nil, errors.New(ctx, errors.KeysNotFound, op, fmt.Sprintf("no %s stored for %q", field, id))
		}
		return nil, errors.Wrap(ctx, err, op)
	}
	return blob, nil
}

func (b *base) dataKeysExist(ctx context.Context, id string) (bool, error) {
	const op = "keywrapper.(base).dataKeysExist"
	for _, f := range []string{WrappedEncryptionKeyField, WrappedSigningKeyField} {
		ok, err := b.keys.Exists(ctx, kv.Field(id, f))
		if err != nil {
			return false, errors.Wrap(ctx, err, op)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (b *base) eraseKeys(ctx context.Context, id string) error {
	const op = "keywrapper.(base).eraseKeys"
	batch := kv.NewBatch().
		Delete(kv.Field(id, WrappedEncryptionKeyField)).
		Delete(kv.Field(id, WrappedSigningKeyField))
	if err := kv.Apply(ctx, []kv.Change{{Store: b.keys, Batch: batch}}, kv.WithLogger(b.logger)); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	return nil
}

// eraseConfig removes the named config fields and both wrapped keys in one
// change set.
func (b *base) eraseConfig(ctx context.Context, id string, fields ...string) error {
	const op = "keywrapper.(base).eraseConfig"
	cfg := kv.NewBatch()
	for _, f := range fields {
		cfg.Delete(kv.Field(id, f))
	}
	keys := kv.NewBatch().
		Delete(kv.Field(id, WrappedEncryptionKeyField)).
		Delete(kv.Field(id, WrappedSigningKeyField))
	changes := []kv.Change{{Store: b.keys, Batch: keys}, {Store: b.config, Batch: cfg}}
	if err := kv.Apply(ctx, changes, kv.WithLogger(b.logger)); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	return nil
}
