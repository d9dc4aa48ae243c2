// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package keywrapper

import (
	"context"

	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/errors"
	"github.com/hashicorp/secretstorage/internal/keystore"
	"github.com/hashicorp/secretstorage/internal/kv"
	"github.com/hashicorp/secretstorage/internal/protection"
)

// Keystore key aliases, recorded as config fields.
const (
	KeystoreEncryptionKeyField = "KEYSTORE_ENCRYPTION_KEY"
	KeystoreSigningKeyField    = "KEYSTORE_SIGNING_KEY"
)

// KeystoreProtectionSpec protects data keys with keystore held encryption
// and signing keys.
func KeystoreProtectionSpec() protection.Spec {
	return protection.Spec{
		Cipher:        protection.KeystoreCipher(),
		Integrity:     protection.KeystoreIntegrity(),
		EncryptionKey: protection.KeystoreAes256KeyGen(),
		SigningKey:    protection.KeystoreAes256KeyGen(),
	}
}

// PresenceKeystoreProtectionSpec is KeystoreProtectionSpec with both keystore
// keys gated behind the keystore's presence check.
func PresenceKeystoreProtectionSpec() protection.Spec {
	spec := KeystoreProtectionSpec()
	spec.EncryptionKey = protection.PresenceKeystoreAes256KeyGen()
	spec.SigningKey = protection.PresenceKeystoreAes256KeyGen()
	return spec
}

// KeystoreWrapper protects data keys with keys that never leave a keystore.
// Both keystore keys are generated on the first store.  There is nothing to
// unlock beyond any presence check the keystore keys demand.
type KeystoreWrapper struct {
	base
	ks       keystore.Capability
	strategy *protection.Strategy
}

var (
	_ Wrapper = (*KeystoreWrapper)(nil)
	_ sealer  = (*KeystoreWrapper)(nil)
)

// NewKeystoreWrapper creates a KeystoreWrapper.  spec must use hardware
// cipher and integrity kinds.  Supported options: WithLogger.
func NewKeystoreWrapper(ctx context.Context, p crypto.Provider, ks keystore.Capability, spec protection.Spec, config, keys kv.Store, opt ...Option) (*KeystoreWrapper, error) {
	const op = "keywrapper.NewKeystoreWrapper"
	if ks == nil {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing keystore")
	}
	if spec.Cipher.Kind != protection.HardwareCipher || spec.Integrity.Kind != protection.HardwareIntegrity {
		return nil, errors.New(ctx, errors.InvalidConfiguration, op, "keystore wrapper requires hardware cipher and integrity")
	}
	opts := getOpts(opt...)
	b, err := newBase(ctx, op, config, keys, "keystore", opts)
	if err != nil {
		return nil, err
	}
	s, err := protection.NewStrategy(ctx, p, spec, protection.WithKeystore(ks), protection.WithLogger(b.logger))
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return &KeystoreWrapper{base: b, ks: ks, strategy: s}, nil
}

// StoreDataEncryptionKey implements Wrapper.
func (w *KeystoreWrapper) StoreDataEncryptionKey(ctx context.Context, id string, key *crypto.Key) error {
	return w.store(ctx, w, id, WrappedEncryptionKeyField, key)
}

// StoreDataSigningKey implements Wrapper.
func (w *KeystoreWrapper) StoreDataSigningKey(ctx context.Context, id string, key *crypto.Key) error {
	return w.store(ctx, w, id, WrappedSigningKeyField, key)
}

// LoadDataEncryptionKey implements Wrapper.
func (w *KeystoreWrapper) LoadDataEncryptionKey(ctx context.Context, id, algorithm string) (*crypto.Key, error) {
	return w.load(ctx, w, id, WrappedEncryptionKeyField, algorithm)
}

// LoadDataSigningKey implements Wrapper.
func (w *KeystoreWrapper) LoadDataSigningKey(ctx context.Context, id, algorithm string) (*crypto.Key, error) {
	return w.load(ctx, w, id, WrappedSigningKeyField, algorithm)
}

// StageDataKeys implements Wrapper.
func (w *KeystoreWrapper) StageDataKeys(ctx context.Context, id string, encKey, signKey *crypto.Key) ([]kv.Change, error) {
	return w.stage(ctx, w, id, encKey, signKey)
}

// DataKeysExist implements Wrapper.
func (w *KeystoreWrapper) DataKeysExist(ctx context.Context, id string) (bool, error) {
	return w.dataKeysExist(ctx, id)
}

// EraseKeys implements Wrapper.
func (w *KeystoreWrapper) EraseKeys(ctx context.Context, id string) error {
	return w.eraseKeys(ctx, id)
}

// EraseConfig implements Wrapper.  Both keystore keys are deleted.
func (w *KeystoreWrapper) EraseConfig(ctx context.Context, id string) error {
	const op = "keywrapper.(KeystoreWrapper).EraseConfig"
	if err := w.eraseConfig(ctx, id, KeystoreEncryptionKeyField, KeystoreSigningKeyField); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	for _, f := range []string{KeystoreEncryptionKeyField, KeystoreSigningKeyField} {
		if err := w.ks.DeleteKey(ctx, kv.Field(id, f)); err != nil {
			return errors.Wrap(ctx, err, op)
		}
	}
	return nil
}

// Editor implements Wrapper.  The result is a *KeystoreEditor.
func (w *KeystoreWrapper) Editor(_ context.Context, id string) (Editor, error) {
	return &KeystoreEditor{w: w, id: id}, nil
}

func (w *KeystoreWrapper) aliases(id string) (enc, sign *crypto.Key) {
	return crypto.NewAliasKey(kv.Field(id, KeystoreEncryptionKeyField)),
		crypto.NewAliasKey(kv.Field(id, KeystoreSigningKeyField))
}

// provision generates the keystore keys of id and records their aliases.
func (w *KeystoreWrapper) provision(ctx context.Context, id string) error {
	const op = "keywrapper.(KeystoreWrapper).provision"
	spec := w.strategy.Spec()
	enc, sign := w.aliases(id)
	gens := []struct {
		field string
		alias string
		gen   protection.KeyGenSpec
	}{
		{KeystoreEncryptionKeyField, enc.Alias, spec.EncryptionKey},
		{KeystoreSigningKeyField, sign.Alias, spec.SigningKey},
	}
	batch := kv.NewBatch()
	for _, g := range gens {
		if err := w.ks.GenerateKey(ctx, g.alias, keystore.WithPresenceRequired(g.gen.PresenceRequired)); err != nil {
			return errors.Wrap(ctx, err, op)
		}
		batch.Put(kv.Field(id, g.field), []byte(g.alias))
	}
	if err := kv.Apply(ctx, []kv.Change{{Store: w.config, Batch: batch}}, kv.WithLogger(w.logger)); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	return nil
}

func (w *KeystoreWrapper) seal(ctx context.Context, id string, key *crypto.Key) ([]byte, error) {
	const op = "keywrapper.(KeystoreWrapper).seal"
	if key == nil || len(key.Material) == 0 {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing key material")
	}
	if err := w.provision(ctx, id); err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	enc, sign := w.aliases(id)
	blob, err := w.strategy.EncryptAndSign(ctx, enc, sign, key.Material)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.KeyWrap))
	}
	return blob, nil
}

func (w *KeystoreWrapper) open(ctx context.Context, id string, blob []byte, algorithm string) (*crypto.Key, error) {
	const op = "keywrapper.(KeystoreWrapper).open"
	enc, sign := w.aliases(id)
	material, err := w.strategy.VerifyAndDecrypt(ctx, enc, sign, blob)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return &crypto.Key{Algorithm: algorithm, Material: material}, nil
}

// KeystoreEditor reports whether an identity's keystore keys exist.
type KeystoreEditor struct {
	w  *KeystoreWrapper
	id string
}

var _ Editor = (*KeystoreEditor)(nil)

// IsUnlocked implements Editor.  It is true once both keystore keys exist.
func (e *KeystoreEditor) IsUnlocked(ctx context.Context) (bool, error) {
	const op = "keywrapper.(KeystoreEditor).IsUnlocked"
	enc, sign := e.w.aliases(e.id)
	for _, a := range []string{enc.Alias, sign.Alias} {
		ok, err := e.w.ks.HasKey(ctx, a)
		if err != nil {
			return false, errors.Wrap(ctx, err, op)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Lock implements Editor.  Keystore keys cannot be locked; it does nothing.
func (e *KeystoreEditor) Lock(_ context.Context) error {
	return nil
}
