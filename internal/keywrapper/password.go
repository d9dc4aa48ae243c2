// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package keywrapper

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/errors"
	"github.com/hashicorp/secretstorage/internal/kdf"
	"github.com/hashicorp/secretstorage/internal/keywrap"
	"github.com/hashicorp/secretstorage/internal/kv"
	"github.com/hashicorp/secretstorage/internal/protection"
	"golang.org/x/crypto/hkdf"
)

const (
	kekInfo          = "key-encryption"
	verificationInfo = "password-verification"
)

// PasswordConfig selects how a password protects data keys.  KeyWrap must
// be an authenticated symmetric cipher; its key is Derivation.KeyLength
// bytes long.
type PasswordConfig struct {
	Derivation kdf.Params
	KeyWrap    protection.CipherSpec
}

// DefaultPasswordConfig derives a 256 bit key encryption key with
// PBKDF2WithHmacSHA1 and wraps with AES/GCM/NoPadding.
func DefaultPasswordConfig() PasswordConfig {
	return PasswordConfig{
		Derivation: kdf.DefaultParams(kdf.PasswordRounds),
		KeyWrap:    protection.AesGcmCipher(),
	}
}

// LegacyPasswordConfig derives a 128 bit key encryption key and wraps with
// AESWrap.
func LegacyPasswordConfig() PasswordConfig {
	p := kdf.DefaultParams(kdf.PasswordRounds)
	p.KeyLength = 16
	return PasswordConfig{
		Derivation: p,
		KeyWrap:    protection.AesWrapCipher(),
	}
}

// Validate reports whether the config can be used.
func (c PasswordConfig) Validate(ctx context.Context) error {
	const op = "keywrapper.(PasswordConfig).Validate"
	if err := c.Derivation.Validate(ctx); err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidConfiguration))
	}
	if c.KeyWrap.Kind != protection.Symmetric || c.KeyWrap.Transformation == "" {
		return errors.New(ctx, errors.InvalidConfiguration, op, "key wrap must be a symmetric cipher")
	}
	return nil
}

// session is an unlocked identity.
type session struct {
	kek        *memguard.Enclave
	protection keyProtection
}

// PasswordWrapper wraps data keys under a key encryption key derived from a
// password.  Each instance starts with every identity locked; the derived
// key lives only in memory, sealed in a memguard enclave, while unlocked.
//
// Config fields: ENC_SALT, VERIFICATION and KEY_PROTECTION.
type PasswordWrapper struct {
	base
	provider crypto.Provider
	deriver  *kdf.Deriver
	cfg      PasswordConfig
	device   *deviceBinding

	mu       sync.Mutex
	sessions map[string]*session
}

var (
	_ Wrapper = (*PasswordWrapper)(nil)
	_ sealer  = (*PasswordWrapper)(nil)
)

// NewPasswordWrapper creates a PasswordWrapper.  Supported options:
// WithLogger, WithDeriver.
func NewPasswordWrapper(ctx context.Context, p crypto.Provider, cfg PasswordConfig, config, keys kv.Store, opt ...Option) (*PasswordWrapper, error) {
	const op = "keywrapper.NewPasswordWrapper"
	return newPasswordWrapper(ctx, op, "password", p, cfg, config, keys, nil, opt...)
}

func newPasswordWrapper(ctx context.Context, op errors.Op, name string, p crypto.Provider, cfg PasswordConfig, config, keys kv.Store, device *deviceBinding, opt ...Option) (*PasswordWrapper, error) {
	if p == nil {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing crypto provider")
	}
	if err := cfg.Validate(ctx); err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	opts := getOpts(opt...)
	b, err := newBase(ctx, op, config, keys, name, opts)
	if err != nil {
		return nil, err
	}
	d := opts.withDeriver
	if d == nil {
		d = kdf.NewDeriver(kdf.WithLogger(b.logger))
	}
	return &PasswordWrapper{
		base:     b,
		provider: p,
		deriver:  d,
		cfg:      cfg,
		device:   device,
		sessions: make(map[string]*session),
	}, nil
}

// StoreDataEncryptionKey implements Wrapper.  The identity must be unlocked.
func (w *PasswordWrapper) StoreDataEncryptionKey(ctx context.Context, id string, key *crypto.Key) error {
	return w.store(ctx, w, id, WrappedEncryptionKeyField, key)
}

// StoreDataSigningKey implements Wrapper.  The identity must be unlocked.
func (w *PasswordWrapper) StoreDataSigningKey(ctx context.Context, id string, key *crypto.Key) error {
	return w.store(ctx, w, id, WrappedSigningKeyField, key)
}

// LoadDataEncryptionKey implements Wrapper.  The identity must be unlocked.
func (w *PasswordWrapper) LoadDataEncryptionKey(ctx context.Context, id, algorithm string) (*crypto.Key, error) {
	return w.load(ctx, w, id, WrappedEncryptionKeyField, algorithm)
}

// LoadDataSigningKey implements Wrapper.  The identity must be unlocked.
func (w *PasswordWrapper) LoadDataSigningKey(ctx context.Context, id, algorithm string) (*crypto.Key, error) {
	return w.load(ctx, w, id, WrappedSigningKeyField, algorithm)
}

// StageDataKeys implements Wrapper.  The identity must be unlocked.
func (w *PasswordWrapper) StageDataKeys(ctx context.Context, id string, encKey, signKey *crypto.Key) ([]kv.Change, error) {
	return w.stage(ctx, w, id, encKey, signKey)
}

// DataKeysExist implements Wrapper.
func (w *PasswordWrapper) DataKeysExist(ctx context.Context, id string) (bool, error) {
	return w.dataKeysExist(ctx, id)
}

// EraseKeys implements Wrapper.
func (w *PasswordWrapper) EraseKeys(ctx context.Context, id string) error {
	return w.eraseKeys(ctx, id)
}

// EraseConfig implements Wrapper.  The identity is locked afterwards.
func (w *PasswordWrapper) EraseConfig(ctx context.Context, id string) error {
	const op = "keywrapper.(PasswordWrapper).EraseConfig"
	w.lock(id)
	fields := []string{EncSaltField, VerificationField, KeyProtectionField}
	if w.device != nil {
		fields = append(fields, DeviceBindingField)
	}
	if err := w.eraseConfig(ctx, id, fields...); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if w.device != nil {
		if err := w.device.erase(ctx, id); err != nil {
			return errors.Wrap(ctx, err, op)
		}
	}
	return nil
}

// Editor implements Wrapper.  The result is a *PasswordEditor.
func (w *PasswordWrapper) Editor(_ context.Context, id string) (Editor, error) {
	return w.PasswordEditor(id), nil
}

// PasswordEditor returns the editor for id.
func (w *PasswordWrapper) PasswordEditor(id string) *PasswordEditor {
	return &PasswordEditor{w: w, id: id}
}

// SetPassword sets the first password for id and unlocks it.
func (w *PasswordWrapper) SetPassword(ctx context.Context, id, password string) error {
	return w.PasswordEditor(id).SetPassword(ctx, password)
}

// Unlock unlocks id with password.
func (w *PasswordWrapper) Unlock(ctx context.Context, id, password string) error {
	return w.PasswordEditor(id).Unlock(ctx, password)
}

// Lock discards the unlocked key encryption key for id.
func (w *PasswordWrapper) Lock(_ context.Context, id string) {
	w.lock(id)
}

func (w *PasswordWrapper) seal(ctx context.Context, id string, key *crypto.Key) ([]byte, error) {
	const op = "keywrapper.(PasswordWrapper).seal"
	kek, kp, err := w.unlocked(ctx, id)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	defer kek.Destroy()
	blob, err := w.sealWith(ctx, id, kek, kp, key)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return blob, nil
}

func (w *PasswordWrapper) open(ctx context.Context, id string, blob []byte, algorithm string) (*crypto.Key, error) {
	const op = "keywrapper.(PasswordWrapper).open"
	kek, kp, err := w.unlocked(ctx, id)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	defer kek.Destroy()
	k, err := w.openWith(ctx, id, kek, kp, blob, algorithm)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return k, nil
}

func (w *PasswordWrapper) sealWith(ctx context.Context, id string, kek *crypto.Key, kp keyProtection, key *crypto.Key) ([]byte, error) {
	const op = "keywrapper.(PasswordWrapper).sealWith"
	blob, err := keywrap.Wrap(ctx, w.provider, kek, key, kp.Transformation)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	if w.device != nil {
		if blob, err = w.device.seal(ctx, id, blob); err != nil {
			return nil, errors.Wrap(ctx, err, op)
		}
	}
	return blob, nil
}

func (w *PasswordWrapper) openWith(ctx context.Context, id string, kek *crypto.Key, kp keyProtection, blob []byte, algorithm string) (*crypto.Key, error) {
	const op = "keywrapper.(PasswordWrapper).openWith"
	if w.device != nil {
		var err error
		if blob, err = w.device.open(ctx, id, blob); err != nil {
			return nil, errors.Wrap(ctx, err, op)
		}
	}
	k, err := keywrap.Unwrap(ctx, w.provider, kek, blob, kp.Transformation, algorithm)
	switch {
	case err == nil:
		return k, nil
	case errors.IsFormatError(err):
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.IntegrityCheck))
	default:
		return nil, errors.Wrap(ctx, err, op)
	}
}

// unlocked returns a copy of the unlocked key encryption key for id.  The
// caller destroys it.
func (w *PasswordWrapper) unlocked(ctx context.Context, id string) (*crypto.Key, keyProtection, error) {
	const op = "keywrapper.(PasswordWrapper).unlocked"
	w.mu.Lock()
	s := w.sessions[id]
	w.mu.Unlock()
	if s == nil {
		set, err := w.isPasswordSet(ctx, id)
		switch {
		case err != nil:
			return nil, keyProtection{}, errors.Wrap(ctx, err, op)
		case !set:
			return nil, keyProtection{}, errors.New(ctx, errors.PasswordNotSet, op, fmt.Sprintf("no password set for %q", id))
		default:
			return nil, keyProtection{}, errors.New(ctx, errors.Locked, op, fmt.Sprintf("%q is locked", id))
		}
	}
	lb, err := s.kek.Open()
	if err != nil {
		return nil, keyProtection{}, errors.Wrap(ctx, err, op, errors.WithCode(errors.Internal))
	}
	defer lb.Destroy()
	return crypto.NewKey(crypto.AesAlgorithm, lb.Bytes()), s.protection, nil
}

func (w *PasswordWrapper) isUnlocked(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessions[id] != nil
}

// remember seals a copy of kek as the unlocked state of id.
func (w *PasswordWrapper) remember(id string, kek *crypto.Key, kp keyProtection) {
	buf := make([]byte, len(kek.Material))
	copy(buf, kek.Material)
	s := &session{kek: memguard.NewEnclave(buf), protection: kp}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sessions[id] = s
}

func (w *PasswordWrapper) lock(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.sessions, id)
}

func (w *PasswordWrapper) isPasswordSet(ctx context.Context, id string) (bool, error) {
	const op = "keywrapper.(PasswordWrapper).isPasswordSet"
	if id == "" {
		return false, errors.New(ctx, errors.InvalidParameter, op, "missing identity")
	}
	ok, err := w.config.Exists(ctx, kv.Field(id, VerificationField))
	if err != nil {
		return false, errors.Wrap(ctx, err, op)
	}
	return ok, nil
}

// derive computes the key encryption key and the raw verification tag for
// password.  The caller destroys the key.
func (w *PasswordWrapper) derive(ctx context.Context, id, password string, salt []byte, params kdf.Params) (*crypto.Key, []byte, error) {
	const op = "keywrapper.(PasswordWrapper).derive"
	master, err := w.deriver.Derive(ctx, []byte(password), salt, params)
	if err != nil {
		return nil, nil, errors.Wrap(ctx, err, op)
	}
	defer master.Destroy()
	kek, err := subkey(ctx, master, kekInfo, params.KeyLength)
	if err != nil {
		return nil, nil, errors.Wrap(ctx, err, op)
	}
	vk, err := subkey(ctx, master, verificationInfo, 32)
	if err != nil {
		kek.Destroy()
		return nil, nil, errors.Wrap(ctx, err, op)
	}
	defer vk.Destroy()
	m, err := w.provider.Mac(ctx, crypto.HmacSha256)
	if err != nil {
		kek.Destroy()
		return nil, nil, errors.Wrap(ctx, err, op)
	}
	tag, err := m.Sum(ctx, vk, []byte(id))
	if err != nil {
		kek.Destroy()
		return nil, nil, errors.Wrap(ctx, err, op)
	}
	if w.device != nil {
		if tag, err = w.device.sign(ctx, id, tag); err != nil {
			kek.Destroy()
			return nil, nil, errors.Wrap(ctx, err, op)
		}
	}
	return kek, tag, nil
}

// check derives from password with the persisted salt and parameters.  ok is
// false when the password is wrong; the key is nil in that case.
func (w *PasswordWrapper) check(ctx context.Context, id, password string) (kek *crypto.Key, kp keyProtection, ok bool, _ error) {
	const op = "keywrapper.(PasswordWrapper).check"
	set, err := w.isPasswordSet(ctx, id)
	if err != nil {
		return nil, kp, false, errors.Wrap(ctx, err, op)
	}
	if !set {
		return nil, kp, false, errors.New(ctx, errors.PasswordNotSet, op, fmt.Sprintf("no password set for %q", id))
	}
	stored, err := w.config.Load(ctx, kv.Field(id, VerificationField))
	if err != nil {
		return nil, kp, false, errors.Wrap(ctx, err, op)
	}
	salt, err := w.config.Load(ctx, kv.Field(id, EncSaltField))
	if err != nil {
		return nil, kp, false, errors.Wrap(ctx, err, op)
	}
	desc, err := w.config.Load(ctx, kv.Field(id, KeyProtectionField))
	if err != nil {
		return nil, kp, false, errors.Wrap(ctx, err, op)
	}
	if kp, err = unmarshalKeyProtection(ctx, desc); err != nil {
		return nil, kp, false, errors.Wrap(ctx, err, op)
	}
	kek, tag, err := w.derive(ctx, id, password, salt, kp.Derivation)
	if err != nil {
		return nil, kp, false, errors.Wrap(ctx, err, op)
	}
	if subtle.ConstantTimeCompare(tag, stored) != 1 {
		kek.Destroy()
		return nil, kp, false, nil
	}
	return kek, kp, true, nil
}

// credentials generates a fresh salt for password under the configured
// defaults and returns the config batch that records it.
func (w *PasswordWrapper) credentials(ctx context.Context, id, password string) (*crypto.Key, keyProtection, *kv.Batch, error) {
	const op = "keywrapper.(PasswordWrapper).credentials"
	kp := keyProtection{Transformation: w.cfg.KeyWrap.Transformation, Derivation: w.cfg.Derivation}
	salt, err := w.deriver.Salt(ctx, w.provider, kp.Derivation)
	if err != nil {
		return nil, kp, nil, errors.Wrap(ctx, err, op)
	}
	kek, tag, err := w.derive(ctx, id, password, salt, kp.Derivation)
	if err != nil {
		return nil, kp, nil, errors.Wrap(ctx, err, op)
	}
	desc, err := kp.marshal(ctx)
	if err != nil {
		kek.Destroy()
		return nil, kp, nil, errors.Wrap(ctx, err, op)
	}
	batch := kv.NewBatch().
		Put(kv.Field(id, EncSaltField), salt).
		Put(kv.Field(id, VerificationField), tag).
		Put(kv.Field(id, KeyProtectionField), desc)
	return kek, kp, batch, nil
}

func subkey(ctx context.Context, master *crypto.Key, info string, size int) (*crypto.Key, error) {
	const op = "keywrapper.subkey"
	buf := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master.Material, nil, []byte(info)), buf); err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Internal))
	}
	k := crypto.NewKey(crypto.AesAlgorithm, buf)
	memguard.WipeBytes(buf)
	return k, nil
}
