// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package keystore provides the hardware style capability used by the
// keystore and device bound wrappers: named keys that are generated and used
// inside the keystore and never handed to callers.
package keystore

import (
	"context"
	"crypto/hmac"
	"fmt"

	"github.com/awnumar/memguard"
	"github.com/hashicorp/go-hclog"
	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	"github.com/hashicorp/go-kms-wrapping/v2/aead"
	kmscrypto "github.com/hashicorp/go-kms-wrapping/v2/extras/crypto"
	"github.com/hashicorp/go-uuid"
	"github.com/hashicorp/secretstorage/internal/errors"
)

const (
	aliasKeySize = 32

	// sealedOverhead is the GCM nonce plus tag the aead wrapper adds.
	sealedOverhead = 12 + 16
)

// Capability is a keystore holding non-exportable keys addressed by alias.
type Capability interface {
	// GenerateKey creates the alias key if it does not exist yet.
	GenerateKey(ctx context.Context, alias string, opt ...Option) error
	HasKey(ctx context.Context, alias string) (bool, error)
	Encrypt(ctx context.Context, alias string, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, alias string, ciphertext []byte) ([]byte, error)
	Sign(ctx context.Context, alias string, data []byte) ([]byte, error)
	Verify(ctx context.Context, alias string, data, sig []byte) error
	DeleteKey(ctx context.Context, alias string) error
}

// PresenceFunc confirms a human is present before a gated key is used.  It
// returns an error to refuse the operation.
type PresenceFunc func(ctx context.Context, alias string) error

// aliasKey is one keystore entry.
type aliasKey struct {
	material         []byte
	presenceRequired bool
}

func (k *aliasKey) destroy() {
	if k != nil {
		memguard.WipeBytes(k.material)
	}
}

// source persists alias keys.  Implementations never return a key to anyone
// but the Keystore.
type source interface {
	name() string
	put(ctx context.Context, alias string, k *aliasKey) error
	get(ctx context.Context, alias string) (*aliasKey, error)
	exists(ctx context.Context, alias string) (bool, error)
	remove(ctx context.Context, alias string) error
}

// Keystore implements Capability over a key source.  Each alias key is used
// through an AES-256-GCM aead wrapper; signatures are HMAC-SHA256 tags keyed
// from the same wrapper.
type Keystore struct {
	src      source
	presence PresenceFunc
	logger   hclog.Logger
}

var _ Capability = (*Keystore)(nil)

func newKeystore(src source, opts options) *Keystore {
	return &Keystore{
		src:      src,
		presence: opts.withPresence,
		logger:   opts.withLogger.Named(src.name() + "-keystore"),
	}
}

// GenerateKey implements Capability.  Supported options:
// WithPresenceRequired.
func (k *Keystore) GenerateKey(ctx context.Context, alias string, opt ...Option) error {
	const op = "keystore.(Keystore).GenerateKey"
	if alias == "" {
		return errors.New(ctx, errors.InvalidParameter, op, "missing alias")
	}
	opts := getOpts(opt...)
	ok, err := k.src.exists(ctx, alias)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if ok {
		return nil
	}
	material, err := uuid.GenerateRandomBytes(aliasKeySize)
	if err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Internal))
	}
	ak := &aliasKey{material: material, presenceRequired: opts.withPresenceRequired}
	defer ak.destroy()
	if err := k.src.put(ctx, alias, ak); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	k.logger.Debug("generated keystore key", "alias", alias, "presence_required", opts.withPresenceRequired)
	return nil
}

// HasKey implements Capability.
func (k *Keystore) HasKey(ctx context.Context, alias string) (bool, error) {
	const op = "keystore.(Keystore).HasKey"
	ok, err := k.src.exists(ctx, alias)
	if err != nil {
		return false, errors.Wrap(ctx, err, op)
	}
	return ok, nil
}

// DeleteKey implements Capability.  Deleting a missing alias is not an error.
func (k *Keystore) DeleteKey(ctx context.Context, alias string) error {
	const op = "keystore.(Keystore).DeleteKey"
	if err := k.src.remove(ctx, alias); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	return nil
}

// Encrypt implements Capability.  The result is the nonce followed by the
// sealed plaintext; the alias is bound as additional data.
func (k *Keystore) Encrypt(ctx context.Context, alias string, plaintext []byte) ([]byte, error) {
	const op = "keystore.(Keystore).Encrypt"
	w, release, err := k.wrapper(ctx, alias, false)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	defer release()
	blob, err := w.Encrypt(ctx, plaintext, wrapping.WithAad([]byte(alias)))
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Encrypt))
	}
	return blob.Ciphertext, nil
}

// Decrypt implements Capability.  Gated keys consult the presence func first.
func (k *Keystore) Decrypt(ctx context.Context, alias string, ciphertext []byte) ([]byte, error) {
	const op = "keystore.(Keystore).Decrypt"
	if len(ciphertext) < sealedOverhead {
		return nil, errors.New(ctx, errors.Decrypt, op, fmt.Sprintf("ciphertext too short: %d bytes", len(ciphertext)))
	}
	w, release, err := k.wrapper(ctx, alias, true)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	defer release()
	pt, err := w.Decrypt(ctx, &wrapping.BlobInfo{Ciphertext: ciphertext}, wrapping.WithAad([]byte(alias)))
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Decrypt))
	}
	return pt, nil
}

// Sign implements Capability.  Gated keys consult the presence func first.
func (k *Keystore) Sign(ctx context.Context, alias string, data []byte) ([]byte, error) {
	const op = "keystore.(Keystore).Sign"
	w, release, err := k.wrapper(ctx, alias, true)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	defer release()
	sig, err := sign(ctx, w, data)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return sig, nil
}

// Verify implements Capability.
func (k *Keystore) Verify(ctx context.Context, alias string, data, sig []byte) error {
	const op = "keystore.(Keystore).Verify"
	w, release, err := k.wrapper(ctx, alias, false)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	defer release()
	want, err := sign(ctx, w, data)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if !hmac.Equal(want, sig) {
		return errors.New(ctx, errors.VerificationFailed, op, "signature mismatch")
	}
	return nil
}

func sign(ctx context.Context, w *aead.Wrapper, data []byte) ([]byte, error) {
	const op = "keystore.sign"
	if data == nil {
		data = []byte{}
	}
	tag, err := kmscrypto.HmacSha256(ctx, data, w)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Sign))
	}
	return []byte(tag), nil
}

// wrapper loads the alias key into an aead wrapper.  The wrapper shares the
// key material, so callers must call release once they are done with it.
func (k *Keystore) wrapper(ctx context.Context, alias string, gated bool) (*aead.Wrapper, func(), error) {
	const op = "keystore.(Keystore).wrapper"
	if alias == "" {
		return nil, nil, errors.New(ctx, errors.InvalidParameter, op, "missing alias")
	}
	ak, err := k.src.get(ctx, alias)
	if err != nil {
		return nil, nil, errors.Wrap(ctx, err, op)
	}
	if gated && ak.presenceRequired {
		if k.presence == nil {
			ak.destroy()
			return nil, nil, errors.New(ctx, errors.PresenceRequired, op, fmt.Sprintf("key %q requires presence and no presence check is configured", alias))
		}
		if err := k.presence(ctx, alias); err != nil {
			ak.destroy()
			return nil, nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.PresenceRequired))
		}
	}
	w := aead.NewWrapper()
	if _, err := w.SetConfig(ctx, wrapping.WithKeyId(alias)); err != nil {
		ak.destroy()
		return nil, nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Internal))
	}
	if err := w.SetAesGcmKeyBytes(ak.material); err != nil {
		ak.destroy()
		return nil, nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Internal))
	}
	return w, ak.destroy, nil
}
