// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package keywrapper

import (
	"context"

	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/errors"
	"github.com/hashicorp/secretstorage/internal/kv"
)

// DefaultObfuscationPassword is the fixed password of ObfuscationWrapper.
const DefaultObfuscationPassword = "default_password"

// ObfuscationWrapper is a PasswordWrapper with a fixed, well known password.
// It keeps data keys out of plain sight but offers no protection against
// anyone who can read the stores.  Every key operation unlocks the identity
// first, setting the password if none exists.
type ObfuscationWrapper struct {
	*PasswordWrapper
}

var _ Wrapper = (*ObfuscationWrapper)(nil)

// NewObfuscationWrapper creates an ObfuscationWrapper.  Supported options:
// WithLogger, WithDeriver.
func NewObfuscationWrapper(ctx context.Context, p crypto.Provider, cfg PasswordConfig, config, keys kv.Store, opt ...Option) (*ObfuscationWrapper, error) {
	const op = "keywrapper.NewObfuscationWrapper"
	w, err := newPasswordWrapper(ctx, op, "obfuscation", p, cfg, config, keys, nil, opt...)
	if err != nil {
		return nil, err
	}
	return &ObfuscationWrapper{PasswordWrapper: w}, nil
}

// StoreDataEncryptionKey implements Wrapper.
func (w *ObfuscationWrapper) StoreDataEncryptionKey(ctx context.Context, id string, key *crypto.Key) error {
	const op = "keywrapper.(ObfuscationWrapper).StoreDataEncryptionKey"
	if err := w.autoUnlock(ctx, id); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	return w.PasswordWrapper.StoreDataEncryptionKey(ctx, id, key)
}

// StoreDataSigningKey implements Wrapper.
func (w *ObfuscationWrapper) StoreDataSigningKey(ctx context.Context, id string, key *crypto.Key) error {
	const op = "keywrapper.(ObfuscationWrapper).StoreDataSigningKey"
	if err := w.autoUnlock(ctx, id); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	return w.PasswordWrapper.StoreDataSigningKey(ctx, id, key)
}

// LoadDataEncryptionKey implements Wrapper.
func (w *ObfuscationWrapper) LoadDataEncryptionKey(ctx context.Context, id, algorithm string) (*crypto.Key, error) {
	const op = "keywrapper.(ObfuscationWrapper).LoadDataEncryptionKey"
	if err := w.autoUnlock(ctx, id); err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return w.PasswordWrapper.LoadDataEncryptionKey(ctx, id, algorithm)
}

// LoadDataSigningKey implements Wrapper.
func (w *ObfuscationWrapper) LoadDataSigningKey(ctx context.Context, id, algorithm string) (*crypto.Key, error) {
	const op = "keywrapper.(ObfuscationWrapper).LoadDataSigningKey"
	if err := w.autoUnlock(ctx, id); err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return w.PasswordWrapper.LoadDataSigningKey(ctx, id, algorithm)
}

// StageDataKeys implements Wrapper.
func (w *ObfuscationWrapper) StageDataKeys(ctx context.Context, id string, encKey, signKey *crypto.Key) ([]kv.Change, error) {
	const op = "keywrapper.(ObfuscationWrapper).StageDataKeys"
	if err := w.autoUnlock(ctx, id); err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return w.PasswordWrapper.StageDataKeys(ctx, id, encKey, signKey)
}

// Editor implements Wrapper.  The result is a *NoParamsEditor.
func (w *ObfuscationWrapper) Editor(_ context.Context, id string) (Editor, error) {
	return &NoParamsEditor{w: w, id: id}, nil
}

func (w *ObfuscationWrapper) autoUnlock(ctx context.Context, id string) error {
	const op = "keywrapper.(ObfuscationWrapper).autoUnlock"
	if w.isUnlocked(id) {
		return nil
	}
	e := w.PasswordEditor(id)
	set, err := e.IsPasswordSet(ctx)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if set {
		err = e.Unlock(ctx, DefaultObfuscationPassword)
	} else {
		err = e.SetPassword(ctx, DefaultObfuscationPassword)
	}
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	return nil
}

// NoParamsEditor unlocks an identity that needs no user input.
type NoParamsEditor struct {
	w  *ObfuscationWrapper
	id string
}

var _ Editor = (*NoParamsEditor)(nil)

// Unlock unlocks the identity, setting the fixed password if needed.
func (e *NoParamsEditor) Unlock(ctx context.Context) error {
	return e.w.autoUnlock(ctx, e.id)
}

// IsUnlocked implements Editor.
func (e *NoParamsEditor) IsUnlocked(_ context.Context) (bool, error) {
	return e.w.isUnlocked(e.id), nil
}

// Lock implements Editor.
func (e *NoParamsEditor) Lock(_ context.Context) error {
	e.w.lock(e.id)
	return nil
}
