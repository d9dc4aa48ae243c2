// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package keywrapper

import (
	"context"
	"fmt"

	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/errors"
	"github.com/hashicorp/secretstorage/internal/kv"
)

// PasswordEditor manages the password of one identity.
//
// An identity is in one of three states: no password set, locked, or
// unlocked.  SetPassword moves from no password to unlocked.  Unlock moves
// from locked to unlocked and Lock the other way.  ChangePassword requires
// the current password and leaves the identity unlocked under the new one.
type PasswordEditor struct {
	w  *PasswordWrapper
	id string
}

var _ Editor = (*PasswordEditor)(nil)

// IsPasswordSet reports whether a password has been set.
func (e *PasswordEditor) IsPasswordSet(ctx context.Context) (bool, error) {
	const op = "keywrapper.(PasswordEditor).IsPasswordSet"
	ok, err := e.w.isPasswordSet(ctx, e.id)
	if err != nil {
		return false, errors.Wrap(ctx, err, op)
	}
	return ok, nil
}

// IsUnlocked implements Editor.
func (e *PasswordEditor) IsUnlocked(_ context.Context) (bool, error) {
	return e.w.isUnlocked(e.id), nil
}

// Lock implements Editor.  Locking a locked identity does nothing.
func (e *PasswordEditor) Lock(_ context.Context) error {
	e.w.lock(e.id)
	return nil
}

// SetPassword sets the first password and unlocks the identity.  It fails
// with PasswordAlreadySet once a password exists.
func (e *PasswordEditor) SetPassword(ctx context.Context, password string) error {
	const op = "keywrapper.(PasswordEditor).SetPassword"
	if password == "" {
		return errors.New(ctx, errors.InvalidParameter, op, "missing password")
	}
	set, err := e.w.isPasswordSet(ctx, e.id)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if set {
		return errors.New(ctx, errors.PasswordAlreadySet, op, fmt.Sprintf("password already set for %q", e.id))
	}
	if e.w.device != nil {
		if err := e.w.device.setup(ctx, e.id); err != nil {
			return errors.Wrap(ctx, err, op)
		}
	}
	kek, kp, batch, err := e.w.credentials(ctx, e.id, password)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	defer kek.Destroy()
	if e.w.device != nil {
		batch.Put(kv.Field(e.id, DeviceBindingField), []byte(e.w.device.alias(e.id)))
	}
	if err := kv.Apply(ctx, []kv.Change{{Store: e.w.config, Batch: batch}}, kv.WithLogger(e.w.logger)); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	e.w.remember(e.id, kek, kp)
	e.w.logger.Debug("password set", "id", e.id)
	return nil
}

// VerifyPassword reports whether password is the current password.  It only
// fails when no password is set or the stores cannot be read.
func (e *PasswordEditor) VerifyPassword(ctx context.Context, password string) (bool, error) {
	const op = "keywrapper.(PasswordEditor).VerifyPassword"
	kek, _, ok, err := e.w.check(ctx, e.id, password)
	if err != nil {
		return false, errors.Wrap(ctx, err, op)
	}
	kek.Destroy()
	return ok, nil
}

// Unlock unlocks the identity.  A wrong password fails with WrongPassword
// and leaves the identity locked.
func (e *PasswordEditor) Unlock(ctx context.Context, password string) error {
	const op = "keywrapper.(PasswordEditor).Unlock"
	kek, kp, ok, err := e.w.check(ctx, e.id, password)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if !ok {
		return errors.New(ctx, errors.WrongPassword, op, fmt.Sprintf("wrong password for %q", e.id))
	}
	defer kek.Destroy()
	e.w.remember(e.id, kek, kp)
	return nil
}

// ChangePassword replaces the password.  Stored data keys are rewrapped
// under the new password in the same change set as the new configuration,
// so a failure leaves the old password and keys in effect.
func (e *PasswordEditor) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	const op = "keywrapper.(PasswordEditor).ChangePassword"
	if newPassword == "" {
		return errors.New(ctx, errors.InvalidParameter, op, "missing new password")
	}
	oldKek, oldKp, ok, err := e.w.check(ctx, e.id, oldPassword)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if !ok {
		return errors.New(ctx, errors.WrongPassword, op, fmt.Sprintf("wrong password for %q", e.id))
	}
	defer oldKek.Destroy()

	type wrapped struct {
		field string
		key   *crypto.Key
	}
	var existing []wrapped
	defer func() {
		for _, k := range existing {
			k.key.Destroy()
		}
	}()
	for _, f := range []string{WrappedEncryptionKeyField, WrappedSigningKeyField} {
		blob, err := e.w.keys.Load(ctx, kv.Field(e.id, f))
		if err != nil {
			if errors.Match(errors.T(errors.RecordNotFound), err) {
				continue
			}
			return errors.Wrap(ctx, err, op)
		}
		k, err := e.w.openWith(ctx, e.id, oldKek, oldKp, blob, "")
		if err != nil {
			return errors.Wrap(ctx, err, op)
		}
		existing = append(existing, wrapped{field: f, key: k})
	}

	kek, kp, cfg, err := e.w.credentials(ctx, e.id, newPassword)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	defer kek.Destroy()
	keys := kv.NewBatch()
	for _, k := range existing {
		blob, err := e.w.sealWith(ctx, e.id, kek, kp, k.key)
		if err != nil {
			return errors.Wrap(ctx, err, op)
		}
		keys.Put(kv.Field(e.id, k.field), blob)
	}
	changes := []kv.Change{{Store: e.w.config, Batch: cfg}}
	if keys.Len() > 0 {
		changes = append(changes, kv.Change{Store: e.w.keys, Batch: keys})
	}
	if err := kv.Apply(ctx, changes, kv.WithLogger(e.w.logger)); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	e.w.remember(e.id, kek, kp)
	e.w.logger.Debug("password changed", "id", e.id, "rewrapped", len(existing))
	return nil
}
