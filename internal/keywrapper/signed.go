// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package keywrapper

import (
	"context"

	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/errors"
	"github.com/hashicorp/secretstorage/internal/kdf"
	"github.com/hashicorp/secretstorage/internal/keystore"
	"github.com/hashicorp/secretstorage/internal/kv"
	"github.com/hashicorp/secretstorage/internal/protection"
)

// SignedPasswordWrapper is a PasswordWrapper bound to a device.  A keystore
// key stored under "<id>::DEVICE_BINDING" signs the verification tag and
// encrypts every wrapped key again, so both the password and the device are
// needed to recover data keys.
type SignedPasswordWrapper struct {
	*PasswordWrapper
}

var _ Wrapper = (*SignedPasswordWrapper)(nil)

// DefaultSignedPasswordConfig doubles the derivation rounds of the default
// password config.
func DefaultSignedPasswordConfig() PasswordConfig {
	return PasswordConfig{
		Derivation: kdf.DefaultParams(kdf.SignedPasswordRounds),
		KeyWrap:    protection.AesGcmCipher(),
	}
}

// NewSignedPasswordWrapper creates a SignedPasswordWrapper.  The device key
// is generated when the password is first set.  Supported options:
// WithLogger, WithDeriver, WithPresenceRequired.
func NewSignedPasswordWrapper(ctx context.Context, p crypto.Provider, ks keystore.Capability, cfg PasswordConfig, config, keys kv.Store, opt ...Option) (*SignedPasswordWrapper, error) {
	const op = "keywrapper.NewSignedPasswordWrapper"
	if ks == nil {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing keystore")
	}
	opts := getOpts(opt...)
	d := &deviceBinding{ks: ks, presenceRequired: opts.withPresenceRequired}
	w, err := newPasswordWrapper(ctx, op, "signed-password", p, cfg, config, keys, d, opt...)
	if err != nil {
		return nil, err
	}
	return &SignedPasswordWrapper{PasswordWrapper: w}, nil
}

// deviceBinding ties password protected state to a keystore key.
type deviceBinding struct {
	ks               keystore.Capability
	presenceRequired bool
}

func (d *deviceBinding) alias(id string) string {
	return kv.Field(id, DeviceBindingField)
}

func (d *deviceBinding) setup(ctx context.Context, id string) error {
	const op = "keywrapper.(deviceBinding).setup"
	if err := d.ks.GenerateKey(ctx, d.alias(id), keystore.WithPresenceRequired(d.presenceRequired)); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	return nil
}

func (d *deviceBinding) erase(ctx context.Context, id string) error {
	const op = "keywrapper.(deviceBinding).erase"
	if err := d.ks.DeleteKey(ctx, d.alias(id)); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	return nil
}

// sign replaces the raw verification tag with its device signature.  A
// missing device key makes every password check fail.
func (d *deviceBinding) sign(ctx context.Context, id string, tag []byte) ([]byte, error) {
	const op = "keywrapper.(deviceBinding).sign"
	sig, err := d.ks.Sign(ctx, d.alias(id), tag)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return sig, nil
}

func (d *deviceBinding) seal(ctx context.Context, id string, blob []byte) ([]byte, error) {
	const op = "keywrapper.(deviceBinding).seal"
	ct, err := d.ks.Encrypt(ctx, d.alias(id), blob)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.KeyWrap))
	}
	return ct, nil
}

func (d *deviceBinding) open(ctx context.Context, id string, blob []byte) ([]byte, error) {
	const op = "keywrapper.(deviceBinding).open"
	pt, err := d.ks.Decrypt(ctx, d.alias(id), blob)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return pt, nil
}
