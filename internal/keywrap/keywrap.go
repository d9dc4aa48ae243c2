// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package keywrap protects a data key under a key encryption key.  A wrapped
// key is the framed pair [params][wrapped-key] where params holds whatever
// the cipher generated for the call (a nonce or IV) and may be empty.
package keywrap

import (
	"context"
	"fmt"

	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/errors"
)

// Wrap encrypts key under kek with the named transformation.  Only
// transformations that detect tampering and the wrong key are accepted.
func Wrap(ctx context.Context, p crypto.Provider, kek, key *crypto.Key, transformation string) ([]byte, error) {
	const op = "keywrap.Wrap"
	c, err := wrapCipher(ctx, op, p, kek, transformation)
	if err != nil {
		return nil, err
	}
	if key.Destroyed() {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing key to wrap")
	}
	params, wrapped, err := c.Encrypt(ctx, kek, key.Material)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.KeyWrap))
	}
	return crypto.Join(params, wrapped), nil
}

// Unwrap recovers a key of the given algorithm from blob.  A blob that cannot
// be split is a format error; every other failure is a security error and no
// key material is returned.
func Unwrap(ctx context.Context, p crypto.Provider, kek *crypto.Key, blob []byte, transformation, keyAlgorithm string) (*crypto.Key, error) {
	const op = "keywrap.Unwrap"
	c, err := wrapCipher(ctx, op, p, kek, transformation)
	if err != nil {
		return nil, err
	}
	params, wrapped, err := crypto.Split(ctx, blob)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	material, err := c.Decrypt(ctx, kek, params, wrapped)
	if err != nil {
		if errors.IsFormatError(err) {
			return nil, errors.Wrap(ctx, err, op)
		}
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.KeyUnwrap))
	}
	if len(material) == 0 {
		return nil, errors.New(ctx, errors.KeyUnwrap, op, "unwrapped an empty key")
	}
	return &crypto.Key{Algorithm: keyAlgorithm, Material: material}, nil
}

func wrapCipher(ctx context.Context, op errors.Op, p crypto.Provider, kek *crypto.Key, transformation string) (crypto.Cipher, error) {
	switch {
	case p == nil:
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing provider")
	case kek.Destroyed():
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing key encryption key")
	}
	c, err := p.Cipher(ctx, transformation)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	if !c.Authenticated() {
		return nil, errors.New(ctx, errors.InvalidParameter, op, fmt.Sprintf("%s does not authenticate and cannot wrap keys", transformation))
	}
	return c, nil
}
