// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package kdf turns a password and a per-identity salt into key encryption
// key material.  Derivation is a pure function of its inputs.
package kdf

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-secure-stdlib/permitpool"
	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// Supported derivation algorithms.
const (
	Pbkdf2HmacSha1   = "PBKDF2WithHmacSHA1"
	Pbkdf2HmacSha256 = "PBKDF2WithHmacSHA256"
	Argon2id         = "Argon2id"
)

// Reference iteration counts.
const (
	PasswordRounds       = 4096
	SignedPasswordRounds = 8192
)

// Params selects a derivation algorithm and its cost.  KeyLength and
// SaltLength are in bytes.  Memory (KiB) and Threads apply to Argon2id only;
// Iterations is the PBKDF2 round count or the Argon2id time cost.
type Params struct {
	Algorithm  string
	Iterations int
	KeyLength  int
	SaltLength int
	Memory     uint32
	Threads    uint8
}

// DefaultParams returns PBKDF2WithHmacSHA1 parameters for a 256 bit key with
// the given round count.
func DefaultParams(rounds int) Params {
	return Params{
		Algorithm:  Pbkdf2HmacSha1,
		Iterations: rounds,
		KeyLength:  32,
		SaltLength: 32,
	}
}

// Argon2idParams returns the RFC 9106 second recommended Argon2id parameters.
func Argon2idParams() Params {
	return Params{
		Algorithm:  Argon2id,
		Iterations: 3,
		KeyLength:  32,
		SaltLength: 16,
		Memory:     64 * 1024,
		Threads:    4,
	}
}

// Validate reports whether the parameters can be used for derivation.
func (p Params) Validate(ctx context.Context) error {
	const op = "kdf.(Params).Validate"
	switch {
	case p.Iterations <= 0:
		return errors.New(ctx, errors.InvalidParameter, op, "iterations must be positive")
	case p.KeyLength < 16:
		return errors.New(ctx, errors.InvalidParameter, op, "key length must be at least 16 bytes")
	case p.SaltLength < 8:
		return errors.New(ctx, errors.InvalidParameter, op, "salt length must be at least 8 bytes")
	}
	switch p.Algorithm {
	case Pbkdf2HmacSha1, Pbkdf2HmacSha256:
	case Argon2id:
		if p.Memory == 0 || p.Threads == 0 {
			return errors.New(ctx, errors.InvalidParameter, op, "argon2id requires memory and threads")
		}
	default:
		return errors.New(ctx, errors.InvalidParameter, op, fmt.Sprintf("unsupported algorithm %q", p.Algorithm))
	}
	return nil
}

// Deriver performs derivations, bounding how many run at once.
type Deriver struct {
	pool   *permitpool.Pool
	logger hclog.Logger
}

// NewDeriver creates a Deriver.  Supported options: WithMaxConcurrent,
// WithLogger.
func NewDeriver(opt ...Option) *Deriver {
	opts := getOpts(opt...)
	return &Deriver{
		pool:   permitpool.New(opts.withMaxConcurrent),
		logger: opts.withLogger.Named("kdf"),
	}
}

// Salt returns fresh random salt of the configured length.
func (d *Deriver) Salt(ctx context.Context, p crypto.Provider, params Params) ([]byte, error) {
	const op = "kdf.(Deriver).Salt"
	if p == nil {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing provider")
	}
	if err := params.Validate(ctx); err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	salt, err := p.RandomBytes(ctx, params.SaltLength)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return salt, nil
}

// Derive returns the key derived from password and salt.  The same inputs
// always yield the same key.  The caller owns the returned key.
func (d *Deriver) Derive(ctx context.Context, password []byte, salt []byte, params Params) (*crypto.Key, error) {
	const op = "kdf.(Deriver).Derive"
	if len(password) == 0 {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing password")
	}
	if len(salt) == 0 {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing salt")
	}
	if err := params.Validate(ctx); err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	if err := d.pool.Acquire(ctx); err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Internal))
	}
	defer d.pool.Release()

	d.logger.Trace("deriving key", "algorithm", params.Algorithm, "iterations", params.Iterations)
	var material []byte
	switch params.Algorithm {
	case Pbkdf2HmacSha1:
		material = pbkdf2.Key(password, salt, params.Iterations, params.KeyLength, sha1.New)
	case Pbkdf2HmacSha256:
		material = pbkdf2.Key(password, salt, params.Iterations, params.KeyLength, sha256.New)
	case Argon2id:
		material = argon2.IDKey(password, salt, uint32(params.Iterations), params.Memory, params.Threads, uint32(params.KeyLength))
	}
	return &crypto.Key{Algorithm: crypto.AesAlgorithm, Material: material}, nil
}
