// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package crypto

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/hashicorp/secretstorage/internal/errors"
)

type hmacMac struct {
	algorithm string
	hash      func() hash.Hash
}

func newHmac(algorithm string) *hmacMac {
	m := &hmacMac{algorithm: algorithm}
	switch algorithm {
	case HmacSha384:
		m.hash = sha512.New384
	default:
		m.hash = sha256.New
	}
	return m
}

func (m *hmacMac) Algorithm() string { return m.algorithm }

func (m *hmacMac) Sum(ctx context.Context, key *Key, data []byte) ([]byte, error) {
	const op = "crypto.(hmacMac).Sum"
	if key.Destroyed() {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing key")
	}
	h := hmac.New(m.hash, key.Material)
	h.Write(data)
	return h.Sum(nil), nil
}

func (m *hmacMac) Verify(ctx context.Context, key *Key, data, tag []byte) error {
	const op = "crypto.(hmacMac).Verify"
	want, err := m.Sum(ctx, key, data)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if !hmac.Equal(want, tag) {
		return errors.New(ctx, errors.VerificationFailed, op, "mac mismatch")
	}
	return nil
}
