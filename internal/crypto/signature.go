// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package crypto

import (
	"context"
	stdcrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"fmt"
	"io"

	"github.com/hashicorp/secretstorage/internal/errors"
)

type rsaPkcs1 struct {
	rand io.Reader
}

func (*rsaPkcs1) Algorithm() string { return Sha256WithRsa }

func (s *rsaPkcs1) Sign(ctx context.Context, key *Key, data []byte) ([]byte, error) {
	const op = "crypto.(rsaPkcs1).Sign"
	priv, err := parseRsa(ctx, key)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(s.rand, priv, stdcrypto.SHA256, digest[:])
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Sign))
	}
	return sig, nil
}

func (s *rsaPkcs1) Verify(ctx context.Context, key *Key, data, sig []byte) error {
	const op = "crypto.(rsaPkcs1).Verify"
	priv, err := parseRsa(ctx, key)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	digest := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(&priv.PublicKey, stdcrypto.SHA256, digest[:], sig); err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.VerificationFailed))
	}
	return nil
}

type ecdsaSigner struct {
	rand io.Reader
}

func (*ecdsaSigner) Algorithm() string { return Sha384WithEcdsa }

func (s *ecdsaSigner) Sign(ctx context.Context, key *Key, data []byte) ([]byte, error) {
	const op = "crypto.(ecdsaSigner).Sign"
	priv, err := parseEc(ctx, key)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	digest := sha512.Sum384(data)
	sig, err := ecdsa.SignASN1(s.rand, priv, digest[:])
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Sign))
	}
	return sig, nil
}

func (s *ecdsaSigner) Verify(ctx context.Context, key *Key, data, sig []byte) error {
	const op = "crypto.(ecdsaSigner).Verify"
	priv, err := parseEc(ctx, key)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	digest := sha512.Sum384(data)
	if !ecdsa.VerifyASN1(&priv.PublicKey, digest[:], sig) {
		return errors.New(ctx, errors.VerificationFailed, op, "signature mismatch")
	}
	return nil
}

type ed25519Signer struct{}

func (*ed25519Signer) Algorithm() string { return Ed25519Signature }

func (s *ed25519Signer) Sign(ctx context.Context, key *Key, data []byte) ([]byte, error) {
	const op = "crypto.(ed25519Signer).Sign"
	priv, err := parseEd25519(ctx, key)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return ed25519.Sign(priv, data), nil
}

func (s *ed25519Signer) Verify(ctx context.Context, key *Key, data, sig []byte) error {
	const op = "crypto.(ed25519Signer).Verify"
	priv, err := parseEd25519(ctx, key)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if !ed25519.Verify(priv.Public().(ed25519.PublicKey), data, sig) {
		return errors.New(ctx, errors.VerificationFailed, op, "signature mismatch")
	}
	return nil
}

func parsePrivate(ctx context.Context, key *Key) (any, error) {
	const op = "crypto.parsePrivate"
	if key.Destroyed() {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing key")
	}
	k, err := x509.ParsePKCS8PrivateKey(key.Material)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Encoding))
	}
	return k, nil
}

func parseRsa(ctx context.Context, key *Key) (*rsa.PrivateKey, error) {
	const op = "crypto.parseRsa"
	k, err := parsePrivate(ctx, key)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	priv, ok := k.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New(ctx, errors.InvalidParameter, op, fmt.Sprintf("expected an RSA key, got %T", k))
	}
	return priv, nil
}

func parseEc(ctx context.Context, key *Key) (*ecdsa.PrivateKey, error) {
	const op = "crypto.parseEc"
	k, err := parsePrivate(ctx, key)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	priv, ok := k.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New(ctx, errors.InvalidParameter, op, fmt.Sprintf("expected an EC key, got %T", k))
	}
	return priv, nil
}

func parseEd25519(ctx context.Context, key *Key) (ed25519.PrivateKey, error) {
	const op = "crypto.parseEd25519"
	k, err := parsePrivate(ctx, key)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	priv, ok := k.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New(ctx, errors.InvalidParameter, op, fmt.Sprintf("expected an Ed25519 key, got %T", k))
	}
	return priv, nil
}
