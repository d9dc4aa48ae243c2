// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package crypto

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"io"
	"slices"

	"github.com/hashicorp/secretstorage/internal/errors"
)

type symmetricGenerator struct {
	algorithm string
	rand      io.Reader
	// sizes restricts the accepted sizes when non-empty.
	sizes []int
}

func (g *symmetricGenerator) Algorithm() string { return g.algorithm }

func (g *symmetricGenerator) Generate(ctx context.Context, size int) (*Key, error) {
	const op = "crypto.(symmetricGenerator).Generate"
	if size <= 0 || size%8 != 0 || (len(g.sizes) > 0 && !slices.Contains(g.sizes, size)) {
		return nil, errors.New(ctx, errors.InvalidParameter, op, fmt.Sprintf("unsupported %s key size %d", g.algorithm, size))
	}
	b, err := randomBytes(g.rand, size/8)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Internal))
	}
	k := &Key{Algorithm: g.algorithm, Material: b}
	return k, nil
}

type rsaGenerator struct {
	rand io.Reader
}

func (*rsaGenerator) Algorithm() string { return RsaAlgorithm }

func (g *rsaGenerator) Generate(ctx context.Context, size int) (*Key, error) {
	const op = "crypto.(rsaGenerator).Generate"
	if size < 2048 {
		return nil, errors.New(ctx, errors.InvalidParameter, op, fmt.Sprintf("rsa key size %d is below 2048", size))
	}
	priv, err := rsa.GenerateKey(g.rand, size)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Internal))
	}
	return marshalPrivate(ctx, op, RsaAlgorithm, priv)
}

type ecGenerator struct {
	rand io.Reader
}

func (*ecGenerator) Algorithm() string { return EcAlgorithm }

func (g *ecGenerator) Generate(ctx context.Context, size int) (*Key, error) {
	const op = "crypto.(ecGenerator).Generate"
	var curve elliptic.Curve
	switch size {
	case 256:
		curve = elliptic.P256()
	case 384:
		curve = elliptic.P384()
	case 521:
		curve = elliptic.P521()
	default:
		return nil, errors.New(ctx, errors.InvalidParameter, op, fmt.Sprintf("unsupported curve size %d", size))
	}
	priv, err := ecdsa.GenerateKey(curve, g.rand)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Internal))
	}
	return marshalPrivate(ctx, op, EcAlgorithm, priv)
}

type ed25519Generator struct {
	rand io.Reader
}

func (*ed25519Generator) Algorithm() string { return Ed25519Algorithm }

func (g *ed25519Generator) Generate(ctx context.Context, size int) (*Key, error) {
	const op = "crypto.(ed25519Generator).Generate"
	if size != 0 && size != 256 {
		return nil, errors.New(ctx, errors.InvalidParameter, op, fmt.Sprintf("unsupported ed25519 key size %d", size))
	}
	_, priv, err := ed25519.GenerateKey(g.rand)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Internal))
	}
	return marshalPrivate(ctx, op, Ed25519Algorithm, priv)
}

func marshalPrivate(ctx context.Context, op errors.Op, algorithm string, priv any) (*Key, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Encoding))
	}
	return &Key{Algorithm: algorithm, Material: der}, nil
}
