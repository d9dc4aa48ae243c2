// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package crypto is the crypto provider used by every other package.  Cipher,
// MAC, signature and key generation transformations are looked up by name so
// strategies never hardcode a primitive, and tests can register
// deterministic substitutes.
package crypto

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-uuid"
	"github.com/hashicorp/secretstorage/internal/errors"
)

// Transformation names understood by the default registry.
const (
	AesGcmNoPadding     = "AES/GCM/NoPadding"
	AesWrap             = "AESWrap"
	AesCbcPkcs5Padding  = "AES/CBC/PKCS5Padding"
	XChaCha20Poly1305   = "XChaCha20-Poly1305"
	RsaOaepSha256       = "RSA/ECB/OAEPWithSHA-256AndMGF1Padding"
	HmacSha256          = "HmacSHA256"
	HmacSha384          = "HmacSHA384"
	Sha256WithRsa       = "SHA256withRSA"
	Sha384WithEcdsa     = "SHA384withECDSA"
	Ed25519Signature    = "Ed25519"
	AesAlgorithm        = "AES"
	RsaAlgorithm        = "RSA"
	EcAlgorithm         = "EC"
	Ed25519Algorithm    = "Ed25519"
	XChaCha20Algorithm  = "XChaCha20"
	HmacSha256Algorithm = HmacSha256
	HmacSha384Algorithm = HmacSha384
)

// Cipher encrypts and decrypts with a named transformation.  Params holds the
// per call algorithm parameters (nonce or IV); it is empty for
// transformations that need none.
type Cipher interface {
	Transformation() string
	// Authenticated reports whether Decrypt detects a modified ciphertext or
	// the wrong key.
	Authenticated() bool
	// Asymmetric reports whether Encrypt uses the public half of the key.
	Asymmetric() bool
	Encrypt(ctx context.Context, key *Key, plaintext []byte) (params, ciphertext []byte, err error)
	Decrypt(ctx context.Context, key *Key, params, ciphertext []byte) ([]byte, error)
}

// Mac computes and checks symmetric authentication tags.
type Mac interface {
	Algorithm() string
	Sum(ctx context.Context, key *Key, data []byte) ([]byte, error)
	Verify(ctx context.Context, key *Key, data, tag []byte) error
}

// Signer computes and checks asymmetric signatures.
type Signer interface {
	Algorithm() string
	Sign(ctx context.Context, key *Key, data []byte) ([]byte, error)
	Verify(ctx context.Context, key *Key, data, sig []byte) error
}

// KeyGenerator creates new keys of one algorithm.  Size is in bits.
type KeyGenerator interface {
	Algorithm() string
	Generate(ctx context.Context, size int) (*Key, error)
}

// Provider resolves transformations by name.
type Provider interface {
	Cipher(ctx context.Context, transformation string) (Cipher, error)
	Mac(ctx context.Context, algorithm string) (Mac, error)
	Signature(ctx context.Context, algorithm string) (Signer, error)
	KeyGenerator(ctx context.Context, algorithm string) (KeyGenerator, error)
	RandomBytes(ctx context.Context, n int) ([]byte, error)
}

// Registry is the default Provider.
type Registry struct {
	mu         sync.RWMutex
	rand       io.Reader
	logger     hclog.Logger
	ciphers    map[string]Cipher
	macs       map[string]Mac
	signers    map[string]Signer
	generators map[string]KeyGenerator
}

var _ Provider = (*Registry)(nil)

// NewRegistry returns a Registry populated with the standard library backed
// transformations, unless WithoutDefaults is given.  Supported options:
// WithRandomReader, WithLogger, WithoutDefaults.
func NewRegistry(opt ...Option) *Registry {
	opts := getOpts(opt...)
	r := &Registry{
		rand:       opts.withRandomReader,
		logger:     opts.withLogger.Named("crypto"),
		ciphers:    map[string]Cipher{},
		macs:       map[string]Mac{},
		signers:    map[string]Signer{},
		generators: map[string]KeyGenerator{},
	}
	if opts.withoutDefaults {
		return r
	}
	for _, c := range []Cipher{
		&aesGcm{rand: r.rand},
		&aesKeyWrap{},
		&aesCbc{rand: r.rand},
		&xchacha{rand: r.rand},
		&rsaOaep{rand: r.rand},
	} {
		r.RegisterCipher(c)
	}
	r.RegisterMac(newHmac(HmacSha256))
	r.RegisterMac(newHmac(HmacSha384))
	r.RegisterSignature(&rsaPkcs1{rand: r.rand})
	r.RegisterSignature(&ecdsaSigner{rand: r.rand})
	r.RegisterSignature(&ed25519Signer{})
	for _, g := range []KeyGenerator{
		&symmetricGenerator{algorithm: AesAlgorithm, rand: r.rand, sizes: []int{128, 192, 256}},
		&symmetricGenerator{algorithm: XChaCha20Algorithm, rand: r.rand, sizes: []int{256}},
		&symmetricGenerator{algorithm: HmacSha256Algorithm, rand: r.rand},
		&symmetricGenerator{algorithm: HmacSha384Algorithm, rand: r.rand},
		&rsaGenerator{rand: r.rand},
		&ecGenerator{rand: r.rand},
		&ed25519Generator{rand: r.rand},
	} {
		r.RegisterKeyGenerator(g)
	}
	return r
}

// RegisterCipher adds or replaces a cipher transformation.
func (r *Registry) RegisterCipher(c Cipher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ciphers[c.Transformation()] = c
}

// RegisterMac adds or replaces a MAC algorithm.
func (r *Registry) RegisterMac(m Mac) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.macs[m.Algorithm()] = m
}

// RegisterSignature adds or replaces a signature algorithm.
func (r *Registry) RegisterSignature(s Signer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signers[s.Algorithm()] = s
}

// RegisterKeyGenerator adds or replaces a key generation algorithm.
func (r *Registry) RegisterKeyGenerator(g KeyGenerator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[g.Algorithm()] = g
}

// Cipher implements Provider.
func (r *Registry) Cipher(ctx context.Context, transformation string) (Cipher, error) {
	const op = "crypto.(Registry).Cipher"
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.ciphers[transformation]
	if !ok {
		return nil, unsupported(ctx, op, "cipher transformation", transformation, r.ciphers)
	}
	return c, nil
}

// Mac implements Provider.
func (r *Registry) Mac(ctx context.Context, algorithm string) (Mac, error) {
	const op = "crypto.(Registry).Mac"
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.macs[algorithm]
	if !ok {
		return nil, unsupported(ctx, op, "mac algorithm", algorithm, r.macs)
	}
	return m, nil
}

// Signature implements Provider.
func (r *Registry) Signature(ctx context.Context, algorithm string) (Signer, error) {
	const op = "crypto.(Registry).Signature"
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.signers[algorithm]
	if !ok {
		return nil, unsupported(ctx, op, "signature algorithm", algorithm, r.signers)
	}
	return s, nil
}

// KeyGenerator implements Provider.
func (r *Registry) KeyGenerator(ctx context.Context, algorithm string) (KeyGenerator, error) {
	const op = "crypto.(Registry).KeyGenerator"
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generators[algorithm]
	if !ok {
		return nil, unsupported(ctx, op, "key algorithm", algorithm, r.generators)
	}
	return g, nil
}

// RandomBytes implements Provider.
func (r *Registry) RandomBytes(ctx context.Context, n int) ([]byte, error) {
	const op = "crypto.(Registry).RandomBytes"
	b, err := randomBytes(r.rand, n)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Internal))
	}
	return b, nil
}

func randomBytes(r io.Reader, n int) ([]byte, error) {
	if n <= 0 {
		return []byte{}, nil
	}
	return uuid.GenerateRandomBytesWithReader(n, r)
}

func unsupported[T any](ctx context.Context, op errors.Op, what, name string, known map[string]T) error {
	names := make([]string, 0, len(known))
	for n := range known {
		names = append(names, n)
	}
	sort.Strings(names)
	return errors.New(ctx, errors.InvalidParameter, op, fmt.Sprintf("unsupported %s %q (known: %v)", what, name, names))
}
