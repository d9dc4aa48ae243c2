// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package protection composes one cipher and one integrity transformation
// into encrypt-then-authenticate and verify-then-decrypt.  The protected form
// of a payload is the framed pair [tag][params, ciphertext]; the tag covers
// the whole framed ciphertext so it can be checked without decrypting.
package protection

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/errors"
	"github.com/hashicorp/secretstorage/internal/keystore"
)

// cipherStrategy encrypts one axis of a Spec.  Encrypt returns the framed
// [params][ciphertext].
type cipherStrategy interface {
	encrypt(ctx context.Context, s *Strategy, key *crypto.Key, plaintext []byte) ([]byte, error)
	decrypt(ctx context.Context, s *Strategy, key *crypto.Key, framed []byte) ([]byte, error)
}

// integrityStrategy authenticates the other axis.
type integrityStrategy interface {
	sign(ctx context.Context, s *Strategy, key *crypto.Key, data []byte) ([]byte, error)
	verify(ctx context.Context, s *Strategy, key *crypto.Key, data, tag []byte) error
}

var ciphers = map[CipherKind]cipherStrategy{
	Symmetric:      softwareCipher{asymmetric: false},
	Asymmetric:     softwareCipher{asymmetric: true},
	HardwareCipher: hardwareCipher{},
}

var integrities = map[IntegrityKind]integrityStrategy{
	Mac:               macIntegrity{},
	Signature:         signatureIntegrity{},
	HardwareIntegrity: hardwareIntegrity{},
}

// Strategy protects payloads according to a Spec.
type Strategy struct {
	spec     Spec
	provider crypto.Provider
	keystore keystore.Capability
	logger   hclog.Logger
}

// NewStrategy validates spec and returns a Strategy for it.  Hardware kinds
// require WithKeystore.  Supported options: WithKeystore, WithLogger.
func NewStrategy(ctx context.Context, p crypto.Provider, spec Spec, opt ...Option) (*Strategy, error) {
	const op = "protection.NewStrategy"
	if p == nil {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing provider")
	}
	if err := spec.Validate(ctx); err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	opts := getOpts(opt...)
	if (spec.Cipher.Kind == HardwareCipher || spec.Integrity.Kind == HardwareIntegrity) && opts.withKeystore == nil {
		return nil, errors.New(ctx, errors.InvalidConfiguration, op, "hardware protection requires a keystore")
	}
	return &Strategy{
		spec:     spec,
		provider: p,
		keystore: opts.withKeystore,
		logger:   opts.withLogger.Named("protection"),
	}, nil
}

// Spec returns the spec the strategy was built with.
func (s *Strategy) Spec() Spec {
	return s.spec
}

// EncryptAndSign encrypts plaintext under encKey and authenticates the result
// with signKey.
func (s *Strategy) EncryptAndSign(ctx context.Context, encKey, signKey *crypto.Key, plaintext []byte) ([]byte, error) {
	const op = "protection.(Strategy).EncryptAndSign"
	framed, err := ciphers[s.spec.Cipher.Kind].encrypt(ctx, s, encKey, plaintext)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	tag, err := integrities[s.spec.Integrity.Kind].sign(ctx, s, signKey, framed)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return crypto.Join(tag, framed), nil
}

// VerifyAndDecrypt checks the tag with verifyKey and only then decrypts with
// decKey.  A blob that fails verification is never decrypted.
func (s *Strategy) VerifyAndDecrypt(ctx context.Context, decKey, verifyKey *crypto.Key, blob []byte) ([]byte, error) {
	const op = "protection.(Strategy).VerifyAndDecrypt"
	tag, framed, err := crypto.Split(ctx, blob)
	if err != nil {
		return nil, tampered(ctx, err, op)
	}
	if err := integrities[s.spec.Integrity.Kind].verify(ctx, s, verifyKey, framed, tag); err != nil {
		return nil, tampered(ctx, err, op)
	}
	pt, err := ciphers[s.spec.Cipher.Kind].decrypt(ctx, s, decKey, framed)
	if err != nil {
		return nil, tampered(ctx, err, op)
	}
	return pt, nil
}

// tampered reports framing damage in a stored blob as an integrity failure.
func tampered(ctx context.Context, err error, op errors.Op) error {
	if errors.IsFormatError(err) {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.IntegrityCheck))
	}
	return errors.Wrap(ctx, err, op)
}

// GenerateEncryptionKey creates a new key for the cipher axis.
func (s *Strategy) GenerateEncryptionKey(ctx context.Context) (*crypto.Key, error) {
	const op = "protection.(Strategy).GenerateEncryptionKey"
	if s.spec.Cipher.Kind == HardwareCipher {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "hardware keys are generated by the keystore")
	}
	k, err := s.generate(ctx, s.spec.EncryptionKey)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return k, nil
}

// GenerateSigningKey creates a new key for the integrity axis.
func (s *Strategy) GenerateSigningKey(ctx context.Context) (*crypto.Key, error) {
	const op = "protection.(Strategy).GenerateSigningKey"
	if s.spec.Integrity.Kind == HardwareIntegrity {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "hardware keys are generated by the keystore")
	}
	k, err := s.generate(ctx, s.spec.SigningKey)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return k, nil
}

func (s *Strategy) generate(ctx context.Context, spec KeyGenSpec) (*crypto.Key, error) {
	const op = "protection.(Strategy).generate"
	g, err := s.provider.KeyGenerator(ctx, spec.Algorithm)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return g.Generate(ctx, spec.Size)
}

type softwareCipher struct {
	asymmetric bool
}

func (c softwareCipher) resolve(ctx context.Context, op errors.Op, s *Strategy) (crypto.Cipher, error) {
	ci, err := s.provider.Cipher(ctx, s.spec.Cipher.Transformation)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	if ci.Asymmetric() != c.asymmetric {
		return nil, errors.New(ctx, errors.InvalidConfiguration, op,
			fmt.Sprintf("%s is not a %s cipher", s.spec.Cipher.Transformation, s.spec.Cipher.Kind))
	}
	return ci, nil
}

func (c softwareCipher) encrypt(ctx context.Context, s *Strategy, key *crypto.Key, plaintext []byte) ([]byte, error) {
	const op = "protection.(softwareCipher).encrypt"
	ci, err := c.resolve(ctx, op, s)
	if err != nil {
		return nil, err
	}
	params, ct, err := ci.Encrypt(ctx, key, plaintext)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return crypto.Join(params, ct), nil
}

func (c softwareCipher) decrypt(ctx context.Context, s *Strategy, key *crypto.Key, framed []byte) ([]byte, error) {
	const op = "protection.(softwareCipher).decrypt"
	ci, err := c.resolve(ctx, op, s)
	if err != nil {
		return nil, err
	}
	params, ct, err := crypto.Split(ctx, framed)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	pt, err := ci.Decrypt(ctx, key, params, ct)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return pt, nil
}

type hardwareCipher struct{}

func (hardwareCipher) encrypt(ctx context.Context, s *Strategy, key *crypto.Key, plaintext []byte) ([]byte, error) {
	const op = "protection.(hardwareCipher).encrypt"
	if err := checkAlias(ctx, op, key); err != nil {
		return nil, err
	}
	ct, err := s.keystore.Encrypt(ctx, key.Alias, plaintext)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return crypto.Join(nil, ct), nil
}

func (hardwareCipher) decrypt(ctx context.Context, s *Strategy, key *crypto.Key, framed []byte) ([]byte, error) {
	const op = "protection.(hardwareCipher).decrypt"
	if err := checkAlias(ctx, op, key); err != nil {
		return nil, err
	}
	params, ct, err := crypto.Split(ctx, framed)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	if len(params) != 0 {
		return nil, errors.New(ctx, errors.Format, op, "unexpected parameters")
	}
	pt, err := s.keystore.Decrypt(ctx, key.Alias, ct)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return pt, nil
}

type macIntegrity struct{}

func (macIntegrity) sign(ctx context.Context, s *Strategy, key *crypto.Key, data []byte) ([]byte, error) {
	const op = "protection.(macIntegrity).sign"
	m, err := s.provider.Mac(ctx, s.spec.Integrity.Algorithm)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	tag, err := m.Sum(ctx, key, data)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return tag, nil
}

func (i macIntegrity) verify(ctx context.Context, s *Strategy, key *crypto.Key, data, tag []byte) error {
	const op = "protection.(macIntegrity).verify"
	want, err := i.sign(ctx, s, key, data)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if subtle.ConstantTimeCompare(want, tag) != 1 {
		return errors.New(ctx, errors.VerificationFailed, op, "mac mismatch")
	}
	return nil
}

type signatureIntegrity struct{}

func (signatureIntegrity) sign(ctx context.Context, s *Strategy, key *crypto.Key, data []byte) ([]byte, error) {
	const op = "protection.(signatureIntegrity).sign"
	signer, err := s.provider.Signature(ctx, s.spec.Integrity.Algorithm)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	sig, err := signer.Sign(ctx, key, data)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return sig, nil
}

func (signatureIntegrity) verify(ctx context.Context, s *Strategy, key *crypto.Key, data, sig []byte) error {
	const op = "protection.(signatureIntegrity).verify"
	signer, err := s.provider.Signature(ctx, s.spec.Integrity.Algorithm)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if err := signer.Verify(ctx, key, data, sig); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	return nil
}

type hardwareIntegrity struct{}

func (hardwareIntegrity) sign(ctx context.Context, s *Strategy, key *crypto.Key, data []byte) ([]byte, error) {
	const op = "protection.(hardwareIntegrity).sign"
	if err := checkAlias(ctx, op, key); err != nil {
		return nil, err
	}
	sig, err := s.keystore.Sign(ctx, key.Alias, data)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return sig, nil
}

func (hardwareIntegrity) verify(ctx context.Context, s *Strategy, key *crypto.Key, data, sig []byte) error {
	const op = "protection.(hardwareIntegrity).verify"
	if err := checkAlias(ctx, op, key); err != nil {
		return err
	}
	if err := s.keystore.Verify(ctx, key.Alias, data, sig); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	return nil
}

func checkAlias(ctx context.Context, op errors.Op, key *crypto.Key) error {
	if key == nil || key.Alias == "" {
		return errors.New(ctx, errors.InvalidParameter, op, "hardware protection requires a keystore alias")
	}
	return nil
}
