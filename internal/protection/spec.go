// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package protection

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/errors"
)

// CipherKind selects how a cipher spec encrypts.
type CipherKind int

const (
	UnknownCipher CipherKind = iota
	// Symmetric ciphers use a generated secret key.
	Symmetric
	// Asymmetric ciphers encrypt with the public half of a key pair.
	Asymmetric
	// HardwareCipher delegates to a keystore key addressed by alias.
	HardwareCipher
)

func (k CipherKind) String() string {
	switch k {
	case Symmetric:
		return "symmetric"
	case Asymmetric:
		return "asymmetric"
	case HardwareCipher:
		return "hardware"
	default:
		return "unknown"
	}
}

// IntegrityKind selects how an integrity spec authenticates.
type IntegrityKind int

const (
	UnknownIntegrity IntegrityKind = iota
	// Mac tags with a shared symmetric key.
	Mac
	// Signature signs with the private half of a key pair.
	Signature
	// HardwareIntegrity signs with a keystore key addressed by alias.
	HardwareIntegrity
)

func (k IntegrityKind) String() string {
	switch k {
	case Mac:
		return "mac"
	case Signature:
		return "signature"
	case HardwareIntegrity:
		return "hardware"
	default:
		return "unknown"
	}
}

// KeyGenSpec describes how a key is generated.  Size is in bits.
type KeyGenSpec struct {
	Algorithm string
	Size      int
	// PresenceRequired gates keystore generated keys behind a presence check.
	PresenceRequired bool
}

// CipherSpec names a cipher transformation.  Hardware ciphers have no
// transformation; the keystore decides.
type CipherSpec struct {
	Kind           CipherKind
	Transformation string
}

// IntegritySpec names a MAC or signature algorithm.
type IntegritySpec struct {
	Kind      IntegrityKind
	Algorithm string
}

// Spec declares how a payload is protected: which cipher and integrity
// transformations are used and how their keys are generated.
type Spec struct {
	Cipher        CipherSpec
	Integrity     IntegritySpec
	EncryptionKey KeyGenSpec
	SigningKey    KeyGenSpec
}

// Validate reports every problem with the spec at once.
func (s Spec) Validate(ctx context.Context) error {
	const op = "protection.(Spec).Validate"
	var merr *multierror.Error
	if _, ok := ciphers[s.Cipher.Kind]; !ok {
		merr = multierror.Append(merr, fmt.Errorf("unknown cipher kind %d", s.Cipher.Kind))
	}
	if s.Cipher.Kind != HardwareCipher {
		if s.Cipher.Transformation == "" {
			merr = multierror.Append(merr, fmt.Errorf("missing cipher transformation"))
		}
		if s.EncryptionKey.Algorithm == "" {
			merr = multierror.Append(merr, fmt.Errorf("missing encryption key algorithm"))
		}
	}
	if _, ok := integrities[s.Integrity.Kind]; !ok {
		merr = multierror.Append(merr, fmt.Errorf("unknown integrity kind %d", s.Integrity.Kind))
	}
	if s.Integrity.Kind != HardwareIntegrity {
		if s.Integrity.Algorithm == "" {
			merr = multierror.Append(merr, fmt.Errorf("missing integrity algorithm"))
		}
		if s.SigningKey.Algorithm == "" {
			merr = multierror.Append(merr, fmt.Errorf("missing signing key algorithm"))
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidConfiguration))
	}
	return nil
}

// Default specs.

// Aes128KeyGen is a 128 bit AES key.
func Aes128KeyGen() KeyGenSpec { return KeyGenSpec{Algorithm: crypto.AesAlgorithm, Size: 128} }

// Aes256KeyGen is a 256 bit AES key.
func Aes256KeyGen() KeyGenSpec { return KeyGenSpec{Algorithm: crypto.AesAlgorithm, Size: 256} }

// Rsa2048KeyGen is a 2048 bit RSA key pair.
func Rsa2048KeyGen() KeyGenSpec { return KeyGenSpec{Algorithm: crypto.RsaAlgorithm, Size: 2048} }

// Ec384KeyGen is a P-384 key pair.
func Ec384KeyGen() KeyGenSpec { return KeyGenSpec{Algorithm: crypto.EcAlgorithm, Size: 384} }

// KeystoreAes256KeyGen is a keystore held AES-256 key.
func KeystoreAes256KeyGen() KeyGenSpec {
	return KeyGenSpec{Algorithm: crypto.KeystoreAlgorithm, Size: 256}
}

// PresenceKeystoreAes256KeyGen is a keystore held AES-256 key usable only
// after a presence check.
func PresenceKeystoreAes256KeyGen() KeyGenSpec {
	return KeyGenSpec{Algorithm: crypto.KeystoreAlgorithm, Size: 256, PresenceRequired: true}
}

// AesGcmCipher is AES in GCM mode with a random 12 byte nonce.
func AesGcmCipher() CipherSpec {
	return CipherSpec{Kind: Symmetric, Transformation: crypto.AesGcmNoPadding}
}

// AesCbcPkcs5Cipher is AES-CBC with PKCS#5 padding.  It is unauthenticated
// and must be paired with an integrity spec.
func AesCbcPkcs5Cipher() CipherSpec {
	return CipherSpec{Kind: Symmetric, Transformation: crypto.AesCbcPkcs5Padding}
}

// AesWrapCipher is the RFC 3394 AES key wrap.
func AesWrapCipher() CipherSpec {
	return CipherSpec{Kind: Symmetric, Transformation: crypto.AesWrap}
}

// XChaCha20Poly1305Cipher is XChaCha20-Poly1305 with a random 24 byte nonce.
func XChaCha20Poly1305Cipher() CipherSpec {
	return CipherSpec{Kind: Symmetric, Transformation: crypto.XChaCha20Poly1305}
}

// RsaOaepCipher is RSA-OAEP with SHA-256.
func RsaOaepCipher() CipherSpec {
	return CipherSpec{Kind: Asymmetric, Transformation: crypto.RsaOaepSha256}
}

// KeystoreCipher encrypts with a keystore key addressed by alias.
func KeystoreCipher() CipherSpec { return CipherSpec{Kind: HardwareCipher} }

// HmacSha256Integrity tags with HMAC-SHA256.
func HmacSha256Integrity() IntegritySpec {
	return IntegritySpec{Kind: Mac, Algorithm: crypto.HmacSha256}
}

// HmacSha384Integrity tags with HMAC-SHA384.
func HmacSha384Integrity() IntegritySpec {
	return IntegritySpec{Kind: Mac, Algorithm: crypto.HmacSha384}
}

// Sha256WithRsaIntegrity signs with RSA PKCS#1 v1.5 over SHA-256.
func Sha256WithRsaIntegrity() IntegritySpec {
	return IntegritySpec{Kind: Signature, Algorithm: crypto.Sha256WithRsa}
}

// Sha384WithEcdsaIntegrity signs with ECDSA over SHA-384.
func Sha384WithEcdsaIntegrity() IntegritySpec {
	return IntegritySpec{Kind: Signature, Algorithm: crypto.Sha384WithEcdsa}
}

// KeystoreIntegrity signs with a keystore key addressed by alias.
func KeystoreIntegrity() IntegritySpec { return IntegritySpec{Kind: HardwareIntegrity} }

// DefaultDataProtectionSpec is AES-256-GCM with an HMAC-SHA384 tag.
func DefaultDataProtectionSpec() Spec {
	return Spec{
		Cipher:        AesGcmCipher(),
		Integrity:     HmacSha384Integrity(),
		EncryptionKey: Aes256KeyGen(),
		SigningKey:    KeyGenSpec{Algorithm: crypto.HmacSha384, Size: 384},
	}
}

// LegacyDataProtectionSpec is AES-128-CBC with an HMAC-SHA256 tag.
func LegacyDataProtectionSpec() Spec {
	return Spec{
		Cipher:        AesCbcPkcs5Cipher(),
		Integrity:     HmacSha256Integrity(),
		EncryptionKey: Aes128KeyGen(),
		SigningKey:    KeyGenSpec{Algorithm: crypto.HmacSha256, Size: 128},
	}
}

// SignedDataProtectionSpec pairs AES-256-GCM with an ECDSA P-384 signature.
func SignedDataProtectionSpec() Spec {
	return Spec{
		Cipher:        AesGcmCipher(),
		Integrity:     Sha384WithEcdsaIntegrity(),
		EncryptionKey: Aes256KeyGen(),
		SigningKey:    Ec384KeyGen(),
	}
}
