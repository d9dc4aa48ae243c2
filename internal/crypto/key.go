// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package crypto

import (
	"crypto/subtle"
	"slices"

	"github.com/awnumar/memguard"
)

// Key is an owned buffer of key material tagged with the algorithm it was
// generated for.  Asymmetric keys carry their PKCS#8 private key encoding;
// the public half is derived when needed.  A keystore held key has no
// material, only the Alias it is addressed by.
//
// A Key must be destroyed by its owner once the operation that produced it is
// finished.
type Key struct {
	Algorithm string
	Material  []byte
	Alias     string
}

// KeystoreAlgorithm tags keys that live in a keystore.
const KeystoreAlgorithm = "Keystore"

// NewAliasKey returns a reference to the keystore key named alias.
func NewAliasKey(alias string) *Key {
	return &Key{Algorithm: KeystoreAlgorithm, Alias: alias}
}

// NewKey copies material into a new Key.
func NewKey(algorithm string, material []byte) *Key {
	return &Key{
		Algorithm: algorithm,
		Material:  slices.Clone(material),
	}
}

// Destroy zeroes the key material.  It is safe to call on a nil Key and to
// call more than once.
func (k *Key) Destroy() {
	if k == nil {
		return
	}
	memguard.WipeBytes(k.Material)
	k.Material = nil
	k.Alias = ""
}

// Destroyed reports whether the key no longer holds material or an alias.
func (k *Key) Destroyed() bool {
	return k == nil || (len(k.Material) == 0 && k.Alias == "")
}

// Clone returns an independent copy of k.
func (k *Key) Clone() *Key {
	if k == nil {
		return nil
	}
	c := NewKey(k.Algorithm, k.Material)
	c.Alias = k.Alias
	return c
}

// Equal compares algorithm and material in constant time with respect to the
// material.
func (k *Key) Equal(o *Key) bool {
	if k == nil || o == nil {
		return k == o
	}
	return k.Algorithm == o.Algorithm && k.Alias == o.Alias && subtle.ConstantTimeCompare(k.Material, o.Material) == 1
}

// DestroyAll destroys every key given.
func DestroyAll(keys ...*Key) {
	for _, k := range keys {
		k.Destroy()
	}
}
