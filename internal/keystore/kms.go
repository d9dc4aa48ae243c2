// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package keystore

import (
	"context"
	"fmt"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	"github.com/hashicorp/go-kms-wrapping/v2/aead"
	"github.com/hashicorp/go-kms-wrapping/v2/extras/structwrapping"
	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/errors"
	"github.com/hashicorp/secretstorage/internal/kv"
)

const presenceFlag byte = 1

// kmsRecord is the persisted form of an alias key.  Key never leaves memory
// unencrypted; CtKey is the root wrapper's BlobInfo.
type kmsRecord struct {
	Key   []byte `wrapping:"pt,alias_key"`
	CtKey []byte `wrapping:"ct,alias_key"`
}

// kmsSource keeps alias keys in a kv.Store encrypted by a root KMS wrapper.
// The alias is bound to the ciphertext as additional authenticated data.
type kmsSource struct {
	root  wrapping.Wrapper
	store kv.Store
}

// NewKmsKeystore returns a Keystore whose alias keys are persisted in store
// encrypted under root.  Supported options: WithLogger, WithPresence.
func NewKmsKeystore(ctx context.Context, root wrapping.Wrapper, store kv.Store, opt ...Option) (*Keystore, error) {
	const op = "keystore.NewKmsKeystore"
	switch {
	case root == nil:
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing root wrapper")
	case store == nil:
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing store")
	}
	if _, err := root.KeyId(ctx); err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidConfiguration), errors.WithMsg("root wrapper is not configured"))
	}
	return newKeystore(&kmsSource{root: root, store: store}, getOpts(opt...)), nil
}

// NewRootWrapper returns an AES-256-GCM root wrapper for a KMS keystore.
func NewRootWrapper(ctx context.Context, key []byte, keyId string) (wrapping.Wrapper, error) {
	const op = "keystore.NewRootWrapper"
	switch {
	case len(key) != 32:
		return nil, errors.New(ctx, errors.InvalidParameter, op, fmt.Sprintf("root key must be 32 bytes, got %d", len(key)))
	case keyId == "":
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing root key id")
	}
	root := aead.NewWrapper()
	if _, err := root.SetConfig(ctx, wrapping.WithKeyId(keyId)); err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidConfiguration))
	}
	if err := root.SetAesGcmKeyBytes(key); err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidConfiguration))
	}
	return root, nil
}

func (s *kmsSource) name() string { return "kms" }

func (s *kmsSource) put(ctx context.Context, alias string, k *aliasKey) error {
	const op = "keystore.(kmsSource).put"
	rec := &kmsRecord{Key: k.material}
	if err := structwrapping.WrapStruct(ctx, s.root, rec, wrapping.WithAad([]byte(alias))); err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Encrypt))
	}
	var flags byte
	if k.presenceRequired {
		flags |= presenceFlag
	}
	if err := s.store.Store(ctx, alias, crypto.Join([]byte{flags}, rec.CtKey)); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	return nil
}

func (s *kmsSource) get(ctx context.Context, alias string) (*aliasKey, error) {
	const op = "keystore.(kmsSource).get"
	v, err := s.store.Load(ctx, alias)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return nil, errors.New(ctx, errors.KeyNotFound, op, fmt.Sprintf("no key for alias %q", alias))
		}
		return nil, errors.Wrap(ctx, err, op)
	}
	flags, ct, err := crypto.Split(ctx, v)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	if len(flags) != 1 {
		return nil, errors.New(ctx, errors.Format, op, "malformed key record")
	}
	rec := &kmsRecord{CtKey: ct}
	if err := structwrapping.UnwrapStruct(ctx, s.root, rec, wrapping.WithAad([]byte(alias))); err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Decrypt))
	}
	return &aliasKey{material: rec.Key, presenceRequired: flags[0]&presenceFlag != 0}, nil
}

func (s *kmsSource) exists(ctx context.Context, alias string) (bool, error) {
	return s.store.Exists(ctx, alias)
}

func (s *kmsSource) remove(ctx context.Context, alias string) error {
	return s.store.Delete(ctx, alias)
}
