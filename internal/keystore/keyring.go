// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package keystore

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"

	"github.com/awnumar/memguard"
	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/errors"
	nkeyring "github.com/jefferai/keyring"
	zkeyring "github.com/zalando/go-keyring"
)

// DefaultServiceName is the keyring service keys are filed under.
const DefaultServiceName = "HashiCorp Secret Storage"

// Keyring backends.  Keychain and wincred go through the native platform
// APIs; the others through the multi-backend keyring library.
const (
	BackendKeychain      = "keychain"
	BackendWincred       = "wincred"
	BackendSecretService = "secret-service"
	BackendFile          = "file"
	BackendPass          = "pass"
	BackendKwallet       = "kwallet"
)

// keyringSource keeps alias keys in an OS keyring.  Entries are stored base64
// encoded since some backends only hold strings.
type keyringSource struct {
	backend string
	service string
	kr      nkeyring.Keyring
}

// NewKeyringKeystore returns a Keystore backed by the named OS keyring.
// Supported options: WithLogger, WithPresence, WithServiceName, WithFileDir,
// WithFilePassword, WithPassPrefix.
func NewKeyringKeystore(ctx context.Context, backend string, opt ...Option) (*Keystore, error) {
	const op = "keystore.NewKeyringKeystore"
	opts := getOpts(opt...)
	src := &keyringSource{backend: backend, service: opts.withServiceName}
	switch backend {
	case BackendKeychain, BackendWincred:
	case BackendSecretService, BackendFile, BackendPass, BackendKwallet:
		cfg := nkeyring.Config{
			ServiceName:             opts.withServiceName,
			LibSecretCollectionName: "login",
			PassPrefix:              opts.withPassPrefix,
			AllowedBackends:         []nkeyring.BackendType{nkeyring.BackendType(backend)},
		}
		if backend == BackendFile {
			if opts.withFileDir == "" {
				return nil, errors.New(ctx, errors.InvalidParameter, op, "file keyring requires a directory")
			}
			cfg.FileDir = opts.withFileDir
			cfg.FilePasswordFunc = nkeyring.FixedStringPrompt(opts.withFilePassword)
		}
		kr, err := nkeyring.Open(cfg)
		if err != nil {
			return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Io), errors.WithMsg("unable to open %q keyring", backend))
		}
		src.kr = kr
	default:
		return nil, errors.New(ctx, errors.InvalidParameter, op, fmt.Sprintf("unsupported keyring backend %q", backend))
	}
	return newKeystore(src, opts), nil
}

func (s *keyringSource) name() string { return "keyring" }

func (s *keyringSource) put(ctx context.Context, alias string, k *aliasKey) error {
	const op = "keystore.(keyringSource).put"
	var flags byte
	if k.presenceRequired {
		flags |= presenceFlag
	}
	raw := crypto.Join([]byte{flags}, k.material)
	defer memguard.WipeBytes(raw)
	encoded := base64.RawStdEncoding.EncodeToString(raw)
	var err error
	if s.kr == nil {
		err = zkeyring.Set(s.service, alias, encoded)
	} else {
		err = s.kr.Set(nkeyring.Item{Key: alias, Data: []byte(encoded)})
	}
	if err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io), errors.WithMsg("unable to save key to %q keyring", s.backend))
	}
	return nil
}

func (s *keyringSource) get(ctx context.Context, alias string) (*aliasKey, error) {
	const op = "keystore.(keyringSource).get"
	var encoded string
	if s.kr == nil {
		v, err := zkeyring.Get(s.service, alias)
		if err != nil {
			return nil, s.lookupErr(ctx, op, alias, err)
		}
		encoded = v
	} else {
		item, err := s.kr.Get(alias)
		if err != nil {
			return nil, s.lookupErr(ctx, op, alias, err)
		}
		encoded = string(item.Data)
	}
	raw, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Encoding))
	}
	flags, material, err := crypto.Split(ctx, raw)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	if len(flags) != 1 || len(material) != aliasKeySize {
		memguard.WipeBytes(raw)
		return nil, errors.New(ctx, errors.Format, op, "malformed keyring entry")
	}
	return &aliasKey{material: material, presenceRequired: flags[0]&presenceFlag != 0}, nil
}

func (s *keyringSource) exists(ctx context.Context, alias string) (bool, error) {
	const op = "keystore.(keyringSource).exists"
	k, err := s.get(ctx, alias)
	switch {
	case err == nil:
		k.destroy()
		return true, nil
	case errors.IsNotFoundError(err):
		return false, nil
	default:
		return false, errors.Wrap(ctx, err, op)
	}
}

func (s *keyringSource) remove(ctx context.Context, alias string) error {
	const op = "keystore.(keyringSource).remove"
	var err error
	if s.kr == nil {
		err = zkeyring.Delete(s.service, alias)
	} else {
		if _, gerr := s.kr.Get(alias); gerr != nil {
			err = gerr
		} else {
			err = s.kr.Remove(alias)
		}
	}
	if err != nil && !isKeyringNotFound(err) {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io), errors.WithMsg("unable to delete key from %q keyring", s.backend))
	}
	return nil
}

func (s *keyringSource) lookupErr(ctx context.Context, op errors.Op, alias string, err error) error {
	if isKeyringNotFound(err) {
		return errors.New(ctx, errors.KeyNotFound, op, fmt.Sprintf("no key for alias %q", alias))
	}
	return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io), errors.WithMsg("unable to read %q keyring", s.backend))
}

func isKeyringNotFound(err error) bool {
	return stderrors.Is(err, zkeyring.ErrNotFound) || stderrors.Is(err, nkeyring.ErrKeyNotFound)
}
