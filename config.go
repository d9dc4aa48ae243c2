// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package secretstorage

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/errors"
	"github.com/hashicorp/secretstorage/internal/keywrapper"
	"github.com/hashicorp/secretstorage/internal/kv"
	"github.com/hashicorp/secretstorage/internal/protection"
	"github.com/prometheus/client_golang/prometheus"
)

// Config declares a SecretStorage.  StoreId, DataProtection and KeyWrapper
// are required; everything else has a default.
type Config struct {
	// StoreId names the identity whose data keys protect every entry.
	StoreId string

	// DataProtection selects how entries are encrypted and authenticated.
	// It must use software cipher and integrity kinds.
	DataProtection protection.Spec

	// KeyWrapper protects the data keys.
	KeyWrapper keywrapper.Wrapper

	// DataStorage holds protected entries.  Defaults to an in-memory store.
	DataStorage kv.Store

	// Provider supplies cipher, MAC, signature and key generation
	// transformations.  Defaults to crypto.NewRegistry().
	Provider crypto.Provider

	Logger hclog.Logger

	// Registerer receives the storage collectors when set.
	Registerer prometheus.Registerer

	// LockMemory locks the process memory with mlock when supported.
	LockMemory bool
}

// Validate reports every problem with the config at once.
func (c *Config) Validate(ctx context.Context) error {
	const op = "secretstorage.(Config).Validate"
	var merr *multierror.Error
	switch {
	case c.StoreId == "":
		merr = multierror.Append(merr, fmt.Errorf("missing store id"))
	case strings.Contains(c.StoreId, kv.Delimiter):
		merr = multierror.Append(merr, fmt.Errorf("store id %q contains %q", c.StoreId, kv.Delimiter))
	}
	if c.KeyWrapper == nil {
		merr = multierror.Append(merr, fmt.Errorf("missing key wrapper"))
	}
	switch {
	case c.DataProtection == (protection.Spec{}):
		merr = multierror.Append(merr, fmt.Errorf("missing data protection spec"))
	case c.DataProtection.Cipher.Kind == protection.HardwareCipher || c.DataProtection.Integrity.Kind == protection.HardwareIntegrity:
		merr = multierror.Append(merr, fmt.Errorf("data protection must use software cipher and integrity; use a keystore key wrapper for hardware protection"))
	default:
		if err := c.DataProtection.Validate(ctx); err != nil {
			var inner *multierror.Error
			if errors.As(err, &inner) {
				merr = multierror.Append(merr, inner.Errors...)
			} else {
				merr = multierror.Append(merr, err)
			}
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidConfiguration))
	}
	return nil
}
