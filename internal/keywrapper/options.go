// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package keywrapper

import (
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/secretstorage/internal/kdf"
)

// getOpts - iterate the inbound Options and return a struct
func getOpts(opt ...Option) options {
	opts := getDefaultOptions()
	for _, o := range opt {
		o(&opts)
	}
	return opts
}

// Option - how Options are passed as arguments
type Option func(*options)

type options struct {
	withLogger  hclog.Logger
	withDeriver *kdf.Deriver

	withPresenceRequired bool
}

func getDefaultOptions() options {
	return options{
		withLogger: hclog.NewNullLogger(),
	}
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.withLogger = l
		}
	}
}

// WithDeriver shares a Deriver (and its concurrency bound) between wrappers.
func WithDeriver(d *kdf.Deriver) Option {
	return func(o *options) {
		o.withDeriver = d
	}
}

// WithPresenceRequired gates the keystore keys a wrapper generates behind a
// presence check.
func WithPresenceRequired(required bool) Option {
	return func(o *options) {
		o.withPresenceRequired = required
	}
}
