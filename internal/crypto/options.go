// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package crypto

import (
	"crypto/rand"
	"io"

	"github.com/hashicorp/go-hclog"
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
	withRandomReader io.Reader
	withLogger       hclog.Logger
	withoutDefaults  bool
}

func getDefaultOptions() options {
	return options{
		withRandomReader: rand.Reader,
		withLogger:       hclog.NewNullLogger(),
	}
}

// WithRandomReader sets the entropy source used for key generation, salts,
// nonces and IVs.
func WithRandomReader(r io.Reader) Option {
	return func(o *options) {
		if r != nil {
			o.withRandomReader = r
		}
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

// WithoutDefaults returns an empty registry, for callers that register every
// transformation themselves.
func WithoutDefaults() Option {
	return func(o *options) {
		o.withoutDefaults = true
	}
}
