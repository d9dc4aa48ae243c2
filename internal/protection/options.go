// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package protection

import (
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/secretstorage/internal/keystore"
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
	withKeystore keystore.Capability
	withLogger   hclog.Logger
}

func getDefaultOptions() options {
	return options{
		withLogger: hclog.NewNullLogger(),
	}
}

// WithKeystore sets the keystore used by hardware kinds.
func WithKeystore(ks keystore.Capability) Option {
	return func(o *options) {
		o.withKeystore = ks
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
