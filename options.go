// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package secretstorage

import (
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/secretstorage/internal/crypto"
	"github.com/hashicorp/secretstorage/internal/keystore"
	"github.com/prometheus/client_golang/prometheus"
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
	withLogger     hclog.Logger
	withRegisterer prometheus.Registerer
	withProvider   crypto.Provider
	withPresence   keystore.PresenceFunc
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

// WithRegisterer registers the storage collectors with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) {
		o.withRegisterer = r
	}
}

// WithProvider overrides the default crypto provider.
func WithProvider(p crypto.Provider) Option {
	return func(o *options) {
		o.withProvider = p
	}
}

// WithPresence sets the presence check consulted by the configured keystore.
func WithPresence(fn keystore.PresenceFunc) Option {
	return func(o *options) {
		o.withPresence = fn
	}
}
