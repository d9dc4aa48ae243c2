// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package keystore

import (
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
	withLogger           hclog.Logger
	withPresence         PresenceFunc
	withPresenceRequired bool
	withServiceName      string
	withFileDir          string
	withFilePassword     string
	withPassPrefix       string
}

func getDefaultOptions() options {
	return options{
		withLogger:      hclog.NewNullLogger(),
		withServiceName: DefaultServiceName,
		withPassPrefix:  "HashiCorp_SecretStorage",
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

// WithPresence sets the check consulted before a presence gated key
// decrypts or signs.
func WithPresence(fn PresenceFunc) Option {
	return func(o *options) {
		o.withPresence = fn
	}
}

// WithPresenceRequired marks a generated key as presence gated.
func WithPresenceRequired(required bool) Option {
	return func(o *options) {
		o.withPresenceRequired = required
	}
}

// WithServiceName sets the keyring service (or collection) name keys are
// filed under.
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.withServiceName = name
		}
	}
}

// WithFileDir sets the directory of the "file" keyring backend.
func WithFileDir(dir string) Option {
	return func(o *options) {
		o.withFileDir = dir
	}
}

// WithFilePassword sets the password protecting the "file" keyring backend.
func WithFilePassword(pw string) Option {
	return func(o *options) {
		o.withFilePassword = pw
	}
}

// WithPassPrefix sets the path prefix used by the "pass" keyring backend.
func WithPassPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.withPassPrefix = prefix
		}
	}
}
