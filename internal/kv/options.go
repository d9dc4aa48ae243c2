// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package kv

import (
	"os"

	"github.com/hashicorp/go-hclog"
)

// DefaultNamespace is used by sqlite stores when no namespace is given.
const DefaultNamespace = "default"

type options struct {
	withLogger    hclog.Logger
	withDebug     bool
	withUrl       string
	withNamespace string
	withFileMode  os.FileMode
}

// Option - how options are passed as args
type Option func(*options) error

func getDefaultOptions() options {
	return options{
		withLogger:    hclog.NewNullLogger(),
		withNamespace: DefaultNamespace,
		withFileMode:  0o600,
	}
}

func getOpts(opt ...Option) (options, error) {
	opts := getDefaultOptions()

	for _, o := range opt {
		if o == nil {
			continue
		}
		if err := o(&opts); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o *options) error {
		if l != nil {
			o.withLogger = l
		}
		return nil
	}
}

// WithDebug enables sql debug logging for sqlite stores.
func WithDebug(enable bool) Option {
	return func(o *options) error {
		o.withDebug = enable
		return nil
	}
}

// WithUrl provides an optional sqlite connection url.
func WithUrl(url string) Option {
	return func(o *options) error {
		o.withUrl = url
		return nil
	}
}

// WithNamespace provides an optional namespace, allowing several logical
// stores (data, keys, config) to share one sqlite database.
func WithNamespace(ns string) Option {
	return func(o *options) error {
		o.withNamespace = ns
		return nil
	}
}

// WithFileMode sets the permissions of files written by a FileStore.
func WithFileMode(m os.FileMode) Option {
	return func(o *options) error {
		o.withFileMode = m
		return nil
	}
}
