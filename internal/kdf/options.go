// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package kdf

import (
	"runtime"

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
	withMaxConcurrent int
	withLogger        hclog.Logger
}

func getDefaultOptions() options {
	return options{
		withMaxConcurrent: runtime.GOMAXPROCS(0),
		withLogger:        hclog.NewNullLogger(),
	}
}

// WithMaxConcurrent bounds the number of derivations running at once.
func WithMaxConcurrent(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.withMaxConcurrent = n
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
