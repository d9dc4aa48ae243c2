// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package errors provides the typed errors returned by every secret storage
// package. An Err carries a Code, whose Info names the Kind of failure
// (format, security, not configured, io, ...), the Op that produced it and
// an optional wrapped error.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Op represents an operation (package.function).
// For example iam.CreateRole
type Op string

// Err provides the ability to specify a Msg, Op, Code and Wrapped error.
// Errs must have a Code and all other fields are optional.
type Err struct {
	// Code is the error's code, which can be used to get the error's
	// errorCodeInfo, which contains the error's Kind and Message
	Code Code

	// Msg for the error
	Msg string

	// Op represents the operation raising/propagating an error and is optional.
	Op Op

	// Wrapped is the error which this Err wraps and will be nil if there's no
	// error to wrap.
	Wrapped error
}

// E creates a new Err with provided code and supports the options of:
//
// * WithOp() - allows you to specify an optional Op (operation).
//
// * WithMsg() - allows you to specify an optional error msg, if the default
// msg for the error Code is not sufficient.
//
// * WithWrap() - allows you to specify an error to wrap.  If the wrapped error
// is an Err and no code was given, the wrapped error's code is used.
//
// * WithCode() - allows you to specify an error Code
func E(_ context.Context, opt ...Option) error {
	opts := GetOpts(opt...)
	var code Code
	switch {
	case opts.withCode != Unknown:
		code = opts.withCode
	case opts.withErrWrapped != nil:
		var wrapped *Err
		if errors.As(opts.withErrWrapped, &wrapped) {
			code = wrapped.Code
		}
	}
	return &Err{
		Code:    code,
		Op:      opts.withOp,
		Wrapped: opts.withErrWrapped,
		Msg:     opts.withErrMsg,
	}
}

// New creates a new Err with the provided code, op and msg.  Supports the
// options of WithWrap.  The code, op and msg parameters take precedence over
// the WithCode, WithOp and WithMsg options.
func New(ctx context.Context, c Code, op Op, msg string, opt ...Option) error {
	if c != Unknown {
		opt = append(opt, WithCode(c))
	}
	if op != "" {
		opt = append(opt, WithOp(op))
	}
	if msg != "" {
		opt = append(opt, withRawMsg(msg))
	}
	return E(ctx, opt...)
}

// Wrap creates a new Err from the provided err and op, preserving the code
// from the originating error.  Supports the options of WithMsg and WithCode,
// the latter overriding the wrapped error's code.
func Wrap(ctx context.Context, e error, op Op, opt ...Option) error {
	if e == nil {
		return nil
	}
	if op != "" {
		opt = append(opt, WithOp(op))
	}
	opt = append(opt, WithWrap(e))
	return E(ctx, opt...)
}

// Info about the Err
func (e *Err) Info() Info {
	if e == nil {
		return errorCodeInfo[Unknown]
	}
	if info, ok := errorCodeInfo[e.Code]; ok {
		return info
	}
	return errorCodeInfo[Unknown]
}

// Error satisfies the error interface and returns a string representation of
// the Err
func (e *Err) Error() string {
	if e == nil {
		return ""
	}
	var s strings.Builder
	if e.Op != "" {
		join(&s, ": ", string(e.Op))
	}
	if e.Msg != "" {
		join(&s, ": ", e.Msg)
	}

	var skipInfo bool
	if e.Wrapped != nil {
		var wrapped *Err
		if errors.As(e.Wrapped, &wrapped) && wrapped.Code == e.Code {
			skipInfo = true
		}
		join(&s, ": ", e.Wrapped.Error())
	}
	if !skipInfo && e.Code != Unknown {
		info := e.Info()
		join(&s, ": ", fmt.Sprintf("%s, %s: error #%d", info.Kind.String(), info.Message, e.Code))
	}
	return s.String()
}

// Unwrap implements the errors.Unwrap interface and allows callers to use the
// errors.Is() and errors.As() functions effectively for any wrapped errors.
func (e *Err) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Wrapped
}

func join(s *strings.Builder, delim string, str string) {
	if s.Len() > 0 {
		s.WriteString(delim)
	}
	s.WriteString(str)
}
