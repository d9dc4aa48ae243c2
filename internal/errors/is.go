// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package errors

import (
	"errors"
)

// Is is the equivalent of the std errors.Is, but allows callers to import
// only this package for standard error operations.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is the equivalent of the std errors.As, but allows callers to import
// only this package for standard error operations.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Unwrap is the equivalent of the std errors.Unwrap, but allows callers to
// import only this package for standard error operations.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// KindOf returns the Kind of the outermost Err in the chain, or Other when
// err carries no Err at all.
func KindOf(err error) Kind {
	var e *Err
	if !errors.As(err, &e) {
		return Other
	}
	return e.Info().Kind
}

// IsFormatError reports whether err is a malformed framing or encoding error.
func IsFormatError(err error) bool {
	return err != nil && KindOf(err) == FormatKind
}

// IsSecurityError reports whether err is a verification, wrap/unwrap or
// wrong password failure.
func IsSecurityError(err error) bool {
	return err != nil && KindOf(err) == Security
}

// IsNotConfiguredError reports whether err was raised because nothing has
// been configured yet (no password, no keys, locked).
func IsNotConfiguredError(err error) bool {
	return err != nil && KindOf(err) == NotConfigured
}

// IsIoError reports whether err came from the underlying store.
func IsIoError(err error) bool {
	return err != nil && KindOf(err) == IoKind
}

// IsNotFoundError returns a boolean indicating whether the error is known to
// report a not found violation.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var e *Err
	if errors.As(err, &e) {
		return e.Code == RecordNotFound || e.Code == KeyNotFound
	}
	return false
}
