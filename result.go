// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package secretstorage

import (
	"context"

	"github.com/hashicorp/secretstorage/internal/errors"
)

// Result collapses an operation's error for callers that only need to know
// whether to retry.
type Result int

const (
	Success       Result = 0
	IoError       Result = 1
	SecurityError Result = 2
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case IoError:
		return "io error"
	case SecurityError:
		return "security error"
	default:
		return "unknown"
	}
}

// ResultOf maps err to a Result.  Failures of the underlying stores are
// IoError; every other failure is SecurityError.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return Success
	case errors.IsIoError(err):
		return IoError
	default:
		return SecurityError
	}
}

// StoreValue is Store reporting a Result.
func (s *SecretStorage) StoreValue(ctx context.Context, id string, plaintext []byte) Result {
	return s.resultOf(s.Store(ctx, id, plaintext))
}

// LoadValue is Load reporting a Result.  The plaintext is nil unless the
// result is Success.
func (s *SecretStorage) LoadValue(ctx context.Context, id string) ([]byte, Result) {
	pt, err := s.Load(ctx, id)
	return pt, s.resultOf(err)
}

// CopyValuesTo is CopyTo reporting a Result.
func (s *SecretStorage) CopyValuesTo(ctx context.Context, other *SecretStorage) Result {
	return s.resultOf(s.CopyTo(ctx, other))
}

// RewrapValues is Rewrap reporting a Result.
func (s *SecretStorage) RewrapValues(ctx context.Context, factory WrapperFactory) Result {
	return s.resultOf(s.Rewrap(ctx, factory))
}

func (s *SecretStorage) resultOf(err error) Result {
	if err != nil {
		s.logger.Debug("operation failed", "error", err)
	}
	return ResultOf(err)
}
