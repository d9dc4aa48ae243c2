// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package errors

// Code specifies a code for the error.
type Code uint32

// String will return the Code's Info.Message
func (c Code) String() string {
	return c.Info().Message
}

// Info will look up the Code's Info.  If the Info is not found, it will return
// Info for an Unknown Code.
func (c Code) Info() Info {
	if info, ok := errorCodeInfo[c]; ok {
		return info
	}
	return errorCodeInfo[Unknown]
}

const (
	Unknown Code = 0 // Unknown will be equal to a zero value for Codes

	// General function errors are reserved Codes 100-199
	InvalidParameter     Code = 100 // InvalidParameter represents an invalid parameter for an operation.
	InvalidConfiguration Code = 101 // InvalidConfiguration represents a configuration that failed validation.
	Internal             Code = 102 // Internal represents an unexpected internal failure.

	// Format errors are reserved Codes 200-299
	Format   Code = 200 // Format represents malformed framing that could not be split or parsed.
	Encoding Code = 201 // Encoding represents a failure to encode or decode a persisted value.

	// Security errors are reserved Codes 300-399
	Encrypt            Code = 300 // Encrypt represents an error encrypting
	Decrypt            Code = 301 // Decrypt represents an error decrypting
	VerificationFailed Code = 302 // VerificationFailed represents an authentication tag or signature mismatch
	WrongPassword      Code = 303 // WrongPassword represents a password that did not match the verification tag
	KeyWrap            Code = 304 // KeyWrap represents an error wrapping a key
	KeyUnwrap          Code = 305 // KeyUnwrap represents an error unwrapping a key
	Sign               Code = 306 // Sign represents an error computing a tag or signature
	PresenceRequired   Code = 307 // PresenceRequired represents a failed or refused presence check
	IntegrityCheck     Code = 308 // IntegrityCheck represents a persisted blob whose framing was altered

	// Not configured errors are reserved Codes 400-499
	PasswordNotSet Code = 400 // PasswordNotSet represents a password operation attempted before a password was set
	KeysNotFound   Code = 401 // KeysNotFound represents a data key load with no wrapped keys present
	Locked         Code = 402 // Locked represents a key operation attempted while the key encryption key is locked
	KeyNotFound    Code = 403 // KeyNotFound represents a keystore alias that does not exist

	// State errors are reserved Codes 500-599
	PasswordAlreadySet Code = 500 // PasswordAlreadySet represents a setPassword call for an identity that already has one

	// Io errors are reserved Codes 600-699
	Io             Code = 600 // Io represents an error reading or writing the underlying store
	RecordNotFound Code = 601 // RecordNotFound represents a field that does not exist in a store
)
