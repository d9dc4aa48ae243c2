// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package errors

// Info contains details of the specific error code
type Info struct {
	// Kind specifies the kind of error (unknown, parameter, security, etc).
	Kind Kind

	// Message provides a default message for the error code
	Message string
}

// errorCodeInfo provides a map of unique Codes (IDs) to their
// corresponding Kind and a default Message.
var errorCodeInfo = map[Code]Info{
	Unknown: {
		Message: "unknown",
		Kind:    Other,
	},
	InvalidParameter: {
		Message: "invalid parameter",
		Kind:    Parameter,
	},
	InvalidConfiguration: {
		Message: "invalid configuration",
		Kind:    Parameter,
	},
	Internal: {
		Message: "internal error",
		Kind:    Other,
	},
	Format: {
		Message: "malformed data",
		Kind:    FormatKind,
	},
	Encoding: {
		Message: "encoding error",
		Kind:    FormatKind,
	},
	Encrypt: {
		Message: "error occurred during encrypt",
		Kind:    Security,
	},
	Decrypt: {
		Message: "error occurred during decrypt",
		Kind:    Security,
	},
	VerificationFailed: {
		Message: "verification failed",
		Kind:    Security,
	},
	WrongPassword: {
		Message: "wrong password",
		Kind:    Security,
	},
	KeyWrap: {
		Message: "error occurred during key wrap",
		Kind:    Security,
	},
	KeyUnwrap: {
		Message: "error occurred during key unwrap",
		Kind:    Security,
	},
	Sign: {
		Message: "error occurred during sign",
		Kind:    Security,
	},
	PresenceRequired: {
		Message: "presence check failed",
		Kind:    Security,
	},
	IntegrityCheck: {
		Message: "integrity check failed",
		Kind:    Security,
	},
	PasswordNotSet: {
		Message: "password not set",
		Kind:    NotConfigured,
	},
	KeysNotFound: {
		Message: "data keys not found",
		Kind:    NotConfigured,
	},
	Locked: {
		Message: "locked",
		Kind:    NotConfigured,
	},
	KeyNotFound: {
		Message: "keystore entry not found",
		Kind:    NotConfigured,
	},
	PasswordAlreadySet: {
		Message: "password already set",
		Kind:    State,
	},
	Io: {
		Message: "error during io operation",
		Kind:    IoKind,
	},
	RecordNotFound: {
		Message: "record not found",
		Kind:    IoKind,
	},
}
