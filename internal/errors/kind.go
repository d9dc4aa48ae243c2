// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package errors

// Kind specifies the kind of error (unknown, parameter, security, etc).
type Kind uint32

const (
	Other Kind = iota
	Parameter
	FormatKind
	Security
	NotConfigured
	State
	IoKind
)

func (e Kind) String() string {
	return map[Kind]string{
		Other:         "unknown",
		Parameter:     "parameter violation",
		FormatKind:    "format error",
		Security:      "security error",
		NotConfigured: "not configured",
		State:         "invalid state",
		IoKind:        "io error",
	}[e]
}
