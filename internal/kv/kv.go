// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package kv defines the byte oriented key-value collaborator used to persist
// protected payloads, wrapped data keys and wrapper configuration, along with
// memory, file and sqlite backed implementations.
//
// Every write made through a Store is a single atomic operation. Multi-field
// updates are staged in a Batch and committed with Apply.
package kv

import (
	"context"
	"strings"
)

// Delimiter separates an identity from the logical field name.
const Delimiter = "::"

// Store is a persistent key-value store.  Load of a missing field returns an
// error with the errors.RecordNotFound code.
type Store interface {
	// Store writes value under field, replacing any existing value.
	Store(ctx context.Context, field string, value []byte) error
	// Load returns the value stored under field.
	Load(ctx context.Context, field string) ([]byte, error)
	// Exists reports whether field has a value.
	Exists(ctx context.Context, field string) (bool, error)
	// Delete removes field.  Deleting a missing field is not an error.
	Delete(ctx context.Context, field string) error
	// Clear removes every field.
	Clear(ctx context.Context) error
	// Entries returns the names of every stored field.
	Entries(ctx context.Context) ([]string, error)
}

// Field returns the storage field name for the logical name within an
// identity: identity + "::" + name.
func Field(identity, name string) string {
	return identity + Delimiter + name
}

// SplitField is the inverse of Field.  It splits on the first delimiter, so
// names may themselves contain the delimiter.
func SplitField(field string) (identity, name string, ok bool) {
	return strings.Cut(field, Delimiter)
}
