// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package crypto

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/hashicorp/secretstorage/internal/errors"
)

const lengthPrefixSize = 4

// Join frames two segments so that Split recovers them exactly.  The result
// is a 4 byte big endian length of first, then first, then second.
func Join(first, second []byte) []byte {
	out := make([]byte, lengthPrefixSize, lengthPrefixSize+len(first)+len(second))
	binary.BigEndian.PutUint32(out, uint32(len(first)))
	out = append(out, first...)
	return append(out, second...)
}

// Split is the inverse of Join.  The returned slices alias blob.
func Split(ctx context.Context, blob []byte) ([]byte, []byte, error) {
	const op = "crypto.Split"
	if len(blob) < lengthPrefixSize {
		return nil, nil, errors.New(ctx, errors.Format, op, "blob shorter than length prefix")
	}
	n := binary.BigEndian.Uint32(blob)
	rest := blob[lengthPrefixSize:]
	if uint64(n) > uint64(len(rest)) {
		return nil, nil, errors.New(ctx, errors.Format, op, fmt.Sprintf("segment length %d exceeds remaining %d bytes", n, len(rest)))
	}
	return rest[:n], rest[n:], nil
}
