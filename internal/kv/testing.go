// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package kv

import (
	"context"
	"fmt"
	"testing"

	"github.com/hashicorp/go-secure-stdlib/base62"
	"github.com/stretchr/testify/require"
)

// TestMemoryStore returns an empty MemoryStore.
func TestMemoryStore(t testing.TB) *MemoryStore {
	t.Helper()
	return NewMemoryStore()
}

// TestSqliteUrl returns the url of a fresh, uniquely named in-memory sqlite
// database.
func TestSqliteUrl(t testing.TB) string {
	t.Helper()
	name, err := base62.Random(16)
	require.NoError(t, err)
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
}

// TestSqliteStore opens a sqlite store in a private in-memory database and
// closes it when the test completes.
func TestSqliteStore(t testing.TB, opt ...Option) *SqliteStore {
	t.Helper()
	ctx := context.Background()
	opt = append([]Option{WithUrl(TestSqliteUrl(t))}, opt...)
	s, err := OpenSqlite(ctx, opt...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close(context.Background())
	})
	return s
}
