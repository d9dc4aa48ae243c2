// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package crypto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRegistry returns a Registry with the default transformations.
func TestRegistry(t testing.TB, opt ...Option) *Registry {
	t.Helper()
	return NewRegistry(opt...)
}

// TestKey generates a key of the given algorithm and size and destroys it
// when the test completes.
func TestKey(t testing.TB, p Provider, algorithm string, size int) *Key {
	t.Helper()
	ctx := context.Background()
	g, err := p.KeyGenerator(ctx, algorithm)
	require.NoError(t, err)
	k, err := g.Generate(ctx, size)
	require.NoError(t, err)
	t.Cleanup(k.Destroy)
	return k
}
