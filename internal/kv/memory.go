// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package kv

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hashicorp/secretstorage/internal/errors"
)

// MemoryStore is a Store held in process memory.  It is safe for concurrent
// use and applies batches atomically.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

var (
	_ Store      = (*MemoryStore)(nil)
	_ Transactor = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string][]byte{}}
}

// Store implements Store.
func (s *MemoryStore) Store(ctx context.Context, field string, value []byte) error {
	const op = "kv.(MemoryStore).Store"
	if field == "" {
		return errors.New(ctx, errors.InvalidParameter, op, "missing field")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[field] = slices.Clone(value)
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, field string) ([]byte, error) {
	const op = "kv.(MemoryStore).Load"
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[field]
	if !ok {
		return nil, errors.New(ctx, errors.RecordNotFound, op, fmt.Sprintf("field %q not found", field))
	}
	return slices.Clone(v), nil
}

// Exists implements Store.
func (s *MemoryStore) Exists(_ context.Context, field string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[field]
	return ok, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, field)
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.entries)
	return nil
}

// Entries implements Store.
func (s *MemoryStore) Entries(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields := make([]string, 0, len(s.entries))
	for f := range s.entries {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	return fields, nil
}

// ApplyBatch implements Transactor.
func (s *MemoryStore) ApplyBatch(ctx context.Context, b *Batch) error {
	const op = "kv.(MemoryStore).ApplyBatch"
	if b == nil {
		return errors.New(ctx, errors.InvalidParameter, op, "missing batch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range b.changes {
		if c.delete {
			delete(s.entries, c.field)
			continue
		}
		s.entries[c.field] = slices.Clone(c.value)
	}
	return nil
}
