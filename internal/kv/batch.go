// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package kv

import (
	"context"
	"fmt"
	"slices"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/secretstorage/internal/errors"
)

// Transactor is implemented by stores that can commit a Batch atomically.
type Transactor interface {
	ApplyBatch(ctx context.Context, b *Batch) error
}

type change struct {
	field  string
	value  []byte
	delete bool
}

// Batch is an ordered set of staged writes and deletes for one Store.
// Later changes to the same field replace earlier ones.
type Batch struct {
	changes []change
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Put stages a write of value under field.
func (b *Batch) Put(field string, value []byte) *Batch {
	b.set(change{field: field, value: slices.Clone(value)})
	return b
}

// Delete stages a removal of field.
func (b *Batch) Delete(field string) *Batch {
	b.set(change{field: field, delete: true})
	return b
}

// Len returns the number of staged changes.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.changes)
}

// Fields returns the staged field names in order.
func (b *Batch) Fields() []string {
	fields := make([]string, 0, len(b.changes))
	for _, c := range b.changes {
		fields = append(fields, c.field)
	}
	return fields
}

func (b *Batch) set(c change) {
	for i := range b.changes {
		if b.changes[i].field == c.field {
			b.changes[i] = c
			return
		}
	}
	b.changes = append(b.changes, c)
}

// Change pairs a Batch with the Store it must be committed to.
type Change struct {
	Store Store
	Batch *Batch
}

// Apply commits each change in order.  Stores implementing Transactor commit
// their batch atomically; other stores are written field by field.  When any
// change fails, every field already written by this call is restored to its
// prior value (or removed if it did not exist) before the error is returned,
// so callers observe either all of the changes or none of them.
func Apply(ctx context.Context, changes []Change, opt ...Option) error {
	const op = "kv.Apply"
	opts, err := getOpts(opt...)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	var undo []Change
	for _, c := range changes {
		if c.Store == nil {
			return errors.New(ctx, errors.InvalidParameter, op, "missing store")
		}
		if c.Batch.Len() == 0 {
			continue
		}
		prior, err := snapshot(ctx, c.Store, c.Batch)
		if err != nil {
			rollback(ctx, undo, opts.withLogger)
			return errors.Wrap(ctx, err, op)
		}
		written, err := applyOne(ctx, c.Store, c.Batch)
		if written > 0 || err == nil {
			undo = append(undo, Change{Store: c.Store, Batch: prior.truncate(written)})
		}
		if err != nil {
			rollback(ctx, undo, opts.withLogger)
			return errors.Wrap(ctx, err, op)
		}
	}
	return nil
}

// applyOne returns the number of changes written before any error.
func applyOne(ctx context.Context, s Store, b *Batch) (int, error) {
	if t, ok := s.(Transactor); ok {
		if err := t.ApplyBatch(ctx, b); err != nil {
			return 0, err
		}
		return len(b.changes), nil
	}
	for i, c := range b.changes {
		var err error
		if c.delete {
			err = s.Delete(ctx, c.field)
		} else {
			err = s.Store(ctx, c.field, c.value)
		}
		if err != nil {
			return i, err
		}
	}
	return len(b.changes), nil
}

// snapshot builds the batch which restores the current values of every field
// touched by b, in the same order as b.
func snapshot(ctx context.Context, s Store, b *Batch) (*Batch, error) {
	prior := NewBatch()
	for _, c := range b.changes {
		ok, err := s.Exists(ctx, c.field)
		if err != nil {
			return nil, err
		}
		if !ok {
			prior.Delete(c.field)
			continue
		}
		v, err := s.Load(ctx, c.field)
		if err != nil {
			return nil, err
		}
		prior.Put(c.field, v)
	}
	return prior, nil
}

func (b *Batch) truncate(n int) *Batch {
	return &Batch{changes: b.changes[:n]}
}

func rollback(ctx context.Context, undo []Change, logger hclog.Logger) {
	var merr *multierror.Error
	for i := len(undo) - 1; i >= 0; i-- {
		if _, err := applyOne(ctx, undo[i].Store, undo[i].Batch); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("restoring %v: %w", undo[i].Batch.Fields(), err))
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		logger.Warn("unable to restore prior values after failed apply", "error", err)
	}
}
