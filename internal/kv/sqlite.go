// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package kv

import (
	"context"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/glebarez/sqlite"
	"github.com/hashicorp/go-dbw"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/secretstorage/internal/errors"
)

// DefaultStoreUrl uses a temp in-memory sqlite database (shared) see: https://www.sqlite.org/inmemorydb.html
const DefaultStoreUrl = "file::memory:?cache=shared"

const maxBusyRetries = 5

// SqliteStore is a Store backed by a sqlite database accessed through dbw.
// Several stores may share one database when given distinct namespaces.
type SqliteStore struct {
	conn      *dbw.DB
	rw        *dbw.RW
	namespace string
	logger    hclog.Logger
}

var (
	_ Store      = (*SqliteStore)(nil)
	_ Transactor = (*SqliteStore)(nil)
)

type entry struct {
	Namespace string `gorm:"primaryKey"`
	Field     string `gorm:"primaryKey"`
	Value     []byte
}

// TableName returns the table name.
func (entry) TableName() string {
	return "secret_storage_entry"
}

// OpenSqlite opens (creating if needed) a sqlite backed store.  Supports the
// options of WithUrl, WithNamespace, WithDebug and WithLogger.
func OpenSqlite(ctx context.Context, opt ...Option) (*SqliteStore, error) {
	const op = "kv.OpenSqlite"
	opts, err := getOpts(opt...)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	if opts.withNamespace == "" {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing namespace")
	}
	url := DefaultStoreUrl
	if opts.withUrl != "" {
		url = opts.withUrl
	}
	logger := opts.withLogger.Named("sqlite-store")
	conn, err := dbw.OpenWith(sqlite.Open(url), dbw.WithLogger(logger), dbw.WithMaxOpenConnections(1))
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	conn.Debug(opts.withDebug)
	s := &SqliteStore{
		conn:      conn,
		rw:        dbw.New(conn),
		namespace: opts.withNamespace,
		logger:    logger,
	}
	if err := s.createTables(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, errors.Wrap(ctx, err, op)
	}
	return s, nil
}

func (s *SqliteStore) createTables(ctx context.Context) error {
	const op = "kv.(SqliteStore).createTables"
	if _, err := s.rw.Exec(ctx, createTables, nil); err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	return nil
}

// Close closes the underlying database.
func (s *SqliteStore) Close(ctx context.Context) error {
	const op = "kv.(SqliteStore).Close"
	if err := s.conn.Close(ctx); err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	return nil
}

// Store implements Store.
func (s *SqliteStore) Store(ctx context.Context, field string, value []byte) error {
	const op = "kv.(SqliteStore).Store"
	if field == "" {
		return errors.New(ctx, errors.InvalidParameter, op, "missing field")
	}
	if value == nil {
		value = []byte{}
	}
	err := s.retry(ctx, func() error {
		_, err := s.rw.Exec(ctx, upsertEntry, []any{s.namespace, field, value})
		return err
	})
	if err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	return nil
}

// Load implements Store.
func (s *SqliteStore) Load(ctx context.Context, field string) ([]byte, error) {
	const op = "kv.(SqliteStore).Load"
	var e entry
	err := s.rw.LookupWhere(ctx, &e, "namespace = ? and field = ?", []any{s.namespace, field})
	switch {
	case errors.Is(err, dbw.ErrRecordNotFound):
		return nil, errors.New(ctx, errors.RecordNotFound, op, fmt.Sprintf("field %q not found", field))
	case err != nil:
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	return e.Value, nil
}

// Exists implements Store.
func (s *SqliteStore) Exists(ctx context.Context, field string) (bool, error) {
	const op = "kv.(SqliteStore).Exists"
	_, err := s.Load(ctx, field)
	switch {
	case errors.IsNotFoundError(err):
		return false, nil
	case err != nil:
		return false, errors.Wrap(ctx, err, op)
	}
	return true, nil
}

// Delete implements Store.
func (s *SqliteStore) Delete(ctx context.Context, field string) error {
	const op = "kv.(SqliteStore).Delete"
	err := s.retry(ctx, func() error {
		_, err := s.rw.Exec(ctx, deleteEntry, []any{s.namespace, field})
		return err
	})
	if err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	return nil
}

// Clear implements Store.  Only the store's namespace is cleared.
func (s *SqliteStore) Clear(ctx context.Context) error {
	const op = "kv.(SqliteStore).Clear"
	err := s.retry(ctx, func() error {
		_, err := s.rw.Exec(ctx, clearNamespace, []any{s.namespace})
		return err
	})
	if err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	return nil
}

// Entries implements Store.
func (s *SqliteStore) Entries(ctx context.Context) ([]string, error) {
	const op = "kv.(SqliteStore).Entries"
	var found []entry
	if err := s.rw.SearchWhere(ctx, &found, "namespace = ?", []any{s.namespace}, dbw.WithLimit(-1), dbw.WithOrder("field")); err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	fields := make([]string, 0, len(found))
	for _, e := range found {
		fields = append(fields, e.Field)
	}
	return fields, nil
}

// ApplyBatch implements Transactor by committing every change in a single
// transaction.
func (s *SqliteStore) ApplyBatch(ctx context.Context, b *Batch) error {
	const op = "kv.(SqliteStore).ApplyBatch"
	if b == nil {
		return errors.New(ctx, errors.InvalidParameter, op, "missing batch")
	}
	err := s.retry(ctx, func() error {
		tx, err := s.rw.Begin(ctx)
		if err != nil {
			return err
		}
		for _, c := range b.changes {
			var err error
			if c.delete {
				_, err = tx.Exec(ctx, deleteEntry, []any{s.namespace, c.field})
			} else {
				value := c.value
				if value == nil {
					value = []byte{}
				}
				_, err = tx.Exec(ctx, upsertEntry, []any{s.namespace, c.field, value})
			}
			if err != nil {
				if rerr := tx.Rollback(ctx); rerr != nil {
					s.logger.Warn("unable to rollback transaction", "error", rerr)
				}
				return err
			}
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	return nil
}

// retry runs fn again with exponential backoff while sqlite reports the
// database as busy.
func (s *SqliteStore) retry(ctx context.Context, fn func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxBusyRetries), ctx)
	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !isBusy(err) {
			return backoff.Permanent(err)
		}
		if err != nil {
			s.logger.Debug("database busy, retrying", "error", err)
		}
		return err
	}, b)
}

func isBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}

const (
	createTables = `
create table if not exists secret_storage_entry (
  namespace text not null,
  field text not null,
  value blob not null,
  primary key (namespace, field)
);
`
	upsertEntry = `
insert into secret_storage_entry (namespace, field, value)
values (?, ?, ?)
on conflict (namespace, field) do update set value = excluded.value;
`
	deleteEntry = `
delete from secret_storage_entry where namespace = ? and field = ?;
`
	clearNamespace = `
delete from secret_storage_entry where namespace = ?;
`
)
