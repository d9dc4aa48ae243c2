// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package kv

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/secretstorage/internal/errors"
)

// FileStore is a Store that keeps one file per field below a directory.
// Fields containing "/" are stored in nested directories; each path segment
// is query escaped so the identity delimiter is safe on every platform.
type FileStore struct {
	dir    string
	mode   os.FileMode
	logger hclog.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at dir.  The directory is created
// on first write.  Supports the options of WithFileMode and WithLogger.
func NewFileStore(ctx context.Context, dir string, opt ...Option) (*FileStore, error) {
	const op = "kv.NewFileStore"
	if dir == "" {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing directory")
	}
	opts, err := getOpts(opt...)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return &FileStore{
		dir:    filepath.Clean(dir),
		mode:   opts.withFileMode,
		logger: opts.withLogger.Named("file-store"),
	}, nil
}

func (s *FileStore) path(ctx context.Context, field string) (string, error) {
	const op = "kv.(FileStore).path"
	if field == "" {
		return "", errors.New(ctx, errors.InvalidParameter, op, "missing field")
	}
	segments := strings.Split(field, "/")
	for i, seg := range segments {
		switch seg {
		case "", ".", "..":
			return "", errors.New(ctx, errors.InvalidParameter, op, fmt.Sprintf("field %q has an invalid path segment", field))
		}
		segments[i] = url.QueryEscape(seg)
	}
	return filepath.Join(append([]string{s.dir}, segments...)...), nil
}

// Store implements Store.  The value is written to a temporary file which is
// then renamed over the destination.
func (s *FileStore) Store(ctx context.Context, field string, value []byte) error {
	const op = "kv.(FileStore).Store"
	p, err := s.path(ctx, field)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io), errors.WithMsg("unable to create directory"))
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	tmpName := tmp.Name()
	cleanup := func() {
		if err := os.Remove(tmpName); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("unable to remove temporary file", "path", tmpName, "error", err)
		}
	}
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	if err := os.Chmod(tmpName, s.mode); err != nil {
		cleanup()
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	if err := os.Rename(tmpName, p); err != nil {
		cleanup()
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	return nil
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, field string) ([]byte, error) {
	const op = "kv.(FileStore).Load"
	p, err := s.path(ctx, field)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	b, err := os.ReadFile(p)
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		return nil, errors.New(ctx, errors.RecordNotFound, op, fmt.Sprintf("field %q not found", field))
	case err != nil:
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	return b, nil
}

// Exists implements Store.
func (s *FileStore) Exists(ctx context.Context, field string) (bool, error) {
	const op = "kv.(FileStore).Exists"
	p, err := s.path(ctx, field)
	if err != nil {
		return false, errors.Wrap(ctx, err, op)
	}
	fi, err := os.Stat(p)
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	return !fi.IsDir(), nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, field string) error {
	const op = "kv.(FileStore).Delete"
	p, err := s.path(ctx, field)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	fi, err := os.Lstat(p)
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	case fi.IsDir():
		// Directories hold nested fields, never a value of their own.
		return nil
	}
	if err := os.Remove(p); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	return nil
}

// Clear implements Store.
func (s *FileStore) Clear(ctx context.Context) error {
	const op = "kv.(FileStore).Clear"
	if err := os.RemoveAll(s.dir); err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	return nil
}

// Entries implements Store.  Names are relative to the store directory using
// "/" separators, matching the fields they were stored under.
func (s *FileStore) Entries(ctx context.Context) ([]string, error) {
	const op = "kv.(FileStore).Entries"
	var fields []string
	err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) && p == s.dir {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return err
		}
		segments := strings.Split(filepath.ToSlash(rel), "/")
		for i, seg := range segments {
			if segments[i], err = url.QueryUnescape(seg); err != nil {
				return err
			}
		}
		fields = append(fields, strings.Join(segments, "/"))
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	slices.Sort(fields)
	return fields, nil
}
