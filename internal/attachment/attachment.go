// Package attachment stores attachment blobs under uuid-keyed names,
// independent of the request/task database. It is an external collaborator
// by design (see spec non-goals on document rendering/storage); this
// package implements just enough of the contract — uuid-keyed Put
// with bounded collision retry, and Get — to exercise it from tests and a
// local composition root.
package attachment

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/c360studio/oaengine/internal/errs"
)

var errExhausted = errors.New("exhausted collision-retry budget generating an attachment key")

// Store is the attachment blob contract: Put under a generated key, Get by
// key. Implementations live outside this module's persistence layer (see
// spec §2 non-goals); Dir is the reference implementation used by tests
// and local/dev composition.
type Store interface {
	Put(ctx context.Context, r io.Reader) (key string, err error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// maxKeyRetries bounds how many generated keys Dir.Put tries before
// raising a storage error, mirroring the five-retry collision budget.
const maxKeyRetries = 5

// Dir is a filesystem-backed attachment Store: one file per key under a
// directory, read-many/write-many, collision-avoided by retrying a fresh
// uuid key.
type Dir struct {
	root string
}

// NewDir builds a Dir store rooted at dir, creating it if necessary.
func NewDir(dir string) (*Dir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Storage("attachment_dir_create_failed", err)
	}
	return &Dir{root: dir}, nil
}

// Put writes r's contents under a newly generated key, retrying on key
// collision up to maxKeyRetries times.
func (d *Dir) Put(ctx context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", errs.Storage("attachment_read_failed", err)
	}

	for attempt := 0; attempt < maxKeyRetries; attempt++ {
		key := uuid.NewString()
		path := filepath.Join(d.root, key)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return "", errs.Storage("attachment_write_failed", err)
		}
		_, writeErr := f.Write(data)
		closeErr := f.Close()
		if writeErr != nil {
			return "", errs.Storage("attachment_write_failed", writeErr)
		}
		if closeErr != nil {
			return "", errs.Storage("attachment_write_failed", closeErr)
		}
		return key, nil
	}
	return "", errs.Storage("attachment_key_exhausted", errExhausted)
}

// Get opens the blob stored under key.
func (d *Dir) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(d.root, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NotFound(errs.CodeNotFound)
		}
		return nil, errs.Storage("attachment_read_failed", err)
	}
	return f, nil
}
