package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/bulkflow/pkg/bulk"
)

const statusKeyPrefix = "status:"

// PebbleStore keeps statuses in an embedded pebble database, one key per
// command.
type PebbleStore struct {
	db     *pebble.DB
	logger hclog.Logger
}

// OpenPebble opens or creates the database at path. A nil fs uses the
// operating system's filesystem.
func OpenPebble(path string, fs vfs.FS, logger hclog.Logger) (*PebbleStore, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	opts := &pebble.Options{}
	if fs != nil {
		opts.FS = fs
	} else if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create status store directory: %w", err)
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble status store: %w", err)
	}
	return &PebbleStore{db: db, logger: logger.Named("pebble-status-store")}, nil
}

func statusKey(id string) []byte {
	return []byte(statusKeyPrefix + id)
}

// GetStatus implements bulk.StatusStore.
func (s *PebbleStore) GetStatus(_ context.Context, id string) (*bulk.Status, error) {
	v, closer, err := s.db.Get(statusKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return bulk.UnknownStatus(id), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status %s: %w", id, err)
	}
	defer closer.Close()

	st, err := bulk.StatusCodec.Decode(v)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored status %s: %w", id, err)
	}
	return st, nil
}

// SetStatus implements bulk.StatusStore.
func (s *PebbleStore) SetStatus(_ context.Context, st *bulk.Status) ([]byte, error) {
	if st.Delta {
		return nil, bulk.ErrDeltaNotPersistable
	}

	payload, err := bulk.StatusCodec.Encode(st)
	if err != nil {
		return nil, err
	}
	if err := s.db.Set(statusKey(st.ID), payload, pebble.Sync); err != nil {
		return nil, fmt.Errorf("failed to write status %s: %w", st.ID, err)
	}

	s.logger.Trace("status stored", "command_id", st.ID, "state", st.State)
	return payload, nil
}

// Close closes the database.
func (s *PebbleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
