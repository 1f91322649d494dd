package statestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	coerrors "github.com/cyberpunk042/continuity-orchestrator-sub000/internal/errors"
)

const lockPollInterval = 50 * time.Millisecond

// Store owns atomic load/save of a single Document on disk, guarded by an
// OS-level advisory lock so that at most one tick (or renewal/release
// writer) holds the document at a time.
type Store struct {
	path     string
	lockPath string
	lock     *flock.Flock
}

// New returns a Store rooted at path. The lock file lives alongside it
// with a ".lock" suffix, matching the convention of keeping the lock file
// distinct from the data file so a crashed writer never leaves the data
// file in a locked-looking state.
func New(path string) *Store {
	return &Store{
		path:     path,
		lockPath: path + ".lock",
		lock:     flock.New(path + ".lock"),
	}
}

// Lock blocks until the exclusive advisory lock on the state file is
// acquired or ctx is done. Callers must call Unlock when finished.
func (s *Store) Lock(ctx context.Context) error {
	ok, err := s.lock.TryLockContext(ctx, lockPollInterval)
	if err != nil {
		return coerrors.Wrap(coerrors.ReasonPersistenceFailed, "acquire state lock", err)
	}
	if !ok {
		return coerrors.New(coerrors.ReasonPersistenceFailed, "state lock not acquired")
	}
	return nil
}

// Unlock releases the lock acquired by Lock.
func (s *Store) Unlock() error {
	return s.lock.Unlock()
}

// Load reads the document from disk. If the file does not exist, it
// returns (nil, os.ErrNotExist) so callers can seed a fresh document.
func (s *Store) Load() (*Document, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, coerrors.Wrap(coerrors.ReasonPersistenceFailed, "read state file", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, coerrors.Wrap(coerrors.ReasonPersistenceFailed, "parse state file", err)
	}
	if doc.Actions.Executed == nil {
		doc.Actions.Executed = map[string]ReceiptSummary{}
	}
	return &doc, nil
}

// Save writes doc atomically: serialize, write to a temp file in the same
// directory, fsync, then rename over the target path. Rename is atomic on
// POSIX filesystems, so a reader never observes a partially written file.
func (s *Store) Save(doc *Document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return coerrors.Wrap(coerrors.ReasonPersistenceFailed, "marshal state", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return coerrors.Wrap(coerrors.ReasonPersistenceFailed, "create temp state file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return coerrors.Wrap(coerrors.ReasonPersistenceFailed, "write temp state file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return coerrors.Wrap(coerrors.ReasonPersistenceFailed, "fsync temp state file", err)
	}
	if err := tmp.Close(); err != nil {
		return coerrors.Wrap(coerrors.ReasonPersistenceFailed, "close temp state file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return coerrors.Wrap(coerrors.ReasonPersistenceFailed, "rename state file into place", err)
	}
	return nil
}

// WithLock runs fn while holding the exclusive state-file lock, then
// releases it regardless of fn's outcome. This is the entry point the
// Tick Orchestrator and the Release Protocol both use so that a tick and
// a concurrent renewal/release command never interleave.
func (s *Store) WithLock(ctx context.Context, fn func() error) error {
	if err := s.Lock(ctx); err != nil {
		return err
	}
	defer s.Unlock()
	return fn()
}
