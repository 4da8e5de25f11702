package refstate

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Sumatoshi-tech/githarvest/pkg/gitlib"
	"github.com/Sumatoshi-tech/githarvest/pkg/persist"
)

// ErrNoCheckpoint is returned by Store.Load when nothing has been saved yet.
var ErrNoCheckpoint = errors.New("no checkpoint")

const snapshotBasename = "refstate"

// DefaultDir returns the default checkpoint directory (~/.githarvest/checkpoints).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return filepath.Join(home, ".githarvest", "checkpoints")
}

// Key derives the checkpoint directory name for a repository.
func Key(repoPath string, repoID int64) string {
	h := sha256.Sum256([]byte(repoPath + "\x00" + strconv.FormatInt(repoID, 10)))

	return hex.EncodeToString(h[:8])
}

// Store persists the last successfully extracted snapshot of one repository.
type Store struct {
	dir       string
	persister *persist.Persister[Snapshot]
}

// NewStore creates a store rooted at baseDir for the given repository.
func NewStore(baseDir, repoPath string, repoID int64) *Store {
	return &Store{
		dir:       filepath.Join(baseDir, Key(repoPath, repoID)),
		persister: persist.NewPersister[Snapshot](snapshotBasename, persist.NewJSONCodec()),
	}
}

// Dir returns the directory holding this repository's checkpoint.
func (s *Store) Dir() string {
	return s.dir
}

// Load returns the saved snapshot, or ErrNoCheckpoint.
func (s *Store) Load() (*Snapshot, error) {
	snap, err := s.persister.Load(s.dir)
	if errors.Is(err, persist.ErrNotFound) {
		return nil, ErrNoCheckpoint
	}

	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	if snap.Branches == nil {
		snap.Branches = map[string]gitlib.Hash{}
	}

	if snap.Tags == nil {
		snap.Tags = map[string]gitlib.Hash{}
	}

	return snap, nil
}

// Save replaces the stored snapshot atomically.
func (s *Store) Save(snap *Snapshot) error {
	if snap == nil {
		snap = Empty()
	}

	err := s.persister.Save(s.dir, snap)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	return nil
}

// Clear removes the stored snapshot so the next run starts from scratch.
func (s *Store) Clear() error {
	err := os.RemoveAll(s.dir)
	if err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}

	return nil
}
