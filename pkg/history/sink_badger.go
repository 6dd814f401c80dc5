package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/klauspost/compress/gzip"
)

const (
	stateKey      = "history/state"
	archivePrefix = "history/archive/"
)

// BadgerSink persists the history state in an embedded BadgerDB instance.
// Rotated archives live in the same database under a dated key, gzipped.
type BadgerSink struct {
	db *badger.DB
}

// BadgerConfig holds BadgerDB sink configuration.
type BadgerConfig struct {
	// Path to store database files.
	Path string

	// InMemory mode (for testing).
	InMemory bool
}

// NewBadgerSink opens a badger-backed sink.
// Memory options are kept small: the sink holds one state blob plus archives,
// not a write-heavy time-series workload.
func NewBadgerSink(cfg BadgerConfig) (*BadgerSink, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(16 * 1024 * 1024).
		WithNumMemtables(2).
		WithMaxLevels(4).
		WithNumCompactors(1).
		WithValueLogFileSize(64 << 20).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerSink{db: db}, nil
}

// Load reads the persisted state. A missing key is not an error.
func (s *BadgerSink) Load() (*State, error) {
	var st *State
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(stateKey))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var decoded State
			if err := json.Unmarshal(val, &decoded); err != nil {
				return fmt.Errorf("failed to parse history state: %w", err)
			}
			st = &decoded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Store writes the full state under the state key.
func (s *BadgerSink) Store(st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to serialize history: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(stateKey), data)
	})
}

// Size returns the serialized size of the stored state in bytes.
func (s *BadgerSink) Size() (int64, error) {
	var size int64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(stateKey))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		size = item.ValueSize()
		return nil
	})
	return size, err
}

// Archive gzips the current state blob and stores it under a dated key.
func (s *BadgerSink) Archive(name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(stateKey))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		var compressed bytes.Buffer
		err = item.Value(func(val []byte) error {
			gz := gzip.NewWriter(&compressed)
			if _, err := gz.Write(val); err != nil {
				return err
			}
			return gz.Close()
		})
		if err != nil {
			return fmt.Errorf("failed to compress archive: %w", err)
		}

		return txn.Set([]byte(archivePrefix+name), compressed.Bytes())
	})
}

// Close shuts down BadgerDB cleanly.
func (s *BadgerSink) Close() error {
	return s.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection to reclaim disk space.
// Returns badger.ErrNoRewrite when nothing needed collecting.
func (s *BadgerSink) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

// IsNoRewrite reports whether a RunGC error only means there was nothing to
// collect, as opposed to a real I/O failure.
func IsNoRewrite(err error) bool {
	return errors.Is(err, badger.ErrNoRewrite)
}
