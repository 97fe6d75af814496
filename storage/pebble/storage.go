package pebble

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog"

	"github.com/smallyunet/userop-validator/storage"
)

var _ storage.Store = (*Storage)(nil)

type Storage struct {
	db  *pebble.DB
	log zerolog.Logger
}

// New creates a new storage instance using the provided dir location as the
// storage directory.
func New(dir string, log zerolog.Logger) (*Storage, error) {
	cache := pebble.NewCache(1 << 20)
	defer cache.Unref()

	opts := &pebble.Options{
		Cache:                 cache,
		FormatMajorVersion:    pebble.FormatNewest,
		L0CompactionThreshold: 2,
		L0StopWritesThreshold: 1000,
		// When the maximum number of bytes for a level is exceeded, compaction is requested.
		LBaseMaxBytes: 64 << 20, // 64 MB
		Levels:        make([]pebble.LevelOptions, 7),
		MaxOpenFiles:  16384,
		// Writes are stopped when the sum of the queued memtable sizes exceeds MemTableStopWritesThreshold*MemTableSize.
		MemTableSize:                64 << 20,
		MemTableStopWritesThreshold: 4,
		MaxConcurrentCompactions:    func() int { return 4 },
	}

	for i := 0; i < len(opts.Levels); i++ {
		l := &opts.Levels[i]
		l.BlockSize = 32 << 10       // 32 KB
		l.IndexBlockSize = 256 << 10 // 256 KB
		if i > 0 {
			// L0 starts at 2MiB, each level is 2x the previous.
			l.TargetFileSize = opts.Levels[i-1].TargetFileSize * 2
		}
		l.EnsureDefaults()
	}
	opts.EnsureDefaults()

	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	return &Storage{db: db, log: log.With().Str("component", "storage").Logger()}, nil
}

// NewInMemory creates a pebble storage backed by an in-memory filesystem,
// used by tests.
func NewInMemory(log zerolog.Logger) (*Storage, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory db: %w", err)
	}
	return &Storage{db: db, log: log.With().Str("component", "storage").Logger()}, nil
}

func (s *Storage) Set(keyCode byte, key []byte, value []byte) error {
	// writes are idempotent, sync is not worth the latency here
	return s.db.Set(makePrefix(keyCode, key), value, &pebble.WriteOptions{Sync: false})
}

func (s *Storage) Get(keyCode byte, key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(makePrefix(keyCode, key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, nil
}

func (s *Storage) Delete(keyCode byte, key []byte) error {
	return s.db.Delete(makePrefix(keyCode, key), &pebble.WriteOptions{Sync: false})
}

func (s *Storage) Iterate(keyCode byte, fn func(key []byte, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{keyCode},
		UpperBound: []byte{keyCode + 1},
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}
		if err := fn(iter.Key()[1:], value); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}
