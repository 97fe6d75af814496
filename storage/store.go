package storage

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNotFound is returned when the key does not exist in the storage.
	ErrNotFound = errors.New("entity not found")
)

// Store is the narrow key-value contract the persistence layer provides.
// Keys are namespaced by a single-byte code, the teacher pattern for cheap
// prefix iteration.
type Store interface {
	Set(keyCode byte, key []byte, value []byte) error
	Get(keyCode byte, key []byte) ([]byte, error)
	Delete(keyCode byte, key []byte) error
	Iterate(keyCode byte, fn func(key []byte, value []byte) error) error
	Close() error
}

// ReputationRecord is the persisted form of a reputation entry. Status is
// not stored: it is recomputed from the counters and the configured
// thresholds on load.
type ReputationRecord struct {
	OpsSeen   uint64
	OpsFailed uint64
}

// ReputationIndexer persists per-address reputation counters.
type ReputationIndexer interface {
	StoreEntry(addr common.Address, record ReputationRecord) error
	GetEntry(addr common.Address) (ReputationRecord, error)
	DeleteEntry(addr common.Address) error
	ForEach(fn func(addr common.Address, record ReputationRecord) error) error
}
