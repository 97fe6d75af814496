package pebble

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/smallyunet/userop-validator/storage"
)

var _ storage.ReputationIndexer = (*Reputations)(nil)

// Reputations persists reputation counters keyed by the 20-byte address,
// RLP-encoded under a byte-prefix key.
type Reputations struct {
	store *Storage
}

func NewReputations(store *Storage) *Reputations {
	return &Reputations{
		store: store,
	}
}

func (r *Reputations) StoreEntry(addr common.Address, record storage.ReputationRecord) error {
	value, err := rlp.EncodeToBytes(record)
	if err != nil {
		return fmt.Errorf("failed to encode reputation record: %w", err)
	}
	return r.store.Set(reputationEntryKey, addr.Bytes(), value)
}

func (r *Reputations) GetEntry(addr common.Address) (storage.ReputationRecord, error) {
	value, err := r.store.Get(reputationEntryKey, addr.Bytes())
	if err != nil {
		return storage.ReputationRecord{}, err
	}

	var record storage.ReputationRecord
	if err := rlp.DecodeBytes(value, &record); err != nil {
		return storage.ReputationRecord{}, fmt.Errorf("failed to decode reputation record: %w", err)
	}
	return record, nil
}

func (r *Reputations) DeleteEntry(addr common.Address) error {
	return r.store.Delete(reputationEntryKey, addr.Bytes())
}

func (r *Reputations) ForEach(fn func(addr common.Address, record storage.ReputationRecord) error) error {
	return r.store.Iterate(reputationEntryKey, func(key, value []byte) error {
		var record storage.ReputationRecord
		if err := rlp.DecodeBytes(value, &record); err != nil {
			return fmt.Errorf("failed to decode reputation record: %w", err)
		}
		return fn(common.BytesToAddress(key), record)
	})
}
