package reputation

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/smallyunet/userop-validator/storage"
)

// PersistentStore keeps the same semantics as InMemoryStore but writes every
// counter change through to a ReputationIndexer, so bans survive restarts.
// Status is recomputed from the persisted counters with the store's own
// thresholds, both on load and after every update.
type PersistentStore struct {
	mu                sync.RWMutex
	entries           map[common.Address]*Entry
	index             storage.ReputationIndexer
	throttleThreshold uint64
	banThreshold      uint64
	logger            zerolog.Logger
}

var _ Store = (*PersistentStore)(nil)

func NewPersistentStore(
	index storage.ReputationIndexer,
	throttleThreshold, banThreshold uint64,
	logger zerolog.Logger,
) (*PersistentStore, error) {
	if throttleThreshold == 0 {
		throttleThreshold = DefaultThrottleThreshold
	}
	if banThreshold == 0 {
		banThreshold = DefaultBanThreshold
	}

	s := &PersistentStore{
		entries:           make(map[common.Address]*Entry),
		index:             index,
		throttleThreshold: throttleThreshold,
		banThreshold:      banThreshold,
		logger:            logger.With().Str("component", "reputation").Logger(),
	}

	err := index.ForEach(func(addr common.Address, record storage.ReputationRecord) error {
		s.entries[addr] = &Entry{
			OpsSeen:   record.OpsSeen,
			OpsFailed: record.OpsFailed,
			Status:    statusFor(record.OpsFailed, throttleThreshold, banThreshold),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("entries", len(s.entries)).
		Msg("loaded reputation entries from storage")

	return s, nil
}

func (s *PersistentStore) Status(addr common.Address) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[addr]
	if !ok {
		return StatusOK
	}
	return e.Status
}

func (s *PersistentStore) Update(addr common.Address, successful bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[addr]
	if !ok {
		e = &Entry{}
		s.entries[addr] = e
	}

	e.OpsSeen++
	if !successful {
		e.OpsFailed++
	}
	e.Status = statusFor(e.OpsFailed, s.throttleThreshold, s.banThreshold)

	err := s.index.StoreEntry(addr, storage.ReputationRecord{
		OpsSeen:   e.OpsSeen,
		OpsFailed: e.OpsFailed,
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("address", addr.Hex()).
			Msg("failed to persist reputation entry")
	}
}

func (s *PersistentStore) Clear(addr common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, addr)
	if err := s.index.DeleteEntry(addr); err != nil {
		s.logger.Error().
			Err(err).
			Str("address", addr.Hex()).
			Msg("failed to delete reputation entry")
	}
}

func (s *PersistentStore) Entry(addr common.Address) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[addr]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (s *PersistentStore) Entries() map[common.Address]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[common.Address]Entry, len(s.entries))
	for addr, e := range s.entries {
		out[addr] = *e
	}
	return out
}
