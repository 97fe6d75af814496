package reputation

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Status of a tracked paymaster/factory address, derived purely from the
// failure counter at update time.
type Status int

const (
	StatusOK Status = iota
	StatusThrottled
	StatusBanned
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusThrottled:
		return "THROTTLED"
	case StatusBanned:
		return "BANNED"
	default:
		return "UNKNOWN"
	}
}

// Default thresholds. These are deliberately lower than the EIP-7562
// recommended values and carry no decay; they are configurable per store.
const (
	DefaultThrottleThreshold = 2
	DefaultBanThreshold      = 5
)

// Entry holds the per-address counters. OpsSeen and OpsFailed only ever
// grow; entries are destroyed only by an explicit Clear.
type Entry struct {
	OpsSeen   uint64 `json:"opsSeen"`
	OpsFailed uint64 `json:"opsFailed"`
	Status    Status `json:"status"`
}

// Store tracks the behavior of factories and paymasters across simulations
// and throttles or bans the ones that keep producing rule violations.
// Unknown addresses default to OK. Implementations must be deterministic:
// status is a pure function of the counters, with no wall-clock dependence.
type Store interface {
	Status(addr common.Address) Status
	Update(addr common.Address, successful bool)
	Clear(addr common.Address)
	Entry(addr common.Address) (Entry, bool)
	Entries() map[common.Address]Entry
}

// InMemoryStore is the default Store, a map keyed by the 20-byte address.
type InMemoryStore struct {
	mu                sync.RWMutex
	entries           map[common.Address]*Entry
	throttleThreshold uint64
	banThreshold      uint64
	logger            zerolog.Logger
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore(throttleThreshold, banThreshold uint64, logger zerolog.Logger) *InMemoryStore {
	if throttleThreshold == 0 {
		throttleThreshold = DefaultThrottleThreshold
	}
	if banThreshold == 0 {
		banThreshold = DefaultBanThreshold
	}
	return &InMemoryStore{
		entries:           make(map[common.Address]*Entry),
		throttleThreshold: throttleThreshold,
		banThreshold:      banThreshold,
		logger:            logger.With().Str("component", "reputation").Logger(),
	}
}

func (s *InMemoryStore) Status(addr common.Address) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[addr]
	if !ok {
		return StatusOK
	}
	return e.Status
}

func (s *InMemoryStore) Update(addr common.Address, successful bool) {
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

	if e.Status != StatusOK {
		s.logger.Warn().
			Str("address", addr.Hex()).
			Uint64("opsSeen", e.OpsSeen).
			Uint64("opsFailed", e.OpsFailed).
			Str("status", e.Status.String()).
			Msg("entity reputation degraded")
	}
}

func (s *InMemoryStore) Clear(addr common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, addr)
}

func (s *InMemoryStore) Entry(addr common.Address) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[addr]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (s *InMemoryStore) Entries() map[common.Address]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[common.Address]Entry, len(s.entries))
	for addr, e := range s.entries {
		out[addr] = *e
	}
	return out
}

func statusFor(opsFailed, throttleThreshold, banThreshold uint64) Status {
	switch {
	case opsFailed >= banThreshold:
		return StatusBanned
	case opsFailed >= throttleThreshold:
		return StatusThrottled
	default:
		return StatusOK
	}
}
