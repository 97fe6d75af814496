package api

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/smallyunet/userop-validator/models"
)

const validatedOpCacheSize = 10_000

// ValidatedOpCache remembers the results of recently validated operations by
// hash. ValidateUserOperation adds every valid result; it does not consult
// the cache before simulating, so a repeated submission is simulated again.
type ValidatedOpCache struct {
	cache *expirable.LRU[common.Hash, *models.SimulationResult]
}

func NewValidatedOpCache(ttl time.Duration) *ValidatedOpCache {
	return &ValidatedOpCache{
		cache: expirable.NewLRU[common.Hash, *models.SimulationResult](
			validatedOpCacheSize,
			nil,
			ttl,
		),
	}
}

func (c *ValidatedOpCache) Add(hash common.Hash, result *models.SimulationResult) {
	c.cache.Add(hash, result)
}

func (c *ValidatedOpCache) Get(hash common.Hash) (*models.SimulationResult, bool) {
	return c.cache.Get(hash)
}

func (c *ValidatedOpCache) Len() int {
	return c.cache.Len()
}
