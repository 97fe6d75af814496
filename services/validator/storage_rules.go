package validator

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smallyunet/userop-validator/models"
)

// StorageRules decides whether an SLOAD/SSTORE by the given entity against
// the given slot owner is permitted during the validation phase. The engine
// is a pure predicate over the context participants; it never mutates state.
//
// Associated-storage detection for mapping slots (keccak256(address || p))
// is intentionally not implemented; paymaster access to its deposit entry in
// EntryPoint storage is covered by the blanket entryPoint-owner rule.
type StorageRules struct{}

// Check applies the access rules in order, first match wins:
//
//  1. the EntryPoint itself may touch anything
//  2. EntryPoint-owned storage is always accessible (deposits, stakes)
//  3. the sender may touch its own storage
//  4. the factory may touch its own and the sender's storage (deployment)
//  5. the paymaster may touch its own storage
//
// A nil return means the access is allowed.
func (StorageRules) Check(
	entity models.EntityKind,
	owner common.Address,
	slot common.Hash,
	ctx *ValidationContext,
) error {
	if entity == models.EntityEntryPoint {
		return nil
	}
	if owner == ctx.EntryPoint {
		return nil
	}

	switch entity {
	case models.EntitySender:
		if owner == ctx.Sender {
			return nil
		}
	case models.EntityFactory:
		if ctx.Factory != nil && owner == *ctx.Factory {
			return nil
		}
		if owner == ctx.Sender {
			return nil
		}
	case models.EntityPaymaster:
		if ctx.Paymaster != nil && owner == *ctx.Paymaster {
			return nil
		}
	}

	return fmt.Errorf(
		"%s may not access slot %s of %s",
		entity, slot.Hex(), owner.Hex(),
	)
}
