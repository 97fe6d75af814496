package models

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EntityKind identifies which validation-phase participant is currently
// executing code.
type EntityKind int

const (
	EntitySender EntityKind = iota
	EntityFactory
	EntityPaymaster
	EntityEntryPoint
)

func (e EntityKind) String() string {
	switch e {
	case EntitySender:
		return "sender"
	case EntityFactory:
		return "factory"
	case EntityPaymaster:
		return "paymaster"
	case EntityEntryPoint:
		return "entrypoint"
	default:
		return fmt.Sprintf("entity(%d)", int(e))
	}
}

// ViolationKind tags the three rule-break categories of EIP-7562.
type ViolationKind int

const (
	ViolationBannedOpcode ViolationKind = iota
	ViolationIllegalStorageAccess
	ViolationEntityRestriction
)

func (k ViolationKind) String() string {
	switch k {
	case ViolationBannedOpcode:
		return "banned-opcode"
	case ViolationIllegalStorageAccess:
		return "illegal-storage-access"
	case ViolationEntityRestriction:
		return "entity-restriction"
	default:
		return fmt.Sprintf("violation(%d)", int(k))
	}
}

// ValidationViolation records one EIP-7562 rule break observed during
// validation-phase simulation. StorageOwner and Slot are only set for
// ViolationIllegalStorageAccess.
type ValidationViolation struct {
	Kind           ViolationKind  `json:"kind"`
	Entity         EntityKind     `json:"entity"`
	ProgramCounter uint64         `json:"programCounter"`
	Message        string         `json:"message"`
	StorageOwner   common.Address `json:"storageOwner,omitempty"`
	Slot           common.Hash    `json:"slot,omitempty"`
}

func (v ValidationViolation) String() string {
	return fmt.Sprintf("[%s] %s (entity=%s pc=%d)", v.Kind, v.Message, v.Entity, v.ProgramCounter)
}

// SimulationResult is the aggregate outcome of one validation-phase
// simulation. IsValid holds iff both Errors and Violations are empty.
type SimulationResult struct {
	IsValid    bool                  `json:"isValid"`
	Errors     []string              `json:"errors"`
	Violations []ValidationViolation `json:"violations"`
	GasUsed    *big.Int              `json:"gasUsed,omitempty"`
}

// StaticResult is the outcome of structural validation, before any
// simulation is attempted.
type StaticResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}
