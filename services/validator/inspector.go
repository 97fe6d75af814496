package validator

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/smallyunet/userop-validator/models"
)

// StepSink receives one callback per executed EVM instruction.
type StepSink interface {
	OnStep(pc uint64, op vm.OpCode, scope tracing.OpContext)
}

// Inspector applies the EIP-7562 admission rules to every instruction
// executed during a validation-phase simulation. It borrows the mutable
// ValidationContext for the lifetime of its attachment and consults the
// storage rule engine read-only.
type Inspector struct {
	ctx   *ValidationContext
	rules StorageRules
}

var _ StepSink = (*Inspector)(nil)

func NewInspector(ctx *ValidationContext) *Inspector {
	return &Inspector{ctx: ctx}
}

// Hooks packages the inspector as per-instruction tracing hooks suitable for
// mounting on the embedded EVM.
func (i *Inspector) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnOpcode: i.onOpcode,
	}
}

func (i *Inspector) onOpcode(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
	if err != nil {
		return
	}
	i.OnStep(pc, vm.OpCode(op), scope)
}

// OnStep evaluates the three admission checks for one instruction. The
// checks are independent of each other; since the banned, creation and
// storage opcode sets are disjoint, a single step records at most one
// violation.
func (i *Inspector) OnStep(pc uint64, op vm.OpCode, scope tracing.OpContext) {
	if i.ctx.Aborted() {
		return
	}
	entity := i.ctx.Entity()

	if IsBannedOpcode(op) {
		i.ctx.RecordViolation(models.ValidationViolation{
			Kind:           models.ViolationBannedOpcode,
			Entity:         entity,
			ProgramCounter: pc,
			Message:        fmt.Sprintf("banned opcode %s used by %s during validation", OpcodeName(op), entity),
		})
	}

	if IsCreateOpcode(op) && entity != models.EntityFactory {
		i.ctx.RecordViolation(models.ValidationViolation{
			Kind:           models.ViolationEntityRestriction,
			Entity:         entity,
			ProgramCounter: pc,
			Message:        fmt.Sprintf("%s used by %s: contract creation is only permitted for the factory", OpcodeName(op), entity),
		})
	}

	if IsStorageOpcode(op) {
		stack := scope.StackData()
		if len(stack) == 0 {
			return
		}
		slot := common.Hash(stack[len(stack)-1].Bytes32())
		owner := scope.Address()

		if err := (StorageRules{}).Check(entity, owner, slot, i.ctx); err != nil {
			i.ctx.RecordViolation(models.ValidationViolation{
				Kind:           models.ViolationIllegalStorageAccess,
				Entity:         entity,
				ProgramCounter: pc,
				Message:        err.Error(),
				StorageOwner:   owner,
				Slot:           slot,
			})
		}
	}
}
