package validator

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallyunet/userop-validator/models"
)

// fakeScope implements tracing.OpContext for driving the inspector without
// an EVM.
type fakeScope struct {
	address common.Address
	stack   []uint256.Int
}

func (s *fakeScope) MemoryData() []byte       { return nil }
func (s *fakeScope) StackData() []uint256.Int { return s.stack }
func (s *fakeScope) Caller() common.Address   { return common.Address{} }
func (s *fakeScope) Address() common.Address  { return s.address }
func (s *fakeScope) CallValue() *uint256.Int  { return uint256.NewInt(0) }
func (s *fakeScope) CallInput() []byte        { return nil }

func inspectorTestContext(throw bool) *ValidationContext {
	factory := common.HexToAddress("0xfac")
	return NewValidationContext(
		common.HexToAddress("0x5e4"),
		common.HexToAddress("0xe41"),
		&factory,
		nil,
		throw,
	)
}

func TestInspector_BannedOpcode(t *testing.T) {
	ctx := inspectorTestContext(false)
	inspector := NewInspector(ctx)

	inspector.OnStep(7, vm.TIMESTAMP, &fakeScope{address: ctx.Sender})

	violations := ctx.Violations()
	require.Len(t, violations, 1)
	assert.Equal(t, models.ViolationBannedOpcode, violations[0].Kind)
	assert.Equal(t, models.EntitySender, violations[0].Entity)
	assert.Equal(t, uint64(7), violations[0].ProgramCounter)
	assert.Contains(t, violations[0].Message, "TIMESTAMP")
}

func TestInspector_CreateOnlyForFactory(t *testing.T) {
	// as factory: CREATE passes
	ctx := inspectorTestContext(false)
	ctx.SetEntity(models.EntityFactory)
	NewInspector(ctx).OnStep(0, vm.CREATE, &fakeScope{address: *ctx.Factory})
	require.Empty(t, ctx.Violations())

	// as sender: the same instruction is an entity restriction
	ctx = inspectorTestContext(false)
	NewInspector(ctx).OnStep(0, vm.CREATE, &fakeScope{address: ctx.Sender})
	violations := ctx.Violations()
	require.Len(t, violations, 1)
	assert.Equal(t, models.ViolationEntityRestriction, violations[0].Kind)
	assert.Contains(t, violations[0].Message, "factory")

	ctx = inspectorTestContext(false)
	NewInspector(ctx).OnStep(0, vm.CREATE2, &fakeScope{address: ctx.Sender})
	require.Len(t, ctx.Violations(), 1)
}

func TestInspector_ForeignStorageAccess(t *testing.T) {
	ctx := inspectorTestContext(false)
	inspector := NewInspector(ctx)

	foreign := common.HexToAddress("0xbad")
	inspector.OnStep(3, vm.SLOAD, &fakeScope{
		address: foreign,
		stack:   []uint256.Int{*uint256.NewInt(0)},
	})

	violations := ctx.Violations()
	require.Len(t, violations, 1)
	assert.Equal(t, models.ViolationIllegalStorageAccess, violations[0].Kind)
	assert.Equal(t, models.EntitySender, violations[0].Entity)
	assert.Equal(t, foreign, violations[0].StorageOwner)
	assert.Equal(t, common.Hash{}, violations[0].Slot)
}

func TestInspector_OwnStorageAccess(t *testing.T) {
	ctx := inspectorTestContext(false)
	inspector := NewInspector(ctx)

	inspector.OnStep(3, vm.SSTORE, &fakeScope{
		address: ctx.Sender,
		stack:   []uint256.Int{*uint256.NewInt(1), *uint256.NewInt(5)},
	})
	require.Empty(t, ctx.Violations())
}

func TestInspector_SlotFromStackTop(t *testing.T) {
	ctx := inspectorTestContext(false)
	inspector := NewInspector(ctx)

	// stack top (last element) is the slot
	inspector.OnStep(0, vm.SLOAD, &fakeScope{
		address: common.HexToAddress("0xbad"),
		stack:   []uint256.Int{*uint256.NewInt(7), *uint256.NewInt(42)},
	})

	violations := ctx.Violations()
	require.Len(t, violations, 1)
	assert.Equal(t, common.BigToHash(big.NewInt(42)), violations[0].Slot)
}

func TestInspector_ThrowModeStopsInspection(t *testing.T) {
	ctx := inspectorTestContext(true)
	aborted := false
	ctx.onAbort = func() { aborted = true }
	inspector := NewInspector(ctx)

	inspector.OnStep(0, vm.TIMESTAMP, &fakeScope{address: ctx.Sender})
	require.True(t, aborted)
	require.Len(t, ctx.Violations(), 1)

	// once aborted, later steps are not inspected
	inspector.OnStep(1, vm.NUMBER, &fakeScope{address: ctx.Sender})
	require.Len(t, ctx.Violations(), 1)
}

func TestInspector_IndependentChecksAcrossSteps(t *testing.T) {
	// consecutive steps trip different checks; storage and banned-opcode
	// checks are evaluated independently and both violations are kept in
	// emission order
	ctx := inspectorTestContext(false)
	inspector := NewInspector(ctx)

	inspector.OnStep(0, vm.SLOAD, &fakeScope{
		address: common.HexToAddress("0xbad"),
		stack:   []uint256.Int{*uint256.NewInt(0)},
	})
	inspector.OnStep(1, vm.TIMESTAMP, &fakeScope{address: ctx.Sender})

	violations := ctx.Violations()
	require.Len(t, violations, 2)
	assert.Equal(t, models.ViolationIllegalStorageAccess, violations[0].Kind)
	assert.Equal(t, models.ViolationBannedOpcode, violations[1].Kind)
}
