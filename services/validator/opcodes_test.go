package validator

import (
	"testing"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/stretchr/testify/assert"
)

func TestBannedOpcodes(t *testing.T) {
	banned := []vm.OpCode{
		vm.GASPRICE,
		vm.BLOCKHASH,
		vm.COINBASE,
		vm.TIMESTAMP,
		vm.NUMBER,
		vm.PREVRANDAO,
		vm.GASLIMIT,
		vm.SELFBALANCE,
		vm.BASEFEE,
	}
	for _, op := range banned {
		assert.True(t, IsBannedOpcode(op), "expected %s banned", op)
	}

	for _, op := range []vm.OpCode{vm.ADD, vm.SLOAD, vm.SSTORE, vm.CREATE, vm.CALL, vm.GAS} {
		assert.False(t, IsBannedOpcode(op), "expected %s not banned", op)
	}
}

func TestOpcodeClassification(t *testing.T) {
	assert.True(t, IsCreateOpcode(vm.CREATE))
	assert.True(t, IsCreateOpcode(vm.CREATE2))
	assert.False(t, IsCreateOpcode(vm.CALL))

	assert.True(t, IsStorageOpcode(vm.SLOAD))
	assert.True(t, IsStorageOpcode(vm.SSTORE))
	assert.False(t, IsStorageOpcode(vm.MLOAD))
}

func TestOpcodeName(t *testing.T) {
	if got := OpcodeName(vm.TIMESTAMP); got != "TIMESTAMP" {
		t.Fatalf("expected TIMESTAMP, got %s", got)
	}
	if got := OpcodeName(vm.GASPRICE); got != "GASPRICE" {
		t.Fatalf("expected GASPRICE, got %s", got)
	}
	// undefined opcodes render as their hex value
	if got := OpcodeName(vm.OpCode(0x0c)); got != "0x0c" {
		t.Fatalf("expected 0x0c, got %s", got)
	}
}
