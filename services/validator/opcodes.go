package validator

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/core/vm"
)

// bannedOpcodes are the environment opcodes forbidden during the validation
// phase by EIP-7562: their result depends on block-level or global state,
// making validation non-deterministic between mempool and inclusion time.
var bannedOpcodes = map[vm.OpCode]struct{}{
	vm.GASPRICE:    {},
	vm.BLOCKHASH:   {},
	vm.COINBASE:    {},
	vm.TIMESTAMP:   {},
	vm.NUMBER:      {},
	vm.PREVRANDAO:  {}, // 0x44, DIFFICULTY pre-merge
	vm.GASLIMIT:    {},
	vm.SELFBALANCE: {},
	vm.BASEFEE:     {},
}

// IsBannedOpcode reports whether the opcode may never appear during
// validation-phase execution.
func IsBannedOpcode(op vm.OpCode) bool {
	_, ok := bannedOpcodes[op]
	return ok
}

// IsCreateOpcode reports whether the opcode deploys a contract. Creation is
// only permitted while the factory entity is executing.
func IsCreateOpcode(op vm.OpCode) bool {
	return op == vm.CREATE || op == vm.CREATE2
}

// IsStorageOpcode reports whether the opcode accesses persistent storage and
// must be routed through the storage rule engine.
func IsStorageOpcode(op vm.OpCode) bool {
	return op == vm.SLOAD || op == vm.SSTORE
}

// OpcodeName returns a stable printable name for the opcode, falling back to
// its hex value for undefined bytes.
func OpcodeName(op vm.OpCode) string {
	name := op.String()
	// geth renders undefined opcodes as "opcode 0xNN not defined"
	if strings.HasPrefix(name, "opcode ") {
		return fmt.Sprintf("0x%02x", byte(op))
	}
	return name
}
