package validator

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/smallyunet/userop-validator/models"
)

// Selectors of the two validation-phase entry functions called by the
// EntryPoint on the account and the paymaster.
var (
	// validateUserOp(PackedUserOperation,bytes32,uint256)
	SelectorValidateUserOp = [4]byte{0x19, 0x82, 0x2f, 0x7c}
	// validatePaymasterUserOp(PackedUserOperation,bytes32,uint256)
	SelectorValidatePaymasterUserOp = [4]byte{0x52, 0xb7, 0x51, 0x2c}
)

var packedUserOpArguments abi.Arguments

func init() {
	typ, err := abi.NewType("tuple", "struct PackedUserOperation", []abi.ArgumentMarshaling{
		{Name: "sender", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "initCode", Type: "bytes"},
		{Name: "callData", Type: "bytes"},
		{Name: "accountGasLimits", Type: "bytes32"},
		{Name: "preVerificationGas", Type: "uint256"},
		{Name: "gasFees", Type: "bytes32"},
		{Name: "paymasterAndData", Type: "bytes"},
		{Name: "signature", Type: "bytes"},
	})
	if err != nil {
		panic(fmt.Sprintf("invalid PackedUserOperation ABI type: %v", err))
	}
	packedUserOpArguments = abi.Arguments{{Type: typ, Name: "userOp"}}
}

// EncodeValidateUserOpCall builds the synthetic calldata for the sender
// phase: the validateUserOp selector, a zeroed userOpHash word, a zero
// missingAccountFunds word, and the ABI-encoded packed operation appended so
// account implementations that decode their input exercise realistic paths.
func EncodeValidateUserOpCall(op *models.PackedUserOperation) ([]byte, error) {
	return encodeValidationCall(SelectorValidateUserOp, op)
}

// EncodeValidatePaymasterUserOpCall builds the synthetic calldata for the
// paymaster phase: the validatePaymasterUserOp selector, a zeroed userOpHash
// word, a zero maxCost word, and the ABI-encoded packed operation.
func EncodeValidatePaymasterUserOpCall(op *models.PackedUserOperation) ([]byte, error) {
	return encodeValidationCall(SelectorValidatePaymasterUserOp, op)
}

func encodeValidationCall(selector [4]byte, op *models.PackedUserOperation) ([]byte, error) {
	cp := *op
	if cp.Nonce == nil {
		cp.Nonce = new(big.Int)
	}
	if cp.PreVerificationGas == nil {
		cp.PreVerificationGas = new(big.Int)
	}

	encodedOp, err := packedUserOpArguments.Pack(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode packed user operation: %w", err)
	}

	data := make([]byte, 0, 4+64+len(encodedOp))
	data = append(data, selector[:]...)
	data = append(data, make([]byte, 64)...) // zero userOpHash + zero uint256
	data = append(data, encodedOp...)
	return data, nil
}
