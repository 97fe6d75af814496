package validator

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smallyunet/userop-validator/models"
)

// Base costs of the pre-verification gas estimate: the fixed transaction
// cost plus a flat per-operation bundler overhead.
const (
	txBaseGas        = 21_000
	bundlerOverhead  = 5_000
	zeroByteCost     = 4
	nonZeroByteCost  = 16
	packedFieldChars = 66 // 0x + 32 bytes
)

var hexBytesRe = regexp.MustCompile(`^0x[0-9a-fA-F]*$`)

var userOpFields = []string{
	"sender",
	"nonce",
	"initCode",
	"callData",
	"accountGasLimits",
	"preVerificationGas",
	"gasFees",
	"paymasterAndData",
	"signature",
}

var byteFields = []string{
	"initCode",
	"callData",
	"accountGasLimits",
	"gasFees",
	"paymasterAndData",
	"signature",
}

// ValidateUserOpStructure checks a loosely typed record (typically decoded
// JSON) for structural well-formedness: all nine fields present, the sender
// a valid address, byte fields even-length 0x hex, the two packed gas fields
// exactly 32 bytes, and the declared preVerificationGas at least the
// computed minimum. It never returns an error; problems are reported as
// strings.
func ValidateUserOpStructure(raw map[string]interface{}) models.StaticResult {
	var errors []string

	for _, field := range userOpFields {
		if _, ok := raw[field]; !ok {
			errors = append(errors, fmt.Sprintf("missing field: %s", field))
		}
	}
	if len(errors) > 0 {
		return models.StaticResult{IsValid: false, Errors: errors}
	}

	if s, ok := raw["sender"].(string); !ok || !common.IsHexAddress(s) {
		errors = append(errors, "sender is not a valid address")
	}

	for _, field := range byteFields {
		s, ok := raw[field].(string)
		if !ok {
			errors = append(errors, fmt.Sprintf("%s must be a hex string", field))
			continue
		}
		if !hexBytesRe.MatchString(s) || len(s)%2 != 0 {
			errors = append(errors, fmt.Sprintf("%s is not even-length 0x hex", field))
			continue
		}
		if (field == "accountGasLimits" || field == "gasFees") && len(s) != packedFieldChars {
			errors = append(errors, fmt.Sprintf("%s must be exactly 32 bytes", field))
		}
	}

	nonce, err := parseQuantity(raw["nonce"])
	if err != nil {
		errors = append(errors, fmt.Sprintf("nonce: %v", err))
	}
	pvg, err := parseQuantity(raw["preVerificationGas"])
	if err != nil {
		errors = append(errors, fmt.Sprintf("preVerificationGas: %v", err))
	}

	if len(errors) > 0 {
		return models.StaticResult{IsValid: false, Errors: errors}
	}

	op := &models.PackedUserOperation{
		Sender:             common.HexToAddress(raw["sender"].(string)),
		Nonce:              nonce,
		InitCode:           mustHexBytes(raw["initCode"].(string)),
		CallData:           mustHexBytes(raw["callData"].(string)),
		PreVerificationGas: pvg,
		PaymasterAndData:   mustHexBytes(raw["paymasterAndData"].(string)),
		Signature:          mustHexBytes(raw["signature"].(string)),
	}
	copy(op.AccountGasLimits[:], mustHexBytes(raw["accountGasLimits"].(string)))
	copy(op.GasFees[:], mustHexBytes(raw["gasFees"].(string)))

	if minimum := CalcPreVerificationGas(op); pvg.Cmp(minimum) < 0 {
		errors = append(errors, fmt.Sprintf(
			"preVerificationGas %s is below the computed minimum %s", pvg, minimum,
		))
	}

	return models.StaticResult{IsValid: len(errors) == 0, Errors: errors}
}

// CalcPreVerificationGas estimates the gas a bundler pays outside the
// on-chain execution of the operation: the transaction base cost, a flat
// overhead, and calldata pricing (4 per zero byte, 16 per non-zero byte)
// over the concatenated bytes of all nine fields.
func CalcPreVerificationGas(op *models.PackedUserOperation) *big.Int {
	var buf []byte
	buf = append(buf, op.Sender.Bytes()...)
	buf = append(buf, quantityBytes(op.Nonce)...)
	buf = append(buf, op.InitCode...)
	buf = append(buf, op.CallData...)
	buf = append(buf, op.AccountGasLimits[:]...)
	buf = append(buf, quantityBytes(op.PreVerificationGas)...)
	buf = append(buf, op.GasFees[:]...)
	buf = append(buf, op.PaymasterAndData...)
	buf = append(buf, op.Signature...)

	gas := uint64(txBaseGas + bundlerOverhead)
	for _, b := range buf {
		if b == 0 {
			gas += zeroByteCost
		} else {
			gas += nonZeroByteCost
		}
	}
	return new(big.Int).SetUint64(gas)
}

// parseQuantity accepts the integer forms JSON can carry: a number, a
// decimal string, or 0x hex (odd length allowed for quantities).
func parseQuantity(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case float64:
		if n < 0 || n != float64(uint64(n)) {
			return nil, fmt.Errorf("not a non-negative integer: %v", n)
		}
		return new(big.Int).SetUint64(uint64(n)), nil
	case string:
		if strings.HasPrefix(n, "0x") || strings.HasPrefix(n, "0X") {
			i, ok := new(big.Int).SetString(n[2:], 16)
			if !ok {
				return nil, fmt.Errorf("invalid hex quantity: %q", n)
			}
			return i, nil
		}
		i, ok := new(big.Int).SetString(n, 10)
		if !ok {
			return nil, fmt.Errorf("invalid decimal quantity: %q", n)
		}
		return i, nil
	default:
		return nil, fmt.Errorf("unsupported quantity type %T", v)
	}
}

// quantityBytes renders a quantity as its minimal big-endian bytes, the same
// bytes its even-padded lowercase hex encoding stands for.
func quantityBytes(v *big.Int) []byte {
	if v == nil || v.Sign() == 0 {
		return []byte{0}
	}
	return v.Bytes()
}

func mustHexBytes(s string) []byte {
	b, _ := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	return b
}
