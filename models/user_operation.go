package models

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// PackedUserOperation represents an ERC-4337 v0.7 UserOperation in its
// packed on-chain form.
// See: https://eips.ethereum.org/EIPS/eip-4337
type PackedUserOperation struct {
	Sender             common.Address `json:"sender"`
	Nonce              *big.Int       `json:"nonce"`
	InitCode           []byte         `json:"initCode"`
	CallData           []byte         `json:"callData"`
	AccountGasLimits   [32]byte       `json:"accountGasLimits"`
	PreVerificationGas *big.Int       `json:"preVerificationGas"`
	GasFees            [32]byte       `json:"gasFees"`
	PaymasterAndData   []byte         `json:"paymasterAndData"`
	Signature          []byte         `json:"signature"`
}

// Factory returns the factory address packed into the first 20 bytes of
// initCode, or nil if initCode is too short to hold one. Presence is decided
// by length alone: an all-zero factory still counts as present.
func (op *PackedUserOperation) Factory() *common.Address {
	if len(op.InitCode) < common.AddressLength {
		return nil
	}
	addr := common.BytesToAddress(op.InitCode[:common.AddressLength])
	return &addr
}

// FactoryData returns the factory calldata following the factory address.
func (op *PackedUserOperation) FactoryData() []byte {
	if len(op.InitCode) < common.AddressLength {
		return nil
	}
	return op.InitCode[common.AddressLength:]
}

// Paymaster returns the paymaster address packed into the first 20 bytes of
// paymasterAndData, or nil if none is present.
func (op *PackedUserOperation) Paymaster() *common.Address {
	if len(op.PaymasterAndData) < common.AddressLength {
		return nil
	}
	addr := common.BytesToAddress(op.PaymasterAndData[:common.AddressLength])
	return &addr
}

// PaymasterData returns the data following the paymaster address and the two
// packed 16-byte gas limits.
func (op *PackedUserOperation) PaymasterData() []byte {
	if len(op.PaymasterAndData) < common.AddressLength+32 {
		return nil
	}
	return op.PaymasterAndData[common.AddressLength+32:]
}

// VerificationGasLimit unpacks the high 16 bytes of accountGasLimits.
func (op *PackedUserOperation) VerificationGasLimit() *big.Int {
	return new(big.Int).SetBytes(op.AccountGasLimits[:16])
}

// CallGasLimit unpacks the low 16 bytes of accountGasLimits.
func (op *PackedUserOperation) CallGasLimit() *big.Int {
	return new(big.Int).SetBytes(op.AccountGasLimits[16:])
}

// MaxPriorityFeePerGas unpacks the high 16 bytes of gasFees.
func (op *PackedUserOperation) MaxPriorityFeePerGas() *big.Int {
	return new(big.Int).SetBytes(op.GasFees[:16])
}

// MaxFeePerGas unpacks the low 16 bytes of gasFees.
func (op *PackedUserOperation) MaxFeePerGas() *big.Int {
	return new(big.Int).SetBytes(op.GasFees[16:])
}

// PaymasterVerificationGasLimit unpacks bytes 20..36 of paymasterAndData.
func (op *PackedUserOperation) PaymasterVerificationGasLimit() *big.Int {
	if len(op.PaymasterAndData) < common.AddressLength+16 {
		return new(big.Int)
	}
	return new(big.Int).SetBytes(op.PaymasterAndData[common.AddressLength : common.AddressLength+16])
}

// PaymasterPostOpGasLimit unpacks bytes 36..52 of paymasterAndData.
func (op *PackedUserOperation) PaymasterPostOpGasLimit() *big.Int {
	if len(op.PaymasterAndData) < common.AddressLength+32 {
		return new(big.Int)
	}
	return new(big.Int).SetBytes(op.PaymasterAndData[common.AddressLength+16 : common.AddressLength+32])
}

// Hash computes an identifying hash for the operation:
// keccak256(keccak256(packedFields) || entryPoint || chainId).
// It is used as the pool/cache key and as the hash returned over RPC; it is
// not guaranteed to be bit-exact with EntryPoint.getUserOpHash.
func (op *PackedUserOperation) Hash(entryPoint common.Address, chainID *big.Int) common.Hash {
	inner := crypto.Keccak256Hash(op.packForHash())

	var final []byte
	final = append(final, inner.Bytes()...)
	final = append(final, entryPoint.Bytes()...)

	chainIDBytes := make([]byte, 32)
	if chainID != nil {
		chainID.FillBytes(chainIDBytes)
	}
	final = append(final, chainIDBytes...)

	return crypto.Keccak256Hash(final)
}

// packForHash packs the operation fields the way EntryPoint v0.7 hashes
// them: fixed-size fields inline, dynamic fields by their keccak hash.
func (op *PackedUserOperation) packForHash() []byte {
	var packed []byte

	packed = append(packed, common.LeftPadBytes(op.Sender.Bytes(), 32)...)

	nonceBytes := make([]byte, 32)
	if op.Nonce != nil {
		op.Nonce.FillBytes(nonceBytes)
	}
	packed = append(packed, nonceBytes...)

	packed = append(packed, crypto.Keccak256(op.InitCode)...)
	packed = append(packed, crypto.Keccak256(op.CallData)...)
	packed = append(packed, op.AccountGasLimits[:]...)

	pvgBytes := make([]byte, 32)
	if op.PreVerificationGas != nil {
		op.PreVerificationGas.FillBytes(pvgBytes)
	}
	packed = append(packed, pvgBytes...)

	packed = append(packed, op.GasFees[:]...)
	packed = append(packed, crypto.Keccak256(op.PaymasterAndData)...)

	return packed
}

// UserOperationArgs is the loosely typed JSON-RPC and file form of a packed
// UserOperation. All byte-valued fields are 0x-prefixed hex.
type UserOperationArgs struct {
	Sender             *common.Address `json:"sender"`
	Nonce              *hexutil.Big    `json:"nonce"`
	InitCode           *hexutil.Bytes  `json:"initCode"`
	CallData           *hexutil.Bytes  `json:"callData"`
	AccountGasLimits   *hexutil.Bytes  `json:"accountGasLimits"`
	PreVerificationGas *hexutil.Big    `json:"preVerificationGas"`
	GasFees            *hexutil.Bytes  `json:"gasFees"`
	PaymasterAndData   *hexutil.Bytes  `json:"paymasterAndData"`
	Signature          *hexutil.Bytes  `json:"signature"`
}

// ToPackedUserOperation converts the args into a PackedUserOperation,
// requiring every field to be present and the two packed gas fields to be
// exactly 32 bytes.
func (args *UserOperationArgs) ToPackedUserOperation() (*PackedUserOperation, error) {
	if args.Sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if args.Nonce == nil {
		return nil, fmt.Errorf("nonce is required")
	}
	if args.InitCode == nil {
		return nil, fmt.Errorf("initCode is required")
	}
	if args.CallData == nil {
		return nil, fmt.Errorf("callData is required")
	}
	if args.AccountGasLimits == nil {
		return nil, fmt.Errorf("accountGasLimits is required")
	}
	if len(*args.AccountGasLimits) != 32 {
		return nil, fmt.Errorf("accountGasLimits must be exactly 32 bytes, got %d", len(*args.AccountGasLimits))
	}
	if args.PreVerificationGas == nil {
		return nil, fmt.Errorf("preVerificationGas is required")
	}
	if args.GasFees == nil {
		return nil, fmt.Errorf("gasFees is required")
	}
	if len(*args.GasFees) != 32 {
		return nil, fmt.Errorf("gasFees must be exactly 32 bytes, got %d", len(*args.GasFees))
	}
	if args.PaymasterAndData == nil {
		return nil, fmt.Errorf("paymasterAndData is required")
	}
	if args.Signature == nil {
		return nil, fmt.Errorf("signature is required")
	}

	op := &PackedUserOperation{
		Sender:             *args.Sender,
		Nonce:              args.Nonce.ToInt(),
		InitCode:           *args.InitCode,
		CallData:           *args.CallData,
		PreVerificationGas: args.PreVerificationGas.ToInt(),
		PaymasterAndData:   *args.PaymasterAndData,
		Signature:          *args.Signature,
	}
	copy(op.AccountGasLimits[:], *args.AccountGasLimits)
	copy(op.GasFees[:], *args.GasFees)

	return op, nil
}
