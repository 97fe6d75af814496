package errors

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethVM "github.com/ethereum/go-ethereum/core/vm"
)

var (
	ErrInvalid   = errors.New("invalid request")
	ErrInternal  = errors.New("internal error")
	ErrRateLimit = errors.New("limit of requests per second reached")
)

// ERC-4337 JSON-RPC error codes returned by the bundler API.
// See: https://eips.ethereum.org/EIPS/eip-4337#rpc-methods-eth-namespace
const (
	CodeRejectedByEntryPoint = -32500
	CodeRejectedByPaymaster  = -32501
	CodeBannedOpcode         = -32502
	CodeInvalidStorageAccess = -32503
	CodeThrottled            = -32504
	CodeBanned               = -32505
	CodeInvalidSignature     = -32506
	CodeInvalidNonce         = -32507
)

// ValidationRejectedError is returned by the RPC surface when an operation
// fails admission checks. It carries the ERC-4337 error code and optional
// structured data (the violation list).
type ValidationRejectedError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *ValidationRejectedError) Error() string {
	return e.Message
}

// ErrorCode implements the go-ethereum rpc.Error interface.
func (e *ValidationRejectedError) ErrorCode() int {
	return e.Code
}

// ErrorData implements the go-ethereum rpc.DataError interface.
func (e *ValidationRejectedError) ErrorData() interface{} {
	return e.Data
}

func NewValidationRejectedError(code int, format string, args ...interface{}) *ValidationRejectedError {
	return &ValidationRejectedError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// RevertError is an API error that encompasses an EVM revert with JSON error
// code and a binary data blob.
type RevertError struct {
	error
	Reason string // revert reason hex encoded
}

// ErrorCode returns the JSON error code for a revert.
// See: https://github.com/ethereum/wiki/wiki/JSON-RPC-Error-Codes-Improvement-Proposal
func (e *RevertError) ErrorCode() int {
	return 3
}

// ErrorData returns the hex encoded revert reason.
func (e *RevertError) ErrorData() interface{} {
	return e.Reason
}

// NewRevertError creates a RevertError instance with the provided revert data.
func NewRevertError(revert []byte) *RevertError {
	err := gethVM.ErrExecutionReverted

	reason, errUnpack := abi.UnpackRevert(revert)
	if errUnpack == nil {
		err = fmt.Errorf("%w: %v", gethVM.ErrExecutionReverted, reason)
	}
	return &RevertError{
		error:  err,
		Reason: hexutil.Encode(revert),
	}
}
