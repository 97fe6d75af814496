package validator

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallyunet/userop-validator/models"
)

func TestEncodeValidateUserOpCall(t *testing.T) {
	op := &models.PackedUserOperation{
		Sender:             common.HexToAddress("0x1234567890123456789012345678901234567890"),
		Nonce:              big.NewInt(7),
		InitCode:           []byte{0xaa},
		CallData:           []byte{0xbb, 0xcc},
		PreVerificationGas: big.NewInt(50000),
		Signature:          []byte{0x01},
	}

	data, err := EncodeValidateUserOpCall(op)
	require.NoError(t, err)

	// selector, then the zeroed userOpHash and missingAccountFunds words
	require.Greater(t, len(data), 68)
	assert.Equal(t, SelectorValidateUserOp[:], data[:4])
	assert.Equal(t, make([]byte, 64), data[4:68])

	// the encoded struct follows and contains the sender word
	senderWord := common.LeftPadBytes(op.Sender.Bytes(), 32)
	assert.Contains(t, string(data[68:]), string(senderWord))
}

func TestEncodeValidatePaymasterUserOpCall(t *testing.T) {
	op := &models.PackedUserOperation{
		Sender: common.HexToAddress("0x1"),
	}

	data, err := EncodeValidatePaymasterUserOpCall(op)
	require.NoError(t, err)
	assert.Equal(t, SelectorValidatePaymasterUserOp[:], data[:4])
	assert.Equal(t, make([]byte, 64), data[4:68])
}

func TestEncodeHandlesNilQuantities(t *testing.T) {
	// a zero-valued operation must still encode
	_, err := EncodeValidateUserOpCall(&models.PackedUserOperation{})
	require.NoError(t, err)
}
