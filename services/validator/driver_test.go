package validator

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallyunet/userop-validator/emulator"
	"github.com/smallyunet/userop-validator/metrics"
	"github.com/smallyunet/userop-validator/models"
	"github.com/smallyunet/userop-validator/services/reputation"
)

var testEntryPoint = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

func newTestDriver(t *testing.T) (*Driver, *emulator.SimulationEnvironment, reputation.Store) {
	t.Helper()

	env, err := emulator.NewSimulationEnvironment(zerolog.Nop())
	require.NoError(t, err)

	store := reputation.NewInMemoryStore(0, 0, zerolog.Nop())
	driver := NewDriver(env, store, testEntryPoint, metrics.NopCollector, zerolog.Nop())
	return driver, env, store
}

func minimalOp(sender common.Address) *models.PackedUserOperation {
	return &models.PackedUserOperation{
		Sender:    sender,
		InitCode:  []byte{},
		CallData:  []byte{},
		Signature: []byte{},
	}
}

func TestSimulate_MinimalEmptyOp(t *testing.T) {
	driver, _, _ := newTestDriver(t)

	// no factory or paymaster, so only the sender phase runs; the sender
	// has no code, so it is a no-op
	result := driver.SimulateValidation(minimalOp(common.Address{}))

	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Violations)
	assert.True(t, result.IsValid)
}

func TestSimulate_BannedOpcodeOnSender(t *testing.T) {
	driver, env, _ := newTestDriver(t)

	sender := common.HexToAddress("0x1234567890123456789012345678901234567890")
	// TIMESTAMP, STOP
	env.DeployCode(sender, []byte{0x42, 0x00})

	result := driver.SimulateValidation(minimalOp(sender))

	require.NotEmpty(t, result.Violations)
	v := result.Violations[0]
	assert.Equal(t, models.ViolationBannedOpcode, v.Kind)
	assert.Equal(t, models.EntitySender, v.Entity)
	assert.Contains(t, v.Message, "TIMESTAMP")
	assert.False(t, result.IsValid)
}

func TestSimulate_FactoryParsedFromInitCode(t *testing.T) {
	driver, _, _ := newTestDriver(t)

	factory := common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	op := minimalOp(common.Address{})
	op.InitCode = append(factory.Bytes(), []byte{0x12, 0x34, 0x56, 0x78, 0x90}...)

	// factory has no deployed code: the phase is a no-op and the op is valid
	result := driver.SimulateValidation(op)
	assert.Empty(t, result.Violations)
	assert.True(t, result.IsValid)
}

func TestSimulate_FactoryViolationAttributedToFactory(t *testing.T) {
	driver, env, store := newTestDriver(t)

	factory := common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	// NUMBER, STOP: a banned opcode during the factory phase
	env.DeployCode(factory, []byte{0x43, 0x00})

	op := minimalOp(common.HexToAddress("0x5e4"))
	op.InitCode = append(factory.Bytes(), 0xde, 0xad)

	result := driver.SimulateValidation(op)

	require.NotEmpty(t, result.Violations)
	assert.Equal(t, models.EntityFactory, result.Violations[0].Entity)
	assert.False(t, result.IsValid)

	// the violation counts against the factory's reputation
	entry, ok := store.Entry(factory)
	require.True(t, ok)
	assert.Equal(t, uint64(1), entry.OpsSeen)
	assert.Equal(t, uint64(1), entry.OpsFailed)
}

func TestSimulate_AllZeroFactoryStillPresent(t *testing.T) {
	driver, _, store := newTestDriver(t)

	// presence is defined by length, not value
	op := minimalOp(common.Address{})
	op.InitCode = make([]byte, 20)

	result := driver.SimulateValidation(op)
	assert.True(t, result.IsValid)

	entry, ok := store.Entry(common.Address{})
	require.True(t, ok)
	assert.Equal(t, uint64(1), entry.OpsSeen)
	assert.Equal(t, uint64(0), entry.OpsFailed)
}

func TestSimulate_BannedPaymasterSkipsExecution(t *testing.T) {
	driver, env, store := newTestDriver(t)

	paymaster := common.HexToAddress("0x9999999999999999999999999999999999999999")
	// banned opcode at the paymaster; it must never run
	env.DeployCode(paymaster, []byte{0x42, 0x00})

	for i := 0; i < reputation.DefaultBanThreshold; i++ {
		store.Update(paymaster, false)
	}
	require.Equal(t, reputation.StatusBanned, store.Status(paymaster))

	op := minimalOp(common.Address{})
	op.PaymasterAndData = append(paymaster.Bytes(), make([]byte, 32)...)

	result := driver.SimulateValidation(op)

	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "is BANNED")
	assert.Empty(t, result.Violations)
	assert.False(t, result.IsValid)
}

func TestSimulate_ThrottledFactoryReported(t *testing.T) {
	driver, _, store := newTestDriver(t)

	factory := common.HexToAddress("0xfac")
	for i := 0; i < reputation.DefaultThrottleThreshold; i++ {
		store.Update(factory, false)
	}

	op := minimalOp(common.Address{})
	op.InitCode = append(factory.Bytes(), 0x01)

	result := driver.SimulateValidation(op)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "is THROTTLED")
	assert.False(t, result.IsValid)
}

func TestSimulate_ForeignStorageReadViaCall(t *testing.T) {
	driver, env, _ := newTestDriver(t)

	sender := common.HexToAddress("0x5e45e45e45e45e45e45e45e45e45e45e45e45e40")
	helper := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	// helper: PUSH1 0, SLOAD, STOP - reads its own slot 0, which is foreign
	// to the sender entity
	env.DeployCode(helper, []byte{0x60, 0x00, 0x54, 0x00})

	// sender: CALL helper with no args, then STOP
	code := []byte{0x60, 0x00, 0x60, 0x00, 0x60, 0x00, 0x60, 0x00, 0x60, 0x00, 0x73}
	code = append(code, helper.Bytes()...)
	code = append(code, 0x61, 0xff, 0xff, 0xf1, 0x00) // PUSH2 0xffff, CALL, STOP
	env.DeployCode(sender, code)

	result := driver.SimulateValidation(minimalOp(sender))

	require.NotEmpty(t, result.Violations)
	found := false
	for _, v := range result.Violations {
		if v.Kind == models.ViolationIllegalStorageAccess {
			found = true
			assert.Equal(t, models.EntitySender, v.Entity)
			assert.Equal(t, helper, v.StorageOwner)
			assert.Equal(t, common.Hash{}, v.Slot)
		}
	}
	assert.True(t, found, "expected an illegal storage access violation")
	assert.False(t, result.IsValid)
}

func TestSimulate_SenderSelfStorageAllowed(t *testing.T) {
	driver, env, _ := newTestDriver(t)

	sender := common.HexToAddress("0x5e45e45e45e45e45e45e45e45e45e45e45e45e41")
	// PUSH1 0, SLOAD, STOP against its own storage
	env.DeployCode(sender, []byte{0x60, 0x00, 0x54, 0x00})

	result := driver.SimulateValidation(minimalOp(sender))
	assert.Empty(t, result.Violations)
	assert.True(t, result.IsValid)
}

func TestSimulate_RevertIsErrorNotViolation(t *testing.T) {
	driver, env, store := newTestDriver(t)

	paymaster := common.HexToAddress("0x9a19a19a19a19a19a19a19a19a19a19a19a19a10")
	// PUSH1 0, PUSH1 0, REVERT
	env.DeployCode(paymaster, []byte{0x60, 0x00, 0x60, 0x00, 0xfd})

	op := minimalOp(common.Address{})
	op.PaymasterAndData = append(paymaster.Bytes(), make([]byte, 32)...)

	result := driver.SimulateValidation(op)

	require.NotEmpty(t, result.Errors)
	assert.Contains(t, strings.Join(result.Errors, " "), "paymaster phase")
	assert.Empty(t, result.Violations)
	assert.False(t, result.IsValid)

	// reverts do not count against reputation
	entry, ok := store.Entry(paymaster)
	require.True(t, ok)
	assert.Equal(t, uint64(0), entry.OpsFailed)
}

func TestSimulate_PhasesContinueAfterError(t *testing.T) {
	driver, env, _ := newTestDriver(t)

	factory := common.HexToAddress("0xfacfacfacfacfacfacfacfacfacfacfacfacfac0")
	sender := common.HexToAddress("0x5e45e45e45e45e45e45e45e45e45e45e45e45e42")

	// factory reverts, sender uses a banned opcode: both must be observed
	env.DeployCode(factory, []byte{0x60, 0x00, 0x60, 0x00, 0xfd})
	env.DeployCode(sender, []byte{0x42, 0x00})

	op := minimalOp(sender)
	op.InitCode = append(factory.Bytes(), 0x01)

	result := driver.SimulateValidation(op)

	require.NotEmpty(t, result.Errors)
	require.NotEmpty(t, result.Violations)
	assert.Equal(t, models.EntitySender, result.Violations[0].Entity)
}

func TestSimulate_HooksReleasedBetweenRuns(t *testing.T) {
	driver, env, _ := newTestDriver(t)

	op := minimalOp(common.Address{})
	for i := 0; i < 3; i++ {
		result := driver.SimulateValidation(op)
		require.True(t, result.IsValid, "run %d", i)
	}

	// the inspector must be detached after every run
	release, err := env.AttachHooks(&tracing.Hooks{})
	require.NoError(t, err)
	release()
}

func TestSimulate_ViolationOrderFollowsPhases(t *testing.T) {
	driver, env, _ := newTestDriver(t)

	factory := common.HexToAddress("0xfacfacfacfacfacfacfacfacfacfacfacfacfac1")
	sender := common.HexToAddress("0x5e45e45e45e45e45e45e45e45e45e45e45e45e43")
	paymaster := common.HexToAddress("0x9a19a19a19a19a19a19a19a19a19a19a19a19a11")

	env.DeployCode(factory, []byte{0x43, 0x00})   // NUMBER
	env.DeployCode(sender, []byte{0x42, 0x00})    // TIMESTAMP
	env.DeployCode(paymaster, []byte{0x48, 0x00}) // BASEFEE

	op := minimalOp(sender)
	op.InitCode = append(factory.Bytes(), 0x01)
	op.PaymasterAndData = append(paymaster.Bytes(), make([]byte, 32)...)

	result := driver.SimulateValidation(op)

	require.Len(t, result.Violations, 3)
	assert.Equal(t, models.EntityFactory, result.Violations[0].Entity)
	assert.Equal(t, models.EntitySender, result.Violations[1].Entity)
	assert.Equal(t, models.EntityPaymaster, result.Violations[2].Entity)
}

func TestSimulate_ReputationThrottleAfterRepeatedViolations(t *testing.T) {
	driver, env, store := newTestDriver(t)

	paymaster := common.HexToAddress("0x9a19a19a19a19a19a19a19a19a19a19a19a19a12")
	env.DeployCode(paymaster, []byte{0x42, 0x00}) // TIMESTAMP

	op := minimalOp(common.Address{})
	op.PaymasterAndData = append(paymaster.Bytes(), make([]byte, 32)...)

	// each run records a paymaster violation until the throttle threshold
	for i := 0; i < reputation.DefaultThrottleThreshold; i++ {
		result := driver.SimulateValidation(op)
		require.NotEmpty(t, result.Violations, "run %d should still execute", i)
	}
	require.Equal(t, reputation.StatusThrottled, store.Status(paymaster))

	// once throttled, execution is skipped entirely
	result := driver.SimulateValidation(op)
	assert.Empty(t, result.Violations)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "is THROTTLED")

	// the skipped run still updates the counters
	entry, ok := store.Entry(paymaster)
	require.True(t, ok)
	assert.Equal(t, uint64(reputation.DefaultThrottleThreshold+1), entry.OpsSeen)
	assert.Equal(t, uint64(reputation.DefaultThrottleThreshold), entry.OpsFailed)
}
