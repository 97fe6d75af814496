package validator

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/smallyunet/userop-validator/emulator"
	"github.com/smallyunet/userop-validator/metrics"
	"github.com/smallyunet/userop-validator/models"
	"github.com/smallyunet/userop-validator/services/reputation"
)

// phaseGasFloor is the minimum gas bound granted to each validation
// sub-call, regardless of what the operation declares.
const phaseGasFloor = 1_000_000

// Driver runs the validation-phase simulation for packed user operations:
// it drives the factory, sender and paymaster sub-calls through the embedded
// EVM with the step inspector mounted, and feeds the reputation store with
// the outcome.
//
// The driver requires that the operation has already passed
// ValidateUserOpStructure; it is single-threaded and synchronous.
type Driver struct {
	env        *emulator.SimulationEnvironment
	reputation reputation.Store
	entryPoint common.Address
	collector  metrics.Collector
	logger     zerolog.Logger
}

func NewDriver(
	env *emulator.SimulationEnvironment,
	reputationStore reputation.Store,
	entryPoint common.Address,
	collector metrics.Collector,
	logger zerolog.Logger,
) *Driver {
	return &Driver{
		env:        env,
		reputation: reputationStore,
		entryPoint: entryPoint,
		collector:  collector,
		logger:     logger.With().Str("component", "simulation-driver").Logger(),
	}
}

// SimulateValidation runs the three-phase validation simulation and returns
// the aggregate result. It never returns an error: execution failures and
// rule violations are reported inside the result, on separate channels.
func (d *Driver) SimulateValidation(op *models.PackedUserOperation) *models.SimulationResult {
	d.collector.SimulationRun()

	result := &models.SimulationResult{
		Errors:     []string{},
		Violations: []models.ValidationViolation{},
	}

	factory := op.Factory()
	paymaster := op.Paymaster()

	// A banned or throttled entity must not be able to consume validation
	// CPU: flag it and skip execution entirely. The post-run reputation
	// update still happens below.
	skipExecution := false
	if factory != nil {
		if msg := d.reputationError("factory", *factory); msg != "" {
			result.Errors = append(result.Errors, msg)
			skipExecution = true
		}
	}
	if paymaster != nil {
		if msg := d.reputationError("paymaster", *paymaster); msg != "" {
			result.Errors = append(result.Errors, msg)
			skipExecution = true
		}
	}

	ctx := NewValidationContext(op.Sender, d.entryPoint, factory, paymaster, false)

	if !skipExecution {
		d.runPhases(ctx, op, result)
	}

	// Reputation counts rule violations only, never EVM errors or reverts:
	// reputational penalties target protocol-rule abusers, not contracts
	// that merely revert.
	if factory != nil {
		clean := len(ctx.ViolationsFor(models.EntityFactory)) == 0
		d.reputation.Update(*factory, clean)
	}
	if paymaster != nil {
		clean := len(ctx.ViolationsFor(models.EntityPaymaster)) == 0
		d.reputation.Update(*paymaster, clean)
	}

	result.Violations = ctx.Violations()
	for _, v := range result.Violations {
		d.collector.ViolationRecorded(v.Kind.String())
	}
	result.IsValid = len(result.Errors) == 0 && len(result.Violations) == 0

	d.logger.Debug().
		Str("sender", op.Sender.Hex()).
		Bool("isValid", result.IsValid).
		Int("errors", len(result.Errors)).
		Int("violations", len(result.Violations)).
		Msg("validation simulation finished")

	return result
}

// runPhases mounts the inspector and drives the factory, sender and
// paymaster sub-calls in strict order. The inspector is released on every
// exit path so successive simulations never double-hook the EVM.
func (d *Driver) runPhases(
	ctx *ValidationContext,
	op *models.PackedUserOperation,
	result *models.SimulationResult,
) {
	ctx.onAbort = d.env.CancelActiveCall

	inspector := NewInspector(ctx)
	release, err := d.env.AttachHooks(inspector.Hooks())
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to attach inspector: %v", err))
		return
	}
	defer release()

	gasUsed := new(big.Int)

	// Phase F: factory deployment call.
	if ctx.Factory != nil {
		ctx.SetEntity(models.EntityFactory)
		used := d.runPhase(ctx, result, *ctx.Factory, op.FactoryData(), phaseGas(op.VerificationGasLimit()))
		gasUsed.Add(gasUsed, new(big.Int).SetUint64(used))
	}

	// Phase S: sender validateUserOp.
	if !ctx.Aborted() {
		ctx.SetEntity(models.EntitySender)
		data, err := EncodeValidateUserOpCall(op)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("sender phase: %v", err))
		} else {
			used := d.runPhase(ctx, result, op.Sender, data, phaseGas(op.VerificationGasLimit()))
			gasUsed.Add(gasUsed, new(big.Int).SetUint64(used))
		}
	}

	// Phase P: paymaster validatePaymasterUserOp.
	if ctx.Paymaster != nil && !ctx.Aborted() {
		ctx.SetEntity(models.EntityPaymaster)
		data, err := EncodeValidatePaymasterUserOpCall(op)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("paymaster phase: %v", err))
		} else {
			used := d.runPhase(ctx, result, *ctx.Paymaster, data, phaseGas(op.PaymasterVerificationGasLimit()))
			gasUsed.Add(gasUsed, new(big.Int).SetUint64(used))
		}
	}

	result.GasUsed = gasUsed
}

// runPhase executes one EVM sub-call from the EntryPoint. Execution errors
// are appended to the result but never abort the phase sequence; only a
// throw-mode violation does, via the context's aborted flag.
func (d *Driver) runPhase(
	ctx *ValidationContext,
	result *models.SimulationResult,
	to common.Address,
	data []byte,
	gasLimit uint64,
) uint64 {
	_, used, err := d.env.RunCall(to, d.entryPoint, data, gasLimit)
	if err != nil && !ctx.Aborted() {
		result.Errors = append(result.Errors, fmt.Sprintf("%s phase: %v", ctx.Entity(), err))
	}
	return used
}

func (d *Driver) reputationError(role string, addr common.Address) string {
	switch d.reputation.Status(addr) {
	case reputation.StatusBanned:
		d.collector.EntityBanned(role)
		return fmt.Sprintf("%s %s is BANNED", role, addr.Hex())
	case reputation.StatusThrottled:
		return fmt.Sprintf("%s %s is THROTTLED", role, addr.Hex())
	default:
		return ""
	}
}

// phaseGas grants the declared verification gas limit, floored at a
// generous bound so zero-gas operations still execute far enough for the
// inspector to observe rule breaks.
func phaseGas(declared *big.Int) uint64 {
	if declared == nil || !declared.IsUint64() || declared.Uint64() < phaseGasFloor {
		return phaseGasFloor
	}
	return declared.Uint64()
}
