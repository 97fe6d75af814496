package emulator

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	gethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	errs "github.com/smallyunet/userop-validator/models/errors"
)

const blockGasLimit = 30_000_000

// ErrHooksAttached is returned when a second inspector is attached without
// releasing the first.
var ErrHooksAttached = errors.New("step hooks already attached")

// StateSource is an optional read-through for code and storage of accounts
// not present in the local state, e.g. a forked-chain fetcher.
type StateSource interface {
	Code(addr common.Address) ([]byte, error)
	Storage(addr common.Address, slot common.Hash) (common.Hash, error)
}

// SimulationEnvironment owns the embedded EVM state used for validation-phase
// simulation. State mutations (deployed code, balances, storage) persist
// across calls, so successive simulations observe what earlier ones left
// behind. The environment is not safe for concurrent use.
type SimulationEnvironment struct {
	stateDB *state.StateDB
	config  *params.ChainConfig
	source  StateSource
	logger  zerolog.Logger

	mu        sync.Mutex
	hooks     *tracing.Hooks
	activeEVM *vm.EVM
}

func NewSimulationEnvironment(logger zerolog.Logger) (*SimulationEnvironment, error) {
	sdb, err := state.New(gethTypes.EmptyRootHash, state.NewDatabase(rawdb.NewMemoryDatabase()), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create state db: %w", err)
	}

	return &SimulationEnvironment{
		stateDB: sdb,
		config:  params.AllDevChainProtocolChanges,
		logger:  logger.With().Str("component", "emulator").Logger(),
	}, nil
}

// WithStateSource sets a read-through source consulted by WarmAccount.
func (e *SimulationEnvironment) WithStateSource(src StateSource) *SimulationEnvironment {
	e.source = src
	return e
}

// DeployCode installs runtime bytecode at the given address.
func (e *SimulationEnvironment) DeployCode(addr common.Address, code []byte) {
	e.stateDB.SetCode(addr, code)
	e.stateDB.Finalise(true)
}

// GetCode returns the runtime bytecode at the given address.
func (e *SimulationEnvironment) GetCode(addr common.Address) []byte {
	return e.stateDB.GetCode(addr)
}

// SetBalance overwrites the balance of the given address.
func (e *SimulationEnvironment) SetBalance(addr common.Address, amount *uint256.Int) {
	e.stateDB.SetBalance(addr, amount, tracing.BalanceChangeUnspecified)
	e.stateDB.Finalise(true)
}

// SetStorage writes a single storage slot of the given address.
func (e *SimulationEnvironment) SetStorage(addr common.Address, slot, value common.Hash) {
	e.stateDB.SetState(addr, slot, value)
	e.stateDB.Finalise(true)
}

// WarmAccount pulls the account's code from the configured state source into
// the local state. No-op without a source.
func (e *SimulationEnvironment) WarmAccount(addr common.Address) error {
	if e.source == nil {
		return nil
	}
	code, err := e.source.Code(addr)
	if err != nil {
		return fmt.Errorf("state source code fetch for %s: %w", addr.Hex(), err)
	}
	if len(code) > 0 {
		e.DeployCode(addr, code)
	}
	return nil
}

// AttachHooks installs the per-instruction hooks used by subsequent RunCall
// invocations and returns a release function. Attaching while another hook
// set is installed is an error; release is idempotent.
func (e *SimulationEnvironment) AttachHooks(hooks *tracing.Hooks) (func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hooks != nil {
		return nil, ErrHooksAttached
	}
	e.hooks = hooks

	var once sync.Once
	release := func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.hooks = nil
			e.activeEVM = nil
		})
	}
	return release, nil
}

// CancelActiveCall aborts the EVM call currently in flight, if any. The
// cancellation is best-effort: the interpreter observes it between
// instructions.
func (e *SimulationEnvironment) CancelActiveCall() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.activeEVM != nil {
		e.activeEVM.Cancel()
	}
}

// RunCall executes a message call from caller to the given address with the
// currently attached hooks. Reverts are coerced to RevertError carrying the
// hex-encoded return data.
func (e *SimulationEnvironment) RunCall(
	to common.Address,
	caller common.Address,
	data []byte,
	gasLimit uint64,
) ([]byte, uint64, error) {
	blockCtx := vm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		GetHash:     func(uint64) common.Hash { return common.Hash{} },
		Coinbase:    common.Address{},
		GasLimit:    blockGasLimit,
		BlockNumber: big.NewInt(1),
		Time:        1,
		Difficulty:  common.Big0,
		BaseFee:     big.NewInt(0),
		BlobBaseFee: big.NewInt(0),
		Random:      &common.Hash{},
	}
	txCtx := vm.TxContext{
		Origin:   caller,
		GasPrice: big.NewInt(0),
	}

	e.mu.Lock()
	evm := vm.NewEVM(blockCtx, txCtx, e.stateDB, e.config, vm.Config{
		Tracer:    e.hooks,
		NoBaseFee: true,
	})
	e.activeEVM = evm
	e.mu.Unlock()

	// each call starts with a fresh access list holding the caller, the
	// callee and the precompiles, as a transaction would
	rules := e.config.Rules(blockCtx.BlockNumber, blockCtx.Random != nil, blockCtx.Time)
	e.stateDB.Prepare(rules, caller, blockCtx.Coinbase, &to, vm.ActivePrecompiles(rules), nil)

	ret, leftOver, err := evm.Call(vm.AccountRef(caller), to, data, gasLimit, uint256.NewInt(0))

	e.mu.Lock()
	e.activeEVM = nil
	e.mu.Unlock()

	// carry state over to the next call
	e.stateDB.Finalise(true)

	gasUsed := gasLimit - leftOver
	if err != nil {
		if errors.Is(err, vm.ErrExecutionReverted) {
			return ret, gasUsed, errs.NewRevertError(ret)
		}
		return ret, gasUsed, err
	}
	return ret, gasUsed, nil
}
