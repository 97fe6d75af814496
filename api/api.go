package api

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/smallyunet/userop-validator/config"
	"github.com/smallyunet/userop-validator/metrics"
	"github.com/smallyunet/userop-validator/models"
	errs "github.com/smallyunet/userop-validator/models/errors"
	"github.com/smallyunet/userop-validator/services/reputation"
	"github.com/smallyunet/userop-validator/services/validator"
)

const (
	AAValidateUserOperation = "aa_validateUserOperation"
	AASimulateValidation    = "aa_simulateValidation"
	AASupportedEntryPoints  = "aa_supportedEntryPoints"
	AAReputation            = "aa_reputation"
	AAClearReputation       = "aa_clearReputation"
)

// UserOpAPI exposes the validator over JSON-RPC in the bundler `aa`
// namespace.
type UserOpAPI struct {
	logger      zerolog.Logger
	config      config.Config
	driver      *validator.Driver
	reputations reputation.Store
	cache       *ValidatedOpCache
	rateLimiter RateLimiter
	collector   metrics.Collector
}

func NewUserOpAPI(
	logger zerolog.Logger,
	cfg config.Config,
	driver *validator.Driver,
	reputations reputation.Store,
	cache *ValidatedOpCache,
	rateLimiter RateLimiter,
	collector metrics.Collector,
) *UserOpAPI {
	return &UserOpAPI{
		logger:      logger.With().Str("component", "userop-api").Logger(),
		config:      cfg,
		driver:      driver,
		reputations: reputations,
		cache:       cache,
		rateLimiter: rateLimiter,
		collector:   collector,
	}
}

// ValidateUserOperationResponse couples the operation hash with the full
// simulation outcome.
type ValidateUserOperationResponse struct {
	UserOpHash common.Hash              `json:"userOpHash"`
	Result     *models.SimulationResult `json:"result"`
}

// ValidateUserOperation runs the full admission pipeline: structural checks,
// then validation-phase simulation. Rejections are reported with the
// ERC-4337 error codes.
func (u *UserOpAPI) ValidateUserOperation(
	ctx context.Context,
	raw map[string]interface{},
	entryPoint *common.Address,
) (*ValidateUserOperationResponse, error) {
	start := time.Now()
	defer u.collector.MeasureRequestDuration(start, AAValidateUserOperation)

	if err := u.rateLimiter.Apply(ctx, AAValidateUserOperation); err != nil {
		return nil, err
	}

	l := u.logger.With().Str("endpoint", AAValidateUserOperation).Logger()

	static := validator.ValidateUserOpStructure(raw)
	if !static.IsValid {
		u.collector.ApiErrorOccurred()
		l.Debug().
			Strs("errors", static.Errors).
			Msg("user operation failed structural validation")
		return nil, &errs.ValidationRejectedError{
			Code:    errs.CodeRejectedByEntryPoint,
			Message: fmt.Sprintf("user operation rejected: %s", strings.Join(static.Errors, "; ")),
			Data:    static.Errors,
		}
	}

	op, err := decodeUserOperation(raw)
	if err != nil {
		u.collector.ApiErrorOccurred()
		return nil, errs.NewValidationRejectedError(errs.CodeRejectedByEntryPoint, "user operation rejected: %v", err)
	}

	ep := u.config.EntryPointAddress
	if entryPoint != nil {
		ep = *entryPoint
	}
	hash := op.Hash(ep, nil)

	if err := u.sanityCheckGas(op); err != nil {
		u.collector.ApiErrorOccurred()
		return nil, err
	}

	result := u.driver.SimulateValidation(op)
	if !result.IsValid {
		u.collector.ApiErrorOccurred()
		l.Debug().
			Str("sender", op.Sender.Hex()).
			Str("userOpHash", hash.Hex()).
			Int("errors", len(result.Errors)).
			Int("violations", len(result.Violations)).
			Msg("user operation failed simulation")
		return nil, rejectionError(result)
	}

	u.cache.Add(hash, result)

	l.Info().
		Str("sender", op.Sender.Hex()).
		Str("userOpHash", hash.Hex()).
		Msg("user operation validated")

	return &ValidateUserOperationResponse{UserOpHash: hash, Result: result}, nil
}

// SimulateValidation runs the simulation only and returns the result
// verbatim, valid or not. Meant for debugging entity code.
func (u *UserOpAPI) SimulateValidation(
	ctx context.Context,
	args models.UserOperationArgs,
) (*models.SimulationResult, error) {
	start := time.Now()
	defer u.collector.MeasureRequestDuration(start, AASimulateValidation)

	if err := u.rateLimiter.Apply(ctx, AASimulateValidation); err != nil {
		return nil, err
	}

	op, err := args.ToPackedUserOperation()
	if err != nil {
		u.collector.ApiErrorOccurred()
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalid, err)
	}

	return u.driver.SimulateValidation(op), nil
}

// SupportedEntryPoints lists the EntryPoint contracts this validator
// simulates against.
func (u *UserOpAPI) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	return []common.Address{u.config.EntryPointAddress}, nil
}

// Reputation dumps the reputation table.
func (u *UserOpAPI) Reputation(ctx context.Context) (map[common.Address]reputation.Entry, error) {
	return u.reputations.Entries(), nil
}

// ClearReputation removes the entry for the given address. Debug tooling;
// a ban has no other reset path.
func (u *UserOpAPI) ClearReputation(ctx context.Context, addr common.Address) (bool, error) {
	u.reputations.Clear(addr)
	return true, nil
}

func (u *UserOpAPI) sanityCheckGas(op *models.PackedUserOperation) error {
	maxGas := u.config.MaxVerificationGas
	if op.VerificationGasLimit().IsUint64() && op.VerificationGasLimit().Uint64() <= maxGas &&
		op.CallGasLimit().IsUint64() && op.CallGasLimit().Uint64() <= maxGas {
		return nil
	}
	return errs.NewValidationRejectedError(
		errs.CodeRejectedByEntryPoint,
		"declared gas limits exceed the maximum of %d", maxGas,
	)
}

// decodeUserOperation converts the raw record into the packed form, going
// through the typed args so hex decoding stays in one place. Quantities the
// structural validator accepted as plain integers are normalized to hex
// first.
func decodeUserOperation(raw map[string]interface{}) (*models.PackedUserOperation, error) {
	for _, field := range []string{"nonce", "preVerificationGas"} {
		switch n := raw[field].(type) {
		case float64:
			raw[field] = fmt.Sprintf("0x%x", uint64(n))
		case string:
			if !strings.HasPrefix(n, "0x") && !strings.HasPrefix(n, "0X") {
				if i, ok := new(big.Int).SetString(n, 10); ok {
					raw[field] = "0x" + i.Text(16)
				}
			}
		}
	}

	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var args models.UserOperationArgs
	if err := json.Unmarshal(buf, &args); err != nil {
		return nil, err
	}
	return args.ToPackedUserOperation()
}

// rejectionError maps a failed simulation onto the ERC-4337 error codes:
// the first violation decides for rule breaks, the textual markers decide
// for reputation rejections.
func rejectionError(result *models.SimulationResult) error {
	for _, v := range result.Violations {
		switch v.Kind {
		case models.ViolationBannedOpcode:
			return &errs.ValidationRejectedError{
				Code:    errs.CodeBannedOpcode,
				Message: v.Message,
				Data:    result.Violations,
			}
		case models.ViolationIllegalStorageAccess:
			return &errs.ValidationRejectedError{
				Code:    errs.CodeInvalidStorageAccess,
				Message: v.Message,
				Data:    result.Violations,
			}
		case models.ViolationEntityRestriction:
			return &errs.ValidationRejectedError{
				Code:    errs.CodeRejectedByEntryPoint,
				Message: v.Message,
				Data:    result.Violations,
			}
		}
	}

	for _, e := range result.Errors {
		if strings.Contains(e, "is BANNED") {
			return errs.NewValidationRejectedError(errs.CodeBanned, "%s", e)
		}
		if strings.Contains(e, "is THROTTLED") {
			return errs.NewValidationRejectedError(errs.CodeThrottled, "%s", e)
		}
	}

	return &errs.ValidationRejectedError{
		Code:    errs.CodeRejectedByEntryPoint,
		Message: fmt.Sprintf("user operation rejected: %s", strings.Join(result.Errors, "; ")),
		Data:    result.Errors,
	}
}
