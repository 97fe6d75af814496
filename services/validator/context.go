package validator

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/smallyunet/userop-validator/models"
)

// ValidationContext is the mutable per-simulation record shared between the
// driver and the step inspector. It is owned by the driver for the life of
// one simulation and must not be touched concurrently.
type ValidationContext struct {
	Sender     common.Address
	EntryPoint common.Address
	Factory    *common.Address
	Paymaster  *common.Address

	// ThrowOnViolation aborts the current phase at the first violation
	// instead of collecting all of them.
	ThrowOnViolation bool

	entity     models.EntityKind
	violations []models.ValidationViolation
	aborted    bool

	// onAbort is invoked when a throw-mode violation is recorded; the driver
	// wires it to the emulator's call cancellation.
	onAbort func()
}

func NewValidationContext(
	sender common.Address,
	entryPoint common.Address,
	factory *common.Address,
	paymaster *common.Address,
	throwOnViolation bool,
) *ValidationContext {
	return &ValidationContext{
		Sender:           sender,
		EntryPoint:       entryPoint,
		Factory:          factory,
		Paymaster:        paymaster,
		ThrowOnViolation: throwOnViolation,
		entity:           models.EntitySender,
	}
}

// SetEntity transitions the active entity. Only the driver calls this, and
// only at phase boundaries.
func (c *ValidationContext) SetEntity(k models.EntityKind) {
	c.entity = k
}

// Entity returns the currently active entity.
func (c *ValidationContext) Entity() models.EntityKind {
	return c.entity
}

// RecordViolation appends a violation. In throw mode the first violation
// marks the context aborted and fires the abort callback, halting the
// current phase.
func (c *ValidationContext) RecordViolation(v models.ValidationViolation) {
	c.violations = append(c.violations, v)
	if c.ThrowOnViolation && !c.aborted {
		c.aborted = true
		if c.onAbort != nil {
			c.onAbort()
		}
	}
}

// Aborted reports whether a throw-mode violation halted the run.
func (c *ValidationContext) Aborted() bool {
	return c.aborted
}

// Violations returns a copy of the recorded violations in emission order.
func (c *ValidationContext) Violations() []models.ValidationViolation {
	out := make([]models.ValidationViolation, len(c.violations))
	copy(out, c.violations)
	return out
}

// ViolationsFor filters the recorded violations by entity.
func (c *ValidationContext) ViolationsFor(entity models.EntityKind) []models.ValidationViolation {
	var out []models.ValidationViolation
	for _, v := range c.violations {
		if v.Entity == entity {
			out = append(out, v)
		}
	}
	return out
}
