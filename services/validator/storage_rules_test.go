package validator

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/smallyunet/userop-validator/models"
)

func storageTestContext() *ValidationContext {
	factory := common.HexToAddress("0xfac")
	paymaster := common.HexToAddress("0x9a1")
	return NewValidationContext(
		common.HexToAddress("0x5e4"),
		common.HexToAddress("0xe41"),
		&factory,
		&paymaster,
		false,
	)
}

func TestStorageRules(t *testing.T) {
	ctx := storageTestContext()
	other := common.HexToAddress("0xbad")
	slot := common.Hash{}

	tests := []struct {
		name    string
		entity  models.EntityKind
		owner   common.Address
		allowed bool
	}{
		{"entrypoint entity anything", models.EntityEntryPoint, other, true},
		{"entrypoint owned storage", models.EntitySender, ctx.EntryPoint, true},
		{"sender own storage", models.EntitySender, ctx.Sender, true},
		{"sender foreign storage", models.EntitySender, other, false},
		{"sender reading factory storage", models.EntitySender, *ctx.Factory, false},
		{"factory own storage", models.EntityFactory, *ctx.Factory, true},
		{"factory sender storage", models.EntityFactory, ctx.Sender, true},
		{"factory foreign storage", models.EntityFactory, other, false},
		{"paymaster own storage", models.EntityPaymaster, *ctx.Paymaster, true},
		{"paymaster sender storage", models.EntityPaymaster, ctx.Sender, false},
		{"paymaster foreign storage", models.EntityPaymaster, other, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StorageRules{}).Check(tc.entity, tc.owner, slot, ctx)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestStorageRules_UnsetEntities(t *testing.T) {
	// without factory/paymaster participants the matching rules cannot fire
	ctx := NewValidationContext(
		common.HexToAddress("0x5e4"),
		common.HexToAddress("0xe41"),
		nil,
		nil,
		false,
	)

	err := (StorageRules{}).Check(models.EntityFactory, common.HexToAddress("0xfac"), common.Hash{}, ctx)
	assert.Error(t, err)

	err = (StorageRules{}).Check(models.EntityPaymaster, common.HexToAddress("0x9a1"), common.Hash{}, ctx)
	assert.Error(t, err)
}

func TestStorageRules_DenialMessage(t *testing.T) {
	ctx := storageTestContext()
	owner := common.HexToAddress("0xbad")
	slot := common.HexToHash("0x2a")

	err := (StorageRules{}).Check(models.EntitySender, owner, slot, ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sender")
	assert.Contains(t, err.Error(), slot.Hex())
	assert.Contains(t, err.Error(), owner.Hex())
}
