package access

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tanner253/ClubPengu-sub005/internal/domain"
	"github.com/Tanner253/ClubPengu-sub005/internal/store/schema"
)

func rentedSpace(accessType schema.AccessType) *schema.Space {
	owner := "0xOwner"
	return &schema.Space{
		SpaceID:     "space1",
		OwnerWallet: &owner,
		IsRented:    true,
		AccessType:  accessType,
		TokenGate: schema.TokenGate{
			Enabled:        accessType == schema.AccessToken || accessType == schema.AccessBoth,
			TokenAddress:   "0xToken",
			MinimumBalance: 1000,
		},
		EntryFee: schema.EntryFee{
			Enabled:      accessType == schema.AccessFee || accessType == schema.AccessBoth,
			Amount:       500,
			TokenAddress: "0xFeeToken",
		},
	}
}

func TestOwnerAlwaysEnters(t *testing.T) {
	for _, accessType := range []schema.AccessType{
		schema.AccessPublic, schema.AccessPrivate, schema.AccessToken, schema.AccessFee, schema.AccessBoth,
	} {
		space := rentedSpace(accessType)
		decision := EvaluateEntry(space, "0xOwner", BalanceResult{})

		assert.True(t, decision.CanEnter, "access type %s", accessType)
		assert.True(t, decision.IsOwner)
		assert.Empty(t, decision.BlockingReason)
	}
}

func TestPublicSpaceAdmitsAnyone(t *testing.T) {
	space := rentedSpace(schema.AccessPublic)

	decision := EvaluateEntry(space, "0xVisitor", BalanceResult{})
	require.True(t, decision.CanEnter)
	assert.False(t, decision.IsOwner)

	// Anonymous visitors too
	decision = EvaluateEntry(space, "", BalanceResult{})
	assert.True(t, decision.CanEnter)
}

func TestPrivateSpaceBlocksEveryoneButOwner(t *testing.T) {
	space := rentedSpace(schema.AccessPrivate)

	decision := EvaluateEntry(space, "0xVisitor", BalanceResult{Balance: 1_000_000})
	require.False(t, decision.CanEnter)
	assert.Equal(t, domain.CodeSpaceLocked, decision.BlockingReason)
}

func TestTokenGate(t *testing.T) {
	space := rentedSpace(schema.AccessToken)

	t.Run("sufficient balance", func(t *testing.T) {
		decision := EvaluateEntry(space, "0xHolder", BalanceResult{Balance: 1500})
		require.True(t, decision.CanEnter)
		assert.True(t, decision.TokenGateMet)
		require.NotNil(t, decision.UserTokenBalance)
		assert.Equal(t, uint64(1500), *decision.UserTokenBalance)
	})

	t.Run("exact minimum passes", func(t *testing.T) {
		decision := EvaluateEntry(space, "0xHolder", BalanceResult{Balance: 1000})
		assert.True(t, decision.CanEnter)
	})

	t.Run("below minimum", func(t *testing.T) {
		decision := EvaluateEntry(space, "0xBroke", BalanceResult{Balance: 999})
		require.False(t, decision.CanEnter)
		assert.Equal(t, domain.CodeTokenRequired, decision.BlockingReason)
	})
}

func TestTokenGateFailsClosedOnLookupError(t *testing.T) {
	space := rentedSpace(schema.AccessToken)

	decision := EvaluateEntry(space, "0xHolder", BalanceResult{Err: errors.New("rpc timeout")})

	require.False(t, decision.CanEnter)
	assert.False(t, decision.TokenGateMet)
	assert.True(t, decision.LookupFailed)
	assert.Nil(t, decision.UserTokenBalance)
	assert.Equal(t, domain.CodeTokenRequired, decision.BlockingReason)
}

func TestEntryFee(t *testing.T) {
	space := rentedSpace(schema.AccessFee)

	decision := EvaluateEntry(space, "0xVisitor", BalanceResult{})
	require.False(t, decision.CanEnter)
	assert.Equal(t, domain.CodeFeeRequired, decision.BlockingReason)
	assert.True(t, decision.TokenGateMet)

	space.PaidEntryFees = schema.PaidEntryFees{{WalletAddress: "0xVisitor", TxSignature: "0xsig"}}
	decision = EvaluateEntry(space, "0xVisitor", BalanceResult{})
	assert.True(t, decision.CanEnter)
	assert.True(t, decision.EntryFeePaid)
}

func TestBothRequiresTokenAndFee(t *testing.T) {
	space := rentedSpace(schema.AccessBoth)
	space.PaidEntryFees = schema.PaidEntryFees{{WalletAddress: "0xPaid", TxSignature: "0xsig"}}

	tests := []struct {
		name     string
		wallet   string
		balance  uint64
		canEnter bool
		reason   domain.Code
	}{
		{"token and fee met", "0xPaid", 2000, true, ""},
		{"token met fee unpaid", "0xRich", 2000, false, domain.CodeFeeRequired},
		{"fee paid token missing", "0xPaid", 10, false, domain.CodeTokenRequired},
		{"neither met, token outranks fee", "0xNobody", 0, false, domain.CodeTokenRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := EvaluateEntry(space, tt.wallet, BalanceResult{Balance: tt.balance})
			assert.Equal(t, tt.canEnter, decision.CanEnter)
			assert.Equal(t, tt.reason, decision.BlockingReason)
		})
	}
}

func TestDisabledGateIgnoresBalance(t *testing.T) {
	space := rentedSpace(schema.AccessToken)
	space.TokenGate.Enabled = false

	decision := EvaluateEntry(space, "0xBroke", BalanceResult{Balance: 0})

	assert.True(t, decision.CanEnter)
	assert.Nil(t, decision.UserTokenBalance)
}
